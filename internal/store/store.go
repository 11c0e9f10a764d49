package store

import (
	"context"
	"strings"

	"qfree/queue-service/internal/models"
)

type CreateQueueInput struct {
	LocationID                string `json:"locationId"`
	Name                      string `json:"name" validate:"notblank"`
	AverageServiceTimeMinutes int    `json:"averageServiceTimeMinutes" validate:"gt=0"`
	ImageURL                  string `json:"imageUrl"`
}

// QueueUpdate holds the fields to merge into a queue; nil fields are left untouched.
type QueueUpdate struct {
	Name                      *string
	LocationID                *string
	AverageServiceTimeMinutes *int
	ImageURL                  *string
	ManagedByStaffID          *string
	ClearManagedBy            bool
}

// Apply merges the update into queue and validates the merged result.
func (u QueueUpdate) Apply(queue *models.Queue) error {
	merged := *queue
	if u.Name != nil {
		merged.Name = strings.TrimSpace(*u.Name)
	}
	if u.LocationID != nil {
		merged.LocationID = *u.LocationID
	}
	if u.AverageServiceTimeMinutes != nil {
		merged.AverageServiceTimeMinutes = *u.AverageServiceTimeMinutes
	}
	if u.ImageURL != nil {
		merged.ImageURL = *u.ImageURL
	}
	if u.ClearManagedBy {
		merged.ManagedByStaffID = nil
	} else if u.ManagedByStaffID != nil {
		merged.ManagedByStaffID = models.StringPtr(*u.ManagedByStaffID)
	}
	if err := Validate(CreateQueueInput{
		LocationID:                merged.LocationID,
		Name:                      merged.Name,
		AverageServiceTimeMinutes: merged.AverageServiceTimeMinutes,
		ImageURL:                  merged.ImageURL,
	}); err != nil {
		return err
	}
	*queue = merged
	return nil
}

type JoinInput struct {
	QueueID string `json:"queueId"`
	Name    string `json:"name" validate:"notblank"`
	// UserID is empty for walk-ins.
	UserID string `json:"userId"`
}

type ListQueuesFilter struct {
	LocationID string
}

type CreateLocationInput struct {
	Name        string `json:"name" validate:"notblank"`
	Address     string `json:"address"`
	OpeningTime string `json:"openingTime"`
	ClosingTime string `json:"closingTime"`
	Category    string `json:"category" validate:"notblank"`
}

type CreateStaffInput struct {
	Name       string `json:"name" validate:"notblank"`
	Role       string `json:"role"`
	Specialty  string `json:"specialty"`
	Status     string `json:"status" validate:"staff_status"`
	PhotoURL   string `json:"photoUrl"`
	LocationID string `json:"locationId" validate:"notblank"`
}

// QueueStore owns queue and person lifetimes. Every method is atomic and every
// returned queue is an independent copy.
type QueueStore interface {
	CreateQueue(ctx context.Context, input CreateQueueInput) (models.Queue, error)
	UpdateQueue(ctx context.Context, queueID string, update QueueUpdate) (models.Queue, error)
	DeleteQueue(ctx context.Context, queueID string) (bool, error)
	ListQueues(ctx context.Context, filter ListQueuesFilter) ([]models.Queue, error)
	GetQueue(ctx context.Context, queueID string) (models.Queue, bool, error)
	Join(ctx context.Context, input JoinInput) (models.Queue, error)
	LeaveByUser(ctx context.Context, queueID, userID string) (models.Queue, error)
	RemoveByID(ctx context.Context, queueID, personID string) (models.Queue, error)
	CallNext(ctx context.Context, queueID string) (models.Queue, error)
	FindUserQueue(ctx context.Context, userID string) (models.Queue, bool, error)
}

type LocationRegistry interface {
	GetLocation(ctx context.Context, locationID string) (models.Location, bool, error)
	ListLocations(ctx context.Context) ([]models.Location, error)
	ListLocationsByCategory(ctx context.Context, category string) ([]models.Location, error)
	CreateLocation(ctx context.Context, input CreateLocationInput) (models.Location, error)
}

type StaffRegistry interface {
	ListStaffByLocation(ctx context.Context, locationID string) ([]models.Staff, error)
	CreateStaff(ctx context.Context, input CreateStaffInput) (models.Staff, error)
}

type EventLog interface {
	ListQueueEvents(ctx context.Context, afterSeq int64, limit int) ([]QueueEvent, error)
}

// Backend is everything a storage implementation provides.
type Backend interface {
	QueueStore
	LocationRegistry
	StaffRegistry
	EventLog
}
