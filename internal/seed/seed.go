// Package seed loads the demo locations, staff and queues.
package seed

import (
	"context"

	"qfree/queue-service/internal/models"
	"qfree/queue-service/internal/store"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type demoQueue struct {
	name        string
	location    string
	minutes     int
	imageURL    string
	managedBy   string
	serving     string
	waitingList []string
}

var demoLocations = []store.CreateLocationInput{
	{Name: "City General Hospital", Address: "456 Health Ave, Metropolis", OpeningTime: "24 Hours", Category: models.CategoryHospital},
	{Name: "Suburbia Medical Clinic", Address: "654 Wellness Way, Suburbia", OpeningTime: "8:30 AM", ClosingTime: "5:30 PM", Category: models.CategoryHospital},
}

// Staff reference their location by name; it is resolved after the locations exist.
var demoStaff = []struct {
	location string
	input    store.CreateStaffInput
}{
	{"City General Hospital", store.CreateStaffInput{Name: "Dr. Evelyn Reed", Role: "Doctor", Specialty: "Cardiologist", Status: models.StaffStatusActive, PhotoURL: "https://randomuser.me/api/portraits/women/68.jpg"}},
	{"City General Hospital", store.CreateStaffInput{Name: "Dr. Ben Carter", Role: "Doctor", Specialty: "Neurologist", Status: models.StaffStatusActive, PhotoURL: "https://randomuser.me/api/portraits/men/67.jpg"}},
	{"City General Hospital", store.CreateStaffInput{Name: "Dr. Olivia Chen", Role: "Doctor", Specialty: "Pediatrician", Status: models.StaffStatusOnCall}},
	{"City General Hospital", store.CreateStaffInput{Name: "Nurse Michael P.", Role: "Nurse", Specialty: "General Practice", Status: models.StaffStatusActive}},
	{"Suburbia Medical Clinic", store.CreateStaffInput{Name: "Dr. Samuel Green", Role: "Doctor", Specialty: "General Practitioner", Status: models.StaffStatusActive}},
	{"Suburbia Medical Clinic", store.CreateStaffInput{Name: "Dr. Hannah Wright", Role: "Doctor", Specialty: "Dermatologist", Status: models.StaffStatusOffline}},
}

var demoQueues = []demoQueue{
	{
		name:        "General Check-ups",
		location:    "City General Hospital",
		minutes:     15,
		imageURL:    "https://images.unsplash.com/photo-1576091160399-112ba8d25d1d?auto=format&fit=crop&w=800&q=80",
		managedBy:   "Dr. Ben Carter",
		waitingList: []string{"Eve Davis", "Frank White"},
	},
	{
		name:        "Pharmacy",
		location:    "City General Hospital",
		minutes:     10,
		imageURL:    "https://images.unsplash.com/photo-1587374382229-3b14643b970a?auto=format&fit=crop&w=800&q=80",
		managedBy:   "Nurse Michael P.",
		serving:     "Oscar Taylor",
		waitingList: []string{"Peggy Hill"},
	},
	{
		name:      "Emergency Room",
		location:  "Suburbia Medical Clinic",
		minutes:   45,
		imageURL:  "https://images.unsplash.com/photo-1627525345624-7835154d4bce?auto=format&fit=crop&w=800&q=80",
		managedBy: "Dr. Samuel Green",
		serving:   "Steve Rogers",
	},
}

// Load writes the demo data through the store interfaces. It does nothing when
// any location already exists, so restarting against a database is safe.
func Load(ctx context.Context, backend store.Backend, logger *logrus.Logger) error {
	existing, err := backend.ListLocations(ctx)
	if err != nil {
		return errors.Wrap(err, "list locations")
	}
	if len(existing) > 0 {
		logger.Debug("demo data skipped, locations already present")
		return nil
	}

	locationIDs := make(map[string]string, len(demoLocations))
	for _, input := range demoLocations {
		location, err := backend.CreateLocation(ctx, input)
		if err != nil {
			return errors.Wrapf(err, "create location %s", input.Name)
		}
		locationIDs[location.Name] = location.ID
	}

	staffIDs := make(map[string]string, len(demoStaff))
	for _, entry := range demoStaff {
		input := entry.input
		input.LocationID = locationIDs[entry.location]
		member, err := backend.CreateStaff(ctx, input)
		if err != nil {
			return errors.Wrapf(err, "create staff %s", input.Name)
		}
		staffIDs[member.Name] = member.ID
	}

	for _, demo := range demoQueues {
		if err := loadQueue(ctx, backend, demo, locationIDs[demo.location], staffIDs[demo.managedBy]); err != nil {
			return errors.Wrapf(err, "create queue %s", demo.name)
		}
	}

	logger.WithFields(logrus.Fields{
		"locations": len(demoLocations),
		"staff":     len(demoStaff),
		"queues":    len(demoQueues),
	}).Info("demo data loaded")
	return nil
}

func loadQueue(ctx context.Context, backend store.Backend, demo demoQueue, locationID, staffID string) error {
	queue, err := backend.CreateQueue(ctx, store.CreateQueueInput{
		LocationID:                locationID,
		Name:                      demo.name,
		AverageServiceTimeMinutes: demo.minutes,
		ImageURL:                  demo.imageURL,
	})
	if err != nil {
		return err
	}
	if staffID != "" {
		if _, err := backend.UpdateQueue(ctx, queue.ID, store.QueueUpdate{ManagedByStaffID: &staffID}); err != nil {
			return err
		}
	}
	if demo.serving != "" {
		if _, err := backend.Join(ctx, store.JoinInput{QueueID: queue.ID, Name: demo.serving}); err != nil {
			return err
		}
		if _, err := backend.CallNext(ctx, queue.ID); err != nil {
			return err
		}
	}
	for _, name := range demo.waitingList {
		if _, err := backend.Join(ctx, store.JoinInput{QueueID: queue.ID, Name: name}); err != nil {
			return err
		}
	}
	return nil
}
