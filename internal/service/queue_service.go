// Package service is the facade the HTTP layer talks to. It adds admission
// rules and wait estimates on top of the store; the one-queue-per-user rule
// stays inside the store's Join.
package service

import (
	"context"
	"errors"
	"strings"

	"qfree/queue-service/internal/estimator"
	"qfree/queue-service/internal/metrics"
	"qfree/queue-service/internal/models"
	"qfree/queue-service/internal/store"

	"github.com/sirupsen/logrus"
)

// QueueView is a queue snapshot with its wait estimate for a new arrival.
type QueueView struct {
	models.Queue
	EstimatedWaitMinutes int `json:"estimatedWaitMinutes"`
}

type StaffAssignment struct {
	Staff         models.Staff  `json:"staff"`
	AssignedQueue *models.Queue `json:"assignedQueue"`
}

type JoinRequest struct {
	QueueID string
	Name    string
	UserID  string
}

type walkInAdmission struct {
	Name string `json:"name" validate:"min=2,max=30"`
}

type QueueService struct {
	backend   store.Backend
	estimator estimator.Estimator
	logger    *logrus.Logger
}

func NewQueueService(backend store.Backend, est estimator.Estimator, logger *logrus.Logger) *QueueService {
	if est == nil {
		est = estimator.Linear{}
	}
	return &QueueService{backend: backend, estimator: est, logger: logger}
}

func (s *QueueService) CreateQueue(ctx context.Context, input store.CreateQueueInput) (models.Queue, error) {
	queue, err := s.backend.CreateQueue(ctx, input)
	s.track("create_queue", err)
	if err != nil {
		return models.Queue{}, err
	}
	s.logger.WithFields(logrus.Fields{"queue_id": queue.ID, "location_id": queue.LocationID}).Info("queue created")
	return queue, nil
}

func (s *QueueService) UpdateQueue(ctx context.Context, queueID string, update store.QueueUpdate) (models.Queue, error) {
	queue, err := s.backend.UpdateQueue(ctx, queueID, update)
	s.track("update_queue", err)
	return queue, err
}

func (s *QueueService) DeleteQueue(ctx context.Context, queueID string) (bool, error) {
	deleted, err := s.backend.DeleteQueue(ctx, queueID)
	s.track("delete_queue", err)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.WithField("queue_id", queueID).Info("queue deleted")
	}
	return deleted, nil
}

func (s *QueueService) ListQueues(ctx context.Context, filter store.ListQueuesFilter) ([]models.Queue, error) {
	return s.backend.ListQueues(ctx, filter)
}

// WaitingCounts reports the number of people waiting in every queue.
func (s *QueueService) WaitingCounts(ctx context.Context) (map[string]int, error) {
	queues, err := s.backend.ListQueues(ctx, store.ListQueuesFilter{})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(queues))
	for _, queue := range queues {
		counts[queue.ID] = len(queue.People)
	}
	return counts, nil
}

func (s *QueueService) GetQueue(ctx context.Context, queueID string) (models.Queue, bool, error) {
	return s.backend.GetQueue(ctx, queueID)
}

// Join admits a person. Walk-ins need a 2 to 30 character name; registered
// users only a non-blank one.
func (s *QueueService) Join(ctx context.Context, req JoinRequest) (models.Queue, error) {
	name := strings.TrimSpace(req.Name)
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		if err := store.Validate(walkInAdmission{Name: name}); err != nil {
			s.track("join", err)
			return models.Queue{}, err
		}
	}

	queue, err := s.backend.Join(ctx, store.JoinInput{QueueID: req.QueueID, Name: name, UserID: userID})
	s.track("join", err)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyQueued) {
			s.logger.WithFields(logrus.Fields{"queue_id": req.QueueID, "user_id": userID}).Info("join rejected, user already queued")
		}
		return models.Queue{}, err
	}
	return queue, nil
}

func (s *QueueService) Leave(ctx context.Context, queueID, userID string) (models.Queue, error) {
	queue, err := s.backend.LeaveByUser(ctx, queueID, strings.TrimSpace(userID))
	s.track("leave", err)
	if err != nil {
		return models.Queue{}, err
	}
	return queue, nil
}

func (s *QueueService) RemovePerson(ctx context.Context, queueID, personID string) (models.Queue, error) {
	queue, err := s.backend.RemoveByID(ctx, queueID, personID)
	s.track("remove", err)
	if err != nil {
		return models.Queue{}, err
	}
	return queue, nil
}

func (s *QueueService) CallNext(ctx context.Context, queueID string) (models.Queue, error) {
	queue, err := s.backend.CallNext(ctx, queueID)
	s.track("call_next", err)
	if err != nil {
		return models.Queue{}, err
	}
	return queue, nil
}

func (s *QueueService) FindUserQueue(ctx context.Context, userID string) (models.Queue, bool, error) {
	return s.backend.FindUserQueue(ctx, userID)
}

// PredictWaitTime estimates the wait for someone joining now. The estimator
// only ever sees a copy, so no store lock is held while it runs.
func (s *QueueService) PredictWaitTime(ctx context.Context, queueID string) (int, bool, error) {
	queue, found, err := s.backend.GetQueue(ctx, queueID)
	if err != nil || !found {
		return 0, found, err
	}
	return s.estimator.Predict(ctx, estimator.SnapshotOf(queue)), true, nil
}

func (s *QueueService) GetQueueView(ctx context.Context, queueID string) (QueueView, bool, error) {
	queue, found, err := s.backend.GetQueue(ctx, queueID)
	if err != nil || !found {
		return QueueView{}, found, err
	}
	return QueueView{
		Queue:                queue,
		EstimatedWaitMinutes: s.estimator.Predict(ctx, estimator.SnapshotOf(queue)),
	}, true, nil
}

// FindStaffQueueAssignments pairs each staff member of a location with the
// first queue, in list order, that names them as manager.
func (s *QueueService) FindStaffQueueAssignments(ctx context.Context, locationID string) ([]StaffAssignment, error) {
	staff, err := s.backend.ListStaffByLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	queues, err := s.backend.ListQueues(ctx, store.ListQueuesFilter{LocationID: locationID})
	if err != nil {
		return nil, err
	}

	assignments := make([]StaffAssignment, 0, len(staff))
	for _, member := range staff {
		assignment := StaffAssignment{Staff: member}
		for i := range queues {
			managedBy := queues[i].ManagedByStaffID
			if managedBy != nil && *managedBy == member.ID {
				queue := queues[i].Clone()
				assignment.AssignedQueue = &queue
				break
			}
		}
		assignments = append(assignments, assignment)
	}
	return assignments, nil
}

func (s *QueueService) ListEvents(ctx context.Context, afterSeq int64, limit int) ([]store.QueueEvent, error) {
	return s.backend.ListQueueEvents(ctx, afterSeq, limit)
}

func (s *QueueService) track(operation string, err error) {
	metrics.TrackQueueOperation(operation, Outcome(err))
}

// Outcome names an operation result for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrAlreadyQueued):
		return "already_queued"
	case errors.Is(err, store.ErrInvalidInput):
		return "invalid_request"
	case errors.Is(err, store.ErrQueueNotFound):
		return "queue_not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
