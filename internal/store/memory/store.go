// Package memory is the in-process backend. A single mutex serializes every
// mutation, and reads hand out deep copies.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"qfree/queue-service/internal/models"
	"qfree/queue-service/internal/store"

	"github.com/google/uuid"
)

type Store struct {
	mu sync.RWMutex

	// queueOrder lists queue ids newest first.
	queueOrder []string
	queues     map[string]*models.Queue
	locations  []models.Location
	staff      []models.Staff
	events     []store.QueueEvent
	retention  int

	now   func() time.Time
	newID func() string
}

// DefaultEventRetention is how many events the store keeps before dropping
// the oldest.
const DefaultEventRetention = 10000

type Option func(*Store)

// WithEventRetention caps the event log at n events; n <= 0 keeps everything.
func WithEventRetention(n int) Option {
	return func(s *Store) { s.retention = n }
}

// WithClock overrides the time source used for joinedAt and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

func NewStore(options ...Option) *Store {
	s := &Store{
		queues:    make(map[string]*models.Queue),
		retention: DefaultEventRetention,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

var _ store.Backend = (*Store)(nil)

func (s *Store) CreateQueue(ctx context.Context, input store.CreateQueueInput) (models.Queue, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := store.Validate(input); err != nil {
		return models.Queue{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	queue := &models.Queue{
		ID:                        s.newID(),
		Name:                      input.Name,
		LocationID:                input.LocationID,
		AverageServiceTimeMinutes: input.AverageServiceTimeMinutes,
		ImageURL:                  input.ImageURL,
		People:                    []models.Person{},
	}
	if err := s.appendEvent(store.EventQueueCreated, *queue, nil); err != nil {
		return models.Queue{}, err
	}
	s.queues[queue.ID] = queue
	s.queueOrder = append([]string{queue.ID}, s.queueOrder...)
	return queue.Clone(), nil
}

func (s *Store) UpdateQueue(ctx context.Context, queueID string, update store.QueueUpdate) (models.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, ok := s.queues[queueID]
	if !ok {
		return models.Queue{}, store.ErrQueueNotFound
	}
	merged := queue.Clone()
	if err := update.Apply(&merged); err != nil {
		return models.Queue{}, err
	}
	if err := s.appendEvent(store.EventQueueUpdated, merged, nil); err != nil {
		return models.Queue{}, err
	}
	*queue = merged
	return queue.Clone(), nil
}

func (s *Store) DeleteQueue(ctx context.Context, queueID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, ok := s.queues[queueID]
	if !ok {
		return false, nil
	}
	removed := queue.Clone()
	removed.People = nil
	removed.CurrentlyServing = nil
	if err := s.appendEvent(store.EventQueueDeleted, removed, nil); err != nil {
		return false, err
	}
	delete(s.queues, queueID)
	for i, id := range s.queueOrder {
		if id == queueID {
			s.queueOrder = append(s.queueOrder[:i], s.queueOrder[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *Store) ListQueues(ctx context.Context, filter store.ListQueuesFilter) ([]models.Queue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queues := make([]models.Queue, 0, len(s.queueOrder))
	for _, id := range s.queueOrder {
		queue := s.queues[id]
		if filter.LocationID != "" && queue.LocationID != filter.LocationID {
			continue
		}
		queues = append(queues, queue.Clone())
	}
	return queues, nil
}

func (s *Store) GetQueue(ctx context.Context, queueID string) (models.Queue, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queue, ok := s.queues[queueID]
	if !ok {
		return models.Queue{}, false, nil
	}
	return queue.Clone(), true, nil
}

func (s *Store) Join(ctx context.Context, input store.JoinInput) (models.Queue, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.UserID = strings.TrimSpace(input.UserID)
	if err := store.Validate(input); err != nil {
		return models.Queue{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	queue, ok := s.queues[input.QueueID]
	if !ok {
		return models.Queue{}, store.ErrQueueNotFound
	}
	if input.UserID != "" {
		if _, found := s.findUserQueueLocked(input.UserID); found {
			return models.Queue{}, store.ErrAlreadyQueued
		}
	}

	person := models.Person{
		ID:       s.newID(),
		Name:     input.Name,
		JoinedAt: s.now(),
	}
	if input.UserID != "" {
		person.UserID = models.StringPtr(input.UserID)
	}
	next := queue.Clone()
	next.People = append(next.People, person)
	if err := s.appendEvent(store.EventPersonJoined, next, &person); err != nil {
		return models.Queue{}, err
	}
	*queue = next
	return queue.Clone(), nil
}

func (s *Store) LeaveByUser(ctx context.Context, queueID, userID string) (models.Queue, error) {
	return s.removeWaiting(queueID, store.ActionLeave, store.EventPersonLeft, func(p models.Person) bool {
		return p.UserID != nil && *p.UserID == userID
	})
}

func (s *Store) RemoveByID(ctx context.Context, queueID, personID string) (models.Queue, error) {
	return s.removeWaiting(queueID, store.ActionRemove, store.EventPersonRemoved, func(p models.Person) bool {
		return p.ID == personID
	})
}

func (s *Store) removeWaiting(queueID, action, eventType string, match func(models.Person) bool) (models.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, ok := s.queues[queueID]
	if !ok {
		return models.Queue{}, store.ErrQueueNotFound
	}
	// The person being served has already left the line.
	status, index := store.Locate(*queue, match)
	if status == "" || !store.ValidTransition(action, status) {
		return queue.Clone(), nil
	}

	next := queue.Clone()
	person := next.People[index]
	next.People = append(next.People[:index], next.People[index+1:]...)
	if err := s.appendEvent(eventType, next, &person); err != nil {
		return models.Queue{}, err
	}
	*queue = next
	return queue.Clone(), nil
}

func (s *Store) CallNext(ctx context.Context, queueID string) (models.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, ok := s.queues[queueID]
	if !ok {
		return models.Queue{}, store.ErrQueueNotFound
	}
	if len(queue.People) == 0 {
		return queue.Clone(), nil
	}

	next := queue.Clone()
	front := next.People[0]
	next.People = next.People[1:]
	next.CurrentlyServing = &front
	if err := s.appendEvent(store.EventCalledNext, next, &front); err != nil {
		return models.Queue{}, err
	}
	*queue = next
	return queue.Clone(), nil
}

func (s *Store) FindUserQueue(ctx context.Context, userID string) (models.Queue, bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.Queue{}, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	queue, found := s.findUserQueueLocked(userID)
	if !found {
		return models.Queue{}, false, nil
	}
	return queue.Clone(), true, nil
}

func (s *Store) findUserQueueLocked(userID string) (*models.Queue, bool) {
	for _, id := range s.queueOrder {
		queue := s.queues[id]
		if queue.HasUser(userID) {
			return queue, true
		}
	}
	return nil, false
}

// ListQueueEvents returns events after afterSeq. Sequences are contiguous, so
// the window is found by offset. A cursor older than the retained log starts
// at the oldest event still held.
func (s *Store) ListQueueEvents(ctx context.Context, afterSeq int64, limit int) ([]store.QueueEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	if len(s.events) == 0 {
		return []store.QueueEvent{}, nil
	}
	start := max(afterSeq-(s.events[0].Seq-1), 0)
	if start >= int64(len(s.events)) {
		return []store.QueueEvent{}, nil
	}
	end := min(start+int64(limit), int64(len(s.events)))
	events := make([]store.QueueEvent, end-start)
	copy(events, s.events[start:end])
	return events, nil
}

// appendEvent must be called with s.mu held for writing.
func (s *Store) appendEvent(eventType string, queue models.Queue, person *models.Person) error {
	var prev store.QueueEvent
	if n := len(s.events); n > 0 {
		prev = s.events[n-1]
	}
	event, err := store.NewQueueEvent(prev, eventType, queue, person, s.now())
	if err != nil {
		return err
	}
	s.events = append(s.events, event)
	// Trimmed a quarter at a time rather than on every append.
	if s.retention > 0 && len(s.events) > s.retention+s.retention/4 {
		s.events = append([]store.QueueEvent(nil), s.events[len(s.events)-s.retention:]...)
	}
	return nil
}
