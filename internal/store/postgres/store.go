package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"qfree/queue-service/internal/models"
	"qfree/queue-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// storeLockKey is the advisory lock every mutating transaction takes, so
// writers are serialized the same way the in-memory store serializes them.
const storeLockKey int64 = 0x51f7ee

const defaultEventLimit = 100

type Store struct {
	pool  *pgxpool.Pool
	now   func() time.Time
	newID func() string
}

type Options struct {
	Now   func() time.Time
	NewID func() string
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	now := options.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	newID := options.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Store{pool: pool, now: now, newID: newID}
}

var _ store.Backend = (*Store)(nil)

func (s *Store) CreateQueue(ctx context.Context, input store.CreateQueueInput) (models.Queue, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := store.Validate(input); err != nil {
		return models.Queue{}, err
	}

	queue := models.Queue{
		ID:                        s.newID(),
		Name:                      input.Name,
		LocationID:                input.LocationID,
		AverageServiceTimeMinutes: input.AverageServiceTimeMinutes,
		ImageURL:                  input.ImageURL,
		People:                    []models.Person{},
	}
	err := s.mutate(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO queues (queue_id, location_id, name, average_service_time_minutes, image_url)
			VALUES ($1, $2, $3, $4, $5)
		`, queue.ID, queue.LocationID, queue.Name, queue.AverageServiceTimeMinutes, queue.ImageURL); err != nil {
			return errors.Wrap(err, "insert queue")
		}
		return s.appendEvent(ctx, tx, store.EventQueueCreated, queue, nil)
	})
	if err != nil {
		return models.Queue{}, err
	}
	return queue, nil
}

func (s *Store) UpdateQueue(ctx context.Context, queueID string, update store.QueueUpdate) (models.Queue, error) {
	var queue models.Queue
	err := s.mutate(ctx, func(tx pgx.Tx) error {
		current, found, err := loadQueue(ctx, tx, queueID)
		if err != nil {
			return err
		}
		if !found {
			return store.ErrQueueNotFound
		}
		if err := update.Apply(&current); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE queues
			SET location_id = $2, name = $3, average_service_time_minutes = $4, managed_by_staff_id = $5, image_url = $6
			WHERE queue_id = $1
		`, current.ID, current.LocationID, current.Name, current.AverageServiceTimeMinutes, stringPtrValue(current.ManagedByStaffID), current.ImageURL); err != nil {
			return errors.Wrap(err, "update queue")
		}
		queue = current
		return s.appendEvent(ctx, tx, store.EventQueueUpdated, current, nil)
	})
	if err != nil {
		return models.Queue{}, err
	}
	return queue, nil
}

func (s *Store) DeleteQueue(ctx context.Context, queueID string) (bool, error) {
	deleted := false
	err := s.mutate(ctx, func(tx pgx.Tx) error {
		current, found, err := loadQueue(ctx, tx, queueID)
		if err != nil || !found {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM queues WHERE queue_id = $1`, queueID); err != nil {
			return errors.Wrap(err, "delete queue")
		}
		current.People = nil
		current.CurrentlyServing = nil
		deleted = true
		return s.appendEvent(ctx, tx, store.EventQueueDeleted, current, nil)
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (s *Store) ListQueues(ctx context.Context, filter store.ListQueuesFilter) ([]models.Queue, error) {
	queues := make([]models.Queue, 0)
	err := s.read(ctx, func(tx pgx.Tx) error {
		query := `
			SELECT queue_id, location_id, name, average_service_time_minutes, managed_by_staff_id, image_url
			FROM queues
		`
		var args []interface{}
		if filter.LocationID != "" {
			query += " WHERE location_id = $1"
			args = append(args, filter.LocationID)
		}
		query += " ORDER BY created_seq DESC"

		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return errors.Wrap(err, "list queues")
		}
		for rows.Next() {
			queue, err := scanQueue(rows)
			if err != nil {
				rows.Close()
				return err
			}
			queues = append(queues, queue)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return errors.Wrap(err, "list queues")
		}
		return attachPeople(ctx, tx, queues)
	})
	if err != nil {
		return nil, err
	}
	return queues, nil
}

func (s *Store) GetQueue(ctx context.Context, queueID string) (models.Queue, bool, error) {
	var queue models.Queue
	var found bool
	err := s.read(ctx, func(tx pgx.Tx) error {
		var err error
		queue, found, err = loadQueue(ctx, tx, queueID)
		return err
	})
	if err != nil {
		return models.Queue{}, false, err
	}
	return queue, found, nil
}

func (s *Store) Join(ctx context.Context, input store.JoinInput) (models.Queue, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.UserID = strings.TrimSpace(input.UserID)
	if err := store.Validate(input); err != nil {
		return models.Queue{}, err
	}

	var queue models.Queue
	err := s.mutate(ctx, func(tx pgx.Tx) error {
		current, found, err := loadQueue(ctx, tx, input.QueueID)
		if err != nil {
			return err
		}
		if !found {
			return store.ErrQueueNotFound
		}
		if input.UserID != "" {
			queued, err := userIsWaiting(ctx, tx, input.UserID)
			if err != nil {
				return err
			}
			if queued {
				return store.ErrAlreadyQueued
			}
		}

		person := models.Person{
			ID:       s.newID(),
			Name:     input.Name,
			JoinedAt: s.now().UTC().Truncate(time.Microsecond),
		}
		if input.UserID != "" {
			person.UserID = models.StringPtr(input.UserID)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO queue_people (person_id, queue_id, name, user_id, status, joined_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, person.ID, current.ID, person.Name, nullIfEmpty(input.UserID), store.PersonWaiting, person.JoinedAt); err != nil {
			if isUniqueViolation(err) {
				return store.ErrAlreadyQueued
			}
			return errors.Wrap(err, "insert person")
		}
		current.People = append(current.People, person)
		queue = current
		return s.appendEvent(ctx, tx, store.EventPersonJoined, current, &person)
	})
	if err != nil {
		return models.Queue{}, err
	}
	return queue, nil
}

func (s *Store) LeaveByUser(ctx context.Context, queueID, userID string) (models.Queue, error) {
	return s.removeWaiting(ctx, queueID, store.ActionLeave, store.EventPersonLeft, func(p models.Person) bool {
		return p.UserID != nil && *p.UserID == userID
	})
}

func (s *Store) RemoveByID(ctx context.Context, queueID, personID string) (models.Queue, error) {
	return s.removeWaiting(ctx, queueID, store.ActionRemove, store.EventPersonRemoved, func(p models.Person) bool {
		return p.ID == personID
	})
}

func (s *Store) removeWaiting(ctx context.Context, queueID, action, eventType string, match func(models.Person) bool) (models.Queue, error) {
	var queue models.Queue
	err := s.mutate(ctx, func(tx pgx.Tx) error {
		current, found, err := loadQueue(ctx, tx, queueID)
		if err != nil {
			return err
		}
		if !found {
			return store.ErrQueueNotFound
		}
		queue = current
		status, index := store.Locate(current, match)
		if status == "" || !store.ValidTransition(action, status) {
			return nil
		}

		person := current.People[index]
		if _, err := tx.Exec(ctx, `DELETE FROM queue_people WHERE person_id = $1`, person.ID); err != nil {
			return errors.Wrap(err, "delete person")
		}
		current.People = append(current.People[:index:index], current.People[index+1:]...)
		queue = current
		return s.appendEvent(ctx, tx, eventType, current, &person)
	})
	if err != nil {
		return models.Queue{}, err
	}
	return queue, nil
}

func (s *Store) CallNext(ctx context.Context, queueID string) (models.Queue, error) {
	var queue models.Queue
	err := s.mutate(ctx, func(tx pgx.Tx) error {
		current, found, err := loadQueue(ctx, tx, queueID)
		if err != nil {
			return err
		}
		if !found {
			return store.ErrQueueNotFound
		}
		queue = current
		if len(current.People) == 0 {
			return nil
		}

		if _, err := tx.Exec(ctx, `
			DELETE FROM queue_people WHERE queue_id = $1 AND status = $2
		`, queueID, store.PersonServing); err != nil {
			return errors.Wrap(err, "discard serving person")
		}
		front := current.People[0]
		if _, err := tx.Exec(ctx, `
			UPDATE queue_people SET status = $2 WHERE person_id = $1
		`, front.ID, store.PersonServing); err != nil {
			return errors.Wrap(err, "promote person")
		}
		current.People = current.People[1:]
		current.CurrentlyServing = &front
		queue = current
		return s.appendEvent(ctx, tx, store.EventCalledNext, current, &front)
	})
	if err != nil {
		return models.Queue{}, err
	}
	return queue, nil
}

func (s *Store) FindUserQueue(ctx context.Context, userID string) (models.Queue, bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.Queue{}, false, nil
	}
	var queue models.Queue
	var found bool
	err := s.read(ctx, func(tx pgx.Tx) error {
		var queueID string
		err := tx.QueryRow(ctx, `
			SELECT queue_id FROM queue_people WHERE user_id = $1 AND status = $2
		`, userID, store.PersonWaiting).Scan(&queueID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "find user queue")
		}
		queue, found, err = loadQueue(ctx, tx, queueID)
		return err
	})
	if err != nil {
		return models.Queue{}, false, err
	}
	return queue, found, nil
}

func (s *Store) ListQueueEvents(ctx context.Context, afterSeq int64, limit int) ([]store.QueueEvent, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT seq, queue_id, type, payload, created_at, prev_hash, hash
		FROM queue_events
		WHERE seq > $1
		ORDER BY seq ASC
		LIMIT $2
	`, afterSeq, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list queue events")
	}
	defer rows.Close()

	events := make([]store.QueueEvent, 0)
	for rows.Next() {
		var event store.QueueEvent
		var payload []byte
		if err := rows.Scan(&event.Seq, &event.QueueID, &event.Type, &payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, errors.Wrap(err, "scan queue event")
		}
		event.Payload = payload
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list queue events")
	}
	return events, nil
}

// mutate runs fn in a transaction holding the store-wide advisory lock.
func (s *Store) mutate(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, storeLockKey); err != nil {
		return errors.Wrap(err, "acquire store lock")
	}
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// read runs fn in a read-only snapshot so multi-statement reads stay consistent.
func (s *Store) read(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return errors.Wrap(err, "begin read tx")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	return fn(tx)
}

func (s *Store) appendEvent(ctx context.Context, tx pgx.Tx, eventType string, queue models.Queue, person *models.Person) error {
	var prev store.QueueEvent
	err := tx.QueryRow(ctx, `
		SELECT seq, hash FROM queue_events ORDER BY seq DESC LIMIT 1
	`).Scan(&prev.Seq, &prev.Hash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrap(err, "load last queue event")
	}

	createdAt := s.now().UTC().Truncate(time.Microsecond)
	event, err := store.NewQueueEvent(prev, eventType, queue, person, createdAt)
	if err != nil {
		return errors.Wrap(err, "build queue event")
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO queue_events (seq, queue_id, type, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.Seq, event.QueueID, event.Type, string(event.Payload), event.CreatedAt, event.PrevHash, event.Hash); err != nil {
		return errors.Wrap(err, "insert queue event")
	}
	return nil
}

func loadQueue(ctx context.Context, tx pgx.Tx, queueID string) (models.Queue, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT queue_id, location_id, name, average_service_time_minutes, managed_by_staff_id, image_url
		FROM queues
		WHERE queue_id = $1
	`, queueID)
	queue, err := scanQueue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Queue{}, false, nil
	}
	if err != nil {
		return models.Queue{}, false, err
	}
	queues := []models.Queue{queue}
	if err := attachPeople(ctx, tx, queues); err != nil {
		return models.Queue{}, false, err
	}
	return queues[0], true, nil
}

func scanQueue(row pgx.Row) (models.Queue, error) {
	var queue models.Queue
	var managedBy sql.NullString
	if err := row.Scan(&queue.ID, &queue.LocationID, &queue.Name, &queue.AverageServiceTimeMinutes, &managedBy, &queue.ImageURL); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Queue{}, err
		}
		return models.Queue{}, errors.Wrap(err, "scan queue")
	}
	queue.ManagedByStaffID = nullStringPtr(managedBy)
	queue.People = []models.Person{}
	return queue, nil
}

// attachPeople fills the waiting line and serving slot of each queue in place.
func attachPeople(ctx context.Context, tx pgx.Tx, queues []models.Queue) error {
	if len(queues) == 0 {
		return nil
	}
	index := make(map[string]int, len(queues))
	ids := make([]string, 0, len(queues))
	for i, queue := range queues {
		index[queue.ID] = i
		ids = append(ids, queue.ID)
	}

	rows, err := tx.Query(ctx, `
		SELECT person_id, queue_id, name, user_id, status, joined_at
		FROM queue_people
		WHERE queue_id = ANY($1)
		ORDER BY position ASC
	`, ids)
	if err != nil {
		return errors.Wrap(err, "list people")
	}
	defer rows.Close()

	for rows.Next() {
		var person models.Person
		var queueID, status string
		var userID sql.NullString
		if err := rows.Scan(&person.ID, &queueID, &person.Name, &userID, &status, &person.JoinedAt); err != nil {
			return errors.Wrap(err, "scan person")
		}
		person.UserID = nullStringPtr(userID)
		person.JoinedAt = person.JoinedAt.UTC()
		queue := &queues[index[queueID]]
		switch status {
		case store.PersonServing:
			serving := person
			queue.CurrentlyServing = &serving
		case store.PersonWaiting:
			queue.People = append(queue.People, person)
		}
	}
	return errors.Wrap(rows.Err(), "list people")
}

func userIsWaiting(ctx context.Context, tx pgx.Tx, userID string) (bool, error) {
	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM queue_people WHERE user_id = $1 AND status = $2)
	`, userID, store.PersonWaiting).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "check user queue")
	}
	return exists, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func stringPtrValue(value *string) interface{} {
	if value == nil {
		return nil
	}
	return *value
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}
