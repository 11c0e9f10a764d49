package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"qfree/queue-service/internal/models"
)

const (
	EventQueueCreated  = "queue.created"
	EventQueueUpdated  = "queue.updated"
	EventQueueDeleted  = "queue.deleted"
	EventPersonJoined  = "person.joined"
	EventPersonLeft    = "person.left"
	EventPersonRemoved = "person.removed"
	EventCalledNext    = "queue.called_next"
)

// QueueEvent is one entry of the append-only, hash-chained mutation log.
type QueueEvent struct {
	Seq       int64           `json:"seq"`
	QueueID   string          `json:"queue_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

type eventPayload struct {
	QueueID       string  `json:"queue_id"`
	QueueName     string  `json:"queue_name,omitempty"`
	LocationID    string  `json:"location_id,omitempty"`
	PersonID      string  `json:"person_id,omitempty"`
	PersonName    string  `json:"person_name,omitempty"`
	UserID        *string `json:"user_id,omitempty"`
	PeopleWaiting int     `json:"people_waiting"`
	ServingID     string  `json:"serving_id,omitempty"`
}

func ComputeQueueEventHash(prevHash string, seq int64, queueID, eventType string, payload json.RawMessage, createdAt time.Time) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, queueID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// NewQueueEvent builds the event that follows prev (zero value for the first
// event) describing queue after the mutation, and person when one is involved.
func NewQueueEvent(prev QueueEvent, eventType string, queue models.Queue, person *models.Person, createdAt time.Time) (QueueEvent, error) {
	payload := eventPayload{
		QueueID:       queue.ID,
		QueueName:     queue.Name,
		LocationID:    queue.LocationID,
		PeopleWaiting: len(queue.People),
	}
	if person != nil {
		payload.PersonID = person.ID
		payload.PersonName = person.Name
		payload.UserID = person.UserID
	}
	if queue.CurrentlyServing != nil {
		payload.ServingID = queue.CurrentlyServing.ID
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return QueueEvent{}, err
	}

	createdAt = createdAt.UTC()
	seq := prev.Seq + 1
	return QueueEvent{
		Seq:       seq,
		QueueID:   queue.ID,
		Type:      eventType,
		Payload:   raw,
		CreatedAt: createdAt,
		PrevHash:  prev.Hash,
		Hash:      ComputeQueueEventHash(prev.Hash, seq, queue.ID, eventType, raw, createdAt),
	}, nil
}

// VerifyQueueEvents checks that events continue the chain ending at prevHash
// and that every hash matches its content.
func VerifyQueueEvents(prevHash string, events []QueueEvent) error {
	for _, event := range events {
		if event.PrevHash != prevHash {
			return fmt.Errorf("%w: seq %d does not follow previous hash", ErrEventChainBroken, event.Seq)
		}
		want := ComputeQueueEventHash(event.PrevHash, event.Seq, event.QueueID, event.Type, event.Payload, event.CreatedAt)
		if event.Hash != want {
			return fmt.Errorf("%w: seq %d hash mismatch", ErrEventChainBroken, event.Seq)
		}
		prevHash = event.Hash
	}
	return nil
}
