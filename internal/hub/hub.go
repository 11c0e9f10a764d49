// Package hub fans queue events out to connected display clients.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"qfree/queue-service/internal/store"

	"github.com/sirupsen/logrus"
)

// Subscription narrows what a client receives. Empty fields match anything.
type Subscription struct {
	LocationID string
	QueueID    string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *logrus.Logger
}

type SubscribeMessage struct {
	Action     string `json:"action"`
	LocationID string `json:"location_id"`
	QueueID    string `json:"queue_id"`
}

// Envelope is what clients receive for every event.
type Envelope struct {
	Seq       int64           `json:"seq"`
	QueueID   string          `json:"queue_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func New(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{clients: make(map[string]*Client), logger: logger}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast never blocks: a client whose buffer is full misses the message.
func (h *Hub) Broadcast(payload []byte, meta Subscription) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !match(client.Subscription, meta) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			h.logger.WithField("client_id", client.ID).Warn("drop realtime message")
		}
	}
}

// Publish lets the hub sit behind the event relay.
func (h *Hub) Publish(ctx context.Context, events []store.QueueEvent) error {
	for _, event := range events {
		payload, err := json.Marshal(Envelope{
			Seq:       event.Seq,
			QueueID:   event.QueueID,
			Type:      event.Type,
			Payload:   event.Payload,
			CreatedAt: event.CreatedAt,
		})
		if err != nil {
			return err
		}
		h.Broadcast(payload, metaOf(event))
	}
	return nil
}

func metaOf(event store.QueueEvent) Subscription {
	var data struct {
		LocationID string `json:"location_id"`
	}
	_ = json.Unmarshal(event.Payload, &data)
	return Subscription{LocationID: data.LocationID, QueueID: event.QueueID}
}

func match(sub Subscription, meta Subscription) bool {
	if sub.LocationID != "" && meta.LocationID != sub.LocationID {
		return false
	}
	if sub.QueueID != "" && meta.QueueID != sub.QueueID {
		return false
	}
	return true
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
