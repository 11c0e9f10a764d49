package hub

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
)

const Prefix = "/realtime"

// Handler serves SockJS sessions under Prefix. A client may pick its initial
// filter with location_id and queue_id query parameters and change it later
// with subscribe/unsubscribe messages.
func (h *Hub) Handler() http.Handler {
	return sockjs.NewHandler(Prefix, sockjs.DefaultOptions, h.serveSession)
}

func (h *Hub) serveSession(session sockjs.Session) {
	client := &Client{
		ID:           uuid.NewString(),
		Send:         make(chan []byte, 16),
		Subscription: subscriptionFromRequest(session.Request()),
	}
	h.Register(client)
	defer h.Unregister(client)

	go func() {
		for msg := range client.Send {
			if err := session.Send(string(msg)); err != nil {
				return
			}
		}
	}()

	for {
		msg, err := session.Recv()
		if err != nil {
			return
		}
		parsed, ok := ParseSubscribe([]byte(msg))
		if !ok {
			continue
		}
		if parsed.Action == "unsubscribe" {
			h.UpdateSubscription(client, Subscription{})
			continue
		}
		h.UpdateSubscription(client, Subscription{
			LocationID: strings.TrimSpace(parsed.LocationID),
			QueueID:    strings.TrimSpace(parsed.QueueID),
		})
	}
}

func subscriptionFromRequest(r *http.Request) Subscription {
	if r == nil {
		return Subscription{}
	}
	query := r.URL.Query()
	return Subscription{
		LocationID: strings.TrimSpace(query.Get("location_id")),
		QueueID:    strings.TrimSpace(query.Get("queue_id")),
	}
}
