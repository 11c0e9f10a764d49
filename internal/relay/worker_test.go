package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"qfree/queue-service/internal/logging"
	"qfree/queue-service/internal/store"
	"qfree/queue-service/internal/store/memory"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	published []store.QueueEvent
	failNext  bool
}

func (p *fakePublisher) Publish(ctx context.Context, events []store.QueueEvent) error {
	if p.failNext {
		p.failNext = false
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, events...)
	return nil
}

type sliceSource struct {
	events []store.QueueEvent
}

func (s sliceSource) ListQueueEvents(ctx context.Context, afterSeq int64, limit int) ([]store.QueueEvent, error) {
	var out []store.QueueEvent
	for _, event := range s.events {
		if event.Seq > afterSeq && len(out) < limit {
			out = append(out, event)
		}
	}
	return out, nil
}

func seedEvents(t *testing.T, backend *memory.Store) {
	t.Helper()
	ctx := context.Background()
	queue, err := backend.CreateQueue(ctx, store.CreateQueueInput{LocationID: "loc1", Name: "Q", AverageServiceTimeMinutes: 5})
	require.NoError(t, err)
	_, err = backend.Join(ctx, store.JoinInput{QueueID: queue.ID, Name: "Alice"})
	require.NoError(t, err)
	_, err = backend.Join(ctx, store.JoinInput{QueueID: queue.ID, Name: "Bob"})
	require.NoError(t, err)
}

func TestWorkerPublishesInBatches(t *testing.T) {
	backend := memory.NewStore()
	seedEvents(t, backend)
	publisher := &fakePublisher{}
	w := New(backend, publisher, Config{BatchSize: 2}, logging.Discard())

	n, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(2), w.Cursor())

	n, err = w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = w.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	require.Len(t, publisher.published, 3)
	assert.Equal(t, store.EventQueueCreated, publisher.published[0].Type)
	assert.Equal(t, store.EventPersonJoined, publisher.published[2].Type)
}

func TestWorkerRetriesFailedBatch(t *testing.T) {
	backend := memory.NewStore()
	seedEvents(t, backend)
	publisher := &fakePublisher{failNext: true}
	w := New(backend, publisher, Config{BatchSize: 10}, logging.Discard())

	_, err := w.Run(context.Background())
	require.Error(t, err)
	assert.Zero(t, w.Cursor())

	n, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(3), w.Cursor())
}

func TestWorkerRejectsTamperedEvents(t *testing.T) {
	backend := memory.NewStore()
	seedEvents(t, backend)
	events, err := backend.ListQueueEvents(context.Background(), 0, 10)
	require.NoError(t, err)
	events[1].Payload = json.RawMessage(`{"queue_id":"forged"}`)

	publisher := &fakePublisher{}
	w := New(sliceSource{events: events}, publisher, Config{}, logging.Discard())
	_, err = w.Run(context.Background())
	assert.ErrorIs(t, err, store.ErrEventChainBroken)
	assert.Empty(t, publisher.published)
}

func TestWorkerResumesAfterTrimmedEvents(t *testing.T) {
	backend := memory.NewStore(memory.WithEventRetention(2))
	seedEvents(t, backend)
	publisher := &fakePublisher{}
	w := New(backend, publisher, Config{BatchSize: 1}, logging.Discard())

	// Only seq 2 and 3 are still held.
	_, err := w.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), w.Cursor())

	queue, err := backend.ListQueues(context.Background(), store.ListQueuesFilter{})
	require.NoError(t, err)
	for _, name := range []string{"Carol", "Dan", "Erin"} {
		_, err = backend.Join(context.Background(), store.JoinInput{QueueID: queue[0].ID, Name: name})
		require.NoError(t, err)
	}

	n, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(5), w.Cursor())

	n, err = w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(6), w.Cursor())
}

func TestStartStopsOnCancel(t *testing.T) {
	backend := memory.NewStore()
	seedEvents(t, backend)
	publisher := &fakePublisher{}
	w := New(backend, publisher, Config{BatchSize: 1}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Start(ctx, 10*time.Millisecond, w)
		close(done)
	}()

	require.Eventually(t, func() bool { return w.Cursor() == 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

type recordingWriter struct {
	messages []kafka.Message
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaPublisherKeysByQueue(t *testing.T) {
	backend := memory.NewStore()
	seedEvents(t, backend)
	events, err := backend.ListQueueEvents(context.Background(), 0, 10)
	require.NoError(t, err)

	writer := &recordingWriter{}
	publisher := &KafkaPublisher{writer: writer}
	require.NoError(t, publisher.Publish(context.Background(), events))

	require.Len(t, writer.messages, 3)
	for i, msg := range writer.messages {
		assert.Equal(t, events[i].QueueID, string(msg.Key))
		assert.Equal(t, events[i].Type, string(msg.Headers[0].Value))
		var decoded store.QueueEvent
		require.NoError(t, json.Unmarshal(msg.Value, &decoded))
		assert.Equal(t, events[i].Hash, decoded.Hash)
	}
}

func TestNewKafkaWriterUsesHashBalancer(t *testing.T) {
	writer := NewKafkaWriter([]string{"localhost:9092"}, "queue-events")
	assert.Equal(t, "queue-events", writer.Topic)
	assert.IsType(t, &kafka.Hash{}, writer.Balancer)
}

func TestFanoutStopsAtFirstFailure(t *testing.T) {
	first := &fakePublisher{failNext: true}
	second := &fakePublisher{}
	publisher := Fanout(first, second)

	events := []store.QueueEvent{{Seq: 1, QueueID: "q1"}}
	require.Error(t, publisher.Publish(context.Background(), events))
	assert.Empty(t, second.published)

	require.NoError(t, publisher.Publish(context.Background(), events))
	assert.Len(t, first.published, 1)
	assert.Len(t, second.published, 1)
}
