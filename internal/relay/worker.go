// Package relay forwards the queue event log to an external publisher.
package relay

import (
	"context"
	"sync/atomic"
	"time"

	"qfree/queue-service/internal/metrics"
	"qfree/queue-service/internal/store"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Publisher interface {
	Publish(ctx context.Context, events []store.QueueEvent) error
}

type Config struct {
	BatchSize int
}

// Worker tracks the last published sequence and hash. A batch that fails to
// publish is retried from the same cursor, so delivery is at least once.
type Worker struct {
	source    store.EventLog
	publisher Publisher
	batchSize int
	logger    *logrus.Logger

	lastSeq  atomic.Int64
	lastHash string
}

func New(source store.EventLog, publisher Publisher, cfg Config, logger *logrus.Logger) *Worker {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Worker{
		source:    source,
		publisher: publisher,
		batchSize: batch,
		logger:    logger,
	}
}

// Cursor returns the sequence of the last event published.
func (w *Worker) Cursor() int64 {
	return w.lastSeq.Load()
}

// Run publishes one batch and returns how many events went out.
func (w *Worker) Run(ctx context.Context) (int, error) {
	cursor := w.lastSeq.Load()
	events, err := w.source.ListQueueEvents(ctx, cursor, w.batchSize)
	if err != nil {
		return 0, errors.Wrap(err, "list queue events")
	}
	if len(events) == 0 {
		return 0, nil
	}

	prevHash := w.lastHash
	first := events[0]
	switch {
	case cursor == 0 && prevHash == "":
		// The first batch after start has no known predecessor hash.
		prevHash = first.PrevHash
	case first.Seq > cursor+1:
		// The source dropped events the relay had not reached yet.
		skipped := int(first.Seq - cursor - 1)
		metrics.TrackRelay("skipped", skipped)
		w.logger.WithFields(logrus.Fields{"cursor": cursor, "next_seq": first.Seq, "skipped": skipped}).Warn("queue events trimmed before relay")
		prevHash = first.PrevHash
	}
	if err := store.VerifyQueueEvents(prevHash, events); err != nil {
		metrics.TrackRelay("corrupt", len(events))
		return 0, err
	}

	if err := w.publisher.Publish(ctx, events); err != nil {
		metrics.TrackRelay("failed", len(events))
		return 0, errors.Wrap(err, "publish queue events")
	}
	metrics.TrackRelay("published", len(events))

	last := events[len(events)-1]
	w.lastHash = last.Hash
	w.lastSeq.Store(last.Seq)
	return len(events), nil
}

// Start drains the log every interval until ctx is done. A full batch is
// followed straight away by the next one.
func Start(ctx context.Context, interval time.Duration, w *Worker) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				published, err := w.Run(ctx)
				if err != nil {
					if ctx.Err() == nil {
						w.logger.WithError(err).WithField("cursor", w.Cursor()).Warn("queue event relay failed")
					}
					break
				}
				if published < w.batchSize {
					break
				}
			}
		}
	}
}

type fanout []Publisher

// Fanout publishes every batch to each publisher in order and stops at the
// first failure, so the whole batch is retried.
func Fanout(publishers ...Publisher) Publisher {
	if len(publishers) == 1 {
		return publishers[0]
	}
	return fanout(publishers)
}

func (f fanout) Publish(ctx context.Context, events []store.QueueEvent) error {
	for _, publisher := range f {
		if err := publisher.Publish(ctx, events); err != nil {
			return err
		}
	}
	return nil
}
