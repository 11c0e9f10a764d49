// Package estimator predicts how long a newly joining person would wait.
// Estimators never fail: every error path degrades to the linear fallback.
package estimator

import (
	"context"

	"qfree/queue-service/internal/metrics"
	"qfree/queue-service/internal/models"
)

// Snapshot is the read-only view of a queue an estimator works from.
type Snapshot struct {
	QueueID                   string `json:"queueId"`
	Name                      string `json:"name"`
	PeopleWaiting             int    `json:"peopleWaiting"`
	AverageServiceTimeMinutes int    `json:"averageServiceTimeMinutes"`
	CurrentlyServing          bool   `json:"currentlyServing"`
}

func SnapshotOf(queue models.Queue) Snapshot {
	return Snapshot{
		QueueID:                   queue.ID,
		Name:                      queue.Name,
		PeopleWaiting:             len(queue.People),
		AverageServiceTimeMinutes: queue.AverageServiceTimeMinutes,
		CurrentlyServing:          queue.CurrentlyServing != nil,
	}
}

type Estimator interface {
	// Predict returns the estimated wait in minutes, always >= 0.
	Predict(ctx context.Context, snapshot Snapshot) int
}

// Fallback is people waiting times average service time, floored at zero.
func Fallback(snapshot Snapshot) int {
	minutes := snapshot.PeopleWaiting * snapshot.AverageServiceTimeMinutes
	if minutes < 0 {
		return 0
	}
	return minutes
}

type Linear struct{}

func (Linear) Predict(ctx context.Context, snapshot Snapshot) int {
	metrics.TrackEstimate("linear", "ok")
	return Fallback(snapshot)
}

func clamp(minutes int) int {
	if minutes < 0 {
		return 0
	}
	return minutes
}
