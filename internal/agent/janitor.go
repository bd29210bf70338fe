package agent

import (
	"context"
	"log"
	"time"

	"github.com/davidx33/multi-agent-plan-execute/internal/observability"
	"github.com/davidx33/multi-agent-plan-execute/internal/store"
)

// Janitor periodically purges finished sessions older than the retention window.
// Suspended and running sessions are never touched.
type Janitor struct {
	Store     store.CheckpointStore
	Retention time.Duration
	Interval  time.Duration
	Logger    *observability.Logger
	Tracker   *observability.Tracker
	now       func() time.Time
}

func NewJanitor(st store.CheckpointStore, retention time.Duration) *Janitor {
	return &Janitor{
		Store:     st,
		Retention: retention,
		Interval:  30 * time.Second,
		now:       time.Now,
	}
}

func (j *Janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	log.Println("Checkpoint janitor started...")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Tracker.Heartbeat()
			j.Logger.LogHeartbeat()
			if _, err := j.Sweep(ctx); err != nil {
				log.Printf("Error purging checkpoints: %v", err)
			}
		}
	}
}

// Sweep removes terminated and failed checkpoints not updated within Retention.
// A non-positive Retention keeps everything.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	if j.Retention <= 0 {
		return 0, nil
	}
	cutoff := j.now().Add(-j.Retention)
	n, err := j.Store.Purge(ctx, cutoff, store.StatusTerminated, store.StatusFailed)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("Purged %d finished sessions older than %s", n, j.Retention)
	}
	return n, nil
}
