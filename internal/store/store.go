// Package store persists session checkpoints and chat history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/davidx33/multi-agent-plan-execute/internal/plan"
)

var (
	ErrNotFound        = errors.New("checkpoint not found")
	ErrVersionConflict = errors.New("checkpoint was modified concurrently")
)

// Status is the lifecycle position of a session.
type Status string

const (
	StatusRunning    Status = "running"
	StatusSuspended  Status = "suspended"
	StatusTerminated Status = "terminated"
	StatusFailed     Status = "failed"
)

// Checkpoint is the durable snapshot of one session taken between node executions.
type Checkpoint struct {
	ThreadID string `json:"thread_id" yaml:"thread_id"`
	Status   Status `json:"status" yaml:"status"`
	// Next names the node that runs when the session continues.
	Next  string     `json:"next,omitempty" yaml:"next,omitempty"`
	State plan.State `json:"state" yaml:"state"`
	// Review holds the plan presented to the human while suspended.
	Review    plan.Plan `json:"plan_for_review,omitempty" yaml:"plan_for_review,omitempty"`
	LastError string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	Version   int64     `json:"version" yaml:"version"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// CheckpointStore is keyed by thread id. Save is optimistic: cp.Version must
// match the stored version (zero for a new thread) and is incremented on success.
type CheckpointStore interface {
	Load(ctx context.Context, threadID string) (Checkpoint, error)
	Save(ctx context.Context, cp *Checkpoint) error
	// List returns checkpoints most recently updated first. An empty status lists all.
	List(ctx context.Context, status Status) ([]Checkpoint, error)
	Delete(ctx context.Context, threadID string) error
	// Purge removes checkpoints in one of statuses not updated since before.
	Purge(ctx context.Context, before time.Time, statuses ...Status) (int, error)
}

// HistoryStore keeps the per-chat conversation that seeds new sessions.
type HistoryStore interface {
	AddMessage(ctx context.Context, chatID string, msg plan.Message) error
	GetHistory(ctx context.Context, chatID string, limit int) ([]plan.Message, error)
	ClearHistory(ctx context.Context, chatID string) error
}

// Store is everything the orchestrator and the gateways persist.
type Store interface {
	CheckpointStore
	HistoryStore
	Close() error
}

func cloneCheckpoint(cp Checkpoint) Checkpoint {
	cp.State = cp.State.Merge(plan.Update{})
	cp.Review = cp.Review.Clone()
	return cp
}
