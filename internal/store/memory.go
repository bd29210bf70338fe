package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/davidx33/multi-agent-plan-execute/internal/plan"
)

// MemoryStore is a process-local Store for tests and one-shot runs.
type MemoryStore struct {
	mu          sync.Mutex
	checkpoints map[string]Checkpoint
	messages    map[string][]plan.Message
	now         func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkpoints: make(map[string]Checkpoint),
		messages:    make(map[string][]plan.Message),
		now:         time.Now,
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Load(ctx context.Context, threadID string) (Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return Checkpoint{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[threadID]
	if !ok {
		return Checkpoint{}, fmt.Errorf("%w: %s", ErrNotFound, threadID)
	}
	return cloneCheckpoint(cp), nil
}

func (m *MemoryStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.checkpoints[cp.ThreadID]
	switch {
	case !ok && cp.Version != 0, ok && current.Version != cp.Version:
		return fmt.Errorf("%w: %s at version %d", ErrVersionConflict, cp.ThreadID, cp.Version)
	}

	now := m.now().UTC()
	if !ok {
		cp.CreatedAt = now
	} else {
		cp.CreatedAt = current.CreatedAt
	}
	cp.UpdatedAt = now
	cp.Version++
	m.checkpoints[cp.ThreadID] = cloneCheckpoint(*cp)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, status Status) ([]Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Checkpoint
	for _, cp := range m.checkpoints {
		if status == "" || cp.Status == status {
			out = append(out, cloneCheckpoint(cp))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ThreadID < out[j].ThreadID
	})
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, threadID)
	return nil
}

func (m *MemoryStore) Purge(_ context.Context, before time.Time, statuses ...Status) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, cp := range m.checkpoints {
		if !cp.UpdatedAt.Before(before) {
			continue
		}
		for _, st := range statuses {
			if cp.Status == st {
				delete(m.checkpoints, id)
				n++
				break
			}
		}
	}
	return n, nil
}

func (m *MemoryStore) AddMessage(_ context.Context, chatID string, msg plan.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[chatID] = append(m.messages[chatID], msg)
	return nil
}

func (m *MemoryStore) GetHistory(_ context.Context, chatID string, limit int) ([]plan.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.messages[chatID]
	if limit >= 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]plan.Message(nil), all...), nil
}

func (m *MemoryStore) ClearHistory(_ context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, chatID)
	return nil
}
