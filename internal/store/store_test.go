package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/davidx33/multi-agent-plan-execute/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clockedStore struct {
	Store
	setNow func(func() time.Time)
}

func newStores(t *testing.T) map[string]clockedStore {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "planexec.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	mem := NewMemoryStore()

	return map[string]clockedStore{
		"sqlite": {Store: sqlite, setNow: func(f func() time.Time) { sqlite.now = f }},
		"memory": {Store: mem, setNow: func(f func() time.Time) { mem.now = f }},
	}
}

func sampleState() plan.State {
	s := plan.NewState(plan.HumanMessage("what albums do you have by AC/DC?"))
	objective := "List AC/DC albums"
	return s.Merge(plan.Update{
		OriginalObjective: &objective,
		ActionPlan:        plan.Plan{{Description: "Look up AC/DC albums", Subagent: plan.CatalogInfo}},
	})
}

func TestCheckpointRoundTrip(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cp := &Checkpoint{
				ThreadID: "thread-1",
				Status:   StatusSuspended,
				Next:     "human_review",
				State:    sampleState(),
				Review:   plan.Plan{{Description: "Look up AC/DC albums", Subagent: plan.CatalogInfo}},
			}
			require.NoError(t, s.Save(ctx, cp))
			assert.Equal(t, int64(1), cp.Version)
			assert.False(t, cp.CreatedAt.IsZero())

			got, err := s.Load(ctx, "thread-1")
			require.NoError(t, err)
			assert.Equal(t, StatusSuspended, got.Status)
			assert.Equal(t, "human_review", got.Next)
			assert.Equal(t, cp.State, got.State)
			assert.Equal(t, cp.Review, got.Review)
			assert.Equal(t, int64(1), got.Version)
		})
	}
}

func TestCheckpointOptimisticVersioning(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := &Checkpoint{ThreadID: "t", Status: StatusRunning, State: sampleState()}
			require.NoError(t, s.Save(ctx, first))

			// a second writer that started from nothing loses
			dup := &Checkpoint{ThreadID: "t", Status: StatusRunning}
			assert.True(t, errors.Is(s.Save(ctx, dup), ErrVersionConflict))

			a, err := s.Load(ctx, "t")
			require.NoError(t, err)
			b, err := s.Load(ctx, "t")
			require.NoError(t, err)

			a.Status = StatusTerminated
			require.NoError(t, s.Save(ctx, &a))
			assert.Equal(t, int64(2), a.Version)

			b.Status = StatusFailed
			assert.True(t, errors.Is(s.Save(ctx, &b), ErrVersionConflict))

			got, err := s.Load(ctx, "t")
			require.NoError(t, err)
			assert.Equal(t, StatusTerminated, got.Status)
		})
	}
}

func TestLoadMissing(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(context.Background(), "nope")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestListAndPurge(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			save := func(id string, st Status, at time.Time) {
				s.setNow(func() time.Time { return at })
				require.NoError(t, s.Save(ctx, &Checkpoint{ThreadID: id, Status: st, State: sampleState()}))
			}
			save("old-done", StatusTerminated, base)
			save("old-waiting", StatusSuspended, base.Add(time.Minute))
			save("new-done", StatusTerminated, base.Add(48*time.Hour))

			all, err := s.List(ctx, "")
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "new-done", all[0].ThreadID)

			done, err := s.List(ctx, StatusTerminated)
			require.NoError(t, err)
			assert.Len(t, done, 2)

			n, err := s.Purge(ctx, base.Add(24*time.Hour), StatusTerminated, StatusFailed)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			_, err = s.Load(ctx, "old-done")
			assert.True(t, errors.Is(err, ErrNotFound))
			_, err = s.Load(ctx, "old-waiting")
			assert.NoError(t, err, "suspended sessions are not purged")

			require.NoError(t, s.Delete(ctx, "new-done"))
			_, err = s.Load(ctx, "new-done")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestHistory(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.AddMessage(ctx, "chat", plan.HumanMessage("hi")))
			require.NoError(t, s.AddMessage(ctx, "chat", plan.Message{Role: plan.RoleAI, Content: "hello"}))
			require.NoError(t, s.AddMessage(ctx, "chat", plan.HumanMessage("my name?")))
			require.NoError(t, s.AddMessage(ctx, "other", plan.HumanMessage("unrelated")))

			got, err := s.GetHistory(ctx, "chat", 2)
			require.NoError(t, err)
			assert.Equal(t, []plan.Message{
				{Role: plan.RoleAI, Content: "hello"},
				plan.HumanMessage("my name?"),
			}, got)

			require.NoError(t, s.ClearHistory(ctx, "chat"))
			got, err = s.GetHistory(ctx, "chat", 10)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	cp := &Checkpoint{ThreadID: "t", Status: StatusRunning, State: sampleState()}
	require.NoError(t, s.Save(ctx, cp))

	cp.State.ActionPlan[0].Description = "mutated"
	got, err := s.Load(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, "Look up AC/DC albums", got.State.ActionPlan[0].Description)
}
