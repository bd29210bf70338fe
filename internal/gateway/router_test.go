package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/davidx33/multi-agent-plan-execute/internal/agent"
	"github.com/davidx33/multi-agent-plan-execute/internal/observability"
	"github.com/davidx33/multi-agent-plan-execute/internal/plan"
	"github.com/davidx33/multi-agent-plan-execute/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reviewPlan = plan.Plan{{Description: "List the albums by U2", Subagent: plan.CatalogInfo}}

type recordingSessions struct {
	started   map[string][]plan.Message
	feedback  []string
	cancelled []string
	err       error
}

func (s *recordingSessions) Start(_ context.Context, threadID string, history []plan.Message) (*agent.Result, error) {
	if s.started == nil {
		s.started = make(map[string][]plan.Message)
	}
	s.started[threadID] = history
	if s.err != nil {
		return nil, s.err
	}
	return &agent.Result{
		ThreadID:  threadID,
		Status:    store.StatusSuspended,
		Interrupt: &agent.Interrupt{PlanForReview: reviewPlan},
	}, nil
}

func (s *recordingSessions) Resume(_ context.Context, threadID, feedback string) (*agent.Result, error) {
	s.feedback = append(s.feedback, feedback)
	if s.err != nil {
		return nil, s.err
	}
	return &agent.Result{ThreadID: threadID, Status: store.StatusTerminated, Response: "U2 albums: Achtung Baby, Pop."}, nil
}

func (s *recordingSessions) Cancel(_ context.Context, threadID string) error {
	s.cancelled = append(s.cancelled, threadID)
	return nil
}

func newTestRouter(sessions Sessions) (*Router, *store.MemoryStore) {
	history := store.NewMemoryStore()
	r := NewRouter(sessions, history, observability.NewTracker())
	r.NewThreadID = func(chatID string) string { return chatID + ":1" }
	return r, history
}

func TestRouterReviewCycle(t *testing.T) {
	sessions := &recordingSessions{}
	r, history := newTestRouter(sessions)
	ctx := context.Background()
	require.NoError(t, history.AddMessage(ctx, "42", plan.HumanMessage("hi, my customer id is 1")))

	reply := r.Handle(ctx, "42", "what albums do you have by <b>U2</b>?")
	assert.Contains(t, reply, "Step 1: List the albums by U2 (using catalog_info)")
	assert.Contains(t, reply, CommandApprove)

	started := sessions.started["42:1"]
	require.Len(t, started, 2, "the chat's history seeds the session")
	assert.Equal(t, "hi, my customer id is 1", started[0].Content)
	assert.Equal(t, "what albums do you have by U2?", started[1].Content)

	reply = r.Handle(ctx, "42", "/approve")
	assert.Equal(t, "U2 albums: Achtung Baby, Pop.", reply)
	assert.Equal(t, []string{""}, sessions.feedback)

	msgs, err := history.GetHistory(ctx, "42", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, plan.RoleAI, msgs[2].Role)

	// the session is over, so the next message starts a new one
	r.Handle(ctx, "42", "and by AC/DC?")
	assert.Len(t, sessions.feedback, 1)
}

func TestRouterFeedbackIsSanitized(t *testing.T) {
	sessions := &recordingSessions{}
	r, _ := newTestRouter(sessions)
	ctx := context.Background()

	r.Handle(ctx, "7", "U2 albums")
	r.Handle(ctx, "7", `also check my email on file<script>alert("x")</script>`)
	assert.Equal(t, []string{"also check my email on file"}, sessions.feedback)
}

func TestRouterCommands(t *testing.T) {
	sessions := &recordingSessions{}
	r, _ := newTestRouter(sessions)
	ctx := context.Background()

	assert.Equal(t, "No session yet.", r.Handle(ctx, "1", "/status"))
	assert.Contains(t, r.Handle(ctx, "1", "/approve"), "Unknown command")
	assert.Equal(t, "Nothing is waiting for your review.", r.Handle(ctx, "1", "/cancel"))

	r.Handle(ctx, "1", "U2 albums")
	r.Tracker.SetStatus("1:1", observability.RoleReview, "Step 1: List the albums by U2")
	assert.Contains(t, r.Handle(ctx, "1", "/status"), string(observability.RoleReview))

	assert.Contains(t, r.Handle(ctx, "1", "/cancel"), "discarded")
	assert.Equal(t, []string{"1:1"}, sessions.cancelled)
	assert.Empty(t, sessions.feedback)
	assert.Equal(t, "Nothing is waiting for your review.", r.Handle(ctx, "1", "/cancel"))
	assert.Len(t, sessions.cancelled, 1)
	assert.Empty(t, r.Handle(ctx, "1", "   "))
}

func TestRouterReportsFailures(t *testing.T) {
	sessions := &recordingSessions{err: errors.New("oracle down")}
	r, _ := newTestRouter(sessions)

	reply := r.Handle(context.Background(), "1", "U2 albums")
	assert.True(t, strings.HasPrefix(reply, "I'm having trouble"))

	sessions.err = agent.ErrIterationLimit
	reply = r.Handle(context.Background(), "1", "U2 albums")
	assert.Contains(t, reply, "allowed number of steps")
}

func TestChunk(t *testing.T) {
	assert.Equal(t, []string{"short"}, chunk("short", 10))
	assert.Equal(t, []string{"line one", "line two"}, chunk("line one\nline two", 12))
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, chunk("abcdefghij", 4))
}
