package gateway

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strings"
	"sync"

	"github.com/davidx33/multi-agent-plan-execute/internal/agent"
	"github.com/davidx33/multi-agent-plan-execute/internal/observability"
	"github.com/davidx33/multi-agent-plan-execute/internal/plan"
	"github.com/davidx33/multi-agent-plan-execute/internal/store"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

const (
	CommandApprove = "/approve"
	CommandStatus  = "/status"
	CommandCancel  = "/cancel"
)

// Sessions is the part of the orchestrator a chat drives.
type Sessions interface {
	Start(ctx context.Context, threadID string, history []plan.Message) (*agent.Result, error)
	Resume(ctx context.Context, threadID, feedback string) (*agent.Result, error)
	Cancel(ctx context.Context, threadID string) error
}

// Router maps chat messages onto sessions: a message starts a session, and
// while that session awaits review the next message is the reviewer's verdict.
type Router struct {
	Sessions     Sessions
	History      store.HistoryStore
	Tracker      *observability.Tracker
	HistoryLimit int
	NewThreadID  func(chatID string) string

	sanitizer *bluemonday.Policy
	mu        sync.Mutex
	awaiting  map[string]string // chat id -> suspended thread id
	last      map[string]string // chat id -> most recent thread id
}

func NewRouter(sessions Sessions, history store.HistoryStore, tracker *observability.Tracker) *Router {
	return &Router{
		Sessions:     sessions,
		History:      history,
		Tracker:      tracker,
		HistoryLimit: 10,
		NewThreadID: func(chatID string) string {
			return chatID + ":" + uuid.NewString()
		},
		sanitizer: bluemonday.StrictPolicy(),
		awaiting:  make(map[string]string),
		last:      make(map[string]string),
	}
}

// Handle processes one inbound chat message and returns the reply to send back.
func (r *Router) Handle(ctx context.Context, chatID, text string) string {
	text = r.sanitize(text)
	if text == "" {
		return ""
	}

	switch strings.ToLower(text) {
	case CommandStatus:
		return r.status(chatID)
	case CommandCancel:
		return r.cancel(ctx, chatID)
	}

	r.mu.Lock()
	threadID, reviewing := r.awaiting[chatID]
	r.mu.Unlock()

	if reviewing {
		feedback := text
		if strings.EqualFold(text, CommandApprove) {
			feedback = ""
		}
		res, err := r.Sessions.Resume(ctx, threadID, feedback)
		return r.reply(ctx, chatID, threadID, res, err)
	}

	if strings.HasPrefix(text, "/") {
		return fmt.Sprintf("Unknown command %s. Send a request, or %s while a plan awaits review.", text, CommandApprove)
	}
	return r.start(ctx, chatID, text)
}

func (r *Router) start(ctx context.Context, chatID, text string) string {
	var history []plan.Message
	if r.History != nil {
		past, err := r.History.GetHistory(ctx, chatID, r.HistoryLimit)
		if err != nil {
			log.Printf("Error loading history for %s: %v", chatID, err)
		}
		history = past
		if err := r.History.AddMessage(ctx, chatID, plan.HumanMessage(text)); err != nil {
			log.Printf("Error saving message for %s: %v", chatID, err)
		}
	}
	history = append(history, plan.HumanMessage(text))

	threadID := r.NewThreadID(chatID)
	r.mu.Lock()
	r.last[chatID] = threadID
	r.mu.Unlock()

	res, err := r.Sessions.Start(ctx, threadID, history)
	return r.reply(ctx, chatID, threadID, res, err)
}

func (r *Router) reply(ctx context.Context, chatID, threadID string, res *agent.Result, err error) string {
	if err != nil {
		log.Printf("Error in session %s: %v", threadID, err)
		r.mu.Lock()
		delete(r.awaiting, chatID)
		r.mu.Unlock()
		if errors.Is(err, agent.ErrIterationLimit) {
			return "I could not finish this request within the allowed number of steps."
		}
		return "I'm having trouble answering that right now..."
	}

	switch res.Status {
	case store.StatusSuspended:
		r.mu.Lock()
		r.awaiting[chatID] = threadID
		r.mu.Unlock()
		return renderReview(res.Interrupt)
	case store.StatusTerminated:
		r.mu.Lock()
		delete(r.awaiting, chatID)
		r.mu.Unlock()
		if r.History != nil {
			if err := r.History.AddMessage(ctx, chatID, plan.Message{Role: plan.RoleAI, Content: res.Response}); err != nil {
				log.Printf("Error saving response for %s: %v", chatID, err)
			}
		}
		return res.Response
	}
	return fmt.Sprintf("Session %s is %s.", threadID, res.Status)
}

func (r *Router) cancel(ctx context.Context, chatID string) string {
	r.mu.Lock()
	threadID, ok := r.awaiting[chatID]
	delete(r.awaiting, chatID)
	r.mu.Unlock()
	if !ok {
		return "Nothing is waiting for your review."
	}
	if err := r.Sessions.Cancel(ctx, threadID); err != nil {
		log.Printf("Error cancelling session %s: %v", threadID, err)
	}
	return "Plan discarded. Send a new request whenever you are ready."
}

func (r *Router) status(chatID string) string {
	r.mu.Lock()
	threadID, ok := r.last[chatID]
	r.mu.Unlock()
	if !ok {
		return "No session yet."
	}
	s := r.Tracker.GetStatus(threadID)
	if s.ActiveTask == "" {
		return fmt.Sprintf("Session %s: %s", threadID, s.Role)
	}
	return fmt.Sprintf("Session %s: %s\n%s", threadID, s.Role, s.ActiveTask)
}

func (r *Router) sanitize(text string) string {
	return strings.TrimSpace(html.UnescapeString(r.sanitizer.Sanitize(text)))
}

func renderReview(in *agent.Interrupt) string {
	var b strings.Builder
	b.WriteString("Current plan:\n")
	if in != nil {
		b.WriteString(plan.FormatForReview(in.PlanForReview))
	}
	fmt.Fprintf(&b, "\n\nIs there anything you would like to change about the plan? Reply with your changes, or %s to run it as is.", CommandApprove)
	return b.String()
}
