// Package agent drives a session through supervisor, human review, executor and replanner.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/davidx33/multi-agent-plan-execute/internal/governance"
	"github.com/davidx33/multi-agent-plan-execute/internal/observability"
	"github.com/davidx33/multi-agent-plan-execute/internal/oracle"
	"github.com/davidx33/multi-agent-plan-execute/internal/plan"
	"github.com/davidx33/multi-agent-plan-execute/internal/remote"
	"github.com/davidx33/multi-agent-plan-execute/internal/store"
)

// Deps is built once at startup and shared by every session.
type Deps struct {
	Oracle  oracle.Oracle
	Agents  *remote.Registry
	Store   store.CheckpointStore
	Policy  governance.PolicyEngine
	Prompts *PromptManager
	Logger  *observability.Logger
	Tracker *observability.Tracker
	// MaxIterations caps executor invocations per session; zero disables the cap.
	MaxIterations int
	// StaleAfter is how long a running checkpoint must sit unchanged before
	// Recover treats its driver as dead. Zero means only ForceRecover may take
	// over a running session.
	StaleAfter time.Duration
}

// Result is what a caller sees each time a session yields.
type Result struct {
	ThreadID  string       `json:"thread_id"`
	Status    store.Status `json:"status"`
	Interrupt *Interrupt   `json:"interrupt,omitempty"`
	Response  string       `json:"response,omitempty"`
	State     plan.State   `json:"state"`
}

type Orchestrator struct {
	deps       Deps
	supervisor *Supervisor
	review     *ReviewGate
	executor   *Executor
	replanner  *Replanner

	mu    sync.Mutex
	locks map[string]*threadLock
	now   func() time.Time
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func NewOrchestrator(deps Deps) (*Orchestrator, error) {
	if deps.Oracle == nil {
		return nil, errors.New("orchestrator needs an oracle")
	}
	if deps.Agents == nil {
		return nil, errors.New("orchestrator needs a remote agent registry")
	}
	if deps.Store == nil {
		return nil, errors.New("orchestrator needs a checkpoint store")
	}
	if deps.Prompts == nil {
		deps.Prompts = NewPromptManager("")
	}

	return &Orchestrator{
		deps:       deps,
		supervisor: &Supervisor{Oracle: deps.Oracle, Prompts: deps.Prompts},
		review:     &ReviewGate{Oracle: deps.Oracle, Prompts: deps.Prompts},
		executor:   &Executor{Agents: deps.Agents, Policy: deps.Policy, Prompts: deps.Prompts, Logger: deps.Logger},
		replanner:  &Replanner{Oracle: deps.Oracle, Prompts: deps.Prompts, Logger: deps.Logger},
		locks:      make(map[string]*threadLock),
		now:        time.Now,
	}, nil
}

// lock serialises work on one thread within this process. Entries are dropped
// once nobody holds or waits for them.
func (o *Orchestrator) lock(threadID string) func() {
	o.mu.Lock()
	l, ok := o.locks[threadID]
	if !ok {
		l = &threadLock{}
		o.locks[threadID] = l
	}
	l.refs++
	o.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		o.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(o.locks, threadID)
		}
		o.mu.Unlock()
	}
}

// Start creates a session seeded with history and runs it up to the review suspension.
func (o *Orchestrator) Start(ctx context.Context, threadID string, history []plan.Message) (*Result, error) {
	if threadID == "" {
		return nil, errors.New("thread id is required")
	}
	if len(history) == 0 {
		return nil, ErrNoRequest
	}
	defer o.lock(threadID)()
	ctx = observability.WithThread(ctx, threadID)

	if _, err := o.deps.Store.Load(ctx, threadID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, threadID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	cp := &store.Checkpoint{
		ThreadID: threadID,
		Status:   store.StatusRunning,
		Next:     NodeSupervisor,
		State:    plan.NewState(history...),
	}
	if err := o.deps.Store.Save(ctx, cp); err != nil {
		return nil, err
	}
	log.Printf("Session %s started", threadID)
	return o.advance(ctx, cp)
}

// Resume delivers the human's verdict to a suspended session. Empty (or blank)
// feedback approves the plan unchanged.
func (o *Orchestrator) Resume(ctx context.Context, threadID, feedback string) (*Result, error) {
	defer o.lock(threadID)()
	ctx = observability.WithThread(ctx, threadID)

	cp, err := o.deps.Store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	switch cp.Status {
	case store.StatusSuspended:
	case store.StatusTerminated:
		return nil, fmt.Errorf("%w: %s", ErrSessionTerminated, threadID)
	default:
		return nil, fmt.Errorf("%w: %s is %s", ErrNotSuspended, threadID, cp.Status)
	}

	feedback = strings.TrimSpace(feedback)
	o.deps.Logger.LogResume(threadID, feedback)

	cp.Status = store.StatusRunning
	cp.Review = nil
	if err := o.deps.Store.Save(ctx, &cp); err != nil {
		return nil, err
	}

	o.deps.Tracker.SetStatus(threadID, observability.RoleReview, "applying feedback")
	u, err := o.review.Resume(ctx, cp.State, feedback)
	if err != nil {
		return nil, o.fail(ctx, &cp, NodeHumanReview, err)
	}
	if !u.IsEmpty() {
		cp.State = cp.State.Merge(u)
		o.deps.Logger.LogPlan(threadID, NodeHumanReview, cp.State.ActionPlan)
	}
	cp.Next = NodeExecutor
	if err := o.deps.Store.Save(ctx, &cp); err != nil {
		return nil, err
	}
	return o.advance(ctx, &cp)
}

// Recover continues a failed session from its checkpointed next node. A running
// session is only taken over once it has been idle for StaleAfter, since another
// process may still be driving it.
func (o *Orchestrator) Recover(ctx context.Context, threadID string) (*Result, error) {
	return o.recover(ctx, threadID, false)
}

// ForceRecover is Recover without the staleness check on running sessions. The
// caller asserts that no other process is driving the thread.
func (o *Orchestrator) ForceRecover(ctx context.Context, threadID string) (*Result, error) {
	return o.recover(ctx, threadID, true)
}

func (o *Orchestrator) recover(ctx context.Context, threadID string, force bool) (*Result, error) {
	defer o.lock(threadID)()
	ctx = observability.WithThread(ctx, threadID)

	cp, err := o.deps.Store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	switch cp.Status {
	case store.StatusFailed:
	case store.StatusRunning:
		idle := o.now().Sub(cp.UpdatedAt)
		if !force && (o.deps.StaleAfter <= 0 || idle < o.deps.StaleAfter) {
			return nil, fmt.Errorf("%w: %s last checkpointed %s ago", ErrSessionActive, threadID, idle.Round(time.Second))
		}
	case store.StatusTerminated:
		return nil, fmt.Errorf("%w: %s", ErrSessionTerminated, threadID)
	case store.StatusSuspended:
		return o.result(cp), nil
	}

	log.Printf("Recovering session %s at %s", threadID, cp.Next)
	cp.Status = store.StatusRunning
	cp.LastError = ""
	if err := o.deps.Store.Save(ctx, &cp); err != nil {
		return nil, err
	}
	return o.advance(ctx, &cp)
}

// Cancel discards a plan awaiting review. The session is marked failed so the
// janitor reclaims it after the retention window.
func (o *Orchestrator) Cancel(ctx context.Context, threadID string) error {
	defer o.lock(threadID)()

	cp, err := o.deps.Store.Load(ctx, threadID)
	if err != nil {
		return err
	}
	if cp.Status != store.StatusSuspended {
		return fmt.Errorf("%w: %s is %s", ErrNotSuspended, threadID, cp.Status)
	}
	cp.Status = store.StatusFailed
	cp.LastError = ErrSessionCancelled.Error()
	if err := o.deps.Store.Save(ctx, &cp); err != nil {
		return err
	}
	o.deps.Logger.LogError(threadID, NodeHumanReview, ErrSessionCancelled)
	o.deps.Tracker.Forget(threadID)
	log.Printf("Session %s cancelled at review", threadID)
	return nil
}

// Inspect returns the latest checkpoint of a session.
func (o *Orchestrator) Inspect(ctx context.Context, threadID string) (store.Checkpoint, error) {
	return o.deps.Store.Load(ctx, threadID)
}

func (o *Orchestrator) List(ctx context.Context, status store.Status) ([]store.Checkpoint, error) {
	return o.deps.Store.List(ctx, status)
}

// advance runs nodes from cp.Next until the session suspends or terminates.
func (o *Orchestrator) advance(ctx context.Context, cp *store.Checkpoint) (*Result, error) {
	threadID := cp.ThreadID
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch cp.Next {
		case NodeSupervisor:
			o.deps.Tracker.SetStatus(threadID, observability.RoleSupervisor, "drafting plan")
			u, err := o.supervisor.Run(ctx, cp.State)
			if err != nil {
				return nil, o.fail(ctx, cp, NodeSupervisor, err)
			}
			cp.State = cp.State.Merge(u)
			o.deps.Logger.LogPlan(threadID, NodeSupervisor, cp.State.ActionPlan)
			cp.Next = NodeHumanReview

		case NodeHumanReview:
			interrupt := o.review.Interrupt(cp.State)
			cp.Status = store.StatusSuspended
			cp.Review = interrupt.PlanForReview
			if err := o.deps.Store.Save(ctx, cp); err != nil {
				return nil, err
			}
			o.deps.Logger.LogInterrupt(threadID, interrupt)
			o.deps.Tracker.SetStatus(threadID, observability.RoleReview, plan.FormatForReview(interrupt.PlanForReview))
			return o.result(*cp), nil

		case NodeExecutor:
			if limit := o.deps.MaxIterations; limit > 0 && len(cp.State.PastSteps) >= limit {
				return nil, o.fail(ctx, cp, NodeExecutor, fmt.Errorf("%w: %d steps executed", ErrIterationLimit, limit))
			}
			if len(cp.State.ActionPlan) > 0 {
				step := cp.State.ActionPlan[0]
				o.deps.Tracker.SetStatus(threadID, observability.RoleExecutor, fmt.Sprintf("%s: %s", step.Subagent, step.Description))
			}
			u, err := o.executor.Run(ctx, threadID, cp.State)
			if err != nil {
				return nil, o.fail(ctx, cp, NodeExecutor, err)
			}
			cp.State = cp.State.Merge(u)
			cp.Next = NodeReplanner
			if err := o.deps.Store.Save(ctx, cp); err != nil {
				return nil, err
			}

		case NodeReplanner:
			o.deps.Tracker.SetStatus(threadID, observability.RoleReplanner, "reviewing progress")
			u, _, err := o.replanner.Run(ctx, threadID, cp.State)
			if err != nil {
				return nil, o.fail(ctx, cp, NodeReplanner, err)
			}
			cp.State = cp.State.Merge(u)
			if ShouldEnd(cp.State) {
				cp.Next = ""
				cp.Status = store.StatusTerminated
				if err := o.deps.Store.Save(ctx, cp); err != nil {
					return nil, err
				}
				o.deps.Logger.LogResponse(threadID, cp.State.Response)
				o.deps.Tracker.SetStatus(threadID, observability.RoleDone, "")
				log.Printf("Session %s finished after %d steps", threadID, len(cp.State.PastSteps))
				return o.result(*cp), nil
			}
			cp.Next = NodeExecutor
			if err := o.deps.Store.Save(ctx, cp); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("session %s has no runnable node (next=%q)", threadID, cp.Next)
		}
	}
}

// fail records err on the last persisted checkpoint, leaving its State and next
// node untouched, and returns err annotated with the node.
func (o *Orchestrator) fail(ctx context.Context, cp *store.Checkpoint, node string, err error) error {
	err = fmt.Errorf("%s: %w", node, err)
	o.deps.Logger.LogError(cp.ThreadID, node, err)
	o.deps.Tracker.SetStatus(cp.ThreadID, observability.RoleFailed, err.Error())

	persisted, lerr := o.deps.Store.Load(context.WithoutCancel(ctx), cp.ThreadID)
	if lerr != nil {
		log.Printf("Error loading checkpoint %s to record failure: %v", cp.ThreadID, lerr)
		return err
	}
	if persisted.Version != cp.Version {
		log.Printf("Checkpoint %s moved on (version %d, expected %d); failure not recorded", cp.ThreadID, persisted.Version, cp.Version)
		return err
	}
	persisted.Status = store.StatusFailed
	persisted.LastError = err.Error()
	if serr := o.deps.Store.Save(context.WithoutCancel(ctx), &persisted); serr != nil {
		log.Printf("Error recording failure of %s: %v", cp.ThreadID, serr)
	}
	return err
}

func (o *Orchestrator) result(cp store.Checkpoint) *Result {
	res := &Result{
		ThreadID: cp.ThreadID,
		Status:   cp.Status,
		Response: cp.State.Response,
		State:    cp.State,
	}
	if cp.Status == store.StatusSuspended {
		res.Interrupt = &Interrupt{PlanForReview: cp.Review.Clone()}
	}
	return res
}
