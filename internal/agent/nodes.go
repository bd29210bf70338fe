package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/davidx33/multi-agent-plan-execute/internal/governance"
	"github.com/davidx33/multi-agent-plan-execute/internal/observability"
	"github.com/davidx33/multi-agent-plan-execute/internal/oracle"
	"github.com/davidx33/multi-agent-plan-execute/internal/plan"
	"github.com/davidx33/multi-agent-plan-execute/internal/remote"
)

const (
	NodeSupervisor  = "supervisor"
	NodeHumanReview = "human_review"
	NodeExecutor    = "executor"
	NodeReplanner   = "replanner"
)

// supervisorWindow bounds how much recent conversation the supervisor sees.
const supervisorWindow = 3

// Supervisor drafts the first plan from the latest request in the conversation.
type Supervisor struct {
	Oracle  oracle.Oracle
	Prompts *PromptManager
}

func (s *Supervisor) Run(ctx context.Context, state plan.State) (plan.Update, error) {
	history := state.ConversationHistory
	if len(history) == 0 {
		return plan.Update{}, ErrNoRequest
	}
	request := history[len(history)-1]

	window := history
	if len(window) > supervisorWindow {
		window = window[len(window)-supervisorWindow:]
	}
	var messages []plan.Message
	for _, m := range window {
		if !m.IsTool() {
			messages = append(messages, m)
		}
	}

	instructions, err := s.Prompts.SupervisorPrompt()
	if err != nil {
		return plan.Update{}, err
	}
	p, err := s.Oracle.DraftPlan(ctx, instructions, messages)
	if err != nil {
		return plan.Update{}, err
	}
	if err := p.Validate(); err != nil {
		return plan.Update{}, &plan.SchemaValidationError{Schema: "plan", Err: err}
	}

	objective := request.Content
	return plan.Update{ActionPlan: p, OriginalObjective: &objective}, nil
}

// Interrupt is the payload exposed while a session waits for human review.
type Interrupt struct {
	PlanForReview plan.Plan `json:"plan_for_review" yaml:"plan_for_review"`
}

// ReviewGate applies the human's verdict on the drafted plan.
type ReviewGate struct {
	Oracle  oracle.Oracle
	Prompts *PromptManager
}

func (g *ReviewGate) Interrupt(state plan.State) Interrupt {
	return Interrupt{PlanForReview: state.ActionPlan.Clone()}
}

// Resume returns an empty update for empty feedback. Otherwise plan and
// objective are both replaced with the oracle's revision.
func (g *ReviewGate) Resume(ctx context.Context, state plan.State, feedback string) (plan.Update, error) {
	// Whitespace-only feedback approves too, not just the empty string.
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return plan.Update{}, nil
	}

	instructions, err := g.Prompts.ReviewPrompt(state.OriginalObjective, state.ActionPlan, feedback)
	if err != nil {
		return plan.Update{}, err
	}
	rev, err := g.Oracle.RevisePlan(ctx, instructions)
	if err != nil {
		return plan.Update{}, err
	}
	if err := rev.Validate(); err != nil {
		return plan.Update{}, &plan.SchemaValidationError{Schema: "revision", Err: err}
	}
	return plan.Update{ActionPlan: rev.Plan, OriginalObjective: &rev.Objective}, nil
}

// Executor dispatches the first step of the plan to the agent registered for its capability.
type Executor struct {
	Agents  *remote.Registry
	Policy  governance.PolicyEngine
	Prompts *PromptManager
	Logger  *observability.Logger
}

func (e *Executor) Run(ctx context.Context, threadID string, state plan.State) (plan.Update, error) {
	if len(state.ActionPlan) == 0 {
		return plan.Update{}, plan.ErrEmptyPlan
	}
	step := state.ActionPlan[0]

	if e.Policy != nil {
		verdict, err := e.Policy.Evaluate(ctx, governance.Request{
			Capability:  string(step.Subagent),
			Description: step.Description,
			ThreadID:    threadID,
		})
		if err != nil {
			return plan.Update{}, fmt.Errorf("policy check: %w", err)
		}
		e.Logger.LogPolicyCheck(threadID, string(step.Subagent), string(verdict.Effect), verdict.Reason)
		if verdict.Effect == governance.EffectDeny {
			return plan.Update{}, &plan.PolicyDeniedError{Capability: step.Subagent, Reason: verdict.Reason}
		}
	}

	agent, ok := e.Agents.Get(step.Subagent)
	if !ok {
		return plan.Update{}, &plan.UnknownCapabilityError{Capability: step.Subagent}
	}

	prompt, err := e.Prompts.ExecutorPrompt(state.ActionPlan)
	if err != nil {
		return plan.Update{}, err
	}
	out, err := agent.Invoke(ctx, remote.Input{Messages: []remote.Message{{Role: "user", Content: prompt}}})
	if err != nil {
		return plan.Update{}, &plan.RemoteDispatchError{Capability: step.Subagent, Err: err}
	}
	result, err := out.LastContent()
	if err != nil {
		return plan.Update{}, &plan.RemoteDispatchError{Capability: step.Subagent, Err: err}
	}

	e.Logger.LogStep(threadID, len(state.PastSteps)+1, string(step.Subagent), result)
	return plan.Update{
		PastSteps: []plan.ExecutionRecord{{Context: plan.StepSummary(step), Result: result}},
	}, nil
}

// Replanner judges progress after each step: it either answers or re-derives the remaining plan.
type Replanner struct {
	Oracle  oracle.Oracle
	Prompts *PromptManager
	Logger  *observability.Logger
}

func (r *Replanner) Run(ctx context.Context, threadID string, state plan.State) (plan.Update, plan.Decision, error) {
	instructions, err := r.Prompts.ReplannerPrompt(state.OriginalObjective, state.ActionPlan, state.PastSteps)
	if err != nil {
		return plan.Update{}, plan.Decision{}, err
	}
	d, err := r.Oracle.Decide(ctx, instructions)
	if err != nil {
		return plan.Update{}, plan.Decision{}, err
	}
	if err := d.Validate(); err != nil {
		return plan.Update{}, plan.Decision{}, &plan.SchemaValidationError{Schema: "decision", Err: err}
	}

	r.Logger.LogReplan(threadID, string(d.Kind), len(d.Plan))
	switch d.Kind {
	case plan.DecisionRespond:
		response := d.Response
		return plan.Update{Response: &response}, d, nil
	case plan.DecisionReplan:
		return plan.Update{ActionPlan: d.Plan}, d, nil
	}
	return plan.Update{}, plan.Decision{}, errors.New("unreachable decision kind")
}

// ShouldEnd routes after the replanner: terminate iff a response has been produced.
func ShouldEnd(state plan.State) bool {
	return state.Done()
}
