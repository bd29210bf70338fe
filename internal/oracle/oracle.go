// Package oracle turns free-form model calls into validated planning decisions.
package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/davidx33/multi-agent-plan-execute/internal/observability"
	"github.com/davidx33/multi-agent-plan-execute/internal/plan"
	"github.com/tmc/langchaingo/llms"
)

// Oracle is the planning collaborator consumed by the orchestration nodes.
type Oracle interface {
	// DraftPlan builds a plan from role instructions and the recent conversation.
	DraftPlan(ctx context.Context, instructions string, messages []plan.Message) (plan.Plan, error)
	// RevisePlan rebuilds plan and objective from instructions that embed human feedback.
	RevisePlan(ctx context.Context, instructions string) (plan.Revision, error)
	// Decide either answers the customer or returns the remaining plan.
	Decide(ctx context.Context, instructions string) (plan.Decision, error)
}

// LLMOracle implements Oracle on top of a langchaingo model using function calling.
type LLMOracle struct {
	Model     llms.Model
	ModelName string
	Logger    *observability.Logger
	// ForceTool pins the model to the single output function. Disable for
	// providers that reject an explicit tool choice.
	ForceTool bool
}

type Option func(*LLMOracle)

func WithLogger(l *observability.Logger) Option {
	return func(o *LLMOracle) { o.Logger = l }
}

func WithModelName(name string) Option {
	return func(o *LLMOracle) { o.ModelName = name }
}

func WithForceTool(force bool) Option {
	return func(o *LLMOracle) { o.ForceTool = force }
}

func New(model llms.Model, opts ...Option) *LLMOracle {
	o := &LLMOracle{Model: model, ForceTool: true}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var _ Oracle = (*LLMOracle)(nil)

func (o *LLMOracle) DraftPlan(ctx context.Context, instructions string, messages []plan.Message) (plan.Plan, error) {
	conversation := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, instructions)}
	for _, m := range messages {
		conversation = append(conversation, llms.TextParts(chatRole(m.Role), m.Content))
	}

	var out planOutput
	if err := o.call(ctx, "supervisor", planSchema, conversation, &out); err != nil {
		return nil, err
	}
	return planSchema.toPlan(out.Steps)
}

func (o *LLMOracle) RevisePlan(ctx context.Context, instructions string) (plan.Revision, error) {
	conversation := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, instructions)}

	var out revisionOutput
	if err := o.call(ctx, "human_review", revisionSchema, conversation, &out); err != nil {
		return plan.Revision{}, err
	}
	p, err := revisionSchema.toPlan(out.Steps)
	if err != nil {
		return plan.Revision{}, err
	}
	rev := plan.Revision{Plan: p, Objective: strings.TrimSpace(out.UpdatedObjective)}
	if err := rev.Validate(); err != nil {
		return plan.Revision{}, &plan.SchemaValidationError{Schema: revisionSchema.ID(), Err: err}
	}
	return rev, nil
}

func (o *LLMOracle) Decide(ctx context.Context, instructions string) (plan.Decision, error) {
	conversation := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, instructions)}

	var out decisionOutput
	if err := o.call(ctx, "replanner", decisionSchema, conversation, &out); err != nil {
		return plan.Decision{}, err
	}
	return decisionSchema.toDecision(out)
}

func (o *LLMOracle) call(ctx context.Context, node string, schema outputSchema, messages []llms.MessageContent, out any) error {
	opts := []llms.CallOption{llms.WithTools([]llms.Tool{schema.tool()})}
	if o.ForceTool {
		opts = append(opts, llms.WithToolChoice(llms.ToolChoice{
			Type:     "function",
			Function: &llms.FunctionReference{Name: schema.Name},
		}))
	}

	resp, err := o.Model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return fmt.Errorf("%s oracle call: %w", node, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return schema.invalid("model returned no choices")
	}
	choice := resp.Choices[0]

	threadID := observability.ThreadFrom(ctx)
	o.Logger.LogLLM(threadID, node, messages, choice.Content, choice.ToolCalls)
	o.logCost(threadID, node, choice.GenerationInfo)

	raw := ""
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall != nil && tc.FunctionCall.Name == schema.Name {
			raw = tc.FunctionCall.Arguments
			break
		}
	}
	if raw == "" && choice.FuncCall != nil && choice.FuncCall.Name == schema.Name {
		raw = choice.FuncCall.Arguments
	}
	if raw == "" {
		raw = extractJSON(choice.Content)
	}
	if raw == "" {
		return &plan.SchemaValidationError{Schema: schema.ID(), Err: errNoStructuredOutput}
	}
	return schema.decode(raw, out)
}

func (o *LLMOracle) logCost(threadID, node string, info map[string]any) {
	prompt, okP := info["PromptTokens"].(int)
	completion, okC := info["CompletionTokens"].(int)
	if !okP && !okC {
		return
	}
	o.Logger.LogCost(threadID, node, prompt, completion, o.ModelName)
}

func chatRole(r plan.Role) llms.ChatMessageType {
	switch r {
	case plan.RoleHuman:
		return llms.ChatMessageTypeHuman
	case plan.RoleAI:
		return llms.ChatMessageTypeAI
	case plan.RoleSystem:
		return llms.ChatMessageTypeSystem
	default:
		return llms.ChatMessageTypeHuman
	}
}
