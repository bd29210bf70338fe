package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/davidx33/multi-agent-plan-execute/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"
)

// scriptedModel answers every call with one function call and records what it was sent.
type scriptedModel struct {
	name     string
	args     string
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (m *scriptedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	for _, opt := range options {
		opt(&m.opts)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{
			ID:           "call_1",
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: m.name, Arguments: m.args},
		}},
		GenerationInfo: map[string]any{"PromptTokens": 120, "CompletionTokens": 30},
	}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestDraftPlanForcesSubmitFunction(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{
		name: "submit_plan",
		args: `{"steps":[{"description":"Look up albums by AC/DC","subagent":"catalog_info"}]}`,
	}
	o := New(model)

	got, err := o.DraftPlan(context.Background(), "you are the supervisor", []plan.Message{
		plan.HumanMessage("what albums do you have by AC/DC?"),
	})
	require.NoError(t, err)
	assert.Equal(t, plan.Plan{{Description: "Look up albums by AC/DC", Subagent: plan.CatalogInfo}}, got)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)

	require.Len(t, model.opts.Tools, 1)
	assert.Equal(t, "submit_plan", model.opts.Tools[0].Function.Name)
	choice, ok := model.opts.ToolChoice.(llms.ToolChoice)
	require.True(t, ok)
	assert.Equal(t, "submit_plan", choice.Function.Name)
}

func TestDraftPlanAcceptsLongCapabilityNames(t *testing.T) {
	t.Parallel()

	o := New(&scriptedModel{
		name: "submit_plan",
		args: `{"steps":[{"description":"Fetch invoices","subagent":"invoice_information_subagent"}]}`,
	}, WithForceTool(false))

	got, err := o.DraftPlan(context.Background(), "instructions", nil)
	require.NoError(t, err)
	assert.Equal(t, plan.InvoiceInfo, got[0].Subagent)
}

func TestDraftPlanRejectsMalformedOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args string
	}{
		{name: "empty plan", args: `{"steps":[]}`},
		{name: "unknown capability", args: `{"steps":[{"description":"x","subagent":"billing"}]}`},
		{name: "blank description", args: `{"steps":[{"description":"  ","subagent":"catalog_info"}]}`},
		{name: "unknown field", args: `{"steps":[],"notes":"hi"}`},
		{name: "not json", args: `steps: none`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(&scriptedModel{name: "submit_plan", args: tt.args})
			_, err := o.DraftPlan(context.Background(), "instructions", nil)

			var schemaErr *plan.SchemaValidationError
			require.True(t, errors.As(err, &schemaErr), "got %v", err)
			assert.Equal(t, "submit_plan@v1", schemaErr.Schema)
		})
	}
}

func TestDraftPlanTransportFailureIsNotSchemaError(t *testing.T) {
	o := New(&scriptedModel{err: errors.New("connection reset")})
	_, err := o.DraftPlan(context.Background(), "instructions", nil)
	require.Error(t, err)

	var schemaErr *plan.SchemaValidationError
	assert.False(t, errors.As(err, &schemaErr))
}

func TestDraftPlanFallsBackToJSONContent(t *testing.T) {
	model := fake.NewFakeLLM([]string{
		"Here you go:\n```json\n{\"steps\":[{\"description\":\"Get the customer's name\",\"subagent\":\"customer_info\"}]}\n```",
	})
	o := New(model)

	got, err := o.DraftPlan(context.Background(), "instructions", nil)
	require.NoError(t, err)
	assert.Equal(t, plan.CustomerInfo, got[0].Subagent)
}

func TestDraftPlanPlainTextIsSchemaError(t *testing.T) {
	o := New(fake.NewFakeLLM([]string{"I think you should look up the catalog."}))
	_, err := o.DraftPlan(context.Background(), "instructions", nil)

	var schemaErr *plan.SchemaValidationError
	require.True(t, errors.As(err, &schemaErr))
	assert.ErrorIs(t, err, errNoStructuredOutput)
}

func TestRevisePlan(t *testing.T) {
	t.Parallel()

	o := New(&scriptedModel{
		name: "submit_revised_plan",
		args: `{"steps":[{"description":"List AC/DC albums","subagent":"catalog_info"},{"description":"List their songs","subagent":"catalog_info"}],
		        "updated_objective":"List AC/DC albums and their songs"}`,
	})

	rev, err := o.RevisePlan(context.Background(), "feedback: also list songs")
	require.NoError(t, err)
	assert.Len(t, rev.Plan, 2)
	assert.Equal(t, "List AC/DC albums and their songs", rev.Objective)
}

func TestRevisePlanRequiresObjective(t *testing.T) {
	o := New(&scriptedModel{
		name: "submit_revised_plan",
		args: `{"steps":[{"description":"x","subagent":"catalog_info"}],"updated_objective":""}`,
	})
	_, err := o.RevisePlan(context.Background(), "feedback")

	var schemaErr *plan.SchemaValidationError
	assert.True(t, errors.As(err, &schemaErr))
}

func TestDecide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    string
		want    plan.Decision
		wantErr bool
	}{
		{
			name: "respond",
			args: `{"action":"respond","response":"Your name is Luís Gonçalves."}`,
			want: plan.Respond("Your name is Luís Gonçalves."),
		},
		{
			name: "replan",
			args: `{"action":"replan","steps":[{"description":"List songs","subagent":"catalog_info"}]}`,
			want: plan.Replan(plan.Plan{{Description: "List songs", Subagent: plan.CatalogInfo}}),
		},
		{name: "both variants", args: `{"action":"respond","response":"hi","steps":[{"description":"x","subagent":"catalog_info"}]}`, wantErr: true},
		{name: "replan with empty plan", args: `{"action":"replan","steps":[]}`, wantErr: true},
		{name: "respond with empty text", args: `{"action":"respond","response":"  "}`, wantErr: true},
		{name: "unknown action", args: `{"action":"escalate"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(&scriptedModel{name: "submit_decision", args: tt.args})
			got, err := o.Decide(context.Background(), "instructions")
			if tt.wantErr {
				var schemaErr *plan.SchemaValidationError
				assert.True(t, errors.As(err, &schemaErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchemasAdvertiseCapabilityEnum(t *testing.T) {
	raw, err := json.Marshal(planSchema.Parameters)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.NotContains(t, doc, "$schema")
	assert.Equal(t, "object", doc["type"])
	assert.Contains(t, string(raw), `"enum":["customer_info","catalog_info","invoice_info"]`)
}
