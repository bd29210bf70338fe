package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/davidx33/multi-agent-plan-execute/internal/plan"
	"github.com/invopop/jsonschema"
	"github.com/tmc/langchaingo/llms"
)

// SchemaVersion is bumped whenever an output shape changes incompatibly.
const SchemaVersion = "v1"

type stepOutput struct {
	Description string `json:"description" jsonschema_description:"A detailed description of the work the subagent must do in this step."`
	Subagent    string `json:"subagent" jsonschema:"enum=customer_info,enum=catalog_info,enum=invoice_info" jsonschema_description:"The subagent that should perform this step."`
}

type planOutput struct {
	Steps []stepOutput `json:"steps" jsonschema_description:"Steps the subagents should follow to answer the customer's request, in chronological order."`
}

type revisionOutput struct {
	Steps            []stepOutput `json:"steps" jsonschema_description:"Steps the subagents should follow to answer the customer's request, in chronological order."`
	UpdatedObjective string       `json:"updated_objective" jsonschema_description:"The customer's request after taking their feedback into account."`
}

type decisionOutput struct {
	Action   string       `json:"action" jsonschema:"enum=respond,enum=replan" jsonschema_description:"respond when no more subagent work is needed; replan when subagents still have work to do."`
	Response string       `json:"response,omitempty" jsonschema_description:"The final answer to the customer. Required when action is respond."`
	Steps    []stepOutput `json:"steps,omitempty" jsonschema_description:"The remaining steps, in chronological order. Required when action is replan."`
}

// outputSchema is one versioned structured-output contract offered to the model as a function.
type outputSchema struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

func newOutputSchema(name, description string, v any) outputSchema {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(v)
	s.Version = ""
	return outputSchema{Name: name, Description: description, Parameters: s}
}

var (
	planSchema = newOutputSchema("submit_plan",
		"Submit the action plan the subagents should follow.", &planOutput{})
	revisionSchema = newOutputSchema("submit_revised_plan",
		"Submit the action plan and objective updated with the customer's feedback.", &revisionOutput{})
	decisionSchema = newOutputSchema("submit_decision",
		"Either respond to the customer or submit the remaining steps for the subagents.", &decisionOutput{})
)

// ID names the schema together with its version, e.g. "submit_plan@v1".
func (s outputSchema) ID() string {
	return s.Name + "@" + SchemaVersion
}

func (s outputSchema) tool() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.Parameters,
		},
	}
}

func (s outputSchema) invalid(format string, args ...any) error {
	return &plan.SchemaValidationError{Schema: s.ID(), Err: fmt.Errorf(format, args...)}
}

// decode strictly unmarshals raw arguments into out.
func (s outputSchema) decode(raw string, out any) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return &plan.SchemaValidationError{Schema: s.ID(), Err: err}
	}
	return nil
}

func (s outputSchema) toPlan(steps []stepOutput) (plan.Plan, error) {
	if len(steps) == 0 {
		return nil, &plan.SchemaValidationError{Schema: s.ID(), Err: plan.ErrEmptyPlan}
	}
	p := make(plan.Plan, 0, len(steps))
	for i, st := range steps {
		c, err := plan.ParseCapability(st.Subagent)
		if err != nil {
			return nil, s.invalid("step %d: %v", i+1, err)
		}
		p = append(p, plan.Step{Description: strings.TrimSpace(st.Description), Subagent: c})
	}
	if err := p.Validate(); err != nil {
		return nil, &plan.SchemaValidationError{Schema: s.ID(), Err: err}
	}
	return p, nil
}

func (s outputSchema) toDecision(out decisionOutput) (plan.Decision, error) {
	var d plan.Decision
	switch strings.ToLower(strings.TrimSpace(out.Action)) {
	case string(plan.DecisionRespond):
		if len(out.Steps) > 0 {
			return d, s.invalid("respond decision must not carry steps")
		}
		d = plan.Respond(strings.TrimSpace(out.Response))
	case string(plan.DecisionReplan):
		if strings.TrimSpace(out.Response) != "" {
			return d, s.invalid("replan decision must not carry a response")
		}
		p, err := s.toPlan(out.Steps)
		if err != nil {
			return d, err
		}
		d = plan.Replan(p)
	default:
		return d, s.invalid("unknown action %q", out.Action)
	}
	if err := d.Validate(); err != nil {
		return d, &plan.SchemaValidationError{Schema: s.ID(), Err: err}
	}
	return d, nil
}

var errNoStructuredOutput = errors.New("model returned neither a function call nor a JSON object")

// extractJSON pulls a JSON object out of free text, tolerating Markdown fences.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
