package plan

import "fmt"

// State is the session aggregate threaded through every node of the loop.
type State struct {
	OriginalObjective   string            `json:"original_objective" yaml:"original_objective"`
	ActionPlan          Plan              `json:"action_plan" yaml:"action_plan"`
	ConversationHistory []Message         `json:"conversation_history" yaml:"conversation_history"`
	PastSteps           []ExecutionRecord `json:"past_steps" yaml:"past_steps"`
	Response            string            `json:"response,omitempty" yaml:"response,omitempty"`
}

// NewState seeds a session with its conversation and nothing else.
func NewState(history ...Message) State {
	return State{ConversationHistory: append([]Message(nil), history...)}
}

// Done reports whether a terminal response has been produced.
func (s State) Done() bool {
	return s.Response != ""
}

// Update is the partial output of one node. Nil fields leave State untouched;
// ActionPlan replaces the plan wholesale; slices are appended.
type Update struct {
	OriginalObjective   *string
	ActionPlan          Plan
	ConversationHistory []Message
	PastSteps           []ExecutionRecord
	Response            *string
}

func (u Update) IsEmpty() bool {
	return u.OriginalObjective == nil && u.ActionPlan == nil && len(u.ConversationHistory) == 0 &&
		len(u.PastSteps) == 0 && u.Response == nil
}

// Merge applies u and returns the new State. s itself is never modified, so a
// caller that fails after computing u still holds the prior State.
func (s State) Merge(u Update) State {
	next := State{
		OriginalObjective:   s.OriginalObjective,
		ActionPlan:          s.ActionPlan.Clone(),
		ConversationHistory: appendMessages(s.ConversationHistory, u.ConversationHistory),
		PastSteps:           appendRecords(s.PastSteps, u.PastSteps),
		Response:            s.Response,
	}
	if u.OriginalObjective != nil {
		next.OriginalObjective = *u.OriginalObjective
	}
	if u.ActionPlan != nil {
		next.ActionPlan = u.ActionPlan.Clone()
	}
	if u.Response != nil {
		next.Response = *u.Response
	}
	return next
}

func appendMessages(existing, added []Message) []Message {
	if len(existing) == 0 && len(added) == 0 {
		return nil
	}
	out := make([]Message, 0, len(existing)+len(added))
	out = append(out, existing...)
	return append(out, added...)
}

func appendRecords(existing, added []ExecutionRecord) []ExecutionRecord {
	if len(existing) == 0 && len(added) == 0 {
		return nil
	}
	out := make([]ExecutionRecord, 0, len(existing)+len(added))
	out = append(out, existing...)
	return append(out, added...)
}

// DecisionKind tags the two outcomes of a replan.
type DecisionKind string

const (
	DecisionRespond DecisionKind = "respond"
	DecisionReplan  DecisionKind = "replan"
)

// Decision is the replanner's verdict: either a terminal response or a new plan, never both.
type Decision struct {
	Kind     DecisionKind
	Response string
	Plan     Plan
}

func Respond(text string) Decision {
	return Decision{Kind: DecisionRespond, Response: text}
}

func Replan(p Plan) Decision {
	return Decision{Kind: DecisionReplan, Plan: p}
}

func (d Decision) Validate() error {
	switch d.Kind {
	case DecisionRespond:
		if d.Response == "" {
			return fmt.Errorf("terminal decision carries an empty response")
		}
		if d.Plan != nil {
			return fmt.Errorf("terminal decision must not carry a plan")
		}
		return nil
	case DecisionReplan:
		if d.Response != "" {
			return fmt.Errorf("replan decision must not carry a response")
		}
		return d.Plan.Validate()
	default:
		return fmt.Errorf("unknown decision kind %q", d.Kind)
	}
}

// Revision is the outcome of a human-requested plan edit.
type Revision struct {
	Plan      Plan
	Objective string
}

func (r Revision) Validate() error {
	if r.Objective == "" {
		return fmt.Errorf("revision carries an empty objective")
	}
	return r.Plan.Validate()
}
