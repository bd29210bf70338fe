package governance

import (
	"context"
	"fmt"
	"regexp"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request describes a step about to be dispatched to a remote agent.
type Request struct {
	Capability  string
	Description string
	ThreadID    string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates step dispatches against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies whole capabilities or step descriptions matching a pattern.
type DefaultPolicyEngine struct {
	DeniedCapabilities map[string]bool
	DeniedRegex        []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedCapabilities: make(map[string]bool),
		DeniedRegex:        make([]*regexp.Regexp, 0),
	}
}

// NewPolicyEngine builds an engine from configured capability and pattern deny lists.
func NewPolicyEngine(capabilities, patterns []string) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	for _, c := range capabilities {
		e.DenyCapability(c)
	}
	for _, p := range patterns {
		if err := e.DenyDescriptions(p); err != nil {
			return nil, fmt.Errorf("compile deny pattern %q: %w", p, err)
		}
	}
	return e, nil
}

func (e *DefaultPolicyEngine) DenyCapability(name string) {
	e.DeniedCapabilities[name] = true
}

func (e *DefaultPolicyEngine) DenyDescriptions(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if e.DeniedCapabilities[req.Capability] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Capability '%s' is restricted by system policy", req.Capability),
		}, nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Description) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Step matches restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}
