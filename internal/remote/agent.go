// Package remote holds the capability-keyed registry of remote task-performing agents.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/davidx33/multi-agent-plan-execute/internal/plan"
)

// Message is one entry of the history exchanged with a remote agent.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Input is the payload sent to a remote agent.
type Input struct {
	Messages []Message `json:"messages"`
}

// Output is the history a remote agent returns.
type Output struct {
	Messages []Message `json:"messages"`
}

var ErrEmptyReply = errors.New("remote agent returned no messages")

// LastContent returns the content of the final message, which is the agent's answer.
func (o Output) LastContent() (string, error) {
	if len(o.Messages) == 0 {
		return "", ErrEmptyReply
	}
	return o.Messages[len(o.Messages)-1].Content, nil
}

// Agent defines the interface for a remote task-execution endpoint.
type Agent interface {
	Name() string
	Invoke(ctx context.Context, in Input) (Output, error)
}

// Registry manages the agent registered for each capability.
type Registry struct {
	Agents map[plan.Capability]Agent
}

func NewRegistry() *Registry {
	return &Registry{
		Agents: make(map[plan.Capability]Agent),
	}
}

func (r *Registry) Register(c plan.Capability, a Agent) error {
	if !c.Valid() {
		return fmt.Errorf("cannot register agent %s: unknown capability %q", a.Name(), c)
	}
	r.Agents[c] = a
	return nil
}

func (r *Registry) Get(c plan.Capability) (Agent, bool) {
	a, ok := r.Agents[c]
	return a, ok
}

// Missing lists the capabilities with no registered agent.
func (r *Registry) Missing() []plan.Capability {
	var missing []plan.Capability
	for _, c := range plan.Capabilities {
		if _, ok := r.Agents[c]; !ok {
			missing = append(missing, c)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}
