package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/davidx33/multi-agent-plan-execute/internal/plan"
	"github.com/davidx33/multi-agent-plan-execute/internal/remote"
)

// scriptedOracle replays queued answers and records every instruction it receives.
type scriptedOracle struct {
	mu        sync.Mutex
	plans     []plan.Plan
	revisions []plan.Revision
	decisions []plan.Decision
	err       error

	drafted [][]plan.Message
	revised []string
	decided []string
}

func (o *scriptedOracle) DraftPlan(_ context.Context, _ string, messages []plan.Message) (plan.Plan, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.drafted = append(o.drafted, messages)
	if o.err != nil {
		return nil, o.err
	}
	if len(o.plans) == 0 {
		return nil, errors.New("no plan scripted")
	}
	p := o.plans[0]
	o.plans = o.plans[1:]
	return p, nil
}

func (o *scriptedOracle) RevisePlan(_ context.Context, instructions string) (plan.Revision, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.revised = append(o.revised, instructions)
	if o.err != nil {
		return plan.Revision{}, o.err
	}
	if len(o.revisions) == 0 {
		return plan.Revision{}, errors.New("no revision scripted")
	}
	r := o.revisions[0]
	o.revisions = o.revisions[1:]
	return r, nil
}

func (o *scriptedOracle) Decide(_ context.Context, instructions string) (plan.Decision, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decided = append(o.decided, instructions)
	if o.err != nil {
		return plan.Decision{}, o.err
	}
	if len(o.decisions) == 0 {
		return plan.Decision{}, errors.New("no decision scripted")
	}
	d := o.decisions[0]
	o.decisions = o.decisions[1:]
	return d, nil
}

// stubAgent answers every run with reply, or fails with err.
type stubAgent struct {
	name  string
	reply string
	err   error

	mu     sync.Mutex
	inputs []remote.Input
}

func (a *stubAgent) Name() string { return a.name }

func (a *stubAgent) Invoke(_ context.Context, in remote.Input) (remote.Output, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inputs = append(a.inputs, in)
	if a.err != nil {
		return remote.Output{}, a.err
	}
	return remote.Output{Messages: []remote.Message{
		in.Messages[0],
		{Role: "ai", Content: a.reply},
	}}, nil
}

func (a *stubAgent) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inputs)
}

// gatedAgent holds every run until release is closed.
type gatedAgent struct {
	*stubAgent
	started atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func newGatedAgent(reply string) *gatedAgent {
	return &gatedAgent{
		stubAgent: &stubAgent{name: "gated", reply: reply},
		entered:   make(chan struct{}, 4),
		release:   make(chan struct{}),
	}
}

func (a *gatedAgent) Invoke(ctx context.Context, in remote.Input) (remote.Output, error) {
	a.started.Add(1)
	a.entered <- struct{}{}
	<-a.release
	return a.stubAgent.Invoke(ctx, in)
}

type team struct {
	customer *stubAgent
	catalog  *stubAgent
	invoice  *stubAgent
	registry *remote.Registry
}

func newTeam() team {
	t := team{
		customer: &stubAgent{name: "customer", reply: "Your name is Luís Gonçalves."},
		catalog:  &stubAgent{name: "catalog", reply: "U2 albums: Achtung Baby, All That You Can't Leave Behind, Pop."},
		invoice:  &stubAgent{name: "invoice", reply: "Your most recent purchase was invoice 382 on 2025-08-07 for $1.98."},
		registry: remote.NewRegistry(),
	}
	_ = t.registry.Register(plan.CustomerInfo, t.customer)
	_ = t.registry.Register(plan.CatalogInfo, t.catalog)
	_ = t.registry.Register(plan.InvoiceInfo, t.invoice)
	return t
}
