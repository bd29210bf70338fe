// Package plan holds the session data model threaded through the orchestration loop.
package plan

import (
	"fmt"
	"strings"
)

// Capability identifies which remote agent can perform a step.
type Capability string

const (
	CustomerInfo Capability = "customer_info"
	CatalogInfo  Capability = "catalog_info"
	InvoiceInfo  Capability = "invoice_info"
)

// Capabilities is the fixed capability set, in prompt order.
var Capabilities = []Capability{CustomerInfo, CatalogInfo, InvoiceInfo}

var capabilityAliases = map[string]Capability{
	"customer_information_subagent":      CustomerInfo,
	"music_catalog_information_subagent": CatalogInfo,
	"invoice_information_subagent":       InvoiceInfo,
}

var capabilityDescriptions = map[Capability]string{
	CustomerInfo: "retrieves and updates the personal information associated with a customer's account (name, address, phone number, email)",
	CatalogInfo:  "retrieves information about the digital music store's catalog (albums, tracks, songs, artists, genres)",
	InvoiceInfo:  "retrieves information about a customer's past purchases and invoices",
}

// ParseCapability maps a tag (or one of its long-form aliases) onto the capability set.
func ParseCapability(s string) (Capability, error) {
	tag := strings.ToLower(strings.TrimSpace(s))
	if c := Capability(tag); c.Valid() {
		return c, nil
	}
	if c, ok := capabilityAliases[tag]; ok {
		return c, nil
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

func (c Capability) Valid() bool {
	switch c {
	case CustomerInfo, CatalogInfo, InvoiceInfo:
		return true
	}
	return false
}

func (c Capability) Describe() string {
	return capabilityDescriptions[c]
}

// Step is one unit of work tagged with the capability required to perform it.
type Step struct {
	Description string     `json:"description" yaml:"description"`
	Subagent    Capability `json:"subagent" yaml:"subagent"`
}

// Plan is an ordered sequence of steps, first to execute at index 0.
type Plan []Step

// Validate checks the invariants a plan must hold before it can enter State.
func (p Plan) Validate() error {
	if len(p) == 0 {
		return ErrEmptyPlan
	}
	for i, step := range p {
		if strings.TrimSpace(step.Description) == "" {
			return fmt.Errorf("step %d has an empty description", i+1)
		}
		if !step.Subagent.Valid() {
			return fmt.Errorf("step %d: unknown capability %q", i+1, step.Subagent)
		}
	}
	return nil
}

func (p Plan) Clone() Plan {
	if p == nil {
		return nil
	}
	out := make(Plan, len(p))
	copy(out, p)
	return out
}

// ExecutionRecord pairs what was asked of a remote agent with the raw result it returned.
type ExecutionRecord struct {
	Context string `json:"context" yaml:"context"`
	Result  string `json:"result" yaml:"result"`
}

type Role string

const (
	RoleHuman    Role = "human"
	RoleAI       Role = "ai"
	RoleSystem   Role = "system"
	RoleTool     Role = "tool"
	RoleToolCall Role = "tool_call"
)

// Message is one entry of the conversation that seeds the supervisor.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

func HumanMessage(content string) Message {
	return Message{Role: RoleHuman, Content: content}
}

func (m Message) IsTool() bool {
	return m.Role == RoleTool || m.Role == RoleToolCall
}
