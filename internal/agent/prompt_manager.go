package agent

import (
	"embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/davidx33/multi-agent-plan-execute/internal/plan"
)

//go:embed prompts/*.md
var embeddedPrompts embed.FS

const (
	supervisorPrompt = "supervisor.md"
	reviewPrompt     = "review.md"
	replannerPrompt  = "replanner.md"
	executorPrompt   = "executor.md"
)

// PromptManager renders the role instructions. Templates ship embedded in the
// binary; any *.md file in Directory replaces the embedded file of the same name.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

type capabilityView struct {
	Name        plan.Capability
	Description string
}

type promptData struct {
	Capabilities []capabilityView
	Objective    string
	Plan         string
	PastSteps    string
	Feedback     string
	Step         plan.Step
}

func newPromptData() promptData {
	d := promptData{}
	for _, c := range plan.Capabilities {
		d.Capabilities = append(d.Capabilities, capabilityView{Name: c, Description: c.Describe()})
	}
	return d
}

func (pm *PromptManager) SupervisorPrompt() (string, error) {
	return pm.render(supervisorPrompt, newPromptData())
}

func (pm *PromptManager) ReviewPrompt(objective string, p plan.Plan, feedback string) (string, error) {
	d := newPromptData()
	d.Objective = objective
	d.Plan = plan.FormatActionPlan(p)
	d.Feedback = feedback
	return pm.render(reviewPrompt, d)
}

func (pm *PromptManager) ReplannerPrompt(objective string, p plan.Plan, past []plan.ExecutionRecord) (string, error) {
	d := newPromptData()
	d.Objective = objective
	d.Plan = plan.FormatActionPlan(p)
	d.PastSteps = plan.FormatPastSteps(past)
	return pm.render(replannerPrompt, d)
}

// ExecutorPrompt asks a remote agent to perform the first step of p, with the whole plan as context.
func (pm *PromptManager) ExecutorPrompt(p plan.Plan) (string, error) {
	if len(p) == 0 {
		return "", plan.ErrEmptyPlan
	}
	d := newPromptData()
	d.Plan = plan.FormatNumbered(p)
	d.Step = p[0]
	return pm.render(executorPrompt, d)
}

func (pm *PromptManager) render(name string, data promptData) (string, error) {
	t, err := pm.templates()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := t.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}

var promptFuncs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

func (pm *PromptManager) templates() (*template.Template, error) {
	t, err := template.New("prompts").Funcs(promptFuncs).ParseFS(embeddedPrompts, "prompts/*.md")
	if err != nil {
		return nil, fmt.Errorf("parse embedded prompts: %w", err)
	}
	if pm == nil || pm.Directory == "" {
		return t, nil
	}

	entries, err := os.ReadDir(pm.Directory)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts directory: %v", err)
	}
	// Sort files to ensure deterministic override order
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		path := filepath.Join(pm.Directory, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warning: Failed to read prompt file %s: %v", path, err)
			continue
		}
		if _, err := t.New(e.Name()).Parse(string(data)); err != nil {
			return nil, fmt.Errorf("parse prompt %s: %w", path, err)
		}
	}
	return t, nil
}
