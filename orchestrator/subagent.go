package orchestrator

import (
	"context"
	"fmt"

	"github.com/sidecore/agentcore/domain"
	"github.com/sidecore/agentcore/eventbus"
	"github.com/sidecore/agentcore/tool"
)

// explore gets the read-only subset; build additionally allows mutation,
// matching the two sub-agent tools' own descriptions in
// tool/builtin/subagent.go.
var exploreToolNames = []string{"read", "grep", "glob", "list"}
var buildToolNames = []string{"read", "grep", "glob", "list", "write", "edit", "multiedit", "bash", "apply_patch"}

type subAgentRunner struct {
	o *Orchestrator
}

func (o *Orchestrator) subAgentRunner() domain.SubAgentRunner {
	return subAgentRunner{o: o}
}

// Run drives a scoped, ephemeral turn loop for the explore/build tools
// (spec.md §4.3): a fresh in-memory session seeded with the task
// description, a narrower tool registry, and no persistence or event
// bus fan-out of its own — it returns the sub-agent's final text.
// Grounded on dev/dev_agent.go's pattern of kicking off a nested
// workflow with its own chat history, reduced to a synchronous call
// since this core has no workflow engine to own that lifecycle (see
// DESIGN.md's note on the dropped temporal/ dependency).
func (r subAgentRunner) Run(ctx context.Context, kind string, task string) (string, error) {
	names := exploreToolNames
	if kind == "build" {
		names = buildToolNames
	}

	full, ok := r.o.Tools.(*tool.Registry)
	if !ok {
		return "", fmt.Errorf("sub-agent requires a concrete tool.Registry, got %T", r.o.Tools)
	}
	scoped := full.Subset(names...)

	sub := &Orchestrator{
		Store:     noopStore{},
		Providers: r.o.Providers,
		Tools:     scoped,
		Secrets:   r.o.Secrets,
		Config:    r.o.Config,
		Log:       r.o.Log,
	}

	sess := &domain.Session{
		ID:       "subagent",
		WorkMode: domain.WorkModeBuild,
		Model:    "",
		Provider: "",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: []domain.ContentBlock{{Type: domain.ContentText, Text: task}}}},
	}

	bus := eventbus.New(r.o.Log)
	defer bus.Close()
	inputs := eventbus.NewInputChan()
	defer inputs.Close()
	router := newInputRouter(inputs)

	final, err := sub.runTurns(ctx, sess, bus, router)
	if err != nil {
		return "", err
	}
	return final, nil
}

// noopStore discards every write a sub-agent makes; its "session" lives
// only for the duration of the Run call.
type noopStore struct{}

func (noopStore) GetSession(context.Context, string) (*domain.Session, error) { return nil, fmt.Errorf("not supported") }
func (noopStore) AppendMessages(context.Context, string, []domain.Message) error { return nil }
func (noopStore) UpdateUsage(context.Context, string, domain.Usage) error        { return nil }
func (noopStore) SetTitle(context.Context, string, string) error                { return nil }
func (noopStore) SetWorkMode(context.Context, string, domain.WorkMode) error     { return nil }
func (noopStore) GetPlanForSession(context.Context, string) (*domain.Plan, error) {
	return nil, fmt.Errorf("not supported")
}
func (noopStore) UpsertPlan(context.Context, *domain.Plan) error                          { return nil }
func (noopStore) UpdateTaskStatus(context.Context, string, string, domain.TaskStatus) error { return nil }
func (noopStore) AbandonPlan(context.Context, string) error                              { return nil }

var _ Store = noopStore{}
