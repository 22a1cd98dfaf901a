package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidecore/agentcore/domain"
	"github.com/sidecore/agentcore/eventbus"
	"github.com/sidecore/agentcore/provider"
	"github.com/sidecore/agentcore/secretmanager"
	"github.com/sidecore/agentcore/tool"
)

func newTestOrchestrator(store *fakeStore, client provider.Client, tools *tool.Registry, cfg Config) *Orchestrator {
	registry := provider.NewRegistry()
	registry.Register(provider.FormatAnthropic, client)
	return &Orchestrator{
		Store:     store,
		Providers: registry,
		Tools:     tools,
		Secrets:   secretmanager.Mock{},
		Config:    cfg,
		Log:       zerolog.Nop(),
	}
}

func collectEvents(bus *eventbus.Bus) (<-chan domain.LoopEvent, func()) {
	return bus.Subscribe()
}

func TestRunUserMessage_HappyPath_NoToolCalls(t *testing.T) {
	sess := &domain.Session{ID: "s1", Provider: string(provider.FormatAnthropic), WorkMode: domain.WorkModeBuild}
	store := newFakeStore(sess)
	client := &scriptedClient{turns: [][]provider.StreamPart{
		{textPart("hello there")},
	}}
	cfg := DefaultConfig()
	orch := newTestOrchestrator(store, client, tool.NewRegistry(), cfg)

	bus := eventbus.New(zerolog.Nop())
	defer bus.Close()
	inputs := eventbus.NewInputChan()
	defer inputs.Close()
	sub, unsub := collectEvents(bus)
	defer unsub()

	var events []domain.LoopEvent
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range sub {
			events = append(events, evt)
		}
	}()

	err := orch.RunUserMessage(context.Background(), "s1", "hi", bus, inputs)
	require.NoError(t, err)
	bus.Close()
	<-done

	last := events[len(events)-1]
	assert.Equal(t, domain.EventFinished, last.Type)
	assert.Len(t, sess.Messages, 2) // user + assistant
	assert.Equal(t, "hello there", sess.Messages[1].Text())
}

func TestRunUserMessage_ToolCallThenFinish(t *testing.T) {
	sess := &domain.Session{ID: "s1", Provider: string(provider.FormatAnthropic), WorkMode: domain.WorkModeBuild}
	store := newFakeStore(sess)
	client := &scriptedClient{turns: [][]provider.StreamPart{
		{toolCallPart("tc1", "echo", `{"msg":"hi"}`)},
		{textPart("done")},
	}}
	executed := false
	tools := tool.NewRegistry()
	tools.Register(fakeTool{name: "echo", sideEffect: domain.EffectRead, exec: func(ctx context.Context, params []byte) (*domain.ToolResult, error) {
		executed = true
		return &domain.ToolResult{Output: "echoed"}, nil
	}})

	cfg := DefaultConfig()
	orch := newTestOrchestrator(store, client, tools, cfg)

	bus := eventbus.New(zerolog.Nop())
	defer bus.Close()
	inputs := eventbus.NewInputChan()
	defer inputs.Close()
	sub, unsub := collectEvents(bus)
	defer unsub()

	var events []domain.LoopEvent
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range sub {
			events = append(events, evt)
		}
	}()

	err := orch.RunUserMessage(context.Background(), "s1", "hi", bus, inputs)
	require.NoError(t, err)
	bus.Close()
	<-done

	assert.True(t, executed)
	last := events[len(events)-1]
	assert.Equal(t, domain.EventFinished, last.Type)

	// user, assistant(tool_use), tool results, assistant(text)
	require.Len(t, sess.Messages, 4)
	assert.Equal(t, domain.RoleAssistant, sess.Messages[1].Role)
	assert.Equal(t, domain.RoleUser, sess.Messages[2].Role)
	results := sess.Messages[2].ToolResultBlocks()
	require.Len(t, results, 1)
	assert.Equal(t, "echoed", results[0].Output)
	assert.False(t, results[0].IsError)
}

func TestRunUserMessage_PlanModeBlocksMutatingTool(t *testing.T) {
	sess := &domain.Session{ID: "s1", Provider: string(provider.FormatAnthropic), WorkMode: domain.WorkModePlan}
	store := newFakeStore(sess)
	client := &scriptedClient{turns: [][]provider.StreamPart{
		{toolCallPart("tc1", "write", `{}`)},
		{textPart("done")},
	}}
	executed := false
	tools := tool.NewRegistry()
	tools.Register(fakeTool{name: "write", sideEffect: domain.EffectWrite, exec: func(ctx context.Context, params []byte) (*domain.ToolResult, error) {
		executed = true
		return &domain.ToolResult{Output: "wrote"}, nil
	}})

	cfg := DefaultConfig()
	orch := newTestOrchestrator(store, client, tools, cfg)

	bus := eventbus.New(zerolog.Nop())
	defer bus.Close()
	inputs := eventbus.NewInputChan()
	defer inputs.Close()
	sub, unsub := collectEvents(bus)
	defer unsub()
	go func() {
		for range sub {
		}
	}()

	err := orch.RunUserMessage(context.Background(), "s1", "hi", bus, inputs)
	require.NoError(t, err)

	assert.False(t, executed, "mutating tool must not run in plan mode")
	results := sess.Messages[2].ToolResultBlocks()
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Output, "plan mode")
}

func TestRunUserMessage_ApprovalDeniedSkipsExecution(t *testing.T) {
	sess := &domain.Session{ID: "s1", Provider: string(provider.FormatAnthropic), WorkMode: domain.WorkModeBuild}
	store := newFakeStore(sess)
	client := &scriptedClient{turns: [][]provider.StreamPart{
		{toolCallPart("tc1", "bash", `{"cmd":"ls"}`)},
		{textPart("done")},
	}}
	executed := false
	tools := tool.NewRegistry()
	tools.Register(fakeTool{name: "bash", sideEffect: domain.EffectExec, exec: func(ctx context.Context, params []byte) (*domain.ToolResult, error) {
		executed = true
		return &domain.ToolResult{Output: "ran"}, nil
	}})

	cfg := DefaultConfig()
	cfg.ApprovalRequired = map[string]bool{"bash": true}
	cfg.MutatingTools = map[string]bool{}
	orch := newTestOrchestrator(store, client, tools, cfg)

	bus := eventbus.New(zerolog.Nop())
	defer bus.Close()
	inputs := eventbus.NewInputChan()
	defer inputs.Close()
	sub, unsub := collectEvents(bus)
	defer unsub()

	var gotApprovalRequest bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range sub {
			if evt.Type == domain.EventToolApprovalRequired && evt.ToolCallID == "tc1" {
				gotApprovalRequest = true
				inputs.Send(domain.LoopInput{Type: domain.InputToolApproval, ToolCallID: "tc1", Approved: false})
			}
		}
	}()

	err := orch.RunUserMessage(context.Background(), "s1", "hi", bus, inputs)
	require.NoError(t, err)
	bus.Close()
	<-done

	assert.True(t, gotApprovalRequest)
	assert.False(t, executed)
	results := sess.Messages[2].ToolResultBlocks()
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Output, "denied")
}

func TestRunUserMessage_ApprovalGrantedExecutes(t *testing.T) {
	sess := &domain.Session{ID: "s1", Provider: string(provider.FormatAnthropic), WorkMode: domain.WorkModeBuild}
	store := newFakeStore(sess)
	client := &scriptedClient{turns: [][]provider.StreamPart{
		{toolCallPart("tc1", "bash", `{"cmd":"ls"}`)},
		{textPart("done")},
	}}
	executed := false
	tools := tool.NewRegistry()
	tools.Register(fakeTool{name: "bash", sideEffect: domain.EffectExec, exec: func(ctx context.Context, params []byte) (*domain.ToolResult, error) {
		executed = true
		return &domain.ToolResult{Output: "ran"}, nil
	}})

	cfg := DefaultConfig()
	cfg.ApprovalRequired = map[string]bool{"bash": true}
	orch := newTestOrchestrator(store, client, tools, cfg)

	bus := eventbus.New(zerolog.Nop())
	defer bus.Close()
	inputs := eventbus.NewInputChan()
	defer inputs.Close()
	sub, unsub := collectEvents(bus)
	defer unsub()
	go func() {
		for evt := range sub {
			if evt.Type == domain.EventToolApprovalRequired && evt.ToolCallID == "tc1" {
				inputs.Send(domain.LoopInput{Type: domain.InputToolApproval, ToolCallID: "tc1", Approved: true})
			}
		}
	}()

	err := orch.RunUserMessage(context.Background(), "s1", "hi", bus, inputs)
	require.NoError(t, err)
	assert.True(t, executed)
	results := sess.Messages[2].ToolResultBlocks()
	require.Len(t, results, 1)
	assert.False(t, results[0].IsError)
	assert.Equal(t, "ran", results[0].Output)
}

func TestRunUserMessage_CancelDuringApprovalWait(t *testing.T) {
	sess := &domain.Session{ID: "s1", Provider: string(provider.FormatAnthropic), WorkMode: domain.WorkModeBuild}
	store := newFakeStore(sess)
	client := &scriptedClient{turns: [][]provider.StreamPart{
		{toolCallPart("tc1", "bash", `{}`)},
	}}
	tools := tool.NewRegistry()
	tools.Register(fakeTool{name: "bash", sideEffect: domain.EffectExec})

	cfg := DefaultConfig()
	cfg.ApprovalRequired = map[string]bool{"bash": true}
	orch := newTestOrchestrator(store, client, tools, cfg)

	bus := eventbus.New(zerolog.Nop())
	defer bus.Close()
	inputs := eventbus.NewInputChan()
	defer inputs.Close()
	sub, unsub := collectEvents(bus)
	defer unsub()

	var events []domain.LoopEvent
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range sub {
			events = append(events, evt)
			if evt.Type == domain.EventToolApprovalRequired {
				inputs.Send(domain.LoopInput{Type: domain.InputCancel})
			}
		}
	}()

	err := orch.RunUserMessage(context.Background(), "s1", "hi", bus, inputs)
	require.NoError(t, err)
	bus.Close()
	<-done

	last := events[len(events)-1]
	assert.Equal(t, domain.EventFinished, last.Type, "cancellation must still end in Finished, never Error")
	results := sess.Messages[2].ToolResultBlocks()
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Output, "cancelled")
}

func TestRunUserMessage_StuckDetectionEmitsError(t *testing.T) {
	sess := &domain.Session{ID: "s1", Provider: string(provider.FormatAnthropic), WorkMode: domain.WorkModeBuild}
	store := newFakeStore(sess)
	client := &scriptedClient{
		turns: [][]provider.StreamPart{{}},
		loop:  true,
	}
	cfg := DefaultConfig()
	cfg.MaxStuckTurns = 2
	cfg.MaxIterations = 10
	orch := newTestOrchestrator(store, client, tool.NewRegistry(), cfg)

	bus := eventbus.New(zerolog.Nop())
	defer bus.Close()
	inputs := eventbus.NewInputChan()
	defer inputs.Close()
	sub, unsub := collectEvents(bus)
	defer unsub()

	var events []domain.LoopEvent
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range sub {
			events = append(events, evt)
		}
	}()

	err := orch.RunUserMessage(context.Background(), "s1", "hi", bus, inputs)
	require.Error(t, err)
	bus.Close()
	<-done

	last := events[len(events)-1]
	assert.Equal(t, domain.EventError, last.Type)
	for _, evt := range events {
		assert.NotEqual(t, domain.EventFinished, evt.Type, "stuck detection must end in Error, never Finished")
	}
}

func TestRunUserMessage_MaxIterationsEmitsError(t *testing.T) {
	sess := &domain.Session{ID: "s1", Provider: string(provider.FormatAnthropic), WorkMode: domain.WorkModeBuild}
	store := newFakeStore(sess)
	tools := tool.NewRegistry()
	tools.Register(fakeTool{name: "echo", sideEffect: domain.EffectRead})
	client := &scriptedClient{
		turns: [][]provider.StreamPart{{toolCallPart("tc", "echo", `{}`)}},
		loop:  true,
	}
	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	cfg.MaxStuckTurns = 100
	orch := newTestOrchestrator(store, client, tools, cfg)

	bus := eventbus.New(zerolog.Nop())
	defer bus.Close()
	inputs := eventbus.NewInputChan()
	defer inputs.Close()
	sub, unsub := collectEvents(bus)
	defer unsub()
	go func() {
		for range sub {
		}
	}()

	err := orch.RunUserMessage(context.Background(), "s1", "hi", bus, inputs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max iterations")
}

func TestRunUserMessage_AskUserWaitsForResponse(t *testing.T) {
	sess := &domain.Session{ID: "s1", Provider: string(provider.FormatAnthropic), WorkMode: domain.WorkModeBuild}
	store := newFakeStore(sess)
	client := &scriptedClient{turns: [][]provider.StreamPart{
		{toolCallPart("tc1", "ask_user", `{"question":"which color?"}`)},
		{textPart("thanks, noted")},
	}}
	tools := tool.NewRegistry()
	tools.Register(fakeUIHandledTool{fakeTool{name: "ask_user"}})

	cfg := DefaultConfig()
	orch := newTestOrchestrator(store, client, tools, cfg)

	bus := eventbus.New(zerolog.Nop())
	defer bus.Close()
	inputs := eventbus.NewInputChan()
	defer inputs.Close()
	sub, unsub := collectEvents(bus)
	defer unsub()

	var question string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range sub {
			if evt.Type == domain.EventAwaitingInput {
				question = evt.Message
				inputs.Send(domain.LoopInput{Type: domain.InputUserResponse, ToolCallID: "tc1", Response: "blue"})
			}
		}
	}()

	err := orch.RunUserMessage(context.Background(), "s1", "hi", bus, inputs)
	require.NoError(t, err)
	bus.Close()
	<-done

	assert.Equal(t, "which color?", question)
	results := sess.Messages[2].ToolResultBlocks()
	require.Len(t, results, 1)
	assert.Equal(t, "blue", results[0].Output)
}

func TestRunUserMessage_EnterPlanModeSynchronous(t *testing.T) {
	sess := &domain.Session{ID: "s1", Provider: string(provider.FormatAnthropic), WorkMode: domain.WorkModeBuild}
	store := newFakeStore(sess)
	client := &scriptedClient{turns: [][]provider.StreamPart{
		{toolCallPart("tc1", "enter_plan_mode", `{}`)},
		{textPart("ok, planning")},
	}}
	tools := tool.NewRegistry()
	tools.Register(fakeUIHandledTool{fakeTool{name: "enter_plan_mode"}})

	cfg := DefaultConfig()
	orch := newTestOrchestrator(store, client, tools, cfg)

	bus := eventbus.New(zerolog.Nop())
	defer bus.Close()
	inputs := eventbus.NewInputChan()
	defer inputs.Close()
	sub, unsub := collectEvents(bus)
	defer unsub()

	var gotModeChange bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range sub {
			if evt.Type == domain.EventModeChange {
				gotModeChange = true
				assert.Equal(t, domain.WorkModePlan, evt.Mode)
			}
		}
	}()

	err := orch.RunUserMessage(context.Background(), "s1", "hi", bus, inputs)
	require.NoError(t, err)
	bus.Close()
	<-done

	assert.True(t, gotModeChange)
	assert.Equal(t, domain.WorkModePlan, sess.WorkMode)
}

func TestRunUserMessage_InactivityTimeoutSurfacesError(t *testing.T) {
	sess := &domain.Session{ID: "s1", Provider: string(provider.FormatAnthropic), WorkMode: domain.WorkModeBuild}
	store := newFakeStore(sess)
	client := &scriptedClient{hang: true} // never sends a part, simulating a provider gone silent
	cfg := DefaultConfig()
	cfg.InactivityTimeout = 20 * time.Millisecond
	orch := newTestOrchestrator(store, client, tool.NewRegistry(), cfg)

	bus := eventbus.New(zerolog.Nop())
	defer bus.Close()
	inputs := eventbus.NewInputChan()
	defer inputs.Close()
	sub, unsub := collectEvents(bus)
	defer unsub()
	go func() {
		for range sub {
		}
	}()

	err := orch.RunUserMessage(context.Background(), "s1", "hi", bus, inputs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inactivity timeout")
}
