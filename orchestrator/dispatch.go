package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/sidecore/agentcore/domain"
	"github.com/sidecore/agentcore/eventbus"
)

// dispatchTools implements spec.md §4.4's DispatchingTools state: for
// each tool call in call-order, gate it (UI-handled interception,
// plan-mode block, approval requirement) or hand it to the concurrent
// executor, then return one tool-result content block per call in the
// original order (spec.md §8 property 8). The returned bool reports
// whether a Cancel input was observed while gating, in which case every
// call not yet executed resolves to a "cancelled" result rather than
// running (spec.md §7). A Cancel that arrives while executeAll runs
// does not interrupt the tools already executing.
func (o *Orchestrator) dispatchTools(ctx context.Context, sess *domain.Session, bus *eventbus.Bus, router *inputRouter, calls []domain.ToolUse) ([]domain.ContentBlock, bool) {
	results := make([]domain.ContentBlock, len(calls))
	cancelled := false
	var execIdx []int

	for i, tc := range calls {
		if cancelled {
			results[i] = resultBlock(tc.ID, domain.ErrorResult("cancelled"))
			continue
		}

		t, found := o.Tools.Lookup(tc.Name)
		if !found {
			results[i] = resultBlock(tc.ID, domain.ErrorResult(fmt.Sprintf("unknown tool %q", tc.Name)))
			continue
		}

		switch {
		case isUIHandled(t):
			block, wasCancelled := o.handleUIHandled(ctx, sess, bus, router, tc)
			results[i] = block
			cancelled = cancelled || wasCancelled
		case sess.WorkMode == domain.WorkModePlan && o.Config.MutatingTools[tc.Name]:
			results[i] = resultBlock(tc.ID, domain.ErrorResult(fmt.Sprintf("tool %q disabled in plan mode", tc.Name)))
		case o.Config.ApprovalRequired[tc.Name]:
			block, wasCancelled := o.handleApproval(ctx, bus, router, tc)
			results[i] = block
			cancelled = cancelled || wasCancelled
		default:
			execIdx = append(execIdx, i)
		}
	}

	if len(execIdx) > 0 {
		if cancelled {
			for _, i := range execIdx {
				results[i] = resultBlock(calls[i].ID, domain.ErrorResult("cancelled"))
			}
		} else {
			o.executeAll(ctx, sess, bus, calls, execIdx, results)
		}
	}
	return results, cancelled
}

func isUIHandled(t domain.Tool) bool {
	_, ok := t.(domain.UIHandledTool)
	return ok
}

func resultBlock(toolUseID string, r *domain.ToolResult) domain.ContentBlock {
	return domain.ContentBlock{
		Type: domain.ContentToolResult,
		ToolResult: &domain.ToolResultContent{
			ToolUseID: toolUseID,
			Output:    r.Output,
			IsError:   r.IsError,
			Warnings:  r.Warnings,
			Diff:      r.Diff,
			Files:     r.Files,
		},
	}
}

// handleApproval implements the approval-required path of spec.md
// §4.4/§8 scenario C: emit ToolApprovalRequired, park for a matching
// ToolApproval input, then either deny (synthesize an error result) or
// approve and execute.
func (o *Orchestrator) handleApproval(ctx context.Context, bus *eventbus.Bus, router *inputRouter, tc domain.ToolUse) (domain.ContentBlock, bool) {
	bus.Publish(domain.LoopEvent{Type: domain.EventToolApprovalRequired, SessionID: "", ToolCallID: tc.ID, ToolName: tc.Name})
	in, cancelled := waitForInput(ctx, router, tc.ID, domain.InputToolApproval)
	if cancelled {
		return resultBlock(tc.ID, domain.ErrorResult("cancelled")), true
	}
	if !in.Approved {
		bus.Publish(domain.LoopEvent{Type: domain.EventToolDenied, ToolCallID: tc.ID, ToolName: tc.Name})
		return resultBlock(tc.ID, domain.ErrorResult("denied by user")), false
	}
	bus.Publish(domain.LoopEvent{Type: domain.EventToolApproved, ToolCallID: tc.ID, ToolName: tc.Name})
	return o.executeOne(ctx, nil, bus, tc), false
}

// handleUIHandled dispatches the fixed set of orchestrator-intercepted
// tools (spec.md §4.3): ask_user parks for a human reply; enter_plan_mode,
// set_work_mode and task_* apply synchronously and synthesize their
// result without any round trip, since nothing needs a human answer to
// proceed (spec.md §4.4's "Work-mode change tool" paragraph).
func (o *Orchestrator) handleUIHandled(ctx context.Context, sess *domain.Session, bus *eventbus.Bus, router *inputRouter, tc domain.ToolUse) (domain.ContentBlock, bool) {
	switch {
	case tc.Name == "ask_user":
		var p struct {
			Question string `json:"question"`
		}
		_ = json.Unmarshal(tc.Arguments, &p)
		bus.Publish(domain.LoopEvent{Type: domain.EventAwaitingInput, SessionID: sess.ID, ToolCallID: tc.ID, ToolName: tc.Name, Message: p.Question})
		in, cancelled := waitForInput(ctx, router, tc.ID, domain.InputUserResponse)
		if cancelled {
			return resultBlock(tc.ID, domain.ErrorResult("cancelled")), true
		}
		return resultBlock(tc.ID, &domain.ToolResult{Output: in.Response}), false

	case tc.Name == "enter_plan_mode":
		sess.WorkMode = domain.WorkModePlan
		if err := o.Store.SetWorkMode(ctx, sess.ID, domain.WorkModePlan); err != nil {
			o.Log.Warn().Err(err).Msg("failed to persist plan-mode transition")
		}
		bus.Publish(domain.LoopEvent{Type: domain.EventModeChange, SessionID: sess.ID, Mode: domain.WorkModePlan})
		return resultBlock(tc.ID, &domain.ToolResult{Output: `{"mode":"plan"}`}), false

	case tc.Name == "set_work_mode":
		var p struct {
			Mode string `json:"mode"`
		}
		if err := json.Unmarshal(tc.Arguments, &p); err != nil || (p.Mode != string(domain.WorkModeBuild) && p.Mode != string(domain.WorkModePlan)) {
			return resultBlock(tc.ID, domain.ErrorResult("invalid mode")), false
		}
		mode := domain.WorkMode(p.Mode)
		sess.WorkMode = mode
		if err := o.Store.SetWorkMode(ctx, sess.ID, mode); err != nil {
			o.Log.Warn().Err(err).Msg("failed to persist work-mode change")
		}
		bus.Publish(domain.LoopEvent{Type: domain.EventModeChange, SessionID: sess.ID, Mode: mode})
		return resultBlock(tc.ID, &domain.ToolResult{Output: fmt.Sprintf(`{"mode":%q}`, p.Mode)}), false

	case strings.HasPrefix(tc.Name, "task_"):
		return o.handleTaskUpdate(ctx, sess, bus, tc), false

	default:
		return resultBlock(tc.ID, domain.ErrorResult("unrecognized UI-handled tool "+tc.Name)), false
	}
}

func (o *Orchestrator) handleTaskUpdate(ctx context.Context, sess *domain.Session, bus *eventbus.Bus, tc domain.ToolUse) domain.ContentBlock {
	var p struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(tc.Arguments, &p); err != nil {
		return resultBlock(tc.ID, domain.ErrorResult("invalid parameters: "+err.Error()))
	}
	if err := o.Store.UpdateTaskStatus(ctx, sess.ID, p.TaskID, domain.TaskStatus(p.Status)); err != nil {
		return resultBlock(tc.ID, domain.ErrorResult(err.Error()))
	}
	plan, err := o.Store.GetPlanForSession(ctx, sess.ID)
	if err != nil {
		return resultBlock(tc.ID, &domain.ToolResult{Output: `{"updated":true}`})
	}
	bus.Publish(domain.LoopEvent{Type: domain.EventPlanUpdate, SessionID: sess.ID, Plan: plan})
	if planIsComplete(plan) {
		bus.Publish(domain.LoopEvent{Type: domain.EventPlanComplete, SessionID: sess.ID, Plan: plan})
	}
	return resultBlock(tc.ID, &domain.ToolResult{Output: `{"updated":true}`})
}

func planIsComplete(p *domain.Plan) bool {
	if len(p.Tasks) == 0 {
		return false
	}
	for _, t := range p.Tasks {
		if t.Status != domain.TaskCompleted {
			return false
		}
	}
	return true
}

// waitForInput parks until a LoopInput of the given type matching
// toolCallID arrives, the parent context is cancelled, or a Cancel
// input arrives anywhere on the session's input channel. Delivery is
// demultiplexed by toolCallID through the inputRouter since one physical
// channel carries approvals/responses for whichever call is currently
// pending (spec.md §4.4's DispatchingTools processes one at a time, but
// nothing stops a second call from racing it).
func waitForInput(ctx context.Context, router *inputRouter, toolCallID string, want domain.LoopInputType) (domain.LoopInput, bool) {
	ch := router.register(toolCallID)
	defer router.unregister(toolCallID)
	for {
		select {
		case <-ctx.Done():
			return domain.LoopInput{}, true
		case <-router.cancelled():
			return domain.LoopInput{}, true
		case in := <-ch:
			if in.Type == want {
				return in, false
			}
		}
	}
}

// executeAll runs every tool call at the given indices concurrently, up
// to o.Config.ToolParallelism, writing each result into results[idx]
// (spec.md §5: "Results are collected and then appended to the session
// in the original call-order").
func (o *Orchestrator) executeAll(ctx context.Context, sess *domain.Session, bus *eventbus.Bus, calls []domain.ToolUse, idx []int, results []domain.ContentBlock) {
	limit := o.Config.ToolParallelism
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for _, i := range idx {
		i := i
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = o.executeOne(ctx, sess, bus, calls[i])
		}()
	}
	wg.Wait()
}

// executeOne runs a single tool through the registry, streaming any
// ToolOutputDelta chunks it produces and emitting ToolExecuting/ToolResult
// around the call (spec.md §4.4).
func (o *Orchestrator) executeOne(ctx context.Context, sess *domain.Session, bus *eventbus.Bus, tc domain.ToolUse) domain.ContentBlock {
	sessionID := ""
	workingDir := ""
	planMode := false
	if sess != nil {
		sessionID = sess.ID
		workingDir = sess.WorkingDir
		planMode = sess.WorkMode == domain.WorkModePlan
	}
	bus.Publish(domain.LoopEvent{Type: domain.EventToolExecuting, SessionID: sessionID, ToolCallID: tc.ID, ToolName: tc.Name})

	t, found := o.Tools.Lookup(tc.Name)
	if !found {
		return resultBlock(tc.ID, domain.ErrorResult(fmt.Sprintf("unknown tool %q", tc.Name)))
	}

	outCh := make(chan string, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for chunk := range outCh {
			bus.Publish(domain.LoopEvent{Type: domain.EventToolOutputDelta, SessionID: sessionID, ToolCallID: tc.ID, Delta: chunk})
		}
	}()

	tctx := &domain.ToolContext{
		Context:      ctx,
		WorkingDir:   workingDir,
		SandboxRoot:  o.sandboxRoot(sess),
		PlanMode:     planMode,
		OutputChan:   outCh,
		CancelSignal: ctx.Done(),
		Registry:     o.Tools,
		SubAgent:     o.subAgentRunner(),
	}

	result, err := t.Execute(ctx, tc.Arguments, tctx)
	close(outCh)
	<-done

	if err != nil {
		result = domain.ErrorResult(err.Error())
	}
	if result == nil {
		result = &domain.ToolResult{Output: "{}"}
	}
	block := resultBlock(tc.ID, result)
	bus.Publish(domain.LoopEvent{Type: domain.EventToolResult, SessionID: sessionID, ToolCallID: tc.ID, ToolResult: result})
	return block
}

func (o *Orchestrator) sandboxRoot(sess *domain.Session) string {
	if sess == nil {
		return ""
	}
	return sess.WorkingDir
}
