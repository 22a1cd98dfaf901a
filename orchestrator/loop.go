package orchestrator

import (
	"context"
	"fmt"

	"github.com/sidecore/agentcore/domain"
	"github.com/sidecore/agentcore/eventbus"
	"github.com/sidecore/agentcore/provider"
)

// RunUserMessage drives spec.md §4.4's full state machine for a single
// user message: Pending (append + persist), then repeated
// Streaming/PostStream/DispatchingTools/TurnBoundary cycles until the
// model stops requesting tools, the loop gets cancelled, or it is
// judged stuck. Exactly one of Finished or Error is published before
// this returns (spec.md §7's terminal-event guarantee). Only one
// RunUserMessage call may be in flight per session at a time; the
// caller (a front-end adapter) is responsible for that serialization.
func (o *Orchestrator) RunUserMessage(ctx context.Context, sessionID string, userText string, bus *eventbus.Bus, inputs *eventbus.InputChan) error {
	sess, err := o.Store.GetSession(ctx, sessionID)
	if err != nil {
		bus.Publish(domain.LoopEvent{Type: domain.EventError, SessionID: sessionID, Message: err.Error()})
		return err
	}

	userMsg := domain.Message{Role: domain.RoleUser, Content: []domain.ContentBlock{{Type: domain.ContentText, Text: userText}}}
	sess.Messages = append(sess.Messages, userMsg)
	if err := o.Store.AppendMessages(ctx, sess.ID, []domain.Message{userMsg}); err != nil {
		bus.Publish(domain.LoopEvent{Type: domain.EventError, SessionID: sess.ID, Message: err.Error()})
		return err
	}

	router := newInputRouter(inputs)
	_, err = o.runTurns(ctx, sess, bus, router)
	return err
}

// runTurns is the shared inner loop used both by RunUserMessage (a
// persisted, top-level session) and by the explore/build sub-agent
// runner (an ephemeral in-memory session with a noopStore). It returns
// the last non-empty assistant text produced, which is all a sub-agent
// caller needs back.
func (o *Orchestrator) runTurns(ctx context.Context, sess *domain.Session, bus *eventbus.Bus, router *inputRouter) (string, error) {
	var lastText string
	stuckStreak := 0
	maxIter := o.Config.MaxIterations
	if maxIter <= 0 {
		maxIter = 50
	}

	for iter := 0; iter < maxIter; iter++ {
		if cancelled, err := o.checkCancel(ctx, sess, bus, router); cancelled {
			return lastText, err
		}

		client, err := o.Providers.Lookup(provider.Format(sess.Provider))
		if err != nil {
			bus.Publish(domain.LoopEvent{Type: domain.EventError, SessionID: sess.ID, Message: err.Error()})
			return lastText, err
		}

		opts := provider.Options{
			Secrets: o.Secrets,
			Params: provider.Params{
				Messages:        sess.Messages,
				Tools:           o.Tools.Definitions(),
				ToolChoice:      domain.ToolChoice{Type: domain.ToolChoiceAuto},
				Provider:        provider.Format(sess.Provider),
				Model:           sess.Model,
				MaxTokens:       o.Config.MaxTokens,
				ReasoningEffort: o.Config.ReasoningEffort,
			},
		}

		acc, err := o.streamOneTurn(ctx, sess.ID, client, opts, bus)
		if err != nil {
			return lastText, err
		}

		if cancelled, cerr := o.checkCancel(ctx, sess, bus, router); cancelled {
			return lastText, cerr
		}

		assistantMsg := buildAssistantMessage(acc)
		sess.Messages = append(sess.Messages, assistantMsg)
		sess.Usage.Add(acc.usage)
		if err := o.Store.AppendMessages(ctx, sess.ID, []domain.Message{assistantMsg}); err != nil {
			bus.Publish(domain.LoopEvent{Type: domain.EventError, SessionID: sess.ID, Message: err.Error()})
			return lastText, err
		}
		if err := o.Store.UpdateUsage(ctx, sess.ID, sess.Usage); err != nil {
			o.Log.Warn().Err(err).Msg("failed to persist usage")
		}

		if acc.text != "" {
			lastText = acc.text
			o.maybeGenerateTitle(ctx, sess, bus)
		}

		if acc.empty() {
			stuckStreak++
		} else {
			stuckStreak = 0
		}
		if stuckStreak >= o.Config.MaxStuckTurns {
			bus.Publish(domain.LoopEvent{Type: domain.EventError, SessionID: sess.ID, Message: "stuck"})
			return lastText, fmt.Errorf("stuck: %d consecutive empty turns", stuckStreak)
		}

		if acc.empty() {
			// an empty turn is retried until stuck detection ends the loop
			bus.Publish(domain.LoopEvent{Type: domain.EventTurnComplete, SessionID: sess.ID, HasMore: true})
			continue
		}

		if len(acc.toolCalls) == 0 {
			bus.Publish(domain.LoopEvent{Type: domain.EventTurnComplete, SessionID: sess.ID, HasMore: false})
			bus.Publish(domain.LoopEvent{Type: domain.EventFinished, SessionID: sess.ID})
			return lastText, nil
		}

		results, toolsCancelled := o.dispatchTools(ctx, sess, bus, router, acc.toolCalls)
		toolResultMsg := domain.Message{Role: domain.RoleUser, Content: results}
		sess.Messages = append(sess.Messages, toolResultMsg)
		if err := o.Store.AppendMessages(ctx, sess.ID, []domain.Message{toolResultMsg}); err != nil {
			bus.Publish(domain.LoopEvent{Type: domain.EventError, SessionID: sess.ID, Message: err.Error()})
			return lastText, err
		}

		if toolsCancelled {
			bus.Publish(domain.LoopEvent{Type: domain.EventFinished, SessionID: sess.ID})
			return lastText, nil
		}

		bus.Publish(domain.LoopEvent{Type: domain.EventTurnComplete, SessionID: sess.ID, HasMore: true})
	}

	bus.Publish(domain.LoopEvent{Type: domain.EventError, SessionID: sess.ID, Message: "max iterations reached"})
	return lastText, fmt.Errorf("max iterations reached")
}

// streamOneTurn runs the Streaming/PostStream states: the provider
// client's Stream call and the aggregator run concurrently over the
// same channel. The goroutine that calls Stream closes partsChan once
// Stream returns, since the Client contract leaves closing it to the
// caller.
func (o *Orchestrator) streamOneTurn(ctx context.Context, sessionID string, client provider.Client, opts provider.Options, bus *eventbus.Bus) (*turnAccumulator, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	parts := make(chan provider.StreamPart, 64)
	streamErr := make(chan error, 1)
	go func() {
		defer close(parts)
		_, err := client.Stream(streamCtx, opts, parts)
		streamErr <- err
	}()

	acc, aggErr := aggregate(sessionID, parts, bus, o.Config.InactivityTimeout)
	// aggregate can return before the provider goroutine does (inactivity
	// timeout fired independently of ctx); cancel streamCtx so that
	// goroutine unblocks instead of leaking, then drain its result.
	cancel()
	err := <-streamErr
	if aggErr != nil {
		return acc, aggErr
	}
	if err != nil {
		bus.Publish(domain.LoopEvent{Type: domain.EventError, SessionID: sessionID, Message: err.Error()})
		return acc, err
	}
	return acc, nil
}

// checkCancel synthesizes a "cancelled" tool-result for every tool-use
// left unresolved by the previous turn, preserving the tool-use/tool-
// result pairing invariant (spec.md §3, §7) before the loop unwinds.
func (o *Orchestrator) checkCancel(ctx context.Context, sess *domain.Session, bus *eventbus.Bus, router *inputRouter) (bool, error) {
	select {
	case <-router.cancelled():
	default:
		return false, nil
	}

	pending := sess.PendingToolUse()
	if len(pending) > 0 {
		blocks := make([]domain.ContentBlock, len(pending))
		for i, tu := range pending {
			blocks[i] = resultBlock(tu.ID, domain.ErrorResult("cancelled"))
		}
		msg := domain.Message{Role: domain.RoleUser, Content: blocks}
		sess.Messages = append(sess.Messages, msg)
		if err := o.Store.AppendMessages(ctx, sess.ID, []domain.Message{msg}); err != nil {
			o.Log.Warn().Err(err).Msg("failed to persist cancellation tool-results")
		}
	}
	bus.Publish(domain.LoopEvent{Type: domain.EventFinished, SessionID: sess.ID})
	return true, nil
}
