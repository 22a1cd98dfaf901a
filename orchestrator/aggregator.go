package orchestrator

import (
	"fmt"
	"time"

	"github.com/sidecore/agentcore/domain"
	"github.com/sidecore/agentcore/eventbus"
	"github.com/sidecore/agentcore/provider"
)

// aggregate implements the stream aggregator of spec.md §4.1/§2: it
// consumes StreamParts from one turn, emits the corresponding LoopEvents
// on the bus in the order spec.md §5 requires (all deltas for a
// tool-call's arguments precede that tool's ToolCallComplete), and
// accumulates a turnAccumulator. It enforces the 120s inactivity
// timeout per spec.md §4.2/§5: if no part arrives within the timeout,
// it returns an error and the caller treats the turn as a provider
// transport error (spec.md §7).
func aggregate(sessionID string, parts <-chan provider.StreamPart, bus *eventbus.Bus, timeout time.Duration) (*turnAccumulator, error) {
	acc := &turnAccumulator{}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Each part is applied on its own, so a ToolCallComplete with no
	// preceding ToolCallStart (a malformed parser output) still records
	// its tool call.
	for {
		timer.Reset(timeout)
		select {
		case part, ok := <-parts:
			if !ok {
				return acc, nil
			}
			applyPart(sessionID, part, acc, bus)
		case <-timer.C:
			bus.Publish(domain.LoopEvent{Type: domain.EventError, SessionID: sessionID, Message: "stream inactivity timeout"})
			return acc, fmt.Errorf("stream inactivity timeout after %s", timeout)
		}
	}
}

func applyPart(sessionID string, part provider.StreamPart, acc *turnAccumulator, bus *eventbus.Bus) {
	switch part.Type {
	case provider.PartTextDelta:
		acc.text += part.Delta
		bus.Publish(domain.LoopEvent{Type: domain.EventTextDelta, SessionID: sessionID, Delta: part.Delta})
	case provider.PartTextDeltaCitations:
		acc.text += part.Delta
		acc.citations = append(acc.citations, part.Citations...)
		bus.Publish(domain.LoopEvent{Type: domain.EventTextDeltaCitations, SessionID: sessionID, Delta: part.Delta, Citations: part.Citations})
	case provider.PartThinkingDelta:
		acc.thinking += part.Thinking
		bus.Publish(domain.LoopEvent{Type: domain.EventThinkingDelta, SessionID: sessionID, Delta: part.Thinking})
	case provider.PartThinkingComplete:
		if len(part.Signature) > 0 {
			acc.signature = part.Signature
		}
		bus.Publish(domain.LoopEvent{Type: domain.EventThinkingComplete, SessionID: sessionID, Message: acc.thinking, Signature: acc.signature})
	case provider.PartToolCallStart:
		bus.Publish(domain.LoopEvent{Type: domain.EventToolCallStart, SessionID: sessionID, ToolCallID: part.ToolCallID, ToolName: part.ToolName})
	case provider.PartToolCallComplete:
		if part.ToolCall != nil {
			acc.toolCalls = append(acc.toolCalls, *part.ToolCall)
			bus.Publish(domain.LoopEvent{Type: domain.EventToolCallComplete, SessionID: sessionID, ToolCallID: part.ToolCall.ID, ToolName: part.ToolCall.Name, ToolArguments: string(part.ToolCall.Arguments)})
		}
	case provider.PartUsage:
		if part.Usage != nil {
			acc.usage.Add(*part.Usage)
			bus.Publish(domain.LoopEvent{Type: domain.EventUsage, SessionID: sessionID, Usage: part.Usage})
		}
	case provider.PartWebSearchResults:
		bus.Publish(domain.LoopEvent{Type: domain.EventWebSearchResults, SessionID: sessionID, Message: fmt.Sprintf("%d results", len(part.Results))})
	case provider.PartWebFetchResult:
		bus.Publish(domain.LoopEvent{Type: domain.EventWebFetchResult, SessionID: sessionID, Message: part.FetchURL})
	case provider.PartServerToolError:
		bus.Publish(domain.LoopEvent{Type: domain.EventServerToolError, SessionID: sessionID, Message: part.Message})
	case provider.PartError:
		bus.Publish(domain.LoopEvent{Type: domain.EventError, SessionID: sessionID, Message: part.Message})
	}
}

// buildAssistantMessage assembles the single assistant message spec.md
// §4.4's TurnBoundary appends: thinking (if any, preceding any tool-use
// block per spec.md §3's invariant), text, then tool-use blocks in the
// order the model produced them.
func buildAssistantMessage(acc *turnAccumulator) domain.Message {
	msg := domain.Message{Role: domain.RoleAssistant}
	if acc.thinking != "" {
		msg.Content = append(msg.Content, domain.ContentBlock{
			Type:     domain.ContentThinking,
			Thinking: &domain.Thinking{Text: acc.thinking, Signature: acc.signature},
		})
	}
	if acc.text != "" {
		msg.Content = append(msg.Content, domain.ContentBlock{Type: domain.ContentText, Text: acc.text})
	}
	for i := range acc.toolCalls {
		tc := acc.toolCalls[i]
		msg.Content = append(msg.Content, domain.ContentBlock{Type: domain.ContentToolUse, ToolUse: &tc})
	}
	return msg
}
