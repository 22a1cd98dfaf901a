// Package term is the minimal terminal front-end: it drives one session
// to completion, printing LoopEvents as plain lines to an io.Writer. The
// teacher's `tui/` is a full bubbletea rendering stack (scrollbars,
// themes, markdown layout, popup keyboard handlers) explicitly out of
// scope per spec.md §1; this is intentionally the thinnest possible
// consumer of the same event protocol the HTTP/SSE and ACP front-ends use.
package term

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/sidecore/agentcore/domain"
	"github.com/sidecore/agentcore/eventbus"
	"github.com/sidecore/agentcore/frontend"
)

// Run appends userText to sessionID and blocks until the turn loop emits
// Finished or Error, printing every event to w.
func Run(ctx context.Context, orch frontend.Orchestrator, sessionID, userText string, w io.Writer) error {
	bus := eventbus.New(zerolog.Nop())
	defer bus.Close()
	inputs := eventbus.NewInputChan()
	defer inputs.Close()

	sub, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bw := bufio.NewWriter(w)
	defer bw.Flush()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range sub {
			printEvent(bw, evt)
			bw.Flush()
			if evt.Type == domain.EventFinished || evt.Type == domain.EventError {
				return
			}
		}
	}()

	err := orch.RunUserMessage(ctx, sessionID, userText, bus, inputs)
	<-done
	return err
}

func printEvent(w io.Writer, evt domain.LoopEvent) {
	switch evt.Type {
	case domain.EventTextDelta, domain.EventTextDeltaCitations:
		fmt.Fprint(w, evt.Delta)
	case domain.EventThinkingDelta:
		// thinking is not printed to the terminal by default
	case domain.EventToolCallComplete:
		fmt.Fprintf(w, "\n[tool] %s(%s)\n", evt.ToolName, evt.ToolArguments)
	case domain.EventToolResult:
		if evt.ToolResult != nil {
			fmt.Fprintf(w, "[result] %s\n", evt.ToolResult.Output)
		}
	case domain.EventAwaitingInput:
		fmt.Fprintf(w, "\n[waiting] %s\n", evt.Message)
	case domain.EventToolApprovalRequired:
		fmt.Fprintf(w, "\n[approval needed] %s\n", evt.ToolName)
	case domain.EventModeChange:
		fmt.Fprintf(w, "\n[mode] %s\n", evt.Mode)
	case domain.EventError:
		fmt.Fprintf(w, "\n[error] %s\n", evt.Message)
	case domain.EventFinished:
		fmt.Fprint(w, "\n")
	}
}
