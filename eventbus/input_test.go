package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidecore/agentcore/domain"
)

func TestInputChan_FIFOOrder(t *testing.T) {
	ic := NewInputChan()
	defer ic.Close()

	ic.Send(domain.LoopInput{Type: domain.InputToolApproval, ToolCallID: "1"})
	ic.Send(domain.LoopInput{Type: domain.InputToolApproval, ToolCallID: "2"})
	ic.Send(domain.LoopInput{Type: domain.InputToolApproval, ToolCallID: "3"})

	for _, want := range []string{"1", "2", "3"} {
		select {
		case got := <-ic.Recv():
			assert.Equal(t, want, got.ToolCallID)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for input %s", want)
		}
	}
}

func TestInputChan_SendNeverBlocksUnderBackpressure(t *testing.T) {
	ic := NewInputChan()
	defer ic.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10_000; i++ {
			ic.Send(domain.LoopInput{Type: domain.InputCancel})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked despite nothing draining Recv")
	}

	drained := 0
	for drained < 10_000 {
		select {
		case <-ic.Recv():
			drained++
		case <-time.After(2 * time.Second):
			t.Fatalf("only drained %d of 10000 inputs", drained)
		}
	}
}

func TestInputChan_CloseClosesRecv(t *testing.T) {
	ic := NewInputChan()
	ic.Send(domain.LoopInput{Type: domain.InputCancel})
	ic.Close()

	_, ok := <-ic.Recv()
	require.True(t, ok, "queued input should still be delivered after Close")

	_, ok = <-ic.Recv()
	assert.False(t, ok, "Recv channel should close once the queue drains")
}
