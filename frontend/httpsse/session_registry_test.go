package httpsse

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSessionRegistry_GetOrCreate_ReturnsSameConnForSameID(t *testing.T) {
	r := newSessionRegistry()
	a := r.getOrCreate("sess-1", zerolog.Nop())
	b := r.getOrCreate("sess-1", zerolog.Nop())
	assert.Same(t, a, b)
}

func TestSessionRegistry_GetOrCreate_DistinctIDsGetDistinctConns(t *testing.T) {
	r := newSessionRegistry()
	a := r.getOrCreate("sess-1", zerolog.Nop())
	b := r.getOrCreate("sess-2", zerolog.Nop())
	assert.NotSame(t, a, b)
}

func TestSessionRegistry_Close_CancelsContextAndRemovesEntry(t *testing.T) {
	r := newSessionRegistry()
	sc := r.getOrCreate("sess-1", zerolog.Nop())

	r.close("sess-1")

	select {
	case <-sc.ctx.Done():
	default:
		t.Fatal("close must cancel the session's context")
	}

	again := r.getOrCreate("sess-1", zerolog.Nop())
	assert.NotSame(t, sc, again, "closing must remove the entry so a later lookup creates a fresh one")
}

func TestSessionRegistry_Close_UnknownIDIsNoop(t *testing.T) {
	r := newSessionRegistry()
	assert.NotPanics(t, func() { r.close("never-created") })
}
