// Package frontend defines the common contract every front-end transport
// (HTTP/SSE, agent-client-protocol stdio, terminal) implements on top of
// an orchestrator.Orchestrator, per spec.md §6's "External interfaces".
// Grounded on the shape of api.Controller in the teacher: a thin struct
// holding the accessors a transport needs, with one constructor per
// transport rather than one monolithic server.
package frontend

import (
	"context"

	"github.com/sidecore/agentcore/domain"
	"github.com/sidecore/agentcore/eventbus"
	"github.com/sidecore/agentcore/orchestrator"
)

// Orchestrator is the surface every adapter drives a session through.
// Kept as an interface so httpsse/acp/term can be tested against a fake
// without spinning up sqlite or a provider registry.
type Orchestrator interface {
	RunUserMessage(ctx context.Context, sessionID string, userText string, bus *eventbus.Bus, inputs *eventbus.InputChan) error
}

var _ Orchestrator = (*orchestrator.Orchestrator)(nil)

// SessionStore is the subset of orchestrator.Store an adapter needs
// directly, for session creation/listing endpoints that never go through
// a turn.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	CreateSession(ctx context.Context, sess *domain.Session) error
}
