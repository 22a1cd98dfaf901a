// Package httpsse implements the HTTP/SSE front-end of spec.md §6: routes
// create and fetch a session, start a turn from a user message (answered
// with 202 while the turn runs in the background), stream the session's
// LoopEvents as SSE frames, and accept LoopInputs (approvals, responses,
// cancel).
// Grounded on api/api.go's gin.Engine/route-group shape and api/cors.go's
// origin allowlist, trimmed to the one conversational resource this core
// exposes (no workspaces, tasks, or websocket fan-out: the event bus
// already is the fan-out point).
package httpsse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/sidecore/agentcore/domain"
	"github.com/sidecore/agentcore/frontend"
)

// Server wires an Orchestrator and a SessionStore into a gin.Engine.
type Server struct {
	orch     frontend.Orchestrator
	store    frontend.SessionStore
	log      zerolog.Logger
	sessions *sessionRegistry
}

// NewServer builds the engine-less Server; pass it to NewEngine for a
// ready-to-run gin.Engine, or register its *Handler methods on an engine
// of your own.
func NewServer(orch frontend.Orchestrator, store frontend.SessionStore, log zerolog.Logger) *Server {
	return &Server{orch: orch, store: store, log: log, sessions: newSessionRegistry()}
}

// NewEngine returns a fully routed gin.Engine, grounded on
// api.DefineRoutes's gin.Default()+route-group pattern.
func NewEngine(s *Server, allowedOrigins *AllowedOrigins) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	r.ForwardedByClientIP = true
	r.SetTrustedProxies(nil)
	r.Use(corsMiddleware(allowedOrigins))

	v1 := r.Group("/api/v1/sessions")
	v1.POST("", s.CreateSessionHandler)
	v1.GET("/:id", s.GetSessionHandler)
	v1.POST("/:id/messages", s.PostMessageHandler)
	v1.GET("/:id/events", s.EventsHandler)
	v1.POST("/:id/input", s.InputHandler)
	return r
}

func (s *Server) CreateSessionHandler(c *gin.Context) {
	var body struct {
		WorkingDir string `json:"workingDir"`
		Model      string `json:"model"`
		Provider   string `json:"provider"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess := &domain.Session{
		ID:         newSessionID(),
		WorkingDir: body.WorkingDir,
		Model:      body.Model,
		Provider:   body.Provider,
		WorkMode:   domain.WorkModeBuild,
	}
	if err := s.store.CreateSession(c.Request.Context(), sess); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (s *Server) GetSessionHandler(c *gin.Context) {
	sess, err := s.store.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// PostMessageHandler appends a user message and kicks off a turn loop in
// the background; progress is observed via EventsHandler's SSE stream,
// not this response (spec.md §6: the event channel is logically separate
// from the request that started the turn).
func (s *Server) PostMessageHandler(c *gin.Context) {
	sessionID := c.Param("id")
	var body struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sc := s.sessions.getOrCreate(sessionID, s.log)
	go func() {
		if err := s.orch.RunUserMessage(sc.ctx, sessionID, body.Text, sc.bus, sc.inputs); err != nil {
			s.log.Warn().Err(err).Str("session", sessionID).Msg("turn ended with error")
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "running"})
}

// EventsHandler streams LoopEvents as SSE frames: "event: <variant>" plus
// a JSON data line per spec.md §6.
func (s *Server) EventsHandler(c *gin.Context) {
	sessionID := c.Param("id")
	sc := s.sessions.getOrCreate(sessionID, s.log)
	sub, unsubscribe := sc.bus.Subscribe()
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case evt, ok := <-sub:
			if !ok {
				return false
			}
			data, err := json.Marshal(evt)
			if err != nil {
				return true
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
			return true
		case <-c.Request.Context().Done():
			return false
		case <-time.After(30 * time.Second):
			fmt.Fprint(w, ": keepalive\n\n")
			return true
		}
	})
}

// InputHandler accepts a LoopInput over the session's unbounded input
// channel (spec.md §4.5/§6).
func (s *Server) InputHandler(c *gin.Context) {
	sessionID := c.Param("id")
	var in domain.LoopInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sc := s.sessions.getOrCreate(sessionID, s.log)
	sc.inputs.Send(in)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func newSessionID() string {
	return fmt.Sprintf("s_%d", time.Now().UnixNano())
}
