package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mazeplan.ai/internal/planner/agent"
	"mazeplan.ai/internal/planner/grid"
	"mazeplan.ai/internal/planner/policy"
	"mazeplan.ai/internal/planner/tuning"
	"mazeplan.ai/internal/protocol"
)

const (
	handshakeTimeout = 5 * time.Second
	idleTimeout      = 60 * time.Second
	writeTimeout     = 5 * time.Second
)

// Server runs one planning agent per websocket connection.
type Server struct {
	tuning    tuning.Planner
	validator *protocol.Validator
	sink      agent.Sink
	log       *log.Logger

	upgrader websocket.Upgrader

	// conns and active track live sessions so Shutdown can end their episodes
	// before the sinks close.
	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
	draining bool
	active   sync.WaitGroup

	sessions     atomic.Int64
	decisions    atomic.Uint64
	notConverged atomic.Uint64
	fallbacks    atomic.Uint64
	errs         atomic.Uint64
}

type Metrics struct {
	Sessions     int64  `json:"sessions"`
	Decisions    uint64 `json:"decisions"`
	NotConverged uint64 `json:"not_converged"`
	Fallbacks    uint64 `json:"fallbacks"`
	Errors       uint64 `json:"errors"`
}

func (s *Server) Metrics() Metrics {
	return Metrics{
		Sessions:     s.sessions.Load(),
		Decisions:    s.decisions.Load(),
		NotConverged: s.notConverged.Load(),
		Fallbacks:    s.fallbacks.Load(),
		Errors:       s.errs.Load(),
	}
}

func NewServer(t tuning.Planner, v *protocol.Validator, sink agent.Sink, logger *log.Logger) *Server {
	return &Server{
		tuning:    t,
		validator: v,
		sink:      sink,
		log:       logger,
		conns:     map[*websocket.Conn]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if !s.track(conn) {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
			return
		}
		defer s.untrack(conn)

		sessionID, name := s.handshake(conn)
		if sessionID == "" {
			return
		}
		s.log.Printf("session %s (%s) connected from %s", sessionID, name, r.RemoteAddr)
		s.sessions.Add(1)
		defer s.sessions.Add(-1)

		a := agent.New(s.tuning,
			agent.WithLogger(log.New(s.log.Writer(), fmt.Sprintf("[agent %s] ", name), s.log.Flags())),
			agent.WithSink(s.sink),
		)
		defer func() { a.EndEpisode(s.endReason()) }()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			reply := s.handle(a, msg)
			s.count(reply)
			if err := writeJSON(conn, reply); err != nil {
				break
			}
		}
		s.log.Printf("session %s closed", sessionID)
	}
}

func (s *Server) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	s.conns[conn] = struct{}{}
	s.active.Add(1)
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.active.Done()
}

func (s *Server) endReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return "shutdown"
	}
	return "disconnect"
}

// Shutdown refuses new sessions, closes live ones and waits until their
// episodes have been ended and recorded. http.Server.Shutdown does not reach
// hijacked websocket connections, so call this before closing the sinks.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	for c := range s.conns {
		_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
		_ = c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID, name string) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", ""
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", ""
	}
	if base.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", ""
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", ""
	}
	name = strings.TrimSpace(hello.AgentName)
	if name == "" {
		name = "agent"
	}

	sessionID = uuid.NewString()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		Tuning:          s.tuning,
		TuningDigest:    s.tuning.Digest(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", ""
	}
	return sessionID, name
}

// handle answers one inbound message; every request gets exactly one reply.
func (s *Server) handle(a *agent.Agent, msg []byte) any {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return errorMsg(protocol.ErrProtoBadRequest, "malformed JSON", 0)
	}
	if base.ProtocolVersion != protocol.Version {
		return errorMsg(protocol.ErrProtoBadRequest, "bad protocol_version", 0)
	}
	switch base.Type {
	case protocol.TypeEpisode, protocol.TypeStep, protocol.TypeEpisodeEnd:
	default:
		return errorMsg(protocol.ErrProtoBadRequest, fmt.Sprintf("unexpected message type %q", base.Type), 0)
	}
	if s.validator != nil {
		if err := s.validator.Validate(base.Type, msg); err != nil {
			return errorMsg(protocol.ErrProtoBadRequest, err.Error(), 0)
		}
	}

	switch base.Type {
	case protocol.TypeEpisode:
		var m protocol.EpisodeMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return errorMsg(protocol.ErrProtoBadRequest, err.Error(), 0)
		}
		id, err := a.StartEpisode(agent.Layout{Width: m.Width, Height: m.Height, Walls: m.Walls, Goals: m.Goals})
		if err != nil {
			return errorMsg(protocol.ErrBadLayout, err.Error(), 0)
		}
		return protocol.EpisodeStartedMsg{Type: protocol.TypeEpisodeStarted, ProtocolVersion: protocol.Version, EpisodeID: id}

	case protocol.TypeStep:
		var m protocol.StepMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return errorMsg(protocol.ErrProtoBadRequest, err.Error(), 0)
		}
		d, err := a.Decide(agent.Step{Tick: m.Tick, Agent: m.Agent, Goals: m.Goals, Hazards: m.Hazards, Legal: m.Legal})
		if err != nil {
			return errorMsg(CodeFor(err), err.Error(), m.Tick)
		}
		return protocol.DecisionMsg{
			Type:            protocol.TypeDecision,
			ProtocolVersion: protocol.Version,
			Tick:            d.Tick,
			Action:          d.Action,
			Iterations:      d.Iterations,
			Converged:       d.Converged,
			SuppressedGoals: d.SuppressedGoals,
			Digest:          d.Digest,
			Fallback:        d.Fallback,
		}

	default: // EPISODE_END
		var m protocol.EpisodeEndMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return errorMsg(protocol.ErrProtoBadRequest, err.Error(), 0)
		}
		id := a.EpisodeID()
		if id == "" {
			return errorMsg(protocol.ErrNoEpisode, agent.ErrNoEpisode.Error(), 0)
		}
		reason := m.Reason
		if reason == "" {
			reason = "client"
		}
		a.EndEpisode(reason)
		return protocol.EpisodeClosedMsg{Type: protocol.TypeEpisodeClosed, ProtocolVersion: protocol.Version, EpisodeID: id}
	}
}

func (s *Server) count(reply any) {
	switch m := reply.(type) {
	case protocol.DecisionMsg:
		s.decisions.Add(1)
		if !m.Converged {
			s.notConverged.Add(1)
		}
		if m.Fallback {
			s.fallbacks.Add(1)
		}
	case protocol.ErrorMsg:
		s.errs.Add(1)
	}
}

// CodeFor maps planner errors to protocol error codes.
func CodeFor(err error) string {
	var lookup *policy.LookupError
	switch {
	case errors.Is(err, agent.ErrNoEpisode):
		return protocol.ErrNoEpisode
	case errors.Is(err, policy.ErrNoAdmissibleActions):
		return protocol.ErrNoActions
	case errors.As(err, &lookup):
		return protocol.ErrLookup
	case errors.Is(err, grid.ErrOutOfBounds), errors.Is(err, grid.ErrOnWall), errors.Is(err, policy.ErrInvalidAction):
		return protocol.ErrBadStep
	}
	return protocol.ErrInternal
}

func errorMsg(code, message string, tick uint64) protocol.ErrorMsg {
	return protocol.ErrorMsg{Type: protocol.TypeError, ProtocolVersion: protocol.Version, Code: code, Message: message, Tick: tick}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
