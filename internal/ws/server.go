// Package ws streams domain events to browser clients over a websocket.
// Each connection is pinned to its unit's scope; the hub does the fan-out and
// this package only speaks the frame protocol.
package ws

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"cratekeeper/internal/events"
	"cratekeeper/internal/hub"
	"cratekeeper/internal/platform/config"
	"cratekeeper/internal/platform/middleware"
)

// Close codes sent before dropping a connection.
const (
	CloseAuthFailure      = 4001
	CloseHeartbeatTimeout = 4008
	CloseSlowConsumer     = 4009
	CloseSessionRevoked   = 4010
)

// Frame is the single wire envelope for both directions. Fields are populated
// per frame type.
type Frame struct {
	Type         string  `json:"type"`
	Scope        string  `json:"scope,omitempty"`
	HeadSequence int64   `json:"head_sequence,omitempty"`
	Entity       string  `json:"entity,omitempty"`
	Action       string  `json:"action,omitempty"`
	Data         any     `json:"data,omitempty"`
	Sequence     int64   `json:"sequence,omitempty"`
	Timestamp    float64 `json:"timestamp,omitempty"`
}

const (
	frameConnectionEstablished = "connection_established"
	frameDataUpdate            = "data_update"
	frameResyncRequired        = "resync_required"
	framePing                  = "ping"
	framePong                  = "pong"
)

// Server upgrades and serves event subscription connections.
type Server struct {
	hub        *hub.Hub
	validator  middleware.TokenValidator
	revocation middleware.RevocationChecker
	cfg        config.WSConfig
	logger     *slog.Logger
}

func NewServer(h *hub.Hub, validator middleware.TokenValidator, revocation middleware.RevocationChecker, cfg config.WSConfig, logger *slog.Logger) *Server {
	return &Server{
		hub:        h,
		validator:  validator,
		revocation: revocation,
		cfg:        cfg,
		logger:     logger,
	}
}

// Handler returns the /ws endpoint. Authentication happens after the upgrade
// so failures surface as websocket close codes, which browser clients can
// read; an HTTP 401 on upgrade cannot be distinguished from a network error.
func (s *Server) Handler() http.Handler {
	return websocket.Handler(s.serve)
}

// peer serializes frame writes; the event loop and the reader's pong replies
// share the connection.
type peer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func (p *peer) write(frame Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

func (s *Server) serve(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	request := conn.Request()
	ctx := request.Context()

	claims, err := s.validator.ValidateToken(request.URL.Query().Get("token"))
	if err != nil {
		_ = conn.WriteClose(CloseAuthFailure)
		return
	}
	if s.revocation != nil {
		revoked, err := s.revocation.IsRevoked(ctx, claims.SessionID)
		if err != nil {
			s.logger.ErrorContext(ctx, "revocation check failed on connect", "error", err)
		}
		if revoked {
			_ = conn.WriteClose(CloseSessionRevoked)
			return
		}
	}

	var fromSequence int64
	if raw := request.URL.Query().Get("from_sequence"); raw != "" {
		fromSequence, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || fromSequence < 0 {
			_ = conn.WriteClose(CloseAuthFailure)
			return
		}
	}

	scope := events.UnitScope(claims.UnitID)
	sub := s.hub.Subscribe(scope, fromSequence)
	defer sub.Close()

	p := &peer{encoder: json.NewEncoder(conn)}
	if err := p.write(Frame{
		Type:         frameConnectionEstablished,
		Scope:        string(scope),
		HeadSequence: sub.HeadSequence(),
	}); err != nil {
		return
	}
	if sub.ResyncRequired() {
		if err := p.write(Frame{Type: frameResyncRequired}); err != nil {
			return
		}
	}

	s.logger.InfoContext(ctx, "websocket connected",
		"user_id", claims.UserID.String(),
		"scope", string(scope),
		"from_sequence", fromSequence,
	)

	activity := make(chan struct{}, 1)
	readDone := make(chan struct{})
	go s.readLoop(conn, p, activity, readDone)

	heartbeat := time.NewTicker(s.cfg.PingInterval)
	defer heartbeat.Stop()
	liveness := time.NewTimer(s.cfg.PongTimeout)
	defer liveness.Stop()

	for {
		select {
		case event, ok := <-sub.C():
			if !ok {
				if sub.SlowConsumer() {
					s.logger.WarnContext(ctx, "dropping slow websocket consumer",
						"user_id", claims.UserID.String(),
						"scope", string(scope),
					)
					_ = conn.WriteClose(CloseSlowConsumer)
				}
				return
			}
			if err := p.write(dataUpdateFrame(event)); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := p.write(Frame{Type: framePing, Timestamp: unixMillis(time.Now())}); err != nil {
				return
			}
			// A revoked session loses its live feed at the next heartbeat,
			// not only at reconnect.
			if s.revocation != nil {
				revoked, err := s.revocation.IsRevoked(ctx, claims.SessionID)
				if err != nil {
					s.logger.ErrorContext(ctx, "revocation check failed on heartbeat", "error", err)
				}
				if revoked {
					_ = conn.WriteClose(CloseSessionRevoked)
					return
				}
			}
		case <-activity:
			if !liveness.Stop() {
				select {
				case <-liveness.C:
				default:
				}
			}
			liveness.Reset(s.cfg.PongTimeout)
		case <-liveness.C:
			_ = conn.WriteClose(CloseHeartbeatTimeout)
			return
		case <-readDone:
			return
		}
	}
}

// readLoop consumes client frames. Any well-formed frame counts as liveness;
// pings additionally get a pong echoing the client's timestamp.
func (s *Server) readLoop(conn *websocket.Conn, p *peer, activity chan<- struct{}, done chan<- struct{}) {
	defer close(done)
	decoder := json.NewDecoder(conn)
	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		select {
		case activity <- struct{}{}:
		default:
		}
		if frame.Type == framePing {
			if err := p.write(Frame{Type: framePong, Timestamp: frame.Timestamp}); err != nil {
				return
			}
		}
	}
}

func dataUpdateFrame(event hub.SequencedEvent) Frame {
	return Frame{
		Type:      frameDataUpdate,
		Entity:    event.Event.Entity,
		Action:    event.Event.Action,
		Data:      event.Event.Data,
		Sequence:  event.Sequence,
		Timestamp: unixMillis(event.Event.Timestamp),
	}
}

func unixMillis(t time.Time) float64 {
	return float64(t.UnixMilli())
}
