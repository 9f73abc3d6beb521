// Package session owns the per-connection OCPP state machine: one reader,
// one writer over a bounded queue, a pending-call table for CSMS-initiated
// requests, and drain semantics for graceful takeover.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/observability/telemetry"
	"github.com/voltgrid/csms/internal/ocpp/registry"
	"github.com/voltgrid/csms/internal/ocpp/wire"
)

type State int32

const (
	StateHandshaking State = iota
	StateActive
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var (
	ErrSessionClosed   = errors.New("session closed")
	ErrSessionDraining = errors.New("session draining")
	ErrCallTimeout     = errors.New("call timed out")
	ErrWriteQueueFull  = errors.New("write queue full")
)

// Conn is the transport below a session. Satisfied by a thin wrapper around
// *websocket.Conn; tests substitute an in-memory pipe.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Handler processes inbound CALLs. A nil response with a nil error is encoded
// as an empty object result.
type Handler interface {
	HandleCall(ctx context.Context, s *Session, action string, payload json.RawMessage) (interface{}, *wire.Error)
}

type Options struct {
	WriteQueueSize  int
	CallTimeout     time.Duration
	LateResultGrace time.Duration
}

func (o *Options) withDefaults() Options {
	out := Options{WriteQueueSize: 32, CallTimeout: 30 * time.Second, LateResultGrace: 30 * time.Second}
	if o == nil {
		return out
	}
	if o.WriteQueueSize > 0 {
		out.WriteQueueSize = o.WriteQueueSize
	}
	if o.CallTimeout > 0 {
		out.CallTimeout = o.CallTimeout
	}
	if o.LateResultGrace > 0 {
		out.LateResultGrace = o.LateResultGrace
	}
	return out
}

type Session struct {
	stationID string
	version   domain.ProtocolVersion
	reg       *registry.Registry
	conn      Conn
	handler   Handler
	opts      Options
	log       *zap.Logger

	writeCh  chan []byte
	pending  *pendingTable
	state    atomic.Int32
	lastSeen atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
}

func New(stationID string, version domain.ProtocolVersion, conn Conn, handler Handler, logger *zap.Logger, opts *Options) (*Session, error) {
	reg, ok := registry.ForVersion(version)
	if !ok {
		return nil, fmt.Errorf("unsupported protocol version %q", version)
	}
	o := opts.withDefaults()
	s := &Session{
		stationID: stationID,
		version:   version,
		reg:       reg,
		conn:      conn,
		handler:   handler,
		opts:      o,
		log:       logger.With(zap.String("station_id", stationID), zap.String("protocol", string(version))),
		writeCh:   make(chan []byte, o.WriteQueueSize),
		pending:   newPendingTable(),
		closed:    make(chan struct{}),
	}
	s.state.Store(int32(StateHandshaking))
	s.touch()
	return s, nil
}

func (s *Session) StationID() string { return s.stationID }

func (s *Session) Version() domain.ProtocolVersion { return s.version }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) PendingCalls() int { return s.pending.count() }

// LastSeen is the time of the most recent inbound frame. The liveness
// supervisor compares it against the heartbeat deadline.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// Run drives the session until the connection drops or Close is called. It
// blocks; the caller owns the goroutine.
func (s *Session) Run(ctx context.Context) {
	s.state.CompareAndSwap(int32(StateHandshaking), int32(StateActive))
	s.log.Info("ocpp session started")

	go s.writeLoop()
	s.readLoop(ctx)
	s.Close()
}

func (s *Session) writeLoop() {
	for {
		select {
		case data := <-s.writeCh:
			if err := s.conn.WriteMessage(data); err != nil {
				s.log.Warn("write failed, closing session", zap.Error(err))
				s.Close()
				return
			}
		case <-s.closed:
			return
		}
	}
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		data, err := s.conn.ReadMessage()
		if err != nil {
			if s.State() != StateClosed {
				s.log.Info("connection closed", zap.Error(err))
			}
			return
		}
		s.touch()

		frame, err := wire.Decode(data)
		if err != nil {
			var de *wire.DecodeError
			if errors.As(err, &de) && de.MessageID != "" {
				s.sendCallError(de.MessageID, wire.ErrFormationViolation, de.Reason)
			} else {
				s.log.Warn("dropping undecodable frame", zap.Error(err))
			}
			continue
		}

		switch frame.Type {
		case wire.Call:
			// Each CALL gets its own goroutine so a handler blocked on IO
			// cannot stall later frames or result correlation. Connector-level
			// ordering is enforced in the domain layer.
			go s.dispatchCall(ctx, frame)
		case wire.CallResult:
			s.resolveCall(frame.MessageID, outcome{result: frame.Payload})
		case wire.CallError:
			s.resolveCall(frame.MessageID, outcome{
				callErr: wire.NewError(frame.ErrorCode, frame.ErrorDescription),
			})
		}

		select {
		case <-s.closed:
			return
		default:
		}
	}
}

// dispatchCall handles one inbound CALL. A panicking handler answers
// InternalError instead of tearing the connection down.
func (s *Session) dispatchCall(ctx context.Context, frame *wire.Frame) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("handler panic",
				zap.String("action", frame.Action),
				zap.String("message_id", frame.MessageID),
				zap.Any("panic", r))
			s.sendCallError(frame.MessageID, wire.ErrInternalError, "internal error")
		}
	}()

	telemetry.OCPPMessagesTotal.WithLabelValues(frame.Action, "inbound").Inc()
	resp, werr := s.handler.HandleCall(ctx, s, frame.Action, frame.Payload)
	if werr != nil {
		s.log.Warn("inbound call refused",
			zap.String("action", frame.Action),
			zap.String("code", werr.Code),
			zap.String("reason", werr.Description))
		s.sendCallError(frame.MessageID, werr.Code, werr.Description)
		return
	}

	data, err := wire.MarshalCallResult(frame.MessageID, resp)
	if err != nil {
		s.log.Error("response marshal failed", zap.String("action", frame.Action), zap.Error(err))
		s.sendCallError(frame.MessageID, wire.ErrInternalError, "internal error")
		return
	}
	s.enqueue(data)
}

func (s *Session) resolveCall(messageID string, out outcome) {
	delivered, lateAction := s.pending.resolve(messageID, out)
	if delivered {
		return
	}
	if lateAction != "" {
		s.log.Warn("late result for abandoned call",
			zap.String("message_id", messageID),
			zap.String("action", lateAction))
		return
	}
	s.log.Warn("result for unknown message id", zap.String("message_id", messageID))
}

// Call sends a CSMS-initiated request and waits for the matching result. A
// zero timeout uses the session default. Wire-level rejections come back as
// *wire.Error; transport failures as plain errors.
func (s *Session) Call(ctx context.Context, action string, payload interface{}, timeout time.Duration) (json.RawMessage, error) {
	switch s.State() {
	case StateDraining:
		return nil, ErrSessionDraining
	case StateClosed:
		return nil, ErrSessionClosed
	}
	if timeout <= 0 {
		timeout = s.opts.CallTimeout
	}

	messageID := uuid.NewString()
	data, err := wire.MarshalCall(messageID, action, payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s call: %w", action, err)
	}

	telemetry.OCPPMessagesTotal.WithLabelValues(action, "outbound").Inc()
	pc := s.pending.add(messageID, action)
	if err := s.enqueue(data); err != nil {
		s.pending.resolve(messageID, outcome{err: err})
		<-pc.ch
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-pc.ch:
		if out.err != nil {
			return nil, out.err
		}
		if out.callErr != nil {
			return nil, out.callErr
		}
		return out.result, nil
	case <-timer.C:
		s.pending.abandon(messageID, s.opts.LateResultGrace)
		return nil, fmt.Errorf("%s: %w after %s", action, ErrCallTimeout, timeout)
	case <-ctx.Done():
		s.pending.abandon(messageID, s.opts.LateResultGrace)
		return nil, ctx.Err()
	case <-s.closed:
		return nil, ErrSessionClosed
	}
}

// Registry exposes the action table negotiated for this session.
func (s *Session) Registry() *registry.Registry { return s.reg }

func (s *Session) sendCallError(messageID, code, description string) {
	telemetry.OCPPErrorsTotal.WithLabelValues(code).Inc()
	data, err := wire.MarshalCallError(messageID, code, description, nil)
	if err != nil {
		s.log.Error("call error marshal failed", zap.Error(err))
		return
	}
	s.enqueue(data) //nolint:errcheck // enqueue failure already closes the session
}

// enqueue places a frame on the write queue. A full queue means the station
// stopped reading; the session is torn down rather than blocking the caller.
func (s *Session) enqueue(data []byte) error {
	select {
	case s.writeCh <- data:
		return nil
	case <-s.closed:
		return ErrSessionClosed
	default:
		s.log.Warn("write queue full, closing session")
		s.Close()
		return ErrWriteQueueFull
	}
}

// Drain stops accepting new outbound calls and waits for in-flight ones to
// resolve, then closes. Used during connection takeover and shutdown.
func (s *Session) Drain(ctx context.Context) {
	if !s.state.CompareAndSwap(int32(StateActive), int32(StateDraining)) &&
		!s.state.CompareAndSwap(int32(StateHandshaking), int32(StateDraining)) {
		return
	}
	s.log.Info("draining session", zap.Int("pending_calls", s.pending.count()))

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for s.pending.count() > 0 {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.closed:
			return
		case <-ticker.C:
		}
	}
	s.Close()
}

// Close tears the session down. Idempotent. Outstanding calls fail with
// ErrSessionClosed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.closed)
		s.pending.failAll(ErrSessionClosed)
		if err := s.conn.Close(); err != nil {
			s.log.Debug("connection close", zap.Error(err))
		}
		s.log.Info("ocpp session closed")
	})
}

// Done is closed when the session has fully shut down.
func (s *Session) Done() <-chan struct{} { return s.closed }
