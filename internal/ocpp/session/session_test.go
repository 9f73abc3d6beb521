package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	v16 "github.com/voltgrid/csms/internal/ocpp/v16"
	"github.com/voltgrid/csms/internal/ocpp/wire"
)

// pipeConn is an in-memory Conn. Frames written by the session land on
// outbound; the test feeds inbound frames through inject.
type pipeConn struct {
	inbound  chan []byte
	outbound chan []byte

	mu     sync.Mutex
	closed bool
}

func newPipeConn() *pipeConn {
	return &pipeConn{inbound: make(chan []byte, 16), outbound: make(chan []byte, 16)}
}

func (c *pipeConn) ReadMessage() ([]byte, error) {
	data, ok := <-c.inbound
	if !ok {
		return nil, io.EOF
	}
	return data, nil
}

func (c *pipeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.ErrClosedPipe
	}
	c.outbound <- data
	return nil
}

func (c *pipeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbound)
	}
	return nil
}

func (c *pipeConn) inject(t *testing.T, raw string) {
	t.Helper()
	c.inbound <- []byte(raw)
}

func (c *pipeConn) nextFrame(t *testing.T) *wire.Frame {
	t.Helper()
	select {
	case data := <-c.outbound:
		f, err := wire.Decode(data)
		if err != nil {
			t.Fatalf("session wrote undecodable frame: %v", err)
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound frame")
		return nil
	}
}

type handlerFunc func(ctx context.Context, s *Session, action string, payload json.RawMessage) (interface{}, *wire.Error)

func (f handlerFunc) HandleCall(ctx context.Context, s *Session, action string, payload json.RawMessage) (interface{}, *wire.Error) {
	return f(ctx, s, action, payload)
}

func startSession(t *testing.T, h Handler, opts *Options) (*Session, *pipeConn) {
	t.Helper()
	conn := newPipeConn()
	if h == nil {
		h = handlerFunc(func(context.Context, *Session, string, json.RawMessage) (interface{}, *wire.Error) {
			return map[string]string{}, nil
		})
	}
	s, err := New("CP-1", domain.ProtocolV16, conn, h, zap.NewNop(), opts)
	if err != nil {
		t.Fatalf("session create failed: %v", err)
	}
	go s.Run(context.Background())
	t.Cleanup(s.Close)
	return s, conn
}

func TestInboundCallAnswered(t *testing.T) {
	h := handlerFunc(func(_ context.Context, _ *Session, action string, _ json.RawMessage) (interface{}, *wire.Error) {
		if action != v16.ActionHeartbeat {
			t.Errorf("unexpected action %s", action)
		}
		return &v16.HeartbeatResponse{CurrentTime: "2026-01-01T00:00:00Z"}, nil
	})
	_, conn := startSession(t, h, nil)

	conn.inject(t, `[2,"h1","Heartbeat",{}]`)

	f := conn.nextFrame(t)
	if f.Type != wire.CallResult || f.MessageID != "h1" {
		t.Errorf("expected CALLRESULT for h1, got %+v", f)
	}
	var resp v16.HeartbeatResponse
	if err := json.Unmarshal(f.Payload, &resp); err != nil || resp.CurrentTime == "" {
		t.Errorf("unexpected payload %s (%v)", f.Payload, err)
	}
}

func TestInboundCallRefused(t *testing.T) {
	h := handlerFunc(func(context.Context, *Session, string, json.RawMessage) (interface{}, *wire.Error) {
		return nil, wire.NewError(wire.ErrNotImplemented, "no such action")
	})
	_, conn := startSession(t, h, nil)

	conn.inject(t, `[2,"x1","Bogus",{}]`)

	f := conn.nextFrame(t)
	if f.Type != wire.CallError || f.ErrorCode != wire.ErrNotImplemented {
		t.Errorf("expected NotImplemented CALLERROR, got %+v", f)
	}
}

func TestHandlerPanicAnswersInternalError(t *testing.T) {
	h := handlerFunc(func(context.Context, *Session, string, json.RawMessage) (interface{}, *wire.Error) {
		panic("boom")
	})
	s, conn := startSession(t, h, nil)

	conn.inject(t, `[2,"p1","Heartbeat",{}]`)

	f := conn.nextFrame(t)
	if f.Type != wire.CallError || f.ErrorCode != wire.ErrInternalError {
		t.Errorf("expected InternalError, got %+v", f)
	}
	if s.State() == StateClosed {
		t.Error("panic must not close the session")
	}
}

func TestSlowHandlerDoesNotStallLaterCalls(t *testing.T) {
	release := make(chan struct{})
	h := handlerFunc(func(_ context.Context, _ *Session, action string, _ json.RawMessage) (interface{}, *wire.Error) {
		if action == v16.ActionAuthorize {
			<-release
			return &v16.AuthorizeResponse{IdTagInfo: v16.IdTagInfo{Status: "Accepted"}}, nil
		}
		return &v16.HeartbeatResponse{CurrentTime: "2026-01-01T00:00:00Z"}, nil
	})
	_, conn := startSession(t, h, nil)

	conn.inject(t, `[2,"a1","Authorize",{"idTag":"TAG"}]`)
	conn.inject(t, `[2,"h1","Heartbeat",{}]`)

	// The heartbeat must be answered while the authorize handler is still
	// blocked; connector ordering is the domain layer's problem, not the wire's.
	f := conn.nextFrame(t)
	if f.Type != wire.CallResult || f.MessageID != "h1" {
		t.Fatalf("expected heartbeat result while authorize is in flight, got %+v", f)
	}

	close(release)
	f = conn.nextFrame(t)
	if f.Type != wire.CallResult || f.MessageID != "a1" {
		t.Errorf("expected authorize result after release, got %+v", f)
	}
}

func TestMalformedFrameWithRecoverableID(t *testing.T) {
	_, conn := startSession(t, nil, nil)

	conn.inject(t, `[2,"m1","Heartbeat"]`)

	f := conn.nextFrame(t)
	if f.Type != wire.CallError || f.MessageID != "m1" || f.ErrorCode != wire.ErrFormationViolation {
		t.Errorf("expected FormationViolation for m1, got %+v", f)
	}
}

func TestOutboundCallResolved(t *testing.T) {
	s, conn := startSession(t, nil, nil)

	done := make(chan struct{})
	var result json.RawMessage
	var callErr error
	go func() {
		defer close(done)
		result, callErr = s.Call(context.Background(), v16.ActionReset, &v16.ResetRequest{Type: "Soft"}, 2*time.Second)
	}()

	f := conn.nextFrame(t)
	if f.Type != wire.Call || f.Action != v16.ActionReset {
		t.Fatalf("expected Reset CALL, got %+v", f)
	}
	conn.inject(t, `[3,"`+f.MessageID+`",{"status":"Accepted"}]`)

	<-done
	if callErr != nil {
		t.Fatalf("expected result, got error %v", callErr)
	}
	var resp v16.ResetResponse
	if err := json.Unmarshal(result, &resp); err != nil || resp.Status != "Accepted" {
		t.Errorf("unexpected result %s (%v)", result, err)
	}
}

func TestOutboundCallError(t *testing.T) {
	s, conn := startSession(t, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.Call(context.Background(), v16.ActionClearCache, nil, 2*time.Second)
		done <- err
	}()

	f := conn.nextFrame(t)
	conn.inject(t, `[4,"`+f.MessageID+`","NotSupported","cache not supported",{}]`)

	err := <-done
	var werr *wire.Error
	if !errors.As(err, &werr) || werr.Code != wire.ErrNotSupported {
		t.Errorf("expected NotSupported wire error, got %v", err)
	}
}

func TestOutboundCallTimeout(t *testing.T) {
	s, conn := startSession(t, nil, nil)

	_, err := s.Call(context.Background(), v16.ActionClearCache, nil, 50*time.Millisecond)
	if !errors.Is(err, ErrCallTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if s.PendingCalls() != 0 {
		t.Errorf("abandoned call still pending")
	}
	abandoned := conn.nextFrame(t)
	if abandoned.Type != wire.Call {
		t.Fatalf("expected the abandoned CALL on the wire, got %+v", abandoned)
	}

	// A result arriving inside the grace window is absorbed without killing
	// the session.
	conn.inject(t, `[3,"`+abandoned.MessageID+`",{"status":"Accepted"}]`)
	conn.inject(t, `[2,"h1","Heartbeat",{}]`)
	f := conn.nextFrame(t)
	if f.Type != wire.CallResult || f.MessageID != "h1" {
		t.Fatalf("expected heartbeat result, got %+v", f)
	}
}

func TestCallAfterCloseFails(t *testing.T) {
	s, _ := startSession(t, nil, nil)
	s.Close()

	_, err := s.Call(context.Background(), v16.ActionClearCache, nil, time.Second)
	if !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestCloseFailsPendingCalls(t *testing.T) {
	s, conn := startSession(t, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.Call(context.Background(), v16.ActionClearCache, nil, 5*time.Second)
		done <- err
	}()
	conn.nextFrame(t)

	s.Close()
	if err := <-done; !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestDrainRejectsNewCalls(t *testing.T) {
	s, _ := startSession(t, nil, nil)

	s.Drain(context.Background())

	_, err := s.Call(context.Background(), v16.ActionClearCache, nil, time.Second)
	if !errors.Is(err, ErrSessionClosed) && !errors.Is(err, ErrSessionDraining) {
		t.Errorf("expected draining or closed, got %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Error("drain with no pending calls should close promptly")
	}
}

func TestLastSeenAdvances(t *testing.T) {
	s, conn := startSession(t, nil, nil)

	before := s.LastSeen()
	time.Sleep(10 * time.Millisecond)
	conn.inject(t, `[2,"h1","Heartbeat",{}]`)
	conn.nextFrame(t)

	if !s.LastSeen().After(before) {
		t.Error("LastSeen did not advance on inbound frame")
	}
}
