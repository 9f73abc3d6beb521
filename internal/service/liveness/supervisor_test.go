package liveness

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/mocks"
	"github.com/voltgrid/csms/internal/ocpp/server"
	"github.com/voltgrid/csms/internal/ocpp/session"
)

// idleConn never delivers a frame, so the session's last-seen stamp stays at
// creation time.
type idleConn struct {
	once sync.Once
	done chan struct{}
}

func newIdleConn() *idleConn { return &idleConn{done: make(chan struct{})} }

func (c *idleConn) ReadMessage() ([]byte, error) {
	<-c.done
	return nil, context.Canceled
}

func (c *idleConn) WriteMessage(data []byte) error { return nil }

func (c *idleConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

type statusRecorder struct {
	mocks.MockStationService
	mu      sync.Mutex
	changes []domain.StationStatus
}

func newStatusRecorder() *statusRecorder {
	r := &statusRecorder{}
	r.UpdateStationStatusFunc = func(ctx context.Context, id string, status domain.StationStatus, now time.Time) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.changes = append(r.changes, status)
		return nil
	}
	return r
}

func (r *statusRecorder) recorded() []domain.StationStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.StationStatus(nil), r.changes...)
}

func TestSweepDropsSilentSession(t *testing.T) {
	// Arrange: a session whose last frame is far in the past relative to a
	// 10-second heartbeat interval.
	reg := server.NewConnRegistry(zap.NewNop(), time.Second)
	sess, err := session.New("CP-1", domain.ProtocolV16, newIdleConn(), nil, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	reg.Install(context.Background(), sess)

	stations := newStatusRecorder()
	stations.GetStationFunc = func(ctx context.Context, id string) (*domain.Station, error) {
		return &domain.Station{ID: id, HeartbeatInterval: 10}, nil
	}
	sup := NewSupervisor(reg, stations, time.Minute, 300, zap.NewNop())

	// Act: sweep as if a minute has passed.
	sup.sweep(context.Background(), time.Now().Add(time.Minute))

	// Assert
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("silent session was not closed")
	}
	got := stations.recorded()
	if len(got) == 0 || got[len(got)-1] != domain.StationStatusOffline {
		t.Errorf("expected an Offline mark, got %v", got)
	}
}

func TestSweepKeepsFreshSession(t *testing.T) {
	reg := server.NewConnRegistry(zap.NewNop(), time.Second)
	sess, err := session.New("CP-1", domain.ProtocolV16, newIdleConn(), nil, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	reg.Install(context.Background(), sess)

	stations := newStatusRecorder()
	sup := NewSupervisor(reg, stations, time.Minute, 300, zap.NewNop())

	// A just-created session is inside the default 300s * 2.5 budget.
	sup.sweep(context.Background(), time.Now())

	select {
	case <-sess.Done():
		t.Fatal("fresh session must not be closed")
	default:
	}
	if len(stations.recorded()) != 0 {
		t.Errorf("no status change expected, got %v", stations.recorded())
	}
}

func TestRegistryEventsMirrorStatus(t *testing.T) {
	reg := server.NewConnRegistry(zap.NewNop(), time.Second)
	stations := newStatusRecorder()
	sup := NewSupervisor(reg, stations, time.Hour, 300, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx)
	defer cancel()
	time.Sleep(20 * time.Millisecond) // let Run subscribe

	sess, err := session.New("CP-1", domain.ProtocolV16, newIdleConn(), nil, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	reg.Install(context.Background(), sess)
	sess.Close()
	reg.Remove(sess)

	deadline := time.After(2 * time.Second)
	for {
		got := stations.recorded()
		if len(got) >= 2 {
			if got[0] != domain.StationStatusOnline || got[len(got)-1] != domain.StationStatusOffline {
				t.Errorf("expected Online then Offline, got %v", got)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("events not mirrored, got %v", stations.recorded())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
