package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/observability/telemetry"
	"github.com/voltgrid/csms/internal/ocpp/session"
)

type EventType int

const (
	EventConnected EventType = iota + 1
	EventDisconnected
)

// Event describes a change in the set of live sessions.
type Event struct {
	Type      EventType
	StationID string
	Version   domain.ProtocolVersion
	At        time.Time
}

// ConnRegistry maps station ids to their live session. A station has at most
// one session; a reconnect drains the previous one before taking its slot.
type ConnRegistry struct {
	mu        sync.RWMutex
	sessions  map[string]*session.Session
	observers []func(Event)
	log       *zap.Logger

	takeoverTimeout time.Duration
}

func NewConnRegistry(logger *zap.Logger, takeoverTimeout time.Duration) *ConnRegistry {
	if takeoverTimeout <= 0 {
		takeoverTimeout = 10 * time.Second
	}
	return &ConnRegistry{
		sessions:        make(map[string]*session.Session),
		log:             logger,
		takeoverTimeout: takeoverTimeout,
	}
}

// Subscribe registers an observer for connect/disconnect events. Must be
// called before the registry starts receiving sessions.
func (r *ConnRegistry) Subscribe(fn func(Event)) {
	r.mu.Lock()
	r.observers = append(r.observers, fn)
	r.mu.Unlock()
}

func (r *ConnRegistry) notify(ev Event) {
	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()
	for _, fn := range observers {
		fn(ev)
	}
}

// Install makes s the live session for its station. An existing session is
// drained first so its in-flight calls resolve before the new connection
// takes over. The slot is re-checked after each drain: a session installed by
// a concurrent connect while we drained is itself drained, never silently
// displaced.
func (r *ConnRegistry) Install(ctx context.Context, s *session.Session) {
	id := s.StationID()

	for {
		r.mu.Lock()
		old := r.sessions[id]
		if old == nil {
			r.sessions[id] = s
			count := len(r.sessions)
			r.mu.Unlock()

			telemetry.LiveSessions.Set(float64(count))
			r.notify(Event{Type: EventConnected, StationID: id, Version: s.Version(), At: time.Now()})
			return
		}
		delete(r.sessions, id)
		r.mu.Unlock()

		r.log.Info("replacing existing session",
			zap.String("station_id", id),
			zap.Int("pending_calls", old.PendingCalls()))
		drainCtx, cancel := context.WithTimeout(ctx, r.takeoverTimeout)
		old.Drain(drainCtx)
		cancel()
	}
}

// Remove drops s if it is still the installed session. A session replaced by
// takeover does not remove its successor.
func (r *ConnRegistry) Remove(s *session.Session) {
	id := s.StationID()

	r.mu.Lock()
	current, ok := r.sessions[id]
	if !ok || current != s {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, id)
	count := len(r.sessions)
	r.mu.Unlock()

	telemetry.LiveSessions.Set(float64(count))
	r.notify(Event{Type: EventDisconnected, StationID: id, Version: s.Version(), At: time.Now()})
}

func (r *ConnRegistry) Get(stationID string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[stationID]
	return s, ok
}

func (r *ConnRegistry) All() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *ConnRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll drains every session, used at shutdown.
func (r *ConnRegistry) CloseAll(ctx context.Context) {
	for _, s := range r.All() {
		s.Drain(ctx)
	}
}
