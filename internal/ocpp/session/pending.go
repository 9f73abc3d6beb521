package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/voltgrid/csms/internal/ocpp/wire"
)

type outcome struct {
	result  json.RawMessage
	callErr *wire.Error
	err     error
}

type pendingCall struct {
	action string
	sentAt time.Time
	ch     chan outcome
}

// lateEntry keeps an abandoned message id around for a grace window so that a
// result arriving after its caller gave up can still be attributed in logs.
type lateEntry struct {
	action  string
	expires time.Time
}

type pendingTable struct {
	mu    sync.Mutex
	calls map[string]*pendingCall
	late  map[string]lateEntry
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		calls: make(map[string]*pendingCall),
		late:  make(map[string]lateEntry),
	}
}

func (t *pendingTable) add(messageID, action string) *pendingCall {
	pc := &pendingCall{action: action, sentAt: time.Now(), ch: make(chan outcome, 1)}
	t.mu.Lock()
	t.calls[messageID] = pc
	t.mu.Unlock()
	return pc
}

// resolve delivers an outcome to the waiting caller. The second return value
// names the action of a late arrival, empty when the id is entirely unknown.
func (t *pendingTable) resolve(messageID string, out outcome) (delivered bool, lateAction string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if pc, ok := t.calls[messageID]; ok {
		delete(t.calls, messageID)
		pc.ch <- out
		return true, ""
	}
	if le, ok := t.late[messageID]; ok {
		delete(t.late, messageID)
		return false, le.action
	}
	return false, ""
}

// abandon moves a timed-out call into the late window.
func (t *pendingTable) abandon(messageID string, grace time.Duration) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	pc, ok := t.calls[messageID]
	if !ok {
		return
	}
	delete(t.calls, messageID)
	t.late[messageID] = lateEntry{action: pc.action, expires: now.Add(grace)}

	for id, le := range t.late {
		if now.After(le.expires) {
			delete(t.late, id)
		}
	}
}

// failAll resolves every outstanding call with err. Used at session close.
func (t *pendingTable) failAll(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, pc := range t.calls {
		delete(t.calls, id)
		pc.ch <- outcome{err: err}
	}
}

func (t *pendingTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
