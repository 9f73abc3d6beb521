package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/observability/telemetry"
	"github.com/voltgrid/csms/internal/ports"
)

// Dispatcher routes operator-initiated commands to live sessions. It checks
// action direction and payload schema against the session's protocol version
// before anything hits the wire.
type Dispatcher struct {
	registry *ConnRegistry
	log      *zap.Logger
}

var _ ports.CommandDispatcher = (*Dispatcher)(nil)

func NewDispatcher(registry *ConnRegistry, log *zap.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, log: log}
}

func (d *Dispatcher) SendCommand(ctx context.Context, stationID, action string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	sess, ok := d.registry.Get(stationID)
	if !ok {
		return nil, domain.ErrStationNotConnected
	}
	if werr := sess.Registry().CheckOutbound(action, payload); werr != nil {
		return nil, werr
	}

	d.log.Info("dispatching command",
		zap.String("station_id", stationID),
		zap.String("action", action))

	var body interface{}
	if len(payload) > 0 {
		body = payload
	}
	start := time.Now()
	resp, err := sess.Call(ctx, action, body, timeout)
	telemetry.CommandLatency.Observe(time.Since(start).Seconds())
	return resp, err
}

// Broadcast fans a command out to every connected station and collects
// per-station outcomes. Stations whose version does not carry the action
// report failure rather than aborting the fan-out.
func (d *Dispatcher) Broadcast(ctx context.Context, action string, payload json.RawMessage, timeout time.Duration) map[string]ports.CommandResult {
	sessions := d.registry.All()
	results := make(map[string]ports.CommandResult, len(sessions))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, sess := range sessions {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			resp, err := d.SendCommand(ctx, id, action, payload, timeout)

			result := ports.CommandResult{Status: "success", Response: resp}
			if err != nil {
				result = ports.CommandResult{Status: "failed", Error: err.Error()}
			}
			mu.Lock()
			results[id] = result
			mu.Unlock()
		}(sess.StationID())
	}
	wg.Wait()

	d.log.Info("broadcast complete",
		zap.String("action", action),
		zap.Int("stations", len(sessions)))
	return results
}

func (d *Dispatcher) ConnectedStations() []string {
	sessions := d.registry.All()
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.StationID())
	}
	return ids
}
