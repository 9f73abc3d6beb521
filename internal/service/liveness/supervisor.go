// Package liveness watches connected stations and marks the ones that stop
// heartbeating as Offline.
package liveness

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ocpp/server"
	"github.com/voltgrid/csms/internal/ocpp/session"
	"github.com/voltgrid/csms/internal/ports"
)

const (
	// DefaultCheckInterval is how often the supervisor sweeps the live
	// sessions.
	DefaultCheckInterval = 30 * time.Second
	// graceFactor scales the station's heartbeat interval into a deadline.
	// A station is not declared dead until it has missed more than two
	// heartbeats.
	graceFactor = 2.5
)

type Supervisor struct {
	registry  *server.ConnRegistry
	stations  ports.StationService
	interval  time.Duration
	heartbeat int
	log       *zap.Logger
}

func NewSupervisor(registry *server.ConnRegistry, stations ports.StationService, checkInterval time.Duration, defaultHeartbeat int, log *zap.Logger) *Supervisor {
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	if defaultHeartbeat <= 0 {
		defaultHeartbeat = 300
	}
	return &Supervisor{
		registry:  registry,
		stations:  stations,
		interval:  checkInterval,
		heartbeat: defaultHeartbeat,
		log:       log,
	}
}

// Run sweeps until the context is cancelled. It also mirrors registry events
// into station status so a dropped socket shows up as Offline immediately,
// not only at the next sweep.
func (s *Supervisor) Run(ctx context.Context) {
	s.registry.Subscribe(func(ev server.Event) {
		switch ev.Type {
		case server.EventConnected:
			// Boot will confirm Online with full identity; this covers the
			// window before the BootNotification arrives.
			if err := s.stations.UpdateStationStatus(ctx, ev.StationID, domain.StationStatusOnline, ev.At); err != nil {
				s.log.Debug("online mark failed", zap.String("station_id", ev.StationID), zap.Error(err))
			}
		case server.EventDisconnected:
			if err := s.stations.UpdateStationStatus(ctx, ev.StationID, domain.StationStatusOffline, ev.At); err != nil {
				s.log.Debug("offline mark failed", zap.String("station_id", ev.StationID), zap.Error(err))
			}
		}
	})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sweep(ctx, now)
		}
	}
}

func (s *Supervisor) sweep(ctx context.Context, now time.Time) {
	for _, sess := range s.registry.All() {
		if sess.State() == session.StateClosed {
			continue
		}
		deadline := s.deadlineFor(ctx, sess.StationID())
		silent := now.Sub(sess.LastSeen())
		if silent <= deadline {
			continue
		}

		s.log.Warn("station silent past deadline, dropping session",
			zap.String("station_id", sess.StationID()),
			zap.Duration("silent", silent),
			zap.Duration("deadline", deadline))

		if err := s.stations.UpdateStationStatus(ctx, sess.StationID(), domain.StationStatusOffline, now); err != nil {
			s.log.Warn("offline mark failed", zap.String("station_id", sess.StationID()), zap.Error(err))
		}
		drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		sess.Drain(drainCtx)
		cancel()
	}
}

// deadlineFor derives the silence budget from the station's configured
// heartbeat interval, falling back to the default when the station is
// unknown.
func (s *Supervisor) deadlineFor(ctx context.Context, stationID string) time.Duration {
	interval := s.heartbeat
	if st, err := s.stations.GetStation(ctx, stationID); err == nil && st.HeartbeatInterval > 0 {
		interval = st.HeartbeatInterval
	}
	return time.Duration(float64(interval) * graceFactor * float64(time.Second))
}
