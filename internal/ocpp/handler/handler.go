// Package handler routes decoded OCPP calls to the domain services. One
// Handler serves both protocol versions; the session's registry decides which
// payload types apply.
package handler

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ocpp/session"
	"github.com/voltgrid/csms/internal/ocpp/wire"
	"github.com/voltgrid/csms/internal/ports"
)

// bootRetryInterval is sent as the heartbeat interval when a boot could not
// be persisted, so the station retries soon instead of going quiet.
const bootRetryInterval = 30

type Handler struct {
	stations ports.StationService
	txs      ports.TransactionService
	auth     ports.AuthService
	vendors  *DataTransferRegistry
	log      *zap.Logger
	now      func() time.Time
}

var _ session.Handler = (*Handler)(nil)

func New(stations ports.StationService, txs ports.TransactionService, auth ports.AuthService, vendors *DataTransferRegistry, log *zap.Logger) *Handler {
	if vendors == nil {
		vendors = NewDataTransferRegistry()
	}
	return &Handler{
		stations: stations,
		txs:      txs,
		auth:     auth,
		vendors:  vendors,
		log:      log,
		now:      time.Now,
	}
}

func (h *Handler) HandleCall(ctx context.Context, s *session.Session, action string, payload json.RawMessage) (interface{}, *wire.Error) {
	req, werr := s.Registry().DecodeRequest(action, payload)
	if werr != nil {
		return nil, werr
	}

	switch s.Version() {
	case domain.ProtocolV16:
		return h.handleV16(ctx, s.StationID(), action, req)
	case domain.ProtocolV201:
		return h.handleV201(ctx, s.StationID(), action, req)
	}
	return nil, wire.NewError(wire.ErrInternalError, "no handler for protocol version")
}

func (h *Handler) rfc3339Now() string {
	return h.now().UTC().Format(time.RFC3339)
}

// parseTimestamp is lenient: stations with drifting clocks or sloppy
// formatting still get their write recorded, stamped with our time.
func (h *Handler) parseTimestamp(s string) time.Time {
	if s == "" {
		return h.now().UTC()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return h.now().UTC()
}
