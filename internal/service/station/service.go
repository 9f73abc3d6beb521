// Package station owns station and connector lifecycle: boot registration,
// heartbeats and the authoritative status view the operator API reads.
package station

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/adapter/queue"
	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

const (
	stationCacheTTL = 30 * time.Second
	// DefaultHeartbeatInterval is handed to stations that boot without an
	// operator-configured interval.
	DefaultHeartbeatInterval = 300
)

type Service struct {
	repo      ports.StationRepository
	connRepo  ports.ConnectorRepository
	cache     ports.Cache
	mq        queue.MessageQueue
	heartbeat int
	log       *zap.Logger
}

func NewService(repo ports.StationRepository, connRepo ports.ConnectorRepository, cache ports.Cache, mq queue.MessageQueue, heartbeatInterval int, log *zap.Logger) ports.StationService {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	return &Service{
		repo:      repo,
		connRepo:  connRepo,
		cache:     cache,
		mq:        mq,
		heartbeat: heartbeatInterval,
		log:       log,
	}
}

// UpsertOnBoot registers a first-time station implicitly, with one connector,
// and refreshes the identity fields on every boot.
func (s *Service) UpsertOnBoot(ctx context.Context, id, vendor, model, serial, firmware string, version domain.ProtocolVersion, now time.Time) (*domain.Station, error) {
	st, err := s.repo.FindByID(ctx, id)
	firstBoot := false
	switch {
	case errors.Is(err, domain.ErrStationNotFound):
		firstBoot = true
		st = &domain.Station{
			ID:                id,
			HeartbeatInterval: s.heartbeat,
			Status:            domain.StationStatusUnknown,
		}
	case err != nil:
		return nil, err
	}

	st.Vendor = vendor
	st.Model = model
	if serial != "" {
		st.SerialNumber = serial
	}
	if firmware != "" {
		st.FirmwareVersion = firmware
	}
	st.ProtocolVersion = version
	st.Status = domain.StationStatusOnline
	st.LastBootAt = &now
	st.LastHeartbeatAt = &now

	if err := s.repo.Save(ctx, st); err != nil {
		return nil, err
	}

	// The connector row references the station row, so it is written second.
	if firstBoot {
		if err := s.connRepo.Save(ctx, &domain.Connector{
			StationID:   id,
			ConnectorID: 1,
			Status:      domain.ConnectorStatusAvailable,
		}); err != nil {
			return nil, err
		}
		s.log.Info("station registered implicitly on boot", zap.String("station_id", id))
	}

	s.invalidate(ctx, id)
	s.publishStationStatus(st)
	return st, nil
}

func (s *Service) RecordHeartbeat(ctx context.Context, id string, now time.Time) error {
	return s.repo.UpdateHeartbeat(ctx, id, now)
}

// UpdateConnectorStatus reconciles a StatusNotification. The transaction
// reference on the connector is preserved while the status still implies an
// in-flight transaction and cleared otherwise.
func (s *Service) UpdateConnectorStatus(ctx context.Context, id string, connectorID int, status domain.ConnectorStatus, errorCode string, now time.Time) error {
	conn, err := s.connRepo.FindByKey(ctx, id, connectorID)
	if errors.Is(err, domain.ErrConnectorNotFound) {
		// Stations report connectors we have not seen; trust the hardware.
		conn = &domain.Connector{StationID: id, ConnectorID: connectorID}
		if err := s.connRepo.Save(ctx, conn); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	txKey := conn.CurrentTxKey
	if !status.Occupied() {
		txKey = nil
	}
	if err := s.connRepo.UpdateStatus(ctx, id, connectorID, status, errorCode, txKey); err != nil {
		return err
	}

	s.invalidate(ctx, id)
	s.publish(queue.SubjectConnectorStatus, map[string]interface{}{
		"station_id":   id,
		"connector_id": connectorID,
		"status":       status,
		"error_code":   errorCode,
		"at":           now.UTC(),
	})
	return nil
}

func (s *Service) UpdateStationStatus(ctx context.Context, id string, status domain.StationStatus, now time.Time) error {
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.publish(queue.SubjectStationStatus, map[string]interface{}{
		"station_id": id,
		"status":     status,
		"at":         now.UTC(),
	})
	return nil
}

func (s *Service) RecordChargingProfile(ctx context.Context, id string, profileID int) error {
	return s.repo.UpdateLastProfileID(ctx, id, profileID)
}

// Register creates a station from the operator API, with its connector layout.
func (s *Service) Register(ctx context.Context, st *domain.Station) error {
	if st.HeartbeatInterval <= 0 {
		st.HeartbeatInterval = s.heartbeat
	}
	if st.Status == "" {
		st.Status = domain.StationStatusUnknown
	}
	if err := s.repo.Save(ctx, st); err != nil {
		return err
	}
	for i := range st.Connectors {
		c := st.Connectors[i]
		c.StationID = st.ID
		if c.Status == "" {
			c.Status = domain.ConnectorStatusAvailable
		}
		if err := s.connRepo.Save(ctx, &c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) GetStation(ctx context.Context, id string) (*domain.Station, error) {
	cacheKey := "station:" + id
	if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != "" {
		var st domain.Station
		if err := json.Unmarshal([]byte(cached), &st); err == nil {
			return &st, nil
		}
	}

	st, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	st.Connectors, _ = s.connRepo.FindByStation(ctx, id)

	if data, err := json.Marshal(st); err == nil {
		if err := s.cache.Set(ctx, cacheKey, string(data), stationCacheTTL); err != nil {
			s.log.Debug("station cache write failed", zap.Error(err))
		}
	}
	return st, nil
}

func (s *Service) ListStations(ctx context.Context, filter map[string]interface{}) ([]domain.Station, error) {
	return s.repo.FindAll(ctx, filter)
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, "station:"+id); err != nil {
		s.log.Debug("station cache invalidate failed", zap.Error(err))
	}
}

func (s *Service) publishStationStatus(st *domain.Station) {
	s.publish(queue.SubjectStationStatus, map[string]interface{}{
		"station_id": st.ID,
		"status":     st.Status,
		"protocol":   st.ProtocolVersion,
		"at":         time.Now().UTC(),
	})
}

func (s *Service) publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.mq.Publish(subject, data); err != nil {
		s.log.Warn("event publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
