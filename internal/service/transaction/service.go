// Package transaction owns the charging session ledger: opening and closing
// transactions, the per-connector single-transaction rule, and the meter
// sample time series.
package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/adapter/queue"
	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/observability/telemetry"
	"github.com/voltgrid/csms/internal/ports"
)

// DefaultSampleCap bounds the stored samples per transaction; the oldest are
// evicted beyond it.
const DefaultSampleCap = 10000

type Service struct {
	repo        ports.TransactionRepository
	connRepo    ports.ConnectorRepository
	stationRepo ports.StationRepository
	userRepo    ports.UserRepository
	mq          queue.MessageQueue
	locks       *keyedMutex
	sampleCap   int
	log         *zap.Logger
}

func NewService(repo ports.TransactionRepository, connRepo ports.ConnectorRepository, stationRepo ports.StationRepository, userRepo ports.UserRepository, mq queue.MessageQueue, sampleCap int, log *zap.Logger) ports.TransactionService {
	if sampleCap <= 0 {
		sampleCap = DefaultSampleCap
	}
	return &Service{
		repo:        repo,
		connRepo:    connRepo,
		stationRepo: stationRepo,
		userRepo:    userRepo,
		mq:          mq,
		locks:       newKeyedMutex(),
		sampleCap:   sampleCap,
		log:         log,
	}
}

// Open creates an Active transaction and claims the connector. All start/stop
// work for one connector is serialized on its key, so two racing starts
// cannot both claim it.
func (s *Service) Open(ctx context.Context, p ports.OpenTransactionParams) (*domain.Transaction, error) {
	key := domain.ConnectorKey(p.StationID, p.ConnectorID)
	unlock := s.locks.lock(key)
	defer unlock()

	conn, err := s.connRepo.FindByKey(ctx, p.StationID, p.ConnectorID)
	if errors.Is(err, domain.ErrConnectorNotFound) {
		conn = &domain.Connector{StationID: p.StationID, ConnectorID: p.ConnectorID, Status: domain.ConnectorStatusAvailable}
		if err := s.connRepo.Save(ctx, conn); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if conn.CurrentTxKey != nil {
		existing, err := s.repo.FindByKey(ctx, *conn.CurrentTxKey)
		if err == nil && s.isRetryOf(existing, p) {
			// The station resent a start we already recorded.
			s.log.Info("duplicate start absorbed",
				zap.String("station_id", p.StationID),
				zap.String("tx_key", existing.Key))
			return existing, nil
		}
		return nil, domain.ErrConnectorBusy
	}

	tx := &domain.Transaction{
		Key:         uuid.NewString(),
		StationID:   p.StationID,
		ConnectorID: p.ConnectorID,
		IdTag:       p.IdTag,
		StartTime:   p.Timestamp,
		MeterStart:  p.MeterStart,
		Status:      domain.TransactionStatusActive,
	}

	switch p.Version {
	case domain.ProtocolV16:
		seq, err := s.stationRepo.NextTxSeq(ctx, p.StationID)
		if err != nil {
			return nil, fmt.Errorf("allocate transaction id: %w", err)
		}
		tx.OcppTxID = &seq
	case domain.ProtocolV201:
		if p.RemoteTxID == nil || *p.RemoteTxID == "" {
			return nil, fmt.Errorf("missing remote transaction id")
		}
		if existing, err := s.repo.FindByRemoteTxID(ctx, p.StationID, *p.RemoteTxID); err == nil {
			return existing, nil
		}
		tx.RemoteTxID = p.RemoteTxID
	default:
		return nil, fmt.Errorf("unsupported protocol version %q", p.Version)
	}

	if p.IdTag != "" {
		if user, err := s.userRepo.FindByIdTag(ctx, p.IdTag); err == nil {
			tx.UserID = user.ID
		}
	}

	if err := s.repo.Save(ctx, tx); err != nil {
		return nil, err
	}
	if err := s.connRepo.UpdateStatus(ctx, p.StationID, p.ConnectorID, domain.ConnectorStatusCharging, "", &tx.Key); err != nil {
		return nil, err
	}

	telemetry.ActiveTransactions.Inc()
	s.publishEvent("started", tx)
	return tx, nil
}

// isRetryOf recognizes a resent start: same connector, same tag, same wire
// identity.
func (s *Service) isRetryOf(existing *domain.Transaction, p ports.OpenTransactionParams) bool {
	if existing.Status != domain.TransactionStatusActive ||
		existing.ConnectorID != p.ConnectorID ||
		existing.IdTag != p.IdTag {
		return false
	}
	if p.Version == domain.ProtocolV201 {
		return p.RemoteTxID != nil && existing.RemoteTxID != nil && *existing.RemoteTxID == *p.RemoteTxID
	}
	return existing.StartTime.Equal(p.Timestamp)
}

// Close completes the transaction and moves its connector to Finishing; the
// station's own StatusNotification(Available) releases it. Closing an
// already-Completed transaction is a no-op success.
func (s *Service) Close(ctx context.Context, p ports.CloseTransactionParams) (*domain.Transaction, error) {
	tx, err := s.FindByWireID(ctx, p.StationID, p.Version, p.OcppTxID, p.RemoteTxID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(domain.ConnectorKey(tx.StationID, tx.ConnectorID))
	defer unlock()

	// Re-read under the lock; a racing close may have finished first.
	tx, err = s.repo.FindByKey(ctx, tx.Key)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TransactionStatusActive {
		return tx, nil
	}

	stop := p.Timestamp
	meterStop := p.MeterStop
	tx.StopTime = &stop
	tx.MeterStop = &meterStop
	tx.EnergyWh = meterStop - tx.MeterStart
	if tx.EnergyWh < 0 {
		// Meter rollover or reset; never report negative energy.
		tx.EnergyWh = 0
	}
	tx.Status = domain.TransactionStatusCompleted
	tx.StopReason = p.Reason

	if err := s.repo.Update(ctx, tx); err != nil {
		return nil, err
	}
	// The connector stays Finishing, still referencing the transaction, until
	// the station reports Available in a later StatusNotification.
	if err := s.connRepo.UpdateStatus(ctx, tx.StationID, tx.ConnectorID, domain.ConnectorStatusFinishing, "", &tx.Key); err != nil {
		s.log.Warn("connector finishing update failed",
			zap.String("station_id", tx.StationID),
			zap.Int("connector_id", tx.ConnectorID),
			zap.Error(err))
	}

	telemetry.ActiveTransactions.Dec()
	telemetry.EnergyDeliveredTotal.Add(float64(tx.EnergyWh))
	s.publishEvent("stopped", tx)
	return tx, nil
}

func (s *Service) AppendMeter(ctx context.Context, txKey string, samples []domain.MeterSample) error {
	if len(samples) == 0 {
		return nil
	}
	if err := s.repo.AppendSamples(ctx, txKey, samples); err != nil {
		return err
	}

	count, err := s.repo.CountSamples(ctx, txKey)
	if err != nil {
		return nil
	}
	if over := int(count) - s.sampleCap; over > 0 {
		if err := s.repo.DeleteOldestSamples(ctx, txKey, over); err != nil {
			s.log.Warn("sample eviction failed", zap.String("tx_key", txKey), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) FindByWireID(ctx context.Context, stationID string, version domain.ProtocolVersion, ocppTxID int, remoteTxID string) (*domain.Transaction, error) {
	switch version {
	case domain.ProtocolV16:
		return s.repo.FindByOcppTxID(ctx, stationID, ocppTxID)
	case domain.ProtocolV201:
		return s.repo.FindByRemoteTxID(ctx, stationID, remoteTxID)
	}
	return nil, fmt.Errorf("unsupported protocol version %q", version)
}

func (s *Service) Get(ctx context.Context, key string) (*domain.Transaction, error) {
	return s.repo.FindByKey(ctx, key)
}

func (s *Service) List(ctx context.Context, filter ports.TransactionFilter) ([]domain.Transaction, error) {
	return s.repo.FindAll(ctx, filter)
}

func (s *Service) publishEvent(event string, tx *domain.Transaction) {
	payload, err := json.Marshal(map[string]interface{}{
		"event":        event,
		"tx_key":       tx.Key,
		"station_id":   tx.StationID,
		"connector_id": tx.ConnectorID,
		"id_tag":       tx.IdTag,
		"energy_wh":    tx.EnergyWh,
		"status":       tx.Status,
		"at":           time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := s.mq.Publish(queue.SubjectTransactionEvent, payload); err != nil {
		s.log.Warn("transaction event publish failed", zap.String("tx_key", tx.Key), zap.Error(err))
	}
}
