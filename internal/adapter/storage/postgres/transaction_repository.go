package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

type TransactionRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewTransactionRepository(db *gorm.DB, log *zap.Logger) ports.TransactionRepository {
	return &TransactionRepository{
		db:  db,
		log: log,
	}
}

func (r *TransactionRepository) Save(ctx context.Context, tx *domain.Transaction) error {
	return r.db.WithContext(ctx).Omit("Samples").Create(tx).Error
}

func (r *TransactionRepository) Update(ctx context.Context, tx *domain.Transaction) error {
	return r.db.WithContext(ctx).Omit("Samples").Save(tx).Error
}

func (r *TransactionRepository) FindByKey(ctx context.Context, key string) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := r.db.WithContext(ctx).First(&tx, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) FindByOcppTxID(ctx context.Context, stationID string, ocppTxID int) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := r.db.WithContext(ctx).
		First(&tx, "station_id = ? AND ocpp_tx_id = ?", stationID, ocppTxID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) FindByRemoteTxID(ctx context.Context, stationID, remoteTxID string) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := r.db.WithContext(ctx).
		First(&tx, "station_id = ? AND remote_tx_id = ?", stationID, remoteTxID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) FindActiveByIdTag(ctx context.Context, idTag string) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := r.db.WithContext(ctx).
		Where("id_tag = ? AND status = ?", idTag, domain.TransactionStatusActive).
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) FindAll(ctx context.Context, filter ports.TransactionFilter) ([]domain.Transaction, error) {
	q := r.db.WithContext(ctx).Model(&domain.Transaction{})
	if filter.StationID != "" {
		q = q.Where("station_id = ?", filter.StationID)
	}
	if filter.IdTag != "" {
		q = q.Where("id_tag = ?", filter.IdTag)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var out []domain.Transaction
	err := q.Order("start_time DESC").Find(&out).Error
	return out, err
}

func (r *TransactionRepository) AppendSamples(ctx context.Context, key string, samples []domain.MeterSample) error {
	if len(samples) == 0 {
		return nil
	}
	for i := range samples {
		samples[i].TransactionKey = key
	}
	return r.db.WithContext(ctx).Create(&samples).Error
}

func (r *TransactionRepository) CountSamples(ctx context.Context, key string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.MeterSample{}).
		Where("transaction_key = ?", key).Count(&n).Error
	return n, err
}

func (r *TransactionRepository) DeleteOldestSamples(ctx context.Context, key string, n int) error {
	if n <= 0 {
		return nil
	}
	return r.db.WithContext(ctx).Exec(
		"DELETE FROM meter_samples WHERE id IN (SELECT id FROM meter_samples WHERE transaction_key = ? ORDER BY id ASC LIMIT ?)",
		key, n,
	).Error
}
