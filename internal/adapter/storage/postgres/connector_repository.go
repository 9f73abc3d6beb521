package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

type ConnectorRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewConnectorRepository(db *gorm.DB, log *zap.Logger) ports.ConnectorRepository {
	return &ConnectorRepository{
		db:  db,
		log: log,
	}
}

func (r *ConnectorRepository) Save(ctx context.Context, c *domain.Connector) error {
	// Upsert on the (station, connector) pair; stations report connectors we
	// may already have rows for.
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "station_id"}, {Name: "connector_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "current_tx_key", "last_error_code", "updated_at"}),
	}).Create(c).Error
}

func (r *ConnectorRepository) FindByKey(ctx context.Context, stationID string, connectorID int) (*domain.Connector, error) {
	var c domain.Connector
	err := r.db.WithContext(ctx).
		First(&c, "station_id = ? AND connector_id = ?", stationID, connectorID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrConnectorNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *ConnectorRepository) FindByStation(ctx context.Context, stationID string) ([]domain.Connector, error) {
	var out []domain.Connector
	err := r.db.WithContext(ctx).
		Where("station_id = ?", stationID).Order("connector_id").Find(&out).Error
	return out, err
}

func (r *ConnectorRepository) UpdateStatus(ctx context.Context, stationID string, connectorID int, status domain.ConnectorStatus, errorCode string, txKey *string) error {
	res := r.db.WithContext(ctx).Model(&domain.Connector{}).
		Where("station_id = ? AND connector_id = ?", stationID, connectorID).
		Updates(map[string]interface{}{
			"status":          status,
			"last_error_code": errorCode,
			"current_tx_key":  txKey,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConnectorNotFound
	}
	return nil
}
