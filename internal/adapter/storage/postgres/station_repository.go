package postgres

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

type StationRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewStationRepository(db *gorm.DB, log *zap.Logger) ports.StationRepository {
	return &StationRepository{
		db:  db,
		log: log,
	}
}

func (r *StationRepository) Save(ctx context.Context, st *domain.Station) error {
	// Connectors have their own repository; saving them here would clobber
	// concurrent status updates.
	return r.db.WithContext(ctx).Omit("Connectors").Save(st).Error
}

func (r *StationRepository) FindByID(ctx context.Context, id string) (*domain.Station, error) {
	var st domain.Station
	err := r.db.WithContext(ctx).First(&st, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrStationNotFound
		}
		return nil, err
	}
	return &st, nil
}

func (r *StationRepository) FindAll(ctx context.Context, filter map[string]interface{}) ([]domain.Station, error) {
	var stations []domain.Station
	q := r.db.WithContext(ctx)
	if len(filter) > 0 {
		q = q.Where(filter)
	}
	err := q.Order("id").Find(&stations).Error
	return stations, err
}

func (r *StationRepository) UpdateStatus(ctx context.Context, id string, status domain.StationStatus) error {
	res := r.db.WithContext(ctx).Model(&domain.Station{}).Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrStationNotFound
	}
	return nil
}

func (r *StationRepository) UpdateHeartbeat(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.Station{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_heartbeat_at": at,
			"status":            domain.StationStatusOnline,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrStationNotFound
	}
	return nil
}

func (r *StationRepository) UpdateLastProfileID(ctx context.Context, id string, profileID int) error {
	res := r.db.WithContext(ctx).Model(&domain.Station{}).Where("id = ?", id).
		Update("last_profile_id", profileID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrStationNotFound
	}
	return nil
}

// NextTxSeq increments the per-station counter in one statement so two
// concurrent starts can never draw the same id.
func (r *StationRepository) NextTxSeq(ctx context.Context, id string) (int, error) {
	var seq int
	res := r.db.WithContext(ctx).Raw(
		"UPDATE stations SET tx_seq = tx_seq + 1, updated_at = NOW() WHERE id = ? RETURNING tx_seq", id,
	).Scan(&seq)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, domain.ErrStationNotFound
	}
	return seq, nil
}

func (r *StationRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Station{}, "id = ?", id).Error
}
