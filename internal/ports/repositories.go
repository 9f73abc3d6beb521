package ports

import (
	"context"
	"time"

	"github.com/voltgrid/csms/internal/domain"
)

type StationRepository interface {
	Save(ctx context.Context, st *domain.Station) error
	FindByID(ctx context.Context, id string) (*domain.Station, error)
	FindAll(ctx context.Context, filter map[string]interface{}) ([]domain.Station, error)
	UpdateStatus(ctx context.Context, id string, status domain.StationStatus) error
	UpdateHeartbeat(ctx context.Context, id string, at time.Time) error
	UpdateLastProfileID(ctx context.Context, id string, profileID int) error
	// NextTxSeq atomically increments and returns the station's transaction
	// sequence, backing OCPP 1.6 integer transaction ids.
	NextTxSeq(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
}

type ConnectorRepository interface {
	Save(ctx context.Context, c *domain.Connector) error
	FindByKey(ctx context.Context, stationID string, connectorID int) (*domain.Connector, error)
	FindByStation(ctx context.Context, stationID string) ([]domain.Connector, error)
	// UpdateStatus writes status, error code and the current transaction
	// reference in one statement. txKey nil clears the reference.
	UpdateStatus(ctx context.Context, stationID string, connectorID int, status domain.ConnectorStatus, errorCode string, txKey *string) error
}

type TransactionFilter struct {
	StationID string
	IdTag     string
	Status    domain.TransactionStatus
	Limit     int
	Offset    int
}

type TransactionRepository interface {
	Save(ctx context.Context, tx *domain.Transaction) error
	Update(ctx context.Context, tx *domain.Transaction) error
	FindByKey(ctx context.Context, key string) (*domain.Transaction, error)
	FindByOcppTxID(ctx context.Context, stationID string, ocppTxID int) (*domain.Transaction, error)
	FindByRemoteTxID(ctx context.Context, stationID, remoteTxID string) (*domain.Transaction, error)
	FindActiveByIdTag(ctx context.Context, idTag string) (*domain.Transaction, error)
	FindAll(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error)
	AppendSamples(ctx context.Context, key string, samples []domain.MeterSample) error
	CountSamples(ctx context.Context, key string) (int64, error)
	DeleteOldestSamples(ctx context.Context, key string, n int) error
}

type UserRepository interface {
	Save(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByIdTag(ctx context.Context, idTag string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindAll(ctx context.Context) ([]domain.User, error)
}
