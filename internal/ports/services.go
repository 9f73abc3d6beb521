package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/voltgrid/csms/internal/domain"
)

// StationService owns station and connector lifecycle: boot registration,
// heartbeats and authoritative status reconciliation.
type StationService interface {
	// UpsertOnBoot creates the station on first boot or refreshes its
	// identity fields, marks it Online and stamps last-boot. Returns the
	// station so the handler can read its heartbeat interval and block flag.
	UpsertOnBoot(ctx context.Context, id, vendor, model, serial, firmware string, version domain.ProtocolVersion, now time.Time) (*domain.Station, error)
	RecordHeartbeat(ctx context.Context, id string, now time.Time) error
	UpdateConnectorStatus(ctx context.Context, id string, connectorID int, status domain.ConnectorStatus, errorCode string, now time.Time) error
	UpdateStationStatus(ctx context.Context, id string, status domain.StationStatus, now time.Time) error
	RecordChargingProfile(ctx context.Context, id string, profileID int) error
	Register(ctx context.Context, st *domain.Station) error
	GetStation(ctx context.Context, id string) (*domain.Station, error)
	ListStations(ctx context.Context, filter map[string]interface{}) ([]domain.Station, error)
}

// OpenTransactionParams carries the version-specific transaction identity.
// RemoteTxID is set for 2.0.1 (CP-chosen); for 1.6 the service allocates the
// integer OcppTxID itself.
type OpenTransactionParams struct {
	StationID   string
	ConnectorID int
	IdTag       string
	MeterStart  int
	Timestamp   time.Time
	Version     domain.ProtocolVersion
	RemoteTxID  *string
}

// CloseTransactionParams identifies a transaction by its on-wire id in the
// session's version space.
type CloseTransactionParams struct {
	StationID  string
	Version    domain.ProtocolVersion
	OcppTxID   int
	RemoteTxID string
	MeterStop  int
	Reason     string
	Timestamp  time.Time
}

type TransactionService interface {
	// Open creates an Active transaction and claims the connector. Fails with
	// domain.ErrConnectorBusy when the connector already has one. Idempotent
	// on CP retries: an Active transaction with the same station, connector,
	// id-tag and start timestamp is returned as-is.
	Open(ctx context.Context, p OpenTransactionParams) (*domain.Transaction, error)
	// Close completes the transaction and releases the connector. Duplicate
	// closes of an already-Completed transaction succeed without changes.
	Close(ctx context.Context, p CloseTransactionParams) (*domain.Transaction, error)
	AppendMeter(ctx context.Context, txKey string, samples []domain.MeterSample) error
	// FindByWireID resolves the on-wire id in the given version space.
	FindByWireID(ctx context.Context, stationID string, version domain.ProtocolVersion, ocppTxID int, remoteTxID string) (*domain.Transaction, error)
	Get(ctx context.Context, key string) (*domain.Transaction, error)
	List(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error)
}

// AuthService resolves id-tags for the OCPP path and bearer tokens for the
// operator REST surface.
type AuthService interface {
	Authorize(ctx context.Context, idTag string, now time.Time) (domain.AuthResult, error)
	CreateUser(ctx context.Context, user *domain.User) error
	ListUsers(ctx context.Context) ([]domain.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	ValidateToken(ctx context.Context, token string) (*domain.User, error)
}

// CommandResult is the outcome of one outbound command to one station.
type CommandResult struct {
	Status   string          `json:"status"` // success | failed
	Response json.RawMessage `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// CommandDispatcher is the control-plane API for sending OCPP calls to
// connected stations.
type CommandDispatcher interface {
	SendCommand(ctx context.Context, stationID, action string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error)
	Broadcast(ctx context.Context, action string, payload json.RawMessage, timeout time.Duration) map[string]CommandResult
	// ConnectedStations lists the ids with a live session.
	ConnectedStations() []string
}

// Cache is a simple key-value cache port (Redis-backed in production, with an
// in-memory fallback).
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping() error
	Close() error
}
