package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

// MockStationService is a mock implementation of StationService
type MockStationService struct {
	UpsertOnBootFunc          func(ctx context.Context, id, vendor, model, serial, firmware string, version domain.ProtocolVersion, now time.Time) (*domain.Station, error)
	RecordHeartbeatFunc       func(ctx context.Context, id string, now time.Time) error
	UpdateConnectorStatusFunc func(ctx context.Context, id string, connectorID int, status domain.ConnectorStatus, errorCode string, now time.Time) error
	UpdateStationStatusFunc   func(ctx context.Context, id string, status domain.StationStatus, now time.Time) error
	RecordChargingProfileFunc func(ctx context.Context, id string, profileID int) error
	RegisterFunc              func(ctx context.Context, st *domain.Station) error
	GetStationFunc            func(ctx context.Context, id string) (*domain.Station, error)
	ListStationsFunc          func(ctx context.Context, filter map[string]interface{}) ([]domain.Station, error)
}

func (m *MockStationService) UpsertOnBoot(ctx context.Context, id, vendor, model, serial, firmware string, version domain.ProtocolVersion, now time.Time) (*domain.Station, error) {
	if m.UpsertOnBootFunc != nil {
		return m.UpsertOnBootFunc(ctx, id, vendor, model, serial, firmware, version, now)
	}
	return &domain.Station{ID: id, Vendor: vendor, Model: model, HeartbeatInterval: 300, Status: domain.StationStatusOnline}, nil
}

func (m *MockStationService) RecordHeartbeat(ctx context.Context, id string, now time.Time) error {
	if m.RecordHeartbeatFunc != nil {
		return m.RecordHeartbeatFunc(ctx, id, now)
	}
	return nil
}

func (m *MockStationService) UpdateConnectorStatus(ctx context.Context, id string, connectorID int, status domain.ConnectorStatus, errorCode string, now time.Time) error {
	if m.UpdateConnectorStatusFunc != nil {
		return m.UpdateConnectorStatusFunc(ctx, id, connectorID, status, errorCode, now)
	}
	return nil
}

func (m *MockStationService) UpdateStationStatus(ctx context.Context, id string, status domain.StationStatus, now time.Time) error {
	if m.UpdateStationStatusFunc != nil {
		return m.UpdateStationStatusFunc(ctx, id, status, now)
	}
	return nil
}

func (m *MockStationService) RecordChargingProfile(ctx context.Context, id string, profileID int) error {
	if m.RecordChargingProfileFunc != nil {
		return m.RecordChargingProfileFunc(ctx, id, profileID)
	}
	return nil
}

func (m *MockStationService) Register(ctx context.Context, st *domain.Station) error {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, st)
	}
	return nil
}

func (m *MockStationService) GetStation(ctx context.Context, id string) (*domain.Station, error) {
	if m.GetStationFunc != nil {
		return m.GetStationFunc(ctx, id)
	}
	return nil, domain.ErrStationNotFound
}

func (m *MockStationService) ListStations(ctx context.Context, filter map[string]interface{}) ([]domain.Station, error) {
	if m.ListStationsFunc != nil {
		return m.ListStationsFunc(ctx, filter)
	}
	return nil, nil
}

// MockTransactionService is a mock implementation of TransactionService
type MockTransactionService struct {
	OpenFunc         func(ctx context.Context, p ports.OpenTransactionParams) (*domain.Transaction, error)
	CloseFunc        func(ctx context.Context, p ports.CloseTransactionParams) (*domain.Transaction, error)
	AppendMeterFunc  func(ctx context.Context, txKey string, samples []domain.MeterSample) error
	FindByWireIDFunc func(ctx context.Context, stationID string, version domain.ProtocolVersion, ocppTxID int, remoteTxID string) (*domain.Transaction, error)
	GetFunc          func(ctx context.Context, key string) (*domain.Transaction, error)
	ListFunc         func(ctx context.Context, filter ports.TransactionFilter) ([]domain.Transaction, error)
}

func (m *MockTransactionService) Open(ctx context.Context, p ports.OpenTransactionParams) (*domain.Transaction, error) {
	if m.OpenFunc != nil {
		return m.OpenFunc(ctx, p)
	}
	ocppTxID := 1
	return &domain.Transaction{
		Key:         "tx-1",
		StationID:   p.StationID,
		ConnectorID: p.ConnectorID,
		OcppTxID:    &ocppTxID,
		RemoteTxID:  p.RemoteTxID,
		IdTag:       p.IdTag,
		MeterStart:  p.MeterStart,
		StartTime:   p.Timestamp,
		Status:      domain.TransactionStatusActive,
	}, nil
}

func (m *MockTransactionService) Close(ctx context.Context, p ports.CloseTransactionParams) (*domain.Transaction, error) {
	if m.CloseFunc != nil {
		return m.CloseFunc(ctx, p)
	}
	return &domain.Transaction{Key: "tx-1", StationID: p.StationID, Status: domain.TransactionStatusCompleted}, nil
}

func (m *MockTransactionService) AppendMeter(ctx context.Context, txKey string, samples []domain.MeterSample) error {
	if m.AppendMeterFunc != nil {
		return m.AppendMeterFunc(ctx, txKey, samples)
	}
	return nil
}

func (m *MockTransactionService) FindByWireID(ctx context.Context, stationID string, version domain.ProtocolVersion, ocppTxID int, remoteTxID string) (*domain.Transaction, error) {
	if m.FindByWireIDFunc != nil {
		return m.FindByWireIDFunc(ctx, stationID, version, ocppTxID, remoteTxID)
	}
	return nil, domain.ErrTransactionNotFound
}

func (m *MockTransactionService) Get(ctx context.Context, key string) (*domain.Transaction, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return nil, domain.ErrTransactionNotFound
}

func (m *MockTransactionService) List(ctx context.Context, filter ports.TransactionFilter) ([]domain.Transaction, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return nil, nil
}

// MockAuthService is a mock implementation of AuthService
type MockAuthService struct {
	AuthorizeFunc     func(ctx context.Context, idTag string, now time.Time) (domain.AuthResult, error)
	CreateUserFunc    func(ctx context.Context, user *domain.User) error
	ListUsersFunc     func(ctx context.Context) ([]domain.User, error)
	LoginFunc         func(ctx context.Context, email, password string) (string, error)
	ValidateTokenFunc func(ctx context.Context, token string) (*domain.User, error)
}

func (m *MockAuthService) Authorize(ctx context.Context, idTag string, now time.Time) (domain.AuthResult, error) {
	if m.AuthorizeFunc != nil {
		return m.AuthorizeFunc(ctx, idTag, now)
	}
	return domain.AuthResult{Status: domain.AuthStatusAccepted}, nil
}

func (m *MockAuthService) CreateUser(ctx context.Context, user *domain.User) error {
	if m.CreateUserFunc != nil {
		return m.CreateUserFunc(ctx, user)
	}
	return nil
}

func (m *MockAuthService) ListUsers(ctx context.Context) ([]domain.User, error) {
	if m.ListUsersFunc != nil {
		return m.ListUsersFunc(ctx)
	}
	return nil, nil
}

func (m *MockAuthService) Login(ctx context.Context, email, password string) (string, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password)
	}
	return "", nil
}

func (m *MockAuthService) ValidateToken(ctx context.Context, token string) (*domain.User, error) {
	if m.ValidateTokenFunc != nil {
		return m.ValidateTokenFunc(ctx, token)
	}
	return nil, domain.ErrUserNotFound
}

// MockCommandDispatcher is a mock implementation of CommandDispatcher
type MockCommandDispatcher struct {
	SendCommandFunc       func(ctx context.Context, stationID, action string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error)
	BroadcastFunc         func(ctx context.Context, action string, payload json.RawMessage, timeout time.Duration) map[string]ports.CommandResult
	ConnectedStationsFunc func() []string
}

func (m *MockCommandDispatcher) SendCommand(ctx context.Context, stationID, action string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	if m.SendCommandFunc != nil {
		return m.SendCommandFunc(ctx, stationID, action, payload, timeout)
	}
	return json.RawMessage(`{"status":"Accepted"}`), nil
}

func (m *MockCommandDispatcher) Broadcast(ctx context.Context, action string, payload json.RawMessage, timeout time.Duration) map[string]ports.CommandResult {
	if m.BroadcastFunc != nil {
		return m.BroadcastFunc(ctx, action, payload, timeout)
	}
	return map[string]ports.CommandResult{}
}

func (m *MockCommandDispatcher) ConnectedStations() []string {
	if m.ConnectedStationsFunc != nil {
		return m.ConnectedStationsFunc()
	}
	return nil
}
