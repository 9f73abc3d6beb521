package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

// MockStationRepository is a mock implementation of StationRepository
type MockStationRepository struct {
	mu       sync.Mutex
	stations map[string]*domain.Station

	SaveFunc                func(ctx context.Context, st *domain.Station) error
	FindByIDFunc            func(ctx context.Context, id string) (*domain.Station, error)
	FindAllFunc             func(ctx context.Context, filter map[string]interface{}) ([]domain.Station, error)
	UpdateStatusFunc        func(ctx context.Context, id string, status domain.StationStatus) error
	UpdateHeartbeatFunc     func(ctx context.Context, id string, at time.Time) error
	UpdateLastProfileIDFunc func(ctx context.Context, id string, profileID int) error
	NextTxSeqFunc           func(ctx context.Context, id string) (int, error)
	DeleteFunc              func(ctx context.Context, id string) error
}

func NewMockStationRepository() *MockStationRepository {
	return &MockStationRepository{stations: make(map[string]*domain.Station)}
}

func (m *MockStationRepository) Save(ctx context.Context, st *domain.Station) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, st)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *st
	m.stations[st.ID] = &cp
	return nil
}

func (m *MockStationRepository) FindByID(ctx context.Context, id string) (*domain.Station, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stations[id]
	if !ok {
		return nil, domain.ErrStationNotFound
	}
	cp := *st
	return &cp, nil
}

func (m *MockStationRepository) FindAll(ctx context.Context, filter map[string]interface{}) ([]domain.Station, error) {
	if m.FindAllFunc != nil {
		return m.FindAllFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Station, 0, len(m.stations))
	for _, st := range m.stations {
		out = append(out, *st)
	}
	return out, nil
}

func (m *MockStationRepository) UpdateStatus(ctx context.Context, id string, status domain.StationStatus) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stations[id]
	if !ok {
		return domain.ErrStationNotFound
	}
	st.Status = status
	return nil
}

func (m *MockStationRepository) UpdateHeartbeat(ctx context.Context, id string, at time.Time) error {
	if m.UpdateHeartbeatFunc != nil {
		return m.UpdateHeartbeatFunc(ctx, id, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stations[id]
	if !ok {
		return domain.ErrStationNotFound
	}
	st.LastHeartbeatAt = &at
	st.Status = domain.StationStatusOnline
	return nil
}

func (m *MockStationRepository) UpdateLastProfileID(ctx context.Context, id string, profileID int) error {
	if m.UpdateLastProfileIDFunc != nil {
		return m.UpdateLastProfileIDFunc(ctx, id, profileID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stations[id]
	if !ok {
		return domain.ErrStationNotFound
	}
	st.LastProfileID = &profileID
	return nil
}

func (m *MockStationRepository) NextTxSeq(ctx context.Context, id string) (int, error) {
	if m.NextTxSeqFunc != nil {
		return m.NextTxSeqFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stations[id]
	if !ok {
		return 0, domain.ErrStationNotFound
	}
	st.TxSeq++
	return st.TxSeq, nil
}

func (m *MockStationRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stations, id)
	return nil
}

// MockConnectorRepository is a mock implementation of ConnectorRepository
type MockConnectorRepository struct {
	mu         sync.Mutex
	connectors map[string]*domain.Connector

	SaveFunc          func(ctx context.Context, c *domain.Connector) error
	FindByKeyFunc     func(ctx context.Context, stationID string, connectorID int) (*domain.Connector, error)
	FindByStationFunc func(ctx context.Context, stationID string) ([]domain.Connector, error)
	UpdateStatusFunc  func(ctx context.Context, stationID string, connectorID int, status domain.ConnectorStatus, errorCode string, txKey *string) error
}

func NewMockConnectorRepository() *MockConnectorRepository {
	return &MockConnectorRepository{connectors: make(map[string]*domain.Connector)}
}

func (m *MockConnectorRepository) Save(ctx context.Context, c *domain.Connector) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, c)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.connectors[c.Key()] = &cp
	return nil
}

func (m *MockConnectorRepository) FindByKey(ctx context.Context, stationID string, connectorID int) (*domain.Connector, error) {
	if m.FindByKeyFunc != nil {
		return m.FindByKeyFunc(ctx, stationID, connectorID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connectors[domain.ConnectorKey(stationID, connectorID)]
	if !ok {
		return nil, domain.ErrConnectorNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockConnectorRepository) FindByStation(ctx context.Context, stationID string) ([]domain.Connector, error) {
	if m.FindByStationFunc != nil {
		return m.FindByStationFunc(ctx, stationID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Connector
	for _, c := range m.connectors {
		if c.StationID == stationID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *MockConnectorRepository) UpdateStatus(ctx context.Context, stationID string, connectorID int, status domain.ConnectorStatus, errorCode string, txKey *string) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, stationID, connectorID, status, errorCode, txKey)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connectors[domain.ConnectorKey(stationID, connectorID)]
	if !ok {
		return domain.ErrConnectorNotFound
	}
	c.Status = status
	c.LastErrorCode = errorCode
	c.CurrentTxKey = txKey
	return nil
}

// MockTransactionRepository is a mock implementation of TransactionRepository
type MockTransactionRepository struct {
	mu      sync.Mutex
	txs     map[string]*domain.Transaction
	samples map[string][]domain.MeterSample

	SaveFunc                func(ctx context.Context, tx *domain.Transaction) error
	UpdateFunc              func(ctx context.Context, tx *domain.Transaction) error
	FindByKeyFunc           func(ctx context.Context, key string) (*domain.Transaction, error)
	FindByOcppTxIDFunc      func(ctx context.Context, stationID string, ocppTxID int) (*domain.Transaction, error)
	FindByRemoteTxIDFunc    func(ctx context.Context, stationID, remoteTxID string) (*domain.Transaction, error)
	FindActiveByIdTagFunc   func(ctx context.Context, idTag string) (*domain.Transaction, error)
	FindAllFunc             func(ctx context.Context, filter ports.TransactionFilter) ([]domain.Transaction, error)
	AppendSamplesFunc       func(ctx context.Context, key string, samples []domain.MeterSample) error
	CountSamplesFunc        func(ctx context.Context, key string) (int64, error)
	DeleteOldestSamplesFunc func(ctx context.Context, key string, n int) error
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{
		txs:     make(map[string]*domain.Transaction),
		samples: make(map[string][]domain.MeterSample),
	}
}

func (m *MockTransactionRepository) Save(ctx context.Context, tx *domain.Transaction) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tx
	m.txs[tx.Key] = &cp
	return nil
}

func (m *MockTransactionRepository) Update(ctx context.Context, tx *domain.Transaction) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txs[tx.Key]; !ok {
		return domain.ErrTransactionNotFound
	}
	cp := *tx
	m.txs[tx.Key] = &cp
	return nil
}

func (m *MockTransactionRepository) FindByKey(ctx context.Context, key string) (*domain.Transaction, error) {
	if m.FindByKeyFunc != nil {
		return m.FindByKeyFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[key]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *MockTransactionRepository) FindByOcppTxID(ctx context.Context, stationID string, ocppTxID int) (*domain.Transaction, error) {
	if m.FindByOcppTxIDFunc != nil {
		return m.FindByOcppTxIDFunc(ctx, stationID, ocppTxID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.txs {
		if tx.StationID == stationID && tx.OcppTxID != nil && *tx.OcppTxID == ocppTxID {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (m *MockTransactionRepository) FindByRemoteTxID(ctx context.Context, stationID, remoteTxID string) (*domain.Transaction, error) {
	if m.FindByRemoteTxIDFunc != nil {
		return m.FindByRemoteTxIDFunc(ctx, stationID, remoteTxID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.txs {
		if tx.StationID == stationID && tx.RemoteTxID != nil && *tx.RemoteTxID == remoteTxID {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (m *MockTransactionRepository) FindActiveByIdTag(ctx context.Context, idTag string) (*domain.Transaction, error) {
	if m.FindActiveByIdTagFunc != nil {
		return m.FindActiveByIdTagFunc(ctx, idTag)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.txs {
		if tx.IdTag == idTag && tx.Status == domain.TransactionStatusActive {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (m *MockTransactionRepository) FindAll(ctx context.Context, filter ports.TransactionFilter) ([]domain.Transaction, error) {
	if m.FindAllFunc != nil {
		return m.FindAllFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, tx := range m.txs {
		if filter.StationID != "" && tx.StationID != filter.StationID {
			continue
		}
		if filter.IdTag != "" && tx.IdTag != filter.IdTag {
			continue
		}
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		out = append(out, *tx)
	}
	return out, nil
}

func (m *MockTransactionRepository) AppendSamples(ctx context.Context, key string, samples []domain.MeterSample) error {
	if m.AppendSamplesFunc != nil {
		return m.AppendSamplesFunc(ctx, key, samples)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[key] = append(m.samples[key], samples...)
	return nil
}

func (m *MockTransactionRepository) CountSamples(ctx context.Context, key string) (int64, error) {
	if m.CountSamplesFunc != nil {
		return m.CountSamplesFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.samples[key])), nil
}

func (m *MockTransactionRepository) DeleteOldestSamples(ctx context.Context, key string, n int) error {
	if m.DeleteOldestSamplesFunc != nil {
		return m.DeleteOldestSamplesFunc(ctx, key, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.samples[key]; len(s) > n {
		m.samples[key] = s[n:]
	} else {
		m.samples[key] = nil
	}
	return nil
}

// Samples returns the recorded samples for assertions.
func (m *MockTransactionRepository) Samples(key string) []domain.MeterSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.MeterSample(nil), m.samples[key]...)
}

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User

	SaveFunc        func(ctx context.Context, user *domain.User) error
	FindByIDFunc    func(ctx context.Context, id string) (*domain.User, error)
	FindByIdTagFunc func(ctx context.Context, idTag string) (*domain.User, error)
	FindByEmailFunc func(ctx context.Context, email string) (*domain.User, error)
	FindAllFunc     func(ctx context.Context) ([]domain.User, error)
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[string]*domain.User)}
}

func (m *MockUserRepository) Save(ctx context.Context, user *domain.User) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, user)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *MockUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepository) FindByIdTag(ctx context.Context, idTag string) (*domain.User, error) {
	if m.FindByIdTagFunc != nil {
		return m.FindByIdTagFunc(ctx, idTag)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.IdTag == idTag {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.FindByEmailFunc != nil {
		return m.FindByEmailFunc(ctx, email)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) FindAll(ctx context.Context) ([]domain.User, error) {
	if m.FindAllFunc != nil {
		return m.FindAllFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}
