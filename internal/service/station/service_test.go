package station

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/mocks"
	"github.com/voltgrid/csms/internal/ports"
)

type fixture struct {
	svc      ports.StationService
	repo     *mocks.MockStationRepository
	connRepo *mocks.MockConnectorRepository
	cache    *mocks.MockCache
	mq       *mocks.MockMessageQueue
}

func newFixture() *fixture {
	f := &fixture{
		repo:     mocks.NewMockStationRepository(),
		connRepo: mocks.NewMockConnectorRepository(),
		cache:    mocks.NewMockCache(),
		mq:       mocks.NewMockMessageQueue(),
	}
	f.svc = NewService(f.repo, f.connRepo, f.cache, f.mq, 0, zap.NewNop())
	return f
}

var bootAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestUpsertOnBootCreatesStationWithDefaultConnector(t *testing.T) {
	f := newFixture()

	st, err := f.svc.UpsertOnBoot(context.Background(), "CP-1", "VoltCo", "VX-2", "SN1", "1.0", domain.ProtocolV16, bootAt)
	if err != nil {
		t.Fatalf("boot failed: %v", err)
	}

	if st.Status != domain.StationStatusOnline || st.HeartbeatInterval != DefaultHeartbeatInterval {
		t.Errorf("unexpected station: %+v", st)
	}
	if st.LastBootAt == nil || !st.LastBootAt.Equal(bootAt) {
		t.Errorf("last boot not stamped: %+v", st.LastBootAt)
	}

	conns, _ := f.connRepo.FindByStation(context.Background(), "CP-1")
	if len(conns) != 1 || conns[0].ConnectorID != 1 || conns[0].Status != domain.ConnectorStatusAvailable {
		t.Errorf("expected one Available default connector, got %+v", conns)
	}
}

func TestUpsertOnBootWritesStationBeforeConnector(t *testing.T) {
	f := newFixture()

	// The connector row carries a foreign key to the station, so the station
	// row must land first on an implicit registration.
	var order []string
	f.repo.SaveFunc = func(context.Context, *domain.Station) error {
		order = append(order, "station")
		return nil
	}
	f.connRepo.SaveFunc = func(context.Context, *domain.Connector) error {
		order = append(order, "connector")
		return nil
	}

	if _, err := f.svc.UpsertOnBoot(context.Background(), "CP-1", "VoltCo", "VX-2", "SN1", "1.0", domain.ProtocolV16, bootAt); err != nil {
		t.Fatalf("boot failed: %v", err)
	}

	if len(order) != 2 || order[0] != "station" || order[1] != "connector" {
		t.Errorf("unexpected write order: %v", order)
	}
}

func TestUpsertOnBootRefreshesExisting(t *testing.T) {
	f := newFixture()
	f.repo.Save(context.Background(), &domain.Station{
		ID: "CP-1", Vendor: "OldCo", HeartbeatInterval: 60, Blocked: true,
	})

	st, err := f.svc.UpsertOnBoot(context.Background(), "CP-1", "VoltCo", "VX-3", "", "2.0", domain.ProtocolV201, bootAt)
	if err != nil {
		t.Fatalf("boot failed: %v", err)
	}

	if st.Vendor != "VoltCo" || st.Model != "VX-3" || st.ProtocolVersion != domain.ProtocolV201 {
		t.Errorf("identity not refreshed: %+v", st)
	}
	if st.HeartbeatInterval != 60 {
		t.Errorf("operator-set interval must survive boots, got %d", st.HeartbeatInterval)
	}
	if !st.Blocked {
		t.Error("block flag must survive boots")
	}
}

func TestUpdateConnectorStatusCreatesUnknownConnector(t *testing.T) {
	f := newFixture()

	err := f.svc.UpdateConnectorStatus(context.Background(), "CP-1", 3, domain.ConnectorStatusAvailable, "NoError", bootAt)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	conn, err := f.connRepo.FindByKey(context.Background(), "CP-1", 3)
	if err != nil {
		t.Fatalf("connector not created: %v", err)
	}
	if conn.Status != domain.ConnectorStatusAvailable {
		t.Errorf("unexpected status: %s", conn.Status)
	}
}

func TestUpdateConnectorStatusPreservesTxKeyWhileOccupied(t *testing.T) {
	f := newFixture()
	txKey := "tx-1"
	f.connRepo.Save(context.Background(), &domain.Connector{
		StationID: "CP-1", ConnectorID: 1,
		Status: domain.ConnectorStatusCharging, CurrentTxKey: &txKey,
	})

	// SuspendedEV still implies the transaction is in flight.
	if err := f.svc.UpdateConnectorStatus(context.Background(), "CP-1", 1, domain.ConnectorStatusSuspendedEV, "", bootAt); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	conn, _ := f.connRepo.FindByKey(context.Background(), "CP-1", 1)
	if conn.CurrentTxKey == nil || *conn.CurrentTxKey != txKey {
		t.Error("transaction reference lost while occupied")
	}

	// Available clears it.
	if err := f.svc.UpdateConnectorStatus(context.Background(), "CP-1", 1, domain.ConnectorStatusAvailable, "", bootAt); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	conn, _ = f.connRepo.FindByKey(context.Background(), "CP-1", 1)
	if conn.CurrentTxKey != nil {
		t.Error("transaction reference must clear when not occupied")
	}
}

func TestUpdateStationStatusPublishes(t *testing.T) {
	f := newFixture()
	f.repo.Save(context.Background(), &domain.Station{ID: "CP-1"})

	if err := f.svc.UpdateStationStatus(context.Background(), "CP-1", domain.StationStatusOffline, bootAt); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if len(f.mq.PublishedMessages["csms.station.status"]) != 1 {
		t.Error("expected a station status event")
	}
}

func TestGetStationCachesResult(t *testing.T) {
	f := newFixture()
	f.repo.Save(context.Background(), &domain.Station{ID: "CP-1", Vendor: "VoltCo"})

	st, err := f.svc.GetStation(context.Background(), "CP-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if st.Vendor != "VoltCo" {
		t.Errorf("unexpected station: %+v", st)
	}

	// Second read is served from cache even if the repo entry vanishes.
	f.repo.Delete(context.Background(), "CP-1")
	st, err = f.svc.GetStation(context.Background(), "CP-1")
	if err != nil {
		t.Fatalf("cached get failed: %v", err)
	}
	if st.Vendor != "VoltCo" {
		t.Errorf("cache miss: %+v", st)
	}
}

func TestRegisterWithConnectors(t *testing.T) {
	f := newFixture()

	err := f.svc.Register(context.Background(), &domain.Station{
		ID: "CP-9",
		Connectors: []domain.Connector{
			{ConnectorID: 1},
			{ConnectorID: 2},
		},
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	conns, _ := f.connRepo.FindByStation(context.Background(), "CP-9")
	if len(conns) != 2 {
		t.Fatalf("expected 2 connectors, got %d", len(conns))
	}
	for _, c := range conns {
		if c.Status != domain.ConnectorStatusAvailable {
			t.Errorf("connector %d not defaulted to Available", c.ConnectorID)
		}
	}
}
