package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/mocks"
	v201 "github.com/voltgrid/csms/internal/ocpp/v201"
	"github.com/voltgrid/csms/internal/ocpp/wire"
	"github.com/voltgrid/csms/internal/ports"
)

func TestBootNotificationV201(t *testing.T) {
	stations := &mocks.MockStationService{
		UpsertOnBootFunc: func(_ context.Context, id, vendor, model, _, _ string, version domain.ProtocolVersion, _ time.Time) (*domain.Station, error) {
			if version != domain.ProtocolV201 || vendor != "VoltCo" {
				t.Errorf("unexpected upsert: %s %s", vendor, version)
			}
			return &domain.Station{ID: id, HeartbeatInterval: 300}, nil
		},
	}
	h := newTestHandler(stations, nil, nil)

	resp, werr := h.bootNotificationV201(context.Background(), "CP-2", &v201.BootNotificationRequest{
		Reason:          "PowerUp",
		ChargingStation: v201.ChargingStation{VendorName: "VoltCo", Model: "VX-9"},
	})

	if werr != nil {
		t.Fatalf("expected no error, got %v", werr)
	}
	boot := resp.(*v201.BootNotificationResponse)
	if boot.Status != "Accepted" || boot.Interval != 300 {
		t.Errorf("unexpected response: %+v", boot)
	}
}

func TestStatusNotificationV201MapsOccupied(t *testing.T) {
	var gotStatus domain.ConnectorStatus
	var gotConnector int
	stations := &mocks.MockStationService{
		UpdateConnectorStatusFunc: func(_ context.Context, _ string, connectorID int, status domain.ConnectorStatus, _ string, _ time.Time) error {
			gotConnector, gotStatus = connectorID, status
			return nil
		},
	}
	h := newTestHandler(stations, nil, nil)

	_, werr := h.statusNotificationV201(context.Background(), "CP-2", &v201.StatusNotificationRequest{
		Timestamp: "2026-03-01T12:00:00Z", ConnectorStatus: "Occupied", EvseId: 2, ConnectorId: 1,
	})

	if werr != nil {
		t.Fatalf("expected no error, got %v", werr)
	}
	if gotConnector != 2 || gotStatus != domain.ConnectorStatusPreparing {
		t.Errorf("unexpected update: connector=%d status=%s", gotConnector, gotStatus)
	}
}

func TestTransactionEventStarted(t *testing.T) {
	var opened ports.OpenTransactionParams
	txs := &mocks.MockTransactionService{
		OpenFunc: func(_ context.Context, p ports.OpenTransactionParams) (*domain.Transaction, error) {
			opened = p
			return &domain.Transaction{Key: "k", RemoteTxID: p.RemoteTxID}, nil
		},
	}
	h := newTestHandler(nil, txs, nil)

	resp, werr := h.transactionEventV201(context.Background(), "CP-2", &v201.TransactionEventRequest{
		EventType:       v201.EventStarted,
		Timestamp:       "2026-03-01T12:00:00Z",
		TriggerReason:   "Authorized",
		TransactionInfo: v201.TransactionInfo{TransactionId: "TX-abc"},
		IdToken:         &v201.IdToken{IdToken: "TAG", Type: "ISO14443"},
		Evse:            &v201.Evse{Id: 1, ConnectorId: 1},
		MeterValue: []v201.MeterValue{{
			Timestamp:    "2026-03-01T12:00:00Z",
			SampledValue: []v201.SampledValue{{Value: 250}},
		}},
	})

	if werr != nil {
		t.Fatalf("expected no error, got %v", werr)
	}
	if opened.RemoteTxID == nil || *opened.RemoteTxID != "TX-abc" {
		t.Errorf("expected remote tx id TX-abc, got %+v", opened.RemoteTxID)
	}
	if opened.Version != domain.ProtocolV201 || opened.MeterStart != 250 {
		t.Errorf("unexpected open params: %+v", opened)
	}
	ev := resp.(*v201.TransactionEventResponse)
	if ev.IdTokenInfo == nil || ev.IdTokenInfo.Status != "Accepted" {
		t.Errorf("unexpected response: %+v", ev)
	}
}

func TestTransactionEventStartedBusyConnector(t *testing.T) {
	txs := &mocks.MockTransactionService{
		OpenFunc: func(context.Context, ports.OpenTransactionParams) (*domain.Transaction, error) {
			return nil, domain.ErrConnectorBusy
		},
	}
	h := newTestHandler(nil, txs, nil)

	resp, werr := h.transactionEventV201(context.Background(), "CP-2", &v201.TransactionEventRequest{
		EventType:       v201.EventStarted,
		Timestamp:       "2026-03-01T12:00:00Z",
		TriggerReason:   "CablePluggedIn",
		TransactionInfo: v201.TransactionInfo{TransactionId: "TX-abc"},
		IdToken:         &v201.IdToken{IdToken: "TAG", Type: "ISO14443"},
	})

	if werr != nil {
		t.Fatalf("expected graceful response, got %v", werr)
	}
	ev := resp.(*v201.TransactionEventResponse)
	if ev.IdTokenInfo == nil || ev.IdTokenInfo.Status != string(domain.AuthStatusConcurrentTx) {
		t.Errorf("expected ConcurrentTx, got %+v", ev)
	}
}

func TestTransactionEventUpdatedAppendsMeter(t *testing.T) {
	var appendedKey string
	var appended []domain.MeterSample
	txs := &mocks.MockTransactionService{
		FindByWireIDFunc: func(_ context.Context, _ string, version domain.ProtocolVersion, _ int, remoteTxID string) (*domain.Transaction, error) {
			if version != domain.ProtocolV201 || remoteTxID != "TX-abc" {
				t.Errorf("unexpected lookup: %s %s", version, remoteTxID)
			}
			return &domain.Transaction{Key: "tx-k"}, nil
		},
		AppendMeterFunc: func(_ context.Context, txKey string, samples []domain.MeterSample) error {
			appendedKey, appended = txKey, samples
			return nil
		},
	}
	h := newTestHandler(nil, txs, nil)

	_, werr := h.transactionEventV201(context.Background(), "CP-2", &v201.TransactionEventRequest{
		EventType:       v201.EventUpdated,
		Timestamp:       "2026-03-01T12:30:00Z",
		TriggerReason:   "MeterValuePeriodic",
		TransactionInfo: v201.TransactionInfo{TransactionId: "TX-abc"},
		MeterValue: []v201.MeterValue{{
			Timestamp: "2026-03-01T12:30:00Z",
			SampledValue: []v201.SampledValue{{
				Value:         1.2,
				UnitOfMeasure: &v201.UnitOfMeasure{Unit: "kWh"},
			}},
		}},
	})

	if werr != nil {
		t.Fatalf("expected no error, got %v", werr)
	}
	if appendedKey != "tx-k" || len(appended) != 1 || appended[0].ValueWh != 1200 {
		t.Errorf("unexpected append: key=%s samples=%+v", appendedKey, appended)
	}
}

func TestTransactionEventEnded(t *testing.T) {
	var closed ports.CloseTransactionParams
	txs := &mocks.MockTransactionService{
		CloseFunc: func(_ context.Context, p ports.CloseTransactionParams) (*domain.Transaction, error) {
			closed = p
			return &domain.Transaction{Key: "k", Status: domain.TransactionStatusCompleted}, nil
		},
	}
	h := newTestHandler(nil, txs, nil)

	_, werr := h.transactionEventV201(context.Background(), "CP-2", &v201.TransactionEventRequest{
		EventType:       v201.EventEnded,
		Timestamp:       "2026-03-01T13:00:00Z",
		TriggerReason:   "EVDeparted",
		TransactionInfo: v201.TransactionInfo{TransactionId: "TX-abc", StoppedReason: "EVDisconnected"},
		MeterValue: []v201.MeterValue{{
			Timestamp:    "2026-03-01T13:00:00Z",
			SampledValue: []v201.SampledValue{{Value: 5250}},
		}},
	})

	if werr != nil {
		t.Fatalf("expected no error, got %v", werr)
	}
	if closed.RemoteTxID != "TX-abc" || closed.MeterStop != 5250 || closed.Reason != "EVDisconnected" {
		t.Errorf("unexpected close params: %+v", closed)
	}
}

func TestTransactionEventEndedPersistFailureSurfaces(t *testing.T) {
	txs := &mocks.MockTransactionService{
		CloseFunc: func(context.Context, ports.CloseTransactionParams) (*domain.Transaction, error) {
			return nil, errors.New("db down")
		},
	}
	h := newTestHandler(nil, txs, nil)

	_, werr := h.transactionEventV201(context.Background(), "CP-2", &v201.TransactionEventRequest{
		EventType:       v201.EventEnded,
		Timestamp:       "2026-03-01T13:00:00Z",
		TriggerReason:   "EVDeparted",
		TransactionInfo: v201.TransactionInfo{TransactionId: "TX-abc"},
	})

	if werr == nil || werr.Code != wire.ErrInternalError {
		t.Errorf("expected InternalError, got %v", werr)
	}
}

func TestAuthorizeV201(t *testing.T) {
	auth := &mocks.MockAuthService{
		AuthorizeFunc: func(context.Context, string, time.Time) (domain.AuthResult, error) {
			return domain.AuthResult{Status: domain.AuthStatusExpired}, nil
		},
	}
	h := newTestHandler(nil, nil, auth)

	resp, _ := h.authorizeV201(context.Background(), "CP-2", &v201.AuthorizeRequest{
		IdToken: v201.IdToken{IdToken: "TAG", Type: "ISO14443"},
	})

	if resp.(*v201.AuthorizeResponse).IdTokenInfo.Status != "Expired" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestAuthorizeV201LookupFailure(t *testing.T) {
	auth := &mocks.MockAuthService{
		AuthorizeFunc: func(context.Context, string, time.Time) (domain.AuthResult, error) {
			return domain.AuthResult{}, errors.New("db down")
		},
	}
	h := newTestHandler(nil, nil, auth)

	resp, werr := h.authorizeV201(context.Background(), "CP-2", &v201.AuthorizeRequest{
		IdToken: v201.IdToken{IdToken: "TAG", Type: "ISO14443"},
	})

	// An outage must not read as a verdict on the token.
	if resp != nil {
		t.Errorf("expected no payload, got %+v", resp)
	}
	if werr == nil || werr.Code != wire.ErrInternalError {
		t.Errorf("expected InternalError, got %v", werr)
	}
}

func TestWhFromV201Multiplier(t *testing.T) {
	cases := []struct {
		sv   v201.SampledValue
		want int
	}{
		{v201.SampledValue{Value: 1500}, 1500},
		{v201.SampledValue{Value: 1.5, UnitOfMeasure: &v201.UnitOfMeasure{Unit: "kWh"}}, 1500},
		{v201.SampledValue{Value: 15, UnitOfMeasure: &v201.UnitOfMeasure{Unit: "Wh", Multiplier: 2}}, 1500},
	}
	for i, tc := range cases {
		if got := whFromV201(tc.sv); got != tc.want {
			t.Errorf("case %d: got %d, want %d", i, got, tc.want)
		}
	}
}
