package registry

import (
	"encoding/json"
	"testing"

	"github.com/voltgrid/csms/internal/domain"
	v16 "github.com/voltgrid/csms/internal/ocpp/v16"
	"github.com/voltgrid/csms/internal/ocpp/wire"
)

func TestForVersion(t *testing.T) {
	for _, v := range []domain.ProtocolVersion{domain.ProtocolV16, domain.ProtocolV201} {
		if _, ok := ForVersion(v); !ok {
			t.Errorf("expected registry for %s", v)
		}
	}
	if _, ok := ForVersion("ocpp1.5"); ok {
		t.Error("expected no registry for unsupported version")
	}
}

func TestDecodeRequest(t *testing.T) {
	r, _ := ForVersion(domain.ProtocolV16)

	payload := json.RawMessage(`{"connectorId":1,"idTag":"TAG-1","meterStart":100,"timestamp":"2026-01-01T00:00:00Z"}`)
	req, werr := r.DecodeRequest(v16.ActionStartTransaction, payload)
	if werr != nil {
		t.Fatalf("expected no error, got %v", werr)
	}
	start, ok := req.(*v16.StartTransactionRequest)
	if !ok {
		t.Fatalf("expected *StartTransactionRequest, got %T", req)
	}
	if start.ConnectorId != 1 || start.IdTag != "TAG-1" {
		t.Errorf("unexpected decode: %+v", start)
	}
}

func TestDecodeRequestUnknownAction(t *testing.T) {
	r, _ := ForVersion(domain.ProtocolV16)

	_, werr := r.DecodeRequest("FirmwareStatusNotification", json.RawMessage(`{}`))
	if werr == nil || werr.Code != wire.ErrNotImplemented {
		t.Errorf("expected NotImplemented, got %v", werr)
	}
}

func TestDecodeRequestWrongDirection(t *testing.T) {
	r, _ := ForVersion(domain.ProtocolV16)

	// RemoteStartTransaction is CSMS initiated; a station may not call it.
	_, werr := r.DecodeRequest(v16.ActionRemoteStartTransaction, json.RawMessage(`{"idTag":"T"}`))
	if werr == nil || werr.Code != wire.ErrNotSupported {
		t.Errorf("expected NotSupported, got %v", werr)
	}
}

func TestDecodeRequestMalformedPayload(t *testing.T) {
	r, _ := ForVersion(domain.ProtocolV16)

	_, werr := r.DecodeRequest(v16.ActionAuthorize, json.RawMessage(`{"idTag":42}`))
	if werr == nil || werr.Code != wire.ErrFormationViolation {
		t.Errorf("expected FormationViolation, got %v", werr)
	}
}

func TestDecodeRequestConstraintViolation(t *testing.T) {
	r, _ := ForVersion(domain.ProtocolV16)

	// idTag is required and capped at 20 characters.
	_, werr := r.DecodeRequest(v16.ActionAuthorize, json.RawMessage(`{"idTag":""}`))
	if werr == nil || werr.Code != wire.ErrPropertyConstraintViolation {
		t.Errorf("expected PropertyConstraintViolation, got %v", werr)
	}
}

func TestDecodeRequestEmptyPayload(t *testing.T) {
	r, _ := ForVersion(domain.ProtocolV16)

	req, werr := r.DecodeRequest(v16.ActionHeartbeat, nil)
	if werr != nil {
		t.Fatalf("expected no error, got %v", werr)
	}
	if _, ok := req.(*v16.HeartbeatRequest); !ok {
		t.Errorf("expected *HeartbeatRequest, got %T", req)
	}
}

func TestCheckOutbound(t *testing.T) {
	r, _ := ForVersion(domain.ProtocolV16)

	if werr := r.CheckOutbound(v16.ActionReset, json.RawMessage(`{"type":"Soft"}`)); werr != nil {
		t.Errorf("expected no error, got %v", werr)
	}
	if werr := r.CheckOutbound(v16.ActionReset, json.RawMessage(`{"type":"Gentle"}`)); werr == nil || werr.Code != wire.ErrPropertyConstraintViolation {
		t.Errorf("expected PropertyConstraintViolation, got %v", werr)
	}
	if werr := r.CheckOutbound(v16.ActionBootNotification, json.RawMessage(`{}`)); werr == nil || werr.Code != wire.ErrNotSupported {
		t.Errorf("expected NotSupported for station-initiated action, got %v", werr)
	}
	if werr := r.CheckOutbound("GetDiagnostics", json.RawMessage(`{}`)); werr == nil || werr.Code != wire.ErrNotImplemented {
		t.Errorf("expected NotImplemented, got %v", werr)
	}
}

func TestDataTransferBothDirections(t *testing.T) {
	r, _ := ForVersion(domain.ProtocolV16)

	if _, werr := r.DecodeRequest(v16.ActionDataTransfer, json.RawMessage(`{"vendorId":"acme"}`)); werr != nil {
		t.Errorf("inbound DataTransfer should be allowed, got %v", werr)
	}
	if werr := r.CheckOutbound(v16.ActionDataTransfer, json.RawMessage(`{"vendorId":"acme"}`)); werr != nil {
		t.Errorf("outbound DataTransfer should be allowed, got %v", werr)
	}
}
