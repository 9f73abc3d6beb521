// Package registry holds the static per-version OCPP action tables: which
// actions exist, which side may initiate them, and the typed payloads they
// carry. Dispatch is table lookup, never name construction.
package registry

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"github.com/voltgrid/csms/internal/domain"
	v16 "github.com/voltgrid/csms/internal/ocpp/v16"
	v201 "github.com/voltgrid/csms/internal/ocpp/v201"
	"github.com/voltgrid/csms/internal/ocpp/wire"
)

type Direction int

const (
	// FromStation: charge point → CSMS.
	FromStation Direction = iota + 1
	// ToStation: CSMS → charge point.
	ToStation
	// Bidirectional.
	Both
)

// Entry describes one action in one protocol version.
type Entry struct {
	Action      string
	Direction   Direction
	NewRequest  func() interface{}
	NewResponse func() interface{}
}

// Registry is the action table for one protocol version.
type Registry struct {
	version  domain.ProtocolVersion
	entries  map[string]Entry
	validate *validator.Validate
}

var (
	validate    = validator.New()
	registryV16 = build(domain.ProtocolV16, tableV16)
	registryV20 = build(domain.ProtocolV201, tableV201)
)

// ForVersion returns the registry for a negotiated subprotocol.
func ForVersion(v domain.ProtocolVersion) (*Registry, bool) {
	switch v {
	case domain.ProtocolV16:
		return registryV16, true
	case domain.ProtocolV201:
		return registryV20, true
	}
	return nil, false
}

func build(v domain.ProtocolVersion, table []Entry) *Registry {
	r := &Registry{version: v, entries: make(map[string]Entry, len(table)), validate: validate}
	for _, e := range table {
		r.entries[e.Action] = e
	}
	return r
}

func (r *Registry) Version() domain.ProtocolVersion { return r.version }

func (r *Registry) Lookup(action string) (Entry, bool) {
	e, ok := r.entries[action]
	return e, ok
}

// DecodeRequest unmarshals and validates an inbound CALL payload into its
// typed request. Unknown actions yield NotImplemented; actions the station
// may not initiate yield NotSupported; malformed payloads FormationViolation;
// constraint failures PropertyConstraintViolation.
func (r *Registry) DecodeRequest(action string, payload json.RawMessage) (interface{}, *wire.Error) {
	e, ok := r.entries[action]
	if !ok {
		return nil, wire.NewError(wire.ErrNotImplemented, "action "+action+" is not recognized")
	}
	if e.Direction == ToStation {
		return nil, wire.NewError(wire.ErrNotSupported, "action "+action+" is not station-initiated")
	}

	req := e.NewRequest()
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, req); err != nil {
			return nil, wire.NewError(wire.ErrFormationViolation, "malformed "+action+" payload: "+err.Error())
		}
	}
	if err := r.validate.Struct(req); err != nil {
		return nil, wire.NewError(wire.ErrPropertyConstraintViolation, action+" payload constraint violated: "+err.Error())
	}
	return req, nil
}

// CheckOutbound verifies that the CSMS may initiate the action in this
// version and that the payload satisfies the request schema.
func (r *Registry) CheckOutbound(action string, payload json.RawMessage) *wire.Error {
	e, ok := r.entries[action]
	if !ok {
		return wire.NewError(wire.ErrNotImplemented, "action "+action+" is not recognized")
	}
	if e.Direction == FromStation {
		return wire.NewError(wire.ErrNotSupported, "action "+action+" is not CSMS-initiated")
	}

	req := e.NewRequest()
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, req); err != nil {
			return wire.NewError(wire.ErrFormationViolation, "malformed "+action+" payload: "+err.Error())
		}
	}
	if err := r.validate.Struct(req); err != nil {
		return wire.NewError(wire.ErrPropertyConstraintViolation, action+" payload constraint violated: "+err.Error())
	}
	return nil
}

var tableV16 = []Entry{
	{v16.ActionBootNotification, FromStation, func() interface{} { return &v16.BootNotificationRequest{} }, func() interface{} { return &v16.BootNotificationResponse{} }},
	{v16.ActionHeartbeat, FromStation, func() interface{} { return &v16.HeartbeatRequest{} }, func() interface{} { return &v16.HeartbeatResponse{} }},
	{v16.ActionStatusNotification, FromStation, func() interface{} { return &v16.StatusNotificationRequest{} }, func() interface{} { return &v16.StatusNotificationResponse{} }},
	{v16.ActionAuthorize, FromStation, func() interface{} { return &v16.AuthorizeRequest{} }, func() interface{} { return &v16.AuthorizeResponse{} }},
	{v16.ActionStartTransaction, FromStation, func() interface{} { return &v16.StartTransactionRequest{} }, func() interface{} { return &v16.StartTransactionResponse{} }},
	{v16.ActionStopTransaction, FromStation, func() interface{} { return &v16.StopTransactionRequest{} }, func() interface{} { return &v16.StopTransactionResponse{} }},
	{v16.ActionMeterValues, FromStation, func() interface{} { return &v16.MeterValuesRequest{} }, func() interface{} { return &v16.MeterValuesResponse{} }},
	{v16.ActionDataTransfer, Both, func() interface{} { return &v16.DataTransferRequest{} }, func() interface{} { return &v16.DataTransferResponse{} }},

	{v16.ActionRemoteStartTransaction, ToStation, func() interface{} { return &v16.RemoteStartTransactionRequest{} }, func() interface{} { return &v16.RemoteStartTransactionResponse{} }},
	{v16.ActionRemoteStopTransaction, ToStation, func() interface{} { return &v16.RemoteStopTransactionRequest{} }, func() interface{} { return &v16.RemoteStopTransactionResponse{} }},
	{v16.ActionReset, ToStation, func() interface{} { return &v16.ResetRequest{} }, func() interface{} { return &v16.ResetResponse{} }},
	{v16.ActionChangeAvailability, ToStation, func() interface{} { return &v16.ChangeAvailabilityRequest{} }, func() interface{} { return &v16.ChangeAvailabilityResponse{} }},
	{v16.ActionUnlockConnector, ToStation, func() interface{} { return &v16.UnlockConnectorRequest{} }, func() interface{} { return &v16.UnlockConnectorResponse{} }},
	{v16.ActionClearCache, ToStation, func() interface{} { return &v16.ClearCacheRequest{} }, func() interface{} { return &v16.ClearCacheResponse{} }},
	{v16.ActionTriggerMessage, ToStation, func() interface{} { return &v16.TriggerMessageRequest{} }, func() interface{} { return &v16.TriggerMessageResponse{} }},
}

var tableV201 = []Entry{
	{v201.ActionBootNotification, FromStation, func() interface{} { return &v201.BootNotificationRequest{} }, func() interface{} { return &v201.BootNotificationResponse{} }},
	{v201.ActionHeartbeat, FromStation, func() interface{} { return &v201.HeartbeatRequest{} }, func() interface{} { return &v201.HeartbeatResponse{} }},
	{v201.ActionStatusNotification, FromStation, func() interface{} { return &v201.StatusNotificationRequest{} }, func() interface{} { return &v201.StatusNotificationResponse{} }},
	{v201.ActionTransactionEvent, FromStation, func() interface{} { return &v201.TransactionEventRequest{} }, func() interface{} { return &v201.TransactionEventResponse{} }},
	{v201.ActionAuthorize, FromStation, func() interface{} { return &v201.AuthorizeRequest{} }, func() interface{} { return &v201.AuthorizeResponse{} }},
	{v201.ActionMeterValues, FromStation, func() interface{} { return &v201.MeterValuesRequest{} }, func() interface{} { return &v201.MeterValuesResponse{} }},
	{v201.ActionDataTransfer, Both, func() interface{} { return &v201.DataTransferRequest{} }, func() interface{} { return &v201.DataTransferResponse{} }},

	{v201.ActionRequestStartTransaction, ToStation, func() interface{} { return &v201.RequestStartTransactionRequest{} }, func() interface{} { return &v201.RequestStartTransactionResponse{} }},
	{v201.ActionRequestStopTransaction, ToStation, func() interface{} { return &v201.RequestStopTransactionRequest{} }, func() interface{} { return &v201.RequestStopTransactionResponse{} }},
	{v201.ActionReset, ToStation, func() interface{} { return &v201.ResetRequest{} }, func() interface{} { return &v201.ResetResponse{} }},
	{v201.ActionChangeAvailability, ToStation, func() interface{} { return &v201.ChangeAvailabilityRequest{} }, func() interface{} { return &v201.ChangeAvailabilityResponse{} }},
	{v201.ActionUnlockConnector, ToStation, func() interface{} { return &v201.UnlockConnectorRequest{} }, func() interface{} { return &v201.UnlockConnectorResponse{} }},
	{v201.ActionGetVariables, ToStation, func() interface{} { return &v201.GetVariablesRequest{} }, func() interface{} { return &v201.GetVariablesResponse{} }},
	{v201.ActionSetVariables, ToStation, func() interface{} { return &v201.SetVariablesRequest{} }, func() interface{} { return &v201.SetVariablesResponse{} }},
	{v201.ActionTriggerMessage, ToStation, func() interface{} { return &v201.TriggerMessageRequest{} }, func() interface{} { return &v201.TriggerMessageResponse{} }},
	{v201.ActionSetChargingProfile, ToStation, func() interface{} { return &v201.SetChargingProfileRequest{} }, func() interface{} { return &v201.SetChargingProfileResponse{} }},
	{v201.ActionClearCache, ToStation, func() interface{} { return &v201.ClearCacheRequest{} }, func() interface{} { return &v201.ClearCacheResponse{} }},
}
