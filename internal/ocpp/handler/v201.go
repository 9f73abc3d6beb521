package handler

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	v201 "github.com/voltgrid/csms/internal/ocpp/v201"
	"github.com/voltgrid/csms/internal/ocpp/wire"
	"github.com/voltgrid/csms/internal/ports"
)

func (h *Handler) handleV201(ctx context.Context, stationID, action string, req interface{}) (interface{}, *wire.Error) {
	switch r := req.(type) {
	case *v201.BootNotificationRequest:
		return h.bootNotificationV201(ctx, stationID, r)
	case *v201.HeartbeatRequest:
		return h.heartbeatV201(ctx, stationID)
	case *v201.StatusNotificationRequest:
		return h.statusNotificationV201(ctx, stationID, r)
	case *v201.AuthorizeRequest:
		return h.authorizeV201(ctx, stationID, r)
	case *v201.TransactionEventRequest:
		return h.transactionEventV201(ctx, stationID, r)
	case *v201.MeterValuesRequest:
		// Transaction-scoped samples arrive via TransactionEvent in 2.0.1;
		// standalone meter values carry no transaction reference.
		h.log.Debug("standalone meter values", zap.String("station_id", stationID), zap.Int("evse_id", r.EvseId))
		return &v201.MeterValuesResponse{}, nil
	case *v201.DataTransferRequest:
		status, data := h.vendors.Dispatch(stationID, domain.ProtocolV201, r.VendorId, r.MessageId, r.Data)
		return &v201.DataTransferResponse{Status: status, Data: data}, nil
	}
	return nil, wire.NewError(wire.ErrNotImplemented, "action "+action+" has no handler")
}

func (h *Handler) bootNotificationV201(ctx context.Context, stationID string, req *v201.BootNotificationRequest) (interface{}, *wire.Error) {
	h.log.Info("BootNotification",
		zap.String("station_id", stationID),
		zap.String("vendor", req.ChargingStation.VendorName),
		zap.String("model", req.ChargingStation.Model),
		zap.String("reason", req.Reason))

	st, err := h.stations.UpsertOnBoot(ctx, stationID,
		req.ChargingStation.VendorName,
		req.ChargingStation.Model,
		req.ChargingStation.SerialNumber,
		req.ChargingStation.FirmwareVersion,
		domain.ProtocolV201, h.now())
	if err != nil {
		h.log.Error("boot persist failed", zap.String("station_id", stationID), zap.Error(err))
		return &v201.BootNotificationResponse{
			CurrentTime: h.rfc3339Now(),
			Interval:    bootRetryInterval,
			Status:      "Pending",
		}, nil
	}

	status := "Accepted"
	if st.Blocked {
		status = "Rejected"
	}
	return &v201.BootNotificationResponse{
		CurrentTime: h.rfc3339Now(),
		Interval:    st.HeartbeatInterval,
		Status:      status,
	}, nil
}

func (h *Handler) heartbeatV201(ctx context.Context, stationID string) (interface{}, *wire.Error) {
	if err := h.stations.RecordHeartbeat(ctx, stationID, h.now()); err != nil {
		h.log.Warn("heartbeat persist failed", zap.String("station_id", stationID), zap.Error(err))
	}
	return &v201.HeartbeatResponse{CurrentTime: h.rfc3339Now()}, nil
}

func (h *Handler) statusNotificationV201(ctx context.Context, stationID string, req *v201.StatusNotificationRequest) (interface{}, *wire.Error) {
	h.log.Info("StatusNotification",
		zap.String("station_id", stationID),
		zap.Int("evse_id", req.EvseId),
		zap.Int("connector_id", req.ConnectorId),
		zap.String("status", req.ConnectorStatus))

	status, ok := connectorStatusFromV201(req.ConnectorStatus)
	if !ok {
		h.log.Warn("unknown connector status, ignoring",
			zap.String("station_id", stationID),
			zap.String("status", req.ConnectorStatus))
		return &v201.StatusNotificationResponse{}, nil
	}

	// EVSE ids map onto the 1-based connector numbering used for 1.6.
	connectorID := req.EvseId
	if connectorID == 0 {
		connectorID = req.ConnectorId
	}
	if err := h.stations.UpdateConnectorStatus(ctx, stationID, connectorID, status, "", h.parseTimestamp(req.Timestamp)); err != nil {
		h.log.Warn("connector status update failed",
			zap.String("station_id", stationID),
			zap.Int("connector_id", connectorID),
			zap.Error(err))
	}
	return &v201.StatusNotificationResponse{}, nil
}

func (h *Handler) authorizeV201(ctx context.Context, stationID string, req *v201.AuthorizeRequest) (interface{}, *wire.Error) {
	res, err := h.auth.Authorize(ctx, req.IdToken.IdToken, h.now())
	if err != nil {
		// An outage is not a verdict on the token; let the station retry.
		h.log.Error("authorize lookup failed", zap.String("station_id", stationID), zap.Error(err))
		return nil, wire.NewError(wire.ErrInternalError, "authorization unavailable")
	}
	return &v201.AuthorizeResponse{IdTokenInfo: v201.IdTokenInfo{Status: string(res.Status)}}, nil
}

func (h *Handler) transactionEventV201(ctx context.Context, stationID string, req *v201.TransactionEventRequest) (interface{}, *wire.Error) {
	h.log.Info("TransactionEvent",
		zap.String("station_id", stationID),
		zap.String("event_type", req.EventType),
		zap.String("transaction_id", req.TransactionInfo.TransactionId),
		zap.Int("seq_no", req.SeqNo))

	switch req.EventType {
	case v201.EventStarted:
		return h.transactionStartedV201(ctx, stationID, req)
	case v201.EventUpdated:
		return h.transactionUpdatedV201(ctx, stationID, req)
	case v201.EventEnded:
		return h.transactionEndedV201(ctx, stationID, req)
	}
	return nil, wire.NewError(wire.ErrPropertyConstraintViolation, "unknown event type "+req.EventType)
}

func (h *Handler) transactionStartedV201(ctx context.Context, stationID string, req *v201.TransactionEventRequest) (interface{}, *wire.Error) {
	idTag := ""
	if req.IdToken != nil {
		idTag = req.IdToken.IdToken
	}

	resp := &v201.TransactionEventResponse{}
	if idTag != "" {
		res, err := h.auth.Authorize(ctx, idTag, h.now())
		if err != nil {
			return nil, wire.NewError(wire.ErrInternalError, "authorization unavailable")
		}
		resp.IdTokenInfo = &v201.IdTokenInfo{Status: string(res.Status)}
		if res.Status != domain.AuthStatusAccepted {
			return resp, nil
		}
	}

	remoteTxID := req.TransactionInfo.TransactionId
	_, err := h.txs.Open(ctx, ports.OpenTransactionParams{
		StationID:   stationID,
		ConnectorID: evseConnectorID(req.Evse),
		IdTag:       idTag,
		MeterStart:  h.firstEnergyWh(req.MeterValue),
		Timestamp:   h.parseTimestamp(req.Timestamp),
		Version:     domain.ProtocolV201,
		RemoteTxID:  &remoteTxID,
	})
	if errors.Is(err, domain.ErrConnectorBusy) {
		resp.IdTokenInfo = &v201.IdTokenInfo{Status: string(domain.AuthStatusConcurrentTx)}
		return resp, nil
	}
	if err != nil {
		h.log.Error("transaction open failed", zap.String("station_id", stationID), zap.Error(err))
		return nil, wire.NewError(wire.ErrInternalError, "transaction could not be recorded")
	}
	return resp, nil
}

func (h *Handler) transactionUpdatedV201(ctx context.Context, stationID string, req *v201.TransactionEventRequest) (interface{}, *wire.Error) {
	tx, err := h.txs.FindByWireID(ctx, stationID, domain.ProtocolV201, 0, req.TransactionInfo.TransactionId)
	if err != nil {
		h.log.Warn("update for unknown transaction",
			zap.String("station_id", stationID),
			zap.String("transaction_id", req.TransactionInfo.TransactionId),
			zap.Error(err))
		return &v201.TransactionEventResponse{}, nil
	}
	if len(req.MeterValue) > 0 {
		if err := h.txs.AppendMeter(ctx, tx.Key, h.samplesV201(tx.Key, req.MeterValue)); err != nil {
			h.log.Warn("meter append failed", zap.String("tx_key", tx.Key), zap.Error(err))
		}
	}
	return &v201.TransactionEventResponse{}, nil
}

func (h *Handler) transactionEndedV201(ctx context.Context, stationID string, req *v201.TransactionEventRequest) (interface{}, *wire.Error) {
	tx, err := h.txs.Close(ctx, ports.CloseTransactionParams{
		StationID:  stationID,
		Version:    domain.ProtocolV201,
		RemoteTxID: req.TransactionInfo.TransactionId,
		MeterStop:  h.lastEnergyWh(req.MeterValue),
		Reason:     req.TransactionInfo.StoppedReason,
		Timestamp:  h.parseTimestamp(req.Timestamp),
	})
	if errors.Is(err, domain.ErrTransactionNotFound) {
		h.log.Warn("end for unknown transaction",
			zap.String("station_id", stationID),
			zap.String("transaction_id", req.TransactionInfo.TransactionId))
		return &v201.TransactionEventResponse{}, nil
	}
	if err != nil {
		h.log.Error("transaction close failed", zap.String("station_id", stationID), zap.Error(err))
		return nil, wire.NewError(wire.ErrInternalError, "transaction could not be closed")
	}

	if len(req.MeterValue) > 0 {
		if err := h.txs.AppendMeter(ctx, tx.Key, h.samplesV201(tx.Key, req.MeterValue)); err != nil {
			h.log.Warn("meter append failed", zap.String("tx_key", tx.Key), zap.Error(err))
		}
	}
	return &v201.TransactionEventResponse{}, nil
}

func connectorStatusFromV201(s string) (domain.ConnectorStatus, bool) {
	switch s {
	case "Available":
		return domain.ConnectorStatusAvailable, true
	case "Occupied":
		// Transaction events drive the charging states; a bare Occupied only
		// tells us a cable is plugged.
		return domain.ConnectorStatusPreparing, true
	case "Reserved":
		return domain.ConnectorStatusReserved, true
	case "Unavailable":
		return domain.ConnectorStatusUnavailable, true
	case "Faulted":
		return domain.ConnectorStatusFaulted, true
	}
	return "", false
}

func evseConnectorID(e *v201.Evse) int {
	if e == nil {
		return 1
	}
	if e.ConnectorId > 0 {
		return e.ConnectorId
	}
	return e.Id
}

func (h *Handler) samplesV201(txKey string, mvs []v201.MeterValue) []domain.MeterSample {
	var out []domain.MeterSample
	for _, mv := range mvs {
		ts := h.parseTimestamp(mv.Timestamp)
		for _, sv := range mv.SampledValue {
			out = append(out, domain.MeterSample{
				TransactionKey: txKey,
				Timestamp:      ts,
				ValueWh:        whFromV201(sv),
				Measurand:      sv.Measurand,
				Context:        sv.Context,
			})
		}
	}
	return out
}

// firstEnergyWh and lastEnergyWh pick the register reading bracketing a
// transaction. Missing readings yield 0 and the energy math clamps later.
func (h *Handler) firstEnergyWh(mvs []v201.MeterValue) int {
	for _, mv := range mvs {
		for _, sv := range mv.SampledValue {
			if isEnergyRegister(sv.Measurand) {
				return whFromV201(sv)
			}
		}
	}
	return 0
}

func (h *Handler) lastEnergyWh(mvs []v201.MeterValue) int {
	wh := 0
	for _, mv := range mvs {
		for _, sv := range mv.SampledValue {
			if isEnergyRegister(sv.Measurand) {
				wh = whFromV201(sv)
			}
		}
	}
	return wh
}

// isEnergyRegister treats an empty measurand as the default
// Energy.Active.Import.Register per the OCPP measurand rules.
func isEnergyRegister(measurand string) bool {
	return measurand == "" || measurand == "Energy.Active.Import.Register"
}

func whFromV201(sv v201.SampledValue) int {
	f := sv.Value
	if sv.UnitOfMeasure != nil {
		if sv.UnitOfMeasure.Unit == "kWh" || sv.UnitOfMeasure.Unit == "kW" {
			f *= 1000
		}
		if m := sv.UnitOfMeasure.Multiplier; m != 0 {
			f *= math.Pow10(m)
		}
	}
	return int(f)
}
