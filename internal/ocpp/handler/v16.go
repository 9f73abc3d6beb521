package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	v16 "github.com/voltgrid/csms/internal/ocpp/v16"
	"github.com/voltgrid/csms/internal/ocpp/wire"
	"github.com/voltgrid/csms/internal/ports"
)

func (h *Handler) handleV16(ctx context.Context, stationID, action string, req interface{}) (interface{}, *wire.Error) {
	switch r := req.(type) {
	case *v16.BootNotificationRequest:
		return h.bootNotificationV16(ctx, stationID, r)
	case *v16.HeartbeatRequest:
		return h.heartbeatV16(ctx, stationID)
	case *v16.StatusNotificationRequest:
		return h.statusNotificationV16(ctx, stationID, r)
	case *v16.AuthorizeRequest:
		return h.authorizeV16(ctx, stationID, r)
	case *v16.StartTransactionRequest:
		return h.startTransactionV16(ctx, stationID, r)
	case *v16.StopTransactionRequest:
		return h.stopTransactionV16(ctx, stationID, r)
	case *v16.MeterValuesRequest:
		return h.meterValuesV16(ctx, stationID, r)
	case *v16.DataTransferRequest:
		status, data := h.vendors.Dispatch(stationID, domain.ProtocolV16, r.VendorId, r.MessageId, r.Data)
		return &v16.DataTransferResponse{Status: status, Data: data}, nil
	}
	return nil, wire.NewError(wire.ErrNotImplemented, "action "+action+" has no handler")
}

func (h *Handler) bootNotificationV16(ctx context.Context, stationID string, req *v16.BootNotificationRequest) (interface{}, *wire.Error) {
	h.log.Info("BootNotification",
		zap.String("station_id", stationID),
		zap.String("vendor", req.ChargePointVendor),
		zap.String("model", req.ChargePointModel))

	serial := req.ChargePointSerialNumber
	if serial == "" {
		serial = req.ChargeBoxSerialNumber
	}
	st, err := h.stations.UpsertOnBoot(ctx, stationID, req.ChargePointVendor, req.ChargePointModel, serial, req.FirmwareVersion, domain.ProtocolV16, h.now())
	if err != nil {
		h.log.Error("boot persist failed", zap.String("station_id", stationID), zap.Error(err))
		return &v16.BootNotificationResponse{
			Status:      "Pending",
			CurrentTime: h.rfc3339Now(),
			Interval:    bootRetryInterval,
		}, nil
	}

	status := "Accepted"
	if st.Blocked {
		status = "Rejected"
	}
	return &v16.BootNotificationResponse{
		Status:      status,
		CurrentTime: h.rfc3339Now(),
		Interval:    st.HeartbeatInterval,
	}, nil
}

func (h *Handler) heartbeatV16(ctx context.Context, stationID string) (interface{}, *wire.Error) {
	if err := h.stations.RecordHeartbeat(ctx, stationID, h.now()); err != nil {
		// The station does not care whether we persisted; the reply is the
		// clock sync it is waiting for.
		h.log.Warn("heartbeat persist failed", zap.String("station_id", stationID), zap.Error(err))
	}
	return &v16.HeartbeatResponse{CurrentTime: h.rfc3339Now()}, nil
}

func (h *Handler) statusNotificationV16(ctx context.Context, stationID string, req *v16.StatusNotificationRequest) (interface{}, *wire.Error) {
	h.log.Info("StatusNotification",
		zap.String("station_id", stationID),
		zap.Int("connector_id", req.ConnectorId),
		zap.String("status", req.Status),
		zap.String("error_code", req.ErrorCode))

	ts := h.parseTimestamp(req.Timestamp)

	// Connector id 0 addresses the station itself.
	if req.ConnectorId == 0 {
		status := domain.StationStatusOnline
		if req.Status == "Faulted" {
			status = domain.StationStatusFaulted
		}
		if err := h.stations.UpdateStationStatus(ctx, stationID, status, ts); err != nil {
			h.log.Warn("station status update failed", zap.String("station_id", stationID), zap.Error(err))
		}
		return &v16.StatusNotificationResponse{}, nil
	}

	status, ok := connectorStatusFromWire(req.Status)
	if !ok {
		h.log.Warn("unknown connector status, ignoring",
			zap.String("station_id", stationID),
			zap.String("status", req.Status))
		return &v16.StatusNotificationResponse{}, nil
	}
	if err := h.stations.UpdateConnectorStatus(ctx, stationID, req.ConnectorId, status, req.ErrorCode, ts); err != nil {
		h.log.Warn("connector status update failed",
			zap.String("station_id", stationID),
			zap.Int("connector_id", req.ConnectorId),
			zap.Error(err))
	}
	return &v16.StatusNotificationResponse{}, nil
}

func (h *Handler) authorizeV16(ctx context.Context, stationID string, req *v16.AuthorizeRequest) (interface{}, *wire.Error) {
	res, err := h.auth.Authorize(ctx, req.IdTag, h.now())
	if err != nil {
		// An outage is not a verdict on the token; let the station retry.
		h.log.Error("authorize lookup failed", zap.String("station_id", stationID), zap.Error(err))
		return nil, wire.NewError(wire.ErrInternalError, "authorization unavailable")
	}
	return &v16.AuthorizeResponse{IdTagInfo: v16.IdTagInfo{Status: string(res.Status)}}, nil
}

func (h *Handler) startTransactionV16(ctx context.Context, stationID string, req *v16.StartTransactionRequest) (interface{}, *wire.Error) {
	h.log.Info("StartTransaction",
		zap.String("station_id", stationID),
		zap.Int("connector_id", req.ConnectorId),
		zap.String("id_tag", req.IdTag))

	res, err := h.auth.Authorize(ctx, req.IdTag, h.now())
	if err != nil {
		return nil, wire.NewError(wire.ErrInternalError, "authorization unavailable")
	}
	if res.Status != domain.AuthStatusAccepted {
		return &v16.StartTransactionResponse{
			TransactionId: 0,
			IdTagInfo:     v16.IdTagInfo{Status: string(res.Status)},
		}, nil
	}

	tx, err := h.txs.Open(ctx, ports.OpenTransactionParams{
		StationID:   stationID,
		ConnectorID: req.ConnectorId,
		IdTag:       req.IdTag,
		MeterStart:  req.MeterStart,
		Timestamp:   h.parseTimestamp(req.Timestamp),
		Version:     domain.ProtocolV16,
	})
	if errors.Is(err, domain.ErrConnectorBusy) {
		return &v16.StartTransactionResponse{
			TransactionId: 0,
			IdTagInfo:     v16.IdTagInfo{Status: string(domain.AuthStatusConcurrentTx)},
		}, nil
	}
	if err != nil {
		// Surfacing the failure makes the charge point retry with the same
		// request instead of believing a transaction exists that we lost.
		h.log.Error("transaction open failed", zap.String("station_id", stationID), zap.Error(err))
		return nil, wire.NewError(wire.ErrInternalError, "transaction could not be recorded")
	}

	return &v16.StartTransactionResponse{
		TransactionId: *tx.OcppTxID,
		IdTagInfo:     v16.IdTagInfo{Status: string(domain.AuthStatusAccepted)},
	}, nil
}

func (h *Handler) stopTransactionV16(ctx context.Context, stationID string, req *v16.StopTransactionRequest) (interface{}, *wire.Error) {
	h.log.Info("StopTransaction",
		zap.String("station_id", stationID),
		zap.Int("transaction_id", req.TransactionId),
		zap.Int("meter_stop", req.MeterStop))

	tx, err := h.txs.Close(ctx, ports.CloseTransactionParams{
		StationID: stationID,
		Version:   domain.ProtocolV16,
		OcppTxID:  req.TransactionId,
		MeterStop: req.MeterStop,
		Reason:    req.Reason,
		Timestamp: h.parseTimestamp(req.Timestamp),
	})
	if errors.Is(err, domain.ErrTransactionNotFound) {
		h.log.Warn("stop for unknown transaction",
			zap.String("station_id", stationID),
			zap.Int("transaction_id", req.TransactionId))
		return &v16.StopTransactionResponse{}, nil
	}
	if err != nil {
		h.log.Error("transaction close failed", zap.String("station_id", stationID), zap.Error(err))
		return nil, wire.NewError(wire.ErrInternalError, "transaction could not be closed")
	}

	// transactionData rides along with the stop; losing samples is acceptable,
	// losing the stop is not.
	if len(req.TransactionData) > 0 {
		if err := h.txs.AppendMeter(ctx, tx.Key, h.samplesV16(tx.Key, req.TransactionData)); err != nil {
			h.log.Warn("transaction data append failed", zap.String("tx_key", tx.Key), zap.Error(err))
		}
	}

	resp := &v16.StopTransactionResponse{}
	if req.IdTag != "" {
		resp.IdTagInfo = &v16.IdTagInfo{Status: string(domain.AuthStatusAccepted)}
	}
	return resp, nil
}

func (h *Handler) meterValuesV16(ctx context.Context, stationID string, req *v16.MeterValuesRequest) (interface{}, *wire.Error) {
	if req.TransactionId == nil {
		h.log.Debug("meter values without transaction", zap.String("station_id", stationID))
		return &v16.MeterValuesResponse{}, nil
	}

	tx, err := h.txs.FindByWireID(ctx, stationID, domain.ProtocolV16, *req.TransactionId, "")
	if err != nil {
		h.log.Warn("meter values for unknown transaction",
			zap.String("station_id", stationID),
			zap.Int("transaction_id", *req.TransactionId),
			zap.Error(err))
		return &v16.MeterValuesResponse{}, nil
	}
	if err := h.txs.AppendMeter(ctx, tx.Key, h.samplesV16(tx.Key, req.MeterValue)); err != nil {
		h.log.Warn("meter append failed", zap.String("tx_key", tx.Key), zap.Error(err))
	}
	return &v16.MeterValuesResponse{}, nil
}

func connectorStatusFromWire(s string) (domain.ConnectorStatus, bool) {
	switch domain.ConnectorStatus(s) {
	case domain.ConnectorStatusAvailable,
		domain.ConnectorStatusPreparing,
		domain.ConnectorStatusCharging,
		domain.ConnectorStatusSuspendedEVSE,
		domain.ConnectorStatusSuspendedEV,
		domain.ConnectorStatusFinishing,
		domain.ConnectorStatusReserved,
		domain.ConnectorStatusUnavailable,
		domain.ConnectorStatusFaulted:
		return domain.ConnectorStatus(s), true
	}
	return "", false
}

// samplesV16 flattens meter values into storable samples. Values are
// normalized to Wh; unparsable readings are skipped.
func (h *Handler) samplesV16(txKey string, mvs []v16.MeterValue) []domain.MeterSample {
	var out []domain.MeterSample
	for _, mv := range mvs {
		ts := h.parseTimestamp(mv.Timestamp)
		for _, sv := range mv.SampledValue {
			wh, ok := valueToWh(sv.Value, sv.Unit)
			if !ok {
				continue
			}
			out = append(out, domain.MeterSample{
				TransactionKey: txKey,
				Timestamp:      ts,
				ValueWh:        wh,
				Measurand:      sv.Measurand,
				Context:        sv.Context,
			})
		}
	}
	return out
}

func valueToWh(value, unit string) (int, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, false
	}
	if strings.EqualFold(unit, "kWh") || strings.EqualFold(unit, "kW") {
		f *= 1000
	}
	return int(f), true
}
