package domain

import (
	"time"
)

type TransactionStatus string

const (
	TransactionStatusActive    TransactionStatus = "Active"
	TransactionStatusCompleted TransactionStatus = "Completed"
	TransactionStatusAborted   TransactionStatus = "Aborted"
)

// Transaction is one start-to-stop charging session on a single connector.
//
// Key is the internal globally unique identifier. The on-wire id differs by
// protocol version: OCPP 1.6 uses an integer chosen by the CSMS (OcppTxID,
// monotonic per station), OCPP 2.0.1 uses an opaque string chosen by the
// charge point (RemoteTxID). Lookups must pick the field matching the
// session's negotiated version.
type Transaction struct {
	Key         string  `json:"key" gorm:"primaryKey"`
	StationID   string  `json:"station_id" gorm:"index:idx_station_ocpp_tx,unique"`
	ConnectorID int     `json:"connector_id"`
	OcppTxID    *int    `json:"ocpp_tx_id,omitempty" gorm:"index:idx_station_ocpp_tx,unique"`
	RemoteTxID  *string `json:"remote_tx_id,omitempty" gorm:"index"`
	IdTag       string  `json:"id_tag"`
	UserID      string  `json:"user_id,omitempty" gorm:"index"`

	StartTime  time.Time  `json:"start_time"`
	StopTime   *time.Time `json:"stop_time,omitempty"`
	MeterStart int        `json:"meter_start"` // Wh
	MeterStop  *int       `json:"meter_stop,omitempty"`
	EnergyWh   int        `json:"energy_wh"` // meter_stop - meter_start, clamped at 0

	Status     TransactionStatus `json:"status"`
	StopReason string            `json:"stop_reason,omitempty"`

	Samples   []MeterSample `json:"samples,omitempty" gorm:"foreignKey:TransactionKey;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// MeterSample is one appended time-series meter reading for a transaction.
type MeterSample struct {
	ID             uint      `json:"-" gorm:"primaryKey"`
	TransactionKey string    `json:"transaction_key" gorm:"index"`
	Timestamp      time.Time `json:"timestamp"`
	ValueWh        int       `json:"value_wh"`
	Measurand      string    `json:"measurand,omitempty"`
	Context        string    `json:"context,omitempty"`
}
