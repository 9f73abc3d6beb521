package domain

import (
	"strconv"
	"time"
)

type StationStatus string

const (
	StationStatusOnline  StationStatus = "Online"
	StationStatusOffline StationStatus = "Offline"
	StationStatusFaulted StationStatus = "Faulted"
	StationStatusUnknown StationStatus = "Unknown"
)

// ProtocolVersion is the OCPP version negotiated during the WebSocket handshake.
type ProtocolVersion string

const (
	ProtocolV16  ProtocolVersion = "ocpp1.6"
	ProtocolV201 ProtocolVersion = "ocpp2.0.1"
)

// Station represents a charging station (charge point). The ID is the
// externally assigned identifier the station presents in its connect URL.
type Station struct {
	ID                string          `json:"id" gorm:"primaryKey"`
	Vendor            string          `json:"vendor"`
	Model             string          `json:"model"`
	SerialNumber      string          `json:"serial_number"`
	FirmwareVersion   string          `json:"firmware_version"`
	ProtocolVersion   ProtocolVersion `json:"protocol_version"`
	Status            StationStatus   `json:"status"`
	HeartbeatInterval int             `json:"heartbeat_interval"` // seconds, sent in BootNotification.conf
	Blocked           bool            `json:"blocked"`            // operator block: boots are rejected
	LastBootAt        *time.Time      `json:"last_boot_at,omitempty"`
	LastHeartbeatAt   *time.Time      `json:"last_heartbeat_at,omitempty"`
	Latitude          *float64        `json:"latitude,omitempty"`
	Longitude         *float64        `json:"longitude,omitempty"`
	// TxSeq is the per-station counter backing OCPP 1.6 integer transaction ids.
	TxSeq int `json:"-"`
	// LastProfileID is the id of the last charging profile pushed via SetChargingProfile.
	LastProfileID *int        `json:"last_profile_id,omitempty"`
	Connectors    []Connector `json:"connectors" gorm:"foreignKey:StationID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type ConnectorStatus string

const (
	ConnectorStatusAvailable     ConnectorStatus = "Available"
	ConnectorStatusPreparing     ConnectorStatus = "Preparing"
	ConnectorStatusCharging      ConnectorStatus = "Charging"
	ConnectorStatusSuspendedEVSE ConnectorStatus = "SuspendedEVSE"
	ConnectorStatusSuspendedEV   ConnectorStatus = "SuspendedEV"
	ConnectorStatusFinishing     ConnectorStatus = "Finishing"
	ConnectorStatusReserved      ConnectorStatus = "Reserved"
	ConnectorStatusUnavailable   ConnectorStatus = "Unavailable"
	ConnectorStatusFaulted       ConnectorStatus = "Faulted"
)

// Occupied reports whether the status implies an in-flight transaction.
// Invariant: CurrentTxKey != nil iff Occupied().
func (s ConnectorStatus) Occupied() bool {
	switch s {
	case ConnectorStatusCharging, ConnectorStatusSuspendedEVSE, ConnectorStatusSuspendedEV, ConnectorStatusFinishing:
		return true
	}
	return false
}

// Connector is a physical outlet on a station. ConnectorID is the 1-based
// logical id within the station; id 0 on the wire addresses the station itself
// and is never stored as a Connector row.
type Connector struct {
	ID            uint            `json:"-" gorm:"primaryKey"`
	StationID     string          `json:"station_id" gorm:"index:idx_station_connector,unique"`
	ConnectorID   int             `json:"connector_id" gorm:"index:idx_station_connector,unique"`
	Status        ConnectorStatus `json:"status"`
	CurrentTxKey  *string         `json:"current_tx_key,omitempty"`
	LastErrorCode string          `json:"last_error_code,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Key returns the serialization key for connector-scoped operations.
func (c *Connector) Key() string {
	return ConnectorKey(c.StationID, c.ConnectorID)
}

func ConnectorKey(stationID string, connectorID int) string {
	return stationID + "/" + strconv.Itoa(connectorID)
}
