package queue

// Subjects carrying CSMS state changes to the operator plane (WebSocket hub,
// external consumers). Payloads are JSON.
const (
	SubjectStationStatus    = "csms.station.status"
	SubjectConnectorStatus  = "csms.connector.status"
	SubjectTransactionEvent = "csms.transaction.event"
)
