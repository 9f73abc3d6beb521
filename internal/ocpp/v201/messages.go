// Package v201 defines the OCPP 2.0.1 message payloads handled by the CSMS.
package v201

// Action names, charging station initiated.
const (
	ActionBootNotification   = "BootNotification"
	ActionHeartbeat          = "Heartbeat"
	ActionStatusNotification = "StatusNotification"
	ActionTransactionEvent   = "TransactionEvent"
	ActionAuthorize          = "Authorize"
	ActionMeterValues        = "MeterValues"
	ActionDataTransfer       = "DataTransfer"
)

// Action names, CSMS initiated.
const (
	ActionRequestStartTransaction = "RequestStartTransaction"
	ActionRequestStopTransaction  = "RequestStopTransaction"
	ActionReset                   = "Reset"
	ActionChangeAvailability      = "ChangeAvailability"
	ActionUnlockConnector         = "UnlockConnector"
	ActionGetVariables            = "GetVariables"
	ActionSetVariables            = "SetVariables"
	ActionTriggerMessage          = "TriggerMessage"
	ActionSetChargingProfile      = "SetChargingProfile"
	ActionClearCache              = "ClearCache"
)

// TransactionEvent event types.
const (
	EventStarted = "Started"
	EventUpdated = "Updated"
	EventEnded   = "Ended"
)

type ChargingStation struct {
	SerialNumber    string `json:"serialNumber,omitempty" validate:"max=25"`
	Model           string `json:"model" validate:"required,max=20"`
	VendorName      string `json:"vendorName" validate:"required,max=50"`
	FirmwareVersion string `json:"firmwareVersion,omitempty" validate:"max=50"`
}

type BootNotificationRequest struct {
	Reason          string          `json:"reason" validate:"required"`
	ChargingStation ChargingStation `json:"chargingStation" validate:"required"`
}

type BootNotificationResponse struct {
	CurrentTime string      `json:"currentTime"`
	Interval    int         `json:"interval"`
	Status      string      `json:"status"` // Accepted, Pending, Rejected
	StatusInfo  *StatusInfo `json:"statusInfo,omitempty"`
}

type StatusInfo struct {
	ReasonCode     string `json:"reasonCode"`
	AdditionalInfo string `json:"additionalInfo,omitempty"`
}

type HeartbeatRequest struct{}

type HeartbeatResponse struct {
	CurrentTime string `json:"currentTime"`
}

type StatusNotificationRequest struct {
	Timestamp       string `json:"timestamp" validate:"required"`
	ConnectorStatus string `json:"connectorStatus" validate:"required"`
	EvseId          int    `json:"evseId" validate:"gte=0"`
	ConnectorId     int    `json:"connectorId" validate:"gte=0"`
}

type StatusNotificationResponse struct{}

type IdToken struct {
	IdToken string `json:"idToken" validate:"required,max=36"`
	Type    string `json:"type" validate:"required"`
}

type IdTokenInfo struct {
	Status              string `json:"status"`
	CacheExpiryDateTime string `json:"cacheExpiryDateTime,omitempty"`
}

type Evse struct {
	Id          int `json:"id" validate:"required,gt=0"`
	ConnectorId int `json:"connectorId,omitempty"`
}

type SampledValue struct {
	Value         float64        `json:"value"`
	Context       string         `json:"context,omitempty"`
	Measurand     string         `json:"measurand,omitempty"`
	Phase         string         `json:"phase,omitempty"`
	Location      string         `json:"location,omitempty"`
	UnitOfMeasure *UnitOfMeasure `json:"unitOfMeasure,omitempty"`
}

type UnitOfMeasure struct {
	Unit       string `json:"unit,omitempty"`
	Multiplier int    `json:"multiplier,omitempty"`
}

type MeterValue struct {
	Timestamp    string         `json:"timestamp" validate:"required"`
	SampledValue []SampledValue `json:"sampledValue" validate:"required,min=1,dive"`
}

type TransactionInfo struct {
	TransactionId     string `json:"transactionId" validate:"required,max=36"`
	ChargingState     string `json:"chargingState,omitempty"`
	StoppedReason     string `json:"stoppedReason,omitempty"`
	RemoteStartId     *int   `json:"remoteStartId,omitempty"`
	TimeSpentCharging *int   `json:"timeSpentCharging,omitempty"`
}

type TransactionEventRequest struct {
	EventType       string          `json:"eventType" validate:"required,oneof=Started Updated Ended"`
	Timestamp       string          `json:"timestamp" validate:"required"`
	TriggerReason   string          `json:"triggerReason" validate:"required"`
	SeqNo           int             `json:"seqNo" validate:"gte=0"`
	TransactionInfo TransactionInfo `json:"transactionInfo" validate:"required"`
	IdToken         *IdToken        `json:"idToken,omitempty"`
	Evse            *Evse           `json:"evse,omitempty"`
	MeterValue      []MeterValue    `json:"meterValue,omitempty" validate:"dive"`
	Offline         bool            `json:"offline,omitempty"`
}

type TransactionEventResponse struct {
	TotalCost   *float64     `json:"totalCost,omitempty"`
	IdTokenInfo *IdTokenInfo `json:"idTokenInfo,omitempty"`
}

type AuthorizeRequest struct {
	IdToken IdToken `json:"idToken" validate:"required"`
}

type AuthorizeResponse struct {
	IdTokenInfo IdTokenInfo `json:"idTokenInfo"`
}

type MeterValuesRequest struct {
	EvseId     int          `json:"evseId" validate:"gte=0"`
	MeterValue []MeterValue `json:"meterValue" validate:"required,min=1,dive"`
}

type MeterValuesResponse struct{}

type DataTransferRequest struct {
	VendorId  string `json:"vendorId" validate:"required,max=255"`
	MessageId string `json:"messageId,omitempty" validate:"max=50"`
	Data      string `json:"data,omitempty"`
}

type DataTransferResponse struct {
	Status string `json:"status"`
	Data   string `json:"data,omitempty"`
}

type RequestStartTransactionRequest struct {
	IdToken       IdToken `json:"idToken" validate:"required"`
	RemoteStartId int     `json:"remoteStartId" validate:"required"`
	EvseId        *int    `json:"evseId,omitempty" validate:"omitempty,gt=0"`
}

type RequestStartTransactionResponse struct {
	Status        string `json:"status"` // Accepted, Rejected
	TransactionId string `json:"transactionId,omitempty"`
}

type RequestStopTransactionRequest struct {
	TransactionId string `json:"transactionId" validate:"required,max=36"`
}

type RequestStopTransactionResponse struct {
	Status string `json:"status"`
}

type ResetRequest struct {
	Type   string `json:"type" validate:"required,oneof=Immediate OnIdle"`
	EvseId *int   `json:"evseId,omitempty" validate:"omitempty,gt=0"`
}

type ResetResponse struct {
	Status string `json:"status"` // Accepted, Rejected, Scheduled
}

type ChangeAvailabilityRequest struct {
	OperationalStatus string `json:"operationalStatus" validate:"required,oneof=Inoperative Operative"`
	Evse              *Evse  `json:"evse,omitempty"`
}

type ChangeAvailabilityResponse struct {
	Status string `json:"status"`
}

type UnlockConnectorRequest struct {
	EvseId      int `json:"evseId" validate:"required,gt=0"`
	ConnectorId int `json:"connectorId" validate:"required,gt=0"`
}

type UnlockConnectorResponse struct {
	Status string `json:"status"`
}

type GetVariableData struct {
	Component Component `json:"component" validate:"required"`
	Variable  Variable  `json:"variable" validate:"required"`
}

type SetVariableData struct {
	AttributeValue string    `json:"attributeValue" validate:"required,max=1000"`
	Component      Component `json:"component" validate:"required"`
	Variable       Variable  `json:"variable" validate:"required"`
}

type Component struct {
	Name     string `json:"name" validate:"required,max=50"`
	Instance string `json:"instance,omitempty" validate:"max=50"`
	Evse     *Evse  `json:"evse,omitempty"`
}

type Variable struct {
	Name     string `json:"name" validate:"required,max=50"`
	Instance string `json:"instance,omitempty" validate:"max=50"`
}

type GetVariablesRequest struct {
	GetVariableData []GetVariableData `json:"getVariableData" validate:"required,min=1,dive"`
}

type GetVariableResult struct {
	AttributeStatus string    `json:"attributeStatus"`
	AttributeValue  string    `json:"attributeValue,omitempty"`
	Component       Component `json:"component"`
	Variable        Variable  `json:"variable"`
}

type GetVariablesResponse struct {
	GetVariableResult []GetVariableResult `json:"getVariableResult"`
}

type SetVariablesRequest struct {
	SetVariableData []SetVariableData `json:"setVariableData" validate:"required,min=1,dive"`
}

type SetVariableResult struct {
	AttributeStatus string    `json:"attributeStatus"`
	Component       Component `json:"component"`
	Variable        Variable  `json:"variable"`
}

type SetVariablesResponse struct {
	SetVariableResult []SetVariableResult `json:"setVariableResult"`
}

type TriggerMessageRequest struct {
	RequestedMessage string `json:"requestedMessage" validate:"required"`
	Evse             *Evse  `json:"evse,omitempty"`
}

type TriggerMessageResponse struct {
	Status string `json:"status"`
}

type ChargingSchedulePeriod struct {
	StartPeriod int     `json:"startPeriod"`
	Limit       float64 `json:"limit"`
}

type ChargingSchedule struct {
	Id                     int                      `json:"id"`
	ChargingRateUnit       string                   `json:"chargingRateUnit" validate:"required,oneof=W A"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod" validate:"required,min=1"`
	Duration               *int                     `json:"duration,omitempty"`
}

type ChargingProfile struct {
	Id                     int                `json:"id" validate:"required"`
	StackLevel             int                `json:"stackLevel" validate:"gte=0"`
	ChargingProfilePurpose string             `json:"chargingProfilePurpose" validate:"required"`
	ChargingProfileKind    string             `json:"chargingProfileKind" validate:"required"`
	ChargingSchedule       []ChargingSchedule `json:"chargingSchedule" validate:"required,min=1,dive"`
}

type SetChargingProfileRequest struct {
	EvseId          int             `json:"evseId" validate:"gte=0"`
	ChargingProfile ChargingProfile `json:"chargingProfile" validate:"required"`
}

type SetChargingProfileResponse struct {
	Status string `json:"status"`
}

type ClearCacheRequest struct{}

type ClearCacheResponse struct {
	Status string `json:"status"`
}
