package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	v16 "github.com/voltgrid/csms/internal/ocpp/v16"
	"github.com/voltgrid/csms/internal/ocpp/wire"
)

// SimulatorConfig holds the simulator configuration
type SimulatorConfig struct {
	ServerURL       string
	ChargePointID   string
	Vendor          string
	Model           string
	SerialNumber    string
	FirmwareVersion string
	DefaultIdTag    string
	ConnectorCount  int
	MeterInterval   int
}

// ConnectorState tracks one simulated connector
type ConnectorState struct {
	ID            int
	Status        string // Available, Preparing, Charging, Faulted, ...
	MeterWh       int
	TransactionID int // 0 when idle
}

// Simulator is an OCPP 1.6J charge point talking to the CSMS over OCPP-J.
type Simulator struct {
	config     *SimulatorConfig
	conn       *websocket.Conn
	log        *zap.Logger
	connectors []ConnectorState

	heartbeatInterval int

	pendingMsgs map[string]chan *wire.Frame
	mu          sync.Mutex

	writeMu  sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSimulator(config *SimulatorConfig, log *zap.Logger) *Simulator {
	connectors := make([]ConnectorState, config.ConnectorCount)
	for i := range connectors {
		connectors[i] = ConnectorState{ID: i + 1, Status: "Available"}
	}

	return &Simulator{
		config:            config,
		log:               log,
		connectors:        connectors,
		pendingMsgs:       make(map[string]chan *wire.Frame),
		stopChan:          make(chan struct{}),
		heartbeatInterval: 300,
	}
}

// Connect dials the CSMS, sends BootNotification and starts the background
// heartbeat and meter loops.
func (s *Simulator) Connect() error {
	url := fmt.Sprintf("%s/%s", s.config.ServerURL, s.config.ChargePointID)

	dialer := websocket.Dialer{
		Subprotocols: []string{"ocpp1.6"},
	}

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	s.conn = conn
	s.log.Info("Connected to CSMS",
		zap.String("url", url),
		zap.String("subprotocol", conn.Subprotocol()))

	s.wg.Add(1)
	go s.readLoop()

	if err := s.bootNotification(); err != nil {
		return fmt.Errorf("boot notification: %w", err)
	}

	for i := range s.connectors {
		s.statusNotification(s.connectors[i].ID, s.connectors[i].Status, "NoError")
	}

	s.wg.Add(2)
	go s.heartbeatLoop()
	go s.meterLoop()

	return nil
}

func (s *Simulator) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		if s.conn != nil {
			s.conn.Close()
		}
	})
	s.wg.Wait()
}

func (s *Simulator) bootNotification() error {
	resp, err := s.call(v16.ActionBootNotification, v16.BootNotificationRequest{
		ChargePointVendor:       s.config.Vendor,
		ChargePointModel:        s.config.Model,
		ChargePointSerialNumber: s.config.SerialNumber,
		FirmwareVersion:         s.config.FirmwareVersion,
	})
	if err != nil {
		return err
	}

	var boot v16.BootNotificationResponse
	if err := json.Unmarshal(resp, &boot); err != nil {
		return err
	}
	if boot.Status != "Accepted" {
		return fmt.Errorf("boot rejected with status %s", boot.Status)
	}
	if boot.Interval > 0 {
		s.heartbeatInterval = boot.Interval
	}
	s.log.Info("Boot accepted",
		zap.Int("heartbeat_interval", s.heartbeatInterval),
		zap.String("server_time", boot.CurrentTime))
	return nil
}

func (s *Simulator) heartbeatLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Duration(s.heartbeatInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.call(v16.ActionHeartbeat, v16.HeartbeatRequest{}); err != nil {
				s.log.Warn("Heartbeat failed", zap.Error(err))
			}
		case <-s.stopChan:
			return
		}
	}
}

// meterLoop advances every charging connector's meter and reports it.
func (s *Simulator) meterLoop() {
	defer s.wg.Done()
	interval := s.config.MeterInterval
	if interval <= 0 {
		interval = 30
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for i := range s.connectors {
				c := &s.connectors[i]
				if c.TransactionID == 0 {
					continue
				}
				c.MeterWh += 250 // ~7.5 kW at a 2 minute cadence
				s.meterValues(c.ID, c.TransactionID, c.MeterWh)
			}
		case <-s.stopChan:
			return
		}
	}
}

// StartCharging runs Authorize then StartTransaction for the connector.
func (s *Simulator) StartCharging(connectorID int, idTag string) error {
	c := s.connector(connectorID)
	if c == nil {
		return fmt.Errorf("no connector %d", connectorID)
	}
	if c.TransactionID != 0 {
		return fmt.Errorf("connector %d already charging (tx %d)", connectorID, c.TransactionID)
	}
	if idTag == "" {
		idTag = s.config.DefaultIdTag
	}

	resp, err := s.call(v16.ActionAuthorize, v16.AuthorizeRequest{IdTag: idTag})
	if err != nil {
		return err
	}
	var auth v16.AuthorizeResponse
	if err := json.Unmarshal(resp, &auth); err != nil {
		return err
	}
	if auth.IdTagInfo.Status != "Accepted" {
		return fmt.Errorf("authorization refused: %s", auth.IdTagInfo.Status)
	}

	resp, err = s.call(v16.ActionStartTransaction, v16.StartTransactionRequest{
		ConnectorId: connectorID,
		IdTag:       idTag,
		MeterStart:  c.MeterWh,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	var start v16.StartTransactionResponse
	if err := json.Unmarshal(resp, &start); err != nil {
		return err
	}
	if start.IdTagInfo.Status != "Accepted" {
		return fmt.Errorf("start refused: %s", start.IdTagInfo.Status)
	}

	c.TransactionID = start.TransactionId
	c.Status = "Charging"
	s.statusNotification(connectorID, "Charging", "NoError")
	s.log.Info("Charging started",
		zap.Int("connector", connectorID),
		zap.Int("transaction_id", start.TransactionId))
	return nil
}

// StopCharging ends the connector's transaction.
func (s *Simulator) StopCharging(connectorID int) error {
	c := s.connector(connectorID)
	if c == nil {
		return fmt.Errorf("no connector %d", connectorID)
	}
	if c.TransactionID == 0 {
		return fmt.Errorf("connector %d is not charging", connectorID)
	}

	_, err := s.call(v16.ActionStopTransaction, v16.StopTransactionRequest{
		TransactionId: c.TransactionID,
		MeterStop:     c.MeterWh,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Reason:        "Local",
	})
	if err != nil {
		return err
	}

	s.log.Info("Charging stopped",
		zap.Int("connector", connectorID),
		zap.Int("transaction_id", c.TransactionID))
	c.TransactionID = 0
	c.Status = "Available"
	s.statusNotification(connectorID, "Available", "NoError")
	return nil
}

func (s *Simulator) statusNotification(connectorID int, status, errorCode string) {
	_, err := s.call(v16.ActionStatusNotification, v16.StatusNotificationRequest{
		ConnectorId: connectorID,
		ErrorCode:   errorCode,
		Status:      status,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.log.Warn("StatusNotification failed", zap.Int("connector", connectorID), zap.Error(err))
	}
}

func (s *Simulator) meterValues(connectorID, transactionID, meterWh int) {
	_, err := s.call(v16.ActionMeterValues, v16.MeterValuesRequest{
		ConnectorId:   connectorID,
		TransactionId: &transactionID,
		MeterValue: []v16.MeterValue{{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			SampledValue: []v16.SampledValue{{
				Value:     strconv.Itoa(meterWh),
				Measurand: "Energy.Active.Import.Register",
				Unit:      "Wh",
			}},
		}},
	})
	if err != nil {
		s.log.Warn("MeterValues failed", zap.Int("connector", connectorID), zap.Error(err))
	}
}

// call sends a CALL and waits for the matching CALLRESULT.
func (s *Simulator) call(action string, payload interface{}) (json.RawMessage, error) {
	messageID := uuid.NewString()
	data, err := wire.MarshalCall(messageID, action, payload)
	if err != nil {
		return nil, err
	}

	ch := make(chan *wire.Frame, 1)
	s.mu.Lock()
	s.pendingMsgs[messageID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pendingMsgs, messageID)
		s.mu.Unlock()
	}()

	if err := s.write(data); err != nil {
		return nil, err
	}

	select {
	case frame := <-ch:
		if frame.Type == wire.CallError {
			return nil, fmt.Errorf("%s rejected: [%s] %s", action, frame.ErrorCode, frame.ErrorDescription)
		}
		return frame.Payload, nil
	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("%s timed out", action)
	case <-s.stopChan:
		return nil, fmt.Errorf("simulator stopped")
	}
}

func (s *Simulator) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Simulator) readLoop() {
	defer s.wg.Done()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopChan:
			default:
				s.log.Warn("Connection lost", zap.Error(err))
			}
			return
		}

		frame, err := wire.Decode(data)
		if err != nil {
			s.log.Warn("Undecodable frame from server", zap.Error(err))
			continue
		}

		switch frame.Type {
		case wire.Call:
			s.handleCall(frame)
		case wire.CallResult, wire.CallError:
			s.mu.Lock()
			ch, ok := s.pendingMsgs[frame.MessageID]
			s.mu.Unlock()
			if ok {
				ch <- frame
			} else {
				s.log.Warn("Result for unknown message", zap.String("message_id", frame.MessageID))
			}
		}
	}
}

// handleCall answers CSMS-initiated requests.
func (s *Simulator) handleCall(frame *wire.Frame) {
	s.log.Info("Received command",
		zap.String("action", frame.Action),
		zap.String("message_id", frame.MessageID))

	var response interface{}
	switch frame.Action {
	case v16.ActionRemoteStartTransaction:
		var req v16.RemoteStartTransactionRequest
		if err := json.Unmarshal(frame.Payload, &req); err != nil {
			s.replyError(frame.MessageID, wire.ErrFormationViolation, err.Error())
			return
		}
		connectorID := 1
		if req.ConnectorId != nil {
			connectorID = *req.ConnectorId
		}
		response = v16.RemoteStartTransactionResponse{Status: "Accepted"}
		// Respond first, then start the transaction like real hardware.
		go func() {
			time.Sleep(500 * time.Millisecond)
			if err := s.StartCharging(connectorID, req.IdTag); err != nil {
				s.log.Warn("Remote start failed", zap.Error(err))
			}
		}()

	case v16.ActionRemoteStopTransaction:
		var req v16.RemoteStopTransactionRequest
		if err := json.Unmarshal(frame.Payload, &req); err != nil {
			s.replyError(frame.MessageID, wire.ErrFormationViolation, err.Error())
			return
		}
		target := s.connectorByTx(req.TransactionId)
		if target == nil {
			response = v16.RemoteStopTransactionResponse{Status: "Rejected"}
			break
		}
		response = v16.RemoteStopTransactionResponse{Status: "Accepted"}
		go func(id int) {
			time.Sleep(500 * time.Millisecond)
			if err := s.StopCharging(id); err != nil {
				s.log.Warn("Remote stop failed", zap.Error(err))
			}
		}(target.ID)

	case v16.ActionReset:
		response = v16.ResetResponse{Status: "Accepted"}

	case v16.ActionChangeAvailability:
		response = v16.ChangeAvailabilityResponse{Status: "Accepted"}

	case v16.ActionUnlockConnector:
		response = v16.UnlockConnectorResponse{Status: "Unlocked"}

	case v16.ActionClearCache:
		response = v16.ClearCacheResponse{Status: "Accepted"}

	case v16.ActionTriggerMessage:
		var req v16.TriggerMessageRequest
		if err := json.Unmarshal(frame.Payload, &req); err != nil {
			s.replyError(frame.MessageID, wire.ErrFormationViolation, err.Error())
			return
		}
		response = v16.TriggerMessageResponse{Status: "Accepted"}
		go s.handleTrigger(req)

	default:
		s.replyError(frame.MessageID, wire.ErrNotImplemented, "action "+frame.Action+" not supported by simulator")
		return
	}

	data, err := wire.MarshalCallResult(frame.MessageID, response)
	if err != nil {
		s.log.Error("Response marshal failed", zap.Error(err))
		return
	}
	if err := s.write(data); err != nil {
		s.log.Warn("Response write failed", zap.Error(err))
	}
}

func (s *Simulator) handleTrigger(req v16.TriggerMessageRequest) {
	time.Sleep(200 * time.Millisecond)
	switch req.RequestedMessage {
	case "Heartbeat":
		s.call(v16.ActionHeartbeat, v16.HeartbeatRequest{}) //nolint:errcheck
	case "StatusNotification":
		for i := range s.connectors {
			c := &s.connectors[i]
			if req.ConnectorId == nil || *req.ConnectorId == c.ID {
				s.statusNotification(c.ID, c.Status, "NoError")
			}
		}
	case "BootNotification":
		s.bootNotification() //nolint:errcheck
	}
}

func (s *Simulator) replyError(messageID, code, description string) {
	data, err := wire.MarshalCallError(messageID, code, description, nil)
	if err != nil {
		return
	}
	if err := s.write(data); err != nil {
		s.log.Warn("Error write failed", zap.Error(err))
	}
}

func (s *Simulator) connector(id int) *ConnectorState {
	for i := range s.connectors {
		if s.connectors[i].ID == id {
			return &s.connectors[i]
		}
	}
	return nil
}

func (s *Simulator) connectorByTx(txID int) *ConnectorState {
	for i := range s.connectors {
		if s.connectors[i].TransactionID == txID {
			return &s.connectors[i]
		}
	}
	return nil
}

// RunInteractive reads commands from stdin until quit.
func (s *Simulator) RunInteractive() {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "start":
			if len(fields) < 2 {
				err = fmt.Errorf("usage: start <connector> [idTag]")
				break
			}
			connectorID, convErr := strconv.Atoi(fields[1])
			if convErr != nil {
				err = convErr
				break
			}
			tag := ""
			if len(fields) > 2 {
				tag = fields[2]
			}
			err = s.StartCharging(connectorID, tag)

		case "stop":
			if len(fields) < 2 {
				err = fmt.Errorf("usage: stop <connector>")
				break
			}
			connectorID, convErr := strconv.Atoi(fields[1])
			if convErr != nil {
				err = convErr
				break
			}
			err = s.StopCharging(connectorID)

		case "status":
			if len(fields) < 3 {
				err = fmt.Errorf("usage: status <connector> <state>")
				break
			}
			connectorID, convErr := strconv.Atoi(fields[1])
			if convErr != nil {
				err = convErr
				break
			}
			if c := s.connector(connectorID); c != nil {
				c.Status = fields[2]
			}
			s.statusNotification(connectorID, fields[2], "NoError")

		case "meter":
			if len(fields) < 3 {
				err = fmt.Errorf("usage: meter <connector> <wh>")
				break
			}
			connectorID, convErr := strconv.Atoi(fields[1])
			if convErr != nil {
				err = convErr
				break
			}
			wh, convErr := strconv.Atoi(fields[2])
			if convErr != nil {
				err = convErr
				break
			}
			c := s.connector(connectorID)
			if c == nil {
				err = fmt.Errorf("no connector %d", connectorID)
				break
			}
			c.MeterWh = wh
			if c.TransactionID != 0 {
				s.meterValues(c.ID, c.TransactionID, c.MeterWh)
			}

		case "heartbeat":
			_, err = s.call(v16.ActionHeartbeat, v16.HeartbeatRequest{})

		case "fault":
			if len(fields) < 2 {
				err = fmt.Errorf("usage: fault <connector>")
				break
			}
			connectorID, convErr := strconv.Atoi(fields[1])
			if convErr != nil {
				err = convErr
				break
			}
			if c := s.connector(connectorID); c != nil {
				c.Status = "Faulted"
			}
			s.statusNotification(connectorID, "Faulted", "OtherError")

		case "quit", "exit":
			s.Stop()
			return

		default:
			err = fmt.Errorf("unknown command %q", fields[0])
		}

		if err != nil {
			fmt.Println("error:", err)
		}
	}
}
