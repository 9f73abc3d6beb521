package handlers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

// CommandHandler exposes the control plane: sending OCPP calls to connected
// stations from the operator API.
type CommandHandler struct {
	dispatcher ports.CommandDispatcher
	timeout    time.Duration
	log        *zap.Logger
}

func NewCommandHandler(dispatcher ports.CommandDispatcher, timeout time.Duration, log *zap.Logger) *CommandHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CommandHandler{
		dispatcher: dispatcher,
		timeout:    timeout,
		log:        log,
	}
}

type CommandRequest struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
	// TimeoutSeconds overrides the configured command timeout.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

func (h *CommandHandler) Send(c *fiber.Ctx) error {
	stationID := c.Params("id")

	var req CommandRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}
	if req.Action == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Action is required"})
	}

	timeout := h.timeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	resp, err := h.dispatcher.SendCommand(c.Context(), stationID, req.Action, req.Payload, timeout)
	if err != nil {
		if errors.Is(err, domain.ErrStationNotConnected) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Station not connected"})
		}
		h.log.Warn("command failed",
			zap.String("station_id", stationID),
			zap.String("action", req.Action),
			zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"station_id": stationID,
		"action":     req.Action,
		"response":   resp,
	})
}

func (h *CommandHandler) Broadcast(c *fiber.Ctx) error {
	var req CommandRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}
	if req.Action == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Action is required"})
	}

	timeout := h.timeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	results := h.dispatcher.Broadcast(c.Context(), req.Action, req.Payload, timeout)
	return c.JSON(fiber.Map{
		"action":  req.Action,
		"results": results,
	})
}
