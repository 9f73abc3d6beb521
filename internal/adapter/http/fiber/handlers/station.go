package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

type StationHandler struct {
	service    ports.StationService
	dispatcher ports.CommandDispatcher
	log        *zap.Logger
}

func NewStationHandler(service ports.StationService, dispatcher ports.CommandDispatcher, log *zap.Logger) *StationHandler {
	return &StationHandler{
		service:    service,
		dispatcher: dispatcher,
		log:        log,
	}
}

func (h *StationHandler) List(c *fiber.Ctx) error {
	filter := make(map[string]interface{})
	if status := c.Query("status"); status != "" {
		filter["status"] = status
	}
	if vendor := c.Query("vendor"); vendor != "" {
		filter["vendor"] = vendor
	}

	stations, err := h.service.ListStations(c.Context(), filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(stations)
}

func (h *StationHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	st, err := h.service.GetStation(c.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrStationNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Station not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(st)
}

type RegisterStationRequest struct {
	ID                string   `json:"id"`
	Vendor            string   `json:"vendor"`
	Model             string   `json:"model"`
	HeartbeatInterval int      `json:"heartbeat_interval"`
	Connectors        int      `json:"connectors"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
}

func (h *StationHandler) Register(c *fiber.Ctx) error {
	var req RegisterStationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}
	if req.ID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Station id is required"})
	}

	st := domain.Station{
		ID:                req.ID,
		Vendor:            req.Vendor,
		Model:             req.Model,
		HeartbeatInterval: req.HeartbeatInterval,
		Latitude:          req.Latitude,
		Longitude:         req.Longitude,
	}
	if req.Connectors <= 0 {
		req.Connectors = 1
	}
	for i := 1; i <= req.Connectors; i++ {
		st.Connectors = append(st.Connectors, domain.Connector{ConnectorID: i})
	}

	if err := h.service.Register(c.Context(), &st); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(st)
}

// Connected lists the stations with a live OCPP session.
func (h *StationHandler) Connected(c *fiber.Ctx) error {
	ids := h.dispatcher.ConnectedStations()
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(fiber.Map{"stations": ids, "count": len(ids)})
}
