package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

type TransactionHandler struct {
	service ports.TransactionService
	log     *zap.Logger
}

func NewTransactionHandler(service ports.TransactionService, log *zap.Logger) *TransactionHandler {
	return &TransactionHandler{
		service: service,
		log:     log,
	}
}

func (h *TransactionHandler) List(c *fiber.Ctx) error {
	filter := ports.TransactionFilter{
		StationID: c.Query("station_id"),
		IdTag:     c.Query("id_tag"),
		Status:    domain.TransactionStatus(c.Query("status")),
		Limit:     c.QueryInt("limit", 100),
		Offset:    c.QueryInt("offset", 0),
	}

	txs, err := h.service.List(c.Context(), filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return c.JSON(txs)
}

func (h *TransactionHandler) Get(c *fiber.Ctx) error {
	key := c.Params("key")
	tx, err := h.service.Get(c.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Transaction not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(tx)
}
