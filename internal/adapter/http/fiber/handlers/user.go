package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

type UserHandler struct {
	service ports.AuthService
	log     *zap.Logger
}

func NewUserHandler(service ports.AuthService, log *zap.Logger) *UserHandler {
	return &UserHandler{
		service: service,
		log:     log,
	}
}

type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	IdTag    string `json:"id_tag"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *UserHandler) Create(c *fiber.Ctx) error {
	var req CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}
	if req.IdTag == "" && req.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "An id_tag or email is required"})
	}

	user := domain.User{
		Name:     req.Name,
		Email:    req.Email,
		IdTag:    req.IdTag,
		Password: req.Password,
		Role:     domain.UserRole(req.Role),
	}
	if err := h.service.CreateUser(c.Context(), &user); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	user.Password = ""
	return c.Status(fiber.StatusCreated).JSON(user)
}

func (h *UserHandler) List(c *fiber.Ctx) error {
	users, err := h.service.ListUsers(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if users == nil {
		users = []domain.User{}
	}
	return c.JSON(users)
}
