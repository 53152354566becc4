package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"eirbridge/internal/connector"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	registry *connector.Registry
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(registry *connector.Registry) *HealthHandler {
	return &HealthHandler{registry: registry}
}

// Handle responds with server health status.
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":     "healthy",
		"connectors": len(h.registry.Descriptors()),
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}
