package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/siga-gateway/pkg/logger"
)

const readyTimeout = 2 * time.Second

// OpsHandler endpoints de salud del proceso.
type OpsHandler struct {
	name    string
	backend string
	store   Pinger
	log     *logger.Logger
}

// NewOpsHandler construye el handler.
func NewOpsHandler(name, backend string, store Pinger, log *logger.Logger) *OpsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OpsHandler{name: name, backend: backend, store: store, log: log}
}

// Health responde siempre 200 mientras el proceso viva.
func (h *OpsHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "service": h.name})
}

// Ready responde 503 si el almacén de sesiones no contesta.
func (h *OpsHandler) Ready(c *fiber.Ctx) error {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), readyTimeout)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.log.Warn().Err(err).Str("backend", h.backend).Msg("almacén de sesiones no disponible")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":  "unavailable",
				"backend": h.backend,
			})
		}
	}
	return c.JSON(fiber.Map{"status": "ready", "backend": h.backend})
}
