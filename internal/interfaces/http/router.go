package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/siga-gateway/pkg/logger"
)

// Pinger verifica una dependencia externa (almacén de sesiones).
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps dependencias del servidor operativo.
type RouterDeps struct {
	AppName  string
	Backend  string
	Store    Pinger // nil = siempre listo (almacén en proceso)
	Registry *prometheus.Registry
	Log      *logger.Logger
}

// NewApp construye la aplicación Fiber con las rutas operativas.
func NewApp(deps RouterDeps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               deps.AppName,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           60 * time.Second,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	Router(app, deps)
	return app
}

// Router registra /health, /ready y /metrics.
func Router(app *fiber.App, deps RouterDeps) {
	h := NewOpsHandler(deps.AppName, deps.Backend, deps.Store, deps.Log)
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
	if deps.Registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}
}
