package server

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/edgekv"
)

const (
	HeaderCacheStatus = "X-Cache-Status"
	HeaderMetadata    = "X-KV-Metadata"
	HeaderRequestID   = "X-Request-ID"

	contextKeyRequestID = "_edgekv_request_id"
)

// AppOptions wires the HTTP front to a KV.
type AppOptions struct {
	Logger *logrus.Logger
	KV     *edgekv.KV
	// BodyLimit caps PUT bodies in bytes; 0 keeps fiber's default.
	BodyLimit int
}

// NewApp builds the Fiber application serving the KV routes.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.KV == nil {
		return nil, errors.New("kv is required")
	}

	// keys and queries outlive the request in origin stores and queued
	// refreshes, so params must not alias the request buffer
	app := fiber.New(fiber.Config{
		Immutable:     true,
		CaseSensitive: true,
		UnescapePath:  true,
		BodyLimit:     opts.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	h := &handler{kv: opts.KV, log: opts.Logger}
	app.Get("/-/health", h.health)
	app.Get("/kv", h.list)
	app.Get("/kv/*", h.get)
	app.Put("/kv/*", h.put)
	app.Post("/kv/*", h.put)
	app.Delete("/kv/*", h.delete)

	return app, nil
}

func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := c.Get(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Locals(contextKeyRequestID, reqID)
		c.Set(HeaderRequestID, reqID)
		return c.Next()
	}
}

// RequestID returns the identifier assigned by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
