package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PageHandler serves every non-admin request: cache lookup, origin fetch and
// store. It allows injecting fake handlers during tests.
type PageHandler interface {
	Handle(fiber.Ctx) error
}

// PageHandlerFunc adapts a function to the PageHandler interface.
type PageHandlerFunc func(fiber.Ctx) error

// Handle makes PageHandlerFunc satisfy PageHandler.
func (f PageHandlerFunc) Handle(c fiber.Ctx) error {
	return f(c)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Pages      PageHandler
	ListenPort int
}

const (
	contextKeyRequestID = "_sitecache_request_id"
	// AdminPrefix 之下的路径由 routes 包注册，不进入页面缓存流程。
	AdminPrefix = "/-/"
)

// NewApp builds a Fiber application with request IDs, panic recovery and the
// page pipeline as catch-all. Admin routes are registered on the returned app.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Pages == nil {
		return nil, errors.New("page handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	app.All("/*", func(c fiber.Ctx) error {
		if IsAdminPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return opts.Pages.Handle(c)
	})

	return app, nil
}

// requestIDMiddleware 为每个请求生成 X-Request-ID。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// IsAdminPath reports whether the path belongs to the admin surface.
func IsAdminPath(path string) bool {
	return strings.HasPrefix(path, AdminPrefix)
}
