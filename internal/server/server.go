package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/mfi_wallet/internal/middleware"
	"github.com/congo-pay/mfi_wallet/internal/routes"
)

const (
	readTimeout  = 30 * time.Second
	writeTimeout = 30 * time.Second
	idleTimeout  = 2 * time.Minute
	bodyLimit    = 1 << 20
)

// Server owns the wallet API listener.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger
}

// New builds the Fiber application and wires every route through
// routes.Setup. The stores in d may be nil in development.
func New(d routes.Deps) (*Server, error) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	app := fiber.New(fiber.Config{
		AppName:               d.Cfg.AppName,
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,
		IdleTimeout:           idleTimeout,
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(d.Logger),
	})

	if err := routes.Setup(app, d); err != nil {
		return nil, err
	}
	return &Server{app: app, addr: d.Cfg.Address(), logger: d.Logger}, nil
}

// errorHandler renders every failed request as JSON carrying the request id.
// Server-side failures never echo their cause; errors that did not come from
// a handler's fiber.Error, such as recovered panics, are logged here.
func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := err.Error()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			msg = fe.Message
		} else {
			logger.Error("unhandled request error",
				slog.String("request_id", middleware.GetRequestID(c)),
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.Any("error", err))
		}
		if code >= fiber.StatusInternalServerError {
			msg = http.StatusText(code)
		}
		return c.Status(code).JSON(fiber.Map{
			"error":      msg,
			"request_id": middleware.GetRequestID(c),
		})
	}
}

// App exposes the underlying Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks serving HTTP on the configured address.
func (s *Server) Listen() error {
	s.logger.Info("http server listening", slog.String("addr", s.addr))
	return s.app.Listen(s.addr)
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}
