package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/omnichat/ai"
	"github.com/hrygo/omnichat/ai/chat"
	aicontext "github.com/hrygo/omnichat/ai/context"
	"github.com/hrygo/omnichat/ai/metrics"
	"github.com/hrygo/omnichat/internal/logging"
	"github.com/hrygo/omnichat/internal/profile"
	"github.com/hrygo/omnichat/internal/version"
	apiv1 "github.com/hrygo/omnichat/server/router/api/v1"
	"github.com/hrygo/omnichat/store"
)

type healthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Prerelease bool   `json:"prerelease"`
}

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	metrics    *metrics.PrometheusExporter
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	s := &Server{
		Store:   store,
		Profile: profile,
		metrics: metrics.NewPrometheusExporter(metrics.DefaultConfig()),
	}

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.JSONSerializer = apiv1.JSONSerializer{}
	echoServer.HTTPErrorHandler = apiv1.HTTPErrorHandler
	echoServer.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			slog.Error("server: recovered from panic",
				"method", c.Request().Method,
				"path", c.Path(),
				"error", err,
				"stack", string(stack),
			)
			return err
		},
	}))
	echoServer.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, requestID string) {
			ctx := logging.With(c.Request().Context(), "request_id", requestID)
			c.SetRequest(c.Request().WithContext(ctx))
		},
	}))
	s.echoServer = echoServer

	// Healthz endpoint.
	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, healthResponse{
			Status:     "ok",
			Version:    version.String(profile.Mode),
			Prerelease: version.IsPrerelease(version.GetCurrentVersion(profile.Mode)),
		})
	})
	echoServer.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	aiConfig := ai.NewConfigFromProfile(profile)
	providerRouter, err := ai.NewRouter(ctx, aiConfig, s.metrics)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create provider router")
	}
	if aiConfig.Enabled {
		slog.Info("AI providers configured", "candidates", len(aiConfig.Candidates))
	} else {
		slog.Warn("AI features disabled, no provider credentials found")
	}

	assembler := aicontext.NewAssembler(store, aicontext.Config{
		Window:       aiConfig.Context.Window,
		SystemPrompt: aiConfig.Context.SystemPrompt,
	})
	orchestrator := chat.NewOrchestrator(store, assembler, providerRouter, chat.WithRecorder(s.metrics))

	apiV1Service := apiv1.NewAPIV1Service(profile, store, orchestrator, providerRouter)
	apiV1Service.RegisterRoutes(echoServer)

	return s, nil
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(_ context.Context) error {
	address := net.JoinHostPort(s.Profile.Addr, strconv.Itoa(s.Profile.Port))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	s.echoServer.Listener = listener

	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slog.Info("server shutting down")

	// Shutdown echo server.
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	// Close database connection.
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}

	slog.Info("server stopped properly")
}

// Handler exposes the HTTP handler for in-process use.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}
