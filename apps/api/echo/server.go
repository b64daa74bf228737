package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/automation"
	"github.com/trezcool/masomo-notify/core/delivery"
	"github.com/trezcool/masomo-notify/core/notification"
)

type (
	ServerDeps struct {
		Conf            *core.Config
		Logger          core.Logger
		NotificationSvc *notification.Service
		RuleSvc         *automation.RuleService
		Engine          *automation.Engine
		Registry        *delivery.Registry
		Validate        *validator.Validate
		Translator      ut.Translator
		DisableReqLogs  bool
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		auth     authenticator
		limiter  *rateLimiter
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ http.Handler = (*Server)(nil)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		auth:     newAuthenticator(deps.Conf),
		limiter:  newRateLimiter(deps.Conf.RateLimit),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.auth.config)
	limit := rateLimitMiddleware(s.limiter)

	registerNotificationAPI(v1, jwt, limit, s.deps)
	registerRuleAPI(v1, jwt, limit, s.deps)
	registerEventAPI(v1, jwt, limit, s.deps)
	registerRealtimeAPI(v1, middleware.JWTWithConfig(s.auth.queryConfig()), s.deps)
}

// Start blocks serving HTTP. Listener errors are reported on Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the owner of the server to shut it down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

// Shutdown stops accepting requests, then closes the realtime connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.Shutdown(ctx)
	s.deps.Registry.CloseAll(delivery.ReasonShutdown)
	return err
}

func (s *Server) Close() error {
	s.deps.Registry.CloseAll(delivery.ReasonShutdown)
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Masomo Notifications API!")
}
