// Package echoapi is an in-memory stand-in for the school management REST API, used for local
// development and by the tests. It speaks the same paths, JWT auth flow and DRF style errors.
package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/user"
)

type (
	Options struct {
		Address        string
		AppName        string
		SecretKey      []byte
		AccessTTL      time.Duration
		RefreshTTL     time.Duration
		DisableReqLogs bool
		Debug          bool
		Logger         core.Logger
		DB             *DB // a fresh DB when nil
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
		DB() *DB
		IssueTokens(acc Account) (Tokens, error)
	}

	server struct {
		opts      *Options
		app       *echo.Echo
		db        *DB
		validator *core.Validator
	}
)

var _ Server = (*server)(nil)

// NewServer returns a server with every route registered.
func NewServer(opts *Options) Server {
	if opts.DB == nil {
		opts.DB = NewDB()
	}
	if opts.AccessTTL == 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.RefreshTTL == 0 {
		opts.RefreshTTL = 24 * time.Hour
	}
	s := &server{
		opts:      opts,
		app:       echo.New(),
		db:        opts.DB,
		validator: user.NewValidator(),
	}
	s.setup()
	return s
}

// NewServerFromConfig returns a server configured from conf.MockAPI.
func NewServerFromConfig(conf *core.Config, logger core.Logger) Server {
	return NewServer(&Options{
		Address:    conf.MockAPI.Addr,
		AppName:    conf.AppName,
		SecretKey:  []byte(conf.MockAPI.SecretKey),
		AccessTTL:  conf.MockAPI.JWTExpirationDelta,
		RefreshTTL: conf.MockAPI.JWTRefreshExpirationDelta,
		Debug:      conf.Debug,
		Logger:     logger,
	})
}

func (s *server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV mode
	if !s.opts.Debug {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger)
	s.app.Debug = s.opts.Debug

	s.app.GET("/", home)

	registerAuthAPI(s.app, s)
	registerSchoolAPI(s.app, s)
}

func (s *server) Start() error {
	return s.app.Start(s.opts.Address)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) DB() *DB { return s.db }

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the Masomo mock API!")
}
