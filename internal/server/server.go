// Package server assembles the echo application: the middleware chain, the
// infrastructure endpoints and the versioned API routes.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/ehr/patients/internal/config"
	"github.com/ehr/patients/internal/domain/patient"
	"github.com/ehr/patients/internal/platform/auth"
	"github.com/ehr/patients/internal/platform/db"
	"github.com/ehr/patients/internal/platform/httperr"
	"github.com/ehr/patients/internal/platform/middleware"
	"github.com/ehr/patients/internal/platform/openapi"
)

// Version is reported by /health and in the OpenAPI document.
const Version = "0.1.0"

// APIBase prefixes every versioned route.
const APIBase = "/v1"

// BodyLimit caps request bodies; larger ones are answered with 413.
const BodyLimit = "64K"

type Deps struct {
	Logger   zerolog.Logger
	Settings *config.Store
	Auth     *auth.Service
	Patients *patient.Service

	// Pool backs /health/db. The route is not mounted when Pool is nil.
	Pool *pgxpool.Pool
	// Registry receives the HTTP and runtime collectors. A fresh registry is
	// created when nil.
	Registry *prometheus.Registry
	// CORSOrigins defaults to any origin.
	CORSOrigins []string
}

type Server struct {
	echo    *echo.Echo
	limiter *middleware.RateLimiter
	logger  zerolog.Logger
}

func New(d Deps) *Server {
	settings := d.Settings.Load()

	reg := d.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewMetrics(reg)
	d.Auth.SetObserver(metrics)

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	docs := openapi.NewGenerator(Version, APIBase)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httperr.Handler(d.Logger)

	e.Use(middleware.Recovery(d.Logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.Logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
	}))
	e.Use(middleware.SecurityHeaders(docs.PagePolicies()))
	e.Use(metrics.Middleware())
	e.Use(echomw.BodyLimit(BodyLimit))
	e.Use(middleware.RequestTimeoutFunc(func() time.Duration {
		return time.Duration(d.Settings.Load().Server.RequestTimeoutSeconds) * time.Second
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": Version,
		})
	})
	if d.Pool != nil {
		e.GET("/health/db", db.HealthHandler(d.Pool))
	}
	e.GET("/metrics", metrics.Handler())

	limitCfg := middleware.DefaultRateLimitConfig()
	if settings.Login.RatePerMinute > 0 {
		limitCfg.RatePerMinute = settings.Login.RatePerMinute
	}
	if settings.Login.Burst > 0 {
		limitCfg.Burst = settings.Login.Burst
	}
	limiter := middleware.NewRateLimiter(limitCfg, d.Logger)

	v1 := e.Group(APIBase)
	v1.Use(auth.JWTMiddleware(d.Auth, auth.AuthSkipper))

	auth.NewHandler(d.Auth, d.Logger).RegisterRoutes(v1, limiter.Middleware())
	patient.NewHandler(d.Patients, d.Logger).RegisterRoutes(v1)
	docs.RegisterRoutes(v1)

	return &Server{echo: e, limiter: limiter, logger: d.Logger}
}

// Handler exposes the application for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called. It returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	s.logger.Info().Str("addr", addr).Msg("starting server")
	return s.echo.StartServer(srv)
}

// Shutdown drains in-flight requests and stops the login limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.limiter.Stop()
	return s.echo.Shutdown(ctx)
}
