package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 5 * time.Second

// PoolStats is a snapshot of pgxpool counters.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// HealthResponse is the /health/db body.
type HealthResponse struct {
	Status      string     `json:"status"`
	Application string     `json:"application"`
	Pool        *PoolStats `json:"pool"`
}

// Pinger is the part of the pool the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	st := pool.Stat()
	return &PoolStats{
		TotalConns:      st.TotalConns(),
		IdleConns:       st.IdleConns(),
		AcquiredConns:   st.AcquiredConns(),
		MaxConns:        st.MaxConns(),
		AcquireCount:    st.AcquireCount(),
		AcquireDuration: st.AcquireDuration().String(),
		Healthy:         st.TotalConns() > 0,
	}
}

// HealthHandler pings the pool and reports its counters. A failed ping is
// answered with 503.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return healthHandler(pool, func() *PoolStats { return GetPoolStats(pool) })
}

func healthHandler(p Pinger, stats func() *PoolStats) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		resp := HealthResponse{Status: "healthy", Application: ApplicationName}
		pingErr := p.Ping(ctx)
		resp.Pool = stats()
		if pingErr == nil {
			return c.JSON(http.StatusOK, resp)
		}

		// The driver error can name hosts, so it is only logged.
		c.Logger().Errorf("database health check failed: %v", pingErr)
		resp.Status = "unhealthy"
		resp.Pool.Healthy = false
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
}
