package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RateLimitConfig sets a per-client token bucket.
type RateLimitConfig struct {
	RatePerMinute   float64
	Burst           int
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig suits the login endpoint.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RatePerMinute:   30,
		Burst:           10,
		CleanupInterval: 5 * time.Minute,
	}
}

func (cfg RateLimitConfig) limit() rate.Limit {
	return rate.Limit(cfg.RatePerMinute / 60.0)
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keys a rate.Limiter by client IP. Idle entries are dropped by
// a background loop that runs until Stop.
type RateLimiter struct {
	cfg    RateLimitConfig
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[string]*clientLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewRateLimiter(cfg RateLimitConfig, logger zerolog.Logger) *RateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimitConfig().CleanupInterval
	}
	rl := &RateLimiter{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*clientLimiter),
		stopCh:  make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware answers 429 with a Retry-After header once the client's bucket
// is empty.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if !rl.allow(ip) {
				rl.logger.Warn().Str("remote_ip", ip).Str("path", c.Path()).Msg("rate limit exceeded")
				c.Response().Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, retry later")
			}
			return next(c)
		}
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	cl, ok := rl.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.cfg.limit(), rl.cfg.Burst)}
		rl.clients[key] = cl
	}
	cl.lastAccess = time.Now()
	rl.mu.Unlock()

	return cl.limiter.Allow()
}

// retryAfter is the number of seconds until one token is refilled.
func (rl *RateLimiter) retryAfter() int {
	perSecond := float64(rl.cfg.limit())
	if perSecond <= 0 {
		return 60
	}
	secs := int(math.Ceil(1.0 / perSecond))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (rl *RateLimiter) clientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup drops clients idle for more than two cleanup intervals.
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.cfg.CleanupInterval * 2

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, cl := range rl.clients {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.clients, key)
		}
	}
}
