package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/patients/internal/platform/httperr"
)

type LoginRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// Handler serves POST /login.
type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the login route on g. Extra middleware, such as a
// rate limiter, applies to this route only.
func (h *Handler) RegisterRoutes(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.POST("/login", h.Login, mw...)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := httperr.BindJSON(c, &req); err != nil {
		return err
	}
	if req.Username == nil {
		return httperr.InvalidJSON(http.StatusBadRequest, "Failed to deserialize the JSON body: missing field `username`")
	}
	if req.Password == nil {
		return httperr.InvalidJSON(http.StatusBadRequest, "Failed to deserialize the JSON body: missing field `password`")
	}

	token, err := h.svc.IssueToken(c.Request().Context(), *req.Username, *req.Password)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			h.logger.Info().Str("username", *req.Username).Str("remote_ip", c.RealIP()).Msg("login rejected")
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
		}
		return err
	}

	h.logger.Info().Str("username", *req.Username).Msg("login succeeded")
	return c.JSON(http.StatusOK, LoginResponse{Token: token})
}
