package patient

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/patients/internal/platform/auth"
	"github.com/ehr/patients/internal/platform/httperr"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/patient", h.CreatePatient)
	g.GET("/patient", h.ListPatients)
	g.GET("/patient/:patient_id", h.GetPatient)
	g.PATCH("/patient/:patient_id", h.UpdatePatient)
	g.DELETE("/patient/:patient_id", h.DeletePatient)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req CreateRequest
	if err := httperr.BindJSON(c, &req); err != nil {
		return err
	}
	p, err := req.ToPatient()
	if err != nil {
		return httperr.InvalidJSON(http.StatusBadRequest, "Failed to deserialize the JSON body: %s", err.Error())
	}

	created, err := h.svc.Create(c.Request().Context(), p)
	if err != nil {
		return h.translate(c, err)
	}
	h.audit(c, created.PatientID).Msg("patient.created")
	return c.JSON(http.StatusOK, DataResponse{Data: created})
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return h.translate(c, err)
	}
	return c.JSON(http.StatusOK, DataResponse{Data: p})
}

func (h *Handler) ListPatients(c echo.Context) error {
	var f Filter
	if v := c.QueryParam("first_name"); v != "" {
		f.FirstName = &v
	}
	if v := c.QueryParam("surname"); v != "" {
		f.Surname = &v
	}
	if v := c.QueryParam("birth_year"); v != "" {
		year, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "birth_year must be an integer")
		}
		y := int32(year)
		f.BirthYear = &y
	}

	patients, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return h.translate(c, err)
	}
	if patients == nil {
		patients = []*Patient{}
	}
	return c.JSON(http.StatusOK, ListResponse{Patients: patients})
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	var body map[string]json.RawMessage
	if err := httperr.BindJSON(c, &body); err != nil {
		return err
	}
	patch, err := ParsePatch(body)
	if err != nil {
		return h.translate(c, err)
	}

	updated, err := h.svc.Update(c.Request().Context(), id, patch)
	if err != nil {
		return h.translate(c, err)
	}
	h.audit(c, id).Strs("fields", patch.Paths()).Msg("patient.updated")
	return c.JSON(http.StatusOK, DataResponse{Data: updated})
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	deleted, err := h.svc.Delete(c.Request().Context(), id)
	if err != nil {
		return h.translate(c, err)
	}
	h.audit(c, id).Msg("patient.deleted")
	return c.JSON(http.StatusOK, DataResponse{Data: deleted})
}

func patientID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	return id, nil
}

// audit starts an info event carrying the authenticated user and the
// patient. The caller finishes it with the action as message.
func (h *Handler) audit(c echo.Context, id uuid.UUID) *zerolog.Event {
	user := auth.UserIDFromContext(c.Request().Context())
	rid, _ := c.Get("request_id").(string)
	return h.logger.Info().
		Str("user", user).
		Str("patient_id", id.String()).
		Str("request_id", rid)
}

// translate maps service errors onto HTTP errors. Anything unrecognised is
// returned as is and rendered as a 500 by the error handler.
func (h *Handler) translate(c echo.Context, err error) error {
	var immutable *ImmutableFieldError
	var invalid *ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrIntegrity):
		rid, _ := c.Get("request_id").(string)
		h.logger.Error().Err(err).Str("request_id", rid).Msg("patient integrity violation")
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.As(err, &immutable):
		return echo.NewHTTPError(http.StatusBadRequest, immutable.Error())
	case errors.As(err, &invalid):
		return echo.NewHTTPError(http.StatusBadRequest, invalid.Error())
	case errors.Is(err, ErrMalformedPatch):
		return httperr.InvalidJSON(http.StatusBadRequest, "Failed to deserialize the JSON body: %s", err.Error())
	}
	return err
}
