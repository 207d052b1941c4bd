package portal

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/psyopd/survey/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patient", auth.RequireUserType(auth.UserTypePatient))
	g.GET("/report", h.GetReport)
}

func (h *Handler) GetReport(c echo.Context) error {
	patientID := auth.UserIDFromContext(c.Request().Context())
	rep, err := h.svc.PatientReport(c.Request().Context(), patientID)
	if err != nil {
		if errors.Is(err, ErrNoResults) {
			return echo.NewHTTPError(http.StatusNotFound, "No survey results found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, rep)
}
