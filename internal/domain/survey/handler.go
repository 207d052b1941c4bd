package survey

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/psyopd/survey/internal/platform/auth"
)

// TokenVerifier checks bearer tokens; *auth.Authenticator implements it.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

type Handler struct {
	svc    *Service
	tokens TokenVerifier
}

func NewHandler(svc *Service, tokens TokenVerifier) *Handler {
	return &Handler{svc: svc, tokens: tokens}
}

// RegisterPublicRoutes mounts the routes reachable without the JWT
// middleware. Submit authenticates on its own so the token may also come in
// the body. m wraps the submit route only.
func (h *Handler) RegisterPublicRoutes(api *echo.Group, m ...echo.MiddlewareFunc) {
	g := api.Group("/survey")
	g.GET("/metadata", h.Metadata)
	g.POST("/submit", h.Submit, m...)
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/survey")
	g.GET("/report-status", h.ReportStatus)
	g.GET("/patient/:patient_id", h.List)
	g.GET("/patient/:patient_id/summary", h.Summary)
	g.DELETE("/patient/:patient_id/survey/:survey_id", h.Delete)
}

// caller resolves the identity from the context, the Authorization header or
// the body token, in that order.
func (h *Handler) caller(c echo.Context, bodyToken string) (auth.Identity, error) {
	if id, ok := auth.IdentityFromContext(c.Request().Context()); ok {
		return id, nil
	}
	tok, ok := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if !ok {
		tok = bodyToken
	}
	if tok == "" {
		return auth.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
	}
	id, err := h.tokens.Verify(tok)
	if err != nil {
		return auth.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "Could not validate credentials")
	}
	return id, nil
}

// internalError hides err from the client; the request logger still records it.
func internalError(err error) error {
	return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
}

func (h *Handler) Submit(c echo.Context) error {
	var sub Submission
	if err := c.Bind(&sub); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, err := h.caller(c, sub.Token)
	if err != nil {
		return err
	}
	if !id.IsPatient() || id.UserID != sub.PatientID {
		return echo.NewHTTPError(http.StatusForbidden, "Access denied")
	}
	// Audit reads the caller from the request once the handler returns.
	c.SetRequest(c.Request().WithContext(auth.WithIdentity(c.Request().Context(), id)))

	res, err := h.svc.Submit(c.Request().Context(), sub)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return echo.NewHTTPError(http.StatusBadRequest, verr.Message)
		}
		return internalError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) Metadata(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"scales": h.svc.Metadata()})
}

func (h *Handler) ReportStatus(c echo.Context) error {
	mode := "template"
	if h.svc.ReportsEnabled() {
		mode = "llm"
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"llm_enabled": h.svc.ReportsEnabled(),
		"mode":        mode,
	})
}

func (h *Handler) patientParam(c echo.Context) (string, error) {
	patientID := c.Param("patient_id")
	if err := auth.CheckPatientAccess(c.Request().Context(), patientID); err != nil {
		return "", echo.NewHTTPError(http.StatusForbidden, "Access denied")
	}
	return patientID, nil
}

func (h *Handler) List(c echo.Context) error {
	patientID, err := h.patientParam(c)
	if err != nil {
		return err
	}
	f, err := DayFilter(c.QueryParam("survey_type"), c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	results, err := h.svc.List(c.Request().Context(), patientID, f)
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, results)
}

func (h *Handler) Summary(c echo.Context) error {
	patientID, err := h.patientParam(c)
	if err != nil {
		return err
	}
	latest, err := h.svc.Latest(c.Request().Context(), patientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "No surveys found for this patient")
		}
		return internalError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient_id":     patientID,
		"latest_results": latest,
	})
}

func (h *Handler) Delete(c echo.Context) error {
	patientID, err := h.patientParam(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("survey_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid survey_id")
	}
	switch err := h.svc.Delete(c.Request().Context(), patientID, id); {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Survey not found")
	case errors.Is(err, ErrWrongPatient):
		return echo.NewHTTPError(http.StatusForbidden, "Access denied")
	case err != nil:
		return internalError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Survey deleted successfully", "survey_id": id.String()})
}
