package identity

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/psyopd/survey/internal/platform/auth"
)

// SurveySummaryProvider reports a patient's submissions for profile views.
type SurveySummaryProvider interface {
	PatientSurveySummary(ctx context.Context, patientID string) (*SurveySummary, error)
}

type Handler struct {
	svc     *Service
	surveys SurveySummaryProvider
}

func NewHandler(svc *Service, surveys SurveySummaryProvider) *Handler {
	return &Handler{svc: svc, surveys: surveys}
}

// RegisterAuthRoutes mounts the unauthenticated login and registration routes.
func (h *Handler) RegisterAuthRoutes(g *echo.Group) {
	g.POST("/login", h.Login)
	g.POST("/patient/update-password", h.UpdatePassword)
	g.POST("/clinician/register", h.RegisterClinician)
	g.POST("/patient/register", h.RegisterPatient)
}

// RegisterRoutes mounts the profile routes on an authenticated group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/user")
	g.GET("/:user_id", h.GetUser)
	g.PUT("/:user_id", h.UpdateUser)
	g.DELETE("/:user_id", h.DeleteUser)
	g.GET("/:user_id/surveys-summary", h.GetSurveysSummary)
	g.POST("/:user_id/demographic-info", h.SetDemographicInfo)
	g.POST("/:user_id/psychiatric-history", h.SetPsychiatricHistory)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "User already exists")
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, ErrEmptyUpdate):
		return echo.NewHTTPError(http.StatusBadRequest, "No update data provided")
	case errors.Is(err, auth.ErrAdminNotConfigured):
		return echo.NewHTTPError(http.StatusInternalServerError, "Admin registration is not configured")
	case errors.Is(err, auth.ErrInvalidAdminToken):
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid admin token")
	case errors.Is(err, auth.ErrAccessDenied):
		return echo.NewHTTPError(http.StatusForbidden, "Access denied")
	case errors.Is(err, auth.ErrPasswordTooShort), errors.Is(err, auth.ErrPasswordTooLong):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return echo.NewHTTPError(http.StatusBadRequest, verr.Message)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
}

// -- Auth --

type loginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
	UserType string `json:"user_type"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Login(c.Request().Context(), req.UserID, req.Password, req.UserType)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

type updatePasswordRequest struct {
	UserID          string `json:"user_id"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) UpdatePassword(c echo.Context) error {
	var req updatePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.ChangePassword(c.Request().Context(), req.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Password updated successfully"})
}

type registerClinicianRequest struct {
	AdminToken     string `json:"admin_token"`
	ClinicianEmail string `json:"clinician_email"`
	Password       string `json:"password"`
}

func (h *Handler) RegisterClinician(c echo.Context) error {
	var req registerClinicianRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.RegisterClinician(c.Request().Context(), req.AdminToken, req.ClinicianEmail, req.Password)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{
		"message":   "Clinician registered successfully",
		"user_id":   u.UserID,
		"user_type": u.UserType,
	})
}

type registerPatientRequest struct {
	AdminToken string `json:"admin_token"`
	UserID     string `json:"user_id"`
	Password   string `json:"password"`
}

func (h *Handler) RegisterPatient(c echo.Context) error {
	var req registerPatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.RegisterPatient(c.Request().Context(), req.AdminToken, req.UserID, req.Password)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{
		"message":   "Patient registered successfully",
		"user_id":   u.UserID,
		"user_type": u.UserType,
	})
}

// -- Profiles --

func (h *Handler) authorize(c echo.Context) (string, error) {
	userID := c.Param("user_id")
	if err := auth.CheckPatientAccess(c.Request().Context(), userID); err != nil {
		return "", httpError(err)
	}
	return userID, nil
}

func (h *Handler) GetUser(c echo.Context) error {
	userID, err := h.authorize(c)
	if err != nil {
		return err
	}
	u, err := h.svc.GetUser(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdateUser(c echo.Context) error {
	userID, err := h.authorize(c)
	if err != nil {
		return err
	}
	var upd ProfileUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.UpdateProfile(c.Request().Context(), userID, upd)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) DeleteUser(c echo.Context) error {
	userID, err := h.authorize(c)
	if err != nil {
		return err
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.DeleteUser(c.Request().Context(), userID, caller); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "User deleted successfully", "user_id": userID})
}

func (h *Handler) GetSurveysSummary(c echo.Context) error {
	userID, err := h.authorize(c)
	if err != nil {
		return err
	}
	if _, err := h.svc.GetUser(c.Request().Context(), userID); err != nil {
		return httpError(err)
	}
	summary, err := h.surveys.PatientSurveySummary(c.Request().Context(), userID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"user_id":        userID,
		"survey_summary": summary,
	})
}

func (h *Handler) SetDemographicInfo(c echo.Context) error {
	userID, err := h.authorize(c)
	if err != nil {
		return err
	}
	var info DemographicInfo
	if err := c.Bind(&info); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.SetDemographics(c.Request().Context(), userID, info)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) SetPsychiatricHistory(c echo.Context) error {
	userID, err := h.authorize(c)
	if err != nil {
		return err
	}
	var hist PsychiatricHistory
	if err := c.Bind(&hist); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.SetPsychiatricHistory(c.Request().Context(), userID, hist)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}
