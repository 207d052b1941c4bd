package dashboard

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/psyopd/survey/internal/domain/identity"
	"github.com/psyopd/survey/internal/platform/auth"
	"github.com/psyopd/survey/pkg/pagination"
)

const chartCSP = "default-src 'none'; script-src 'unsafe-inline' https://go-echarts.github.io; style-src 'unsafe-inline'; frame-ancestors 'self'"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/dashboard", auth.RequireUserType(auth.UserTypeClinician))
	g.GET("/patients", h.ListPatients)
	g.GET("/analytics", h.GetAnalytics)
	g.GET("/statistics", h.GetStatistics)
	g.GET("/surveys/:survey_type/analytics", h.GetSurveyAnalytics)
	g.GET("/monthly-trends", h.GetMonthlyTrends)
	g.GET("/recent-activity", h.GetRecentActivity)
	g.GET("/patient/:patient_id/trends", h.GetTrends)
	g.GET("/patient/:patient_id/trends/chart", h.GetTrendChart)
	g.GET("/patient/:patient_id/risk", h.GetRisk)
	g.GET("/patient/:patient_id/timeline", h.GetTimeline)
	g.GET("/patient/:patient_id/export", h.Export)
	g.GET("/patient/:patient_id/profile", h.GetProfile)
}

func internal(err error) error {
	return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.ListPatients(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return internal(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetTrends(c echo.Context) error {
	patientID := c.Param("patient_id")
	points, err := h.svc.Trends(c.Request().Context(), patientID, c.QueryParam("survey_type"))
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return echo.NewHTTPError(http.StatusNotFound, "No survey data found for this patient")
		}
		return internal(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient_id": patientID,
		"trends":     points,
	})
}

func (h *Handler) GetTrendChart(c echo.Context) error {
	if c.QueryParam("survey_type") == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "survey_type is required")
	}
	html, err := h.svc.TrendChart(c.Request().Context(), c.Param("patient_id"), c.QueryParam("survey_type"))
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return echo.NewHTTPError(http.StatusNotFound, "No survey data found for this patient")
		}
		return internal(err)
	}
	c.Response().Header().Set("Content-Security-Policy", chartCSP)
	return c.HTML(http.StatusOK, html)
}

func (h *Handler) GetAnalytics(c echo.Context) error {
	a, err := h.svc.Analytics(c.Request().Context())
	if err != nil {
		return internal(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GetStatistics(c echo.Context) error {
	st, err := h.svc.Statistics(c.Request().Context())
	if err != nil {
		return internal(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) GetSurveyAnalytics(c echo.Context) error {
	a, err := h.svc.SurveyAnalytics(c.Request().Context(), c.Param("survey_type"))
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return echo.NewHTTPError(http.StatusNotFound, "No data found for this survey type")
		}
		return internal(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GetMonthlyTrends(c echo.Context) error {
	months := 12
	if v := c.QueryParam("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "months must be an integer")
		}
		months = n
	}
	mt, err := h.svc.MonthlyTrends(c.Request().Context(), months)
	switch {
	case errors.Is(err, ErrMonthsRange):
		return echo.NewHTTPError(http.StatusBadRequest, ErrMonthsRange.Error())
	case err != nil:
		return internal(err)
	}
	return c.JSON(http.StatusOK, mt)
}

func (h *Handler) GetRecentActivity(c echo.Context) error {
	pg := pagination.FromContextWithDefault(c, 10)
	ra, err := h.svc.RecentActivity(c.Request().Context(), pg.Limit)
	if err != nil {
		return internal(err)
	}
	return c.JSON(http.StatusOK, ra)
}

func (h *Handler) GetRisk(c echo.Context) error {
	r, err := h.svc.Risk(c.Request().Context(), c.Param("patient_id"))
	if err != nil {
		return internal(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) GetTimeline(c echo.Context) error {
	tl, err := h.svc.Timeline(c.Request().Context(), c.Param("patient_id"))
	if err != nil {
		return internal(err)
	}
	return c.JSON(http.StatusOK, tl)
}

func (h *Handler) Export(c echo.Context) error {
	patientID := c.Param("patient_id")
	format := c.QueryParam("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		return echo.NewHTTPError(http.StatusBadRequest, ErrUnknownFormat.Error())
	}

	results, err := h.svc.ExportResults(c.Request().Context(), patientID, c.QueryParam("survey_type"))
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return echo.NewHTTPError(http.StatusNotFound, "No survey data to export")
		}
		return internal(err)
	}

	if format == "json" {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"patient_id":    patientID,
			"export_date":   time.Now().UTC(),
			"total_surveys": len(results),
			"surveys":       results,
		})
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=patient_%s_surveys.csv", patientID))
	res.WriteHeader(http.StatusOK)
	return WriteCSV(res, results)
}

func (h *Handler) GetProfile(c echo.Context) error {
	p, err := h.svc.Profile(c.Request().Context(), c.Param("patient_id"))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
		}
		return internal(err)
	}
	return c.JSON(http.StatusOK, p)
}
