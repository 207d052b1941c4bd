package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/psyopd/survey/internal/platform/auth"
)

// AuditEntry records who touched which patient's data.
type AuditEntry struct {
	UserID       string
	UserType     string
	ResourceType string
	PatientID    string
	Action       string // read, create, update, delete
	IPAddress    string
	Path         string
	Method       string
	Timestamp    time.Time
	RequestID    string
	StatusCode   int
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs a phi_access line for every request below prefix that is tied
// to a patient, either through a :patient_id / :user_id route param or
// through the authenticated patient themselves.
func Audit(logger zerolog.Logger, prefix string, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			if !strings.HasPrefix(path, prefix+"/") {
				return next(c)
			}

			err := next(c)

			// Handlers that authenticate on their own attach the identity
			// to the request they pass on.
			ctx := c.Request().Context()
			entry := AuditEntry{
				Timestamp:    time.Now().UTC(),
				Path:         path,
				Method:       req.Method,
				IPAddress:    c.RealIP(),
				StatusCode:   c.Response().Status,
				UserID:       auth.UserIDFromContext(ctx),
				UserType:     auth.UserTypeFromContext(ctx),
				Action:       httpMethodToAction(req.Method),
				ResourceType: extractResourceType(prefix, path),
				PatientID:    extractPatientID(c),
			}
			if he, ok := err.(*echo.HTTPError); ok {
				entry.StatusCode = he.Code
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}
			if entry.PatientID == "" && entry.UserType == auth.UserTypePatient {
				entry.PatientID = entry.UserID
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("user_type", entry.UserType).
				Str("resource_type", entry.ResourceType).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// extractResourceType returns the first path segment after prefix:
// /api/v1/survey/patient/P1 -> survey.
func extractResourceType(prefix, path string) string {
	segments := strings.Split(strings.TrimPrefix(path, prefix+"/"), "/")
	if len(segments) > 0 && segments[0] != "" {
		return segments[0]
	}
	return "unknown"
}

func extractPatientID(c echo.Context) string {
	if id := c.Param("patient_id"); id != "" {
		return id
	}
	if id := c.Param("user_id"); id != "" {
		return id
	}
	return c.QueryParam("patient_id")
}
