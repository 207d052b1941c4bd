package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

var ErrAccessDenied = errors.New("access denied")

// RequireUserType rejects callers whose user type is not userType.
func RequireUserType(userType string) echo.MiddlewareFunc {
	msg := "Access denied"
	switch userType {
	case UserTypeClinician:
		msg = "Clinician access required"
	case UserTypePatient:
		msg = "Patient access required"
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if UserTypeFromContext(c.Request().Context()) != userType {
				return echo.NewHTTPError(http.StatusForbidden, msg)
			}
			return next(c)
		}
	}
}

// CheckPatientAccess allows clinicians to reach any patient and patients
// only themselves.
func CheckPatientAccess(ctx context.Context, patientID string) error {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return ErrAccessDenied
	}
	if id.IsClinician() {
		return nil
	}
	if id.IsPatient() && id.UserID == patientID {
		return nil
	}
	return ErrAccessDenied
}
