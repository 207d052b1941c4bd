package identity

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrConflict           = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmptyUpdate        = errors.New("no update data provided")
)

// ValidationError reports bad client input. Its message is safe to return
// to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalidf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// User is a patient (keyed by medical record number) or a clinician
// (keyed by email).
type User struct {
	UserID             string             `json:"user_id"`
	UserType           string             `json:"user_type"`
	PasswordHash       string             `json:"-"`
	Email              *string            `json:"email,omitempty"`
	DemographicInfo    DemographicInfo    `json:"demographic_info"`
	PsychiatricHistory PsychiatricHistory `json:"psychiatric_history"`
	Specialization     *string            `json:"specialization,omitempty"`
	LicenseNumber      *string            `json:"license_number,omitempty"`
	Department         *string            `json:"department,omitempty"`
	Deleted            bool               `json:"-"`
	DeletedBy          *string            `json:"-"`
	DeletedAt          *time.Time         `json:"-"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

type DemographicInfo struct {
	Name             *string `json:"name,omitempty"`
	Age              *int    `json:"age,omitempty"`
	Gender           *string `json:"gender,omitempty"`
	DateOfBirth      *string `json:"date_of_birth,omitempty"`
	ContactPhone     *string `json:"contact_phone,omitempty"`
	EmergencyContact *string `json:"emergency_contact,omitempty"`
}

// Merge copies the fields set in u over d.
func (d *DemographicInfo) Merge(u DemographicInfo) {
	if u.Name != nil {
		d.Name = u.Name
	}
	if u.Age != nil {
		d.Age = u.Age
	}
	if u.Gender != nil {
		d.Gender = u.Gender
	}
	if u.DateOfBirth != nil {
		d.DateOfBirth = u.DateOfBirth
	}
	if u.ContactPhone != nil {
		d.ContactPhone = u.ContactPhone
	}
	if u.EmergencyContact != nil {
		d.EmergencyContact = u.EmergencyContact
	}
}

type PsychiatricHistory struct {
	PreviousDiagnoses        []string `json:"previous_diagnoses,omitempty"`
	CurrentMedications       []string `json:"current_medications,omitempty"`
	Allergies                []string `json:"allergies,omitempty"`
	FamilyHistory            *string  `json:"family_history,omitempty"`
	SubstanceUseHistory      *string  `json:"substance_use_history,omitempty"`
	PreviousHospitalizations *string  `json:"previous_hospitalizations,omitempty"`
}

func (p *PsychiatricHistory) Merge(u PsychiatricHistory) {
	if u.PreviousDiagnoses != nil {
		p.PreviousDiagnoses = u.PreviousDiagnoses
	}
	if u.CurrentMedications != nil {
		p.CurrentMedications = u.CurrentMedications
	}
	if u.Allergies != nil {
		p.Allergies = u.Allergies
	}
	if u.FamilyHistory != nil {
		p.FamilyHistory = u.FamilyHistory
	}
	if u.SubstanceUseHistory != nil {
		p.SubstanceUseHistory = u.SubstanceUseHistory
	}
	if u.PreviousHospitalizations != nil {
		p.PreviousHospitalizations = u.PreviousHospitalizations
	}
}

// ProfileUpdate is a partial update; nil fields are left untouched.
type ProfileUpdate struct {
	Email              *string             `json:"email"`
	DemographicInfo    *DemographicInfo    `json:"demographic_info"`
	PsychiatricHistory *PsychiatricHistory `json:"psychiatric_history"`
	Specialization     *string             `json:"specialization"`
	LicenseNumber      *string             `json:"license_number"`
	Department         *string             `json:"department"`
}

func (u ProfileUpdate) IsEmpty() bool {
	return u.Email == nil && u.DemographicInfo == nil && u.PsychiatricHistory == nil &&
		u.Specialization == nil && u.LicenseNumber == nil && u.Department == nil
}

// SurveySummary condenses a patient's submissions for profile views.
type SurveySummary struct {
	TotalSurveys     int             `json:"total_surveys"`
	SurveyTypes      []string        `json:"survey_types"`
	LatestSubmission *time.Time      `json:"latest_submission"`
	LatestScores     map[string]*int `json:"latest_scores,omitempty"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
	UserType    string `json:"user_type"`
	ExpiresIn   int    `json:"expires_in"`
}

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	mrnPattern   = regexp.MustCompile(`^[A-Za-z0-9\-]{4,20}$`)
)

func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

func ValidMedicalRecordNumber(s string) bool {
	return mrnPattern.MatchString(s)
}

// AgeOn computes the age in whole years at now from a YYYY-MM-DD birth date.
func AgeOn(dob string, now time.Time) (int, bool) {
	born, err := time.Parse("2006-01-02", strings.TrimSpace(dob))
	if err != nil || born.After(now) {
		return 0, false
	}
	age := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	return age, true
}

// MaskIdentifier keeps the last four characters of an identifier for logs.
func MaskIdentifier(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

// Gender returns the recorded gender, or "" when it is unknown.
func (u *User) Gender() string {
	if u.DemographicInfo.Gender == nil {
		return ""
	}
	return *u.DemographicInfo.Gender
}

// withDerivedAge returns a copy of u with Age filled from DateOfBirth when
// only the latter is set. u itself is never modified, so the derived age
// does not leak into a later Update.
func (u *User) withDerivedAge(now time.Time) *User {
	out := *u
	d := &out.DemographicInfo
	if d.Age == nil && d.DateOfBirth != nil {
		if age, ok := AgeOn(*d.DateOfBirth, now); ok {
			d.Age = &age
		}
	}
	return &out
}
