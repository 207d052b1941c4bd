package survey

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/psyopd/survey/internal/domain/scoring"
)

// Survey types that are stored but never scored.
const (
	TypeDemographic  = "DEMOGRAPHIC"
	TypePastHistory  = "PAST_HISTORY"
	TypeTotalSummary = "TOTAL_SUMMARY"
)

const (
	summaryRecorded     = "Demographic/History information recorded"
	summaryNotAvailable = "Scoring not available for this survey type"
)

var (
	ErrNotFound     = errors.New("survey not found")
	ErrWrongPatient = errors.New("survey belongs to another patient")
)

// ValidationError reports a submission the service refuses to store. Its
// message is safe to return to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Result is one stored submission.
type Result struct {
	ID             uuid.UUID               `json:"id"`
	PatientID      string                  `json:"patient_id"`
	SurveyType     string                  `json:"survey_type"`
	Responses      map[string]interface{}  `json:"responses"`
	Score          *int                    `json:"score"`
	Subscores      map[string]int          `json:"subscores,omitempty"`
	Interpretation *scoring.Interpretation `json:"interpretation,omitempty"`
	Summary        string                  `json:"summary"`
	SubmissionDate time.Time               `json:"submission_date"`
}

// IsScored reports whether the result carries a scale score.
func (r *Result) IsScored() bool {
	return r.Score != nil
}

// Informational reports whether the type is background information rather
// than a questionnaire.
func Informational(surveyType string) bool {
	return surveyType == TypeDemographic || surveyType == TypePastHistory || surveyType == TypeTotalSummary
}

// Filter narrows a patient's results. From/To bound submission_date as a
// half-open interval.
type Filter struct {
	SurveyType string
	From       *time.Time
	To         *time.Time
}

// DayFilter parses a YYYY-MM-DD date into a one-day window.
func DayFilter(surveyType, date string) (Filter, error) {
	f := Filter{SurveyType: surveyType}
	if date == "" {
		return f, nil
	}
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return f, errors.New("date must be in YYYY-MM-DD format")
	}
	next := day.AddDate(0, 0, 1)
	f.From, f.To = &day, &next
	return f, nil
}

// Submission is an incoming questionnaire.
type Submission struct {
	PatientID  string                 `json:"patient_id"`
	SurveyType string                 `json:"survey_type"`
	Responses  map[string]interface{} `json:"responses"`
	Token      string                 `json:"token,omitempty"`
}

type SubmitResult struct {
	SurveyID       uuid.UUID               `json:"survey_id"`
	SurveyType     string                  `json:"survey_type"`
	Score          *int                    `json:"score"`
	Subscores      map[string]int          `json:"subscores,omitempty"`
	Interpretation *scoring.Interpretation `json:"interpretation,omitempty"`
	Summary        string                  `json:"summary"`
}
