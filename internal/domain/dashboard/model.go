// Package dashboard serves clinician-facing aggregates over patients and
// their survey results.
package dashboard

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/psyopd/survey/internal/domain/identity"
	"github.com/psyopd/survey/internal/domain/scoring"
)

var (
	ErrNoData        = errors.New("no survey data found")
	ErrUnknownFormat = errors.New("format must be csv or json")
	ErrMonthsRange   = errors.New("months must be between 1 and 60")
)

// Trend directions for a scale's recent scores. Fewer than two recent
// scores read as stable.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

const trendWindow = 180 * 24 * time.Hour

type PatientOverview struct {
	PatientID    string     `json:"patient_id"`
	Name         *string    `json:"name,omitempty"`
	SurveyCount  int        `json:"survey_count"`
	LastActivity *time.Time `json:"last_activity"`
	SurveyTypes  []string   `json:"survey_types"`
}

type TrendPoint struct {
	SurveyID       uuid.UUID               `json:"survey_id"`
	SurveyType     string                  `json:"survey_type"`
	Score          int                     `json:"score"`
	Interpretation *scoring.Interpretation `json:"interpretation,omitempty"`
	Date           time.Time               `json:"date"`
}

type Analytics struct {
	TotalPatients          int                `json:"total_patients"`
	TotalSurveys           int                `json:"total_surveys"`
	SurveyTypeDistribution map[string]int     `json:"survey_type_distribution"`
	AverageScores          map[string]float64 `json:"average_scores"`
	CompletionRates        map[string]float64 `json:"completion_rates"`
	SurveysPerPatient      float64            `json:"surveys_per_patient"`
}

type ScaleCompletion struct {
	Patients int     `json:"patients"`
	Rate     float64 `json:"rate"`
}

type Statistics struct {
	TotalPatients            int                        `json:"total_patients"`
	ActivePatients           int                        `json:"active_patients"`
	AverageSurveysPerPatient float64                    `json:"average_surveys_per_patient"`
	ScaleCompletion          map[string]ScaleCompletion `json:"scale_completion"`
}

// ScoredRow is one scored submission used by per-scale analytics.
type ScoredRow struct {
	Score          int
	Category       string
	SubmissionDate time.Time
}

type ScoreTrend struct {
	Direction         string  `json:"direction"`
	RecentSubmissions int     `json:"recent_submissions"`
	RecentAverage     float64 `json:"recent_average"`
}

type SurveyAnalytics struct {
	SurveyType   string         `json:"survey_type"`
	Count        int            `json:"count"`
	Average      float64        `json:"average"`
	Min          int            `json:"min"`
	Max          int            `json:"max"`
	StdDev       float64        `json:"std_dev"`
	Distribution map[string]int `json:"distribution"`
	Trend        ScoreTrend     `json:"trend"`
}

// MonthlyCount is the number of submissions of one type in one "YYYY-MM".
type MonthlyCount struct {
	Month      string
	SurveyType string
	Count      int
}

type MonthlyTrends struct {
	Months int                       `json:"months"`
	Since  time.Time                 `json:"since"`
	Trends map[string]map[string]int `json:"trends"`
}

type PatientRisk struct {
	PatientID  string    `json:"patient_id"`
	AssessedAt time.Time `json:"assessed_at"`
	scoring.RiskAssessment
}

type TimelineEvent struct {
	SurveyID   uuid.UUID `json:"survey_id"`
	SurveyType string    `json:"survey_type"`
	Score      *int      `json:"score"`
	Date       time.Time `json:"date"`
}

type Timeline struct {
	PatientID           string          `json:"patient_id"`
	Events              []TimelineEvent `json:"events"`
	TotalSurveys        int             `json:"total_surveys"`
	// AverageIntervalDays is the mean of the whole days between consecutive
	// events, nil without events.
	AverageIntervalDays *float64        `json:"average_interval_days"`
}

type Activity struct {
	SurveyID       uuid.UUID `json:"survey_id"`
	PatientID      string    `json:"patient_id"`
	SurveyType     string    `json:"survey_type"`
	Score          *int      `json:"score"`
	SubmissionDate time.Time `json:"submission_date"`
}

type RecentActivity struct {
	Activities      []Activity `json:"activities"`
	TotalActivities int        `json:"total_activities"`
}

type PatientProfile struct {
	*identity.User
	SurveySummary *identity.SurveySummary `json:"survey_summary"`
}
