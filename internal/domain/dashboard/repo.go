package dashboard

import (
	"context"
	"time"
)

// Repository runs the cross-patient aggregate queries.
type Repository interface {
	PatientOverviews(ctx context.Context, limit, offset int) ([]PatientOverview, int, error)
	CountPatients(ctx context.Context) (int, error)
	// CountActivePatients counts patients with at least one submission.
	CountActivePatients(ctx context.Context) (int, error)
	CountSurveys(ctx context.Context) (int, error)
	TypeCounts(ctx context.Context) (map[string]int, error)
	AverageScores(ctx context.Context) (map[string]float64, error)
	// PatientsPerType counts distinct patients that completed each type.
	PatientsPerType(ctx context.Context) (map[string]int, error)
	ScoresForType(ctx context.Context, surveyType string) ([]ScoredRow, error)
	MonthlyCounts(ctx context.Context, since time.Time) ([]MonthlyCount, error)
	RecentActivity(ctx context.Context, limit int) ([]Activity, int, error)
}
