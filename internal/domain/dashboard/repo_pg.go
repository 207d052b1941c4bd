package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/psyopd/survey/internal/platform/db"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const activePatients = `SELECT user_id FROM users WHERE user_type = 'patient' AND NOT deleted`

func (r *repoPG) PatientOverviews(ctx context.Context, limit, offset int) ([]PatientOverview, int, error) {
	total, err := r.CountPatients(ctx)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT u.user_id, u.demographic_info->>'name', COUNT(s.id), MAX(s.submission_date),
			COALESCE(ARRAY_AGG(DISTINCT s.survey_type ORDER BY s.survey_type)
				FILTER (WHERE s.survey_type IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN survey_results s ON s.patient_id = u.user_id
		WHERE u.user_type = 'patient' AND NOT u.deleted
		GROUP BY u.user_id
		ORDER BY MAX(s.submission_date) DESC NULLS LAST, u.user_id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list patient overviews: %w", err)
	}
	defer rows.Close()

	var out []PatientOverview
	for rows.Next() {
		var p PatientOverview
		if err := rows.Scan(&p.PatientID, &p.Name, &p.SurveyCount, &p.LastActivity, &p.SurveyTypes); err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *repoPG) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	var n int
	if err := r.conn(ctx).QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (r *repoPG) CountPatients(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM users WHERE user_type = 'patient' AND NOT deleted`)
}

func (r *repoPG) CountActivePatients(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(DISTINCT patient_id) FROM survey_results
		WHERE patient_id IN (`+activePatients+`)`)
}

func (r *repoPG) CountSurveys(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM survey_results`)
}

func (r *repoPG) TypeCounts(ctx context.Context) (map[string]int, error) {
	return r.countsBy(ctx, `SELECT survey_type, COUNT(*) FROM survey_results GROUP BY survey_type`)
}

func (r *repoPG) PatientsPerType(ctx context.Context) (map[string]int, error) {
	return r.countsBy(ctx, `SELECT survey_type, COUNT(DISTINCT patient_id) FROM survey_results
		WHERE patient_id IN (`+activePatients+`)
		GROUP BY survey_type`)
}

func (r *repoPG) countsBy(ctx context.Context, query string) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count by type: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, rows.Err()
}

func (r *repoPG) AverageScores(ctx context.Context) (map[string]float64, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT survey_type, AVG(score)::float8 FROM survey_results
		WHERE score IS NOT NULL GROUP BY survey_type`)
	if err != nil {
		return nil, fmt.Errorf("average scores: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var k string
		var avg float64
		if err := rows.Scan(&k, &avg); err != nil {
			return nil, err
		}
		out[k] = avg
	}
	return out, rows.Err()
}

func (r *repoPG) ScoresForType(ctx context.Context, surveyType string) ([]ScoredRow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT score, COALESCE(interpretation->>'category', ''), submission_date
		FROM survey_results
		WHERE survey_type = $1 AND score IS NOT NULL
		ORDER BY submission_date`, surveyType)
	if err != nil {
		return nil, fmt.Errorf("scores for type: %w", err)
	}
	defer rows.Close()

	var out []ScoredRow
	for rows.Next() {
		var s ScoredRow
		if err := rows.Scan(&s.Score, &s.Category, &s.SubmissionDate); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repoPG) MonthlyCounts(ctx context.Context, since time.Time) ([]MonthlyCount, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT to_char(date_trunc('month', submission_date), 'YYYY-MM'), survey_type, COUNT(*)
		FROM survey_results
		WHERE submission_date >= $1
		GROUP BY 1, 2
		ORDER BY 1, 2`, since)
	if err != nil {
		return nil, fmt.Errorf("monthly counts: %w", err)
	}
	defer rows.Close()

	var out []MonthlyCount
	for rows.Next() {
		var m MonthlyCount
		if err := rows.Scan(&m.Month, &m.SurveyType, &m.Count); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repoPG) RecentActivity(ctx context.Context, limit int) ([]Activity, int, error) {
	total, err := r.CountSurveys(ctx)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, survey_type, score, submission_date
		FROM survey_results
		ORDER BY submission_date DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("recent activity: %w", err)
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.SurveyID, &a.PatientID, &a.SurveyType, &a.Score, &a.SubmissionDate); err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}
