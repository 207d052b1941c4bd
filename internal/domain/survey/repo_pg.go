package survey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/psyopd/survey/internal/domain/scoring"
	"github.com/psyopd/survey/internal/platform/db"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func connFor(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// -- Results --

type resultRepoPG struct {
	pool *pgxpool.Pool
}

func NewResultRepoPG(pool *pgxpool.Pool) ResultRepository {
	return &resultRepoPG{pool: pool}
}

func (r *resultRepoPG) conn(ctx context.Context) querier {
	return connFor(ctx, r.pool)
}

const resultCols = `id, patient_id, survey_type, responses, score, subscores, interpretation, summary, submission_date`

func scanResult(row pgx.Row) (*Result, error) {
	var res Result
	var responses, subscores, interp []byte
	err := row.Scan(&res.ID, &res.PatientID, &res.SurveyType, &responses, &res.Score,
		&subscores, &interp, &res.Summary, &res.SubmissionDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(responses) > 0 {
		if err := json.Unmarshal(responses, &res.Responses); err != nil {
			return nil, fmt.Errorf("decode responses: %w", err)
		}
	}
	if len(subscores) > 0 {
		if err := json.Unmarshal(subscores, &res.Subscores); err != nil {
			return nil, fmt.Errorf("decode subscores: %w", err)
		}
	}
	if len(interp) > 0 {
		var in scoring.Interpretation
		if err := json.Unmarshal(interp, &in); err != nil {
			return nil, fmt.Errorf("decode interpretation: %w", err)
		}
		res.Interpretation = &in
	}
	return &res, nil
}

func (r *resultRepoPG) Create(ctx context.Context, res *Result) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	if res.Responses == nil {
		res.Responses = map[string]interface{}{}
	}
	responses, err := json.Marshal(res.Responses)
	if err != nil {
		return fmt.Errorf("encode responses: %w", err)
	}
	var subscores, interp []byte
	if res.Subscores != nil {
		if subscores, err = json.Marshal(res.Subscores); err != nil {
			return fmt.Errorf("encode subscores: %w", err)
		}
	}
	if res.Interpretation != nil {
		if interp, err = json.Marshal(res.Interpretation); err != nil {
			return fmt.Errorf("encode interpretation: %w", err)
		}
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO survey_results (id, patient_id, survey_type, responses, score, subscores, interpretation, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING submission_date`,
		res.ID, res.PatientID, res.SurveyType, responses, res.Score, subscores, interp, res.Summary,
	).Scan(&res.SubmissionDate)
	if err != nil {
		return fmt.Errorf("create survey result: %w", err)
	}
	return nil
}

func (r *resultRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Result, error) {
	return scanResult(r.conn(ctx).QueryRow(ctx, `SELECT `+resultCols+` FROM survey_results WHERE id = $1`, id))
}

func (r *resultRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM survey_results WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete survey result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *resultRepoPG) ListByPatient(ctx context.Context, patientID string, f Filter) ([]*Result, error) {
	where := []string{"patient_id = $1"}
	args := []interface{}{patientID}
	idx := 2
	if f.SurveyType != "" {
		where = append(where, fmt.Sprintf("survey_type = $%d", idx))
		args = append(args, f.SurveyType)
		idx++
	}
	if f.From != nil {
		where = append(where, fmt.Sprintf("submission_date >= $%d", idx))
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where = append(where, fmt.Sprintf("submission_date < $%d", idx))
		args = append(args, *f.To)
	}

	query := `SELECT ` + resultCols + ` FROM survey_results WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY submission_date DESC`
	return r.list(ctx, query, args...)
}

func (r *resultRepoPG) LatestByType(ctx context.Context, patientID string) ([]*Result, error) {
	return r.list(ctx, `SELECT DISTINCT ON (survey_type) `+resultCols+` FROM survey_results
		WHERE patient_id = $1
		ORDER BY survey_type, submission_date DESC`, patientID)
}

func (r *resultRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Result, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list survey results: %w", err)
	}
	defer rows.Close()

	var out []*Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// -- Total summary cache --

type summaryCachePG struct {
	pool *pgxpool.Pool
}

func NewSummaryCachePG(pool *pgxpool.Pool) SummaryCache {
	return &summaryCachePG{pool: pool}
}

func (c *summaryCachePG) Version(ctx context.Context, patientID string) (int64, error) {
	var v int64
	err := connFor(ctx, c.pool).QueryRow(ctx,
		`SELECT version FROM patient_total_summaries WHERE patient_id = $1`, patientID,
	).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read total summary version: %w", err)
	}
	return v, nil
}

func (c *summaryCachePG) Get(ctx context.Context, patientID string) (string, time.Time, error) {
	var summary string
	var at time.Time
	err := connFor(ctx, c.pool).QueryRow(ctx, `
		SELECT summary, generated_at FROM patient_total_summaries
		WHERE patient_id = $1 AND summary IS NOT NULL`, patientID,
	).Scan(&summary, &at)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", time.Time{}, ErrNotFound
	}
	return summary, at, err
}

// Put only overwrites a row whose version still matches; a conflicting row
// with a newer version makes the upsert return nothing.
func (c *summaryCachePG) Put(ctx context.Context, patientID, summary string, version int64) (time.Time, bool, error) {
	var at time.Time
	err := connFor(ctx, c.pool).QueryRow(ctx, `
		INSERT INTO patient_total_summaries (patient_id, summary, generated_at, version)
		VALUES ($1, $2, NOW(), $3)
		ON CONFLICT (patient_id) DO UPDATE
		SET summary = EXCLUDED.summary, generated_at = EXCLUDED.generated_at
		WHERE patient_total_summaries.version = EXCLUDED.version
		RETURNING generated_at`, patientID, summary, version,
	).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("store total summary: %w", err)
	}
	return at, true, nil
}

func (c *summaryCachePG) Invalidate(ctx context.Context, patientID string) error {
	_, err := connFor(ctx, c.pool).Exec(ctx, `
		INSERT INTO patient_total_summaries (patient_id, summary, generated_at, version)
		VALUES ($1, NULL, NULL, 1)
		ON CONFLICT (patient_id) DO UPDATE
		SET summary = NULL, generated_at = NULL, version = patient_total_summaries.version + 1`, patientID)
	if err != nil {
		return fmt.Errorf("invalidate total summary: %w", err)
	}
	return nil
}
