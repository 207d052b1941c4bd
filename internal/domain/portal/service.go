// Package portal serves the patient's own consolidated report.
package portal

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/psyopd/survey/internal/domain/identity"
	"github.com/psyopd/survey/internal/domain/scoring"
	"github.com/psyopd/survey/internal/domain/survey"
	"github.com/psyopd/survey/internal/platform/reporting"
)

var ErrNoResults = errors.New("no scored surveys found")

type ScaleSummary struct {
	SurveyType     string                  `json:"survey_type"`
	Score          int                     `json:"score"`
	MaxScore       int                     `json:"max_score"`
	Interpretation *scoring.Interpretation `json:"interpretation,omitempty"`
	Summary        string                  `json:"summary"`
	SubmissionDate time.Time               `json:"submission_date"`
}

type Report struct {
	PatientID      string         `json:"patient_id"`
	ScaleSummaries []ScaleSummary `json:"scale_summaries"`
	TotalSummary   string         `json:"total_summary"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

type Service struct {
	results survey.ResultRepository
	cache   survey.SummaryCache
	reports *reporting.Generator
	logger  zerolog.Logger
}

func NewService(results survey.ResultRepository, cache survey.SummaryCache, reports *reporting.Generator, logger zerolog.Logger) *Service {
	return &Service{results: results, cache: cache, reports: reports, logger: logger}
}

// PatientReport assembles the latest result of each scale and the cross-scale
// summary. The summary is generated and cached on first use. A summary whose
// inputs were superseded while it was being generated is served once but not
// cached.
func (s *Service) PatientReport(ctx context.Context, patientID string) (*Report, error) {
	version, err := s.cache.Version(ctx, patientID)
	if err != nil {
		return nil, err
	}
	latest, err := s.results.LatestByType(ctx, patientID)
	if err != nil {
		return nil, err
	}

	rep := &Report{PatientID: patientID, ScaleSummaries: []ScaleSummary{}}
	var inputs []reporting.ScaleInput
	for _, sc := range scoring.Scales() {
		r := find(latest, sc.Name)
		if r == nil || !r.IsScored() {
			continue
		}
		rep.ScaleSummaries = append(rep.ScaleSummaries, ScaleSummary{
			SurveyType:     r.SurveyType,
			Score:          *r.Score,
			MaxScore:       sc.MaxScore,
			Interpretation: r.Interpretation,
			Summary:        r.Summary,
			SubmissionDate: r.SubmissionDate,
		})
		in := reporting.ScaleInput{
			SurveyType:  r.SurveyType,
			Score:       *r.Score,
			MaxScore:    sc.MaxScore,
			Subscores:   r.Subscores,
			SubmittedAt: r.SubmissionDate,
		}
		if r.Interpretation != nil {
			in.Category = r.Interpretation.Category
			in.Description = r.Interpretation.Description
		}
		inputs = append(inputs, in)
	}
	if len(rep.ScaleSummaries) == 0 {
		return nil, ErrNoResults
	}

	summary, at, err := s.cache.Get(ctx, patientID)
	switch {
	case err == nil:
		rep.TotalSummary, rep.GeneratedAt = summary, at
		return rep, nil
	case !errors.Is(err, survey.ErrNotFound):
		return nil, err
	}

	rep.TotalSummary = s.reports.TotalSummary(ctx, patientID, inputs)
	at, stored, err := s.cache.Put(ctx, patientID, rep.TotalSummary, version)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Str("patient_id", identity.MaskIdentifier(patientID)).Msg("cache total summary")
		at = time.Now()
	case !stored:
		s.logger.Debug().Str("patient_id", identity.MaskIdentifier(patientID)).Msg("total summary superseded during generation, not cached")
		at = time.Now()
	}
	rep.GeneratedAt = at
	return rep, nil
}

func find(results []*survey.Result, surveyType string) *survey.Result {
	for _, r := range results {
		if r.SurveyType == surveyType {
			return r
		}
	}
	return nil
}
