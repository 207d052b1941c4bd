package survey

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/psyopd/survey/internal/domain/identity"
	"github.com/psyopd/survey/internal/domain/scoring"
	"github.com/psyopd/survey/internal/platform/db"
	"github.com/psyopd/survey/internal/platform/reporting"
)

// ProfileReader looks up a patient profile; *identity.Service implements it.
type ProfileReader interface {
	GetUser(ctx context.Context, userID string) (*identity.User, error)
}

// genderKeys are the DEMOGRAPHIC response fields that may hold gender.
var genderKeys = []string{"gender", "성별", "sex"}

type Service struct {
	results  ResultRepository
	cache    SummaryCache
	profiles ProfileReader
	criteria *scoring.Criteria
	reports  *reporting.Generator
	inTx     db.TxRunner
	logger   zerolog.Logger
}

func NewService(results ResultRepository, cache SummaryCache, profiles ProfileReader,
	criteria *scoring.Criteria, reports *reporting.Generator, logger zerolog.Logger) *Service {
	return &Service{
		results:  results,
		cache:    cache,
		profiles: profiles,
		criteria: criteria,
		reports:  reports,
		inTx:     db.NoTx,
		logger:   logger,
	}
}

// WithTransactions makes a stored result and the summary invalidation it
// triggers commit together.
func (s *Service) WithTransactions(run db.TxRunner) *Service {
	s.inTx = run
	return s
}

// Submit scores, interprets and stores one questionnaire.
func (s *Service) Submit(ctx context.Context, sub Submission) (*SubmitResult, error) {
	if strings.TrimSpace(sub.PatientID) == "" {
		return nil, &ValidationError{Message: "patient_id is required"}
	}
	surveyType := scoring.CanonicalType(sub.SurveyType)
	if surveyType == "" {
		return nil, &ValidationError{Message: "survey_type is required"}
	}
	if sub.Responses == nil {
		sub.Responses = map[string]interface{}{}
	}

	res := &Result{
		ID:         uuid.New(),
		PatientID:  sub.PatientID,
		SurveyType: surveyType,
		Responses:  sub.Responses,
	}

	scale, isScale := scoring.Lookup(surveyType)
	switch {
	case surveyType == TypeDemographic || surveyType == TypePastHistory:
		res.Summary = summaryRecorded
	case !isScale:
		res.Summary = summaryNotAvailable
	default:
		if err := s.scoreInto(ctx, res, scale); err != nil {
			return nil, err
		}
	}

	err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.results.Create(ctx, res); err != nil {
			return err
		}
		if res.IsScored() {
			return s.invalidateSummary(ctx, res.PatientID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("survey_id", res.ID.String()).
		Str("survey_type", surveyType).
		Str("patient_id", identity.MaskIdentifier(res.PatientID)).
		Msg("survey submitted")

	return &SubmitResult{
		SurveyID:       res.ID,
		SurveyType:     res.SurveyType,
		Score:          res.Score,
		Subscores:      res.Subscores,
		Interpretation: res.Interpretation,
		Summary:        res.Summary,
	}, nil
}

func (s *Service) scoreInto(ctx context.Context, res *Result, scale scoring.Scale) error {
	scored, err := scoring.Score(scale.Name, res.Responses)
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}
	total := scored.TotalScore
	res.Score = &total
	res.Subscores = scored.Subscores

	gender := s.genderOf(ctx, res.PatientID)
	interp := s.interpret(scale.Name, total, gender, res.Responses)
	res.Interpretation = &interp

	res.Summary = s.reports.ScaleReport(ctx, reporting.ScaleInput{
		SurveyType:  scale.Name,
		Score:       total,
		MaxScore:    scored.MaxScore,
		Subscores:   scored.Subscores,
		Category:    interp.Category,
		Description: interp.Description,
		Gender:      gender,
		SubmittedAt: time.Now(),
	})
	return nil
}

// interpret never fails the submission; errors are kept on the interpretation.
func (s *Service) interpret(scale string, score int, gender string, responses map[string]interface{}) scoring.Interpretation {
	if !s.criteria.Has(scale) {
		return scoring.Interpretation{Error: scoring.ErrAssessmentNotFound.Error()}
	}
	interp, err := s.criteria.Interpret(scale, score, gender, scoring.Conditions(scale, responses))
	if err != nil {
		return scoring.Interpretation{Error: err.Error()}
	}
	return interp
}

// genderOf prefers the latest DEMOGRAPHIC answers over the stored profile.
func (s *Service) genderOf(ctx context.Context, patientID string) string {
	demo, err := s.results.ListByPatient(ctx, patientID, Filter{SurveyType: TypeDemographic})
	if err != nil {
		s.logger.Warn().Err(err).Msg("read demographic survey")
	}
	if len(demo) > 0 {
		for _, k := range genderKeys {
			if v, ok := demo[0].Responses[k].(string); ok && strings.TrimSpace(v) != "" {
				return scoring.NormalizeGender(v)
			}
		}
	}
	if s.profiles == nil {
		return ""
	}
	u, err := s.profiles.GetUser(ctx, patientID)
	if err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("read patient profile")
		}
		return ""
	}
	if g := u.Gender(); g != "" {
		return scoring.NormalizeGender(g)
	}
	return ""
}

// invalidateSummary drops the cached total summary, which no longer reflects
// the patient's scored results.
func (s *Service) invalidateSummary(ctx context.Context, patientID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, patientID)
}

func (s *Service) List(ctx context.Context, patientID string, f Filter) ([]*Result, error) {
	if f.SurveyType != "" {
		f.SurveyType = scoring.CanonicalType(f.SurveyType)
	}
	out, err := s.results.ListByPatient(ctx, patientID, f)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*Result{}
	}
	return out, nil
}

// Latest returns the newest result of each type, ordered by type.
func (s *Service) Latest(ctx context.Context, patientID string) ([]*Result, error) {
	out, err := s.results.LatestByType(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SurveyType < out[j].SurveyType })
	return out, nil
}

// Delete removes a survey owned by patientID.
func (s *Service) Delete(ctx context.Context, patientID string, id uuid.UUID) error {
	res, err := s.results.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if res.PatientID != patientID {
		return ErrWrongPatient
	}
	return s.inTx(ctx, func(ctx context.Context) error {
		if err := s.results.Delete(ctx, id); err != nil {
			return err
		}
		if res.IsScored() {
			return s.invalidateSummary(ctx, patientID)
		}
		return nil
	})
}

// PatientSurveySummary condenses every submission of a patient.
func (s *Service) PatientSurveySummary(ctx context.Context, patientID string) (*identity.SurveySummary, error) {
	all, err := s.results.ListByPatient(ctx, patientID, Filter{})
	if err != nil {
		return nil, err
	}
	sum := &identity.SurveySummary{
		TotalSurveys: len(all),
		SurveyTypes:  []string{},
		LatestScores: map[string]*int{},
	}
	for _, r := range all {
		if _, seen := sum.LatestScores[r.SurveyType]; !seen {
			sum.SurveyTypes = append(sum.SurveyTypes, r.SurveyType)
			sum.LatestScores[r.SurveyType] = r.Score
		}
		if sum.LatestSubmission == nil || r.SubmissionDate.After(*sum.LatestSubmission) {
			at := r.SubmissionDate
			sum.LatestSubmission = &at
		}
	}
	sort.Strings(sum.SurveyTypes)
	return sum, nil
}

// ScaleMetadata describes a supported questionnaire.
type ScaleMetadata struct {
	SurveyType  string `json:"survey_type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Items       int    `json:"items"`
	MaxScore    int    `json:"max_score"`
	Gendered    bool   `json:"requires_gender"`
}

func (s *Service) Metadata() []ScaleMetadata {
	scales := scoring.Scales()
	out := make([]ScaleMetadata, 0, len(scales))
	for _, sc := range scales {
		out = append(out, ScaleMetadata{
			SurveyType:  sc.Name,
			Title:       sc.Title,
			Description: sc.Description,
			Items:       sc.Items,
			MaxScore:    sc.MaxScore,
			Gendered:    s.criteria.Gendered(sc.Name),
		})
	}
	return out
}

// ReportsEnabled reports whether narrative reports come from the LLM.
func (s *Service) ReportsEnabled() bool {
	return s.reports.Enabled()
}
