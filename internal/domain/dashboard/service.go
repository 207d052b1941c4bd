package dashboard

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/psyopd/survey/internal/domain/identity"
	"github.com/psyopd/survey/internal/domain/scoring"
	"github.com/psyopd/survey/internal/domain/survey"
	"github.com/psyopd/survey/internal/platform/auth"
	"github.com/psyopd/survey/internal/platform/chart"
)

// ProfileReader looks up a patient profile; *identity.Service implements it.
type ProfileReader interface {
	GetUser(ctx context.Context, userID string) (*identity.User, error)
}

type SummaryProvider interface {
	PatientSurveySummary(ctx context.Context, patientID string) (*identity.SurveySummary, error)
}

type Service struct {
	repo      Repository
	results   survey.ResultRepository
	profiles  ProfileReader
	summaries SummaryProvider
	criteria  *scoring.Criteria
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, results survey.ResultRepository, profiles ProfileReader,
	summaries SummaryProvider, criteria *scoring.Criteria, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		results:   results,
		profiles:  profiles,
		summaries: summaries,
		criteria:  criteria,
		logger:    logger,
		now:       time.Now,
	}
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return round2(float64(n) / float64(d))
}

// -- Patients --

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]PatientOverview, int, error) {
	out, total, err := s.repo.PatientOverviews(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if out == nil {
		out = []PatientOverview{}
	}
	return out, total, nil
}

// Trends returns the patient's scored results oldest first.
func (s *Service) Trends(ctx context.Context, patientID, surveyType string) ([]TrendPoint, error) {
	f := survey.Filter{}
	if surveyType != "" {
		f.SurveyType = scoring.CanonicalType(surveyType)
	}
	results, err := s.results.ListByPatient(ctx, patientID, f)
	if err != nil {
		return nil, err
	}
	var out []TrendPoint
	for i := len(results) - 1; i >= 0; i-- {
		r := results[i]
		if !r.IsScored() {
			continue
		}
		out = append(out, TrendPoint{
			SurveyID:       r.ID,
			SurveyType:     r.SurveyType,
			Score:          *r.Score,
			Interpretation: r.Interpretation,
			Date:           r.SubmissionDate,
		})
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

// TrendChart renders one scale's trend with its risk or category thresholds.
func (s *Service) TrendChart(ctx context.Context, patientID, surveyType string) (string, error) {
	surveyType = scoring.CanonicalType(surveyType)
	if surveyType == "" {
		return "", fmt.Errorf("survey_type is required")
	}
	points, err := s.Trends(ctx, patientID, surveyType)
	if err != nil {
		return "", err
	}

	t := chart.Trend{
		Title:      fmt.Sprintf("%s trend: %s", surveyType, identity.MaskIdentifier(patientID)),
		SeriesName: surveyType,
		Thresholds: s.chartThresholds(surveyType),
	}
	if sc, ok := scoring.Lookup(surveyType); ok {
		t.MaxScore = sc.MaxScore
	}
	for _, p := range points {
		t.Points = append(t.Points, chart.Point{Date: p.Date, Score: p.Score})
	}
	return chart.RenderTrend(t)
}

func (s *Service) chartThresholds(surveyType string) []chart.Threshold {
	if rt, ok := scoring.RiskThresholdFor(surveyType); ok {
		return []chart.Threshold{
			{Name: "Moderate risk", Value: rt.Moderate},
			{Name: "High risk", Value: rt.High},
		}
	}
	th := s.criteria.Thresholds(surveyType)
	out := make([]chart.Threshold, 0, len(th))
	for name, v := range th {
		out = append(out, chart.Threshold{Name: name, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// -- Aggregates --

func (s *Service) Analytics(ctx context.Context) (*Analytics, error) {
	var (
		patients, surveys int
		types, perType    map[string]int
		averages          map[string]float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { patients, err = s.repo.CountPatients(gctx); return })
	g.Go(func() (err error) { surveys, err = s.repo.CountSurveys(gctx); return })
	g.Go(func() (err error) { types, err = s.repo.TypeCounts(gctx); return })
	g.Go(func() (err error) { perType, err = s.repo.PatientsPerType(gctx); return })
	g.Go(func() (err error) { averages, err = s.repo.AverageScores(gctx); return })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Analytics{
		TotalPatients:          patients,
		TotalSurveys:           surveys,
		SurveyTypeDistribution: types,
		AverageScores:          make(map[string]float64, len(averages)),
		CompletionRates:        make(map[string]float64, len(perType)),
		SurveysPerPatient:      ratio(surveys, patients),
	}
	for k, v := range averages {
		out.AverageScores[k] = round2(v)
	}
	for k, n := range perType {
		out.CompletionRates[k] = completionRate(n, patients)
	}
	return out, nil
}

func completionRate(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(completed) / float64(total) * 100)
}

func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	var (
		patients, active, surveys int
		perType                   map[string]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { patients, err = s.repo.CountPatients(gctx); return })
	g.Go(func() (err error) { active, err = s.repo.CountActivePatients(gctx); return })
	g.Go(func() (err error) { surveys, err = s.repo.CountSurveys(gctx); return })
	g.Go(func() (err error) { perType, err = s.repo.PatientsPerType(gctx); return })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Statistics{
		TotalPatients:            patients,
		ActivePatients:           active,
		AverageSurveysPerPatient: ratio(surveys, patients),
		ScaleCompletion:          make(map[string]ScaleCompletion),
	}
	for _, sc := range scoring.Scales() {
		n := perType[sc.Name]
		out.ScaleCompletion[sc.Name] = ScaleCompletion{Patients: n, Rate: completionRate(n, patients)}
	}
	return out, nil
}

// SurveyAnalytics summarizes every scored submission of one scale.
func (s *Service) SurveyAnalytics(ctx context.Context, surveyType string) (*SurveyAnalytics, error) {
	surveyType = scoring.CanonicalType(surveyType)
	rows, err := s.repo.ScoresForType(ctx, surveyType)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	return analyze(surveyType, rows, s.now()), nil
}

func analyze(surveyType string, rows []ScoredRow, now time.Time) *SurveyAnalytics {
	out := &SurveyAnalytics{
		SurveyType:   surveyType,
		Count:        len(rows),
		Min:          rows[0].Score,
		Max:          rows[0].Score,
		Distribution: make(map[string]int),
	}

	sum := 0
	for _, r := range rows {
		sum += r.Score
		if r.Score < out.Min {
			out.Min = r.Score
		}
		if r.Score > out.Max {
			out.Max = r.Score
		}
		cat := r.Category
		if cat == "" {
			cat = "unknown"
		}
		out.Distribution[cat]++
	}
	mean := float64(sum) / float64(len(rows))
	out.Average = round2(mean)

	if len(rows) > 1 {
		var sq float64
		for _, r := range rows {
			d := float64(r.Score) - mean
			sq += d * d
		}
		out.StdDev = round2(math.Sqrt(sq / float64(len(rows)-1)))
	}

	out.Trend = scoreTrend(rows, mean, now)
	return out
}

func scoreTrend(rows []ScoredRow, overall float64, now time.Time) ScoreTrend {
	cutoff := now.Add(-trendWindow)
	sum, n := 0, 0
	for _, r := range rows {
		if !r.SubmissionDate.Before(cutoff) {
			sum += r.Score
			n++
		}
	}
	t := ScoreTrend{Direction: TrendStable, RecentSubmissions: n}
	if n == 0 {
		return t
	}
	recent := float64(sum) / float64(n)
	t.RecentAverage = round2(recent)
	switch {
	case n < 2, overall == 0:
	case recent > overall*1.1:
		t.Direction = TrendIncreasing
	case recent < overall*0.9:
		t.Direction = TrendDecreasing
	}
	return t
}

// MonthlyTrends counts submissions per month and type over the last months.
func (s *Service) MonthlyTrends(ctx context.Context, months int) (*MonthlyTrends, error) {
	if months < 1 || months > 60 {
		return nil, ErrMonthsRange
	}
	now := s.now().UTC()
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)

	counts, err := s.repo.MonthlyCounts(ctx, since)
	if err != nil {
		return nil, err
	}
	out := &MonthlyTrends{Months: months, Since: since, Trends: make(map[string]map[string]int, months)}
	for m := since; !m.After(now); m = m.AddDate(0, 1, 0) {
		out.Trends[m.Format("2006-01")] = map[string]int{}
	}
	for _, c := range counts {
		bucket, ok := out.Trends[c.Month]
		if !ok {
			bucket = map[string]int{}
			out.Trends[c.Month] = bucket
		}
		bucket[c.SurveyType] += c.Count
	}
	return out, nil
}

func (s *Service) RecentActivity(ctx context.Context, limit int) (*RecentActivity, error) {
	acts, total, err := s.repo.RecentActivity(ctx, limit)
	if err != nil {
		return nil, err
	}
	if acts == nil {
		acts = []Activity{}
	}
	return &RecentActivity{Activities: acts, TotalActivities: total}, nil
}

// -- Per patient --

func (s *Service) Risk(ctx context.Context, patientID string) (*PatientRisk, error) {
	latest, err := s.results.LatestByType(ctx, patientID)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]int, len(latest))
	for _, r := range latest {
		if r.IsScored() {
			scores[r.SurveyType] = *r.Score
		}
	}
	return &PatientRisk{
		PatientID:      patientID,
		AssessedAt:     s.now(),
		RiskAssessment: scoring.AssessRisk(scores),
	}, nil
}

func (s *Service) Timeline(ctx context.Context, patientID string) (*Timeline, error) {
	results, err := s.results.ListByPatient(ctx, patientID, survey.Filter{})
	if err != nil {
		return nil, err
	}
	out := &Timeline{PatientID: patientID, Events: make([]TimelineEvent, 0, len(results)), TotalSurveys: len(results)}
	for i := len(results) - 1; i >= 0; i-- {
		r := results[i]
		out.Events = append(out.Events, TimelineEvent{SurveyID: r.ID, SurveyType: r.SurveyType, Score: r.Score, Date: r.SubmissionDate})
	}
	if n := len(out.Events); n > 0 {
		days := 0
		for i := 1; i < n; i++ {
			days += int(out.Events[i].Date.Sub(out.Events[i-1].Date) / (24 * time.Hour))
		}
		avg := 0.0
		if n > 1 {
			avg = round1(float64(days) / float64(n-1))
		}
		out.AverageIntervalDays = &avg
	}
	return out, nil
}

// ExportResults returns the results to export, newest first.
func (s *Service) ExportResults(ctx context.Context, patientID, surveyType string) ([]*survey.Result, error) {
	f := survey.Filter{}
	if surveyType != "" {
		f.SurveyType = scoring.CanonicalType(surveyType)
	}
	results, err := s.results.ListByPatient(ctx, patientID, f)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNoData
	}
	return results, nil
}

var csvHeader = []string{"Patient ID", "Survey ID", "Survey Type", "Submission Date", "Score", "Summary"}

var summaryCleaner = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", ",", ";")

// WriteCSV writes results with one row per survey.
func WriteCSV(w io.Writer, results []*survey.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range results {
		score := ""
		if r.Score != nil {
			score = strconv.Itoa(*r.Score)
		}
		row := []string{
			r.PatientID,
			r.ID.String(),
			r.SurveyType,
			r.SubmissionDate.Format(time.RFC3339),
			score,
			summaryCleaner.Replace(r.Summary),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *Service) Profile(ctx context.Context, patientID string) (*PatientProfile, error) {
	u, err := s.profiles.GetUser(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if u.UserType != auth.UserTypePatient {
		return nil, identity.ErrNotFound
	}
	sum, err := s.summaries.PatientSurveySummary(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return &PatientProfile{User: u, SurveySummary: sum}, nil
}
