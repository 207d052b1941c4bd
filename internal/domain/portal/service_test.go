package portal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/psyopd/survey/internal/domain/scoring"
	"github.com/psyopd/survey/internal/domain/survey"
	"github.com/psyopd/survey/internal/platform/auth"
	"github.com/psyopd/survey/internal/platform/reporting"
)

// -- Mocks --

type mockResults struct {
	latest map[string][]*survey.Result
}

func (m *mockResults) Create(context.Context, *survey.Result) error { return nil }
func (m *mockResults) GetByID(context.Context, uuid.UUID) (*survey.Result, error) {
	return nil, survey.ErrNotFound
}
func (m *mockResults) Delete(context.Context, uuid.UUID) error { return survey.ErrNotFound }
func (m *mockResults) ListByPatient(_ context.Context, patientID string, _ survey.Filter) ([]*survey.Result, error) {
	return m.latest[patientID], nil
}
func (m *mockResults) LatestByType(_ context.Context, patientID string) ([]*survey.Result, error) {
	return m.latest[patientID], nil
}

type mockCache struct {
	summaries map[string]string
	versions  map[string]int64
	puts      int
}

func newMockCache(summaries map[string]string) *mockCache {
	if summaries == nil {
		summaries = map[string]string{}
	}
	return &mockCache{summaries: summaries, versions: map[string]int64{}}
}

func (m *mockCache) Version(_ context.Context, patientID string) (int64, error) {
	return m.versions[patientID], nil
}

func (m *mockCache) Get(_ context.Context, patientID string) (string, time.Time, error) {
	s, ok := m.summaries[patientID]
	if !ok {
		return "", time.Time{}, survey.ErrNotFound
	}
	return s, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), nil
}

func (m *mockCache) Put(_ context.Context, patientID, summary string, version int64) (time.Time, bool, error) {
	if m.versions[patientID] != version {
		return time.Time{}, false, nil
	}
	m.summaries[patientID] = summary
	m.puts++
	return time.Now(), true, nil
}

func (m *mockCache) Invalidate(_ context.Context, patientID string) error {
	delete(m.summaries, patientID)
	m.versions[patientID]++
	return nil
}

type countingModel struct {
	calls int
}

func (m *countingModel) Generate(context.Context, string) (string, error) {
	m.calls++
	return "종합 요약", nil
}

func intPtr(i int) *int { return &i }

func seeded() *mockResults {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return &mockResults{latest: map[string][]*survey.Result{
		"MRN-1001": {
			{ID: uuid.New(), PatientID: "MRN-1001", SurveyType: scoring.BDI, Score: intPtr(12),
				Interpretation: &scoring.Interpretation{Category: "가벼운 우울"}, Summary: "bdi report", SubmissionDate: at},
			{ID: uuid.New(), PatientID: "MRN-1001", SurveyType: survey.TypeDemographic, SubmissionDate: at},
			{ID: uuid.New(), PatientID: "MRN-1001", SurveyType: scoring.AUDIT, Score: intPtr(4), SubmissionDate: at},
		},
		"MRN-2002": {
			{ID: uuid.New(), PatientID: "MRN-2002", SurveyType: survey.TypePastHistory, SubmissionDate: at},
		},
	}}
}

func TestService_PatientReport_GeneratesAndCaches(t *testing.T) {
	model := &countingModel{}
	cache := newMockCache(nil)
	svc := NewService(seeded(), cache, reporting.NewGenerator(model, zerolog.Nop()), zerolog.Nop())

	rep, err := svc.PatientReport(context.Background(), "MRN-1001")
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.ScaleSummaries) != 2 {
		t.Fatalf("expected 2 scale summaries, got %d", len(rep.ScaleSummaries))
	}
	// Display order follows the scale list: AUDIT before BDI.
	if rep.ScaleSummaries[0].SurveyType != scoring.AUDIT || rep.ScaleSummaries[1].SurveyType != scoring.BDI {
		t.Errorf("unexpected order %+v", rep.ScaleSummaries)
	}
	if !strings.HasPrefix(rep.TotalSummary, "종합 요약") {
		t.Errorf("unexpected total summary %q", rep.TotalSummary)
	}
	if cache.puts != 1 || model.calls != 1 {
		t.Fatalf("expected one generation and one cache write, got %d/%d", model.calls, cache.puts)
	}

	if _, err := svc.PatientReport(context.Background(), "MRN-1001"); err != nil {
		t.Fatal(err)
	}
	if model.calls != 1 {
		t.Error("expected the cached summary to be reused")
	}
}

func TestService_PatientReport_UsesCache(t *testing.T) {
	cache := newMockCache(map[string]string{"MRN-1001": "cached"})
	svc := NewService(seeded(), cache, reporting.NewGenerator(nil, zerolog.Nop()), zerolog.Nop())
	rep, err := svc.PatientReport(context.Background(), "MRN-1001")
	if err != nil {
		t.Fatal(err)
	}
	if rep.TotalSummary != "cached" || rep.GeneratedAt.Year() != 2024 {
		t.Errorf("expected cached summary, got %+v", rep)
	}
}

// submittingModel records a new BAI result for the patient while the total
// summary is being generated.
type submittingModel struct {
	results *mockResults
	cache   *mockCache
	calls   int
}

func (m *submittingModel) Generate(ctx context.Context, _ string) (string, error) {
	m.calls++
	if m.calls == 1 {
		m.results.latest["MRN-1001"] = append(m.results.latest["MRN-1001"], &survey.Result{
			ID: uuid.New(), PatientID: "MRN-1001", SurveyType: scoring.BAI, Score: intPtr(20),
			SubmissionDate: time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC),
		})
		if err := m.cache.Invalidate(ctx, "MRN-1001"); err != nil {
			return "", err
		}
	}
	return "종합 요약", nil
}

func TestService_PatientReport_SubmissionDuringGeneration(t *testing.T) {
	results := seeded()
	cache := newMockCache(nil)
	model := &submittingModel{results: results, cache: cache}
	svc := NewService(results, cache, reporting.NewGenerator(model, zerolog.Nop()), zerolog.Nop())
	ctx := context.Background()

	if _, err := svc.PatientReport(ctx, "MRN-1001"); err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.summaries["MRN-1001"]; ok {
		t.Fatal("expected a summary built from superseded results not to be cached")
	}

	rep, err := svc.PatientReport(ctx, "MRN-1001")
	if err != nil {
		t.Fatal(err)
	}
	if model.calls != 2 {
		t.Errorf("expected the summary to be regenerated, got %d generations", model.calls)
	}
	if len(rep.ScaleSummaries) != 3 {
		t.Errorf("expected the new BAI result in the report, got %d scales", len(rep.ScaleSummaries))
	}
	if cache.puts != 1 {
		t.Errorf("expected the regenerated summary to be cached once, got %d", cache.puts)
	}
}

func TestService_PatientReport_NoScores(t *testing.T) {
	svc := NewService(seeded(), newMockCache(nil), reporting.NewGenerator(nil, zerolog.Nop()), zerolog.Nop())
	for _, id := range []string{"MRN-2002", "MRN-9999"} {
		if _, err := svc.PatientReport(context.Background(), id); !errors.Is(err, ErrNoResults) {
			t.Errorf("%s: expected ErrNoResults, got %v", id, err)
		}
	}
}

func TestHandler_GetReport(t *testing.T) {
	svc := NewService(seeded(), newMockCache(nil), reporting.NewGenerator(nil, zerolog.Nop()), zerolog.Nop())
	h := NewHandler(svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/patient/report", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: "MRN-1001", UserType: auth.UserTypePatient}))
	rec := httptest.NewRecorder()
	if err := h.GetReport(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"patient_id":"MRN-1001"`) {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/patient/report", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: "MRN-2002", UserType: auth.UserTypePatient}))
	err := h.GetReport(e.NewContext(req, httptest.NewRecorder()))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}
