package chart

import (
	"strings"
	"testing"
	"time"
)

func TestRenderTrend(t *testing.T) {
	day := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	html, err := RenderTrend(Trend{
		Title:    "BDI score trend",
		MaxScore: 63,
		Points: []Point{
			{Date: day.AddDate(0, 0, 14), Score: 12},
			{Date: day, Score: 20},
			{Date: day.Add(3 * time.Hour), Score: 18},
		},
		Thresholds: []Threshold{{Name: "moderate", Value: 14}, {Name: "high", Value: 29}},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{"<html", "BDI score trend", "2026-03-01 09:00", "2026-03-01 12:00", "2026-03-15", "moderate"} {
		if !strings.Contains(html, want) {
			t.Errorf("chart html missing %q", want)
		}
	}
	if strings.Index(html, "2026-03-01 09:00") > strings.Index(html, "2026-03-15") {
		t.Error("expected points ordered oldest first")
	}
}

func TestRenderTrend_Empty(t *testing.T) {
	if _, err := RenderTrend(Trend{Title: "empty"}); err == nil {
		t.Error("expected error for empty trend")
	}
}
