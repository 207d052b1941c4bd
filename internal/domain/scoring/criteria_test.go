package scoring

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInterpret_Ranges(t *testing.T) {
	c := DefaultCriteria()
	tests := []struct {
		scale string
		score int
		want  string
	}{
		{BDI, 0, "정상"},
		{BDI, 9, "정상"},
		{BDI, 10, "가벼운 우울"},
		{BDI, 20, "중등도 우울"},
		{BDI, 40, "심한 우울"},
		{BAI, 10, "경미한 불안"},
		{PSQI, 5, "좋은 수면"},
		{PSQI, 6, "나쁜 수면"},
		{GDS, 15, "경도 우울"},
		{GDSSF, 7, "경도 우울"},
	}
	for _, tt := range tests {
		got, err := c.Interpret(tt.scale, tt.score, "", nil)
		if err != nil {
			t.Fatalf("%s %d: unexpected error %v", tt.scale, tt.score, err)
		}
		if got.Category != tt.want {
			t.Errorf("%s %d = %q, want %q", tt.scale, tt.score, got.Category, tt.want)
		}
	}
}

func TestInterpret_AUDITByGender(t *testing.T) {
	c := DefaultCriteria()
	tests := []struct {
		gender string
		score  int
		want   string
	}{
		{"남", 9, "정상음주"},
		{"남", 10, "위험음주"},
		{"남", 19, "위험음주"},
		{"남", 20, "알코올사용장애"},
		{"male", 35, "알코올사용장애"},
		{"여", 5, "정상음주"},
		{"여", 6, "위험음주"},
		{"여성", 10, "알코올사용장애"},
		{"F", 9, "위험음주"},
	}
	for _, tt := range tests {
		got, err := c.Interpret(AUDIT, tt.score, tt.gender, nil)
		if err != nil {
			t.Fatalf("%s %d: unexpected error %v", tt.gender, tt.score, err)
		}
		if got.Category != tt.want {
			t.Errorf("AUDIT %s %d = %q, want %q", tt.gender, tt.score, got.Category, tt.want)
		}
	}
}

func TestInterpret_Errors(t *testing.T) {
	c := DefaultCriteria()

	if _, err := c.Interpret("UNKNOWN_SCALE", 10, "", nil); !errors.Is(err, ErrAssessmentNotFound) {
		t.Errorf("expected ErrAssessmentNotFound, got %v", err)
	}
	if _, err := c.Interpret(AUDIT, 10, "", nil); !errors.Is(err, ErrGenderRequired) {
		t.Errorf("expected ErrGenderRequired, got %v", err)
	}
	_, err := c.Interpret(AUDIT, 10, "기타", nil)
	if !errors.Is(err, ErrInvalidGender) || !strings.Contains(err.Error(), "기타") {
		t.Errorf("expected ErrInvalidGender naming the value, got %v", err)
	}
	if _, err := c.Interpret(KMDQ, 8, "", nil); !errors.Is(err, ErrConditionsRequired) {
		t.Errorf("expected ErrConditionsRequired, got %v", err)
	}
	if _, err := c.Interpret(BDI, 99, "", nil); !errors.Is(err, ErrNoMatchingCriteria) {
		t.Errorf("expected ErrNoMatchingCriteria, got %v", err)
	}
}

func TestInterpret_Thresholds(t *testing.T) {
	c := DefaultCriteria()

	got, err := c.Interpret(KMDQ, 8, "", map[string]string{"simultaneity": "예"})
	if err != nil || got.Category != "조울증 의심" {
		t.Errorf("positive K-MDQ = %+v, %v", got, err)
	}

	got, _ = c.Interpret(KMDQ, 8, "", map[string]string{"simultaneity": "아니오"})
	if got.Category != "조건 불충족" || !strings.Contains(got.Description, "'예'") || !strings.Contains(got.Description, "'아니오'") {
		t.Errorf("unmet condition = %+v", got)
	}

	got, err = c.Interpret(KMDQ, 5, "", nil)
	if err != nil || got.Category != "정상" || !strings.Contains(got.Description, "임계값 미만") {
		t.Errorf("below threshold = %+v, %v", got, err)
	}

	got, _ = c.Interpret(OCIR, 25, "", nil)
	if got.Category != "유의한 강박장애" {
		t.Errorf("positive OCI-R = %+v", got)
	}
	got, _ = c.Interpret(OCIR, 15, "", nil)
	if got.Category != "정상" {
		t.Errorf("negative OCI-R = %+v", got)
	}
}

func TestThresholds(t *testing.T) {
	c := DefaultCriteria()
	th := c.Thresholds(BDI)
	if th["가벼운 우울"] != 10 || th["심한 우울"] != 26 {
		t.Errorf("unexpected BDI thresholds %v", th)
	}
	if _, ok := th["정상"]; ok {
		t.Error("normal band must not be a threshold")
	}
	if c.Thresholds(KMDQ)["조울증 의심"] != 7 {
		t.Errorf("unexpected K-MDQ thresholds %v", c.Thresholds(KMDQ))
	}
	if c.Thresholds("NOPE") != nil {
		t.Error("expected nil for unknown assessment")
	}
}

func TestGendered(t *testing.T) {
	c := DefaultCriteria()
	if !c.Gendered(AUDIT) {
		t.Error("AUDIT is interpreted per gender")
	}
	if c.Gendered(BDI) || c.Gendered("NOPE") {
		t.Error("BDI and unknown assessments are not gendered")
	}
}

func TestParseCriteria_Invalid(t *testing.T) {
	tests := map[string]string{
		"not yaml":       "assessments: [",
		"no assessments": "not_assessments: []",
		"missing bounds": "assessments:\n  - name: X\n    criteria:\n      - category: a\n",
	}
	for name, doc := range tests {
		if _, err := ParseCriteria([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadCriteria(t *testing.T) {
	c, err := LoadCriteria("")
	if err != nil || !c.Has(BDI) {
		t.Fatalf("embedded criteria: %v", err)
	}

	path := filepath.Join(t.TempDir(), "criteria.yaml")
	doc := "assessments:\n  - name: CUSTOM\n    criteria:\n      - range: [0, 10]\n        category: ok\n        description: fine\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err = LoadCriteria(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if !c.Has("CUSTOM") || c.Has(BDI) {
		t.Error("file criteria should replace the embedded table")
	}

	if _, err := LoadCriteria(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestAssessRisk(t *testing.T) {
	tests := []struct {
		name   string
		latest map[string]int
		want   string
	}{
		{"no scores", map[string]int{}, RiskUnknown},
		{"all low", map[string]int{BDI: 5, BAI: 3}, RiskLow},
		{"one moderate of two", map[string]int{BDI: 15, BAI: 3}, RiskModerate},
		{"one high of two", map[string]int{BDI: 30, BAI: 3}, RiskHigh},
		{"one moderate of three", map[string]int{BDI: 15, BAI: 3, AUDIT: 1}, RiskLow},
		{"unthresholded scale ignored", map[string]int{OCIR: 50}, RiskUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AssessRisk(tt.latest)
			if got.OverallRisk != tt.want {
				t.Errorf("overall = %s, want %s (%+v)", got.OverallRisk, tt.want, got)
			}
		})
	}

	got := AssessRisk(map[string]int{BDI: 30, PSQI: 7})
	if len(got.Factors) != 2 || got.Factors[0].SurveyType != PSQI || got.Factors[1].Level != RiskHigh {
		t.Errorf("unexpected factors %+v", got.Factors)
	}
}
