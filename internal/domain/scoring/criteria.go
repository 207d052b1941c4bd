package scoring

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed criteria.yaml
var defaultCriteria []byte

const (
	GenderMale   = "남"
	GenderFemale = "여"
)

// Interpretation is the clinical reading of a score. Error is set instead of
// Category when the score cannot be interpreted.
type Interpretation struct {
	Category    string `json:"category,omitempty" yaml:"category"`
	Description string `json:"description,omitempty" yaml:"description"`
	Error       string `json:"error,omitempty" yaml:"-"`
}

// Condition is an extra answer that must hold for a threshold to apply.
type Condition struct {
	Field       string `yaml:"field"`
	Value       string `yaml:"value"`
	Description string `yaml:"description"`
}

// Criterion matches either a closed/open score range or a threshold.
type Criterion struct {
	Range               []*int     `yaml:"range"`
	Threshold           *int       `yaml:"threshold"`
	Category            string     `yaml:"category"`
	Description         string     `yaml:"description"`
	AdditionalCondition *Condition `yaml:"additional_condition"`
}

type Assessment struct {
	Name             string                 `yaml:"name"`
	Criteria         []Criterion            `yaml:"criteria"`
	CriteriaByGender map[string][]Criterion `yaml:"criteria_by_gender"`
}

// Criteria holds the interpretation table for every assessment.
type Criteria struct {
	assessments map[string]Assessment
}

var (
	ErrAssessmentNotFound = errors.New("assessment not found")
	ErrGenderRequired     = errors.New("gender is required for this assessment")
	ErrInvalidGender      = errors.New("invalid gender")
	ErrNoMatchingCriteria = errors.New("no matching criteria found for the given score")
	ErrConditionsRequired = errors.New("additional conditions required for this assessment")
)

// ParseCriteria decodes a YAML interpretation table.
func ParseCriteria(data []byte) (*Criteria, error) {
	var doc struct {
		Assessments []Assessment `yaml:"assessments"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse criteria: %w", err)
	}
	if len(doc.Assessments) == 0 {
		return nil, fmt.Errorf("parse criteria: no assessments defined")
	}

	c := &Criteria{assessments: make(map[string]Assessment, len(doc.Assessments))}
	for _, a := range doc.Assessments {
		if a.Name == "" {
			return nil, fmt.Errorf("parse criteria: assessment without name")
		}
		for _, cr := range a.Criteria {
			if err := cr.validate(); err != nil {
				return nil, fmt.Errorf("parse criteria: %s: %w", a.Name, err)
			}
		}
		for g, list := range a.CriteriaByGender {
			for _, cr := range list {
				if err := cr.validate(); err != nil {
					return nil, fmt.Errorf("parse criteria: %s/%s: %w", a.Name, g, err)
				}
			}
		}
		c.assessments[a.Name] = a
	}
	return c, nil
}

func (cr Criterion) validate() error {
	if cr.Threshold == nil && len(cr.Range) != 2 {
		return fmt.Errorf("criterion %q needs a range of two bounds or a threshold", cr.Category)
	}
	if len(cr.Range) == 2 && cr.Range[0] == nil {
		return fmt.Errorf("criterion %q has no lower bound", cr.Category)
	}
	return nil
}

// DefaultCriteria returns the embedded interpretation table.
func DefaultCriteria() *Criteria {
	c, err := ParseCriteria(defaultCriteria)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCriteria reads the table from path, or returns the embedded one when
// path is empty.
func LoadCriteria(path string) (*Criteria, error) {
	if path == "" {
		return DefaultCriteria(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read criteria file: %w", err)
	}
	return ParseCriteria(data)
}

// Has reports whether the assessment has interpretation rules.
func (c *Criteria) Has(name string) bool {
	_, ok := c.assessments[name]
	return ok
}

// Gendered reports whether the assessment is read against per-gender tables.
func (c *Criteria) Gendered(name string) bool {
	return len(c.assessments[name].CriteriaByGender) > 0
}

// Thresholds returns the score at which each non-normal category starts,
// keyed by category. Gendered assessments use the male table.
func (c *Criteria) Thresholds(name string) map[string]int {
	a, ok := c.assessments[name]
	if !ok {
		return nil
	}
	list := a.Criteria
	if len(a.CriteriaByGender) > 0 {
		list = a.CriteriaByGender[GenderMale]
	}
	out := make(map[string]int)
	for i, cr := range list {
		switch {
		case cr.Threshold != nil:
			out[cr.Category] = *cr.Threshold
		case i > 0 && len(cr.Range) == 2 && cr.Range[0] != nil:
			out[cr.Category] = *cr.Range[0]
		}
	}
	return out
}

// NormalizeGender maps common spellings onto 남/여. Unknown values are
// returned trimmed so the caller can report them.
func NormalizeGender(g string) string {
	s := strings.ToLower(strings.TrimSpace(g))
	switch s {
	case "남", "남성", "남자", "male", "m", "man":
		return GenderMale
	case "여", "여성", "여자", "female", "f", "woman":
		return GenderFemale
	}
	return strings.TrimSpace(g)
}

// Interpret reads score against the named assessment. Gender is required
// for gendered tables. Conditions supply the additional answers threshold
// criteria may require.
func (c *Criteria) Interpret(name string, score int, gender string, conditions map[string]string) (Interpretation, error) {
	a, ok := c.assessments[name]
	if !ok {
		return Interpretation{}, fmt.Errorf("%w: %s", ErrAssessmentNotFound, name)
	}

	list := a.Criteria
	if len(a.CriteriaByGender) > 0 {
		if strings.TrimSpace(gender) == "" {
			return Interpretation{}, ErrGenderRequired
		}
		g := NormalizeGender(gender)
		byGender, ok := a.CriteriaByGender[g]
		if !ok {
			return Interpretation{}, fmt.Errorf("%w %q: expected %q or %q", ErrInvalidGender, gender, GenderMale, GenderFemale)
		}
		list = byGender
	}

	for _, cr := range list {
		if cr.Threshold == nil {
			if inRange(cr.Range, score) {
				return Interpretation{Category: cr.Category, Description: cr.Description}, nil
			}
			continue
		}

		if score < *cr.Threshold {
			continue
		}
		if cond := cr.AdditionalCondition; cond != nil {
			if conditions == nil {
				return Interpretation{}, ErrConditionsRequired
			}
			actual := conditions[cond.Field]
			if actual != cond.Value {
				return Interpretation{
					Category:    "조건 불충족",
					Description: fmt.Sprintf("%s 값이 '%s'이어야 하지만 '%s'입니다.", cond.Field, cond.Value, actual),
				}, nil
			}
		}
		return Interpretation{Category: cr.Category, Description: cr.Description}, nil
	}

	if isThresholdOnly(list) {
		return Interpretation{Category: "정상", Description: "점수가 임계값 미만이므로 정상으로 간주됩니다."}, nil
	}
	return Interpretation{}, ErrNoMatchingCriteria
}

func inRange(r []*int, score int) bool {
	if len(r) != 2 || r[0] == nil {
		return false
	}
	if score < *r[0] {
		return false
	}
	return r[1] == nil || score <= *r[1]
}

func isThresholdOnly(list []Criterion) bool {
	for _, cr := range list {
		if cr.Threshold == nil {
			return false
		}
	}
	return len(list) > 0
}
