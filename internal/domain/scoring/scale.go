// Package scoring computes totals, subscores and interpretations for the
// standardized psychiatric questionnaires.
package scoring

import (
	"fmt"
	"strings"
)

const (
	AUDIT = "AUDIT"
	PSQI  = "PSQI"
	BDI   = "BDI"
	BAI   = "BAI"
	KMDQ  = "K-MDQ"
	OCIR  = "OCI-R"
	GDS   = "GDS"
	GDSSF = "GDS-SF"
)

// Scale describes a questionnaire and how its items are summed.
type Scale struct {
	Name        string `json:"survey_type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Items       int    `json:"items"`
	ItemMax     int    `json:"item_max"`
	MaxScore    int    `json:"max_score"`
}

var scales = []Scale{
	{Name: AUDIT, Title: "Alcohol Use Disorders Identification Test - Korean", Description: "Screens for hazardous and harmful alcohol use.", Items: 10, ItemMax: 4, MaxScore: 40},
	{Name: PSQI, Title: "Pittsburgh Sleep Quality Index", Description: "Assesses sleep quality and disturbances over the past month.", Items: 7, ItemMax: 3, MaxScore: 21},
	{Name: BDI, Title: "Beck Depression Inventory", Description: "Measures the severity of depressive symptoms.", Items: 21, ItemMax: 3, MaxScore: 63},
	{Name: BAI, Title: "Beck Anxiety Inventory", Description: "Measures the severity of anxiety symptoms.", Items: 21, ItemMax: 3, MaxScore: 63},
	{Name: KMDQ, Title: "Korean Mood Disorder Questionnaire", Description: "Screens for bipolar spectrum disorder.", Items: 13, ItemMax: 1, MaxScore: 13},
	{Name: OCIR, Title: "Obsessive-Compulsive Inventory - Revised", Description: "Measures obsessive-compulsive symptoms.", Items: 18, ItemMax: 4, MaxScore: 72},
	{Name: GDS, Title: "Geriatric Depression Scale", Description: "Screens for depression in older adults.", Items: 30, ItemMax: 1, MaxScore: 30},
	{Name: GDSSF, Title: "Geriatric Depression Scale - Short Form", Description: "Short screening form of the geriatric depression scale.", Items: 15, ItemMax: 1, MaxScore: 15},
}

var scaleIndex = func() map[string]Scale {
	m := make(map[string]Scale, len(scales))
	for _, s := range scales {
		m[s.Name] = s
	}
	return m
}()

// Scales returns every supported scale in display order.
func Scales() []Scale {
	out := make([]Scale, len(scales))
	copy(out, scales)
	return out
}

// Lookup finds a scale by its canonical name.
func Lookup(name string) (Scale, bool) {
	s, ok := scaleIndex[name]
	return s, ok
}

// Result is the outcome of scoring one submission.
type Result struct {
	Scale      string         `json:"survey_type"`
	TotalScore int            `json:"total_score"`
	MaxScore   int            `json:"max_score"`
	Subscores  map[string]int `json:"subscores,omitempty"`
}

// Score sums the responses for the named scale.
func Score(scale string, responses map[string]interface{}) (Result, error) {
	s, ok := Lookup(scale)
	if !ok {
		return Result{}, fmt.Errorf("unsupported scale %q", scale)
	}
	if responses == nil {
		responses = map[string]interface{}{}
	}

	switch s.Name {
	case PSQI:
		return scorePSQI(responses), nil
	case KMDQ:
		return scoreKMDQ(responses), nil
	}

	total := 0
	for i := 1; i <= s.Items; i++ {
		total += ToNumeric(responses[fmt.Sprintf("q%d", i)], s.ItemMax)
	}
	return Result{Scale: s.Name, TotalScore: total, MaxScore: s.MaxScore}, nil
}

// CanonicalType maps the survey type sent by the questionnaire UI to the
// stored survey type.
func CanonicalType(surveyType string) string {
	t := strings.ToLower(strings.TrimSpace(surveyType))
	switch t {
	case "demographic":
		return "DEMOGRAPHIC"
	case "past-history", "past_history":
		return "PAST_HISTORY"
	case "k-mdq", "kmdq", "k_mdq":
		return KMDQ
	case "oci-r", "ocir", "oci_r":
		return OCIR
	case "gds-sf", "gds_sf":
		return GDSSF
	}
	return strings.ToUpper(t)
}
