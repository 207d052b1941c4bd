package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"
)

func uniformResponses(items int, v interface{}) map[string]interface{} {
	r := make(map[string]interface{}, items)
	for i := 1; i <= items; i++ {
		r[fmt.Sprintf("q%d", i)] = v
	}
	return r
}

func TestScore_SummedScales(t *testing.T) {
	tests := []struct {
		scale string
		resp  map[string]interface{}
		want  int
	}{
		{AUDIT, uniformResponses(10, float64(4)), 40},
		{AUDIT, uniformResponses(10, float64(9)), 40},
		{BDI, uniformResponses(21, float64(1)), 21},
		{BAI, uniformResponses(21, "2"), 42},
		{BAI, uniformResponses(21, "sometimes"), 21},
		{OCIR, uniformResponses(18, float64(2)), 36},
		{BDI, map[string]interface{}{}, 0},
		{BDI, nil, 0},
	}
	for _, tt := range tests {
		res, err := Score(tt.scale, tt.resp)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tt.scale, err)
		}
		if res.TotalScore != tt.want {
			t.Errorf("%s: score = %d, want %d", tt.scale, res.TotalScore, tt.want)
		}
	}
}

func TestScore_Unsupported(t *testing.T) {
	if _, err := Score("DEMOGRAPHIC", nil); err == nil {
		t.Error("expected error for non-scale survey type")
	}
}

func TestToNumeric(t *testing.T) {
	tests := []struct {
		in   interface{}
		max  int
		want int
	}{
		{nil, 3, 0},
		{float64(2.7), 3, 2},
		{float64(-1), 3, 0},
		{float64(7), 3, 3},
		{"3.0", 3, 3},
		{" Never ", 3, 0},
		{"not at all", 3, 0},
		{"mild", 3, 1},
		{"moderately", 3, 2},
		{"extremely", 3, 3},
		{"extremely", 1, 1},
		{"yes", 3, 1},
		{"maybe", 3, 0},
		{true, 3, 1},
		{false, 3, 0},
		{json.Number("2"), 4, 2},
		{[]interface{}{1}, 3, 0},
		{"1e300", 3, 3},
		{"-1e300", 3, 0},
		{"inf", 3, 3},
		{"-Inf", 3, 0},
		{"NaN", 3, 0},
		{math.Inf(1), 2, 2},
		{math.NaN(), 3, 0},
		{float64(1e19), 3, 3},
		{json.Number("1e400"), 3, 0},
		{int64(math.MaxInt64), 3, 3},
	}
	for _, tt := range tests {
		if got := ToNumeric(tt.in, tt.max); got != tt.want {
			t.Errorf("ToNumeric(%#v, %d) = %d, want %d", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestScoreKMDQ(t *testing.T) {
	resp := map[string]interface{}{
		"q1": "yes", "q2": "Y", "q3": "1", "q4": true, "q5": "예",
		"q6": "no", "q7": float64(1), "q8": "true",
		"clustering": "yes",
		"impairment": float64(2),
	}
	res, err := Score(KMDQ, resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalScore != 7 {
		t.Errorf("expected 7 yes answers, got %d", res.TotalScore)
	}
	if res.Subscores[kmdqCooccurrence] != 1 || res.Subscores[kmdqImpairment] != 2 {
		t.Errorf("unexpected subscores %v", res.Subscores)
	}

	cond := Conditions(KMDQ, resp)
	if cond["simultaneity"] != "예" {
		t.Errorf("expected simultaneity 예, got %v", cond)
	}
	if Conditions(KMDQ, map[string]interface{}{"q1": "yes"}) != nil {
		t.Error("expected nil conditions without a co-occurrence answer")
	}
	if Conditions(BDI, resp) != nil {
		t.Error("expected nil conditions for BDI")
	}
}

func TestScorePSQI_Components(t *testing.T) {
	resp := map[string]interface{}{"component1": float64(1), "component2": float64(2), "component3": float64(3), "component7": "5"}
	res, _ := Score(PSQI, resp)
	if res.TotalScore != 9 {
		t.Errorf("expected 9, got %d", res.TotalScore)
	}
	if len(res.Subscores) != 7 {
		t.Errorf("expected 7 subscores, got %d", len(res.Subscores))
	}
}

func TestScorePSQI_Detailed(t *testing.T) {
	resp := map[string]interface{}{
		"hour_to_goto_sleep": "23:00",
		"sleep_onset":        float64(20),
		"wakeup_time":        "07:00",
		"sleep_duration":     float64(6.5),
		"psqi_sleep_disturbances": map[string]interface{}{
			"a": float64(1), "b": float64(2), "c": float64(1), "d": float64(0), "e": float64(0),
			"f": float64(1), "g": float64(0), "h": float64(0), "i": float64(0), "j": float64(0),
		},
		"sleep_quality":       float64(1),
		"sleep_medication":    float64(0),
		"daytime_dysfunction": float64(1),
		"daytime_motivation":  float64(2),
	}
	res, _ := Score(PSQI, resp)

	want := map[string]int{
		"Subjective sleep quality":  1,
		"Sleep latency":             1, // onset 20 -> 1, plus a=1 -> 2 -> 1
		"Sleep duration":            1,
		"Habitual sleep efficiency": 1, // 6.5 / 8 = 81%
		"Sleep disturbance":         1, // b..j = 4
		"Use of sleep medication":   0,
		"Daytime dysfunction":       2, // 1 + 2 = 3
	}
	for k, v := range want {
		if res.Subscores[k] != v {
			t.Errorf("%s = %d, want %d", k, res.Subscores[k], v)
		}
	}
	if res.TotalScore != 7 {
		t.Errorf("expected total 7, got %d", res.TotalScore)
	}
}

func TestPSQIHelpers(t *testing.T) {
	if got := psqiEfficiency("22:30", "06:30", 8); got != 0 {
		t.Errorf("full efficiency = %d, want 0", got)
	}
	if got := psqiEfficiency(float64(23), float64(7), 5); got != 3 {
		t.Errorf("62.5%% efficiency = %d, want 3", got)
	}
	if got := psqiEfficiency("bad", "07:00", 7); got != 3 {
		t.Errorf("unparseable bed time = %d, want 3", got)
	}
	if got := psqiDuration(7); got != 1 {
		t.Errorf("psqiDuration(7) = %d, want 1", got)
	}
	if got := psqiDuration(4.5); got != 3 {
		t.Errorf("psqiDuration(4.5) = %d, want 3", got)
	}
	if got := psqiLatency(float64(75), 3); got != 3 {
		t.Errorf("psqiLatency(75, 3) = %d, want 3", got)
	}
	if got := psqiDisturbance(map[string]interface{}{"b": float64(3), "c": float64(3), "d": float64(3), "e": float64(3), "f": float64(3), "g": float64(3), "h": float64(1)}); got != 3 {
		t.Errorf("disturbance 19 = %d, want 3", got)
	}
	if h, ok := parseClock("7:45"); !ok || h != 7.75 {
		t.Errorf("parseClock(7:45) = %v, %v", h, ok)
	}
}

func TestCanonicalType(t *testing.T) {
	tests := map[string]string{
		"demographic":  "DEMOGRAPHIC",
		"past-history": "PAST_HISTORY",
		"audit":        AUDIT,
		"psqi":         PSQI,
		"k-mdq":        KMDQ,
		"oci-r":        OCIR,
		"gds-sf":       GDSSF,
		"custom":       "CUSTOM",
	}
	for in, want := range tests {
		if got := CanonicalType(in); got != want {
			t.Errorf("CanonicalType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestScales(t *testing.T) {
	all := Scales()
	if len(all) == 0 || all[0].Name != AUDIT {
		t.Fatalf("unexpected scale order %v", all)
	}
	all[0].Name = "MUTATED"
	if s, _ := Lookup(AUDIT); s.Name != AUDIT {
		t.Error("Scales must return a copy")
	}
}
