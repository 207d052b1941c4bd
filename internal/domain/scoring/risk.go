package scoring

// RiskThreshold is the score at which a scale is read as moderate or high risk.
type RiskThreshold struct {
	Moderate int `json:"moderate"`
	High     int `json:"high"`
}

var riskThresholds = map[string]RiskThreshold{
	AUDIT: {Moderate: 8, High: 16},
	PSQI:  {Moderate: 6, High: 12},
	BDI:   {Moderate: 14, High: 29},
	BAI:   {Moderate: 16, High: 26},
	KMDQ:  {Moderate: 7, High: 10},
}

const (
	RiskUnknown  = "unknown"
	RiskLow      = "low"
	RiskModerate = "moderate"
	RiskHigh     = "high"
)

// RiskThresholdFor returns the risk cut-offs for a scale.
func RiskThresholdFor(scale string) (RiskThreshold, bool) {
	t, ok := riskThresholds[scale]
	return t, ok
}

// Level classifies a single score.
func (t RiskThreshold) Level(score int) string {
	switch {
	case score >= t.High:
		return RiskHigh
	case score >= t.Moderate:
		return RiskModerate
	}
	return RiskLow
}

type RiskFactor struct {
	SurveyType string `json:"survey_type"`
	Score      int    `json:"score"`
	Level      string `json:"level"`
}

type RiskAssessment struct {
	OverallRisk string       `json:"overall_risk"`
	RiskScore   float64      `json:"risk_score"`
	Factors     []RiskFactor `json:"risk_factors"`
}

// AssessRisk combines the latest score of each scale into an overall level.
// A high scale counts 2 points and a moderate one 1; the ratio of points to
// the maximum possible decides the level. Scales without thresholds are ignored.
func AssessRisk(latest map[string]int) RiskAssessment {
	out := RiskAssessment{OverallRisk: RiskUnknown, Factors: []RiskFactor{}}
	points, n := 0, 0
	for _, s := range scales {
		score, ok := latest[s.Name]
		if !ok {
			continue
		}
		t, ok := riskThresholds[s.Name]
		if !ok {
			continue
		}
		n++
		level := t.Level(score)
		switch level {
		case RiskHigh:
			points += 2
		case RiskModerate:
			points++
		}
		if level != RiskLow {
			out.Factors = append(out.Factors, RiskFactor{SurveyType: s.Name, Score: score, Level: level})
		}
	}
	if n == 0 {
		return out
	}

	ratio := float64(points) / float64(n*2)
	out.RiskScore = ratio
	switch {
	case ratio >= 0.5:
		out.OverallRisk = RiskHigh
	case ratio >= 0.25:
		out.OverallRisk = RiskModerate
	default:
		out.OverallRisk = RiskLow
	}
	return out
}
