package scoring

import "fmt"

const (
	kmdqSymptomItems = 13
	kmdqImpairment   = "Functional impairment"
	kmdqCooccurrence = "Co-occurrence"
	kmdqSymptoms     = "Symptom count"
)

// scoreKMDQ counts yes answers across the symptom items. Co-occurrence and
// impairment are reported as subscores because the screen only turns
// positive when symptoms happened at the same time.
func scoreKMDQ(responses map[string]interface{}) Result {
	count := 0
	for i := 1; i <= kmdqSymptomItems; i++ {
		if IsYes(responses[fmt.Sprintf("q%d", i)]) {
			count++
		}
	}

	cooccur := 0
	if kmdqSimultaneous(responses) {
		cooccur = 1
	}

	return Result{
		Scale:      KMDQ,
		TotalScore: count,
		MaxScore:   kmdqSymptomItems,
		Subscores: map[string]int{
			kmdqSymptoms:     count,
			kmdqCooccurrence: cooccur,
			kmdqImpairment:   ToNumeric(responses["impairment"], 3),
		},
	}
}

func kmdqSimultaneous(responses map[string]interface{}) bool {
	if v, ok := responses["simultaneity"]; ok {
		return IsYes(v)
	}
	return IsYes(responses["clustering"])
}

// Conditions derives the additional interpretation conditions for a scale
// from its raw responses. Scales without conditions return nil.
func Conditions(scale string, responses map[string]interface{}) map[string]string {
	if scale != KMDQ {
		return nil
	}
	_, hasSim := responses["simultaneity"]
	_, hasClu := responses["clustering"]
	if !hasSim && !hasClu {
		return nil
	}
	answer := "아니오"
	if kmdqSimultaneous(responses) {
		answer = "예"
	}
	return map[string]string{"simultaneity": answer}
}
