package scoring

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

var answerWords = map[string]int{
	"never":      0,
	"no":         0,
	"none":       0,
	"not at all": 0,
	"rarely":     1,
	"sometimes":  1,
	"mild":       1,
	"slightly":   1,
	"often":      2,
	"moderate":   2,
	"moderately": 2,
	"always":     3,
	"severe":     3,
	"very":       3,
	"extremely":  3,
	"yes":        1,
	"true":       1,
}

// ToNumeric converts one answer to an item score clamped to [0, max].
// Unknown or missing answers score 0.
func ToNumeric(v interface{}, max int) int {
	n := 0
	switch x := v.(type) {
	case nil:
	case int:
		n = x
	case int64:
		n = int(clampFloat(float64(x), 0, float64(max)))
	case float64:
		n = int(clampFloat(x, 0, float64(max)))
	case json.Number:
		if f, err := x.Float64(); err == nil {
			n = int(clampFloat(f, 0, float64(max)))
		}
	case bool:
		if x {
			n = 1
		}
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		if w, ok := answerWords[s]; ok {
			n = w
		} else if f, err := strconv.ParseFloat(s, 64); err == nil {
			n = int(clampFloat(f, 0, float64(max)))
		}
	}
	return clamp(n, 0, max)
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// clampFloat bounds f before an int conversion, since converting an
// out-of-range float is implementation defined. NaN maps to lo.
func clampFloat(f, lo, hi float64) float64 {
	switch {
	case math.IsNaN(f), f < lo:
		return lo
	case f > hi:
		return hi
	}
	return f
}

// toFloat reads a finite numeric answer, reporting false when it is absent,
// unparseable, NaN or infinite.
func toFloat(v interface{}) (float64, bool) {
	f, ok := rawFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func rawFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// IsYes reports whether a yes/no answer is affirmative.
func IsYes(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x >= 1
	case int:
		return x >= 1
	case json.Number:
		f, err := x.Float64()
		return err == nil && f >= 1
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "yes", "y", "1", "true", "예", "네":
			return true
		}
	}
	return false
}
