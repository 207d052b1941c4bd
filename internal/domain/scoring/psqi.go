package scoring

import (
	"fmt"
	"strconv"
	"strings"
)

// PSQI component labels, in component order.
var psqiComponents = []string{
	"Subjective sleep quality",
	"Sleep latency",
	"Sleep duration",
	"Habitual sleep efficiency",
	"Sleep disturbance",
	"Use of sleep medication",
	"Daytime dysfunction",
}

func scorePSQI(r map[string]interface{}) Result {
	var comps [7]int
	if isDetailedPSQI(r) {
		comps = psqiDetailed(r)
	} else {
		for i := range comps {
			comps[i] = ToNumeric(r[fmt.Sprintf("component%d", i+1)], 3)
		}
	}

	res := Result{Scale: PSQI, MaxScore: 21, Subscores: make(map[string]int, len(comps))}
	for i, v := range comps {
		res.Subscores[psqiComponents[i]] = v
		res.TotalScore += v
	}
	return res
}

func isDetailedPSQI(r map[string]interface{}) bool {
	for _, k := range []string{"hour_to_goto_sleep", "sleep_onset", "wakeup_time", "sleep_duration", "psqi_sleep_disturbances"} {
		if _, ok := r[k]; ok {
			return true
		}
	}
	return false
}

func psqiDetailed(r map[string]interface{}) [7]int {
	dist, _ := r["psqi_sleep_disturbances"].(map[string]interface{})
	duration, _ := toFloat(r["sleep_duration"])

	var c [7]int
	c[0] = ToNumeric(r["sleep_quality"], 3)
	c[1] = psqiLatency(r["sleep_onset"], ToNumeric(dist["a"], 3))
	c[2] = psqiDuration(duration)
	c[3] = psqiEfficiency(r["hour_to_goto_sleep"], r["wakeup_time"], duration)
	c[4] = psqiDisturbance(dist)
	c[5] = ToNumeric(r["sleep_medication"], 3)
	c[6] = bucketSum(ToNumeric(r["daytime_dysfunction"], 3) + ToNumeric(r["daytime_motivation"], 3))
	return c
}

// bucketSum maps a 0-6 sum onto 0-3: 0, 1-2, 3-4, 5-6.
func bucketSum(sum int) int {
	switch {
	case sum <= 0:
		return 0
	case sum <= 2:
		return 1
	case sum <= 4:
		return 2
	}
	return 3
}

func psqiLatency(onset interface{}, disturbanceA int) int {
	minutes, _ := toFloat(onset)
	var s int
	switch {
	case minutes <= 15:
		s = 0
	case minutes <= 30:
		s = 1
	case minutes <= 60:
		s = 2
	default:
		s = 3
	}
	return bucketSum(s + disturbanceA)
}

func psqiDuration(hours float64) int {
	switch {
	case hours > 7:
		return 0
	case hours >= 6:
		return 1
	case hours >= 5:
		return 2
	}
	return 3
}

func psqiEfficiency(bed, wake interface{}, duration float64) int {
	bedH, ok1 := parseClock(bed)
	wakeH, ok2 := parseClock(wake)
	if !ok1 || !ok2 {
		return 3
	}
	inBed := wakeH - bedH
	if inBed <= 0 {
		inBed += 24
	}
	eff := duration / inBed * 100
	switch {
	case eff >= 85:
		return 0
	case eff >= 75:
		return 1
	case eff >= 65:
		return 2
	}
	return 3
}

func psqiDisturbance(dist map[string]interface{}) int {
	sum := 0
	for _, k := range []string{"b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		sum += ToNumeric(dist[k], 3)
	}
	switch {
	case sum == 0:
		return 0
	case sum <= 9:
		return 1
	case sum <= 18:
		return 2
	}
	return 3
}

// parseClock reads "HH:MM" or a number of hours into fractional hours.
func parseClock(v interface{}) (float64, bool) {
	if s, ok := v.(string); ok && strings.Contains(s, ":") {
		parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
		h, err1 := strconv.Atoi(parts[0])
		m, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || h < 0 || h > 24 || m < 0 || m >= 60 {
			return 0, false
		}
		return float64(h) + float64(m)/60, true
	}
	return toFloat(v)
}
