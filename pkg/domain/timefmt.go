package domain

import (
	"strconv"
	"strings"
	"time"
)

// TimeToMilli converts a time formatted as [[HH:]MM:]SS.mmm to
// milliseconds. Fields can be missing on the left; the rightmost group is
// seconds, the next minutes, the next hours. An empty or unparseable string
// yields 0.
func TimeToMilli(t string) int64 {
	t = strings.TrimSpace(t)
	if t == "" {
		return 0
	}
	sign := int64(1)
	if strings.HasPrefix(t, "-") {
		sign = -1
		t = t[1:]
	}
	if t == "" {
		return 0
	}
	parts := strings.Split(t, ":")
	factor := float64(1000)
	v := 0.0
	for i := len(parts) - 1; i >= 0; i-- {
		num, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			num = 0
		}
		v += factor * num
		factor *= 60
	}
	v += 0.01 // round before trunc
	return sign * int64(v)
}

// MilliToString formats a millisecond duration as HH:MM:SS.mmm, wrapping
// at 24h. With includeHours false the hours field is omitted.
func MilliToString(elapsed int64, includeHours bool) string {
	v := elapsed
	negative := v < 0
	if negative {
		v = -v
	}
	v %= 24 * 60 * 60 * 1000
	h := v / (60 * 60 * 1000)
	v -= h * 60 * 60 * 1000
	m := v / 60000
	v -= m * 60000
	s := v / 1000
	frac := v - s*1000

	out := pad2(m) + ":" + pad2(s) + "." + pad3(frac)
	if includeHours {
		out = pad2(h) + ":" + out
	}
	if negative {
		out = "-" + out
	}
	return out
}

func pad2(i int64) string {
	s := strconv.FormatInt(i, 10)
	if len(s) < 2 {
		s = "0" + s
	}
	return s
}

func pad3(i int64) string {
	s := strconv.FormatInt(i, 10)
	for len(s) < 3 {
		s = "0" + s
	}
	return s
}

// DayMillis returns milliseconds elapsed since local midnight.
func DayMillis(t time.Time) int64 {
	return int64(t.Hour())*3600*1000 +
		int64(t.Minute())*60*1000 +
		int64(t.Second())*1000 +
		int64(t.Nanosecond()/1e6)
}

// GateFromWaypoint abbreviates a waypoint name for storage: Start and
// Finish collapse to S and F, anything else is prefixed with G_.
func GateFromWaypoint(waypoint string) string {
	switch waypoint {
	case "Start":
		return "S"
	case "Finish":
		return "F"
	default:
		return "G_" + waypoint
	}
}
