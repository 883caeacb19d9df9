// Package timewindow holds the departure window helpers used to decide
// which departures a subscription cares about and whether they changed.
package timewindow

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/edgard/infobusbot/internal/infobus"
)

// NoResults is shown in place of an empty fingerprint.
const NoResults = "— нет сохранённых результатов (ещё не было подходящих рейсов)"

var hhmmRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseHHMM turns "H:MM" or "HH:MM" into hours*100+minutes.
// Anything else parses as 0.
func ParseHHMM(s string) int {
	m := hhmmRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	return h*100 + mins
}

// InRange reports whether v falls inside [start, end]. When end is before
// start the window wraps around midnight.
func InRange(v, start, end string) bool {
	x, a, b := ParseHHMM(v), ParseHHMM(start), ParseHHMM(end)
	if a <= b {
		return a <= x && x <= b
	}
	return x >= a || x <= b
}

// Matches returns the departures inside the window, keeping their order.
func Matches(times []infobus.Departure, from, to string) []infobus.Departure {
	var out []infobus.Departure
	for _, t := range times {
		if InRange(t.Depart, from, to) {
			out = append(out, t)
		}
	}
	return out
}

// HashInRange builds the change fingerprint "dep->arr|dep->arr" of the
// departures inside the window. No matches give "".
func HashInRange(times []infobus.Departure, from, to string) string {
	picked := make([]string, 0, len(times))
	for _, t := range Matches(times, from, to) {
		picked = append(picked, t.Depart+"->"+t.Arrive)
	}
	return strings.Join(picked, "|")
}

// FormatHash renders a stored fingerprint as bullet lines.
func FormatHash(h string) string {
	if strings.TrimSpace(h) == "" {
		return NoResults
	}

	var lines []string
	for _, p := range strings.Split(h, "|") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		dep, arr, ok := strings.Cut(p, "->")
		if !ok {
			continue
		}
		lines = append(lines, "• "+dep+" → "+arr)
	}
	if len(lines) == 0 {
		return "— нет сохранённых результатов"
	}
	return strings.Join(lines, "\n")
}
