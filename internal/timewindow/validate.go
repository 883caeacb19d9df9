package timewindow

import (
	"regexp"
	"time"
)

var strictHHMMRe = regexp.MustCompile(`^\d{2}:\d{2}$`)

// ValidDate reports whether s is a real calendar date in DD.MM.YYYY form.
func ValidDate(s string) bool {
	if len(s) != len("02.01.2006") {
		return false
	}
	_, err := time.Parse("02.01.2006", s)
	return err == nil
}

// ValidHHMM reports whether s is a clock time between 00:00 and 23:59.
// A single digit hour ("7:30") is accepted as well.
func ValidHHMM(s string) bool {
	if !hhmmRe.MatchString(s) {
		return false
	}
	if len(s) == 4 {
		s = "0" + s
	}
	if !strictHHMMRe.MatchString(s) {
		return false
	}
	_, err := time.Parse("15:04", s)
	return err == nil
}
