package timeutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RelativeDay is the user-selected day for a scheduled post.
type RelativeDay int

const (
	Today RelativeDay = iota
	Tomorrow
	Overmorrow
)

func ParseRelativeDay(s string) (RelativeDay, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "today":
		return Today, nil
	case "tomorrow":
		return Tomorrow, nil
	case "overmorrow", "day_after_tomorrow":
		return Overmorrow, nil
	}
	return Today, fmt.Errorf("invalid relative day %q", s)
}

var ErrPastTime = errors.New("resolved time is already in the past")

// ResolveTrigger converts a relative day plus a typed HH:MM into an
// absolute timestamp in the user's zone. Resolution happens exactly once,
// at scheduling time; everything downstream works on the absolute value.
func ResolveTrigger(day RelativeDay, hhmm string, loc *time.Location, now time.Time) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	hour, minute, err := parseHHMM(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(loc)
	y, m, d := local.AddDate(0, 0, int(day)).Date()
	at := time.Date(y, m, d, hour, minute, 0, 0, loc)
	if !at.After(now) {
		return time.Time{}, fmt.Errorf("%w: %s", ErrPastTime, at.Format(time.RFC3339))
	}
	return at, nil
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
