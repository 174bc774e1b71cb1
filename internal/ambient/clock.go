package ambient

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the period of the wall-clock wheel
const MinutesPerDay = 24 * 60

// ErrInvalidClockTime is returned for malformed "HH:mm" input
var ErrInvalidClockTime = errors.New("invalid clock time")

// ClockTime is a wall-clock time of day in minutes since midnight, [0, 1440)
type ClockTime int

// ParseClockTime parses "HH:mm" with hours in [0,23] and minutes in [0,59]
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}

	hours, err := parseClockField(parts[0])
	if err != nil || hours > 23 {
		return 0, fmt.Errorf("%w: %q: hour must be 0-23", ErrInvalidClockTime, s)
	}
	minutes, err := parseClockField(parts[1])
	if err != nil || minutes > 59 {
		return 0, fmt.Errorf("%w: %q: minute must be 0-59", ErrInvalidClockTime, s)
	}

	return ClockTime(hours*60 + minutes), nil
}

// parseClockField accepts one or two decimal digits, no sign
func parseClockField(s string) (int, error) {
	if len(s) == 0 || len(s) > 2 || strings.Trim(s, "0123456789") != "" {
		return 0, ErrInvalidClockTime
	}
	return strconv.Atoi(s)
}

// MustParseClockTime is ParseClockTime for literals known to be valid
func MustParseClockTime(s string) ClockTime {
	ct, err := ParseClockTime(s)
	if err != nil {
		panic(err)
	}
	return ct
}

// ClockTimeOf returns the whole-minute wall-clock time of t in t's location
func ClockTimeOf(t time.Time) ClockTime {
	return ClockTime(t.Hour()*60 + t.Minute())
}

// Minutes returns the minutes since midnight
func (c ClockTime) Minutes() int {
	return int(c)
}

// String renders the time as "HH:mm"
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// TimeCode returns the "HH:mm" bucket of t, the key the wider platform uses
// for minute-resolution lookups.
func TimeCode(t time.Time) string {
	return ClockTimeOf(t).String()
}

// Precision controls how a query instant is reduced to a minute of day
type Precision int

const (
	// PrecisionContinuous keeps seconds and sub-seconds, so output varies smoothly
	PrecisionContinuous Precision = iota
	// PrecisionMinute truncates to whole minutes, so output is piecewise constant
	PrecisionMinute
)

// ParsePrecision maps the configuration names onto a Precision
func ParsePrecision(s string) (Precision, error) {
	switch s {
	case "", "continuous":
		return PrecisionContinuous, nil
	case "minute":
		return PrecisionMinute, nil
	default:
		return 0, fmt.Errorf("unknown precision %q", s)
	}
}

func (p Precision) String() string {
	if p == PrecisionMinute {
		return "minute"
	}
	return "continuous"
}

// MinuteOfDay reduces t to a real-valued minute of day in [0, 1440).
// Only the wall clock of t's location matters.
func (p Precision) MinuteOfDay(t time.Time) float64 {
	m := float64(t.Hour()*60 + t.Minute())
	if p == PrecisionMinute {
		return m
	}
	return m + float64(t.Second())/60 + float64(t.Nanosecond())/float64(time.Minute)
}
