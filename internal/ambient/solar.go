package ambient

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sixdouglas/suncalc"
)

// Schedule supplies the anchors in effect at an instant
type Schedule interface {
	AnchorsAt(now time.Time) AnchorSet
	Len() int
}

// AnchorsAt implements Schedule; a fixed set is the same every day
func (s AnchorSet) AnchorsAt(time.Time) AnchorSet {
	return s
}

// Len implements Schedule
func (s AnchorSet) Len() int {
	return len(s)
}

// solarEvents maps the accepted event names onto suncalc's day times
var solarEvents = map[string]suncalc.DayTimeName{
	"sunrise":    suncalc.Sunrise,
	"sunset":     suncalc.Sunset,
	"solar_noon": suncalc.SolarNoon,
	"dawn":       suncalc.Dawn,
	"dusk":       suncalc.Dusk,
}

// TimeSpec is a parsed anchor time: either a fixed clock time or a sun event
// shifted by an offset in minutes.
type TimeSpec struct {
	Event  string
	Offset int
	Fixed  ClockTime
}

// IsSolar reports whether the spec depends on the sun
func (t TimeSpec) IsSolar() bool {
	return t.Event != ""
}

func (t TimeSpec) String() string {
	if !t.IsSolar() {
		return t.Fixed.String()
	}
	switch {
	case t.Offset > 0:
		return fmt.Sprintf("%s+%s", t.Event, ClockTime(t.Offset))
	case t.Offset < 0:
		return fmt.Sprintf("%s-%s", t.Event, ClockTime(-t.Offset))
	default:
		return t.Event
	}
}

// ParseTimeSpec accepts "HH:mm", "sunset", "sunset+01:00" or "sunrise-00:30"
func ParseTimeSpec(s string) (TimeSpec, error) {
	s = strings.TrimSpace(s)
	if ct, err := ParseClockTime(s); err == nil {
		return TimeSpec{Fixed: ct}, nil
	}

	event, offset, sign := s, "", 0
	if i := strings.IndexAny(s, "+-"); i >= 0 {
		event, offset = s[:i], s[i+1:]
		sign = 1
		if s[i] == '-' {
			sign = -1
		}
	}

	event = strings.ToLower(event)
	if _, ok := solarEvents[event]; !ok {
		return TimeSpec{}, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}

	spec := TimeSpec{Event: event}
	if sign != 0 {
		d, err := ParseClockTime(offset)
		if err != nil {
			return TimeSpec{}, fmt.Errorf("invalid offset in %q: %w", s, err)
		}
		spec.Offset = sign * d.Minutes()
	}
	return spec, nil
}

// SolarSchedule resolves sun events for a fixed position.
// Wall-clock times are taken in Location.
type SolarSchedule struct {
	Latitude  float64
	Longitude float64
	Location  *time.Location
}

// EventTime returns the clock time of a sun event on the day of t.
// ok is false when the event does not happen that day (polar day or night).
func (s SolarSchedule) EventTime(event string, t time.Time) (ClockTime, bool) {
	name, exists := solarEvents[event]
	if !exists {
		return 0, false
	}

	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	noon := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, loc)

	times := suncalc.GetTimes(noon, s.Latitude, s.Longitude)
	dt, exists := times[name]
	if !exists || dt.Value.IsZero() {
		return 0, false
	}
	return ClockTimeOf(dt.Value.In(loc)), true
}

type templateAnchor struct {
	time  TimeSpec
	color Color
}

// Template is a Schedule whose anchors may follow the sun. Fixed anchors are
// returned as-is; solar anchors are recomputed once per local day.
type Template struct {
	anchors []templateAnchor
	solar   SolarSchedule
	logger  *slog.Logger

	mu      sync.Mutex
	day     string
	current AnchorSet
}

// ParseTemplate parses specs that may use sun events
func ParseTemplate(specs []AnchorSpec, solar SolarSchedule, logger *slog.Logger) (*Template, error) {
	if logger == nil {
		logger = slog.Default()
	}

	anchors := make([]templateAnchor, 0, len(specs))
	for i, spec := range specs {
		ts, err := ParseTimeSpec(spec.Time)
		if err != nil {
			return nil, fmt.Errorf("anchor %d: %w", i, err)
		}
		c, err := ParseColor(spec.Color)
		if err != nil {
			return nil, fmt.Errorf("anchor %d: %w", i, err)
		}
		anchors = append(anchors, templateAnchor{time: ts, color: c})
	}

	return &Template{anchors: anchors, solar: solar, logger: logger}, nil
}

// Len implements Schedule
func (t *Template) Len() int {
	return len(t.anchors)
}

// AnchorsAt implements Schedule
func (t *Template) AnchorsAt(now time.Time) AnchorSet {
	loc := t.solar.Location
	if loc == nil {
		loc = time.Local
	}
	day := now.In(loc).Format(time.DateOnly)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil && t.day == day {
		return t.current
	}

	set := make(AnchorSet, 0, len(t.anchors))
	for _, a := range t.anchors {
		if !a.time.IsSolar() {
			set = append(set, Anchor{Time: a.time.Fixed, Color: a.color})
			continue
		}

		ct, ok := t.solar.EventTime(a.time.Event, now)
		if !ok {
			t.logger.Warn("Sun event does not occur today, skipping anchor",
				"event", a.time.Event,
				"day", day,
				"latitude", t.solar.Latitude)
			continue
		}
		shifted := (ct.Minutes() + a.time.Offset) % MinutesPerDay
		if shifted < 0 {
			shifted += MinutesPerDay
		}
		set = append(set, Anchor{Time: ClockTime(shifted), Color: a.color})
	}

	t.logger.Debug("Computed anchors for day", "day", day, "anchor_count", len(set))
	t.day = day
	t.current = set
	return set
}

// Specs returns the template in its external form
func (t *Template) Specs() []AnchorSpec {
	specs := make([]AnchorSpec, len(t.anchors))
	for i, a := range t.anchors {
		specs[i] = AnchorSpec{Time: a.time.String(), Color: a.color.Hex()}
	}
	return specs
}
