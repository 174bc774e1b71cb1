package ambient

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrAmbiguousAnchors is returned under DuplicatesReject when two anchors share a time
var ErrAmbiguousAnchors = errors.New("ambiguous anchor set: duplicate anchor times")

// DuplicatePolicy decides what happens to anchors that share a time of day
type DuplicatePolicy int

const (
	// DuplicatesCollapse keeps the first anchor per time in input order
	DuplicatesCollapse DuplicatePolicy = iota
	// DuplicatesReject fails the resolve with ErrAmbiguousAnchors
	DuplicatesReject
)

// ParseDuplicatePolicy maps the configuration names onto a DuplicatePolicy
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch s {
	case "", "collapse":
		return DuplicatesCollapse, nil
	case "reject":
		return DuplicatesReject, nil
	default:
		return 0, fmt.Errorf("unknown duplicate policy %q", s)
	}
}

func (p DuplicatePolicy) String() string {
	if p == DuplicatesReject {
		return "reject"
	}
	return "collapse"
}

// Resolver interpolates a colour for an instant from a set of anchors.
// It holds configuration only and is safe for concurrent use.
type Resolver struct {
	Precision  Precision
	Duplicates DuplicatePolicy
}

// DefaultResolver keeps sub-minute precision and collapses duplicate times
var DefaultResolver = Resolver{Precision: PrecisionContinuous, Duplicates: DuplicatesCollapse}

// Resolve returns the colour for now using the default resolver
func Resolve(anchors AnchorSet, now time.Time) (Color, bool, error) {
	return DefaultResolver.Resolve(anchors, now)
}

// Resolve interpolates between the nearest anchors before and after now on
// the circular 24h domain. The bool is false when anchors is empty.
func (r Resolver) Resolve(anchors AnchorSet, now time.Time) (Color, bool, error) {
	switch len(anchors) {
	case 0:
		return Color{}, false, nil
	case 1:
		return anchors[0].Color, true, nil
	}

	sorted := anchors.sorted()
	if hasDuplicates(sorted) {
		if r.Duplicates == DuplicatesReject {
			return Color{}, false, ErrAmbiguousAnchors
		}
		sorted = collapse(sorted)
		if len(sorted) == 1 {
			return sorted[0].Color, true, nil
		}
	}

	m := r.Precision.MinuteOfDay(now)
	n := len(sorted)

	afterIndex := sort.Search(n, func(i int) bool {
		return float64(sorted[i].Time) > m
	})
	if afterIndex == n {
		// Past the last anchor: head for tomorrow's first one
		afterIndex = 0
	}
	beforeIndex := (afterIndex - 1 + n) % n

	before, after := sorted[beforeIndex], sorted[afterIndex]
	if beforeIndex == afterIndex {
		return before.Color, true, nil
	}

	beforeMinutes := float64(before.Time)
	afterMinutes := float64(after.Time)
	if afterMinutes < beforeMinutes {
		afterMinutes += MinutesPerDay
	}

	adjustedNow := m
	if m < beforeMinutes {
		adjustedNow += MinutesPerDay
	}

	factor := (adjustedNow - beforeMinutes) / (afterMinutes - beforeMinutes)
	return Blend(before.Color, after.Color, factor), true, nil
}

// Value is a resolved colour, or the absence of one
type Value struct {
	Color Color
	Valid bool
	At    time.Time
}

// NoValue returns an invalid Value stamped with at
func NoValue(at time.Time) Value {
	return Value{At: at}
}

// OrDefault returns the colour, or DefaultColor when there is none
func (v Value) OrDefault() Color {
	if !v.Valid {
		return DefaultColor
	}
	return v.Color
}

// Hex returns the "#rrggbb" form, or "" when there is no value
func (v Value) Hex() string {
	if !v.Valid {
		return ""
	}
	return v.Color.Hex()
}

// Equal compares colour and validity, ignoring the timestamp
func (v Value) Equal(o Value) bool {
	if v.Valid != o.Valid {
		return false
	}
	return !v.Valid || v.Color == o.Color
}
