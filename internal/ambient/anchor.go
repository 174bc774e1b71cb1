package ambient

import (
	"fmt"
	"sort"
)

// Anchor is a fixed (time of day, colour) keyframe on the 24h wheel
type Anchor struct {
	Time  ClockTime
	Color Color
}

// AnchorSet is an unordered collection of anchors. Duplicate times are allowed
// on input; see DuplicatePolicy for how the resolver treats them.
type AnchorSet []Anchor

// AnchorSpec is the external representation of an anchor.
// Time is "HH:mm" or, via SolarSchedule, a sun event such as "sunset-00:30".
type AnchorSpec struct {
	Time  string `json:"time" yaml:"time"`
	Color string `json:"color" yaml:"color"`
}

// ParseAnchor converts a fixed-time spec into an Anchor
func ParseAnchor(spec AnchorSpec) (Anchor, error) {
	t, err := ParseClockTime(spec.Time)
	if err != nil {
		return Anchor{}, err
	}
	c, err := ParseColor(spec.Color)
	if err != nil {
		return Anchor{}, err
	}
	return Anchor{Time: t, Color: c}, nil
}

// ParseAnchors converts specs into an AnchorSet, failing on the first bad entry
func ParseAnchors(specs []AnchorSpec) (AnchorSet, error) {
	set := make(AnchorSet, 0, len(specs))
	for i, spec := range specs {
		a, err := ParseAnchor(spec)
		if err != nil {
			return nil, fmt.Errorf("anchor %d: %w", i, err)
		}
		set = append(set, a)
	}
	return set, nil
}

// Specs converts the set back to its external form
func (s AnchorSet) Specs() []AnchorSpec {
	specs := make([]AnchorSpec, len(s))
	for i, a := range s {
		specs[i] = AnchorSpec{Time: a.Time.String(), Color: a.Color.Hex()}
	}
	return specs
}

// Clone returns a copy that shares nothing with s
func (s AnchorSet) Clone() AnchorSet {
	if s == nil {
		return nil
	}
	out := make(AnchorSet, len(s))
	copy(out, s)
	return out
}

// sorted returns a stably sorted copy; s itself is left untouched
func (s AnchorSet) sorted() AnchorSet {
	out := s.Clone()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time < out[j].Time
	})
	return out
}

// collapse drops every anchor whose time equals its predecessor's.
// Input must be sorted; the first anchor of each run is kept.
func collapse(sorted AnchorSet) AnchorSet {
	out := sorted[:0:0]
	for i, a := range sorted {
		if i > 0 && a.Time == sorted[i-1].Time {
			continue
		}
		out = append(out, a)
	}
	return out
}

// hasDuplicates reports whether a sorted set repeats a time
func hasDuplicates(sorted AnchorSet) bool {
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Time == sorted[i-1].Time {
			return true
		}
	}
	return false
}
