package ambient

import (
	"errors"
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// ErrInvalidColor is returned for anything that is not "#rrggbb"
var ErrInvalidColor = errors.New("invalid color")

// DefaultColor is the fallback renderers use when no colour is available
var DefaultColor = Color{R: 0xff, G: 0xff, B: 0xff}

// Color is an RGB colour with independent byte channels
type Color struct {
	R, G, B uint8
}

// ParseColor parses a "#rrggbb" hex string (case-insensitive)
func ParseColor(s string) (Color, error) {
	// colorful also accepts the short #rgb form, which is not a valid anchor value
	if len(s) != 7 {
		return Color{}, fmt.Errorf("%w: %q: expected #rrggbb", ErrInvalidColor, s)
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return Color{}, fmt.Errorf("%w: %q: %v", ErrInvalidColor, s, err)
	}
	r, g, b := c.RGB255()
	return Color{R: r, G: g, B: b}, nil
}

// MustParseColor is ParseColor for literals known to be valid
func MustParseColor(s string) Color {
	c, err := ParseColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Hex renders the colour as lower-case "#rrggbb"
func (c Color) Hex() string {
	return c.colorful().Hex()
}

func (c Color) String() string {
	return c.Hex()
}

// MarshalText implements encoding.TextMarshaler
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c Color) colorful() colorful.Color {
	return colorful.Color{
		R: float64(c.R) / 255.0,
		G: float64(c.G) / 255.0,
		B: float64(c.B) / 255.0,
	}
}

// Blend interpolates linearly per channel: round(c1 + (c2-c1)*factor),
// rounding halves up and clamping to [0,255]. Factor 0 returns a unchanged.
func Blend(a, b Color, factor float64) Color {
	return Color{
		R: blendChannel(a.R, b.R, factor),
		G: blendChannel(a.G, b.G, factor),
		B: blendChannel(a.B, b.B, factor),
	}
}

func blendChannel(c1, c2 uint8, factor float64) uint8 {
	v := math.Floor(float64(c1) + (float64(c2)-float64(c1))*factor + 0.5)
	return uint8(math.Max(0, math.Min(255, v)))
}
