package ambient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClockTime(t *testing.T) {
	testCases := []struct {
		input   string
		minutes int
		valid   bool
	}{
		{"00:00", 0, true},
		{"06:30", 390, true},
		{"23:59", 1439, true},
		{"7:05", 425, true},
		{" 12:00 ", 720, true},
		{"24:00", 0, false},
		{"12:60", 0, false},
		{"-1:00", 0, false},
		{"12", 0, false},
		{"12:00:00", 0, false},
		{"ab:cd", 0, false},
		{"", 0, false},
		{"12:", 0, false},
		{"+7:05", 0, false},
		{"07:005", 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			ct, err := ParseClockTime(tc.input)
			if !tc.valid {
				assert.ErrorIs(t, err, ErrInvalidClockTime)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.minutes, ct.Minutes())
		})
	}
}

func TestClockTime_String(t *testing.T) {
	assert.Equal(t, "00:00", ClockTime(0).String())
	assert.Equal(t, "07:05", ClockTime(425).String())
	assert.Equal(t, "23:59", ClockTime(1439).String())
	assert.Equal(t, "18:30", MustParseClockTime("18:30").String())
}

func TestTimeCode(t *testing.T) {
	now := time.Date(2024, time.May, 4, 9, 7, 59, 0, time.UTC)
	assert.Equal(t, "09:07", TimeCode(now))
	assert.Equal(t, ClockTime(547), ClockTimeOf(now))
}

func TestPrecision_MinuteOfDay(t *testing.T) {
	now := time.Date(2024, time.May, 4, 13, 45, 30, int(600*time.Millisecond), time.UTC)

	assert.Equal(t, float64(13*60+45), PrecisionMinute.MinuteOfDay(now))
	assert.InDelta(t, 13*60+45+30.6/60, PrecisionContinuous.MinuteOfDay(now), 1e-9)

	// the last instant of the day stays inside the domain
	last := time.Date(2024, time.May, 4, 23, 59, 59, int(time.Second-1), time.UTC)
	assert.Less(t, PrecisionContinuous.MinuteOfDay(last), float64(MinutesPerDay))
}

func TestParsePrecision(t *testing.T) {
	p, err := ParsePrecision("minute")
	require.NoError(t, err)
	assert.Equal(t, PrecisionMinute, p)
	assert.Equal(t, "minute", p.String())

	p, err = ParsePrecision("")
	require.NoError(t, err)
	assert.Equal(t, PrecisionContinuous, p)

	_, err = ParsePrecision("second")
	assert.Error(t, err)
}
