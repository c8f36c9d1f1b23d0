package geotime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTimezone(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Europe/Amsterdam", "Europe/Amsterdam"},
		{"europe/berlin", "Europe/Berlin"},
		{"utc", "UTC"},
		{"PST", "America/Los_Angeles"},
		{"Based in Amsterdam", "Europe/Amsterdam"},
		{"San Francisco Bay Area", "America/Los_Angeles"},
		{"NL", "Europe/Amsterdam"},
		{"America/Port_of_Spain", "America/Port_of_Spain"},
		{"Europe/Isle_of_Man", "Europe/Isle_of_Man"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			actual, err := NormalizeTimezone(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestNormalizeTimezone_Errors(t *testing.T) {
	_, err := NormalizeTimezone("   ")
	assert.Error(t, err)

	_, err = NormalizeTimezone("Mars/Olympus_Mons")
	assert.Error(t, err)
	assert.Error(t, ValidateTimezone("Mars/Olympus_Mons"))
}

func TestResolve(t *testing.T) {
	loc, err := Resolve("Europe/Berlin")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	loc, err = Resolve("")
	require.NoError(t, err)
	assert.NotNil(t, loc, "empty falls back to the host zone")

	_, err = Resolve("nowhere")
	assert.Error(t, err)
}
