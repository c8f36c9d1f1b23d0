package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/linkpulse/errors"
)

func TestCheckClient(t *testing.T) {
	tests := []struct {
		name    string
		client  string
		minimum string
		ok      bool
	}{
		{"no gate", "", "", true},
		{"equal", "1.4.0", "1.4.0", true},
		{"newer", "1.10.2", "1.4.0", true},
		{"prerelease of minimum", "1.4.0-dev", "1.4.0", true},
		{"older", "1.3.9", "1.4.0", false},
		{"missing", "", "1.4.0", false},
		{"garbage", "latest", "1.4.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckClient(tt.client, tt.minimum)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrValidation))
		})
	}
}

func TestInfo(t *testing.T) {
	info := Get()
	assert.Contains(t, info.String(), "linkpulse "+Version)
	assert.LessOrEqual(t, len(info.Short()), 7)
}
