package sym

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEverySymbolDescribed(t *testing.T) {
	for _, s := range All() {
		assert.NotEmpty(t, Descriptions[s], "symbol %s has no description", s)
	}
}

func TestSymbolsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, s := range All() {
		assert.False(t, seen[s], "duplicate symbol %s", s)
		seen[s] = true
	}
}
