package loyalty

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRewardCode(t *testing.T) {
	re := regexp.MustCompile(`^RWD-[A-Z0-9]{8}$`)
	seen := make(map[string]struct{})

	for range 200 {
		code, err := NewRewardCode()
		require.NoError(t, err)
		assert.Regexp(t, re, code)
		seen[code] = struct{}{}
	}

	assert.Greater(t, len(seen), 190)
}
