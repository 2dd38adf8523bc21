package idgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNanoid_NewID(t *testing.T) {
	seen := make(map[string]struct{})
	for range 500 {
		id, err := Nanoid{}.NewID(AlertPrefix)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(id, AlertPrefix))
		assert.Len(t, id, len(AlertPrefix)+length)
		for _, r := range strings.TrimPrefix(id, AlertPrefix) {
			assert.Contains(t, alphabet, string(r))
		}
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}
