package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestResolveKey(t *testing.T) {
	keyring.MockInit()

	key, err := ResolveKey("explicit", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "explicit", key)

	generated, err := ResolveKey("", "anemone-test", "db", nil)
	require.NoError(t, err)
	assert.Len(t, generated, 64)

	again, err := ResolveKey("", "anemone-test", "db", nil)
	require.NoError(t, err)
	assert.Equal(t, generated, again, "key must be stable across calls")
}
