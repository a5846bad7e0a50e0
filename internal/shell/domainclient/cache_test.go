package domainclient

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()

	_, ok := c.Get("example.com")
	assert.False(t, ok)

	require.NoError(t, c.Set("example.com", Status{Domain: "example.com", Verified: true}))
	st, ok := c.Get("example.com")
	require.True(t, ok)
	assert.True(t, st.Verified)

	require.NoError(t, c.Delete("example.com"))
	_, ok = c.Get("example.com")
	assert.False(t, ok)
}
