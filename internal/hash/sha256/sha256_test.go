package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestHasherHashDeterministic ensures repeated hashing yields the same digest.
func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)

	again, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func TestShortIsDigestPrefix(t *testing.T) {
	t.Parallel()

	full, err := New().Hash([]byte("https://example.com/a/b.png"))
	require.NoError(t, err)
	short := Short("https://example.com/a/b.png")
	require.Len(t, short, ShortLen)
	require.Equal(t, full[:ShortLen], short)
	require.NotEqual(t, short, Short("https://example.com/a-b.png"))
}
