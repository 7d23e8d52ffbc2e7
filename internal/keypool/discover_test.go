package keypool_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/omarluq/keygate/internal/keypool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryNames(entries []keypool.Entry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	t.Run("primary then indexed until first gap", func(t *testing.T) {
		t.Parallel()
		src := keypool.MapSource{
			"ZHIPU_API_KEY":   "k0",
			"ZHIPU_API_KEY_1": "k1",
			"ZHIPU_API_KEY_2": "k2",
			"ZHIPU_API_KEY_4": "k4",
		}
		entries := keypool.Discover(src, "", "")
		assert.Equal(t, []string{"ZHIPU_API_KEY", "ZHIPU_API_KEY_1", "ZHIPU_API_KEY_2"}, entryNames(entries))
	})

	t.Run("indexed keys without primary", func(t *testing.T) {
		t.Parallel()
		src := keypool.MapSource{"K_1": "a", "K_2": "b"}
		entries := keypool.Discover(src, "K", "")
		assert.Equal(t, []string{"K_1", "K_2"}, entryNames(entries))
	})

	t.Run("blank indexed value ends the scan", func(t *testing.T) {
		t.Parallel()
		src := keypool.MapSource{"K": "a", "K_1": " b ", "K_2": "", "K_3": "c"}
		entries := keypool.Discover(src, "K", "")
		assert.Equal(t, []string{"K", "K_1"}, entryNames(entries))
		assert.Equal(t, "b", entries[1].Secret)

		src = keypool.MapSource{"K": "a", "K_1": "   ", "K_2": "c"}
		assert.Equal(t, []string{"K"}, entryNames(keypool.Discover(src, "K", "")))
	})

	t.Run("blank primary is skipped", func(t *testing.T) {
		t.Parallel()
		src := keypool.MapSource{"K": "  ", "K_1": "a"}
		entries := keypool.Discover(src, "K", "")
		require.Len(t, entries, 1)
		assert.Equal(t, "K_1", entries[0].Name)
	})

	t.Run("comma separated list variable", func(t *testing.T) {
		t.Parallel()
		src := keypool.MapSource{"K": "a", "KEYS": "b, c,,d"}
		entries := keypool.Discover(src, "K", "KEYS")
		assert.Equal(t, []string{"K", "KEYS_1", "KEYS_2", "KEYS_4"}, entryNames(entries))
	})

	t.Run("duplicate secrets keep the first name", func(t *testing.T) {
		t.Parallel()
		src := keypool.MapSource{"K": "same", "K_1": "same", "KEYS": "same,other"}
		entries := keypool.Discover(src, "K", "KEYS")
		assert.Equal(t, []string{"K", "KEYS_2"}, entryNames(entries))
	})

	t.Run("nothing configured", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, keypool.Discover(keypool.MapSource{}, "", "KEYS"))
	})
}

func TestLayeredSource(t *testing.T) {
	t.Parallel()
	src := keypool.Layered(
		keypool.MapSource{"A": "first"},
		nil,
		keypool.MapSource{"A": "second", "B": "b"},
	)

	v, ok := src.Lookup("A")
	assert.True(t, ok)
	assert.Equal(t, "first", v)

	v, ok = src.Lookup("B")
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = src.Lookup("C")
	assert.False(t, ok)
}

func TestLoadDotEnv(t *testing.T) {
	t.Parallel()

	t.Run("reads variables", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("ZHIPU_API_KEY=abc\nZHIPU_API_KEY_1=def\n"), 0o600))

		src, err := keypool.LoadDotEnv(path)
		require.NoError(t, err)
		entries := keypool.Discover(src, "", "")
		assert.Equal(t, []string{"ZHIPU_API_KEY", "ZHIPU_API_KEY_1"}, entryNames(entries))
	})

	t.Run("missing file is empty", func(t *testing.T) {
		t.Parallel()
		src, err := keypool.LoadDotEnv(filepath.Join(t.TempDir(), "absent.env"))
		require.NoError(t, err)
		assert.Empty(t, src)
	})

	t.Run("empty path is empty", func(t *testing.T) {
		t.Parallel()
		src, err := keypool.LoadDotEnv("")
		require.NoError(t, err)
		assert.Empty(t, src)
	})
}
