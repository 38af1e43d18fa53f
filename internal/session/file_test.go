package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestFilePersisterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "herdctl", DefaultSessionFile)
	p := NewFilePersister(path)

	token, err := p.Load()
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, p.Save("abc123"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	token, err = p.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)

	require.NoError(t, p.Clear())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, p.Clear())
}

func TestFilePersisterPreservesOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultSessionFile)
	require.NoError(t, os.WriteFile(path, []byte("theme: dark\n"), 0600))

	p := NewFilePersister(path)
	require.NoError(t, p.Save("tok"))
	require.NoError(t, p.Clear())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var values map[string]any
	require.NoError(t, yaml.Unmarshal(data, &values))
	assert.Equal(t, map[string]any{"theme": "dark"}, values)
}

func TestFilePersisterCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultSessionFile)
	require.NoError(t, os.WriteFile(path, []byte("herd_auth_token: [unterminated"), 0600))

	_, err := NewFilePersister(path).Load()
	assert.Error(t, err)

	s := NewStore(NewFilePersister(path), nil)
	assert.False(t, s.IsSignedIn())
}
