package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	require.NoError(t, InitViper(v))

	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, BackendChromem, s.Retrieval.Backend)
	assert.Equal(t, 3, s.Retrieval.TopK)
	assert.Equal(t, 500, s.Retrieval.MaxCharsPerDoc)
	assert.Equal(t, "webmd", s.Retrieval.Store.Collection)
	assert.Equal(t, 500*time.Millisecond, s.Session.MinEndpointingDelay)
	assert.Equal(t, 5*time.Second, s.Session.MaxEndpointingDelay)
	assert.True(t, s.Session.NoiseCancellation)
	assert.Equal(t, 5*time.Second, s.Supervisor.RestartDelay)
	assert.Equal(t, 10*time.Second, s.Supervisor.StopTimeout)
	assert.Equal(t, 10000, s.HTTP.Port)
	assert.Equal(t, "Puck", s.Room.Voice)
	assert.InDelta(t, 0.8, s.LLM.Temperature, 1e-6)
	assert.Contains(t, s.Persona.Instructions, "Waldo")
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("WALDO_ROOM_API_KEY", "room-secret")
	t.Setenv("WALDO_RETRIEVAL_TOP_K", "5")
	t.Setenv("PORT", "8099")

	v := viper.New()
	require.NoError(t, InitViper(v))
	s, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "room-secret", s.Room.APIKey)
	assert.Equal(t, 5, s.Retrieval.TopK)
	assert.Equal(t, 8099, s.HTTP.Port)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
retrieval:
  backend: weaviate
  weaviate:
    host: localhost:8080
session:
  min-endpointing-delay: 1s
supervisor:
  restart-delay: 2s
  command: ["/bin/agent", "--flag"]
`), 0o644))

	v := viper.New()
	require.NoError(t, InitViper(v))
	require.NoError(t, ReadConfigFile(v, path))
	s, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, BackendWeaviate, s.Retrieval.Backend)
	assert.Equal(t, "localhost:8080", s.Retrieval.Weaviate.Host)
	assert.Equal(t, time.Second, s.Session.MinEndpointingDelay)
	assert.Equal(t, 2*time.Second, s.Supervisor.RestartDelay)
	assert.Equal(t, []string{"/bin/agent", "--flag"}, s.Supervisor.Command)
}

func TestValidate(t *testing.T) {
	v := viper.New()
	require.NoError(t, InitViper(v))

	v.Set("retrieval.backend", "faiss")
	_, err := Load(v)
	assert.Error(t, err)

	v.Set("retrieval.backend", BackendChromem)
	v.Set("session.min-endpointing-delay", "10s")
	_, err = Load(v)
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env.local")
	require.NoError(t, os.WriteFile(path, []byte("WALDO_TEST_DOTENV=loaded\n"), 0o644))

	t.Run("loads when the expected key is missing", func(t *testing.T) {
		t.Setenv("WALDO_TEST_EXPECTED", "")
		t.Setenv("WALDO_TEST_DOTENV", "")
		require.NoError(t, os.Unsetenv("WALDO_TEST_DOTENV"))

		loaded, err := LoadDotEnv(path, "WALDO_TEST_EXPECTED")
		require.NoError(t, err)
		assert.True(t, loaded)
		assert.Equal(t, "loaded", os.Getenv("WALDO_TEST_DOTENV"))
	})

	t.Run("skips when the expected key is set", func(t *testing.T) {
		t.Setenv("WALDO_TEST_EXPECTED", "present")
		loaded, err := LoadDotEnv(path, "WALDO_TEST_EXPECTED")
		require.NoError(t, err)
		assert.False(t, loaded)
	})

	t.Run("missing file is fine", func(t *testing.T) {
		t.Setenv("WALDO_TEST_EXPECTED", "")
		loaded, err := LoadDotEnv(filepath.Join(dir, "nope"), "WALDO_TEST_EXPECTED")
		require.NoError(t, err)
		assert.False(t, loaded)
	})
}

func TestReadConfigFileMissing(t *testing.T) {
	v := viper.New()
	require.NoError(t, InitViper(v))
	assert.Error(t, ReadConfigFile(v, filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestInitViperPicksUpLocalConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, LocalConfigFile), []byte("retrieval:\n  top-k: 7\n"), 0o644))
	t.Chdir(dir)

	v := viper.New()
	require.NoError(t, InitViper(v))
	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 7, s.Retrieval.TopK)
}
