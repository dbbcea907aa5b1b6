package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadReadsDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("VOXCHUNK_SERVER_URL=http://localhost:9000\n"), 0o644))

	t.Setenv(EnvServerURL, "")
	os.Unsetenv(EnvServerURL)

	require.NoError(t, Load(path))
	require.Equal(t, "http://localhost:9000", GetEnv(EnvServerURL, "fallback"))
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	require.NoError(t, Load(filepath.Join(t.TempDir(), "absent.env")))
}

func TestGetEnvFallbacks(t *testing.T) {
	t.Setenv("VOXCHUNK_TEST_STR", "")
	require.Equal(t, "default", GetEnv("VOXCHUNK_TEST_STR", "default"))

	t.Setenv("VOXCHUNK_TEST_INT", "not-a-number")
	require.Equal(t, 4, GetEnvInt("VOXCHUNK_TEST_INT", 4))

	t.Setenv("VOXCHUNK_TEST_INT", "7")
	require.Equal(t, 7, GetEnvInt("VOXCHUNK_TEST_INT", 4))

	t.Setenv("VOXCHUNK_TEST_FLOAT", "2.5")
	require.Equal(t, 2.5, GetEnvFloat("VOXCHUNK_TEST_FLOAT", 1))
	require.Equal(t, 1.0, GetEnvFloat("VOXCHUNK_TEST_FLOAT_MISSING", 1))
}
