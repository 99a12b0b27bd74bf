package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvFileMissingIsFine(t *testing.T) {
	require.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "nope.env")))
	require.NoError(t, loadEnvFile(""))
}

func TestLoadEnvFileDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SALEBOT_TEST_A=from_file\nSALEBOT_TEST_B=from_file\n"), 0o600))
	t.Setenv("SALEBOT_TEST_A", "from_env")

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "from_env", os.Getenv("SALEBOT_TEST_A"))
	assert.Equal(t, "from_file", os.Getenv("SALEBOT_TEST_B"))
	os.Unsetenv("SALEBOT_TEST_B")
}
