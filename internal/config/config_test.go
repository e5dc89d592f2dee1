package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ROOTINE_JWT_KEY", "k")
	t.Setenv("ROOTINE_DRIVER", "sqlite")

	c, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, ":8443", c.Addr)
	assert.Equal(t, ":8080", c.OpsAddr)
	assert.Equal(t, DriverSQLite, c.Driver)
	assert.Equal(t, 15*time.Minute, c.AccessTTL)
	assert.Equal(t, "0 0 * * *", c.ResetCron)
	assert.False(t, c.Insecure)
	assert.Empty(t, c.AdminEmails)
	assert.Equal(t, "gpt-5-mini", c.OpenAIModel)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("ROOTINE_JWT_KEY", "from-env")
	t.Setenv("ROOTINE_ADDR", ":1")
	t.Setenv("ROOTINE_ACCESS_TTL", "1h")
	t.Setenv("ROOTINE_ADMIN_EMAILS", " Root@Example.com, ,ops@example.com")

	c, err := Load("", []string{"-addr", ":2", "-dsn", "postgres://x", "-insecure"})
	require.NoError(t, err)
	assert.Equal(t, ":2", c.Addr)
	assert.Equal(t, "from-env", c.JWTKey)
	assert.Equal(t, time.Hour, c.AccessTTL)
	assert.True(t, c.Insecure)
	assert.Equal(t, []string{"root@example.com", "ops@example.com"}, c.AdminEmails)
}

func TestLoad_OpenAI(t *testing.T) {
	t.Setenv("ROOTINE_JWT_KEY", "k")
	t.Setenv("ROOTINE_DRIVER", "sqlite")
	t.Setenv("ROOTINE_OPENAI_API_KEY", "sk-test")

	c, err := Load("", []string{"-openai-model", "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "sk-test", c.OpenAIKey)
	assert.Equal(t, "gpt-4o-mini", c.OpenAIModel)
	assert.Empty(t, c.OpenAIBaseURL)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ROOTINE_JWT_KEY=dotenv\nROOTINE_DRIVER=sqlite\n"), 0o600))
	// godotenv never overrides variables that are already set
	t.Setenv("ROOTINE_JWT_KEY", "")
	require.NoError(t, os.Unsetenv("ROOTINE_JWT_KEY"))
	t.Setenv("ROOTINE_DRIVER", "sqlite")

	c, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "dotenv", c.JWTKey)
}

func TestLoad_MissingEnvFileIsFine(t *testing.T) {
	t.Setenv("ROOTINE_JWT_KEY", "k")
	t.Setenv("ROOTINE_DRIVER", "sqlite")
	_, err := Load(filepath.Join(t.TempDir(), "nope.env"), nil)
	require.NoError(t, err)
}

func TestLoad_Validation(t *testing.T) {
	t.Setenv("ROOTINE_JWT_KEY", "")
	t.Setenv("ROOTINE_DRIVER", "sqlite")
	_, err := Load("", nil)
	require.ErrorContains(t, err, "jwt")

	t.Setenv("ROOTINE_JWT_KEY", "k")
	_, err = Load("", []string{"-driver", "postgres"})
	require.ErrorContains(t, err, "dsn")

	_, err = Load("", []string{"-driver", "mysql"})
	require.ErrorContains(t, err, "unknown driver")

	_, err = Load("", []string{"-reset-tz", "Mars/Olympus"})
	require.ErrorContains(t, err, "reset-tz")

	_, err = Load("", []string{"-bogus"})
	require.Error(t, err)
}

func TestLocation(t *testing.T) {
	c := &Config{}
	loc, err := c.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}
