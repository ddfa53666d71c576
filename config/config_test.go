package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestLoadClientDefaults(t *testing.T) {
	t.Setenv("SOCIAL_API_BASE_URL", "http://api.test/")
	t.Setenv("SOCIAL_AUTH_STYLE", "Cookie")
	t.Setenv("SOCIAL_HTTP_TIMEOUT", "3")

	cfg, err := LoadClient()
	assert.Equal(t, err, nil)
	assert.Equal(t, "http://api.test", cfg.APIBaseURL)
	assert.Equal(t, "http://api.test", cfg.MediaBaseURL)
	assert.Equal(t, AuthCookie, cfg.AuthStyle)
	assert.Equal(t, 3*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 5*time.Second, cfg.WsHandshakeTimeout)
}

func TestLoadClientRejectsUnknownAuthStyle(t *testing.T) {
	t.Setenv("SOCIAL_AUTH_STYLE", "basic")
	_, err := LoadClient()
	assert.NotEqual(t, err, nil)
}

func TestLoadServerRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := LoadServer()
	assert.NotEqual(t, err, nil)

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("TOKEN_TTL", "2h")
	cfg, err := LoadServer()
	assert.Equal(t, err, nil)
	assert.Equal(t, "s3cret", cfg.SessionKey)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	err := os.WriteFile(path, []byte("SOCIAL_TEST_ONLY_KEY=from-file\n"), 0600)
	assert.Equal(t, err, nil)
	t.Cleanup(func() { os.Unsetenv("SOCIAL_TEST_ONLY_KEY") })

	LoadEnv(path, filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, "from-file", os.Getenv("SOCIAL_TEST_ONLY_KEY"))
}
