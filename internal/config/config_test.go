package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp runs the test from an empty directory so no stray config.yaml is picked up.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.OnlineThreshold())
	assert.Equal(t, 180*time.Second, cfg.ProxyTimeout())
	assert.Equal(t, time.Second, cfg.LoginFailDelay())
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval())
	assert.Equal(t, PasswordPlain, cfg.PasswordHash)
	assert.Equal(t, SessionPassword, cfg.SessionMode)
	assert.Equal(t, "pm2", cfg.PM2Command)
	assert.NoError(t, cfg.ValidateMaster())
	assert.Error(t, cfg.ValidateAgent(), "agent needs master_url")
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := chdirTemp(t)
	yaml := "port: 9000\nsecret: from-file\nmaster_url: http://m:9000\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("GHOST_SECRET", "from-env")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "from-env", cfg.Secret)
	assert.NoError(t, cfg.ValidateAgent())
}

func TestValidateMasterModes(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)

	cfg.SessionMode = SessionJWT
	assert.Error(t, cfg.ValidateMaster(), "jwt without key")
	cfg.SessionKey = "k"
	assert.NoError(t, cfg.ValidateMaster())

	cfg.PasswordHash = PasswordBcrypt
	assert.NoError(t, cfg.ValidateMaster())
	cfg.SessionMode = SessionPassword
	assert.Error(t, cfg.ValidateMaster(), "bcrypt with password cookie")

	cfg.PasswordHash = "md5"
	assert.Error(t, cfg.ValidateMaster())
}

func TestTrustedProxies(t *testing.T) {
	dir := chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.TrustedProxies, "no proxy trusted by default")

	yaml := "trusted_proxies:\n  - 10.0.0.1\n  - 172.16.0.0/12\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "172.16.0.0/12"}, cfg.TrustedProxies)
	assert.NoError(t, cfg.ValidateMaster())

	cfg.TrustedProxies = append(cfg.TrustedProxies, "proxy.local")
	assert.Error(t, cfg.ValidateMaster())

	cfg.TrustedProxies = nil
	cfg.LoginFailDelayMillis = -5
	assert.Error(t, cfg.ValidateMaster())
}
