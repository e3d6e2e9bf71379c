package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-guard"
	"github.com/goliatone/go-auth-guard/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ auth.Config = config.AuthConfig{}

func envLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func load(t *testing.T, path string, env map[string]string) (*config.Config, error) {
	t.Helper()
	return config.NewLoader().
		WithDotEnv(false).
		WithLookup(envLookup(env)).
		Load(path)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t, "", map[string]string{"JWT_SECRET": "s3cret"})
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Auth.SigningKey)
	assert.Equal(t, 24*time.Hour, cfg.Auth.GetTokenExpiration())
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, config.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, config.BackendMemory, cfg.Lockout.Backend)
	assert.Equal(t, 5, cfg.Lockout.Threshold)
	assert.Equal(t, 15*time.Minute, cfg.Lockout.Window)
	assert.Equal(t, "admin", cfg.Bootstrap.Username)
	assert.Empty(t, cfg.Notify.SlackWebhookURL)
	assert.False(t, cfg.Server.Debug)
}

func TestLoad_MissingSigningKey(t *testing.T) {
	_, err := load(t, "", map[string]string{"JWT_SECRET": "   "})

	require.Error(t, err)
	assert.True(t, auth.IsAuthError(err, auth.ErrConfigurationMissing))
}

func TestLoad_Environment(t *testing.T) {
	cfg, err := load(t, "", map[string]string{
		"JWT_SECRET":        "s3cret",
		"MONGODB_URI":       "mongodb://db:27017",
		"MONGODB_DB":        "cms",
		"SLACK_WEBHOOK_URL": "https://hooks.slack.com/services/T/B/X",
		"ADMIN_USERNAME":    "root",
		"ADMIN_PASSWORD":    "change-me",
		"ALLOWED_ORIGINS":   "https://admin.example.com, https://*.example.org,,",
		"ATTEMPTS_BACKEND":  "Redis",
		"REDIS_ADDR":        "redis:6379",
		"DEBUG":             "true",
		"HTTP_ADDR":         ":9090",
		"LOG_LEVEL":         "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, config.DriverMongo, cfg.Store.Driver)
	assert.Equal(t, "mongodb://db:27017", cfg.Store.MongoURI)
	assert.Equal(t, "cms", cfg.Store.MongoDatabase)
	assert.Equal(t, "https://hooks.slack.com/services/T/B/X", cfg.Notify.SlackWebhookURL)
	assert.Equal(t, "root", cfg.Bootstrap.Username)
	assert.Equal(t, "change-me", cfg.Bootstrap.Password)
	assert.Equal(t, []string{"https://admin.example.com", "https://*.example.org"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, config.BackendRedis, cfg.Lockout.Backend)
	assert.Equal(t, "redis:6379", cfg.Lockout.RedisAddr)
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_YAMLWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":7070"
auth:
  signing_key: from-file
  token_expiration: 12h
  issuer: cms
lockout:
  threshold: 3
  window: 5m
store:
  driver: sqlite
  sqlite_dsn: "file:accounts.db"
cors:
  allowed_origins:
    - https://admin.example.com
`), 0o600))

	cfg, err := load(t, path, map[string]string{"JWT_SECRET": "from-env"})
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.SigningKey)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenExpiration)
	assert.Equal(t, "cms", cfg.Auth.GetIssuer())
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Lockout.Threshold)
	assert.Equal(t, 5*time.Minute, cfg.Lockout.Window)
	assert.Equal(t, "file:accounts.db", cfg.Store.SQLiteDSN)
	assert.Equal(t, []string{"https://admin.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_FileErrors(t *testing.T) {
	_, err := load(t, filepath.Join(t.TempDir(), "missing.yaml"), map[string]string{"JWT_SECRET": "x"})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))
	_, err = load(t, path, map[string]string{"JWT_SECRET": "x"})
	assert.Error(t, err)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown driver", env: map[string]string{"STORE_DRIVER": "postgres"}},
		{name: "mongo without uri", env: map[string]string{"STORE_DRIVER": "mongo"}},
		{name: "redis backend without address", env: map[string]string{"ATTEMPTS_BACKEND": "redis"}},
		{name: "unknown backend", env: map[string]string{"ATTEMPTS_BACKEND": "memcached"}},
		{name: "bad origin pattern", env: map[string]string{"ALLOWED_ORIGINS": "re:(unclosed"}},
		{name: "bad webhook url", env: map[string]string{"SLACK_WEBHOOK_URL": "not a url"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.env["JWT_SECRET"] = "s3cret"

			_, err := load(t, "", tt.env)

			assert.Error(t, err)
			assert.False(t, auth.IsAuthError(err, auth.ErrConfigurationMissing))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, config.SplitList(" a, ,b ,"))
	assert.Empty(t, config.SplitList(""))
}
