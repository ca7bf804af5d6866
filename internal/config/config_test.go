package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAndFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
counter:
  backend: memory
jwt:
  signing_key: test-secret
admin:
  user_ids:
    - 6f1c2a0e-8f43-4a55-9a55-3f0a0d5d6c11
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Counter.Backend)
	assert.Equal(t, 90, cfg.Trust.AutoBlockRiskScore)
	assert.Equal(t, 7, cfg.Invite.DefaultValidityDays)
	assert.Equal(t, 1, cfg.Invite.MaxUses)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenTTL)
	assert.Len(t, cfg.Admin.UserIDs, 1)
	assert.False(t, cfg.Events.Enabled)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
jwt:
  signing_key: from-file
`)
	t.Setenv("DATABASE_POSTGRES_HOST", "db.internal")
	t.Setenv("TRUST_AUTO_BLOCK_RISK_SCORE", "75")
	t.Setenv("JWT_SIGNING_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, 75, cfg.Trust.AutoBlockRiskScore)
	assert.Equal(t, "from-env", cfg.JWT.SigningKey)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "k")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Counter.Backend)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"unknown backend", "counter:\n  backend: etcd\njwt:\n  signing_key: k\n"},
		{"missing signing key", "counter:\n  backend: memory\n"},
		{"events without brokers", "jwt:\n  signing_key: k\nevents:\n  enabled: true\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresConfig{Host: "h", Port: 5432, User: "u", Password: "p", DB: "d", SSLMode: "disable"}.DSN()
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=disable TimeZone=UTC", dsn)
}
