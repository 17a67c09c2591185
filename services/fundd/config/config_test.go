package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
settlement:
  endpoint: http://settlement.local
auth:
  jwt_secret: test-secret
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7080", cfg.ListenAddress)
	require.Equal(t, 24*time.Hour, cfg.Engine.ProposalTTL.Duration)
	require.Equal(t, 3*time.Second, cfg.Engine.LockWait.Duration)
	require.Equal(t, 30*time.Second, cfg.Settlement.Timeout.Duration)
	require.Equal(t, "@every 1m", cfg.Sweeper.Schedule)
	require.Equal(t, int32(9), cfg.Display.Decimals)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
listen: ":9999"
database: /tmp/fundd-test.sqlite
settlement:
  endpoint: http://settlement.local
  timeout: 5s
engine:
  proposal_ttl: 2h
  lock_wait: 500ms
sweeper:
  schedule: "@every 30s"
display:
  decimals: 6
auth:
  jwt_secret: test-secret
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.ListenAddress)
	require.Equal(t, "/tmp/fundd-test.sqlite", cfg.DatabasePath)
	require.Equal(t, 2*time.Hour, cfg.Engine.ProposalTTL.Duration)
	require.Equal(t, 500*time.Millisecond, cfg.Engine.LockWait.Duration)
	require.Equal(t, 5*time.Second, cfg.Settlement.Timeout.Duration)
	require.Equal(t, "@every 30s", cfg.Sweeper.Schedule)
	require.Equal(t, int32(6), cfg.Display.Decimals)
}

func TestLoadRequiresSettlementEndpoint(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: test-secret
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "settlement endpoint")
}

func TestLoadSecretFromEnv(t *testing.T) {
	t.Setenv("FUNDD_JWT_SECRET", "env-secret")
	path := writeConfig(t, `
settlement:
  endpoint: http://settlement.local
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "env-secret", cfg.Auth.JWTSecret)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
settlement:
  endpoint: http://settlement.local
  timeout: soon
auth:
  jwt_secret: test-secret
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "parse duration")
}
