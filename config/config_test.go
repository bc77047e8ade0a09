package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	require.Equal(t, "postgres", cfg.DBDriver)
	require.Equal(t, 168*time.Hour, cfg.SessionTTL)
	require.Equal(t, 10, cfg.BcryptCost)
	require.Equal(t, 24*time.Hour, cfg.VerifyTokenTTL)
	require.Equal(t, 30*time.Minute, cfg.ResetTokenTTL)
	require.Empty(t, cfg.ESAddrs())
	require.Empty(t, cfg.TrustedProxyList())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("RESET_TOKEN_TTL", "5m")
	t.Setenv("VERIFY_TOKEN_TTL", "-1h")
	t.Setenv("BCRYPT_COST", "twelve")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("ELASTICSEARCH_ADDRS", " http://a:9200 , ,http://b:9200")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 172.16.0.1")

	cfg := Load()
	require.Equal(t, "sqlite", cfg.DBDriver)
	require.Equal(t, 5*time.Minute, cfg.ResetTokenTTL)
	require.Equal(t, 24*time.Hour, cfg.VerifyTokenTTL)
	require.Equal(t, 10, cfg.BcryptCost)
	require.False(t, cfg.MetricsEnabled)
	require.Equal(t, []string{"http://a:9200", "http://b:9200"}, cfg.ESAddrs())
	require.Equal(t, []string{"10.0.0.0/8", "172.16.0.1"}, cfg.TrustedProxyList())
}

func TestPostgresDSNEscapesCredentials(t *testing.T) {
	cfg := &Config{DBUser: "app", DBPassword: "p@ss/word", DBHost: "db", DBPort: "5432", DBName: "pix", DBSSLMode: "disable"}
	require.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/pix?sslmode=disable", cfg.PostgresDSN())
}
