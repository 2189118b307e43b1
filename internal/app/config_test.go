package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, 100, cfg.Server.RateLimit)
	require.Equal(t, time.Minute, cfg.Server.RateWindow)

	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/floodcoord.sqlite", cfg.Database.Path)
	require.Equal(t, "memory", cfg.Cache.Backend)

	require.Equal(t, "floodcoord", cfg.Auth.JWT.Issuer)
	require.Equal(t, 24*time.Hour, cfg.Auth.JWT.TTL)
	require.Equal(t, 5*time.Minute, cfg.Auth.OTP.TTL)
	require.Equal(t, 6, cfg.Auth.OTP.Digits)
	require.Empty(t, cfg.Auth.OTP.MasterCode)
	require.Equal(t, 11, cfg.Auth.BcryptCost)

	require.False(t, cfg.Email.SMTP.Enabled)
	require.False(t, cfg.Payments.Stripe.Enabled)
	require.Equal(t, "pkr", cfg.Payments.Stripe.Currency)
	require.Equal(t, 7*24*time.Hour, cfg.Invitations.TTL)

	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, "@every 15m", cfg.Maintenance.Schedule)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
}

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, []string{"https://relief.example.org"}, cfg.Server.AllowedOrigins)
	require.Equal(t, 50, cfg.Server.RateLimit)
	require.Equal(t, 30*time.Second, cfg.Server.RateWindow)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)
	require.Equal(t, "relief", cfg.Database.Postgres.Username)

	require.Equal(t, "redis", cfg.Cache.Backend)
	require.Equal(t, "redis.example.com:6380", cfg.Cache.Redis.Address)
	require.Equal(t, 2, cfg.Cache.Redis.DB)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, 10*time.Minute, cfg.Auth.OTP.TTL)
	require.Equal(t, 8, cfg.Auth.OTP.Digits)
	require.Equal(t, 12, cfg.Auth.BcryptCost)
	require.Equal(t, "admin@relief.example.org", cfg.Auth.Bootstrap.Email)

	require.True(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, "smtp.example.com", cfg.Email.SMTP.Host)
	require.Equal(t, 2525, cfg.Email.SMTP.Port)
	require.Equal(t, 15*time.Second, cfg.Email.SMTP.Timeout)

	require.True(t, cfg.Payments.Stripe.Enabled)
	require.Equal(t, "sk_test_key", cfg.Payments.Stripe.APIKey)
	require.Equal(t, "whsec_test", cfg.Payments.Stripe.WebhookSecret)

	require.Equal(t, 48*time.Hour, cfg.Invitations.TTL)
	require.Equal(t, "https://relief.example.org/invitations/accept", cfg.Invitations.AcceptURL)
	require.Equal(t, "@every 5m", cfg.Maintenance.Schedule)
	require.False(t, cfg.Monitoring.Prometheus.Enabled)
}
