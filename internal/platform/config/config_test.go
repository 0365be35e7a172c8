package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("REKAMED_ENV", "dev")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, LedgerMemory, cfg.Ledger.Backend)
	assert.Equal(t, ProjectionMemory, cfg.Ledger.Projection)
	assert.Equal(t, "24h", cfg.Consent.DefaultDuration)
	assert.Len(t, cfg.Records.EncryptionKey, 32)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, RateLimit{Window: time.Minute, Sensitive: 20, Write: 60, Read: 300}, cfg.RateLimit)
}

func TestFromEnvBackendsFollowConnections(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://rekamed@localhost/rekamed")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example, https://admin.example")
	t.Setenv("CONSENT_MAX_DURATION", "720h")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, LedgerPostgres, cfg.Ledger.Backend)
	assert.Equal(t, ProjectionRedis, cfg.Ledger.Projection)
	assert.Equal(t, []string{"https://app.example", "https://admin.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 720*time.Hour, cfg.Consent.MaxDuration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"leveldb with database", map[string]string{"LEDGER_BACKEND": "leveldb", "DATABASE_URL": "postgres://x"}, "cannot share transactions"},
		{"postgres without database", map[string]string{"LEDGER_BACKEND": "postgres"}, "requires DATABASE_URL"},
		{"unknown ledger", map[string]string{"LEDGER_BACKEND": "s3"}, "unknown LEDGER_BACKEND"},
		{"redis projection without url", map[string]string{"ACCESS_LOG_BACKEND": "redis"}, "requires REDIS_URL"},
		{"short key", map[string]string{"RECORDS_ENCRYPTION_KEY": "abcd"}, "32 bytes"},
		{"bad hex key", map[string]string{"RECORDS_ENCRYPTION_KEY": "zz"}, "RECORDS_ENCRYPTION_KEY"},
		{"prod with dev secret", map[string]string{"REKAMED_ENV": "prod"}, "JWT_SIGNING_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv("REDIS_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
