package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	platformstrings "rekamed/pkg/platform/strings"
)

// Ledger backends.
const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
	LedgerLevelDB  = "leveldb"
)

// Access log projection backends.
const (
	ProjectionMemory   = "memory"
	ProjectionPostgres = "postgres"
	ProjectionRedis    = "redis"
)

// Config is the whole process configuration.
type Config struct {
	Environment string
	LogLevel    string
	Server      Server
	Database    Database
	Redis       RedisConfig
	Kafka       Kafka
	Ledger      Ledger
	Auth        Auth
	Consent     Consent
	Records     Records
	RateLimit   RateLimit
	SeedFile    string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	AllowedOrigins  []string
	TrustedProxies  []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	TxTimeout       time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Kafka struct {
	Brokers     string
	Acks        string
	Retries     int
	BlocksTopic string
	AlertsTopic string
}

// Ledger selects where blocks and the access-log projection live and how
// often the chain is verified in the background.
type Ledger struct {
	Backend        string
	LevelDBPath    string
	Projection     string
	VerifyInterval time.Duration
	TailInterval   time.Duration
}

type Auth struct {
	JWTSigningKey string
	Issuer        string
	TokenTTL      time.Duration
	AdminToken    string
}

type Consent struct {
	DefaultDuration string
	MaxDuration     time.Duration
}

type Records struct {
	EncryptionKey []byte
}

// RateLimit holds per-class request budgets over one sliding window.
// A zero budget disables limiting for that class.
type RateLimit struct {
	Window    time.Duration
	Sensitive int
	Write     int
	Read      int
}

const (
	devSigningKey    = "dev-secret-key-change-in-production"
	devEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
)

// FromEnv builds a Config from environment variables. A .env file in the
// working directory is loaded first when present; real environment values win.
func FromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := getString("REKAMED_ENV", "dev")
	cfg := &Config{
		Environment: env,
		LogLevel:    getString("LOG_LEVEL", "info"),
		Server: Server{
			Addr:            getString("REKAMED_ADDR", ":8080"),
			AllowedOrigins:  platformstrings.SplitList(getString("CORS_ALLOWED_ORIGINS", "*")),
			TrustedProxies:  platformstrings.SplitList(os.Getenv("TRUSTED_PROXIES")),
			RequestTimeout:  getDuration("REQUEST_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			MaxBodyBytes:    int64(getInt("MAX_BODY_BYTES", 1<<20)),
		},
		Database: Database{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			TxTimeout:       getDuration("DB_TX_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:     os.Getenv("KAFKA_BROKERS"),
			Acks:        getString("KAFKA_ACKS", "all"),
			Retries:     getInt("KAFKA_RETRIES", 5),
			BlocksTopic: getString("KAFKA_BLOCKS_TOPIC", "rekamed.ledger.blocks"),
			AlertsTopic: getString("KAFKA_ALERTS_TOPIC", "rekamed.ledger.alerts"),
		},
		Ledger: Ledger{
			Backend:        strings.ToLower(getString("LEDGER_BACKEND", "")),
			LevelDBPath:    getString("LEDGER_LEVELDB_PATH", "data/ledger"),
			Projection:     strings.ToLower(getString("ACCESS_LOG_BACKEND", "")),
			VerifyInterval: getDuration("LEDGER_VERIFY_INTERVAL", 10*time.Minute),
			TailInterval:   getDuration("LEDGER_TAIL_INTERVAL", time.Second),
		},
		Auth: Auth{
			JWTSigningKey: getString("JWT_SIGNING_KEY", devSigningKey),
			Issuer:        getString("JWT_ISSUER", "rekamed"),
			TokenTTL:      getDuration("TOKEN_TTL", 15*time.Minute),
			AdminToken:    os.Getenv("ADMIN_API_TOKEN"),
		},
		Consent: Consent{
			DefaultDuration: getString("CONSENT_DEFAULT_DURATION", "24h"),
			MaxDuration:     getDuration("CONSENT_MAX_DURATION", 0),
		},
		RateLimit: RateLimit{
			Window:    getDuration("RATE_LIMIT_WINDOW", time.Minute),
			Sensitive: getInt("RATE_LIMIT_SENSITIVE", 20),
			Write:     getInt("RATE_LIMIT_WRITE", 60),
			Read:      getInt("RATE_LIMIT_READ", 300),
		},
		SeedFile: os.Getenv("SEED_USERS_FILE"),
	}

	cfg.defaultBackends()

	key, err := hex.DecodeString(strings.TrimPrefix(getString("RECORDS_ENCRYPTION_KEY", devEncryptionKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("RECORDS_ENCRYPTION_KEY: %w", err)
	}
	cfg.Records.EncryptionKey = key

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultBackends picks postgres for anything left unset when a database is
// configured, memory otherwise.
func (c *Config) defaultBackends() {
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = LedgerMemory
		if c.Database.URL != "" {
			c.Ledger.Backend = LedgerPostgres
		}
	}
	if c.Ledger.Projection == "" {
		switch {
		case c.Redis.URL != "":
			c.Ledger.Projection = ProjectionRedis
		case c.Database.URL != "":
			c.Ledger.Projection = ProjectionPostgres
		default:
			c.Ledger.Projection = ProjectionMemory
		}
	}
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Ledger.Backend {
	case LedgerMemory, LedgerLevelDB:
		if c.Database.URL != "" {
			return fmt.Errorf("LEDGER_BACKEND=%s cannot share transactions with DATABASE_URL; use postgres", c.Ledger.Backend)
		}
	case LedgerPostgres:
		if c.Database.URL == "" {
			return errors.New("LEDGER_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.Ledger.Backend)
	}

	switch c.Ledger.Projection {
	case ProjectionMemory:
	case ProjectionPostgres:
		if c.Database.URL == "" {
			return errors.New("ACCESS_LOG_BACKEND=postgres requires DATABASE_URL")
		}
	case ProjectionRedis:
		if c.Redis.URL == "" {
			return errors.New("ACCESS_LOG_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown ACCESS_LOG_BACKEND %q", c.Ledger.Projection)
	}

	if len(c.Records.EncryptionKey) != 32 {
		return fmt.Errorf("RECORDS_ENCRYPTION_KEY must be 32 bytes, got %d", len(c.Records.EncryptionKey))
	}
	if !c.IsDev() {
		if c.Auth.JWTSigningKey == devSigningKey {
			return errors.New("JWT_SIGNING_KEY must be set outside dev")
		}
		if hex.EncodeToString(c.Records.EncryptionKey) == devEncryptionKey {
			return errors.New("RECORDS_ENCRYPTION_KEY must be set outside dev")
		}
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Environment == "dev" || c.Environment == "test"
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
