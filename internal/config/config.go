package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	database "github.com/Armour007/fast-tasks/internal"
	"github.com/Armour007/fast-tasks/internal/ipc"
	"github.com/Armour007/fast-tasks/internal/mesh"
	"github.com/Armour007/fast-tasks/internal/utils"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config is the process configuration shared by the api and service binaries.
type Config struct {
	Port string

	DB  database.Config
	Bus mesh.Options

	MigrateOnStart bool
	MigrationsDir  string

	CallTimeout   time.Duration
	SweepInterval time.Duration
	MaxInFlight   int
	StatsSchedule string

	BreakerThreshold int
	BreakerOpenFor   time.Duration

	JwtSecret    string
	JwtTTL       time.Duration
	StrictJwt    bool
	AuthDisabled bool

	CORSOrigins []string
	LoginRPM    int

	OTelEnabled bool
	LogLevel    string
	LogFormat   string
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("could not load .env file")
	}
	return FromEnv()
}

// FromEnv builds a Config from the environment only.
func FromEnv() (Config, error) {
	c := Config{
		Port: envString("PORT", "8080"),
		DB: database.Config{
			Host:            envString("DB_HOST", "localhost"),
			Port:            envString("DB_PORT", "5432"),
			User:            envString("DB_USER", "fasttasks"),
			Password:        os.Getenv("DB_PASSWORD"),
			Name:            envString("DB_NAME", "fasttasks"),
			SSLMode:         envString("DB_SSLMODE", "disable"),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Bus: mesh.Options{
			Backend:       envString("BUS_BACKEND", "nats"),
			Codec:         envString("BUS_CODEC", "json"),
			Subject:       envString("BUS_SUBJECT", "fasttasks.bus"),
			NatsURL:       os.Getenv("NATS_URL"),
			RedisAddr:     os.Getenv("REDIS_ADDR"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       envInt("REDIS_DB", 0),
		},
		MigrateOnStart:   envBoolDefault("MIGRATE_ON_START", true),
		MigrationsDir:    envString("MIGRATIONS_DIR", filepath.Join("db", "migrations")),
		CallTimeout:      envDuration("IPC_CALL_TIMEOUT", ipc.DefaultCallTimeout),
		SweepInterval:    envDuration("IPC_SWEEP_INTERVAL", ipc.DefaultSweepInterval),
		MaxInFlight:      envInt("IPC_MAX_INFLIGHT", 0),
		StatsSchedule:    envString("IPC_STATS_SCHEDULE", "@every 30s"),
		BreakerThreshold: envInt("IPC_BREAKER_THRESHOLD", 3),
		BreakerOpenFor:   envDuration("IPC_BREAKER_OPEN", 30*time.Second),
		JwtTTL:           envDuration("JWT_TTL", 72*time.Hour),
		StrictJwt:        envBool("STRICT_JWT"),
		AuthDisabled:     envBool("AUTH_DISABLED"),
		CORSOrigins:      envList("CORS_ORIGINS"),
		LoginRPM:         envInt("LOGIN_RATE_LIMIT_PER_MINUTE", 60),
		OTelEnabled:      envBool("OTEL_ENABLE") || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "",
		LogLevel:         envString("LOG_LEVEL", "info"),
		LogFormat:        envString("LOG_FORMAT", "text"),
	}
	secret, err := utils.ResolveJwtSecret(os.Getenv("JWT_SECRET"), c.StrictJwt)
	if err != nil {
		return c, err
	}
	c.JwtSecret = secret
	return c, nil
}

// ErrLocalBus is returned by CheckSharedBus when the configured backend only
// delivers inside one process.
var ErrLocalBus = errors.New("config: BUS_BACKEND=local does not connect separate processes, use nats or redis")

// CheckSharedBus reports whether the bus can carry requests between the api
// and service binaries.
func (c Config) CheckSharedBus() error {
	switch strings.ToLower(strings.TrimSpace(c.Bus.Backend)) {
	case "", "local":
		return ErrLocalBus
	}
	return nil
}

// SetupLogging applies LogLevel and LogFormat to the standard logrus logger.
func (c Config) SetupLogging() {
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logrus.WithField("level", c.LogLevel).Warn("unknown LOG_LEVEL, using info")
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}

func envString(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// envDuration accepts Go durations ("750ms") or a bare number of milliseconds.
func envDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Millisecond
	}
	return def
}

func envBool(k string) bool {
	v := strings.TrimSpace(os.Getenv(k))
	return strings.EqualFold(v, "1") || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
}

func envBoolDefault(k string, def bool) bool {
	if strings.TrimSpace(os.Getenv(k)) == "" {
		return def
	}
	return envBool(k)
}

func envList(k string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(k), ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
