package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // trip zones must resolve on hosts without a zoneinfo database

	"github.com/joho/godotenv"
)

// Storage backends selectable with STORAGE.
const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env     string // application environment (e.g. "dev", "prod")
	Port    string // HTTP port to listen on
	Storage string // mysql or memory

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	JWTSecret string // secret used to verify bearer tokens

	RabbitMQURL   string // broker for domain events
	EventsEnabled bool   // publish to RabbitMQ instead of the log
	EventLogPath  string // where the trip event consumer appends

	CancellationDeadline time.Duration  // latest cancellation before departure
	CancellationFee      string         // percent of the price kept on cancellation
	MaxRetries           int            // re-runs of a unit of work after a version conflict
	SeatsPerRow          int            // seat geometry
	FrontRows            int            // rows counted as the front section
	TripLocation         *time.Location // zone trip dates are computed in
	DefaultCurrency      string         // currency of seeded routes
	ExpiryInterval       time.Duration  // stale reservation sweep period
	IdempotencyTTL       time.Duration  // lifetime of Idempotency-Key records
	SeedDemo             bool           // seed a route, a bus and a trip on startup (memory storage)
}

// Load reads .env when present and then the environment. Required
// variables are enforced by must() and missing values cause the program
// to exit with a fatal log message. DB_* are only required for mysql.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("config: loaded .env")
	}
	cfg := Config{
		Env:                  must("APP_ENV"),
		Port:                 must("APP_PORT"),
		Storage:              strings.ToLower(envStr("STORAGE", StorageMySQL)),
		JWTSecret:            must("JWT_SECRET"),
		RabbitMQURL:          envStr("RABBITMQ_URL", envStr("AMQP_URL", "")),
		EventsEnabled:        envBool("EVENTS_ENABLED", false),
		EventLogPath:         envStr("EVENT_LOG_PATH", "logs/trip-events.log"),
		CancellationDeadline: envDur("CANCELLATION_DEADLINE", 4*time.Hour),
		CancellationFee:      envStr("CANCELLATION_FEE_PERCENT", "0"),
		MaxRetries:           envInt("RESERVATION_MAX_RETRIES", 3),
		SeatsPerRow:          envInt("SEATS_PER_ROW", 4),
		FrontRows:            envInt("FRONT_ROWS", 3),
		TripLocation:         mustLocation("TRIP_TIMEZONE", "America/Lima"),
		DefaultCurrency:      strings.ToUpper(envStr("DEFAULT_CURRENCY", "PEN")),
		ExpiryInterval:       envDur("EXPIRY_INTERVAL", 5*time.Minute),
		IdempotencyTTL:       envDur("IDEMPOTENCY_TTL", 24*time.Hour),
		SeedDemo:             envBool("SEED_DEMO", false),
	}
	switch cfg.Storage {
	case StorageMySQL:
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	case StorageMemory:
	default:
		log.Fatalf("invalid STORAGE %q (want %s or %s)", cfg.Storage, StorageMySQL, StorageMemory)
	}
	return cfg
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func mustLocation(key, def string) *time.Location {
	name := envStr(key, def)
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Fatalf("invalid time zone for %s: %q", key, name)
	}
	return loc
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch strings.ToLower(os.Getenv(k)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
