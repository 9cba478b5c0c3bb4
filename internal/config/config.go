package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App           AppConfig
	Auth          AuthConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Convex        ConvexConfig
	Summary       SummaryConfig
	Transcription TranscriptionConfig
	Bot           BotConfig
	Poller        PollerConfig
}

type AppConfig struct {
	AppName     string
	Environment string
	HTTPPort    string
}

type AuthConfig struct {
	// APIKey guards the public job API.
	APIKey string
	// InternalAPIKey guards the status hook used by meeting sessions. Falls back to APIKey.
	InternalAPIKey string
	JWTSecret      string
	JWTIssuer      string
	CallbackTTL    time.Duration
}

type DatabaseConfig struct {
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	ConnectTimeout        time.Duration
	PoolMaxConns          int32
	PoolMinConns          int32
	PoolMaxConnLifetime   time.Duration
	PoolMaxConnIdleTime   time.Duration
	PoolHealthCheckPeriod time.Duration
}

// Enabled reports whether jobs should be persisted to Postgres instead of memory.
func (d DatabaseConfig) Enabled() bool {
	return d.DBHost != ""
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ConvexConfig struct {
	URL    string
	APIKey string
}

type SummaryConfig struct {
	AnthropicAPIKey string
	Model           string
}

type TranscriptionConfig struct {
	OpenAIKey          string
	SpeechmaticsKey    string
	GladiaKey          string
	AzureSpeechKey     string
	AzureSpeechRegion  string
	AssemblyAIKey      string
	DeepgramKey        string
	GoogleCloudAPIKey  string
	GoogleCloudProject string
	// Priority overrides the fallback order, comma separated.
	Priority []string
	// Provider pins every transcription to one provider, bypassing the rotation.
	Provider string
}

type BotConfig struct {
	RecordingsDir string
	ChromePath    string
	Headless      bool
	MaxDuration   time.Duration
	// RecoverInterrupted fails jobs left unfinished by a previous process at startup.
	// Turn it off when several replicas share one database.
	RecoverInterrupted bool
}

type PollerConfig struct {
	Enabled     bool
	Interval    time.Duration
	Workers     int
	JoinsPerMin int
}

var errMissingRequiredEnv = errors.New("missing required environment variables")

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}

	var missing []string
	req := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	opt := func(key string) string {
		return strings.TrimSpace(os.Getenv(key))
	}
	def := func(key, fallback string) string {
		if v := opt(key); v != "" {
			return v
		}
		return fallback
	}

	cfg.App = AppConfig{
		AppName:     def("APP_NAME", "meeting-bot"),
		Environment: def("APP_ENV", "development"),
		HTTPPort:    req("HTTP_PORT"),
	}

	cfg.Auth = AuthConfig{
		APIKey:         req("BOT_API_KEY"),
		InternalAPIKey: opt("BOT_INTERNAL_API_KEY"),
		JWTSecret:      opt("JWT_SECRET"),
		JWTIssuer:      def("JWT_ISSUER", "meeting-bot"),
		CallbackTTL:    durationEnv("CALLBACK_TOKEN_TTL", 5*time.Minute),
	}
	if cfg.Auth.InternalAPIKey == "" {
		cfg.Auth.InternalAPIKey = cfg.Auth.APIKey
	}

	cfg.Database = DatabaseConfig{
		DBHost:     opt("DB_HOST"),
		DBPort:     def("DB_PORT", "5432"),
		DBName:     opt("DB_NAME"),
		DBUser:     opt("DB_USER"),
		DBPassword: opt("DB_PASSWORD"),
		DBSSLMode:  def("DB_SSL_MODE", "disable"),

		ConnectTimeout:        durationEnv("DB_CONNECT_TIMEOUT", 5*time.Second),
		PoolMaxConns:          int32(intEnv("DB_POOL_MAX_CONNS", 10)),
		PoolMinConns:          int32(intEnv("DB_POOL_MIN_CONNS", 0)),
		PoolMaxConnLifetime:   durationEnv("DB_POOL_MAX_CONN_LIFETIME", time.Hour),
		PoolMaxConnIdleTime:   durationEnv("DB_POOL_MAX_CONN_IDLE_TIME", 30*time.Minute),
		PoolHealthCheckPeriod: durationEnv("DB_POOL_HEALTH_CHECK_PERIOD", time.Minute),
	}

	cfg.Redis = RedisConfig{
		Password: opt("REDIS_PASSWORD"),
		DB:       intEnv("REDIS_DB", 0),
	}
	if host := opt("REDIS_HOST"); host != "" {
		cfg.Redis.Addr = host + ":" + def("REDIS_PORT", "6379")
	}

	cfg.Convex = ConvexConfig{
		URL:    opt("CONVEX_URL"),
		APIKey: def("BOT_SERVICE_API_KEY", cfg.Auth.APIKey),
	}

	cfg.Summary = SummaryConfig{
		AnthropicAPIKey: opt("ANTHROPIC_API_KEY"),
		Model:           opt("ANTHROPIC_MODEL"),
	}

	cfg.Transcription = TranscriptionConfig{
		OpenAIKey:          opt("OPENAI_API_KEY"),
		SpeechmaticsKey:    opt("SPEECHMATICS_API_KEY"),
		GladiaKey:          opt("GLADIA_API_KEY"),
		AzureSpeechKey:     opt("AZURE_SPEECH_KEY"),
		AzureSpeechRegion:  opt("AZURE_SPEECH_REGION"),
		AssemblyAIKey:      opt("ASSEMBLYAI_API_KEY"),
		DeepgramKey:        opt("DEEPGRAM_API_KEY"),
		GoogleCloudAPIKey:  opt("GOOGLE_CLOUD_API_KEY"),
		GoogleCloudProject: opt("GOOGLE_CLOUD_PROJECT_ID"),
		Priority:           splitList(opt("TRANSCRIPTION_PRIORITY")),
		Provider:           opt("TRANSCRIPTION_PROVIDER"),
	}

	cfg.Bot = BotConfig{
		RecordingsDir: def("RECORDINGS_DIR", "/tmp/recordings"),
		ChromePath:    opt("CHROME_PATH"),
		Headless:      def("HEADLESS", "true") != "false",
		MaxDuration:   durationEnv("MAX_MEETING_DURATION", 4*time.Hour),

		RecoverInterrupted: def("RECOVER_INTERRUPTED_JOBS", "true") != "false",
	}

	cfg.Poller = PollerConfig{
		Enabled:     def("POLLER_ENABLED", "true") != "false",
		Interval:    durationEnv("POLLER_INTERVAL", 30*time.Second),
		Workers:     intEnv("POLLER_WORKERS", 2),
		JoinsPerMin: intEnv("POLLER_JOINS_PER_MINUTE", 6),
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %s", errMissingRequiredEnv, strings.Join(missing, ", "))
	}

	return cfg, nil
}

func intEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

// durationEnv accepts Go durations ("90s") or a bare number of seconds.
func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return time.Duration(v) * time.Second
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
