package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Allocator AllocatorConfig
	Exports   ExportsConfig
	Runs      RunsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AllocatorConfig tunes the section allocation engine and its supervisor.
type AllocatorConfig struct {
	Workers             int
	MaxAttempts         int
	Seed                int64
	ProposalTTL         time.Duration
	RunTimeout          time.Duration
	ExtraSpreadSections int
	DemandRounds        int
	LevelTwoGrade       string
	CoreType            string
	ElectiveType        string
	MathType            string
	ResearchType        string
}

// ExportsConfig controls where rendered allocation exports live and how
// their download links are signed.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// RunsConfig sizes the asynchronous run queue and the finished-run cache.
type RunsConfig struct {
	WorkerConcurrency int
	WorkerRetries     int
	CacheTTL          time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	workers := v.GetInt("ALLOCATOR_WORKERS")
	if workers <= 0 {
		workers = 1
	}
	cfg.Allocator = AllocatorConfig{
		Workers:             workers,
		MaxAttempts:         v.GetInt("ALLOCATOR_MAX_ATTEMPTS"),
		Seed:                v.GetInt64("ALLOCATOR_SEED"),
		ProposalTTL:         parseDuration(v.GetString("ALLOCATOR_PROPOSAL_TTL"), 30*time.Minute),
		RunTimeout:          parseDuration(v.GetString("ALLOCATOR_RUN_TIMEOUT"), 5*time.Minute),
		ExtraSpreadSections: v.GetInt("ALLOCATOR_EXTRA_SPREAD_SECTIONS"),
		DemandRounds:        v.GetInt("ALLOCATOR_DEMAND_ROUNDS"),
		LevelTwoGrade:       v.GetString("ALLOCATOR_LEVEL_TWO_GRADE"),
		CoreType:            v.GetString("ALLOCATOR_CORE_TYPE"),
		ElectiveType:        v.GetString("ALLOCATOR_ELECTIVE_TYPE"),
		MathType:            v.GetString("ALLOCATOR_MATH_TYPE"),
		ResearchType:        v.GetString("ALLOCATOR_RESEARCH_TYPE"),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
	}

	cfg.Runs = RunsConfig{
		WorkerConcurrency: v.GetInt("RUNS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("RUNS_WORKER_RETRIES"),
		CacheTTL:          parseDuration(v.GetString("RUNS_CACHE_TTL"), time.Hour),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sectioner")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ALLOCATOR_WORKERS", 4)
	v.SetDefault("ALLOCATOR_MAX_ATTEMPTS", 5000)
	v.SetDefault("ALLOCATOR_SEED", 0)
	v.SetDefault("ALLOCATOR_PROPOSAL_TTL", "30m")
	v.SetDefault("ALLOCATOR_RUN_TIMEOUT", "5m")
	v.SetDefault("ALLOCATOR_EXTRA_SPREAD_SECTIONS", 2)
	v.SetDefault("ALLOCATOR_DEMAND_ROUNDS", 10)
	v.SetDefault("ALLOCATOR_LEVEL_TWO_GRADE", "Grade 12")
	v.SetDefault("ALLOCATOR_CORE_TYPE", "Core")
	v.SetDefault("ALLOCATOR_ELECTIVE_TYPE", "Elective")
	v.SetDefault("ALLOCATOR_MATH_TYPE", "Math")
	v.SetDefault("ALLOCATOR_RESEARCH_TYPE", "Research")

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")

	v.SetDefault("RUNS_WORKER_CONCURRENCY", 1)
	v.SetDefault("RUNS_WORKER_RETRIES", 0)
	v.SetDefault("RUNS_CACHE_TTL", "1h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
