package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for our application
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Rate limiting
	RateLimit RateLimitConfig

	// Kafka configuration
	Kafka KafkaConfig

	// Analytics engine tuning
	Analytics AnalyticsConfig

	// Logging
	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string // postgres, mysql or sqlite
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	Path     string // sqlite file
	DSN      string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string

	CacheTTL time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool          `json:"enabled"`
	WindowDuration    time.Duration `json:"window_duration"`
	DefaultRequests   int           `json:"default_requests"`
	HealthRequests    int           `json:"health_requests"`
	AnalyticsRequests int           `json:"analytics_requests"`
	RunRequests       int           `json:"run_requests"`
	WhitelistedIPs    []string      `json:"whitelisted_ips"`
}

// KafkaConfig holds the run-event publisher configuration
type KafkaConfig struct {
	Enabled  bool
	Brokers  []string
	RunTopic string
	ClientID string
	RetryMax int
	Timeout  time.Duration
}

// AnalyticsConfig holds the pipeline knobs. Values can be overridden by the
// YAML file named in ANALYTICS_CONFIG_FILE.
type AnalyticsConfig struct {
	GrossMargin               float64 `yaml:"gross_margin"`
	AnnualDiscountRate        float64 `yaml:"annual_discount_rate"`
	ProjectionMonths          int     `yaml:"projection_months"`
	CohortLookbackMonths      int     `yaml:"cohort_lookback_months"`
	MaxMonthsToTrack          int     `yaml:"max_months_to_track"`
	RetentionWindowMonths     int     `yaml:"retention_window_months"`
	ChurnRiskThreshold        int     `yaml:"churn_risk_threshold"`
	CorrelationMinSample      int     `yaml:"correlation_min_sample"`
	CorrelationLookbackMonths int     `yaml:"correlation_lookback_months"`
	SeasonalMinDataPoints     int     `yaml:"seasonal_min_data_points"`
	MinSegments               int     `yaml:"min_segments"`
	MaxSegments               int     `yaml:"max_segments"`
	WriteBatchSize            int     `yaml:"write_batch_size"`
	// ClusterSeed fixes the clustering random source; 0 derives it from the organization id.
	ClusterSeed uint64 `yaml:"cluster_seed"`
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		// Server configuration
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 5*time.Minute),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		// Database configuration
		Database: DatabaseConfig{
			Driver:   strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "ontology_db"),
			User:     getEnv("DB_USER", "ontology_user"),
			Password: getEnv("DB_PASSWORD", "ontology_password"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Path:     getEnv("DB_PATH", "ontology.db"),
		},

		// Redis configuration
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			CacheTTL: getDurationEnv("REDIS_CACHE_TTL", 10*time.Minute),
		},

		// Rate limiting
		RateLimit: RateLimitConfig{
			Enabled:           getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowDuration:    getDurationEnv("RATE_LIMIT_WINDOW_DURATION", 60*time.Second),
			DefaultRequests:   getIntEnv("RATE_LIMIT_DEFAULT_REQUESTS", 60),
			HealthRequests:    getIntEnv("RATE_LIMIT_HEALTH_REQUESTS", 300),
			AnalyticsRequests: getIntEnv("RATE_LIMIT_ANALYTICS_REQUESTS", 120),
			RunRequests:       getIntEnv("RATE_LIMIT_RUN_REQUESTS", 5),
			WhitelistedIPs:    getStringSliceEnv("RATE_LIMIT_WHITELISTED_IPS", []string{}),
		},

		// Kafka configuration
		Kafka: KafkaConfig{
			Enabled:  getBoolEnv("KAFKA_ENABLED", false),
			Brokers:  getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			RunTopic: getEnv("KAFKA_RUN_TOPIC", "analytics-runs"),
			ClientID: getEnv("KAFKA_CLIENT_ID", "ontology-analytics"),
			RetryMax: getIntEnv("KAFKA_RETRY_MAX", 3),
			Timeout:  getDurationEnv("KAFKA_TIMEOUT", 10*time.Second),
		},

		// Analytics configuration
		Analytics: AnalyticsConfig{
			GrossMargin:               getFloatEnv("ANALYTICS_GROSS_MARGIN", 0.70),
			AnnualDiscountRate:        getFloatEnv("ANALYTICS_DISCOUNT_RATE", 0.10),
			ProjectionMonths:          getIntEnv("ANALYTICS_PROJECTION_MONTHS", 60),
			CohortLookbackMonths:      getIntEnv("ANALYTICS_COHORT_LOOKBACK_MONTHS", 24),
			MaxMonthsToTrack:          getIntEnv("ANALYTICS_MAX_MONTHS_TO_TRACK", 12),
			RetentionWindowMonths:     getIntEnv("ANALYTICS_RETENTION_WINDOW_MONTHS", 1),
			ChurnRiskThreshold:        getIntEnv("ANALYTICS_CHURN_RISK_THRESHOLD", 30),
			CorrelationMinSample:      getIntEnv("ANALYTICS_CORRELATION_MIN_SAMPLE", 30),
			CorrelationLookbackMonths: getIntEnv("ANALYTICS_CORRELATION_LOOKBACK_MONTHS", 12),
			SeasonalMinDataPoints:     getIntEnv("ANALYTICS_SEASONAL_MIN_DATA_POINTS", 12),
			MinSegments:               getIntEnv("ANALYTICS_MIN_SEGMENTS", 3),
			MaxSegments:               getIntEnv("ANALYTICS_MAX_SEGMENTS", 6),
			WriteBatchSize:            getIntEnv("ANALYTICS_WRITE_BATCH_SIZE", 100),
			ClusterSeed:               getUint64Env("ANALYTICS_CLUSTER_SEED", 0),
		},

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}

	// Build composite values
	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

// LoadWithOverlay loads env configuration and applies the analytics YAML
// overlay named by ANALYTICS_CONFIG_FILE, if any.
func LoadWithOverlay() (*Config, error) {
	cfg := Load()
	path := os.Getenv("ANALYTICS_CONFIG_FILE")
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read analytics config %s: %w", path, err)
	}
	if err := cfg.Analytics.ApplyYAML(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyYAML overrides the fields present in data. Absent keys keep their value.
func (a *AnalyticsConfig) ApplyYAML(data []byte) error {
	if err := yaml.Unmarshal(data, a); err != nil {
		return fmt.Errorf("failed to parse analytics config: %w", err)
	}
	return a.Validate()
}

// Validate rejects settings the analyzers cannot work with.
func (a AnalyticsConfig) Validate() error {
	switch {
	case a.GrossMargin <= 0 || a.GrossMargin > 1:
		return fmt.Errorf("gross_margin must be in (0, 1], got %v", a.GrossMargin)
	case a.AnnualDiscountRate < 0:
		return fmt.Errorf("annual_discount_rate must not be negative, got %v", a.AnnualDiscountRate)
	case a.MinSegments < 1 || a.MaxSegments < a.MinSegments:
		return fmt.Errorf("segment bounds must satisfy 1 <= min <= max, got %d..%d", a.MinSegments, a.MaxSegments)
	case a.WriteBatchSize <= 0:
		return fmt.Errorf("write_batch_size must be positive, got %d", a.WriteBatchSize)
	}
	return nil
}

// buildDatabaseDSN builds the connection string for the configured driver
func buildDatabaseDSN(db DatabaseConfig) string {
	switch db.Driver {
	case "mysql":
		return db.User + ":" + db.Password +
			"@tcp(" + db.Host + ":" + db.Port + ")/" + db.Name +
			"?charset=utf8mb4&parseTime=True&loc=UTC"
	case "sqlite":
		return db.Path
	default:
		return "host=" + db.Host +
			" port=" + db.Port +
			" user=" + db.User +
			" password=" + db.Password +
			" dbname=" + db.Name +
			" sslmode=" + db.SSLMode
	}
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getUint64Env gets a uint64 environment variable with a fallback value
func getUint64Env(key string, fallback uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	}
	return fallback
}

// getFloatEnv gets a float environment variable with a fallback value
func getFloatEnv(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}
