package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is built once at process start and passed by reference to every
// component. No component reads environment variables on its own.
type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers         []string
	KafkaMonitoringTopic string

	// EDC (data capture collaborator)
	EDCBaseURL      string
	EDCClientID     string
	EDCClientSecret string
	EDCTokenURL     string
	EDCStudyOID     string
	EDCPollInterval time.Duration

	// Study
	Study Study

	// Feature cache
	FeatureCacheTTL time.Duration

	// Logging
	LogLevel string
}

// Study holds the thresholds of the continuous-learning loop for one model
// lineage. The drift test and promotion protocol are fixed; only these
// constants are tunable per study.
type Study struct {
	OID                 string
	PseudonymSalt       string
	DriftThreshold      float64
	MinWindowSize       int
	MinFeedbackCount    int
	PromotionMargin     float64
	MinExamplesPerClass int
	EvaluationInterval  time.Duration
	DriftWindow         time.Duration
}

func Load() *Config {
	cfg := &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "diagnoml"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "diagnoml123"),
		PostgresDB:       getEnv("POSTGRES_DB", "diagnoml_warehouse"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:         getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaMonitoringTopic: getEnv("KAFKA_MONITORING_TOPIC", "diagnoml-monitoring"),

		EDCBaseURL:      getEnv("EDC_BASE_URL", "http://openclinica:8080/OpenClinica"),
		EDCClientID:     getEnv("EDC_CLIENT_ID", ""),
		EDCClientSecret: getEnv("EDC_CLIENT_SECRET", ""),
		EDCTokenURL:     getEnv("EDC_TOKEN_URL", ""),
		EDCStudyOID:     getEnv("EDC_STUDY_OID", "S_DIAGNOML"),
		EDCPollInterval: getDuration("EDC_POLL_INTERVAL", 5*time.Minute),

		Study: Study{
			OID:                 getEnv("EDC_STUDY_OID", "S_DIAGNOML"),
			PseudonymSalt:       getEnv("PSEUDONYM_SALT", ""),
			DriftThreshold:      getFloatEnv("DRIFT_THRESHOLD", 0.2),
			MinWindowSize:       getIntEnv("DRIFT_MIN_WINDOW_SIZE", 30),
			MinFeedbackCount:    getIntEnv("MIN_FEEDBACK_COUNT", 25),
			PromotionMargin:     getFloatEnv("PROMOTION_MARGIN", 0.01),
			MinExamplesPerClass: getIntEnv("MIN_EXAMPLES_PER_CLASS", 20),
			EvaluationInterval:  getDuration("EVALUATION_INTERVAL", 1*time.Hour),
			DriftWindow:         getDuration("DRIFT_WINDOW", 7*24*time.Hour),
		},

		FeatureCacheTTL: getDuration("FEATURE_CACHE_TTL", 5*time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if profile := getEnv("STUDY_PROFILE_FILE", ""); profile != "" {
		if parsed, err := readStudyProfile(profile); err == nil {
			cfg.Study = parsed.apply(cfg.Study)
		}
	}

	return cfg
}

// studyProfile is the YAML shape of a per-study threshold file. Durations
// are written in Go notation ("30m", "168h"). PromotionMargin is a pointer
// because zero is a meaningful override: margin 0 means any non-regression
// promotes.
type studyProfile struct {
	OID                 string   `yaml:"oid"`
	PseudonymSalt       string   `yaml:"pseudonym_salt"`
	DriftThreshold      float64  `yaml:"drift_threshold"`
	MinWindowSize       int      `yaml:"min_window_size"`
	MinFeedbackCount    int      `yaml:"min_feedback_count"`
	PromotionMargin     *float64 `yaml:"promotion_margin"`
	MinExamplesPerClass int      `yaml:"min_examples_per_class"`
	EvaluationInterval  string   `yaml:"evaluation_interval"`
	DriftWindow         string   `yaml:"drift_window"`

	evaluationInterval time.Duration
	driftWindow        time.Duration
}

// LoadStudyProfile reads a per-study threshold profile from a YAML file.
func LoadStudyProfile(path string) (Study, error) {
	profile, err := readStudyProfile(path)
	if err != nil {
		return Study{}, err
	}
	return profile.apply(Study{}), nil
}

func readStudyProfile(path string) (studyProfile, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return studyProfile{}, err
	}
	var profile studyProfile
	if err := yaml.Unmarshal(content, &profile); err != nil {
		return studyProfile{}, fmt.Errorf("parsing study profile: %w", err)
	}
	if profile.EvaluationInterval != "" {
		if profile.evaluationInterval, err = time.ParseDuration(profile.EvaluationInterval); err != nil {
			return studyProfile{}, fmt.Errorf("parsing evaluation_interval: %w", err)
		}
	}
	if profile.DriftWindow != "" {
		if profile.driftWindow, err = time.ParseDuration(profile.DriftWindow); err != nil {
			return studyProfile{}, fmt.Errorf("parsing drift_window: %w", err)
		}
	}
	return profile, nil
}

// apply overlays the profile's set fields on a base study configuration.
func (p studyProfile) apply(base Study) Study {
	if p.OID != "" {
		base.OID = p.OID
	}
	if p.PseudonymSalt != "" {
		base.PseudonymSalt = p.PseudonymSalt
	}
	if p.DriftThreshold > 0 {
		base.DriftThreshold = p.DriftThreshold
	}
	if p.MinWindowSize > 0 {
		base.MinWindowSize = p.MinWindowSize
	}
	if p.MinFeedbackCount > 0 {
		base.MinFeedbackCount = p.MinFeedbackCount
	}
	if p.PromotionMargin != nil {
		base.PromotionMargin = *p.PromotionMargin
	}
	if p.MinExamplesPerClass > 0 {
		base.MinExamplesPerClass = p.MinExamplesPerClass
	}
	if p.evaluationInterval > 0 {
		base.EvaluationInterval = p.evaluationInterval
	}
	if p.driftWindow > 0 {
		base.DriftWindow = p.driftWindow
	}
	return base
}

// Validate rejects configurations the control loop cannot run on.
func (c *Config) Validate() error {
	if c.Study.PseudonymSalt == "" {
		return fmt.Errorf("PSEUDONYM_SALT is required")
	}
	if c.Study.DriftThreshold <= 0 {
		return fmt.Errorf("drift threshold must be positive, got %v", c.Study.DriftThreshold)
	}
	if c.Study.MinWindowSize < 2 {
		return fmt.Errorf("minimum window size must be at least 2, got %d", c.Study.MinWindowSize)
	}
	if c.Study.MinFeedbackCount < 1 {
		return fmt.Errorf("minimum feedback count must be at least 1, got %d", c.Study.MinFeedbackCount)
	}
	if c.Study.PromotionMargin < 0 {
		return fmt.Errorf("promotion margin must not be negative, got %v", c.Study.PromotionMargin)
	}
	if c.Study.MinExamplesPerClass < 2 {
		return fmt.Errorf("minimum examples per class must be at least 2, got %d", c.Study.MinExamplesPerClass)
	}
	if c.Study.EvaluationInterval <= 0 {
		return fmt.Errorf("evaluation interval must be positive, got %v", c.Study.EvaluationInterval)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
