package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	ProjectID string
	Dataset   string
	Bucket    string

	ModelName       string
	LLMTimeout      time.Duration
	AIMaxInputChars int
	AIMaxTokens     int32
	AITemperature   float32
	ReferenceYear   int
	LLMRatePerSec   float64
	LLMBurst        int

	MaxFileSizeBytes int64
	InsertBatchSize  int

	CategorizationBatchSize     int
	CategoryConfidenceThreshold float64
	AnomalyThresholdStdDev      float64
	AlertThresholdPercent       float64

	Port        string
	LogLevel    string
	QueueBuffer int
	Workers     int
	MaxRetries  int

	// CategorizeSchedule is a cron spec for the worker's categorization
	// sweep; empty disables it.
	CategorizeSchedule string

	NotionToken      string
	NotionDatabaseID string
}

// NewConfig loads configuration from environment variables.
// Values that are present but malformed are reported as errors rather than
// silently replaced by defaults.
func NewConfig() (*Config, error) {
	p := &envParser{}

	cfg := &Config{
		ProjectID: getEnv("GCP_PROJECT_ID", ""),
		Dataset:   getEnv("BQ_DATASET", "finance"),
		Bucket:    getEnv("GCS_BUCKET", ""),

		ModelName:       getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		LLMTimeout:      p.duration("LLM_TIMEOUT", 60*time.Second),
		AIMaxInputChars: p.int("AI_MAX_INPUT_CHARS", 12000),
		AIMaxTokens:     int32(p.int("AI_MAX_TOKENS", 8192)),
		AITemperature:   float32(p.float("AI_TEMPERATURE", 0)),
		ReferenceYear:   p.int("AI_REFERENCE_YEAR", time.Now().Year()),
		LLMRatePerSec:   p.float("LLM_RATE_PER_SEC", 2),
		LLMBurst:        p.int("LLM_BURST", 2),

		MaxFileSizeBytes: int64(p.int("MAX_FILE_SIZE_BYTES", 10*1024*1024)),
		InsertBatchSize:  p.int("BQ_INSERT_BATCH_SIZE", 500),

		CategorizationBatchSize:     p.int("CATEGORIZATION_BATCH_SIZE", 50),
		CategoryConfidenceThreshold: p.float("CATEGORY_CONFIDENCE_THRESHOLD", 0.7),
		AnomalyThresholdStdDev:      p.float("ANOMALY_THRESHOLD_STD_DEV", 2.5),
		AlertThresholdPercent:       p.float("ALERT_THRESHOLD_PERCENT", 120),

		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		QueueBuffer: p.int("JOB_QUEUE_BUFFER", 100),
		Workers:     p.int("JOB_WORKERS", 5),
		MaxRetries:  p.int("JOB_MAX_RETRIES", 3),

		CategorizeSchedule: getEnv("CATEGORIZE_SCHEDULE", ""),

		NotionToken:      getEnv("NOTION_TOKEN", ""),
		NotionDatabaseID: getEnv("NOTION_DATABASE_ID", ""),
	}

	if p.err != nil {
		return nil, p.err
	}

	return cfg, nil
}

// Validate checks the settings every binary that talks to GCP needs.
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("GCP_PROJECT_ID is required")
	}
	if c.Dataset == "" {
		return fmt.Errorf("BQ_DATASET is required")
	}
	if c.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE_BYTES must be positive")
	}
	if c.InsertBatchSize <= 0 {
		return fmt.Errorf("BQ_INSERT_BATCH_SIZE must be positive")
	}
	if c.CategorizationBatchSize <= 0 {
		return fmt.Errorf("CATEGORIZATION_BATCH_SIZE must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("JOB_WORKERS must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// envParser records the first malformed value so NewConfig can fail once.
type envParser struct {
	err error
}

func (p *envParser) int(key string, defaultVal int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return defaultVal
	}
	return v
}

func (p *envParser) float(key string, defaultVal float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultVal
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
		return defaultVal
	}
	return v
}

func (p *envParser) duration(key string, defaultVal time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultVal
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return defaultVal
	}
	return v
}

func (p *envParser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, raw, err)
	}
}
