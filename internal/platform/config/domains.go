package config

import "time"

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	PostgresDSN       string
	MaxConnections    int32
	MinConnections    int32
	MaxConnIdleTime   time.Duration
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
}

// LLMConfig holds enrichment adapter settings.
type LLMConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	VisionModel  string
	Timeout      time.Duration
	RateLimitRPS float64
	MaxRetries   int
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// GroupingConfig holds grouping strategy settings.
type GroupingConfig struct {
	Mode           string
	TextWindow     time.Duration
	MaxTypeChanges int
	MinConfidence  float64
	MaxLLMMessages int
}

// BatchConfig holds batch extension and run settings.
type BatchConfig struct {
	PageSize              int
	Lookback              time.Duration
	ContinuationGap       time.Duration
	EnrichmentConcurrency int
	StuckTimeout          time.Duration
	DefaultCategorySlug   string
}

// MediaConfig holds media download and object store settings.
type MediaConfig struct {
	DownloadTimeout time.Duration
	MaxBytes        int64
	Root            string
	PublicBaseURL   string
}

// Database returns the database settings.
func (c *Config) Database() DatabaseConfig {
	return DatabaseConfig{
		PostgresDSN:       c.PostgresDSN,
		MaxConnections:    c.DBMaxConnections,
		MinConnections:    c.DBMinConnections,
		MaxConnIdleTime:   c.DBMaxConnIdleTime,
		MaxConnLifetime:   c.DBMaxConnLifetime,
		HealthCheckPeriod: c.DBHealthCheckPeriod,
	}
}

// LLM returns the enrichment adapter settings.
func (c *Config) LLM() LLMConfig {
	return LLMConfig{
		APIKey:       c.LLMAPIKey,
		BaseURL:      c.LLMBaseURL,
		Model:        c.LLMModel,
		VisionModel:  c.LLMVisionModel,
		Timeout:      c.LLMTimeout,
		RateLimitRPS: c.RateLimitRPS,
		MaxRetries:   c.EnrichmentMaxRetries,
		RetryInitial: c.EnrichmentRetryInitial,
		RetryMax:     c.EnrichmentRetryMax,
	}
}

// Grouping returns the grouping settings.
func (c *Config) Grouping() GroupingConfig {
	return GroupingConfig{
		Mode:           c.GroupingMode,
		TextWindow:     c.GroupingTextWindow,
		MaxTypeChanges: c.GroupingMaxTypeChanges,
		MinConfidence:  c.GroupingMinConfidence,
		MaxLLMMessages: c.GroupingMaxLLMMessages,
	}
}

// Batch returns the batch pipeline settings.
func (c *Config) Batch() BatchConfig {
	return BatchConfig{
		PageSize:              c.BatchPageSize,
		Lookback:              c.BatchLookback,
		ContinuationGap:       c.BatchContinuationGap,
		EnrichmentConcurrency: c.EnrichmentConcurrency,
		StuckTimeout:          c.RunStuckTimeout,
		DefaultCategorySlug:   c.DefaultCategorySlug,
	}
}

// Media returns the media settings.
func (c *Config) Media() MediaConfig {
	return MediaConfig{
		DownloadTimeout: c.MediaDownloadTimeout,
		MaxBytes:        c.MediaMaxBytes,
		Root:            c.MediaRoot,
		PublicBaseURL:   c.MediaPublicBaseURL,
	}
}
