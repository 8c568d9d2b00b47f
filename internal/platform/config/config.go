package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
)

const hoursPerDay = 24

// Service modes that need dedicated credentials.
const (
	ModeRun       = "run"
	ModeBot       = "bot"
	ModeReader    = "reader"
	ModeServer    = "server"
	ModeScheduler = "scheduler"
	ModeDedup     = "dedup"
	ModeMigrate   = "migrate"
)

type Config struct {
	AppEnv              string        `env:"APP_ENV" envDefault:"local"`
	PostgresDSN         string        `env:"POSTGRES_DSN,required"`
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"25"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"5"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
	HealthPort          int           `env:"HEALTH_PORT" envDefault:"8080"`

	// Enrichment adapter
	LLMAPIKey              string        `env:"LLM_API_KEY"`
	LLMBaseURL             string        `env:"LLM_BASE_URL"`
	LLMModel               string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMVisionModel         string        `env:"LLM_VISION_MODEL"`
	LLMTimeout             time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	RateLimitRPS           float64       `env:"RATE_LIMIT_RPS" envDefault:"1"`
	EnrichmentMaxRetries   int           `env:"ENRICHMENT_MAX_RETRIES" envDefault:"3"`
	EnrichmentRetryInitial time.Duration `env:"ENRICHMENT_RETRY_INITIAL" envDefault:"500ms"`
	EnrichmentRetryMax     time.Duration `env:"ENRICHMENT_RETRY_MAX" envDefault:"10s"`
	EnrichmentConcurrency  int           `env:"ENRICHMENT_CONCURRENCY" envDefault:"3"`

	// Batch and grouping
	BatchPageSize          int           `env:"BATCH_PAGE_SIZE" envDefault:"100"`
	BatchLookback          time.Duration `env:"BATCH_LOOKBACK" envDefault:"48h"`
	BatchContinuationGap   time.Duration `env:"BATCH_CONTINUATION_GAP" envDefault:"5m"`
	GroupingMode           string        `env:"GROUPING_MODE" envDefault:"rules"`
	GroupingTextWindow     time.Duration `env:"GROUPING_TEXT_WINDOW" envDefault:"60s"`
	GroupingMaxTypeChanges int           `env:"GROUPING_MAX_TYPE_CHANGES" envDefault:"1"`
	GroupingMinConfidence  float64       `env:"GROUPING_MIN_CONFIDENCE" envDefault:"0.5"`
	GroupingMaxLLMMessages int           `env:"GROUPING_MAX_LLM_MESSAGES" envDefault:"60"`
	RunStuckTimeout        time.Duration `env:"RUN_STUCK_TIMEOUT" envDefault:"1h"`

	// Media
	MediaDownloadTimeout time.Duration `env:"MEDIA_DOWNLOAD_TIMEOUT" envDefault:"30s"`
	MediaMaxBytes        int64         `env:"MEDIA_MAX_BYTES" envDefault:"10485760"`
	MediaRoot            string        `env:"MEDIA_ROOT" envDefault:"./media"`
	MediaPublicBaseURL   string        `env:"MEDIA_PUBLIC_BASE_URL" envDefault:"http://localhost:8080/media"`
	DefaultCategorySlug  string        `env:"DEFAULT_CATEGORY_SLUG" envDefault:""`

	// Telegram Bot API
	BotToken string  `env:"BOT_TOKEN"`
	AdminIDs []int64 `env:"ADMIN_IDS" envSeparator:","`

	// Telegram MTProto reader
	TGAPIID            int           `env:"TG_API_ID"`
	TGAPIHash          string        `env:"TG_API_HASH"`
	TGPhone            string        `env:"TG_PHONE"`
	TG2FAPassword      string        `env:"TG_2FA_PASSWORD"`
	TGSessionPath      string        `env:"TG_SESSION_PATH" envDefault:"./tg.session"`
	MTProtoChats       []string      `env:"MTPROTO_CHATS" envSeparator:","`
	ReaderFetchLimit   int           `env:"READER_FETCH_LIMIT" envDefault:"50"`
	ReaderPollInterval time.Duration `env:"READER_POLL_INTERVAL" envDefault:"1m"`

	// WhatsApp gateway webhook
	WhatsAppWebhookSecret string `env:"WHATSAPP_WEBHOOK_SECRET"`

	// Scheduler (cron expressions, empty disables the job)
	CronTelegram string `env:"CRON_TELEGRAM" envDefault:"*/15 * * * *"`
	CronWhatsApp string `env:"CRON_WHATSAPP" envDefault:"*/15 * * * *"`
	CronDedup    string `env:"CRON_DEDUP" envDefault:"0 4 * * *"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	applyAliases(cfg)

	return cfg, nil
}

// Validate checks the credentials a service mode needs.
func (c *Config) Validate(mode string) error {
	var missing []string

	switch mode {
	case ModeRun, ModeScheduler:
		// Text enrichment is mandatory for product assembly.
		if c.LLMAPIKey == "" {
			missing = append(missing, "LLM_API_KEY")
		}
	case ModeBot:
		if c.BotToken == "" {
			missing = append(missing, "BOT_TOKEN")
		}

		if c.LLMAPIKey == "" {
			missing = append(missing, "LLM_API_KEY")
		}
	case ModeReader:
		if c.TGAPIID == 0 {
			missing = append(missing, "TG_API_ID")
		}

		if c.TGAPIHash == "" {
			missing = append(missing, "TG_API_HASH")
		}

		if len(c.MTProtoChats) == 0 {
			missing = append(missing, "MTPROTO_CHATS")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrMissingCredentials, strings.Join(missing, ", "))
	}

	return nil
}

func applyAliases(cfg *Config) {
	if !hasEnv("LLM_API_KEY") {
		setStringFromEnv("OPENAI_API_KEY", &cfg.LLMAPIKey)
	}

	if !hasEnv("LLM_BASE_URL") {
		setStringFromEnv("OPENAI_BASE_URL", &cfg.LLMBaseURL)
	}

	if !hasEnv("BATCH_LOOKBACK") {
		setHoursFromEnv("BATCH_LOOKBACK_HOURS", &cfg.BatchLookback)
		setDaysFromEnv("BATCH_LOOKBACK_DAYS", &cfg.BatchLookback)
	}

	if !hasEnv("GROUPING_TEXT_WINDOW") {
		setDurationFromEnv("TEXT_COLLECTION_WINDOW", &cfg.GroupingTextWindow)
	}

	if !hasEnv("ENRICHMENT_MAX_RETRIES") {
		setIntFromEnv("LLM_MAX_RETRIES", &cfg.EnrichmentMaxRetries)
	}

	if cfg.LLMVisionModel == "" {
		cfg.LLMVisionModel = cfg.LLMModel
	}
}

func hasEnv(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

func setStringFromEnv(key string, target *string) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}

	val = strings.TrimSpace(val)
	if val == "" {
		return
	}

	*target = val
}

func setIntFromEnv(key string, target *int) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return
	}

	*target = parsed
}

func setDurationFromEnv(key string, target *time.Duration) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}

	parsed, err := time.ParseDuration(strings.TrimSpace(val))
	if err != nil {
		return
	}

	*target = parsed
}

func setHoursFromEnv(key string, target *time.Duration) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil || parsed <= 0 {
		return
	}

	*target = time.Duration(parsed) * time.Hour
}

func setDaysFromEnv(key string, target *time.Duration) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil || parsed <= 0 {
		return
	}

	*target = time.Duration(parsed*hoursPerDay) * time.Hour
}
