package config

import (
	"errors"
	"os"
	"testing"
	"time"

	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
)

// Test environment variable keys.
const (
	testEnvPostgresDSN = "POSTGRES_DSN"
	testEnvBotToken    = "BOT_TOKEN"
	testEnvLLMAPIKey   = "LLM_API_KEY"
	testEnvTGAPIID     = "TG_API_ID"
	testEnvTGAPIHash   = "TG_API_HASH"
	testEnvAdminIDs    = "ADMIN_IDS"
)

// Test values.
const (
	testPostgresDSN    = "postgres://localhost/test"
	testBotToken       = "123456:ABC-DEF"
	testErrLoad        = "Load() error = %v"
	testDefaultEnv     = "local"
	testDefaultModel   = "gpt-4o-mini"
	testDefaultPage    = 100
	testDefaultWindow  = 60 * time.Second
	testDefaultLook    = 48 * time.Hour
	testDefaultGap     = 5 * time.Minute
	testDefaultMinConf = 0.5
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()

	t.Setenv(testEnvPostgresDSN, testPostgresDSN)
}

func clearOptionalEnvVars(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		testEnvBotToken, testEnvLLMAPIKey, testEnvTGAPIID, testEnvTGAPIHash, testEnvAdminIDs,
		"OPENAI_API_KEY", "BATCH_LOOKBACK", "BATCH_LOOKBACK_HOURS", "BATCH_LOOKBACK_DAYS",
		"GROUPING_TEXT_WINDOW", "TEXT_COLLECTION_WINDOW", "MTPROTO_CHATS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv(testEnvPostgresDSN, "")
	os.Unsetenv(testEnvPostgresDSN)

	_, err := Load()
	if err == nil {
		t.Error("expected error for missing required env vars")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearOptionalEnvVars(t)
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf(testErrLoad, err)
	}

	if cfg.PostgresDSN != testPostgresDSN {
		t.Errorf("PostgresDSN = %q, want %q", cfg.PostgresDSN, testPostgresDSN)
	}

	if cfg.AppEnv != testDefaultEnv {
		t.Errorf("AppEnv = %q, want %q", cfg.AppEnv, testDefaultEnv)
	}

	if cfg.LLMModel != testDefaultModel {
		t.Errorf("LLMModel = %q, want %q", cfg.LLMModel, testDefaultModel)
	}

	if cfg.LLMVisionModel != testDefaultModel {
		t.Errorf("LLMVisionModel = %q, want %q", cfg.LLMVisionModel, testDefaultModel)
	}

	if cfg.BatchPageSize != testDefaultPage {
		t.Errorf("BatchPageSize = %d, want %d", cfg.BatchPageSize, testDefaultPage)
	}

	if cfg.GroupingTextWindow != testDefaultWindow {
		t.Errorf("GroupingTextWindow = %v, want %v", cfg.GroupingTextWindow, testDefaultWindow)
	}

	if cfg.BatchLookback != testDefaultLook {
		t.Errorf("BatchLookback = %v, want %v", cfg.BatchLookback, testDefaultLook)
	}

	if cfg.BatchContinuationGap != testDefaultGap {
		t.Errorf("BatchContinuationGap = %v, want %v", cfg.BatchContinuationGap, testDefaultGap)
	}

	if cfg.GroupingMinConfidence != testDefaultMinConf {
		t.Errorf("GroupingMinConfidence = %v, want %v", cfg.GroupingMinConfidence, testDefaultMinConf)
	}

	if cfg.GroupingMode != "rules" {
		t.Errorf("GroupingMode = %q, want rules", cfg.GroupingMode)
	}
}

func TestLoad_AdminIDs(t *testing.T) {
	clearOptionalEnvVars(t)
	setRequiredEnvVars(t)
	t.Setenv(testEnvAdminIDs, "111,222")

	cfg, err := Load()
	if err != nil {
		t.Fatalf(testErrLoad, err)
	}

	if len(cfg.AdminIDs) != 2 || cfg.AdminIDs[0] != 111 || cfg.AdminIDs[1] != 222 {
		t.Errorf("AdminIDs = %v, want [111 222]", cfg.AdminIDs)
	}
}

func TestLoad_Aliases(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "openai key alias",
			env:  map[string]string{"OPENAI_API_KEY": "sk-alias"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.LLMAPIKey != "sk-alias" {
					t.Errorf("LLMAPIKey = %q, want sk-alias", cfg.LLMAPIKey)
				}
			},
		},
		{
			name: "lookback hours",
			env:  map[string]string{"BATCH_LOOKBACK_HOURS": "12"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.BatchLookback != 12*time.Hour {
					t.Errorf("BatchLookback = %v, want 12h", cfg.BatchLookback)
				}
			},
		},
		{
			name: "lookback days",
			env:  map[string]string{"BATCH_LOOKBACK_DAYS": "3"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.BatchLookback != 72*time.Hour {
					t.Errorf("BatchLookback = %v, want 72h", cfg.BatchLookback)
				}
			},
		},
		{
			name: "explicit lookback wins",
			env:  map[string]string{"BATCH_LOOKBACK": "1h", "BATCH_LOOKBACK_HOURS": "12"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.BatchLookback != time.Hour {
					t.Errorf("BatchLookback = %v, want 1h", cfg.BatchLookback)
				}
			},
		},
		{
			name: "invalid alias ignored",
			env:  map[string]string{"TEXT_COLLECTION_WINDOW": "soon"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.GroupingTextWindow != testDefaultWindow {
					t.Errorf("GroupingTextWindow = %v, want %v", cfg.GroupingTextWindow, testDefaultWindow)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearOptionalEnvVars(t)
			setRequiredEnvVars(t)

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if err != nil {
				t.Fatalf(testErrLoad, err)
			}

			tt.check(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		mode    string
		wantErr bool
	}{
		{name: "run without key", cfg: Config{}, mode: ModeRun, wantErr: true},
		{name: "run with key", cfg: Config{LLMAPIKey: "k"}, mode: ModeRun},
		{name: "bot without token", cfg: Config{LLMAPIKey: "k"}, mode: ModeBot, wantErr: true},
		{name: "bot complete", cfg: Config{LLMAPIKey: "k", BotToken: testBotToken}, mode: ModeBot},
		{name: "reader without chats", cfg: Config{TGAPIID: 1, TGAPIHash: "h"}, mode: ModeReader, wantErr: true},
		{name: "reader complete", cfg: Config{TGAPIID: 1, TGAPIHash: "h", MTProtoChats: []string{"@s"}}, mode: ModeReader},
		{name: "server needs nothing", cfg: Config{}, mode: ModeServer},
		{name: "migrate needs nothing", cfg: Config{}, mode: ModeMigrate},
		{name: "dedup needs nothing", cfg: Config{}, mode: ModeDedup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(tt.mode)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err != nil && !errors.Is(err, apperrors.ErrMissingCredentials) {
				t.Errorf("Validate() error = %v, want ErrMissingCredentials", err)
			}
		})
	}
}

func TestConfigViews(t *testing.T) {
	cfg := Config{
		PostgresDSN:            testPostgresDSN,
		GroupingMode:           "llm",
		GroupingMaxTypeChanges: 2,
		BatchPageSize:          50,
		MediaRoot:              "/tmp/media",
	}

	if got := cfg.Database().PostgresDSN; got != testPostgresDSN {
		t.Errorf("Database().PostgresDSN = %q", got)
	}

	if g := cfg.Grouping(); g.Mode != "llm" || g.MaxTypeChanges != 2 {
		t.Errorf("Grouping() = %+v", g)
	}

	if got := cfg.Batch().PageSize; got != 50 {
		t.Errorf("Batch().PageSize = %d, want 50", got)
	}

	if got := cfg.Media().Root; got != "/tmp/media" {
		t.Errorf("Media().Root = %q", got)
	}
}
