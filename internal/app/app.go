// Package app provides the main application bootstrap and runtime orchestration.
//
// The App type wires together all dependencies and exposes methods to run
// different operational modes:
//
//   - Run mode: one pipeline run, then exit
//   - Bot mode: Bot API poller for supplier chats and admin commands
//   - Reader mode: MTProto client that ingests supplier chat history
//   - Server mode: health, metrics, media files and the WhatsApp webhook
//   - Scheduler mode: cron-triggered runs and duplicate cleanup
//   - Dedup mode: one duplicate cleanup pass
//
// Each mode can be run independently or combined based on deployment needs.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
	"github.com/lueurxax/supplier-catalog/internal/core/llm"
	"github.com/lueurxax/supplier-catalog/internal/ingest"
	"github.com/lueurxax/supplier-catalog/internal/ingest/mtproto"
	"github.com/lueurxax/supplier-catalog/internal/ingest/telegrambot"
	"github.com/lueurxax/supplier-catalog/internal/ingest/whatsapp"
	"github.com/lueurxax/supplier-catalog/internal/media"
	"github.com/lueurxax/supplier-catalog/internal/platform/config"
	"github.com/lueurxax/supplier-catalog/internal/platform/observability"
	"github.com/lueurxax/supplier-catalog/internal/platform/retry"
	"github.com/lueurxax/supplier-catalog/internal/platform/schedule"
	"github.com/lueurxax/supplier-catalog/internal/platform/settings"
	"github.com/lueurxax/supplier-catalog/internal/process/assembly"
	"github.com/lueurxax/supplier-catalog/internal/process/coordinator"
	"github.com/lueurxax/supplier-catalog/internal/process/dedup"
	"github.com/lueurxax/supplier-catalog/internal/process/pipeline"
	db "github.com/lueurxax/supplier-catalog/internal/storage"
)

const (
	jobTelegramRun = "telegram-run"
	jobWhatsAppRun = "whatsapp-run"
	jobDedup       = "dedup-cleanup"

	logFieldJob     = "job"
	logFieldRemoved = "removed"
)

// App holds the application dependencies and provides methods to run different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// StartHealthServer serves health, metrics, stored media and the WhatsApp webhook.
func (a *App) StartHealthServer(ctx context.Context) error {
	routes := []observability.Route{{
		Pattern: whatsapp.Route,
		Handler: whatsapp.NewHandler(ingest.New(a.database, a.logger), a.cfg.WhatsAppWebhookSecret, a.logger),
	}}

	if prefix := mediaRoutePrefix(a.cfg.MediaPublicBaseURL); prefix != "" {
		store, err := a.newObjectStore()
		if err != nil {
			return err
		}

		routes = append(routes, observability.Route{
			Pattern: prefix,
			Handler: http.StripPrefix(prefix, http.FileServer(http.Dir(store.Root()))),
		})
	}

	srv := observability.NewServer(a.database, a.cfg.HealthPort, a.logger, routes...)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// mediaRoutePrefix returns the path stored media is served under, or "" when
// the public base URL has no path of its own.
func mediaRoutePrefix(publicBase string) string {
	u, err := url.Parse(publicBase)
	if err != nil {
		return ""
	}

	p := strings.Trim(u.Path, "/")
	if p == "" {
		return ""
	}

	return "/" + p + "/"
}

// RunServer runs the HTTP-only mode.
func (a *App) RunServer(ctx context.Context) error {
	a.logger.Info().Msg("Starting server mode")

	return a.StartHealthServer(ctx)
}

// RunPipeline executes one run.
func (a *App) RunPipeline(ctx context.Context, params pipeline.Params) (pipeline.Report, error) {
	a.logger.Info().Str("trigger", string(params.Trigger)).Msg("Starting run mode")

	runner, _, err := a.newRunner(a.newFileResolver())
	if err != nil {
		return pipeline.Report{}, err
	}

	return runner.Run(ctx, params) //nolint:wrapcheck // callers inspect rejection and run errors
}

// RunDedup removes duplicate products once.
func (a *App) RunDedup(ctx context.Context) ([]string, error) {
	a.logger.Info().Msg("Starting dedup mode")

	removed, err := dedup.NewCleaner(a.database, a.logger).Cleanup(ctx)
	if err != nil {
		return nil, fmt.Errorf("dedup cleanup: %w", err)
	}

	return removed, nil
}

// RunBot runs the bot mode.
func (a *App) RunBot(ctx context.Context) error {
	a.logger.Info().Msg("Starting bot mode")

	api, err := tgbotapi.NewBotAPI(a.cfg.BotToken)
	if err != nil {
		return fmt.Errorf("bot initialization failed: %w", err)
	}

	runner, coord, err := a.newRunner(api)
	if err != nil {
		return err
	}

	b := telegrambot.NewWithAPI(api, a.cfg.AdminIDs, telegrambot.Deps{
		Ingester: ingest.New(a.database, a.logger),
		Runner:   runner,
		Runs:     coord,
		Cleaner:  dedup.NewCleaner(a.database, a.logger),
		Settings: a.database,
	}, a.logger)

	if err := b.Run(ctx); err != nil {
		return fmt.Errorf("bot run: %w", err)
	}

	return nil
}

// RunReader runs the reader mode.
func (a *App) RunReader(ctx context.Context) error {
	a.logger.Info().Msg("Starting reader mode")

	store, err := a.newObjectStore()
	if err != nil {
		return err
	}

	r := mtproto.New(mtproto.Config{
		APIID:         a.cfg.TGAPIID,
		APIHash:       a.cfg.TGAPIHash,
		Phone:         a.cfg.TGPhone,
		Password:      a.cfg.TG2FAPassword,
		SessionPath:   a.cfg.TGSessionPath,
		Chats:         a.cfg.MTProtoChats,
		FetchLimit:    a.cfg.ReaderFetchLimit,
		PollInterval:  a.cfg.ReaderPollInterval,
		MaxMediaBytes: a.cfg.MediaMaxBytes,
	}, a.database, ingest.New(a.database, a.logger), store, a.logger)

	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("reader run: %w", err)
	}

	return nil
}

// RunScheduler runs cron-triggered runs per source family and the periodic
// duplicate cleanup until ctx is canceled.
func (a *App) RunScheduler(ctx context.Context) error {
	a.logger.Info().Msg("Starting scheduler mode")

	runner, _, err := a.newRunner(a.newFileResolver())
	if err != nil {
		return err
	}

	s, err := schedule.New(ctx, a.logger)
	if err != nil {
		return fmt.Errorf("scheduler init: %w", err)
	}

	jobs := []struct {
		name string
		cron string
		job  schedule.Job
	}{
		{jobTelegramRun, a.cfg.CronTelegram, a.scheduledRun(runner, domain.SourceTelegram)},
		{jobWhatsAppRun, a.cfg.CronWhatsApp, a.scheduledRun(runner, domain.SourceWhatsApp)},
		{jobDedup, a.cfg.CronDedup, a.scheduledDedup()},
	}

	for _, j := range jobs {
		if _, err := s.AddJob(j.name, j.cron, j.job); err != nil {
			_ = s.Stop()

			return fmt.Errorf("scheduler setup: %w", err)
		}
	}

	s.Start()

	<-ctx.Done()

	if err := s.Stop(); err != nil {
		a.logger.Error().Err(err).Msg("scheduler shutdown failed")
	}

	return ctx.Err()
}

func (a *App) scheduledRun(runner *pipeline.Runner, source domain.SourceFamily) schedule.Job {
	return func(ctx context.Context) error {
		report, err := runner.Run(ctx, pipeline.Params{
			Trigger: domain.TriggerCron,
			Source:  source,
			Reason:  "scheduled",
		})

		if errors.Is(err, apperrors.ErrRunRejected) {
			a.logger.Info().Err(err).Str(logFieldJob, string(source)).Msg("scheduled run skipped")

			return nil
		}

		if err != nil {
			return fmt.Errorf("scheduled %s run: %w", source, err)
		}

		a.logger.Info().Str(logFieldJob, string(source)).Str(pipeline.LogFieldRunID, report.Run.ID).
			Int("products_created", report.Counters.ProductsCreated).Msg("scheduled run completed")

		return nil
	}
}

func (a *App) scheduledDedup() schedule.Job {
	cleaner := dedup.NewCleaner(a.database, a.logger)

	return func(ctx context.Context) error {
		removed, err := cleaner.Cleanup(ctx)
		if err != nil {
			return fmt.Errorf("scheduled dedup: %w", err)
		}

		a.logger.Info().Int(logFieldRemoved, len(removed)).Msg("scheduled dedup completed")

		return nil
	}
}

// newRunner builds the pipeline. telegram resolves tgfile media refs and may be nil.
func (a *App) newRunner(telegram media.FileURLResolver) (*pipeline.Runner, *coordinator.Coordinator, error) {
	enricher, err := llm.New(a.cfg.LLM(), a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("enrichment adapter init: %w", err)
	}

	store, err := a.newObjectStore()
	if err != nil {
		return nil, nil, err
	}

	mediaCfg := a.cfg.Media()
	batchCfg := a.cfg.Batch()
	groupingCfg := a.cfg.Grouping()

	fetcher := media.NewFetcher(media.FetcherConfig{
		Timeout:  mediaCfg.DownloadTimeout,
		MaxBytes: mediaCfg.MaxBytes,
		Retry: retry.Config{
			MaxRetries:   a.cfg.EnrichmentMaxRetries,
			InitialDelay: a.cfg.EnrichmentRetryInitial,
			MaxDelay:     a.cfg.EnrichmentRetryMax,
		},
	}, telegram, store, a.logger)

	coord := coordinator.New(a.database, coordinator.Config{StuckTimeout: batchCfg.StuckTimeout}, a.logger)

	assembler := assembly.New(assembly.Config{
		ImageConcurrency:    batchCfg.EnrichmentConcurrency,
		DefaultCategorySlug: batchCfg.DefaultCategorySlug,
	}, a.database, enricher, fetcher, store, a.logger)

	runner := pipeline.New(pipeline.Config{
		Defaults: settings.Thresholds{
			PageSize:            batchCfg.PageSize,
			Lookback:            batchCfg.Lookback,
			ContinuationGap:     batchCfg.ContinuationGap,
			GroupingMode:        groupingCfg.Mode,
			TextWindow:          groupingCfg.TextWindow,
			MaxTypeChanges:      groupingCfg.MaxTypeChanges,
			MinConfidence:       groupingCfg.MinConfidence,
			DefaultCategorySlug: batchCfg.DefaultCategorySlug,
		},
		MaxLLMMessages: groupingCfg.MaxLLMMessages,
	}, coord, a.database, a.database, enricher, dedup.NewGuard(a.database, a.logger), assembler, a.logger)

	return runner, coord, nil
}

func (a *App) newObjectStore() (*media.FileStore, error) {
	store, err := media.NewFileStore(a.cfg.MediaRoot, a.cfg.MediaPublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("object store init: %w", err)
	}

	return store, nil
}

// newFileResolver connects to the Bot API when a token is configured so runs
// can download tgfile media refs. It returns nil otherwise.
func (a *App) newFileResolver() media.FileURLResolver {
	if a.cfg.BotToken == "" {
		a.logger.Warn().Msg("BOT_TOKEN not set, Bot API media refs cannot be downloaded")

		return nil
	}

	api, err := tgbotapi.NewBotAPI(a.cfg.BotToken)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Bot API unavailable, Bot API media refs cannot be downloaded")

		return nil
	}

	return api
}
