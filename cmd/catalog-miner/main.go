package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/supplier-catalog/internal/app"
	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
	"github.com/lueurxax/supplier-catalog/internal/platform/config"
	"github.com/lueurxax/supplier-catalog/internal/process/pipeline"
	db "github.com/lueurxax/supplier-catalog/internal/storage"
)

// Process exit codes.
const (
	exitOK       = 0
	exitSetup    = 1
	exitFailed   = 2
	exitRejected = 3
)

type runFlags struct {
	trigger       string
	source        string
	chatID        string
	reason        string
	pageSize      int
	lookbackHours int
}

func main() {
	os.Exit(run())
}

func run() int {
	mode := flag.String("mode", config.ModeRun, "Service mode (run, bot, reader, server, scheduler, dedup, migrate)")

	var rf runFlags

	flag.StringVar(&rf.trigger, "trigger", string(domain.TriggerManual), "Run trigger (manual, cron, backfill)")
	flag.StringVar(&rf.source, "source", string(domain.SourceAll), "Source family (telegram, whatsapp, all)")
	flag.StringVar(&rf.chatID, "chat", "", "Restrict the run to one chat id")
	flag.StringVar(&rf.reason, "reason", "", "Free-form run reason")
	flag.IntVar(&rf.pageSize, "page-size", 0, "Batch page size override")
	flag.IntVar(&rf.lookbackHours, "lookback-hours", 0, "Lookback window override in hours")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("failed to load config: %v", err)

		return exitSetup
	}

	logger := newLogger(cfg.AppEnv)

	if err := cfg.Validate(*mode); err != nil {
		logger.Error().Err(err).Str("mode", *mode).Msg("invalid configuration")

		return exitSetup
	}

	params, err := rf.params()
	if *mode == config.ModeRun && err != nil {
		logger.Error().Err(err).Msg("invalid run flags")

		return exitSetup
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCfg := cfg.Database()

	database, err := db.NewWithOptions(ctx, dbCfg.PostgresDSN, db.PoolOptions{
		MaxConns:          dbCfg.MaxConnections,
		MinConns:          dbCfg.MinConnections,
		MaxConnIdleTime:   dbCfg.MaxConnIdleTime,
		MaxConnLifetime:   dbCfg.MaxConnLifetime,
		HealthCheckPeriod: dbCfg.HealthCheckPeriod,
	}, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")

		return exitSetup
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to run migrations")

		return exitSetup
	}

	application := app.New(cfg, database, &logger)

	switch *mode {
	case config.ModeMigrate:
		logger.Info().Msg("migrations applied")

		return exitOK
	case config.ModeRun:
		report, err := application.RunPipeline(ctx, params)

		return reportRun(&logger, report, err)
	case config.ModeDedup:
		removed, err := application.RunDedup(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("dedup failed")

			return exitFailed
		}

		logger.Info().Int("removed", len(removed)).Msg("dedup completed")

		return exitOK
	case config.ModeServer:
		return serviceExit(&logger, application.RunServer(ctx))
	case config.ModeBot, config.ModeReader, config.ModeScheduler:
		go func() {
			if err := application.StartHealthServer(ctx); err != nil {
				logger.Error().Err(err).Msg("health check server error")
			}
		}()

		return serviceExit(&logger, runService(ctx, application, *mode))
	default:
		logger.Error().Msgf("Usage: %s -mode=[run|bot|reader|server|scheduler|dedup|migrate]", os.Args[0])

		return exitSetup
	}
}

func runService(ctx context.Context, application *app.App, mode string) error {
	switch mode {
	case config.ModeBot:
		return application.RunBot(ctx)
	case config.ModeReader:
		return application.RunReader(ctx)
	default:
		return application.RunScheduler(ctx)
	}
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func (rf runFlags) params() (pipeline.Params, error) {
	trigger, ok := domain.ParseTrigger(rf.trigger)
	if !ok {
		return pipeline.Params{}, fmt.Errorf("%w: unknown trigger %q", apperrors.ErrInvalidInput, rf.trigger)
	}

	source, ok := domain.ParseSourceFamily(rf.source)
	if !ok {
		return pipeline.Params{}, fmt.Errorf("%w: unknown source %q", apperrors.ErrInvalidInput, rf.source)
	}

	params := pipeline.Params{
		Trigger:       trigger,
		Source:        source,
		ChatID:        rf.chatID,
		Reason:        rf.reason,
		PageSize:      rf.pageSize,
		LookbackHours: rf.lookbackHours,
	}

	return params, params.Validate()
}

// exitCode maps a run outcome to the process exit code. A run that was never
// admitted and not rejected failed during setup.
func exitCode(report pipeline.Report, err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, apperrors.ErrRunRejected):
		return exitRejected
	case report.Run.ID == "":
		return exitSetup
	default:
		return exitFailed
	}
}

func reportRun(logger *zerolog.Logger, report pipeline.Report, err error) int {
	code := exitCode(report, err)

	event := logger.Info()
	if code != exitOK {
		event = logger.Error().Err(err)
	}

	event.Str(pipeline.LogFieldRunID, report.Run.ID).
		Int("batches", report.Batches).
		Int("messages_read", report.Counters.MessagesRead).
		Int("groups_formed", report.Counters.GroupsFormed).
		Int("products_created", report.Counters.ProductsCreated).
		Int("exit_code", code).
		Msg("run finished")

	return code
}

func serviceExit(logger *zerolog.Logger, err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		logger.Info().Msg("application stopped")

		return exitOK
	}

	logger.Error().Err(err).Msg("application error")

	return exitFailed
}
