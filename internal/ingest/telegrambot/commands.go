package telegrambot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
	"github.com/lueurxax/supplier-catalog/internal/process/coordinator"
	"github.com/lueurxax/supplier-catalog/internal/process/pipeline"
)

const recentRunsLimit = 5

var errUsage = errors.New("usage: /run [telegram|whatsapp|all] [pageSize] [lookbackHours]")

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	b.logger.Info().Str(logKeyCommand, msg.Command()).Int64(logKeyUserID, msg.From.ID).Msg("handling command")

	switch msg.Command() {
	case "start", "help":
		b.handleHelp(msg)
	case "run":
		b.handleRun(ctx, msg)
	case "status":
		b.handleStatus(ctx, msg)
	case "dedup":
		b.handleDedup(ctx, msg)
	default:
		b.reply(msg, "Unknown command. Use <code>/help</code>.")
	}
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) {
	b.reply(msg, "🧵 <b>Supplier catalog</b>\n\n"+
		"Messages posted in supplier chats are stored and turned into products by pipeline runs.\n\n"+
		"• <code>/run [telegram|whatsapp|all] [pageSize] [lookbackHours]</code> - Start a manual run\n"+
		"• <code>/status</code> - Running and recent runs\n"+
		"• <code>/dedup</code> - Delete duplicate products, keeping the earliest")
}

// parseRunArgs parses "/run [source] [pageSize] [lookbackHours]". Arguments
// are positional; any of them may be omitted from the end.
func parseRunArgs(args string) (pipeline.Params, error) {
	params := pipeline.Params{Trigger: domain.TriggerManual, Source: domain.SourceAll}
	fields := strings.Fields(args)

	if len(fields) > 3 {
		return params, errUsage
	}

	if len(fields) > 0 {
		source, ok := domain.ParseSourceFamily(fields[0])
		if !ok {
			return params, fmt.Errorf("unknown source %q: %w", fields[0], errUsage)
		}

		params.Source = source
	}

	if len(fields) > 1 {
		n, err := strconv.Atoi(fields[1])
		if err != nil || n <= 0 {
			return params, fmt.Errorf("invalid page size %q: %w", fields[1], errUsage)
		}

		params.PageSize = n
	}

	if len(fields) > 2 {
		n, err := strconv.Atoi(fields[2])
		if err != nil || n <= 0 {
			return params, fmt.Errorf("invalid lookback %q: %w", fields[2], errUsage)
		}

		params.LookbackHours = n
	}

	return params, params.Validate()
}

func (b *Bot) handleRun(ctx context.Context, msg *tgbotapi.Message) {
	params, err := parseRunArgs(msg.CommandArguments())
	if err != nil {
		b.reply(msg, "❌ "+html.EscapeString(err.Error()))

		return
	}

	params.Reason = fmt.Sprintf("bot command by %d", msg.From.ID)

	b.reply(msg, fmt.Sprintf("⏳ Starting manual run for <code>%s</code>...", html.EscapeString(string(params.Source))))

	b.goAsync(func() {
		report, err := b.deps.Runner.Run(ctx, params)
		b.reply(msg, formatRunResult(report, err))
	})
}

func formatRunResult(report pipeline.Report, err error) string {
	var rejection *coordinator.RejectionError

	switch {
	case errors.As(err, &rejection):
		text := "🚫 Run rejected: " + html.EscapeString(rejection.Reason)
		if rejection.ConflictRunID != "" {
			text += fmt.Sprintf(" (run <code>%s</code>)", html.EscapeString(rejection.ConflictRunID))
		}

		return text
	case errors.Is(err, apperrors.ErrRunRejected):
		return "🚫 Run rejected."
	case err != nil:
		return "❌ Run failed: " + html.EscapeString(err.Error())
	}

	c := report.Counters

	return fmt.Sprintf("✅ Run <code>%s</code> completed.\n"+
		"• Messages read: <code>%d</code>\n"+
		"• Groups formed: <code>%d</code>\n"+
		"• Products created: <code>%d</code>\n"+
		"• Products deleted: <code>%d</code>\n"+
		"• Messages skipped: <code>%d</code>",
		html.EscapeString(report.Run.ID), c.MessagesRead, c.GroupsFormed, c.ProductsCreated, c.ProductsDeleted, c.MessagesSkipped)
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message) {
	running, err := b.deps.Runs.Running(ctx)
	if err != nil {
		b.reply(msg, "❌ Error loading runs: "+html.EscapeString(err.Error()))

		return
	}

	recent, err := b.deps.Runs.Recent(ctx, recentRunsLimit)
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to load recent runs")
	}

	b.reply(msg, formatStatus(running, recent))
}

func formatStatus(running, recent []domain.RunRecord) string {
	var sb strings.Builder

	sb.WriteString("📊 <b>Pipeline Status</b>\n\n")

	if len(running) == 0 {
		sb.WriteString("• <b>Running:</b> <code>none</code>\n")
	} else {
		sb.WriteString(fmt.Sprintf("• <b>Running:</b> <code>%d</code>\n", len(running)))

		for _, r := range running {
			sb.WriteString(fmt.Sprintf("  <code>%s</code> %s/%s since %s\n",
				html.EscapeString(shortID(r.ID)), r.TriggeredBy, r.Source, formatTime(r.StartedAt)))
		}
	}

	if len(recent) > 0 {
		sb.WriteString("\n<b>Recent runs</b>\n")

		for _, r := range recent {
			line := fmt.Sprintf("• <code>%s</code> %s %s/%s, products %d",
				html.EscapeString(shortID(r.ID)), r.Status, r.TriggeredBy, r.Source, r.Counters.ProductsCreated)
			if r.Error != "" {
				line += ", <i>" + html.EscapeString(r.Error) + "</i>"
			}

			sb.WriteString(line + "\n")
		}
	}

	return sb.String()
}

func (b *Bot) handleDedup(ctx context.Context, msg *tgbotapi.Message) {
	removed, err := b.deps.Cleaner.Cleanup(ctx)
	if err != nil {
		b.reply(msg, "❌ Dedup cleanup failed: "+html.EscapeString(err.Error()))

		return
	}

	b.reply(msg, fmt.Sprintf("✅ Removed <code>%d</code> duplicate products.", len(removed)))
}

func shortID(id string) string {
	const n = 8

	if len(id) <= n {
		return id
	}

	return id[:n]
}
