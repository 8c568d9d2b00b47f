// Package telegrambot long-polls the Telegram Bot API. Messages from supplier
// chats are normalized and stored; admins drive the pipeline with commands.
package telegrambot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
	"github.com/lueurxax/supplier-catalog/internal/core/ports"
	"github.com/lueurxax/supplier-catalog/internal/ingest"
	"github.com/lueurxax/supplier-catalog/internal/media"
	"github.com/lueurxax/supplier-catalog/internal/platform/htmlutils"
	"github.com/lueurxax/supplier-catalog/internal/platform/worker"
	"github.com/lueurxax/supplier-catalog/internal/process/pipeline"
)

const (
	updateTimeoutSeconds = 60
	replyLimit           = 4000

	settingAdminIDs = "admin_ids"

	logKeyUserID  = "user_id"
	logKeyChatID  = "chat_id"
	logKeyCommand = "command"
	logKeyMsgID   = "msg_id"
)

// Ingester stores normalized supplier messages.
type Ingester interface {
	Ingest(ctx context.Context, r ingest.Record) (bool, error)
}

// RunStarter executes a pipeline run.
type RunStarter interface {
	Run(ctx context.Context, params pipeline.Params) (pipeline.Report, error)
}

// RunLister reports run records.
type RunLister interface {
	Running(ctx context.Context) ([]domain.RunRecord, error)
	Recent(ctx context.Context, limit int) ([]domain.RunRecord, error)
}

// Cleaner removes duplicate products.
type Cleaner interface {
	Cleanup(ctx context.Context) ([]string, error)
}

// Deps are the services the bot drives.
type Deps struct {
	Ingester Ingester
	Runner   RunStarter
	Runs     RunLister
	Cleaner  Cleaner
	Settings ports.SettingsReader
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	adminIDs []int64
	deps     Deps
	api      *tgbotapi.BotAPI
	sender   sender
	wg       sync.WaitGroup
	logger   *zerolog.Logger
}

// New connects to the Bot API with token.
func New(token string, adminIDs []int64, deps Deps, logger *zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect bot api: %w", err)
	}

	return newBot(api, api, adminIDs, deps, logger), nil
}

// NewWithAPI creates a bot on an existing Bot API client.
func NewWithAPI(api *tgbotapi.BotAPI, adminIDs []int64, deps Deps, logger *zerolog.Logger) *Bot {
	return newBot(api, api, adminIDs, deps, logger)
}

func newBot(api *tgbotapi.BotAPI, s sender, adminIDs []int64, deps Deps, logger *zerolog.Logger) *Bot {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Bot{
		adminIDs: adminIDs,
		deps:     deps,
		api:      api,
		sender:   s,
		logger:   logger,
	}
}

// API exposes the Bot API client, which also resolves tgfile media refs.
func (b *Bot) API() *tgbotapi.BotAPI {
	return b.api
}

// Run polls updates until ctx is canceled, then waits for command runs to finish.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeoutSeconds

	updates := b.api.GetUpdatesChan(u)

	defer func() {
		b.api.StopReceivingUpdates()
		b.wg.Wait()
	}()

	b.logger.Info().Str("bot", b.api.Self.UserName).Msg("bot started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}

			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}

	if msg == nil {
		return
	}

	if msg.IsCommand() {
		if msg.From == nil || !b.isAdmin(ctx, msg.From.ID) {
			b.logger.Warn().Int64(logKeyChatID, msg.Chat.ID).Str(logKeyCommand, msg.Command()).Msg("command from non-admin ignored")

			return
		}

		b.handleCommand(ctx, msg)

		return
	}

	b.ingestMessage(ctx, msg)
}

func (b *Bot) ingestMessage(ctx context.Context, msg *tgbotapi.Message) {
	record, ok := recordFromMessage(msg)
	if !ok {
		return
	}

	inserted, err := b.deps.Ingester.Ingest(ctx, record)
	if err != nil {
		event := b.logger.Error()
		if errors.Is(err, apperrors.ErrInvalidInput) {
			event = b.logger.Debug()
		}

		event.Err(err).Int64(logKeyChatID, msg.Chat.ID).Int(logKeyMsgID, msg.MessageID).Msg("failed to ingest message")

		return
	}

	if inserted {
		b.logger.Debug().Int64(logKeyChatID, msg.Chat.ID).Int(logKeyMsgID, msg.MessageID).Str("kind", record.Kind).Msg("message ingested")
	}
}

// recordFromMessage maps a Bot API message to an ingestion record. Service
// messages without text or media are dropped.
func recordFromMessage(msg *tgbotapi.Message) (ingest.Record, bool) {
	if msg == nil || msg.Chat == nil {
		return ingest.Record{}, false
	}

	record := ingest.Record{
		Source:    domain.SourceTelegram,
		NativeID:  strconv.Itoa(msg.MessageID),
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		SenderID:  senderID(msg),
		Timestamp: msg.Time(),
		Text:      msg.Text,
	}

	if record.Text == "" {
		record.Text = msg.Caption
	}

	switch {
	case len(msg.Photo) > 0:
		record.Kind = string(domain.KindImage)
		record.MediaRef = media.SchemeTelegramFile + largestPhoto(msg.Photo).FileID
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		record.Kind = string(domain.KindImage)
		record.MediaRef = media.SchemeTelegramFile + msg.Document.FileID
	case hasOtherMedia(msg):
		record.Kind = string(domain.KindOther)
	case strings.TrimSpace(msg.Text) != "":
		record.Kind = string(domain.KindText)
	default:
		return ingest.Record{}, false
	}

	return record, true
}

func senderID(msg *tgbotapi.Message) string {
	switch {
	case msg.From != nil:
		return strconv.FormatInt(msg.From.ID, 10)
	case msg.SenderChat != nil:
		return strconv.FormatInt(msg.SenderChat.ID, 10)
	default:
		return strconv.FormatInt(msg.Chat.ID, 10)
	}
}

func largestPhoto(sizes []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := sizes[0]

	for _, p := range sizes[1:] {
		if p.Width*p.Height > best.Width*best.Height {
			best = p
		}
	}

	return best
}

func hasOtherMedia(msg *tgbotapi.Message) bool {
	return msg.Document != nil || msg.Video != nil || msg.Animation != nil || msg.Audio != nil ||
		msg.Voice != nil || msg.VideoNote != nil || msg.Sticker != nil || msg.Contact != nil ||
		msg.Location != nil || msg.Poll != nil
}

func (b *Bot) isAdmin(ctx context.Context, userID int64) bool {
	for _, id := range b.getAdmins(ctx) {
		if id == userID {
			return true
		}
	}

	return false
}

func (b *Bot) getAdmins(ctx context.Context) []int64 {
	admins := make([]int64, len(b.adminIDs))
	copy(admins, b.adminIDs)

	if b.deps.Settings == nil {
		return admins
	}

	var extraAdmins []int64
	if err := b.deps.Settings.GetSetting(ctx, settingAdminIDs, &extraAdmins); err == nil {
		admins = append(admins, extraAdmins...)
	}

	return admins
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	for _, part := range htmlutils.SplitHTML(text, replyLimit) {
		reply := tgbotapi.NewMessage(msg.Chat.ID, part)
		reply.ParseMode = tgbotapi.ModeHTML

		if _, err := b.sender.Send(reply); err != nil {
			b.logger.Error().Err(err).Msg("failed to send reply")
		}
	}
}

// goAsync runs fn outside the update loop; Run waits for it on shutdown.
func (b *Bot) goAsync(fn func()) {
	b.wg.Add(1)

	go func() {
		defer b.wg.Done()
		defer worker.RecoverPanic(b.logger, "bot command")

		fn()
	}()
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}
