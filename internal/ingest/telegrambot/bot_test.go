package telegrambot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
	"github.com/lueurxax/supplier-catalog/internal/core/ports/mocks"
	"github.com/lueurxax/supplier-catalog/internal/ingest"
	"github.com/lueurxax/supplier-catalog/internal/process/coordinator"
	"github.com/lueurxax/supplier-catalog/internal/process/dedup"
	"github.com/lueurxax/supplier-catalog/internal/process/pipeline"
)

const adminID = 1001

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := c.(tgbotapi.MessageConfig); ok {
		s.sent = append(s.sent, m.Text)
	}

	return tgbotapi.Message{}, nil
}

func (s *fakeSender) all() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return strings.Join(s.sent, "\n")
}

type runFunc func(ctx context.Context, params pipeline.Params) (pipeline.Report, error)

func (f runFunc) Run(ctx context.Context, params pipeline.Params) (pipeline.Report, error) {
	return f(ctx, params)
}

func message(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 42,
		From:      &tgbotapi.User{ID: 777},
		Date:      int(time.Now().Add(-time.Minute).Unix()),
		Chat:      &tgbotapi.Chat{ID: -100123, Type: "supergroup"},
		Text:      text,
	}
}

func command(from int64, text string) *tgbotapi.Message {
	msg := message(text)
	msg.From = &tgbotapi.User{ID: from}
	msg.Chat = &tgbotapi.Chat{ID: from, Type: "private"}

	name := strings.Fields(text)[0]
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}}

	return msg
}

func TestRecordFromMessage(t *testing.T) {
	tests := []struct {
		name     string
		msg      func() *tgbotapi.Message
		wantOK   bool
		wantKind string
		wantRef  string
		wantText string
		sender   string
	}{
		{
			name:     "text",
			msg:      func() *tgbotapi.Message { return message("Silk dress, 4500 RUB") },
			wantOK:   true,
			wantKind: "text",
			wantText: "Silk dress, 4500 RUB",
			sender:   "777",
		},
		{
			name: "photo uses largest size and caption",
			msg: func() *tgbotapi.Message {
				m := message("")
				m.Caption = "new arrival"
				m.Photo = []tgbotapi.PhotoSize{
					{FileID: "small", Width: 90, Height: 90},
					{FileID: "large", Width: 1280, Height: 960},
					{FileID: "medium", Width: 320, Height: 240},
				}

				return m
			},
			wantOK:   true,
			wantKind: "image",
			wantRef:  "tgfile:large",
			wantText: "new arrival",
			sender:   "777",
		},
		{
			name: "image document",
			msg: func() *tgbotapi.Message {
				m := message("")
				m.Document = &tgbotapi.Document{FileID: "doc1", MimeType: "image/png"}

				return m
			},
			wantOK:   true,
			wantKind: "image",
			wantRef:  "tgfile:doc1",
			sender:   "777",
		},
		{
			name: "pdf document is other",
			msg: func() *tgbotapi.Message {
				m := message("")
				m.Document = &tgbotapi.Document{FileID: "doc2", MimeType: "application/pdf"}

				return m
			},
			wantOK:   true,
			wantKind: "other",
			sender:   "777",
		},
		{
			name: "video with caption is other",
			msg: func() *tgbotapi.Message {
				m := message("")
				m.Caption = "look"
				m.Video = &tgbotapi.Video{FileID: "v1"}

				return m
			},
			wantOK:   true,
			wantKind: "other",
			wantText: "look",
			sender:   "777",
		},
		{
			name: "channel post uses sender chat",
			msg: func() *tgbotapi.Message {
				m := message("price list")
				m.From = nil
				m.SenderChat = &tgbotapi.Chat{ID: -100999}

				return m
			},
			wantOK:   true,
			wantKind: "text",
			wantText: "price list",
			sender:   "-100999",
		},
		{
			name: "service message dropped",
			msg: func() *tgbotapi.Message {
				m := message("")
				m.NewChatTitle = "Suppliers"

				return m
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := recordFromMessage(tt.msg())
			require.Equal(t, tt.wantOK, ok)

			if !ok {
				return
			}

			assert.Equal(t, domain.SourceTelegram, rec.Source)
			assert.Equal(t, "42", rec.NativeID)
			assert.Equal(t, "-100123", rec.ChatID)
			assert.Equal(t, tt.sender, rec.SenderID)
			assert.Equal(t, tt.wantKind, rec.Kind)
			assert.Equal(t, tt.wantRef, rec.MediaRef)
			assert.Equal(t, tt.wantText, rec.Text)
		})
	}
}

func TestParseRunArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     string
		want     pipeline.Params
		wantErr  bool
		wantBase error
	}{
		{
			name: "defaults",
			want: pipeline.Params{Trigger: domain.TriggerManual, Source: domain.SourceAll},
		},
		{
			name: "all arguments",
			args: "whatsapp 50 72",
			want: pipeline.Params{Trigger: domain.TriggerManual, Source: domain.SourceWhatsApp, PageSize: 50, LookbackHours: 72},
		},
		{
			name: "source only",
			args: " Telegram ",
			want: pipeline.Params{Trigger: domain.TriggerManual, Source: domain.SourceTelegram},
		},
		{name: "unknown source", args: "signal", wantErr: true, wantBase: errUsage},
		{name: "bad page size", args: "all ten", wantErr: true, wantBase: errUsage},
		{name: "negative lookback", args: "all 10 -1", wantErr: true, wantBase: errUsage},
		{name: "too many arguments", args: "all 10 10 10", wantErr: true, wantBase: errUsage},
		{name: "page size over limit", args: "all 5000", wantErr: true, wantBase: apperrors.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRunArgs(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantBase)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatRunResult(t *testing.T) {
	rejected := &coordinator.RejectionError{ConflictRunID: "run-1", Reason: coordinator.ReasonManualActive}
	assert.Contains(t, formatRunResult(pipeline.Report{}, rejected), "a manual run is active")
	assert.Contains(t, formatRunResult(pipeline.Report{}, rejected), "run-1")

	assert.Contains(t, formatRunResult(pipeline.Report{}, errors.New("db <down>")), "db &lt;down&gt;")

	report := pipeline.Report{
		Run:      domain.RunRecord{ID: "run-2"},
		Counters: domain.RunCounters{MessagesRead: 4, GroupsFormed: 1, ProductsCreated: 1},
	}
	text := formatRunResult(report, nil)
	assert.Contains(t, text, "run-2")
	assert.Contains(t, text, "Products created: <code>1</code>")
}

type harness struct {
	bot     *Bot
	sender  *fakeSender
	catalog *mocks.CatalogStore
	runs    *mocks.RunStore
	params  chan pipeline.Params
}

func newHarness(t *testing.T, run runFunc) *harness {
	t.Helper()

	h := &harness{
		sender:  &fakeSender{},
		catalog: mocks.NewCatalogStore(),
		runs:    mocks.NewRunStore(),
		params:  make(chan pipeline.Params, 1),
	}

	if run == nil {
		run = func(_ context.Context, p pipeline.Params) (pipeline.Report, error) {
			h.params <- p

			return pipeline.Report{Run: domain.RunRecord{ID: "run-ok"}}, nil
		}
	}

	settings := mocks.NewSettingsStore()
	settings.Set(settingAdminIDs, []int64{2002})

	h.bot = newBot(nil, h.sender, []int64{adminID}, Deps{
		Ingester: ingest.New(h.catalog, nil),
		Runner:   run,
		Runs:     coordinator.New(h.runs, coordinator.Config{}, nil),
		Cleaner:  dedup.NewCleaner(h.catalog, nil),
		Settings: settings,
	}, nil)

	return h
}

func TestHandleUpdate_IngestsSupplierMessages(t *testing.T) {
	h := newHarness(t, nil)

	h.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: message("Silk dress")})
	h.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: message("Silk dress")})

	got, ok := h.catalog.Message("telegram:-100123:42")
	require.True(t, ok)
	assert.Equal(t, domain.KindText, got.Kind)
	assert.Equal(t, "777", got.SenderID)
	assert.Empty(t, h.sender.all())
}

func TestHandleUpdate_IgnoresCommandsFromStrangers(t *testing.T) {
	h := newHarness(t, nil)

	h.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: command(555, "/run")})
	h.bot.wg.Wait()

	assert.Empty(t, h.sender.all())
	assert.Empty(t, h.params)

	_, ok := h.catalog.Message("telegram:555:42")
	assert.False(t, ok, "commands are never ingested")
}

func TestHandleUpdate_RunCommand(t *testing.T) {
	h := newHarness(t, nil)

	h.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: command(adminID, "/run telegram 20 12")})
	h.bot.wg.Wait()

	p := <-h.params
	assert.Equal(t, domain.TriggerManual, p.Trigger)
	assert.Equal(t, domain.SourceTelegram, p.Source)
	assert.Equal(t, 20, p.PageSize)
	assert.Equal(t, 12, p.LookbackHours)
	assert.Contains(t, p.Reason, "1001")
	assert.Contains(t, h.sender.all(), "run-ok")
}

func TestHandleUpdate_RunCommandRejected(t *testing.T) {
	h := newHarness(t, func(context.Context, pipeline.Params) (pipeline.Report, error) {
		return pipeline.Report{}, &coordinator.RejectionError{Reason: coordinator.ReasonCronActive, ConflictRunID: "cron-1"}
	})

	h.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: command(adminID, "/run")})
	h.bot.wg.Wait()

	assert.Contains(t, h.sender.all(), "Run rejected: a scheduled run is active")
}

func TestHandleUpdate_AdminFromSettings(t *testing.T) {
	h := newHarness(t, nil)

	h.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: command(2002, "/status")})

	assert.Contains(t, h.sender.all(), "Running:</b> <code>none</code>")
}

func TestHandleUpdate_StatusListsRunningRuns(t *testing.T) {
	h := newHarness(t, nil)
	h.runs.Seed(domain.RunRecord{
		ID:           "0123456789abcdef",
		Status:       domain.RunStatusRunning,
		StartedAt:    time.Now(),
		TriggeredBy:  domain.TriggerCron,
		Source:       domain.SourceWhatsApp,
		ExclusionKey: domain.ExclusionKey(domain.TriggerCron, domain.SourceWhatsApp),
	})

	h.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: command(adminID, "/status")})

	text := h.sender.all()
	assert.Contains(t, text, "<code>01234567</code> cron/whatsapp")
}

func TestHandleUpdate_DedupCommand(t *testing.T) {
	h := newHarness(t, nil)
	base := time.Now().Add(-time.Hour)
	h.catalog.SeedProduct(domain.Product{ID: "p1", Fingerprint: "fp", IsActive: true, CreatedAt: base})
	h.catalog.SeedProduct(domain.Product{ID: "p2", Fingerprint: "fp", IsActive: true, CreatedAt: base.Add(time.Minute)})

	h.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: command(adminID, "/dedup")})

	assert.Contains(t, h.sender.all(), "Removed <code>1</code> duplicate products")
}
