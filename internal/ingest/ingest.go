// Package ingest normalizes inbound supplier messages from every provider
// and writes them to the message store. Writes are idempotent on message id.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
	"github.com/lueurxax/supplier-catalog/internal/platform/observability"
)

const (
	maxFutureSkew = 24 * time.Hour

	logKeyMsgID  = "msg_id"
	logKeySource = "source"
)

var validate = validator.New()

// Record is a provider message before normalization.
type Record struct {
	Source    domain.SourceFamily `validate:"required,oneof=telegram whatsapp"`
	NativeID  string              `validate:"required,max=128"`
	ChatID    string              `validate:"required,max=128"`
	SenderID  string              `validate:"required,max=128"`
	Timestamp time.Time           `validate:"required"`
	Kind      string              `validate:"required,oneof=text image other"`
	Text      string              `validate:"max=16384"`
	MediaRef  string              `validate:"max=2048"`
}

// MessageID builds the store id of a provider message. Ids are unique per
// source and chat, so the same native id in two chats never collides.
func MessageID(source domain.SourceFamily, chatID, nativeID string) string {
	return fmt.Sprintf("%s:%s:%s", source, chatID, nativeID)
}

// Normalize validates r and converts it to a ChatMessage.
func Normalize(r Record, now time.Time) (domain.ChatMessage, error) {
	r.NativeID = strings.TrimSpace(r.NativeID)
	r.ChatID = strings.TrimSpace(r.ChatID)
	r.SenderID = strings.TrimSpace(r.SenderID)
	r.Kind = strings.ToLower(strings.TrimSpace(r.Kind))
	r.MediaRef = strings.TrimSpace(r.MediaRef)
	r.Text = strings.ToValidUTF8(strings.ReplaceAll(r.Text, "\x00", ""), "")

	if err := validate.Struct(r); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	if r.Timestamp.IsZero() {
		return domain.ChatMessage{}, fmt.Errorf("%w: missing timestamp", apperrors.ErrInvalidInput)
	}

	if r.Timestamp.After(now.Add(maxFutureSkew)) {
		return domain.ChatMessage{}, fmt.Errorf("%w: timestamp %s is in the future", apperrors.ErrInvalidInput, r.Timestamp.Format(time.RFC3339))
	}

	kind, _ := domain.ParseMessageKind(r.Kind)

	return domain.ChatMessage{
		ID:        MessageID(r.Source, r.ChatID, r.NativeID),
		Source:    r.Source,
		ChatID:    r.ChatID,
		SenderID:  r.SenderID,
		Timestamp: r.Timestamp.UTC(),
		Kind:      kind,
		Text:      r.Text,
		MediaRef:  r.MediaRef,
	}, nil
}

// Store is the message sink.
type Store interface {
	SaveMessage(ctx context.Context, msg domain.ChatMessage) (bool, error)
}

// Ingester normalizes and stores records.
type Ingester struct {
	store  Store
	logger *zerolog.Logger
	now    func() time.Time
}

// New creates an ingester.
func New(store Store, logger *zerolog.Logger) *Ingester {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Ingester{store: store, logger: logger, now: time.Now}
}

// Ingest stores r. It returns false without error when the id already
// exists, and ErrInvalidInput for a malformed record, which callers skip.
func (i *Ingester) Ingest(ctx context.Context, r Record) (bool, error) {
	msg, err := Normalize(r, i.now())
	if err != nil {
		observability.MessagesRejected.WithLabelValues(sourceLabel(r.Source)).Inc()
		i.logger.Debug().Err(err).Str(logKeySource, string(r.Source)).Msg("inbound record rejected")

		return false, err
	}

	inserted, err := i.store.SaveMessage(ctx, msg)
	if err != nil {
		return false, fmt.Errorf("save message %s: %w", msg.ID, err)
	}

	if inserted {
		observability.MessagesIngested.WithLabelValues(string(msg.Source)).Inc()
		i.logger.Debug().Str(logKeyMsgID, msg.ID).Str("kind", string(msg.Kind)).Msg("message ingested")
	}

	return inserted, nil
}

func sourceLabel(s domain.SourceFamily) string {
	if s == "" {
		return "unknown"
	}

	return string(s)
}
