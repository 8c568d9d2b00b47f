// Package whatsapp receives supplier messages from a WhatsApp gateway. The
// gateway posts batches of events; each event is normalized and stored, and
// malformed events are skipped without failing the batch.
package whatsapp

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
	"github.com/lueurxax/supplier-catalog/internal/ingest"
	"github.com/lueurxax/supplier-catalog/internal/platform/observability"
)

// Route is the path the webhook is mounted on.
const Route = "/webhook/whatsapp"

// SecretHeader carries the shared secret when one is configured.
const SecretHeader = "X-Webhook-Secret"

const (
	maxBodyBytes = 1 << 20

	logKeyEventID = "event_id"
	logKeyChatID  = "chat_id"
)

// ErrBadTimestamp indicates an event timestamp no layout could parse.
var ErrBadTimestamp = errors.New("unparseable timestamp")

// Event is one gateway message.
type Event struct {
	ID        string          `json:"id"`
	ChatID    string          `json:"chat_id"`
	Sender    string          `json:"sender"`
	Timestamp json.RawMessage `json:"timestamp"`
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Caption   string          `json:"caption"`
	MediaURL  string          `json:"media_url"`
	MimeType  string          `json:"mime_type"`
}

// Batch is the webhook body. A bare JSON array of events is accepted too.
type Batch struct {
	Events []Event `json:"events"`
}

// Result is the webhook response.
type Result struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

// Ingester stores normalized supplier messages.
type Ingester interface {
	Ingest(ctx context.Context, r ingest.Record) (bool, error)
}

// Handler serves the gateway webhook.
type Handler struct {
	ingester Ingester
	secret   string
	logger   *zerolog.Logger
}

// NewHandler creates the webhook handler. An empty secret disables the check.
func NewHandler(ingester Ingester, secret string, logger *zerolog.Logger) *Handler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Handler{ingester: ingester, secret: secret, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	if h.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), []byte(h.secret)) != 1 {
		h.logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("webhook call with a bad secret")
		http.Error(w, "unauthorized", http.StatusUnauthorized)

		return
	}

	events, err := decodeEvents(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "malformed body: "+err.Error(), http.StatusBadRequest)

		return
	}

	result, err := h.ingestAll(r.Context(), events)
	if err != nil {
		h.logger.Error().Err(err).Int("accepted", result.Accepted).Msg("webhook batch failed")
		http.Error(w, "store unavailable", http.StatusInternalServerError)

		return
	}

	h.logger.Info().Int("accepted", result.Accepted).Int("duplicates", result.Duplicates).
		Int("rejected", result.Rejected).Msg("webhook batch ingested")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result) //nolint:errcheck // client may have gone away
}

func decodeEvents(body io.Reader) ([]Event, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	raw = bytes.TrimSpace(raw)

	if len(raw) > 0 && raw[0] == '[' {
		var events []Event
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}

		return events, nil
	}

	var batch Batch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}

	return batch.Events, nil
}

// ingestAll stores events in order. Invalid events are counted and skipped;
// a store error aborts the batch so the gateway retries it.
func (h *Handler) ingestAll(ctx context.Context, events []Event) (Result, error) {
	var result Result

	for _, ev := range events {
		record, err := toRecord(ev)
		if err != nil {
			result.Rejected++
			observability.MessagesRejected.WithLabelValues(string(domain.SourceWhatsApp)).Inc()
			h.logger.Debug().Err(err).Str(logKeyEventID, ev.ID).Msg("skipping malformed event")

			continue
		}

		inserted, err := h.ingester.Ingest(ctx, record)

		switch {
		case errors.Is(err, apperrors.ErrInvalidInput):
			result.Rejected++
			h.logger.Debug().Err(err).Str(logKeyEventID, ev.ID).Str(logKeyChatID, ev.ChatID).Msg("skipping invalid event")
		case err != nil:
			return result, fmt.Errorf("event %s: %w", ev.ID, err)
		case inserted:
			result.Accepted++
		default:
			result.Duplicates++
		}
	}

	return result, nil
}

// toRecord maps a gateway event to an ingestion record.
func toRecord(ev Event) (ingest.Record, error) {
	ts, err := parseTimestamp(ev.Timestamp)
	if err != nil {
		return ingest.Record{}, err
	}

	text := ev.Text
	if text == "" {
		text = ev.Caption
	}

	record := ingest.Record{
		Source:    domain.SourceWhatsApp,
		NativeID:  ev.ID,
		ChatID:    ev.ChatID,
		SenderID:  ev.Sender,
		Timestamp: ts,
		Text:      text,
	}

	switch kind := strings.ToLower(strings.TrimSpace(ev.Type)); {
	case kind == "text" || kind == "chat" || (kind == "" && ev.MediaURL == ""):
		record.Kind = string(domain.KindText)
	case kind == "image" || (kind == "document" && strings.HasPrefix(ev.MimeType, "image/")):
		record.Kind = string(domain.KindImage)
		record.MediaRef = ev.MediaURL
	default:
		record.Kind = string(domain.KindOther)
	}

	return record, nil
}

// parseTimestamp accepts unix seconds or milliseconds, as numbers or
// strings, and any layout dateparse understands.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	value := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if value == "" || value == "null" {
		return time.Time{}, fmt.Errorf("%w: missing", ErrBadTimestamp)
	}

	ts, err := dateparse.ParseIn(value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, value)
	}

	return ts, nil
}
