// Package domain holds the core types shared by ingestion, the batch pipeline
// and storage: chat messages, message groups, products and run records.
package domain

import (
	"strings"
	"time"
)

// MessageKind is the provider-independent message type.
type MessageKind string

// Message kinds.
const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindOther MessageKind = "other"
)

// ParseMessageKind maps a kind string to a MessageKind. Unknown kinds return false.
func ParseMessageKind(s string) (MessageKind, bool) {
	switch MessageKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindText:
		return KindText, true
	case KindImage:
		return KindImage, true
	case KindOther:
		return KindOther, true
	default:
		return "", false
	}
}

// SourceFamily identifies the chat provider a message came from.
// It is also the exclusion key family for scheduled runs.
type SourceFamily string

// Source families.
const (
	SourceTelegram SourceFamily = "telegram"
	SourceWhatsApp SourceFamily = "whatsapp"
	SourceAll      SourceFamily = "all"
)

// ParseSourceFamily parses a source filter. Empty input means SourceAll.
func ParseSourceFamily(s string) (SourceFamily, bool) {
	switch SourceFamily(strings.ToLower(strings.TrimSpace(s))) {
	case "", SourceAll:
		return SourceAll, true
	case SourceTelegram:
		return SourceTelegram, true
	case SourceWhatsApp:
		return SourceWhatsApp, true
	default:
		return "", false
	}
}

// Matches reports whether a message from family f passes the filter.
func (f SourceFamily) Matches(other SourceFamily) bool {
	return f == SourceAll || f == "" || f == other
}

// ChatMessage is an inbound supplier message. Everything except Processed and
// AssignedGroupID is immutable after ingestion.
type ChatMessage struct {
	ID              string
	Source          SourceFamily
	ChatID          string
	SenderID        string
	Timestamp       time.Time
	Kind            MessageKind
	Text            string
	MediaRef        string
	Processed       bool
	AssignedGroupID string
	CreatedAt       time.Time
}

// IsTextTyped reports whether the message is of a text type, regardless of payload.
func (m ChatMessage) IsTextTyped() bool {
	return m.Kind == KindText
}

// HasDescriptiveText reports whether the message carries non-blank text or caption.
func (m ChatMessage) HasDescriptiveText() bool {
	return strings.TrimSpace(m.Text) != ""
}

// IsImageEligible reports whether the message can anchor a group: an image,
// or a text message that carries an attachment.
func (m ChatMessage) IsImageEligible() bool {
	return m.MediaRef != "" && (m.Kind == KindImage || m.Kind == KindText)
}
