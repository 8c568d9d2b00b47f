package grouping

import (
	"time"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return baseTime.Add(time.Duration(sec) * time.Second)
}

func img(id, sender string, sec int) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        id,
		Source:    domain.SourceTelegram,
		ChatID:    "chat-1",
		SenderID:  sender,
		Timestamp: at(sec),
		Kind:      domain.KindImage,
		MediaRef:  "tgfile:" + id,
	}
}

func txt(id, sender string, sec int, text string) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        id,
		Source:    domain.SourceTelegram,
		ChatID:    "chat-1",
		SenderID:  sender,
		Timestamp: at(sec),
		Kind:      domain.KindText,
		Text:      text,
	}
}

func other(id, sender string, sec int) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        id,
		Source:    domain.SourceTelegram,
		ChatID:    "chat-1",
		SenderID:  sender,
		Timestamp: at(sec),
		Kind:      domain.KindOther,
	}
}

func ids(msgs []domain.ChatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}

	return out
}

func groupIDs(groups []domain.MessageGroup) [][]string {
	out := make([][]string, len(groups))
	for i, g := range groups {
		out[i] = g.MessageIDs()
	}

	return out
}
