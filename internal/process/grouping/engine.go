package grouping

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	"github.com/lueurxax/supplier-catalog/internal/core/ports"
	"github.com/lueurxax/supplier-catalog/internal/platform/observability"
)

// Grouping modes.
const (
	ModeRules = "rules"
	ModeLLM   = "llm"
)

const (
	logKeyChatID   = "chat_id"
	logKeyAccepted = "accepted"
	logKeyRejected = "rejected"
	logKeyDropped  = "dropped_ids"
)

// Engine selects the grouping path. In LLM mode, proposals are re-validated
// and whatever they do not cover falls through to the rule-based grouper.
type Engine struct {
	cfg      Config
	mode     string
	rules    *RuleGrouper
	enricher ports.Enricher
	logger   *zerolog.Logger
}

// NewEngine creates a grouping engine. A nil enricher forces rules mode.
func NewEngine(cfg Config, mode string, enricher ports.Enricher, logger *zerolog.Logger) *Engine {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if mode != ModeLLM || enricher == nil {
		mode = ModeRules
	}

	cfg = cfg.normalized()

	return &Engine{
		cfg:      cfg,
		mode:     mode,
		rules:    NewRuleGrouper(cfg),
		enricher: enricher,
		logger:   logger,
	}
}

// Mode returns the effective grouping mode.
func (e *Engine) Mode() string {
	return e.mode
}

// Group partitions msgs into groups, skipped and tail messages.
func (e *Engine) Group(ctx context.Context, msgs []domain.ChatMessage) Result {
	var res Result

	if e.mode == ModeRules {
		res = e.rules.Group(msgs)
	} else {
		for _, chat := range partitionByChat(msgs) {
			res.merge(e.groupChatWithLLM(ctx, chat))
		}

		res.sort()
	}

	for _, g := range res.Groups {
		observability.GroupsFormed.WithLabelValues(string(g.Provenance)).Inc()
	}

	return res
}

func (e *Engine) groupChatWithLLM(ctx context.Context, chat []domain.ChatMessage) Result {
	var accepted []domain.MessageGroup

	for start := 0; start < len(chat); start += e.cfg.MaxLLMMessages {
		chunk := chat[start:min(start+e.cfg.MaxLLMMessages, len(chat))]

		proposals, err := e.enricher.GroupMessages(ctx, chunk)
		if err != nil {
			e.logger.Warn().Err(err).Str(logKeyChatID, chunk[0].ChatID).Msg("LLM grouping failed, using rule-based grouping for chat")

			return e.rules.Group(chat)
		}

		v := ValidateExternal(e.cfg, chunk, proposals)

		e.logger.Debug().
			Str(logKeyChatID, chunk[0].ChatID).
			Int(logKeyAccepted, len(v.Accepted)).
			Interface(logKeyRejected, v.Rejected).
			Int(logKeyDropped, len(v.DroppedIDs)).
			Msg("LLM grouping validated")

		accepted = append(accepted, v.Accepted...)
	}

	covered := Validation{Accepted: accepted}.covered()

	remaining := make([]domain.ChatMessage, 0, len(chat))

	for _, m := range chat {
		if _, ok := covered[m.ID]; !ok {
			remaining = append(remaining, m)
		}
	}

	res := e.rules.Group(remaining)
	res.Groups = append(accepted, res.Groups...)
	demoteBuriedTail(&res)

	return res
}

// demoteBuriedTail moves tail messages that precede a later group of the same
// sender into Skipped. The rule pass only sees its own groups.
func demoteBuriedTail(res *Result) {
	lastEnd := make(map[timelineKey]domain.ChatMessage)

	for _, g := range res.Groups {
		end := g.Messages[len(g.Messages)-1]
		k := keyOf(end)

		if cur, ok := lastEnd[k]; !ok || lessMessage(cur, end) {
			lastEnd[k] = end
		}
	}

	tail := res.Tail[:0]

	for _, m := range res.Tail {
		if end, ok := lastEnd[keyOf(m)]; ok && lessMessage(m, end) {
			res.Skipped = append(res.Skipped, m)

			continue
		}

		tail = append(tail, m)
	}

	res.Tail = tail
}

type chatKey struct {
	source domain.SourceFamily
	chatID string
}

// partitionByChat splits msgs into chronological per-chat slices.
func partitionByChat(msgs []domain.ChatMessage) [][]domain.ChatMessage {
	index := make(map[chatKey]int)

	var chats [][]domain.ChatMessage

	for _, m := range msgs {
		k := chatKey{source: m.Source, chatID: m.ChatID}

		i, ok := index[k]
		if !ok {
			i = len(chats)
			index[k] = i
			chats = append(chats, nil)
		}

		chats[i] = append(chats[i], m)
	}

	for _, c := range chats {
		sortMessages(c)
	}

	return chats
}
