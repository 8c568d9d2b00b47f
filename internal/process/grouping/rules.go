// Package grouping partitions chat messages into single-product groups. The
// rule-based grouper is the canonical policy; groups proposed by the
// enrichment adapter are re-validated against the same invariants.
package grouping

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
)

const (
	defaultTextWindow     = 60 * time.Second
	defaultMaxTypeChanges = 1
	defaultMinConfidence  = 0.5
	defaultMaxLLMMessages = 60

	ruleConfidence = 1.0
)

// Config holds the grouping thresholds.
type Config struct {
	// TextWindow is the largest gap between consecutive messages of a text run.
	TextWindow time.Duration
	// MaxTypeChanges is the largest number of image/text role switches an
	// external group may contain before it is split.
	MaxTypeChanges int
	// MinConfidence rejects external groups below it.
	MinConfidence float64
	// MaxLLMMessages bounds one grouping request.
	MaxLLMMessages int
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		TextWindow:     defaultTextWindow,
		MaxTypeChanges: defaultMaxTypeChanges,
		MinConfidence:  defaultMinConfidence,
		MaxLLMMessages: defaultMaxLLMMessages,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()

	if c.TextWindow <= 0 {
		c.TextWindow = d.TextWindow
	}

	if c.MaxTypeChanges <= 0 {
		c.MaxTypeChanges = d.MaxTypeChanges
	}

	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		c.MinConfidence = d.MinConfidence
	}

	if c.MaxLLMMessages <= 0 {
		c.MaxLLMMessages = d.MaxLLMMessages
	}

	return c
}

// Result is a partition of the input: every message lands in exactly one of
// the groups, Skipped (consume without a product) or Tail (leave unconsumed).
type Result struct {
	Groups  []domain.MessageGroup
	Skipped []domain.ChatMessage
	Tail    []domain.ChatMessage
}

func (r *Result) merge(o Result) {
	r.Groups = append(r.Groups, o.Groups...)
	r.Skipped = append(r.Skipped, o.Skipped...)
	r.Tail = append(r.Tail, o.Tail...)
}

// GroupedCount returns the number of messages inside groups.
func (r Result) GroupedCount() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Messages)
	}

	return n
}

func (r *Result) sort() {
	sort.SliceStable(r.Groups, func(i, j int) bool {
		return lessMessage(r.Groups[i].Messages[0], r.Groups[j].Messages[0])
	})
	sortMessages(r.Skipped)
	sortMessages(r.Tail)
}

// RuleGrouper implements the image-run then text-run policy.
type RuleGrouper struct {
	cfg Config
}

// NewRuleGrouper creates a rule-based grouper.
func NewRuleGrouper(cfg Config) *RuleGrouper {
	return &RuleGrouper{cfg: cfg.normalized()}
}

// Group partitions msgs, which may span chats and senders.
func (g *RuleGrouper) Group(msgs []domain.ChatMessage) Result {
	var res Result

	for _, timeline := range partitionBySender(msgs) {
		res.merge(g.groupTimeline(timeline))
	}

	res.sort()

	return res
}

type orphanRun struct {
	start    int
	messages []domain.ChatMessage
}

// groupTimeline scans one sender's chronological messages.
func (g *RuleGrouper) groupTimeline(timeline []domain.ChatMessage) Result {
	var (
		res        Result
		orphans    []orphanRun
		lastGroup  = -1
		candidates []domain.ChatMessage
	)

	for _, m := range timeline {
		if Classify(m) == TagNeither {
			res.Skipped = append(res.Skipped, m)

			continue
		}

		candidates = append(candidates, m)
	}

	tags := ClassifyAll(candidates)

	for i := 0; i < len(candidates); {
		if tags[i] == TagText {
			res.Skipped = append(res.Skipped, candidates[i])
			i++

			continue
		}

		start := i

		// Image run. A Both message anchors alone and also opens the text run.
		end := i
		for end < len(candidates) && tags[end] == TagImage {
			end++
		}

		textEnd := g.collectText(candidates, tags, start, end)

		if hasTextAndImage(tags[start:textEnd]) {
			res.Groups = append(res.Groups, newGroup(candidates[start:textEnd], domain.ProvenanceRules, ruleConfidence, ""))
			lastGroup = textEnd - 1
			i = textEnd

			continue
		}

		orphans = append(orphans, orphanRun{start: start, messages: candidates[start:end]})
		i = end
	}

	for _, o := range orphans {
		if o.start > lastGroup {
			res.Tail = append(res.Tail, o.messages...)
		} else {
			res.Skipped = append(res.Skipped, o.messages...)
		}
	}

	return res
}

// collectText returns the end of the text run that follows the image run
// [start, end). A Both message at start is its own image run.
func (g *RuleGrouper) collectText(msgs []domain.ChatMessage, tags []Tag, start, end int) int {
	if end == start {
		end = start + 1
	}

	i := end
	for i < len(msgs) && tags[i].IsText() && msgs[i].Timestamp.Sub(msgs[i-1].Timestamp) <= g.cfg.TextWindow {
		i++
	}

	return i
}

func newGroup(msgs []domain.ChatMessage, provenance domain.Provenance, confidence float64, context string) domain.MessageGroup {
	members := append([]domain.ChatMessage(nil), msgs...)
	first := members[0]

	return domain.MessageGroup{
		ID:         uuid.NewString(),
		ChatID:     first.ChatID,
		SenderID:   first.SenderID,
		Source:     first.Source,
		Messages:   members,
		Provenance: provenance,
		Confidence: confidence,
		Context:    context,
	}
}

type timelineKey struct {
	source domain.SourceFamily
	chatID string
	sender string
}

func keyOf(m domain.ChatMessage) timelineKey {
	return timelineKey{source: m.Source, chatID: m.ChatID, sender: m.SenderID}
}

// partitionBySender splits msgs into chronological per-sender timelines.
func partitionBySender(msgs []domain.ChatMessage) [][]domain.ChatMessage {
	index := make(map[timelineKey]int)

	var timelines [][]domain.ChatMessage

	for _, m := range msgs {
		k := keyOf(m)

		i, ok := index[k]
		if !ok {
			i = len(timelines)
			index[k] = i
			timelines = append(timelines, nil)
		}

		timelines[i] = append(timelines[i], m)
	}

	for _, t := range timelines {
		sortMessages(t)
	}

	return timelines
}

func sortMessages(msgs []domain.ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool { return lessMessage(msgs[i], msgs[j]) })
}

func lessMessage(a, b domain.ChatMessage) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}

	return a.ID < b.ID
}
