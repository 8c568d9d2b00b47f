package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Provenance records which grouping path produced a group.
type Provenance string

// Group provenances.
const (
	ProvenanceRules Provenance = "rules"
	ProvenanceLLM   Provenance = "llm"
)

// MessageGroup is the unit of work for one product. It is never persisted.
type MessageGroup struct {
	ID         string
	ChatID     string
	SenderID   string
	Source     SourceFamily
	Messages   []ChatMessage
	Provenance Provenance
	Confidence float64
	// Context is an optional product hint supplied by the grouping adapter.
	Context string
}

// MessageIDs returns the member ids in chronological order.
func (g MessageGroup) MessageIDs() []string {
	ids := make([]string, len(g.Messages))
	for i, m := range g.Messages {
		ids[i] = m.ID
	}

	return ids
}

// Fingerprint returns the fingerprint of the group's message-id set.
func (g MessageGroup) Fingerprint() string {
	return Fingerprint(g.MessageIDs())
}

// ImageMessages returns the image-eligible members in order.
func (g MessageGroup) ImageMessages() []ChatMessage {
	var out []ChatMessage

	for _, m := range g.Messages {
		if m.IsImageEligible() {
			out = append(out, m)
		}
	}

	return out
}

// DescriptiveText concatenates text and captions of all members.
func (g MessageGroup) DescriptiveText() string {
	parts := make([]string, 0, len(g.Messages))

	for _, m := range g.Messages {
		if m.HasDescriptiveText() {
			parts = append(parts, strings.TrimSpace(m.Text))
		}
	}

	return strings.Join(parts, "\n")
}

// SortedIDs returns a sorted, de-duplicated copy of ids.
func SortedIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))

	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		out = append(out, id)
	}

	sort.Strings(out)

	return out
}

// Fingerprint hashes the sorted id set. Order and duplicates do not matter.
func Fingerprint(ids []string) string {
	sum := sha256.Sum256([]byte(strings.Join(SortedIDs(ids), "\n")))

	return hex.EncodeToString(sum[:])
}
