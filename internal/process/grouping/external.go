package grouping

import (
	"strings"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
)

// Rejection reasons reported by ValidateExternal.
const (
	RejectLowConfidence = "low_confidence"
	RejectNoKnownIDs    = "no_known_ids"
	RejectComposition   = "invalid_composition"
)

// Validation is the outcome of re-validating external group proposals.
type Validation struct {
	Accepted []domain.MessageGroup
	// Rejected counts dropped proposals and segments by reason.
	Rejected map[string]int
	// DroppedIDs are proposal ids that were unknown or already claimed.
	DroppedIDs []string
}

func (v *Validation) reject(reason string) {
	if v.Rejected == nil {
		v.Rejected = make(map[string]int)
	}

	v.Rejected[reason]++
}

// covered returns the ids of all accepted group members.
func (v Validation) covered() map[string]struct{} {
	out := make(map[string]struct{})

	for _, g := range v.Accepted {
		for _, m := range g.Messages {
			out[m.ID] = struct{}{}
		}
	}

	return out
}

// ValidateExternal applies the local grouping invariants to proposals made
// over msgs: unknown and repeated ids are dropped, low-confidence proposals
// are rejected, proposals are split per sender and at excess type changes,
// image-only segments try to recover trailing text, and only segments with a
// text member and an image member survive.
func ValidateExternal(cfg Config, msgs []domain.ChatMessage, proposals []domain.ExternalGroup) Validation {
	cfg = cfg.normalized()

	byID := make(map[string]domain.ChatMessage, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}

	var v Validation

	claimed := make(map[string]struct{})

	for _, p := range proposals {
		if p.Confidence < cfg.MinConfidence {
			v.reject(RejectLowConfidence)

			continue
		}

		members := make([]domain.ChatMessage, 0, len(p.MessageIDs))

		for _, raw := range p.MessageIDs {
			id := strings.TrimSpace(raw)

			m, ok := byID[id]
			if _, taken := claimed[id]; !ok || taken {
				v.DroppedIDs = append(v.DroppedIDs, id)

				continue
			}

			claimed[id] = struct{}{}
			members = append(members, m)
		}

		if len(members) == 0 {
			v.reject(RejectNoKnownIDs)

			continue
		}

		for _, timeline := range partitionBySender(members) {
			for _, segment := range splitByTypeChanges(timeline, cfg.MaxTypeChanges) {
				segment = recoverText(cfg, segment, msgs, claimed)

				if !hasTextAndImage(ClassifyAll(segment)) {
					v.reject(RejectComposition)

					continue
				}

				v.Accepted = append(v.Accepted, newGroup(segment, domain.ProvenanceLLM, p.Confidence, p.Context))
			}
		}
	}

	return v
}

// splitByTypeChanges cuts a chronological timeline into segments with at most
// maxChanges image/text role switches each. Neither members are dropped.
func splitByTypeChanges(timeline []domain.ChatMessage, maxChanges int) [][]domain.ChatMessage {
	var (
		segments [][]domain.ChatMessage
		current  []domain.ChatMessage
		tags     []Tag
	)

	for _, m := range timeline {
		tag := Classify(m)
		if tag == TagNeither {
			continue
		}

		if typeChanges(append(tags, tag)) > maxChanges {
			segments = append(segments, current)
			current, tags = nil, nil
		}

		current = append(current, m)
		tags = append(tags, tag)
	}

	if len(current) > 0 {
		segments = append(segments, current)
	}

	return segments
}

// recoverText attaches unclaimed text messages of the same sender that follow
// an image-only segment within the text window.
func recoverText(cfg Config, segment, all []domain.ChatMessage, claimed map[string]struct{}) []domain.ChatMessage {
	if hasTextAndImage(ClassifyAll(segment)) {
		return segment
	}

	last := segment[len(segment)-1]
	if !Classify(last).IsImage() {
		return segment
	}

	var timeline []domain.ChatMessage

	for _, m := range all {
		if keyOf(m) == keyOf(last) {
			timeline = append(timeline, m)
		}
	}

	sortMessages(timeline)

	pos := -1

	for i, m := range timeline {
		if m.ID == last.ID {
			pos = i

			break
		}
	}

	if pos < 0 {
		return segment
	}

	prev := last
	recovered := segment

	for _, m := range timeline[pos+1:] {
		if _, taken := claimed[m.ID]; taken {
			break
		}

		if !Classify(m).IsText() || m.Timestamp.Sub(prev.Timestamp) > cfg.TextWindow {
			break
		}

		claimed[m.ID] = struct{}{}
		recovered = append(recovered, m)
		prev = m
	}

	return recovered
}
