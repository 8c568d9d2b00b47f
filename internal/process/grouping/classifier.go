package grouping

import "github.com/lueurxax/supplier-catalog/internal/core/domain"

// Tag is the sequence classification of one message.
type Tag uint8

// Tags.
const (
	TagNeither Tag = iota
	TagText
	TagImage
	TagBoth
)

func (t Tag) String() string {
	switch t {
	case TagText:
		return "T"
	case TagImage:
		return "I"
	case TagBoth:
		return "B"
	case TagNeither:
		return "-"
	default:
		return "?"
	}
}

// IsText reports whether the tag satisfies a group's text requirement.
func (t Tag) IsText() bool { return t == TagText || t == TagBoth }

// IsImage reports whether the tag satisfies a group's image requirement.
func (t Tag) IsImage() bool { return t == TagImage || t == TagBoth }

// Classify tags one message. The kind decides text eligibility, not the
// payload: an empty text message is still Text, and a caption on an image
// does not make it Text.
func Classify(m domain.ChatMessage) Tag {
	switch {
	case m.IsTextTyped() && m.IsImageEligible():
		return TagBoth
	case m.IsTextTyped():
		return TagText
	case m.IsImageEligible():
		return TagImage
	default:
		return TagNeither
	}
}

// ClassifyAll tags msgs in order.
func ClassifyAll(msgs []domain.ChatMessage) []Tag {
	tags := make([]Tag, len(msgs))
	for i, m := range msgs {
		tags[i] = Classify(m)
	}

	return tags
}

// typeChanges counts switches between image and text roles along tags.
// Both keeps the current role.
func typeChanges(tags []Tag) int {
	changes := 0
	prev := TagNeither

	for _, t := range tags {
		if t == TagNeither || t == TagBoth {
			continue
		}

		if prev != TagNeither && t != prev {
			changes++
		}

		prev = t
	}

	return changes
}

func hasTextAndImage(tags []Tag) bool {
	text, image := false, false

	for _, t := range tags {
		text = text || t.IsText()
		image = image || t.IsImage()
	}

	return text && image
}
