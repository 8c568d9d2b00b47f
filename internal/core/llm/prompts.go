package llm

import (
	"fmt"
	"strings"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
)

const (
	promptCategoriesPlaceholder = "{{CATEGORIES}}"
	promptCountPlaceholder      = "{{MESSAGE_COUNT}}"
	messageLineFormat           = "[%s] sender=%s time=%s kind=%s media=%t text=%s\n"
	categoryLineFormat          = "- id=%s slug=%s name=%s\n"
)

const defaultGroupingPrompt = `You group supplier chat messages into products. Return STRICT JSON ONLY.
Output a single JSON object: {"groups": [...]}.
Use double quotes. No trailing commas. No markdown.

There are {{MESSAGE_COUNT}} messages below, ordered by time. A product is usually
one or more photos followed by a text with price and sizes, sent by the same sender.

Each group object must include:
- group_id: string, any unique label
- message_ids: array of the [ID] values that belong to the product, in time order
- product_context: string, a short hint of what the product is (≤ 120 chars)
- confidence: number (0.0–1.0)

Rules:
- Never put one message into two groups.
- Never mix senders in one group.
- Leave out chatter, greetings and messages that do not describe a product.
- Return {"groups": []} if no product can be formed.

Messages:
`

const defaultTextPrompt = `You extract catalog attributes from a supplier's product description. Return STRICT JSON ONLY.
Output a single JSON object with these keys:
- name: string, short product name
- description: string, cleaned description without prices and contacts
- price: number, wholesale price per item; 0 if absent
- currency: string, ISO 4217 code if known, else ""
- sizes: array of strings, every size offered (e.g. "S", "M", "42"); [] if absent
- material: string, fabric or material, else ""
- gender: one of "women", "men", "unisex", "kids", ""
- season: one of "summer", "winter", "demi", "all_season", ""
- category_id: string, id from the category list below, else ""
- category_name: string, the category name you chose, else ""

Do not invent prices or sizes that are not in the text.

Categories:
{{CATEGORIES}}
`

const defaultImagePrompt = `You describe one product photo for a clothing catalog. Return STRICT JSON ONLY.
Output a single JSON object with these keys:
- color: string, the dominant product color in English, lower case
- category_id: string, id from the category list below, else ""
- category_name: string, the category name you chose, else ""
- gender: one of "women", "men", "unisex", "kids", ""
- season: one of "summer", "winter", "demi", "all_season", ""

Categories:
{{CATEGORIES}}
`

func buildGroupingPrompt(msgs []domain.ChatMessage) string {
	var sb strings.Builder

	sb.WriteString(strings.ReplaceAll(defaultGroupingPrompt, promptCountPlaceholder, fmt.Sprint(len(msgs))))

	for _, m := range msgs {
		text := strings.Join(strings.Fields(m.Text), " ")
		sb.WriteString(fmt.Sprintf(messageLineFormat,
			m.ID, m.SenderID, m.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), m.Kind, m.MediaRef != "",
			truncate(text, truncateLengthShort)))
	}

	return sb.String()
}

func buildTextPrompt(req domain.TextAnalysisRequest) string {
	var sb strings.Builder

	sb.WriteString(applyCategories(defaultTextPrompt, req.Categories))

	if req.Context != "" {
		sb.WriteString("\nGrouping hint: ")
		sb.WriteString(truncate(req.Context, truncateLengthShort))
		sb.WriteString("\n")
	}

	sb.WriteString("\nDescription:\n")
	sb.WriteString(truncate(req.Text, truncateLengthLong))

	return sb.String()
}

func buildImagePrompt(req domain.ImageAnalysisRequest) string {
	prompt := applyCategories(defaultImagePrompt, req.Categories)

	if req.Description != "" {
		prompt += "\nSupplier description:\n" + truncate(req.Description, truncateLengthShort)
	}

	return prompt
}

func applyCategories(template string, categories []domain.Category) string {
	var sb strings.Builder

	for _, c := range categories {
		sb.WriteString(fmt.Sprintf(categoryLineFormat, c.ID, c.Slug, c.Name))
	}

	list := sb.String()
	if list == "" {
		list = "(none)\n"
	}

	return strings.ReplaceAll(template, promptCategoriesPlaceholder, list)
}
