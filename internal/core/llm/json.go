package llm

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// extractJSON returns the first balanced JSON object or array embedded in
// text. Markdown fences and prose around the payload are dropped. If nothing
// valid is found the text is returned unchanged.
func extractJSON(text string) string {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}

		end := matchingBracket(text, i)
		if end == -1 {
			continue
		}

		candidate := text[i : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate
		}
	}

	return text
}

// matchingBracket returns the index closing the bracket at start, skipping
// brackets inside JSON strings, or -1.
func matchingBracket(text string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}

			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return -1
}

// stringList accepts a JSON array of strings or numbers, or a single
// comma-separated string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*l = nil

		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err == nil {
		out := make([]string, 0, len(raw))

		for _, item := range raw {
			if s := scalarString(item); s != "" {
				out = append(out, s)
			}
		}

		*l = out

		return nil
	}

	s := scalarString(data)
	if s == "" {
		*l = nil

		return nil
	}

	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	*l = out

	return nil
}

// flexibleNumber accepts a JSON number or a numeric string such as "1 200,50".
type flexibleNumber float64

func (n *flexibleNumber) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = flexibleNumber(f)

		return nil
	}

	*n = flexibleNumber(parseLooseNumber(scalarString(data)))

	return nil
}

// parseLooseNumber parses the leading numeric part of s. Spaces and a
// trailing group of exactly three digits are read as thousand separators, the
// last other separator as the decimal point. A minus sign directly before the
// first digit is kept. Unparseable input yields 0.
func parseLooseNumber(s string) float64 {
	var (
		sb       strings.Builder
		negative bool
	)

loop:
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ',' || r == '.':
			sb.WriteRune('.')
		case r == '-' && sb.Len() == 0:
			negative = true
		case r == ' ' || r == '\u00a0':
			if sb.Len() == 0 {
				negative = false
			}
		default:
			if sb.Len() > 0 {
				break loop
			}

			negative = false
		}
	}

	parts := strings.Split(strings.Trim(sb.String(), "."), ".")
	last := len(parts) - 1

	number := strings.Join(parts, "")
	if last > 0 && len(parts[last]) != thousandGroupDigits {
		number = strings.Join(parts[:last], "") + "." + parts[last]
	}

	f, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0
	}

	if negative {
		return -f
	}

	return f
}

// scalarString renders a JSON string or number as a trimmed string.
func scalarString(data []byte) string {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		return num.String()
	}

	return ""
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit]) + "..."
}
