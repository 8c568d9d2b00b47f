// Package htmlutils splits HTML-formatted bot replies into Telegram-sized
// messages. Telegram counts length in UTF-16 code units.
package htmlutils

import (
	"regexp"
	"strings"
	"unicode/utf16"
)

var tagRegex = regexp.MustCompile(`<(/?)([a-zA-Z0-9-]+)[^>]*>`)

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// utf16Slice returns the longest prefix of s that fits in maxUnits.
func utf16Slice(s string, maxUnits int) string {
	units := 0

	for i, r := range s {
		n := 1
		if r > 0xFFFF {
			n = 2
		}

		if units+n > maxUnits {
			return s[:i]
		}

		units += n
	}

	return s
}

// SplitHTML splits text at line boundaries into parts of at most limit
// UTF-16 units of visible text. Tags open at a split are closed at the end of
// the part and reopened at the start of the next one. A single line longer
// than limit is cut at the limit.
func SplitHTML(text string, limit int) []string {
	if limit <= 0 || textLen(text) <= limit {
		return []string{text}
	}

	s := splitter{limit: limit}

	for _, line := range strings.SplitAfter(text, "\n") {
		s.addLine(line)
	}

	s.flush()

	return s.parts
}

type splitter struct {
	parts    []string
	current  strings.Builder
	size     int
	openTags []string
	limit    int
}

func (s *splitter) addLine(line string) {
	n := textLen(line)

	if s.size > 0 && s.size+n > s.limit {
		s.flush()
	}

	for n > s.limit {
		head := cutVisible(line, s.limit)
		s.write(head)
		s.flush()

		line = line[len(head):]
		n = textLen(line)
	}

	s.write(line)
}

func (s *splitter) write(chunk string) {
	s.current.WriteString(chunk)
	s.size += textLen(chunk)
	s.openTags = updateOpenTags(chunk, s.openTags)
}

func (s *splitter) flush() {
	if s.size == 0 && strings.TrimSpace(StripTags(s.current.String())) == "" {
		s.current.Reset()

		return
	}

	for i := len(s.openTags) - 1; i >= 0; i-- {
		s.current.WriteString("</" + s.openTags[i] + ">")
	}

	s.parts = append(s.parts, strings.TrimRight(s.current.String(), "\n"))
	s.current.Reset()
	s.size = 0

	for _, tag := range s.openTags {
		s.current.WriteString("<" + tag + ">")
	}
}

// cutVisible returns the longest prefix of line whose visible text fits in
// limit units without cutting inside a tag.
func cutVisible(line string, limit int) string {
	var (
		end   int
		units int
	)

	for end < len(line) {
		if loc := tagRegex.FindStringIndex(line[end:]); loc != nil && loc[0] == 0 {
			end += loc[1]

			continue
		}

		next := end + 1
		for next < len(line) && line[next] != '<' && (line[next]&0xC0) == 0x80 {
			next++
		}

		chunk := line[end:next]
		if units+utf16Len(chunk) > limit {
			break
		}

		units += utf16Len(chunk)
		end = next
	}

	if end == 0 {
		return utf16Slice(line, limit)
	}

	return line[:end]
}

func textLen(text string) int {
	return utf16Len(StripTags(text))
}

// StripTags removes HTML tags and leaves the text between them.
func StripTags(text string) string {
	return tagRegex.ReplaceAllString(text, "")
}

func updateOpenTags(chunk string, openTags []string) []string {
	for _, m := range tagRegex.FindAllStringSubmatch(chunk, -1) {
		name := strings.ToLower(m[2])

		if m[1] == "" {
			openTags = append(openTags, name)

			continue
		}

		for i := len(openTags) - 1; i >= 0; i-- {
			if openTags[i] == name {
				openTags = append(openTags[:i], openTags[i+1:]...)

				break
			}
		}
	}

	return openTags
}
