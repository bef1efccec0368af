package extractor

import "strings"

// ExtractKeyIndicators returns numeric-led phrases such as "500 employees" or
// "25 years of experience". A phrase runs from a standalone number up to the
// first period, comma, or the word "in" or "by", and is widened to whole words.
// A number with no terminator on the same line yields nothing.
func ExtractKeyIndicators(text string) []string {
	var indicators []string
	next := 0
	for _, loc := range numberRegex.FindAllStringIndex(text, -1) {
		start := loc[0]
		if start < next {
			continue
		}
		end, ok := scanIndicatorEnd(text, loc[1])
		if !ok {
			continue
		}
		next = end

		s, e := widenToWords(text, start, end)
		phrase := strings.TrimSpace(text[s:e])
		if phrase != "" {
			indicators = append(indicators, phrase)
		}
	}
	return indicators
}

// scanIndicatorEnd finds the first terminator at or after from on the same line.
func scanIndicatorEnd(text string, from int) (int, bool) {
	for p := from; p < len(text); p++ {
		c := text[p]
		if c == '.' || c == ',' {
			return p, true
		}
		if c == '\n' || c == '\r' {
			return 0, false
		}
		if p > 0 && isWordByte(text[p-1]) {
			continue
		}
		if hasStopWord(text, p, "in") || hasStopWord(text, p, "by") {
			return p, true
		}
	}
	return 0, false
}

func hasStopWord(text string, p int, word string) bool {
	end := p + len(word)
	if end > len(text) || !strings.EqualFold(text[p:end], word) {
		return false
	}
	return end == len(text) || !isWordByte(text[end])
}

// widenToWords moves start back and end forward so neither cuts a word in half.
func widenToWords(text string, start, end int) (int, int) {
	for start > 0 && isWordishByte(text[start-1]) && isWordishByte(text[start]) {
		start--
	}
	for end < len(text) && end > 0 && isWordishByte(text[end]) && isWordishByte(text[end-1]) {
		end++
	}
	return start, end
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordishByte(c byte) bool {
	return isWordByte(c) || c == '\'' || c == '-'
}
