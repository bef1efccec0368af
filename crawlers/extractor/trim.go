package extractor

// Trim keeps a list within budget characters. Lists whose combined length fits are
// returned unchanged. Otherwise items are kept in order as if joined with "*" and
// the join is cut at budget characters, so the last kept item may be cut mid-word.
func Trim(items []string, budget int) []string {
	total := 0
	for _, item := range items {
		total += len([]rune(item))
	}
	if total <= budget {
		return items
	}

	out := make([]string, 0, len(items))
	remaining := budget
	for i, item := range items {
		if i > 0 {
			// separator
			if remaining <= 1 {
				break
			}
			remaining--
		}
		r := []rune(item)
		if len(r) <= remaining {
			out = append(out, item)
			remaining -= len(r)
			continue
		}
		if remaining > 0 {
			out = append(out, string(r[:remaining]))
		}
		break
	}
	return out
}
