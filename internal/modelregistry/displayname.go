package modelregistry

import "strings"

// displayName implements §4.10's derivation algorithm over hyphen-split
// segments of a model id.
func displayName(id string) string {
	segs := strings.Split(id, "-")
	var out []string
	i := 0

	if len(segs) > 0 && strings.EqualFold(segs[0], "gpt") {
		out = append(out, "GPT")
		i = 1
	}

	for i < len(segs) {
		if i+1 < len(segs) && isSingleDigit(segs[i]) && isSingleDigit(segs[i+1]) {
			out = append(out, segs[i]+"."+segs[i+1])
			i += 2
			continue
		}
		if i+1 < len(segs) && isTwoDigit(segs[i]) && isTwoDigit(segs[i+1]) {
			out = append(out, segs[i]+"-"+segs[i+1])
			i += 2
			continue
		}
		out = append(out, titleWord(segs[i]))
		i++
	}

	return strings.Join(out, " ")
}

func isSingleDigit(s string) bool {
	return len(s) == 1 && s[0] >= '0' && s[0] <= '9'
}

func isTwoDigit(s string) bool {
	return len(s) == 2 && s[0] >= '0' && s[0] <= '9' && s[1] >= '0' && s[1] <= '9'
}

// titleWord title-cases word unless it is already an all-caps abbreviation.
func titleWord(word string) string {
	if word == "" {
		return word
	}
	if isAllCapsAbbrev(word) {
		return word
	}
	return strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
}

// isAllCapsAbbrev reports whether word contains at least one letter and
// every letter in it is already uppercase (so e.g. "AI" is left alone,
// but "sonnet" and "4o" are title-cased/left as-is by titleWord's fallback
// path).
func isAllCapsAbbrev(word string) bool {
	hasLetter := false
	for _, r := range word {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}
	return hasLetter
}
