package assembler

import (
	"regexp"
	"strings"

	gateway "github.com/zhengwenj/cursor-api-sub001/internal"
	"github.com/zhengwenj/cursor-api-sub001/internal/cursorpb"
)

// webReferencesPrefix is the marker §4.6 step 5 keys the parse off of.
const webReferencesPrefix = "WebReferences:\n"

// webRefLinePattern matches one numbered "1. [title](url)" entry, with an
// optional trailing chunk of freeform text after the link on the same
// line (the "<chunk>" spec.md mentions).
var webRefLinePattern = regexp.MustCompile(`^\d+\.\s+\[([^\]]*)\]\(([^)]*)\)(.*)$`)

// parseWebReferences recognizes the "WebReferences:\n" block at the start
// of an assistant message, returning the structured references and the
// text with that block removed. ok is false when text does not start
// with the marker, in which case text should be left untouched.
func parseWebReferences(text string) (refs []gateway.WebReference, remainder string, ok bool) {
	if !strings.HasPrefix(text, webReferencesPrefix) {
		return nil, text, false
	}

	lines := strings.Split(text[len(webReferencesPrefix):], "\n")
	i := 0
	for ; i < len(lines); i++ {
		if lines[i] == "" {
			i++
			break
		}
		m := webRefLinePattern.FindStringSubmatch(lines[i])
		if m == nil {
			break
		}
		refs = append(refs, gateway.WebReference{Title: m[1], URL: m[2]})
	}
	return refs, strings.Join(lines[i:], "\n"), true
}

// externalLinkPattern matches a bare "@http(s)://..." token (§4.6 step 6).
var externalLinkPattern = regexp.MustCompile(`@(https?://\S+)`)

// extractExternalLinks scans a user message for bare @-prefixed URLs,
// assigning each a monotonically increasing id starting from *next (which
// it advances in place).
func extractExternalLinks(text string, next *uint64) []cursorpb.ExternalLink {
	matches := externalLinkPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	links := make([]cursorpb.ExternalLink, 0, len(matches))
	for _, m := range matches {
		links = append(links, cursorpb.ExternalLink{URL: m[1], UUID: *next})
		*next++
	}
	return links
}
