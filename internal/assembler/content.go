package assembler

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// rawImage is a not-yet-validated image reference recovered from either
// dialect's content shape.
type rawImage struct {
	DataURI    string // OpenAI image_url.url: a data: URI or a bare http(s) URL
	Base64Data string // Anthropic source.data
	MediaType  string // Anthropic source.media_type
}

// part is one element of a message's content array.
type part struct {
	Text  string
	Image *rawImage
}

// extractParts parses content, which is either a plain JSON string or an
// array of OpenAI-style {type, text|image_url} / Anthropic-style
// {type, text|source} blocks.
func extractParts(content []byte) []part {
	if len(content) == 0 {
		return nil
	}

	r := gjson.ParseBytes(content)
	if r.IsArray() {
		var parts []part
		r.ForEach(func(_, v gjson.Result) bool {
			switch v.Get("type").String() {
			case "text":
				parts = append(parts, part{Text: v.Get("text").String()})
			case "image_url":
				parts = append(parts, part{Image: &rawImage{DataURI: v.Get("image_url.url").String()}})
			case "image":
				src := v.Get("source")
				parts = append(parts, part{Image: &rawImage{
					Base64Data: src.Get("data").String(),
					MediaType:  src.Get("media_type").String(),
				}})
			}
			return true
		})
		return parts
	}

	var s string
	if err := json.Unmarshal(content, &s); err == nil && s != "" {
		return []part{{Text: s}}
	}
	return nil
}

// extractText concatenates every text part, ignoring images, joined by
// "\n" (§4.6 step 4).
func extractText(content []byte) string {
	var segs []string
	for _, p := range extractParts(content) {
		if p.Text != "" {
			segs = append(segs, p.Text)
		}
	}
	return strings.Join(segs, "\n")
}
