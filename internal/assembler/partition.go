package assembler

import (
	"strings"
	"time"

	"github.com/zhengwenj/cursor-api-sub001/internal/modelregistry"
)

// partition splits system messages from the user/assistant sequence
// (§4.6 step 2).
func partition(msgs []rawMessage) (system []string, rest []rawMessage) {
	for _, m := range msgs {
		if m.Role == "system" {
			if txt := extractText(m.Content); txt != "" {
				system = append(system, txt)
			}
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

// currentDateTimeMarker is substituted with the bundle's local time,
// RFC3339 with millisecond precision (§4.6 step 2).
const currentDateTimeMarker = "{{currentDateTime}}"

const (
	genericInstructionTemplate  = "You are a helpful AI assistant operating inside Cursor. The current date and time is {{currentDateTime}}."
	claudeInstructionTemplate   = "You are Claude, an AI assistant made by Anthropic, operating inside Cursor. The current date and time is {{currentDateTime}}."
	openAIInstructionTemplate   = "You are an OpenAI model operating inside Cursor. The current date and time is {{currentDateTime}}."
	geminiInstructionTemplate   = "You are Gemini, an AI model made by Google, operating inside Cursor. The current date and time is {{currentDateTime}}."
	deepseekInstructionTemplate = "You are DeepSeek, operating inside Cursor. The current date and time is {{currentDateTime}}."
	grokInstructionTemplate     = "You are Grok, an AI model made by xAI, operating inside Cursor. The current date and time is {{currentDateTime}}."
)

// instructionsFor concatenates system messages, or substitutes a
// model-family-aware default when there are none (§4.6 step 2).
func instructionsFor(system []string, ext modelregistry.ExtModel, now time.Time, loc *time.Location) string {
	if len(system) > 0 {
		return strings.Join(system, "\n\n")
	}
	return defaultInstructions(ext, now, loc)
}

func defaultInstructions(ext modelregistry.ExtModel, now time.Time, loc *time.Location) string {
	if loc != nil {
		now = now.In(loc)
	}
	ts := now.Format("2006-01-02T15:04:05.000Z07:00")

	tmpl := genericInstructionTemplate
	switch {
	case strings.HasPrefix(ext.ID, "claude"):
		tmpl = claudeInstructionTemplate
	case strings.HasPrefix(ext.ID, "gpt"), strings.HasPrefix(ext.ID, "o3"):
		tmpl = openAIInstructionTemplate
	case strings.HasPrefix(ext.ID, "gemini"):
		tmpl = geminiInstructionTemplate
	case strings.HasPrefix(ext.ID, "deepseek"):
		tmpl = deepseekInstructionTemplate
	case strings.HasPrefix(ext.ID, "grok"):
		tmpl = grokInstructionTemplate
	}
	return strings.ReplaceAll(tmpl, currentDateTimeMarker, ts)
}
