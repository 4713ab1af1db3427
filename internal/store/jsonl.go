package store

import "encoding/json"

// rawEvent mirrors just enough of the session-file-format line shape
// (spec.md §6) to recover user text without pulling in the full parser
// package, avoiding a store<->parser import cycle for this one ephemeral
// shortcut.
type rawEvent struct {
	Type    string `json:"type"`
	Message struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type rawContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// extractUserText returns the flattened text of a user-role JSONL line, or
// ("", false) if the line is not a user event or fails to parse.
func extractUserText(line string) (string, bool) {
	var ev rawEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return "", false
	}
	if ev.Type != "user" {
		return "", false
	}
	if len(ev.Message.Content) == 0 {
		return "", false
	}

	var asString string
	if err := json.Unmarshal(ev.Message.Content, &asString); err == nil {
		return asString, true
	}

	var blocks []rawContentBlock
	if err := json.Unmarshal(ev.Message.Content, &blocks); err == nil {
		text := ""
		for _, b := range blocks {
			if b.Type == "text" {
				text += b.Text
			}
		}
		return text, true
	}

	return "", false
}
