package invoker

import (
	"encoding/json"
	"strings"

	"github.com/yologdev/yocore-go/internal/yoerr"
)

// ParseJSONResponse decodes a CLI response into v, trying a direct parse
// first and falling back to extracting a fenced ```json code block, since
// some providers wrap their structured output in markdown prose.
func ParseJSONResponse(response string, v any) error {
	if err := json.Unmarshal([]byte(response), v); err == nil {
		return nil
	}

	candidate := response
	if strings.Contains(response, "```") {
		candidate = extractFencedBlock(response)
	}

	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return &yoerr.ParseError{Raw: response}
	}
	return nil
}

// extractFencedBlock pulls the content of the first ``` ... ``` block,
// accepting both ```json and bare ``` fences.
func extractFencedBlock(response string) string {
	lines := strings.Split(response, "\n")
	inBlock := false
	var out []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !inBlock && strings.HasPrefix(trimmed, "```") {
			inBlock = true
			continue
		}
		if inBlock && strings.HasPrefix(trimmed, "```") {
			break
		}
		if inBlock {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
