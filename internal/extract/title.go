package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/yologdev/yocore-go/internal/invoker"
	"github.com/yologdev/yocore-go/internal/store"
)

const (
	maxTitleLength     = 60
	maxTitleInputChars = 4000
	maxTitleUserMsgs   = 10
)

const titlePromptTemplate = `Generate a concise title (maximum %d characters) for this AI coding session.

**Guidelines:**
- Focus on: main task + tech stack + outcome
- Be specific and descriptive
- Use active voice (e.g., "Fix React hydration in Next.js dashboard")
- Avoid generic titles like "debugging" or "code review"

**Good examples:**
- "Fix React hydration in Next.js dashboard"
- "Add PostgreSQL full-text search to API"
- "Refactor auth middleware for JWT validation"

**Bad examples:**
- "Claude Code session" (too generic)
- "Debugging" (not specific)
- "Working on code" (not descriptive)

Output ONLY the title text, nothing else.

Session conversation:
%s`

func buildTitlePrompt(firstMessages string) string {
	return fmt.Sprintf(titlePromptTemplate, maxTitleLength, firstMessages)
}

// firstUserMessages renders up to maxTitleUserMsgs user messages, in
// session order, as "role: preview" lines for the title prompt.
func firstUserMessages(messages []*store.Message) (string, error) {
	var lines []string
	for _, m := range messages {
		if m.Role != store.RoleUser || m.ToolType != nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("user: %s", m.ContentPreview))
		if len(lines) >= maxTitleUserMsgs {
			break
		}
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("no user messages found in session")
	}
	combined := strings.Join(lines, "\n\n")
	if len(combined) > maxTitleInputChars {
		combined = combined[:maxTitleInputChars]
	}
	return combined, nil
}

// cleanTitle strips quoting/markdown and truncates at a word boundary,
// matching the original's clean_title.
func cleanTitle(raw string) string {
	title := strings.Trim(strings.TrimSpace(raw), `"'`)
	title = strings.TrimSpace(strings.TrimLeft(title, "#"))
	for _, bullet := range []string{"- ", "* "} {
		title = strings.TrimPrefix(title, bullet)
	}
	title = strings.TrimSpace(title)

	if len(title) <= maxTitleLength {
		return title
	}
	truncated := title[:maxTitleLength-3]
	if idx := strings.LastIndexByte(truncated, ' '); idx >= 0 {
		return truncated[:idx] + "..."
	}
	return truncated + "..."
}

// GenerateTitle produces a title for sess using its first user messages and
// persists it via st.SetSessionTitle.
func GenerateTitle(ctx context.Context, st store.Store, inv *invoker.Invoker, sessionID string, notify Notifier) TitleResult {
	notify.TitleStart(sessionID)

	messages, err := st.GetMessages(ctx, sessionID, 0)
	if err != nil {
		notify.TitleError(sessionID, err.Error())
		return TitleResult{SessionID: sessionID, Err: err}
	}

	content, err := firstUserMessages(messages)
	if err != nil {
		notify.TitleError(sessionID, err.Error())
		return TitleResult{SessionID: sessionID, Err: err}
	}

	output, err := inv.Run(ctx, buildTitlePrompt(content))
	if err != nil {
		notify.TitleError(sessionID, err.Error())
		return TitleResult{SessionID: sessionID, Err: err}
	}

	title := cleanTitle(output)
	if err := st.SetSessionTitle(ctx, sessionID, title, true); err != nil {
		notify.TitleError(sessionID, err.Error())
		return TitleResult{SessionID: sessionID, Err: err}
	}

	notify.TitleComplete(sessionID, title)
	return TitleResult{SessionID: sessionID, Title: title}
}
