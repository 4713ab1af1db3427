package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/yologdev/yocore-go/internal/invoker"
	"github.com/yologdev/yocore-go/internal/store"
)

const (
	maxMemoryInputChars    = 150_000
	minMessagesForMemories = 25
	minMemoryConfidence    = 0.70
)

const memoryExtractionSystemPrompt = `You are analyzing a session transcript to extract important knowledge that should be remembered for future sessions.

QUALITY REQUIREMENTS (CRITICAL):
- Extract AT MOST 10-15 memories per session chunk
- Only extract memories where you have HIGH CONFIDENCE (>= 0.7)
- Each memory must be genuinely actionable or informative for future work
- Skip anything routine, obvious, or easily discoverable

Extract memories that would be valuable to recall in future sessions. Focus on:

1. Decisions: choices made with reasoning - why this approach was chosen over alternatives
2. Facts: learned information, discoveries, how things work, issues found and fixed
3. Preferences: user preferences, style choices, workflow preferences
4. Context: background information, domain knowledge, project situation
5. Tasks: work items, action items, things to do or remember

For each memory, provide:
- type: one of [decision, fact, preference, context, task]
- title: brief descriptive title (max 80 chars)
- content: the actual knowledge to remember (1-3 sentences, be specific)
- context: optional context about when/why this applies
- tags: relevant keywords for search (max 5)
- confidence: how confident are you this is worth remembering? (0.0-1.0)
- file_reference: if applicable, which file(s) this relates to

SKIP THESE (return empty array if only these exist):
- Trivial or routine operations
- Anything that looks like secrets (API keys, passwords, tokens)
- Generic knowledge that's easily discoverable
- Temporary notes or workarounds

QUALITY OVER QUANTITY: it's better to return 3 excellent memories than 20 mediocre ones.
If nothing is genuinely worth remembering, return an empty array.

Respond with ONLY a JSON array of memories, no markdown.`

// rawMemory is the shape an AI provider returns for one extracted memory.
type rawMemory struct {
	Type          string   `json:"type"`
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	Context       *string  `json:"context"`
	Tags          []string `json:"tags"`
	Confidence    float64  `json:"confidence"`
	FileReference *string  `json:"file_reference"`
}

func buildMemoryExtractionPrompt(sessionContent string) string {
	return fmt.Sprintf("%s\n\n<session_content>\n%s\n</session_content>\n\nRespond with a JSON array of memories:",
		memoryExtractionSystemPrompt, sessionContent)
}

// condensedMessages renders a session's messages into "[seq] Role\npreview"
// blocks (plus a Tool: line for tool uses), matching the original's
// memory-extraction formatting.
func condensedMessages(messages []*store.Message) []string {
	var lines []string
	for _, m := range messages {
		var roleDisplay string
		switch m.Role {
		case store.RoleUser:
			roleDisplay = "User"
		case store.RoleAssistant:
			roleDisplay = "Assistant"
		default:
			continue
		}
		line := fmt.Sprintf("[%d] %s\n%s", m.SequenceNum, roleDisplay, m.ContentPreview)
		if m.ToolName != nil {
			line += fmt.Sprintf("\nTool: %s", *m.ToolName)
		}
		lines = append(lines, line)
	}
	return lines
}

type memoryWrapper struct {
	Memories []rawMemory `json:"memories"`
}

func parseRawMemories(response string) ([]rawMemory, error) {
	var memories []rawMemory
	if err := invoker.ParseJSONResponse(response, &memories); err == nil {
		return memories, nil
	}

	var wrapper memoryWrapper
	if err := invoker.ParseJSONResponse(response, &wrapper); err == nil {
		return wrapper.Memories, nil
	}

	return nil, fmt.Errorf("failed to parse memories JSON")
}

// ExtractMemories gathers sess's transcript, asks the AI provider for
// structured memories, and persists the ones that pass the confidence
// threshold and the store's own duplicate check. If force is false and the
// session has seen fewer than minMessagesForMemories new messages since its
// last extraction, it returns early with zero counts.
func ExtractMemories(ctx context.Context, st store.Store, inv *invoker.Invoker, sessionID string, force bool, notify Notifier) MemoryResult {
	notify.MemoryStart(sessionID)

	sess, err := st.GetSession(ctx, sessionID)
	if err != nil {
		notify.MemoryError(sessionID, err.Error())
		return MemoryResult{SessionID: sessionID, Err: err}
	}

	if !force && sess.MemoriesExtractedAt != nil {
		newMessages := sess.MessageCount - sess.MemoriesExtractedCount
		if newMessages < minMessagesForMemories {
			return MemoryResult{SessionID: sessionID}
		}
	}

	messages, err := st.GetMessages(ctx, sessionID, 0)
	if err != nil {
		notify.MemoryError(sessionID, err.Error())
		return MemoryResult{SessionID: sessionID, Err: err}
	}

	lines := condensedMessages(messages)
	if len(lines) < minMessagesForMemories {
		err := fmt.Errorf("not enough messages for extraction (%d < %d)", len(lines), minMessagesForMemories)
		return MemoryResult{SessionID: sessionID, Err: err}
	}
	content := strings.Join(lines, "\n\n")
	if len(content) > maxMemoryInputChars {
		content = content[:maxMemoryInputChars]
	}

	output, err := inv.Run(ctx, buildMemoryExtractionPrompt(content))
	if err != nil {
		notify.MemoryError(sessionID, err.Error())
		return MemoryResult{SessionID: sessionID, Err: err}
	}

	raw, err := parseRawMemories(output)
	if err != nil {
		notify.MemoryError(sessionID, err.Error())
		return MemoryResult{SessionID: sessionID, Err: err}
	}

	var extracted, skipped int
	for _, m := range raw {
		if m.Confidence < minMemoryConfidence {
			skipped++
			continue
		}

		created, err := st.StoreMemory(ctx, &store.Memory{
			ProjectID:     sess.ProjectID,
			SessionID:     sessionID,
			MemoryType:    m.Type,
			Title:         m.Title,
			Content:       m.Content,
			Context:       m.Context,
			Tags:          m.Tags,
			Confidence:    m.Confidence,
			FileReference: m.FileReference,
			State:         store.MemoryStateNew,
		})
		if err != nil {
			skipped++
			continue
		}
		if created {
			extracted++
		} else {
			skipped++
		}
	}

	if err := st.MarkMemoriesExtracted(ctx, sessionID, sess.MessageCount); err != nil {
		notify.MemoryError(sessionID, err.Error())
		return MemoryResult{SessionID: sessionID, Extracted: extracted, Skipped: skipped, Err: err}
	}

	notify.MemoryComplete(sessionID, extracted)
	return MemoryResult{SessionID: sessionID, Extracted: extracted, Skipped: skipped}
}
