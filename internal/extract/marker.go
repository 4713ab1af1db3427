package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/yologdev/yocore-go/internal/invoker"
	"github.com/yologdev/yocore-go/internal/store"
)

// original_source/src/ai/marker.rs describes a two-phase design (a first
// pass that locates candidate event indices, a second that labels each one)
// but the retrieved source stops after its module doc-comment, so the
// algorithm body isn't available to port. This is a single-phase design
// instead: one prompt asks the provider to both find and label significant
// moments in one JSON response, which the Provider.CallWithPrompt +
// ParseJSONResponse envelope already supports (the same plumbing marker.rs
// itself uses, per its imports).
const (
	maxMarkerInputChars   = 100_000
	minMessagesForMarkers = 10
)

var validMarkerTypes = map[string]bool{
	store.MarkerBreakthrough: true,
	store.MarkerShip:         true,
	store.MarkerDecision:     true,
	store.MarkerBug:          true,
	store.MarkerStuck:        true,
}

const markerDetectionPrompt = `You are analyzing a coding session transcript to flag significant moments worth bookmarking. Look for:

- breakthrough: a hard problem finally got solved, or an "aha" moment
- ship: a feature, fix, or change was completed and considered done
- decision: a consequential technical choice was made between alternatives
- bug: a significant bug was found (not necessarily fixed yet)
- stuck: the session was stuck in a loop or repeatedly failing at the same thing

Each transcript line is prefixed with its event index in brackets, e.g. "[12] A: fixed it". Only flag genuinely significant moments; most sessions have at most a handful.

For each moment, provide:
- event_index: the bracketed index of the line it corresponds to
- marker_type: one of [breakthrough, ship, decision, bug, stuck]
- label: a short label (max 60 chars)
- description: optional one-sentence elaboration

Respond with ONLY a JSON array, no markdown. Return an empty array if nothing is significant enough to flag.`

type rawMarker struct {
	EventIndex  int     `json:"event_index"`
	MarkerType  string  `json:"marker_type"`
	Label       string  `json:"label"`
	Description *string `json:"description"`
}

func buildMarkerDetectionPrompt(sessionContent string) string {
	return fmt.Sprintf("%s\n\n<session_content>\n%s\n</session_content>\n\nRespond with a JSON array of markers:",
		markerDetectionPrompt, sessionContent)
}

func indexedLines(messages []*store.Message) []string {
	var lines []string
	for _, m := range messages {
		var side string
		switch m.Role {
		case store.RoleUser:
			side = "U"
		case store.RoleAssistant:
			side = "A"
		default:
			continue
		}
		lines = append(lines, fmt.Sprintf("[%d] %s: %s", m.SequenceNum, side, truncateRunes(m.ContentPreview, skillGenericLineChars)))
	}
	return lines
}

func parseMarkers(response string) ([]rawMarker, error) {
	var markers []rawMarker
	if err := invoker.ParseJSONResponse(response, &markers); err != nil {
		return nil, err
	}
	return markers, nil
}

// DetectMarkers gathers sess's transcript and asks the AI provider to flag
// significant moments (breakthroughs, shipped work, decisions, bugs, and
// stuck loops), persisting each as a store.Marker.
func DetectMarkers(ctx context.Context, st store.Store, inv *invoker.Invoker, sessionID string, notify Notifier) MarkerResult {
	notify.MarkerStart(sessionID)

	messages, err := st.GetMessages(ctx, sessionID, 0)
	if err != nil {
		notify.MarkerError(sessionID, err.Error())
		return MarkerResult{SessionID: sessionID, Err: err}
	}

	lines := indexedLines(messages)
	if len(lines) < minMessagesForMarkers {
		notify.MarkerComplete(sessionID, 0)
		return MarkerResult{SessionID: sessionID}
	}
	content := strings.Join(lines, "\n")
	if len(content) > maxMarkerInputChars {
		content = content[:maxMarkerInputChars]
	}

	output, err := inv.CallWithPrompt(ctx, buildMarkerDetectionPrompt(content))
	if err != nil {
		notify.MarkerError(sessionID, err.Error())
		return MarkerResult{SessionID: sessionID, Err: err}
	}

	raw, err := parseMarkers(output)
	if err != nil {
		notify.MarkerError(sessionID, err.Error())
		return MarkerResult{SessionID: sessionID, Err: err}
	}

	var created int
	for _, rm := range raw {
		if !validMarkerTypes[rm.MarkerType] {
			continue
		}
		err := st.UpsertMarker(ctx, &store.Marker{
			SessionID:   sessionID,
			EventIndex:  rm.EventIndex,
			MarkerType:  rm.MarkerType,
			Label:       rm.Label,
			Description: rm.Description,
		})
		if err != nil {
			continue
		}
		created++
	}

	notify.MarkerComplete(sessionID, created)
	return MarkerResult{SessionID: sessionID, Created: created}
}
