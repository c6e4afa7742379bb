package window

import (
	"fmt"
	"strings"
)

// trimMarker tags already-trimmed tool results so a second pass skips them.
const trimMarker = "[tool result trimmed"

// previewChars is how much of a trimmed result survives as a preview.
const previewChars = 120

// TrimmedItem records one trimmed tool result.
type TrimmedItem struct {
	Tool         string
	OriginalSize int
}

// TrimReport is the outcome of one trim pass.
type TrimReport struct {
	Count      int
	Items      []TrimmedItem
	BytesSaved int
}

// TrimOldToolResults replaces the content of tool-role messages older than
// the last recentKeep messages with a short preview plus a placeholder. The
// messages themselves (and their tool-call IDs) stay: the completion API
// requires every tool call to keep a matching result. No model call is
// involved; this is the cheap reduction phase.
func (w *Window) TrimOldToolResults(recentKeep int) TrimReport {
	w.mu.Lock()
	defer w.mu.Unlock()

	if recentKeep < 0 {
		recentKeep = 0
	}
	cutoff := len(w.msgs) - recentKeep
	if cutoff <= 0 {
		return TrimReport{}
	}

	var report TrimReport
	for i := 0; i < cutoff; i++ {
		msg := &w.msgs[i]
		if msg.Role != "tool" {
			continue
		}
		if strings.Contains(msg.Content, trimMarker) {
			continue
		}
		origLen := len(msg.Content)
		preview := msg.Content
		if len(preview) > previewChars {
			preview = preview[:previewChars] + "..."
		}
		replacement := fmt.Sprintf("%s\n%s: %d chars]", preview, trimMarker, origLen)
		if len(replacement) >= origLen {
			continue
		}

		msg.Content = replacement
		report.Count++
		report.BytesSaved += origLen - len(replacement)
		report.Items = append(report.Items, TrimmedItem{
			Tool:         msg.ToolName,
			OriginalSize: origLen,
		})
	}
	return report
}
