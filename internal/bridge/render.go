// ABOUTME: Outbound text rendering for the configured format.
// ABOUTME: html mode converts the markdown body to HTML via goldmark.

package bridge

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
)

// render prepares outbound text for the configured format and returns the
// body plus the wire textFormat value. In html mode the markdown body is
// converted to HTML and sent as markup; conversion failure falls back to
// plain text rather than dropping the message.
func (b *Bridge) render(text string) (string, string) {
	switch b.opts.Bot.TextFormat {
	case "html":
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(text), &buf); err != nil {
			b.logger.Warn("markdown rendering failed, sending plain text", "error", err)
			return text, "plain"
		}
		return strings.TrimSpace(buf.String()), "xml"
	case "plain":
		return text, "plain"
	default:
		return text, "markdown"
	}
}
