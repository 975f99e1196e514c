package bot

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// urlRe mirrors the strict accept pattern for download links: http(s) scheme
// (case-insensitive) followed by any non-whitespace remainder.
var urlRe = regexp.MustCompile(`^(?i)https?://\S+$`)

// IsURL reports whether text is acceptable as a download link.
func IsURL(text string) bool {
	return urlRe.MatchString(strings.TrimSpace(text))
}

// parseCommand splits an inbound "/cmd arg ..." message into the bare command
// word and its arguments. The "@BotName" suffix used in group chats is
// stripped. Returns ok=false for non-command text.
func parseCommand(text string) (word string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}
	word = strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", nil, false
	}
	return strings.ToLower(word), parts[1:], true
}

func newReqID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}
