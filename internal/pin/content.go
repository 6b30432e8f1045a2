package pin

import (
	"errors"
	"fmt"
	"strings"

	"pinbot/internal/storage"
)

// ErrInvalidContent marks content rejected before any state mutation.
var ErrInvalidContent = errors.New("invalid content")

// Telegram HTML subset. The full sanitizer lives with the admin frontend;
// this is the boundary check that keeps obviously broken markup out of a
// broadcast.
var allowedTags = map[string]bool{
	"b": true, "strong": true,
	"i": true, "em": true,
	"u": true, "ins": true,
	"s": true, "strike": true, "del": true,
	"a": true, "code": true, "pre": true,
	"span": true, "tg-spoiler": true, "blockquote": true,
}

// ValidateContent checks the invariants of a message's content fields:
// content may be empty only if media is present, a media file reference is
// required iff a media type is set, and markup must be balanced Telegram
// HTML.
func ValidateContent(content string, media storage.MediaType, fileID string) error {
	if media == "" {
		media = storage.MediaNone
	}
	if !media.Valid() {
		return fmt.Errorf("%w: unknown media type %q", ErrInvalidContent, media)
	}
	hasMedia := media != storage.MediaNone
	if !hasMedia && strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is required without media", ErrInvalidContent)
	}
	if hasMedia && strings.TrimSpace(fileID) == "" {
		return fmt.Errorf("%w: media file id is required for media type %q", ErrInvalidContent, media)
	}
	if !hasMedia && strings.TrimSpace(fileID) != "" {
		return fmt.Errorf("%w: media file id set without media type", ErrInvalidContent)
	}
	if err := checkMarkup(content); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	return nil
}

// checkMarkup verifies that content only uses the allowed tag subset and
// that tags are properly nested.
func checkMarkup(content string) error {
	var stack []string
	rest := content
	for {
		open := strings.IndexByte(rest, '<')
		if open < 0 {
			break
		}
		rest = rest[open+1:]
		close := strings.IndexByte(rest, '>')
		if close < 0 {
			return errors.New("unterminated tag")
		}
		tag := strings.TrimSpace(rest[:close])
		rest = rest[close+1:]

		closing := strings.HasPrefix(tag, "/")
		tag = strings.TrimPrefix(tag, "/")
		// Drop attributes (e.g. a href=..., span class=...).
		if i := strings.IndexAny(tag, " \t\n"); i >= 0 {
			tag = tag[:i]
		}
		tag = strings.ToLower(tag)
		if tag == "" {
			return errors.New("empty tag")
		}
		if !allowedTags[tag] {
			return fmt.Errorf("tag <%s> is not allowed", tag)
		}
		if closing {
			if len(stack) == 0 || stack[len(stack)-1] != tag {
				return fmt.Errorf("unexpected closing tag </%s>", tag)
			}
			stack = stack[:len(stack)-1]
			continue
		}
		stack = append(stack, tag)
	}
	if len(stack) > 0 {
		return fmt.Errorf("unclosed tag <%s>", stack[len(stack)-1])
	}
	return nil
}
