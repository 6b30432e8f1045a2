package transport

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrForbidden marks a recipient that cannot be reached at all
	// (blocked the bot, deactivated account). Terminal per recipient.
	ErrForbidden = errors.New("recipient forbidden")

	// ErrBadRequest marks a request the API rejected as malformed or
	// inapplicable (e.g. nothing to unpin). Never retried.
	ErrBadRequest = errors.New("bad request")
)

// FloodError reports an API rate limit together with the server-specified
// wait before the call may be repeated.
type FloodError struct {
	RetryAfter time.Duration
}

func (e *FloodError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// RetryAfter extracts the rate-limit wait from err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var fe *FloodError
	if errors.As(err, &fe) {
		return fe.RetryAfter, true
	}
	return 0, false
}

func IsForbidden(err error) bool  { return errors.Is(err, ErrForbidden) }
func IsBadRequest(err error) bool { return errors.Is(err, ErrBadRequest) }
