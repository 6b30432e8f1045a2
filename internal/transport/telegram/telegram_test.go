package telegram

import (
	"errors"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"pinbot/internal/transport"
)

func TestClassifyFlood(t *testing.T) {
	t.Parallel()
	err := classify(tele.FloodError{
		Error:      tele.NewError(429, "Too Many Requests: retry after 7"),
		RetryAfter: 7,
	})
	ra, ok := transport.RetryAfter(err)
	if !ok {
		t.Fatalf("expected flood classification, got %v", err)
	}
	if ra != 7*time.Second {
		t.Fatalf("RetryAfter = %v, want 7s", ra)
	}
}

func TestClassifyFloodZeroRetryAfter(t *testing.T) {
	t.Parallel()
	err := classify(tele.FloodError{Error: tele.NewError(429, "Too Many Requests")})
	ra, ok := transport.RetryAfter(err)
	if !ok || ra <= 0 {
		t.Fatalf("expected positive retry-after fallback, got %v ok=%v", ra, ok)
	}
}

func TestClassifyForbiddenAndBadRequest(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want func(error) bool
	}{
		{name: "blocked", err: tele.ErrBlockedByUser, want: transport.IsForbidden},
		{name: "deactivated", err: tele.NewError(403, "Forbidden: user is deactivated"), want: transport.IsForbidden},
		{name: "nothing to unpin", err: tele.NewError(400, "Bad Request: message to unpin not found"), want: transport.IsBadRequest},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); !tt.want(got) {
				t.Fatalf("classify(%v) = %v, wrong class", tt.err, got)
			}
		})
	}
}

func TestClassifyPassthrough(t *testing.T) {
	t.Parallel()
	base := errors.New("connection reset")
	got := classify(base)
	if !errors.Is(got, base) {
		t.Fatalf("generic error should pass through, got %v", got)
	}
	if transport.IsForbidden(got) || transport.IsBadRequest(got) {
		t.Fatal("generic error misclassified")
	}
	if _, ok := transport.RetryAfter(got); ok {
		t.Fatal("generic error misclassified as flood")
	}
}
