package pin

import (
	"context"
	"errors"
	"testing"
	"time"

	"pinbot/internal/storage"
	"pinbot/internal/transport"
)

func TestMassUnpinNothingActive(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.addRecipients(3)
	msgr := newFakeMessenger()
	svc := newTestService(st, msgr, Options{Cooldown: time.Hour})

	rep, err := svc.MassUnpin(context.Background())
	if err != nil {
		t.Fatalf("mass unpin: %v", err)
	}
	if rep.WasActive || rep.Unpinned != 0 || rep.Failed != 0 {
		t.Fatalf("report = %+v, want all-zero", rep)
	}
	if msgr.totalCalls() != 0 {
		t.Fatal("no-op mass unpin must make zero network calls")
	}

	// The gate armed anyway: even a no-op counts as a mass operation.
	var ce *CooldownError
	if _, err := svc.MassUnpin(context.Background()); !errors.As(err, &ce) {
		t.Fatalf("expected CooldownError on the second call, got %v", err)
	}
}

func TestMassUnpinDeactivatesAndClears(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.addRecipients(4)
	st.seedActive(storage.PinnedMessage{Content: "hi"})

	msgr := newFakeMessenger()
	// 1002: nothing pinned there, counts as success. 1003: blocked,
	// terminal. 1004: rate limited once, then fine.
	msgr.unpinErrs[1002] = []error{transport.ErrBadRequest}
	msgr.unpinErrs[1003] = []error{transport.ErrForbidden}
	msgr.unpinErrs[1004] = []error{&transport.FloodError{RetryAfter: time.Second}}

	svc := newTestService(st, msgr, Options{})
	rep, err := svc.MassUnpin(context.Background())
	if err != nil {
		t.Fatalf("mass unpin: %v", err)
	}

	if !rep.WasActive {
		t.Fatal("WasActive = false, want true")
	}
	if rep.Unpinned != 3 || rep.Failed != 1 {
		t.Fatalf("report = %+v, want Unpinned=3 Failed=1", rep)
	}
	if msgr.unpinCalls[1003] != 1 {
		t.Fatalf("blocked recipient got %d attempts, want 1", msgr.unpinCalls[1003])
	}
	if msgr.unpinCalls[1004] != 2 {
		t.Fatalf("rate-limited recipient got %d attempts, want 2", msgr.unpinCalls[1004])
	}

	active, err := st.ActiveMessage(context.Background())
	if err != nil {
		t.Fatalf("active lookup: %v", err)
	}
	if active != nil {
		t.Fatal("message still active after mass unpin")
	}
}

func TestMassUnpinDeactivatesBeforeFanout(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.addRecipients(2)
	st.seedActive(storage.PinnedMessage{Content: "hi"})
	st.pageErr = errors.New("disk gone")

	svc := newTestService(st, newFakeMessenger(), Options{})
	rep, err := svc.MassUnpin(context.Background())
	if err == nil {
		t.Fatal("expected snapshot error")
	}
	if !rep.WasActive {
		t.Fatal("deactivation happened, WasActive must be true")
	}
	active, _ := st.ActiveMessage(context.Background())
	if active != nil {
		t.Fatal("deactivation must stick even when the fan-out cannot start")
	}
}
