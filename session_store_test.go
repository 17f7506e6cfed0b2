package b2uploader

import (
	"errors"
	"testing"
	"time"
)

func TestLargeFileSessionStoreCreateAndGet(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store := NewLargeFileSessionStore(45 * time.Minute)
	store.timeNowFn = func() time.Time {
		return now
	}

	session, err := store.Create(&LargeFileSession{
		ID:        "session-1",
		Path:      "/tmp/video.mp4",
		Name:      "clips/video.mp4",
		TotalSize: 128,
		PartSize:  64,
		PartCount: 2,
	})
	if err != nil {
		t.Fatalf("expected no error creating session, got %v", err)
	}

	if session.CreatedAt != now {
		t.Fatalf("expected CreatedAt to be %v, got %v", now, session.CreatedAt)
	}

	if session.ExpiresAt != now.Add(45*time.Minute) {
		t.Fatalf("unexpected ExpiresAt %v", session.ExpiresAt)
	}

	if session.State != LargeFileStatePlanned {
		t.Fatalf("expected planned state, got %s", session.State)
	}

	got, ok := store.Get("session-1")
	if !ok {
		t.Fatalf("expected session to be retrievable")
	}
	if got.Name != "clips/video.mp4" {
		t.Fatalf("unexpected session data: %#v", got)
	}

	if _, err := store.Create(&LargeFileSession{ID: "session-1", PartCount: 1}); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected duplicate session error, got %v", err)
	}

	if _, err := store.Create(&LargeFileSession{ID: "no-parts"}); err == nil {
		t.Fatalf("expected validation error for empty plan")
	}
}

func TestLargeFileSessionStoreLifecycle(t *testing.T) {
	store := NewLargeFileSessionStore(time.Hour)

	if _, err := store.Create(&LargeFileSession{ID: "s", PartCount: 2}); err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := store.MarkInFlight("s"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected planned -> in_flight to be rejected, got %v", err)
	}

	started, err := store.MarkStarted("s", "file-1")
	if err != nil {
		t.Fatalf("mark started: %v", err)
	}
	if started.FileID != "file-1" {
		t.Fatalf("expected file id to be stored, got %q", started.FileID)
	}

	if _, err := store.AckPart("s", PartResult{Number: 1}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ack before in_flight to fail, got %v", err)
	}

	if _, err := store.MarkInFlight("s"); err != nil {
		t.Fatalf("mark in flight: %v", err)
	}

	if _, err := store.AckPart("s", PartResult{Number: 3}); err == nil {
		t.Fatalf("expected ack outside plan to fail")
	}

	if _, err := store.AckPart("s", PartResult{Number: 2, SHA1: "b"}); err != nil {
		t.Fatalf("ack part 2: %v", err)
	}

	if _, err := store.AckPart("s", PartResult{Number: 2, SHA1: "b"}); !errors.Is(err, ErrPartAlreadyAcked) {
		t.Fatalf("expected duplicate ack error, got %v", err)
	}

	if _, err := store.MarkAcked("s"); !errors.Is(err, ErrPartSlotMissing) {
		t.Fatalf("expected missing part error, got %v", err)
	}

	if _, err := store.AckPart("s", PartResult{Number: 1, SHA1: "a"}); err != nil {
		t.Fatalf("ack part 1: %v", err)
	}

	if _, err := store.MarkAcked("s"); err != nil {
		t.Fatalf("mark acked: %v", err)
	}

	final, err := store.MarkFinalized("s")
	if err != nil {
		t.Fatalf("mark finalized: %v", err)
	}
	if final.State != LargeFileStateFinalized || len(final.Acked) != 2 {
		t.Fatalf("unexpected final session %#v", final)
	}

	if _, err := store.MarkFailed("s", errors.New("late")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected terminal session to reject failure, got %v", err)
	}
}

func TestLargeFileSessionStoreMarkFailedFromAnyState(t *testing.T) {
	store := NewLargeFileSessionStore(time.Hour)
	cause := errors.New("boom")

	for _, advance := range []int{0, 1, 2} {
		id := string(rune('a' + advance))
		if _, err := store.Create(&LargeFileSession{ID: id, PartCount: 1}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
		if advance >= 1 {
			if _, err := store.MarkStarted(id, "f"); err != nil {
				t.Fatalf("start %s: %v", id, err)
			}
		}
		if advance >= 2 {
			if _, err := store.MarkInFlight(id); err != nil {
				t.Fatalf("in flight %s: %v", id, err)
			}
		}

		failed, err := store.MarkFailed(id, cause)
		if err != nil {
			t.Fatalf("mark failed %s: %v", id, err)
		}
		if failed.State != LargeFileStateFailed || failed.Err != cause {
			t.Fatalf("unexpected failed session %#v", failed)
		}
	}
}

func TestLargeFileSessionStoreReturnsCopies(t *testing.T) {
	store := NewLargeFileSessionStore(time.Hour)
	if _, err := store.Create(&LargeFileSession{ID: "s", PartCount: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _ = store.MarkStarted("s", "f")
	_, _ = store.MarkInFlight("s")

	session, err := store.AckPart("s", PartResult{Number: 1, SHA1: "a"})
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	session.Acked[1] = PartResult{Number: 1, SHA1: "mutated"}

	got, _ := store.Get("s")
	if got.Acked[1].SHA1 != "a" {
		t.Fatalf("expected stored ack to be isolated, got %q", got.Acked[1].SHA1)
	}
}

func TestLargeFileSessionStoreCleanupExpired(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store := NewLargeFileSessionStore(time.Minute)
	store.timeNowFn = func() time.Time { return now }

	if _, err := store.Create(&LargeFileSession{ID: "old", PartCount: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := store.Get("old"); ok {
		t.Fatalf("expected expired session to be hidden")
	}

	if _, err := store.MarkStarted("old", "f"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found for expired session, got %v", err)
	}

	if _, err := store.Create(&LargeFileSession{ID: "older", PartCount: 1, ExpiresAt: now.Add(-time.Second)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	removed := store.CleanupExpired(now)
	if len(removed) != 1 || removed[0] != "older" {
		t.Fatalf("expected older to be removed, got %v", removed)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d", store.Len())
	}
}
