package locks

import (
	"testing"
	"time"
)

func TestAcquireContention(t *testing.T) {
	r := NewRegistry()

	if err := r.Acquire("video:1", time.Minute); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}
	if err := r.Acquire("video:1", time.Minute); err != ErrLocked {
		t.Errorf("Expected ErrLocked on contended acquire, got %v", err)
	}
	if err := r.Acquire("video:2", time.Minute); err != nil {
		t.Errorf("Unrelated key should acquire, got %v", err)
	}
}

func TestReleaseFreesKey(t *testing.T) {
	r := NewRegistry()

	if err := r.Acquire("channel:7", time.Minute); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	r.Release("channel:7")
	if r.IsLocked("channel:7") {
		t.Error("Key should be free after release")
	}
	if err := r.Acquire("channel:7", time.Minute); err != nil {
		t.Errorf("Reacquire after release failed: %v", err)
	}
}

func TestReleaseAbsentKeyIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Release("never:held")
	if r.IsLocked("never:held") {
		t.Error("Absent key should not read as locked")
	}
}

func TestTTLExpiry(t *testing.T) {
	r := NewRegistry()

	if err := r.Acquire("video:9", 25*time.Millisecond); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !r.IsLocked("video:9") {
		t.Fatal("Key should be held before TTL")
	}
	time.Sleep(50 * time.Millisecond)
	if r.IsLocked("video:9") {
		t.Error("Key should expire after TTL")
	}
	if err := r.Acquire("video:9", time.Minute); err != nil {
		t.Errorf("Acquire after expiry failed: %v", err)
	}
}

func TestObjectLocks(t *testing.T) {
	r := NewRegistry()

	if err := r.LockObject("video", 42, time.Minute); err != nil {
		t.Fatalf("LockObject failed: %v", err)
	}
	if !r.IsObjectLocked("video", 42) {
		t.Error("Object should read as locked")
	}
	if r.IsObjectLocked("video", 43) {
		t.Error("Different id should not read as locked")
	}
	if r.IsObjectLocked("channel", 42) {
		t.Error("Different entity type should not read as locked")
	}
	r.UnlockObject("video", 42)
	if r.IsObjectLocked("video", 42) {
		t.Error("Object should be free after unlock")
	}
}

func TestObjectKey(t *testing.T) {
	if got := ObjectKey("video", 5); got != "video:5" {
		t.Errorf("Expected video:5, got %s", got)
	}
}
