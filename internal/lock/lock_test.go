package lock

import (
	"testing"
	"time"

	"coredb/internal/dberr"
)

func TestSharedLocksAreCompatible(t *testing.T) {
	m := New()
	id := TableData(1)
	if err := m.Acquire(1, id, S); err != nil {
		t.Fatalf("txn1 Acquire S: %v", err)
	}
	if err := m.Acquire(2, id, S); err != nil {
		t.Fatalf("txn2 Acquire S: %v", err)
	}
}

func TestRequestingHeldModeIsNoop(t *testing.T) {
	m := New()
	id := TableData(1)
	if err := m.Acquire(1, id, X); err != nil {
		t.Fatalf("Acquire X: %v", err)
	}
	if err := m.Acquire(1, id, S); err != nil {
		t.Fatalf("re-request dominated by X should succeed: %v", err)
	}
}

func TestUpgradeInPlaceForSoleHolder(t *testing.T) {
	m := New()
	id := TableData(1)
	if err := m.Acquire(1, id, S); err != nil {
		t.Fatalf("Acquire S: %v", err)
	}
	if err := m.Acquire(1, id, X); err != nil {
		t.Fatalf("upgrade S->X: %v", err)
	}
	mode, ok := m.HeldMode(1, id)
	if !ok || mode != X {
		t.Fatalf("HeldMode = %v, %v; want X, true", mode, ok)
	}
}

func TestWoundWaitAbortsYoungerRequester(t *testing.T) {
	m := New()
	id := TableData(1)
	if err := m.Acquire(10, id, X); err != nil {
		t.Fatalf("txn10 Acquire X: %v", err)
	}
	err := m.Acquire(20, id, S)
	if !dberr.IsDeadlockPrevention(err) {
		t.Fatalf("expected deadlock-prevention abort, got %v", err)
	}
}

func TestOlderRequesterWaitsThenGrants(t *testing.T) {
	m := New()
	id := TableData(1)
	if err := m.Acquire(20, id, X); err != nil {
		t.Fatalf("txn20 Acquire X: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- m.Acquire(10, id, S) }()

	select {
	case err := <-done:
		t.Fatalf("older requester should block, not return immediately (err=%v)", err)
	case <-time.After(50 * time.Millisecond):
	}

	m.Release(20, id)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("blocked request should succeed after release: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked request never woke up after release")
	}
}

func TestReleaseAllClearsEveryLock(t *testing.T) {
	m := New()
	a, b := TableData(1), TableData(2)
	m.Acquire(1, a, S)
	m.Acquire(1, b, X)
	m.ReleaseAll(1)
	if _, ok := m.HeldMode(1, a); ok {
		t.Fatalf("lock on a should be released")
	}
	if _, ok := m.HeldMode(1, b); ok {
		t.Fatalf("lock on b should be released")
	}
}
