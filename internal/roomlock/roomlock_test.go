package roomlock

import (
	"context"
	"testing"
	"time"

	"github.com/discretlib/discret/internal/uid"
)

func TestLockExcludesSameRoom(t *testing.T) {
	m := NewManager(4)
	room := uid.MustNew()
	ctx := context.Background()

	release1, err := m.Lock(ctx, room)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	locked := make(chan struct{})
	go func() {
		release2, err := m.Lock(ctx, room)
		if err != nil {
			t.Error(err)
			return
		}
		close(locked)
		release2()
	}()

	select {
	case <-locked:
		t.Fatal("second Lock on the same room should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	release1()
	select {
	case <-locked:
	case <-time.After(time.Second):
		t.Fatal("second Lock should have proceeded after release")
	}
}

func TestLockRespectsGlobalConcurrencyLimit(t *testing.T) {
	m := NewManager(1)
	ctx := context.Background()

	release1, err := m.Lock(ctx, uid.MustNew())
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := m.Lock(ctxTimeout, uid.MustNew()); err == nil {
		t.Fatal("expected second room's Lock to block on the global semaphore")
	}
	release1()
}

func TestVerifyAllPreservesOrder(t *testing.T) {
	verifiers := make([]Verifier, 10)
	for i := range verifiers {
		i := i
		verifiers[i] = func() bool { return i%2 == 0 }
	}
	results := VerifyAll(verifiers, 4)
	for i, got := range results {
		want := i%2 == 0
		if got != want {
			t.Fatalf("results[%d] = %v, want %v", i, got, want)
		}
	}
}
