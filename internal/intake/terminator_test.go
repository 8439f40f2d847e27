package intake

import (
	"context"
	"errors"
	"testing"
)

func TestTerminateIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newFakeSession("c1")
	term := NewCallTerminator(cancel, 0)

	if err := term.Terminate(ctx, s); err != nil {
		t.Fatalf("first Terminate() error = %v", err)
	}
	if err := term.Terminate(ctx, s); err != nil {
		t.Fatalf("second Terminate() error = %v", err)
	}
	if got := s.deletes.Load(); got != 1 {
		t.Fatalf("Delete called %d times, want 1", got)
	}
	if ctx.Err() == nil {
		t.Fatal("call context not cancelled")
	}
}

func TestTerminateTreatsMissingSessionAsSuccess(t *testing.T) {
	s := newFakeSession("c1")
	s.deletes.Store(1) // already released elsewhere
	term := NewCallTerminator(nil, 0)
	if err := term.Terminate(context.Background(), s); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
}

func TestTerminateReleasesAfterCallContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newFakeSession("c1")
	if err := NewCallTerminator(cancel, 0).Terminate(ctx, s); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	if s.deletes.Load() != 1 {
		t.Fatal("session not released")
	}
}

func TestTerminateReportsReleaseFailureOnce(t *testing.T) {
	s := newFakeSession("c1")
	s.deleteErr = errors.New("websocket write failed")
	term := NewCallTerminator(nil, 0)
	if err := term.Terminate(context.Background(), s); err == nil {
		t.Fatal("expected release error")
	}
	if err := term.Terminate(context.Background(), s); err != nil {
		t.Fatalf("second Terminate() error = %v", err)
	}
}
