package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestBackoffDelay(t *testing.T) {
	p := DefaultBackoff()
	if p.Delay(1) != 500*time.Millisecond {
		t.Fatalf("attempt 1 delay = %v, want 500ms", p.Delay(1))
	}
	if p.Delay(2) != time.Second {
		t.Fatalf("attempt 2 delay = %v, want 1s", p.Delay(2))
	}
	if p.Delay(20) != p.Cap {
		t.Fatalf("attempt 20 delay = %v, want cap %v", p.Delay(20), p.Cap)
	}
}

func TestRetrySucceedsBeforeMaxAttempts(t *testing.T) {
	mc := clock.NewMock()
	p := BackoffPolicy{Base: time.Millisecond, Factor: 2, Cap: time.Second, MaxAttempt: 5, Clock: mc}

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Retry(context.Background(), func(attempt int) error {
			attempts++
			if attempt < 3 {
				return errors.New("not yet")
			}
			return nil
		})
	}()

	for i := 0; i < 10 && attempts < 3; i++ {
		mc.Add(time.Second)
		time.Sleep(time.Millisecond)
	}

	if err := <-done; err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRetryRespectsCancellation(t *testing.T) {
	p := DefaultBackoff()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Retry(ctx, func(attempt int) error { return errors.New("boom") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
