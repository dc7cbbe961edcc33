package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCallResilientRetriesTimedOutAttempts(t *testing.T) {
	calls := 0
	_, err := callResilient(context.Background(), 3, time.Millisecond, 20*time.Millisecond,
		func(ctx context.Context) (string, error) {
			calls++
			<-ctx.Done()
			return "", ctx.Err()
		})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("attempts = %d, want 3: each timed-out call must leave retry budget for the next", calls)
	}
}

func TestCallResilientRecoversAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := callResilient(context.Background(), 3, time.Millisecond, time.Second,
		func(_ context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("transient")
			}
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("callResilient: %v", err)
	}
	if got != "ok" {
		t.Errorf("result = %q", got)
	}
	if calls != 3 {
		t.Errorf("attempts = %d, want 3", calls)
	}
}

func TestCallResilientStopsOnParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := callResilient(ctx, 5, time.Millisecond, time.Second,
		func(_ context.Context) (string, error) {
			calls++
			cancel()
			return "", errors.New("transient")
		})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if calls >= 5 {
		t.Errorf("attempts = %d, want retries abandoned once the run is cancelled", calls)
	}
}
