package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

func TestCircuitBreaker_ClosedState(t *testing.T) {
	cb := New(&Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      time.Second,
	})

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := cb.Execute(ctx, func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
	}
	if cb.GetState() != StateClosed {
		t.Errorf("expected closed, got: %v", cb.GetState())
	}

	// Failures below the threshold keep the circuit closed.
	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error { return errTest })
	}
	if cb.GetState() != StateClosed {
		t.Errorf("expected closed, got: %v", cb.GetState())
	}

	// A success resets the consecutive failure count.
	_ = cb.Execute(ctx, func(ctx context.Context) error { return nil })
	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error { return errTest })
	}
	if cb.GetState() != StateClosed {
		t.Errorf("expected closed after reset, got: %v", cb.GetState())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	var stateChanges []string
	cb := New(&Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      100 * time.Millisecond,
		OnStateChange: func(from, to State) {
			stateChanges = append(stateChanges, fmt.Sprintf("%s->%s", from, to))
		},
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error { return errTest })
	}

	if cb.GetState() != StateOpen {
		t.Fatalf("expected open, got: %v", cb.GetState())
	}

	// Open circuit rejects without running the operation.
	ran := false
	err := cb.Execute(ctx, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got: %v", err)
	}
	if ran {
		t.Error("operation must not run while the circuit is open")
	}

	if len(stateChanges) == 0 || stateChanges[0] != "closed->open" {
		t.Errorf("expected closed->open transition, got: %v", stateChanges)
	}

	stats := cb.GetStats()
	if stats.TotalRejections == 0 {
		t.Error("expected rejections to be counted")
	}
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	cb := New(&Config{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		OpenTimeout:      20 * time.Millisecond,
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error { return errTest })
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open, got: %v", cb.GetState())
	}

	time.Sleep(30 * time.Millisecond)

	// Two successful probes close the circuit again.
	for i := 0; i < 2; i++ {
		if err := cb.Execute(ctx, func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("probe %d failed: %v", i, err)
		}
	}
	if cb.GetState() != StateClosed {
		t.Errorf("expected closed after recovery, got: %v", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New(&Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		OpenTimeout:      10 * time.Millisecond,
	})

	ctx := context.Background()
	_ = cb.Execute(ctx, func(ctx context.Context) error { return errTest })
	time.Sleep(20 * time.Millisecond)

	_ = cb.Execute(ctx, func(ctx context.Context) error { return errTest })
	if cb.GetState() != StateOpen {
		t.Errorf("expected open after half-open failure, got: %v", cb.GetState())
	}
}

func TestCircuitBreaker_ShouldTripFilter(t *testing.T) {
	notFound := errors.New("not found")
	cb := New(&Config{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		OpenTimeout:      time.Second,
		ShouldTrip: func(err error) bool {
			return !errors.Is(err, notFound)
		},
	})

	ctx := context.Background()

	// Domain rejections pass through without tripping the circuit.
	for i := 0; i < 10; i++ {
		err := cb.Execute(ctx, func(ctx context.Context) error { return notFound })
		if !errors.Is(err, notFound) {
			t.Fatalf("expected notFound, got: %v", err)
		}
	}
	if cb.GetState() != StateClosed {
		t.Errorf("expected closed after non-tripping errors, got: %v", cb.GetState())
	}

	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error { return errTest })
	}
	if cb.GetState() != StateOpen {
		t.Errorf("expected open after tripping errors, got: %v", cb.GetState())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := New(&Config{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Hour})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errTest })
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open, got: %v", cb.GetState())
	}

	cb.Reset()
	if cb.GetState() != StateClosed {
		t.Errorf("expected closed after reset, got: %v", cb.GetState())
	}
}

func TestCircuitBreaker_ConcurrentExecutes(t *testing.T) {
	cb := New(DefaultConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = cb.Execute(ctx, func(ctx context.Context) error {
				if n%5 == 0 {
					return errTest
				}
				return nil
			})
		}(i)
	}
	wg.Wait()

	// Every call was either admitted or rejected, nothing lost to a race.
	stats := cb.GetStats()
	if got := stats.TotalRequests + stats.TotalRejections; got != 50 {
		t.Errorf("expected 50 calls accounted for, got: %d", got)
	}
	if state := cb.GetState(); state != StateClosed && state != StateOpen && state != StateHalfOpen {
		t.Errorf("invalid state after race test: %v", state)
	}
}

func TestRegistry_PerOperationBreakers(t *testing.T) {
	r := NewRegistry(&Config{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Hour})
	ctx := context.Background()

	// Open the searchEndpoints breaker only.
	_ = r.Execute(ctx, "searchEndpoints", func(ctx context.Context) error { return errTest })

	if got := r.Get("searchEndpoints").GetState(); got != StateOpen {
		t.Errorf("expected searchEndpoints breaker open, got: %v", got)
	}
	if got := r.Get("getSchema").GetState(); got != StateClosed {
		t.Errorf("expected getSchema breaker closed, got: %v", got)
	}

	err := r.Execute(ctx, "getSchema", func(ctx context.Context) error { return nil })
	if err != nil {
		t.Errorf("expected getSchema to pass, got: %v", err)
	}

	stats := r.Stats()
	if len(stats) != 2 {
		t.Errorf("expected stats for 2 operations, got: %d", len(stats))
	}
}
