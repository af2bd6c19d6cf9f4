package async

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFutureCompleteOnce(t *testing.T) {
	f := NewFuture[int]()
	f.Complete(1)
	f.Complete(2)
	f.Fail(errors.New("late"))

	v, err := f.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != 1 {
		t.Errorf("value = %d, want 1 (first completion wins)", v)
	}
}

func TestFutureGetCancellation(t *testing.T) {
	f := NewFuture[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := f.Get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestFutureResolvesAcrossGoroutines(t *testing.T) {
	f := NewFuture[int]()
	go func() {
		time.Sleep(5 * time.Millisecond)
		f.Complete(42)
	}()
	v, err := f.Get(context.Background())
	if err != nil || v != 42 {
		t.Fatalf("Get = (%d, %v), want (42, nil)", v, err)
	}
}

func TestAwaitNonFuture(t *testing.T) {
	if _, _, ok := Await(context.Background(), 17); ok {
		t.Error("Await accepted a non-future value")
	}
	if IsFuture("nope") {
		t.Error("IsFuture accepted a string")
	}
}

func TestAwaitFailedFuture(t *testing.T) {
	sentinel := errors.New("boom")
	result, err, ok := Await(context.Background(), Failed[int](sentinel))
	if !ok {
		t.Fatal("Await did not recognize the future")
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want sentinel", err)
	}
	if result != 0 {
		t.Errorf("result = %v, want zero value", result)
	}
}

func TestOutcomeMatch(t *testing.T) {
	success, payload, ok := Match(Success[int, string](7))
	if !ok || !success || payload != 7 {
		t.Errorf("Match(Success) = (%v, %v, %v)", success, payload, ok)
	}

	success, payload, ok = Match(Failure[int, string]("bad"))
	if !ok || success || payload != "bad" {
		t.Errorf("Match(Failure) = (%v, %v, %v)", success, payload, ok)
	}

	if _, _, ok := Match(99); ok {
		t.Error("Match accepted a non-outcome value")
	}
}
