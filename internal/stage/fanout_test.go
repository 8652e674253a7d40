package stage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func constSpec(id string, out string, err error) Spec[string, string] {
	return Spec[string, string]{
		ID: id,
		Invoke: func(ctx context.Context, in string) (string, error) {
			if err != nil {
				return "", err
			}
			return out + ":" + in, nil
		},
		Retry: NoRetry(),
	}
}

func TestFanOut_OneEntryPerTask(t *testing.T) {
	for _, m := range []int{0, 1, 2, 7} {
		t.Run(fmt.Sprintf("m_%d", m), func(t *testing.T) {
			tasks := make([]Task, 0, m)
			for i := 0; i < m; i++ {
				var err error
				if i%2 == 1 {
					err = fmt.Errorf("task %d failed", i)
				}
				tasks = append(tasks, Bind(constSpec(fmt.Sprintf("s%d", i), "ok", err), "in"))
			}
			results, err := NewFanOut(nil, 0).RunAll(context.Background(), tasks...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(results) != m {
				t.Fatalf("expected %d results, got %d", m, len(results))
			}
			for i := 0; i < m; i++ {
				id := fmt.Sprintf("s%d", i)
				res, ok := Get[string](results, id)
				if !ok {
					t.Fatalf("missing result for %s", id)
				}
				if wantOK := i%2 == 0; res.OK() != wantOK {
					t.Fatalf("%s: OK=%v, want %v", id, res.OK(), wantOK)
				}
				if res.OK() && res.Output() != "ok:in" {
					t.Fatalf("%s: unexpected output %q", id, res.Output())
				}
			}
		})
	}
}

func TestFanOut_RunsConcurrently(t *testing.T) {
	var ready sync.WaitGroup
	ready.Add(2)
	barrier := func(ctx context.Context, in string) (string, error) {
		ready.Done()
		waited := make(chan struct{})
		go func() { ready.Wait(); close(waited) }()
		select {
		case <-waited:
			return in, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	a := Spec[string, string]{ID: "a", Invoke: barrier, Timeout: time.Second, Retry: NoRetry()}
	b := Spec[string, string]{ID: "b", Invoke: barrier, Timeout: time.Second, Retry: NoRetry()}

	results, err := NewFanOut(nil, 0).RunAll(context.Background(), Bind(a, "1"), Bind(b, "2"))
	if err != nil {
		t.Fatal(err)
	}
	for id, r := range results {
		if !r.OK() {
			t.Fatalf("%s did not run alongside its sibling: %s", id, r.Message())
		}
	}
}

func TestFanOut_FailureDoesNotCancelSiblings(t *testing.T) {
	failing := constSpec("fails", "", errors.New("upstream down"))
	slow := Spec[string, string]{
		ID: "slow",
		Invoke: func(ctx context.Context, in string) (string, error) {
			select {
			case <-time.After(50 * time.Millisecond):
				return "done", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
		Retry: NoRetry(),
	}
	results, err := NewFanOut(nil, 0).RunAll(context.Background(), Bind(failing, "x"), Bind(slow, "x"))
	if err != nil {
		t.Fatal(err)
	}
	if results["fails"].OK() {
		t.Fatal("expected failing task to fail")
	}
	if results["fails"].Message() != "upstream down" {
		t.Fatalf("unexpected message %q", results["fails"].Message())
	}
	if !results["slow"].OK() {
		t.Fatalf("sibling was canceled: %s", results["slow"].Message())
	}
}

func TestFanOut_TimeoutStillYieldsEntry(t *testing.T) {
	hang := Spec[string, string]{
		ID: "hang",
		Invoke: func(ctx context.Context, in string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
		Timeout: 10 * time.Millisecond,
		Retry:   NoRetry(),
	}
	results, err := NewFanOut(nil, 0).RunAll(context.Background(), Bind(hang, "x"), Bind(constSpec("fast", "ok", nil), "x"))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(results))
	}
	if results["hang"].Kind() != KindTimeout {
		t.Fatalf("expected timeout, got %q", results["hang"].Kind())
	}
}

func TestFanOut_Limit(t *testing.T) {
	var running, peak int32
	spec := func(id string) Spec[string, string] {
		return Spec[string, string]{
			ID: id,
			Invoke: func(ctx context.Context, in string) (string, error) {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return in, nil
			},
			Retry: NoRetry(),
		}
	}
	_, err := NewFanOut(nil, 1).RunAll(context.Background(),
		Bind(spec("a"), "x"), Bind(spec("b"), "x"), Bind(spec("c"), "x"))
	if err != nil {
		t.Fatal(err)
	}
	if peak != 1 {
		t.Fatalf("expected at most 1 concurrent task, saw %d", peak)
	}
}

func TestFanOut_RejectsDuplicateIDs(t *testing.T) {
	var calls int32
	spec := Spec[string, string]{
		ID: "dup",
		Invoke: func(ctx context.Context, in string) (string, error) {
			atomic.AddInt32(&calls, 1)
			return in, nil
		},
	}
	_, err := NewFanOut(nil, 0).RunAll(context.Background(), Bind(spec, "a"), Bind(spec, "b"))
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation kind, got %q", KindOf(err))
	}
	if calls != 0 {
		t.Fatalf("nothing should run for a malformed set, got %d calls", calls)
	}
}

func TestFanOut_RejectsTaskWithoutID(t *testing.T) {
	var calls int32
	spec := constSpec("", "ok", nil)
	spec.Invoke = func(ctx context.Context, in string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return in, nil
	}
	_, err := NewFanOut(nil, 0).RunAll(context.Background(), Bind(constSpec("s0", "ok", nil), "in"), Bind(spec, "in"))
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("nothing should run for a malformed set, got %d calls", calls)
	}
}
