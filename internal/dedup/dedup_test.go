package dedup

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestConcurrentCallersShareOneCall(t *testing.T) {
	d := New()

	var invocations int64
	release := make(chan struct{})
	fn := func() (interface{}, error) {
		atomic.AddInt64(&invocations, 1)
		<-release
		return "payload", nil
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]interface{}, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = d.Do("k", fn)
		}(i)
	}

	// Give every caller time to join the flight before it settles.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt64(&invocations); got != 1 {
		t.Fatalf("fn invoked %d times, want 1", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: unexpected error %v", i, errs[i])
		}
		if results[i] != "payload" {
			t.Fatalf("caller %d: got %v", i, results[i])
		}
	}

	stats := d.Stats()
	if stats.Misses != 1 {
		t.Errorf("misses = %d, want 1", stats.Misses)
	}
	if stats.Hits != callers-1 {
		t.Errorf("hits = %d, want %d", stats.Hits, callers-1)
	}
}

func TestErrorSharedByAllWaiters(t *testing.T) {
	d := New()
	wantErr := errors.New("provider down")

	release := make(chan struct{})
	fn := func() (interface{}, error) {
		<-release
		return nil, wantErr
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = d.Do("k", fn)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, wantErr) {
			t.Errorf("caller %d: got %v, want shared error", i, err)
		}
	}
}

func TestSequentialCallsDoNotShare(t *testing.T) {
	d := New()

	var invocations int64
	fn := func() (interface{}, error) {
		atomic.AddInt64(&invocations, 1)
		return nil, nil
	}

	// The flight slot must be cleared after settlement: a later caller
	// starts a new fetch instead of receiving a completed one.
	if _, err := d.Do("k", fn); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := d.Do("k", fn); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if got := atomic.LoadInt64(&invocations); got != 2 {
		t.Fatalf("fn invoked %d times, want 2", got)
	}

	stats := d.Stats()
	if stats.Misses != 2 || stats.Hits != 0 {
		t.Errorf("stats = %+v, want 2 misses, 0 hits", stats)
	}
}

func TestDistinctKeysRunIndependently(t *testing.T) {
	d := New()

	var invocations int64
	release := make(chan struct{})
	fn := func() (interface{}, error) {
		atomic.AddInt64(&invocations, 1)
		<-release
		return nil, nil
	}

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			d.Do(key, fn)
		}(key)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt64(&invocations); got != 2 {
		t.Fatalf("fn invoked %d times for two keys, want 2", got)
	}
}

func TestStatsEmpty(t *testing.T) {
	d := New()
	stats := d.Stats()
	if stats.Hits != 0 || stats.Misses != 0 || stats.HitRate != 0 {
		t.Fatalf("zero-value stats wrong: %+v", stats)
	}
}
