package debounce

import (
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	values []string
	at     []time.Time
	ch     chan struct{}
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan struct{}, 16)}
}

func (r *recorder) emit(v string) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.at = append(r.at, time.Now())
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.values...)
}

func TestBurstEmitsOnlyLastValue(t *testing.T) {
	rec := newRecorder()
	d := New(50*time.Millisecond, rec.emit)
	defer d.Stop()

	d.Set("b")
	d.Set("ba")
	d.Set("bat")
	last := time.Now()

	select {
	case <-rec.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never emitted")
	}
	// Give a stray earlier timer the chance to fire.
	time.Sleep(120 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 1 || got[0] != "bat" {
		t.Fatalf("expected only %q, got %v", "bat", got)
	}
	rec.mu.Lock()
	elapsed := rec.at[0].Sub(last)
	rec.mu.Unlock()
	if elapsed < 50*time.Millisecond {
		t.Fatalf("emitted after %v, before the quiet period", elapsed)
	}
}

func TestSeparatedValuesBothEmit(t *testing.T) {
	rec := newRecorder()
	d := New(20*time.Millisecond, rec.emit)
	defer d.Stop()

	d.Set("first")
	<-rec.ch
	d.Set("second")
	select {
	case <-rec.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("second value never emitted")
	}

	got := rec.snapshot()
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("unexpected emissions: %v", got)
	}
}

func TestStopDiscardsPendingValue(t *testing.T) {
	rec := newRecorder()
	d := New(20*time.Millisecond, rec.emit)

	d.Set("x")
	if !d.Pending() {
		t.Fatal("expected a pending value")
	}
	d.Stop()
	d.Set("y")
	time.Sleep(80 * time.Millisecond)

	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("expected no emissions after Stop, got %v", got)
	}
	if d.Pending() {
		t.Fatal("stopped debouncer reports a pending value")
	}
}

func TestFlushEmitsImmediatelyAndCancelsPending(t *testing.T) {
	rec := newRecorder()
	d := New(30*time.Millisecond, rec.emit)
	defer d.Stop()

	d.Set("typed")
	d.Flush("now")
	time.Sleep(80 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 1 || got[0] != "now" {
		t.Fatalf("expected only %q, got %v", "now", got)
	}
}
