package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/theoremus-urban-solutions/transit-collector/feed"
	"github.com/theoremus-urban-solutions/transit-collector/vehicle"
)

// fakeClock advances instantly so tests can walk through many poll
// cycles without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2023, 10, 5, 14, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	f.now = f.now.Add(d)
	at := f.now
	f.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- at
	return ch
}

type fetchResult struct {
	batch *feed.Batch
	err   error
}

// scriptedSource pops one result per Fetch call and keeps failing once
// the script runs out.
type scriptedSource struct {
	mu      sync.Mutex
	results []fetchResult
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Fetch(ctx context.Context) (*feed.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return nil, &feed.NetworkError{URL: "scripted", Err: errors.New("script exhausted")}
	}
	head := s.results[0]
	s.results = s.results[1:]
	return head.batch, head.err
}

func scriptedBatch(at time.Time, ids ...string) *feed.Batch {
	vehicles := make([]feed.RawVehicle, 0, len(ids))
	for _, id := range ids {
		vehicles = append(vehicles, feed.RawVehicle{
			VehicleID: id,
			RouteID:   "73",
			Latitude:  22.19,
			Longitude: 113.54,
			StopIndex: -1,
		})
	}
	return &feed.Batch{Source: "scripted", FetchedAt: at, Vehicles: vehicles}
}

type recordingSink struct {
	mu    sync.Mutex
	snaps []*vehicle.Snapshot
}

func (r *recordingSink) OnSnapshot(snap *vehicle.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func TestBackoffSequenceWhileFeedIsDown(t *testing.T) {
	store := vehicle.NewStore(5)
	c := New(&scriptedSource{}, store, Options{
		PollInterval: time.Second,
		MaxBackoff:   8 * time.Second,
		FetchTimeout: time.Second,
		Clock:        newFakeClock(),
	})

	var waits []time.Duration
	for i := 0; i < 6; i++ {
		waits = append(waits, c.cycle(context.Background()))
	}

	expected := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second,
		8 * time.Second,
	}
	for i, want := range expected {
		if waits[i] != want {
			t.Errorf("cycle %d: expected wait %v, got %v", i, want, waits[i])
		}
	}
	if store.Current() != nil {
		t.Error("failing feed must never publish a snapshot")
	}
	if got := c.State().ConsecutiveFailures; got != 6 {
		t.Errorf("expected 6 consecutive failures, got %d", got)
	}
}

func TestSuccessResetsFailureCountAndBackoff(t *testing.T) {
	clock := newFakeClock()
	down := &feed.NetworkError{URL: "scripted", Err: errors.New("down")}
	src := &scriptedSource{results: []fetchResult{
		{err: down},
		{err: down},
		{err: down},
		{batch: scriptedBatch(clock.Now(), "MW1234")},
	}}
	store := vehicle.NewStore(5)
	c := New(src, store, Options{
		PollInterval: time.Second,
		MaxBackoff:   8 * time.Second,
		FetchTimeout: time.Second,
		Clock:        clock,
	})

	for i := 0; i < 3; i++ {
		c.cycle(context.Background())
	}
	if got := c.State().ConsecutiveFailures; got != 3 {
		t.Fatalf("expected 3 failures before recovery, got %d", got)
	}

	wait := c.cycle(context.Background())
	if wait != time.Second {
		t.Errorf("expected base interval after success, got %v", wait)
	}
	state := c.State()
	if state.ConsecutiveFailures != 0 {
		t.Errorf("expected failure count reset, got %d", state.ConsecutiveFailures)
	}
	if state.LastError != "" {
		t.Errorf("expected cleared last error, got %q", state.LastError)
	}
	if state.LastSuccess.IsZero() {
		t.Error("expected last success timestamp to be set")
	}
	if store.Current() == nil {
		t.Fatal("expected a published snapshot")
	}

	// Backoff restarts from the base interval on the next failure.
	wait = c.cycle(context.Background())
	if wait != time.Second {
		t.Errorf("expected backoff to restart at base, got %v", wait)
	}
}

func TestFailureKeepsLastGoodSnapshot(t *testing.T) {
	clock := newFakeClock()
	src := &scriptedSource{results: []fetchResult{
		{batch: scriptedBatch(clock.Now(), "MW1234", "MW5678")},
	}}
	store := vehicle.NewStore(5)
	c := New(src, store, Options{PollInterval: time.Second, Clock: clock})

	c.cycle(context.Background())
	published := store.Current()
	if published == nil {
		t.Fatal("expected a snapshot after the first cycle")
	}

	c.cycle(context.Background())
	if store.Current() != published {
		t.Error("failed cycle must not replace the current snapshot")
	}
}

func TestSinksReceivePublishedSnapshots(t *testing.T) {
	clock := newFakeClock()
	sink := &recordingSink{}
	src := &scriptedSource{results: []fetchResult{
		{batch: scriptedBatch(clock.Now(), "MW1234")},
		{batch: scriptedBatch(clock.Now(), "MW1234", "MW5678")},
	}}
	store := vehicle.NewStore(5)
	c := New(src, store, Options{PollInterval: time.Second, Clock: clock, Sinks: []Sink{sink}})

	c.cycle(context.Background())
	c.cycle(context.Background())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.snaps) != 2 {
		t.Fatalf("expected 2 snapshots delivered, got %d", len(sink.snaps))
	}
	if sink.snaps[0].Sequence != 1 || sink.snaps[1].Sequence != 2 {
		t.Errorf("unexpected sequences: %d, %d", sink.snaps[0].Sequence, sink.snaps[1].Sequence)
	}
}

func TestEmptyBatchCountsAsFailure(t *testing.T) {
	clock := newFakeClock()
	src := &scriptedSource{results: []fetchResult{
		{batch: &feed.Batch{Source: "scripted", FetchedAt: clock.Now()}},
	}}
	store := vehicle.NewStore(5)
	c := New(src, store, Options{PollInterval: time.Second, Clock: clock})

	c.cycle(context.Background())
	if store.Current() != nil {
		t.Error("empty batch must not publish")
	}
	state := c.State()
	if state.ConsecutiveFailures != 1 {
		t.Errorf("expected 1 failure, got %d", state.ConsecutiveFailures)
	}
	if state.LastError == "" {
		t.Error("expected last error to be recorded")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	clock := newFakeClock()
	src := &scriptedSource{results: []fetchResult{
		{batch: scriptedBatch(clock.Now(), "MW1234")},
	}}
	store := vehicle.NewStore(5)
	c := New(src, store, Options{PollInterval: time.Millisecond, Clock: clock})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for store.Current() == nil {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the first snapshot")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not stop after cancellation")
	}
}

func TestRunOncePublishes(t *testing.T) {
	clock := newFakeClock()
	src := &scriptedSource{results: []fetchResult{
		{batch: scriptedBatch(clock.Now(), "MW1234")},
	}}
	store := vehicle.NewStore(5)
	c := New(src, store, Options{Clock: clock})

	snap, err := c.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Sequence != 1 || len(snap.Records) != 1 {
		t.Errorf("unexpected snapshot: sequence %d with %d records", snap.Sequence, len(snap.Records))
	}
	if store.Current() != snap {
		t.Error("expected the published snapshot to be current")
	}
}

func TestClassifyFailureKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"network", &feed.NetworkError{URL: "u", Err: errors.New("refused")}, "network"},
		{"http", &feed.HTTPError{URL: "u", StatusCode: 502}, "http"},
		{"parse", &feed.ParseError{Source: "dsat", Err: errors.New("bad json")}, "parse"},
		{"empty", ErrEmptyBatch, "empty"},
		{"wrapped empty", fmt.Errorf("cycle: %w", ErrEmptyBatch), "empty"},
		{"validation", &ValidationError{Reason: "nil batch"}, "validation"},
		{"unknown", errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
