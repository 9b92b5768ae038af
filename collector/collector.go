package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/theoremus-urban-solutions/transit-collector/feed"
	"github.com/theoremus-urban-solutions/transit-collector/vehicle"
)

// Sink receives each snapshot right after it becomes visible to
// readers. Implementations must not block the poll loop.
type Sink interface {
	OnSnapshot(snap *vehicle.Snapshot)
}

// Options configure the poll loop. Zero values fall back to defaults.
type Options struct {
	// PollInterval is the wait between successful cycles and the base
	// interval for backoff.
	PollInterval time.Duration
	// MaxBackoff caps the wait between failed cycles.
	MaxBackoff time.Duration
	// FetchTimeout bounds a single fetch call.
	FetchTimeout time.Duration
	// AlarmAfter is the consecutive failure count at which the
	// collector reports the feed as stale. Polling continues either
	// way.
	AlarmAfter int
	Clock      Clock
	Sinks      []Sink
}

// State is a point-in-time copy of the collector's feed state. It is
// mutated only by the poll loop; readers get copies.
type State struct {
	ConsecutiveFailures int
	LastSuccess         time.Time
	LastError           string
	CurrentBackoff      time.Duration
}

// Collector owns the fetch-normalize-publish cycle for one source.
type Collector struct {
	source feed.Source
	store  *vehicle.Store
	opts   Options
	clock  Clock
	policy *backoff.ExponentialBackOff

	mu    sync.Mutex
	state State
}

// New builds a collector around a feed source and a snapshot store.
func New(source feed.Source, store *vehicle.Store, opts Options) *Collector {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 2 * time.Minute
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.AlarmAfter <= 0 {
		opts.AlarmAfter = 5
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Collector{
		source: source,
		store:  store,
		opts:   opts,
		clock:  clock,
		policy: newBackoffPolicy(opts.PollInterval, opts.MaxBackoff),
		state:  State{CurrentBackoff: opts.PollInterval},
	}
}

// newBackoffPolicy yields base, base*2, base*4, ... capped at ceiling,
// with no jitter so retry timing stays predictable.
func newBackoffPolicy(base, ceiling time.Duration) *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = base
	policy.RandomizationFactor = 0
	policy.Multiplier = 2
	policy.MaxInterval = ceiling
	policy.MaxElapsedTime = 0
	policy.Reset()
	return policy
}

// Run drives the poll loop until ctx is cancelled. The first cycle
// starts immediately; later cycles wait PollInterval after a success
// or the current backoff interval after a failure.
func (c *Collector) Run(ctx context.Context) error {
	log.Info().
		Str("source", c.source.Name()).
		Dur("interval", c.opts.PollInterval).
		Msg("Collector started")
	for {
		wait := c.cycle(ctx)
		if ctx.Err() != nil {
			log.Info().Msg("Collector stopped")
			return nil
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("Collector stopped")
			return nil
		case <-c.clock.After(wait):
		}
	}
}

// RunOnce performs a single fetch-normalize-publish cycle. Used by the
// oneshot command; it does not touch the failure bookkeeping.
func (c *Collector) RunOnce(ctx context.Context) (*vehicle.Snapshot, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()
	batch, err := c.source.Fetch(fetchCtx)
	if err != nil {
		return nil, err
	}
	records, dropped, err := Normalize(batch)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		log.Warn().Int("dropped", dropped).Msg("Dropped invalid vehicle records")
	}
	return c.store.Publish(batch.Source, batch.FetchedAt, records), nil
}

// State returns a copy of the collector's feed state.
func (c *Collector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// cycle runs one fetch-normalize-publish pass and returns how long the
// loop should wait before the next one.
func (c *Collector) cycle(ctx context.Context) time.Duration {
	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	batch, err := c.source.Fetch(fetchCtx)
	cancel()

	if err == nil {
		var records []vehicle.Record
		var dropped int
		records, dropped, err = Normalize(batch)
		if err == nil {
			return c.onSuccess(batch, records, dropped)
		}
	}
	if ctx.Err() != nil {
		// Shutdown interrupted the fetch; not a feed failure.
		return 0
	}
	return c.onFailure(err)
}

func (c *Collector) onSuccess(batch *feed.Batch, records []vehicle.Record, dropped int) time.Duration {
	snap := c.store.Publish(batch.Source, batch.FetchedAt, records)

	c.mu.Lock()
	recovered := c.state.ConsecutiveFailures
	c.state.ConsecutiveFailures = 0
	c.state.LastSuccess = c.clock.Now()
	c.state.LastError = ""
	c.state.CurrentBackoff = c.opts.PollInterval
	c.mu.Unlock()
	c.policy.Reset()

	if recovered > 0 {
		log.Info().Int("failures", recovered).Msg("Feed recovered")
	}
	log.Info().
		Uint64("sequence", snap.Sequence).
		Int("vehicles", len(records)).
		Int("dropped", dropped).
		Msg("Snapshot published")

	for _, sink := range c.opts.Sinks {
		sink.OnSnapshot(snap)
	}
	return c.opts.PollInterval
}

func (c *Collector) onFailure(err error) time.Duration {
	wait := c.policy.NextBackOff()

	c.mu.Lock()
	c.state.ConsecutiveFailures++
	failures := c.state.ConsecutiveFailures
	c.state.LastError = err.Error()
	c.state.CurrentBackoff = wait
	lastSuccess := c.state.LastSuccess
	c.mu.Unlock()

	log.Warn().
		Err(err).
		Str("kind", classify(err)).
		Int("failures", failures).
		Dur("retry_in", wait).
		Msg("Collection cycle failed")

	// Report staleness once when the threshold is crossed, then keep
	// polling. The store retains the last good snapshot throughout.
	if failures == c.opts.AlarmAfter {
		event := log.Error().Int("failures", failures)
		if !lastSuccess.IsZero() {
			event = event.Dur("stale_for", c.clock.Now().Sub(lastSuccess))
		}
		event.Msg("Feed data is stale")
	}
	return wait
}

// classify names the failure category for log fields.
func classify(err error) string {
	var netErr *feed.NetworkError
	var httpErr *feed.HTTPError
	var parseErr *feed.ParseError
	var valErr *ValidationError
	switch {
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &httpErr):
		return "http"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.Is(err, ErrEmptyBatch):
		return "empty"
	case errors.As(err, &valErr):
		return "validation"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "unknown"
	}
}
