package throttling

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures a Throttler.
type Options struct {
	Store  Store
	Limits Limits
	// Disabled turns every check into an unconditional allow.
	Disabled bool
	Logger   *slog.Logger
	Metrics  *Metrics
	Now      func() time.Time
}

// Throttler owns the limits, the enabled flag and one Throttle per action.
type Throttler struct {
	store   Store
	enabled atomic.Bool
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	mu        sync.Mutex
	limits    Limits
	instances map[string]*Throttle
}

// New creates a Throttler.
func New(opts Options) (*Throttler, error) {
	if opts.Store == nil {
		return nil, ErrMissingStore
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	t := &Throttler{
		store:     opts.Store,
		logger:    logger,
		metrics:   opts.Metrics,
		now:       now,
		limits:    opts.Limits,
		instances: make(map[string]*Throttle),
	}
	t.enabled.Store(!opts.Disabled)

	return t, nil
}

// For returns the Throttle for action, building and caching it on first use.
func (t *Throttler) For(action string) (*Throttle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if th, ok := t.instances[action]; ok {
		return th, nil
	}

	periods, err := NormalizeAction(t.limits, action)
	if err != nil {
		return nil, err
	}

	th := &Throttle{
		Action:  action,
		Periods: periods,
		store:   t.store,
		enabled: &t.enabled,
		now:     t.now,
		logger:  t.logger,
		metrics: t.metrics,
	}
	t.instances[action] = th

	return th, nil
}

// Enabled reports whether throttling is enabled.
func (t *Throttler) Enabled() bool {
	return t.enabled.Load()
}

// SetEnabled enables or disables throttling.
func (t *Throttler) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

// Enable enables throttling.
func (t *Throttler) Enable() {
	t.SetEnabled(true)
}

// Disable disables throttling; every check allows without touching the store.
func (t *Throttler) Disable() {
	t.SetEnabled(false)
}

// Limits returns the current limits.
func (t *Throttler) Limits() Limits {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limits
}

// SetLimits replaces the limits and drops every cached Throttle. Throttles
// handed out earlier keep evaluating the limits they were built from.
func (t *Throttler) SetLimits(limits Limits) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limits = limits
	t.instances = make(map[string]*Throttle)
}

// LoadLimitsFile loads limits from a YAML file and installs them.
func (t *Throttler) LoadLimitsFile(path string) error {
	limits, err := LoadLimits(path)
	if err != nil {
		return err
	}
	t.SetLimits(limits)
	t.logger.Info("throttling limits loaded", "path", path, "actions", len(limits))
	return nil
}

// Reset re-enables throttling and drops every cached Throttle.
func (t *Throttler) Reset() {
	t.enabled.Store(true)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.instances = make(map[string]*Throttle)
}
