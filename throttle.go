package throttling

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Throttle evaluates the limits of a single action.
//
// A Throttle is safe for concurrent use. All counts live in the Store; the
// fetch and the increment of a period are two separate store calls, so
// concurrent checks on the same key may both be admitted at the boundary.
type Throttle struct {
	Action  string
	Periods []PeriodSpec

	store   Store
	enabled *atomic.Bool
	now     func() time.Time
	logger  *slog.Logger
	metrics *Metrics
}

// Check runs a counting check of value against the action's limits.
func (t *Throttle) Check(ctx context.Context, checkType CheckType, value any) (*Result, error) {
	return t.Execute(ctx, &CheckRequest{Type: checkType, Value: value})
}

// CheckIP checks an IP address.
func (t *Throttle) CheckIP(ctx context.Context, ip any) (*Result, error) {
	return t.Check(ctx, IP, ip)
}

// CheckUserID checks a user id.
func (t *Throttle) CheckUserID(ctx context.Context, userID any) (*Result, error) {
	return t.Check(ctx, UserID, userID)
}

// Execute evaluates the periods shortest first. A flat period over its limit
// denies at once without incrementing anything; the first tiered period
// decides the result with its selected tier value.
func (t *Throttle) Execute(ctx context.Context, r *CheckRequest) (*Result, error) {
	if !t.enabled.Load() || r.Value == nil {
		t.metrics.observeCheck(t.Action, "skip")
		return &Result{State: Allow}, nil
	}

	now := t.now().Unix()

	for i := range t.Periods {
		p := &t.Periods[i]

		if err := p.validate(t.Action); err != nil {
			t.configError(err)
			return nil, err
		}

		key := t.hitsStoreKey(now, r.Type, r.Value, p.Name, p.Period)
		ttl := hitsStoreTTL(now, p.Period)

		raw, err := t.store.Fetch(ctx, key, ttl, "0")
		if err != nil {
			t.storeError("fetch", key, err)
			return nil, fmt.Errorf("failed to fetch hits for key %v: %w", key, err)
		}
		hits := t.parseHits(key, raw)

		var result *Result
		if p.Tiered() {
			value := selectTier(p, hits)
			state := Allow
			if v, ok := value.(bool); ok && !v {
				state = Deny
			}
			result = &Result{State: state, Tiered: true, Value: value, Period: p.Name}
		} else if hits > *p.Limit || *p.Limit == 0 {
			t.logger.Debug("throttled",
				"action", t.Action,
				"type", r.Type,
				"period", p.Name,
				"hits", hits,
				"limit", *p.Limit,
			)
			t.metrics.observeCheck(t.Action, "deny")
			return &Result{State: Deny, Period: p.Name}, nil
		}

		if !r.DryRun {
			if err := t.store.Increment(ctx, key); err != nil {
				t.storeError("increment", key, err)
				return nil, fmt.Errorf("failed to increment hits for key %v: %w", key, err)
			}
		}

		if result != nil {
			t.metrics.observeCheck(t.Action, "tier")
			return result, nil
		}
	}

	t.metrics.observeCheck(t.Action, "allow")
	return &Result{State: Allow}, nil
}

// selectTier returns the value of the first tier whose threshold is above
// hits, falling back to the default value, or false when there is none.
func selectTier(p *PeriodSpec, hits int64) any {
	for _, tier := range p.Values {
		if tier.Threshold > hits {
			return tier.Value
		}
	}
	if p.HasDefault {
		return p.DefaultValue
	}
	return false
}

func (t *Throttle) hitsStoreKey(now int64, checkType CheckType, value any, periodName string, period int64) string {
	return strings.Join([]string{
		"throttle",
		t.Action,
		string(checkType),
		fmt.Sprint(value),
		periodName,
		strconv.FormatInt(floorDiv(now, period), 10),
	}, ":")
}

// hitsStoreTTL is the time left until the current window of period rolls over.
func hitsStoreTTL(now, period int64) time.Duration {
	return time.Duration(period-mod(now, period)) * time.Second
}

func (t *Throttle) parseHits(key, raw string) int64 {
	hits, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		t.logger.Warn("unparsable hits counter, treating as zero", "key", key, "value", raw)
		return 0
	}
	return hits
}

func (t *Throttle) configError(err error) {
	t.logger.Warn("invalid throttling limits", "action", t.Action, "error", err)
	t.metrics.observeConfigError(t.Action)
}

func (t *Throttle) storeError(op, key string, err error) {
	t.logger.Error("throttling store failure", "action", t.Action, "op", op, "key", key, "error", err)
	t.metrics.observeStoreError(t.Action, op)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
