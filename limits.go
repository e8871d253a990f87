package throttling

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// GlobalPeriod names the single period of a shorthand action config.
const GlobalPeriod = "global"

// MaxPeriod is the longest period in seconds whose window expiry still fits
// in a time.Duration.
const MaxPeriod = int64(math.MaxInt64 / int64(time.Second))

// Limits maps an action name to its raw limits fragment, as decoded from a
// limits file or built in code. A fragment is either a single period
// ({limit, period} or {period, values, default_value}) or a map of named
// periods, each of those shapes.
type Limits map[string]any

// Tier is one row of a tiered period's value table.
type Tier struct {
	Threshold int64
	Value     any
	IsDefault bool
}

// PeriodSpec is one normalized period of an action's limits.
//
// Values are not validated at normalization; Throttle re-validates them on
// every check so that specs mutated after loading are still caught.
type PeriodSpec struct {
	Name   string
	Period int64
	// Limit is nil when the fragment has no usable limit.
	Limit *int64
	// HasValues is set when the fragment has a values table, even an empty one.
	HasValues    bool
	Values       []Tier
	DefaultValue any
	HasDefault   bool
}

// Tiered reports whether the period selects a value from a tier table
// instead of applying a flat limit.
func (p *PeriodSpec) Tiered() bool {
	return p.HasValues || len(p.Values) > 0
}

func (p *PeriodSpec) validate(action string) error {
	if p.Period < 1 || p.Period > MaxPeriod {
		return &InvalidPeriodError{Action: action, Period: p.Name, Value: p.Period}
	}
	if !p.Tiered() && (p.Limit == nil || *p.Limit < 0) {
		return &InvalidLimitError{Action: action, Period: p.Name, Value: p.Limit}
	}
	return nil
}

type rawPeriod struct {
	Period       any        `mapstructure:"period"`
	Limit        any        `mapstructure:"limit"`
	Values       *[]rawTier `mapstructure:"values"`
	DefaultValue any        `mapstructure:"default_value"`
}

type rawTier struct {
	Threshold any  `mapstructure:"threshold"`
	Limit     any  `mapstructure:"limit"`
	Value     any  `mapstructure:"value"`
	IsDefault bool `mapstructure:"is_default"`
}

// NormalizeAction turns the limits fragment of action into period specs
// sorted by period length, shortest first. Periods of equal length are
// ordered by name.
func NormalizeAction(limits Limits, action string) ([]PeriodSpec, error) {
	if limits == nil {
		return nil, ErrMissingLimits
	}

	fragment, ok := limits[action]
	if !ok || fragment == nil {
		return nil, &UnknownActionError{Action: action}
	}

	var tree map[string]any
	if err := decode(fragment, &tree); err != nil {
		return nil, fmt.Errorf("%w: limits[%s] is not a mapping: %v", ErrInvalidConfig, action, err)
	}

	// Convert simple limits to a one-period map
	if isShorthand(tree) {
		tree = map[string]any{GlobalPeriod: tree}
	}

	names := make([]string, 0, len(tree))
	for name := range tree {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]PeriodSpec, 0, len(names))
	for _, name := range names {
		spec, err := normalizePeriod(action, name, tree[name])
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	sort.SliceStable(specs, func(i, j int) bool {
		return specs[i].Period < specs[j].Period
	})

	return specs, nil
}

func normalizePeriod(action, name string, fragment any) (PeriodSpec, error) {
	var raw rawPeriod
	if err := decode(fragment, &raw); err != nil {
		return PeriodSpec{}, fmt.Errorf("%w: limits[%s][%s]: %v", ErrInvalidConfig, action, name, err)
	}

	spec := PeriodSpec{
		Name:         name,
		HasValues:    raw.Values != nil,
		DefaultValue: raw.DefaultValue,
		HasDefault:   raw.DefaultValue != nil,
	}

	var tiers []rawTier
	if raw.Values != nil {
		tiers = *raw.Values
	}

	// Invalid periods are left at zero for the check to reject
	if n, ok := toInt64(raw.Period); ok {
		spec.Period = n
	}
	if n, ok := toInt64(raw.Limit); ok {
		spec.Limit = &n
	}

	for i, rt := range tiers {
		threshold := rt.Threshold
		if threshold == nil {
			threshold = rt.Limit
		}
		n, ok := toInt64(threshold)
		if !ok {
			return PeriodSpec{}, fmt.Errorf("%w: limits[%s][%s] values[%d] has no numeric threshold", ErrInvalidConfig, action, name, i)
		}
		spec.Values = append(spec.Values, Tier{Threshold: n, Value: rt.Value, IsDefault: rt.IsDefault})
	}

	sort.SliceStable(spec.Values, func(i, j int) bool {
		return spec.Values[i].Threshold < spec.Values[j].Threshold
	})

	if !spec.HasDefault {
		for _, t := range spec.Values {
			if t.IsDefault {
				spec.DefaultValue = t.Value
				spec.HasDefault = true
				break
			}
		}
	}

	return spec, nil
}

// ValidateLimits normalizes every action and checks every period up front,
// reporting all problems found.
func ValidateLimits(limits Limits) error {
	if limits == nil {
		return ErrMissingLimits
	}

	actions := make([]string, 0, len(limits))
	for action := range limits {
		actions = append(actions, action)
	}
	sort.Strings(actions)

	var errs []error
	for _, action := range actions {
		specs, err := NormalizeAction(limits, action)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for i := range specs {
			if err := specs[i].validate(action); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// LoadLimits reads a YAML limits file. A missing file means no limits are
// configured and yields nil limits without an error.
func LoadLimits(path string) (Limits, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read limits file %q: %w", path, err)
	}

	var limits Limits
	if err := yaml.Unmarshal(data, &limits); err != nil {
		return nil, fmt.Errorf("failed to parse limits file %q: %w", path, err)
	}

	return limits, nil
}

// DefaultLimitsPath returns config/throttling.yml under the working directory.
func DefaultLimitsPath() string {
	root, err := os.Getwd()
	if err != nil {
		root = "."
	}
	return filepath.Join(root, "config", "throttling.yml")
}

func decode(input, output any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(input)
}

// toInt64 accepts integers, floats and numeric strings.
func toInt64(v any) (int64, bool) {
	if v == nil {
		return 0, false
	}
	var n int64
	if err := mapstructure.WeakDecode(v, &n); err != nil {
		return 0, false
	}
	return n, true
}

// isShorthand reports whether tree is a single period rather than a map of
// named periods: any period field holding a non-mapping value gives it away.
func isShorthand(tree map[string]any) bool {
	for _, field := range []string{"period", "limit", "values", "default_value"} {
		if v, ok := tree[field]; ok && !isMapping(v) {
			return true
		}
	}
	return false
}

func isMapping(v any) bool {
	if v == nil {
		return false
	}
	return reflect.ValueOf(v).Kind() == reflect.Map
}
