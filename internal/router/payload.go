package router

import (
	"errors"
	"fmt"
	"time"

	masterdata "settlementcore/internal/masterdata/domain"
	metering "settlementcore/internal/metering/domain"
	"settlementcore/internal/money"
	"settlementcore/internal/period"
)

// ErrMissingField is returned when a canonical field the current operation
// requires is absent from the normalized payload.
var ErrMissingField = errors.New("router: missing field")

// Payload is a decoded wire envelope, keyed by its canonical field names
// after unwrapping. Nested `{ "value": … }` and `{ "codingScheme": …,
// "value": … }` wrappers are unwrapped lazily by the accessor methods, so
// callers never see the wire shape.
type Payload map[string]any

// unwrap strips a single-value or codingScheme+value wrapper, returning the
// wrapped value if v is such a wrapper, v itself otherwise.
func unwrap(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	val, hasValue := m["value"]
	if !hasValue {
		return v
	}
	switch len(m) {
	case 1:
		return val
	case 2:
		if _, hasScheme := m["codingScheme"]; hasScheme {
			return val
		}
	}
	return v
}

// String returns the unwrapped string at key, "" if absent or not a string.
func (p Payload) String(key string) string {
	raw, ok := p[key]
	if !ok {
		return ""
	}
	v := unwrap(raw)
	s, _ := v.(string)
	return s
}

// RequireString returns the unwrapped string at key, or ErrMissingField.
func (p Payload) RequireString(key string) (string, error) {
	s := p.String(key)
	if s == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	return s, nil
}

// Time parses the unwrapped RFC3339 timestamp at key.
func (p Payload) Time(key string) (time.Time, error) {
	s, err := p.RequireString(key)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, s)
}

// OptionalTime parses key if present, returning ok=false when absent.
func (p Payload) OptionalTime(key string) (time.Time, bool, error) {
	if p.String(key) == "" {
		return time.Time{}, false, nil
	}
	t, err := p.Time(key)
	return t, true, err
}

// Bool returns the unwrapped boolean at key.
func (p Payload) Bool(key string) bool {
	raw, ok := p[key]
	if !ok {
		return false
	}
	v := unwrap(raw)
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	default:
		return false
	}
}

// Slice returns the raw slice at key, nil if absent or not a slice.
func (p Payload) Slice(key string) []any {
	raw, ok := p[key]
	if !ok {
		return nil
	}
	s, _ := raw.([]any)
	return s
}

// ExtractPeriod reads a Period field that may be wire-encoded either as an
// object `{ "start": …, "end": … }` or a two-element array `[start, end]`;
// both forms appear on the wire.
// An absent or empty "end" produces an open-ended period.
func (p Payload) ExtractPeriod(key string) (period.Period, error) {
	raw, ok := p[key]
	if !ok {
		return period.Period{}, fmt.Errorf("%w: %s", ErrMissingField, key)
	}

	var startStr, endStr string
	switch v := raw.(type) {
	case []any:
		if len(v) < 1 {
			return period.Period{}, fmt.Errorf("%w: %s", ErrMissingField, key)
		}
		if s, ok := unwrap(v[0]).(string); ok {
			startStr = s
		}
		if len(v) > 1 {
			if s, ok := unwrap(v[1]).(string); ok {
				endStr = s
			}
		}
	case map[string]any:
		if s, ok := unwrap(v["start"]).(string); ok {
			startStr = s
		}
		if s, ok := unwrap(v["end"]).(string); ok {
			endStr = s
		}
	default:
		return period.Period{}, fmt.Errorf("%w: %s has unrecognized shape", ErrMissingField, key)
	}

	if startStr == "" {
		return period.Period{}, fmt.Errorf("%w: %s.start", ErrMissingField, key)
	}
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return period.Period{}, err
	}
	if endStr == "" {
		return period.NewOpenEnded(start), nil
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return period.Period{}, err
	}
	return period.NewClosed(start, end)
}

// ExtractObservations converts a wire `points[]` array into Observations.
// Each point carries a 1-based `position` and a `quantity`; its timestamp is
// `period.Start + (position-1) * resolution`.
func (p Payload) ExtractObservations(key string, periodStart time.Time, resolution masterdata.Resolution) ([]metering.Observation, error) {
	raw := p.Slice(key)
	observations := make([]metering.Observation, 0, len(raw))
	step := resolution.Duration()

	for _, item := range raw {
		point, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("router: point has unrecognized shape")
		}
		pp := Payload(point)

		positionRaw := unwrap(point["position"])
		position, err := toInt(positionRaw)
		if err != nil {
			return nil, fmt.Errorf("router: point position: %w", err)
		}

		qtyRaw := unwrap(point["quantity"])
		quantity, err := toFloat(qtyRaw)
		if err != nil {
			return nil, fmt.Errorf("router: point quantity: %w", err)
		}

		qualityCode := pp.String("quality")
		quality, err := metering.ParseQualityCode(qualityCode)
		if err != nil {
			return nil, err
		}

		timestamp := periodStart.Add(time.Duration(position-1) * step)
		observations = append(observations, metering.Observation{
			Timestamp: timestamp,
			Quantity:  money.NewQuantityFromFloat(quantity),
			Quality:   quality,
		})
	}
	return observations, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case string:
		var out int
		_, err := fmt.Sscanf(n, "%d", &out)
		return out, err
	default:
		return 0, fmt.Errorf("router: cannot convert %T to int", v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		var out float64
		_, err := fmt.Sscanf(n, "%g", &out)
		return out, err
	default:
		return 0, fmt.Errorf("router: cannot convert %T to float64", v)
	}
}
