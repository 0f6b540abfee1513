package ledger

import (
	"encoding/json"
	"maps"
)

// EventData is a raw event payload. The recognized keys are converted,
// timeOnPage, scrollDepth and ctaClick; anything else is passed through
// to the stored event unchanged.
type EventData map[string]any

const (
	KeyConverted   = "converted"
	KeyTimeOnPage  = "timeOnPage"
	KeyScrollDepth = "scrollDepth"
	KeyCTAClick    = "ctaClick"
)

func (d EventData) Converted() bool {
	return truthy(d[KeyConverted])
}

func (d EventData) CTAClick() bool {
	return truthy(d[KeyCTAClick])
}

// TimeOnPage returns the time on page in seconds, if present.
func (d EventData) TimeOnPage() (float64, bool) {
	return number(d[KeyTimeOnPage])
}

// ScrollDepth returns the scroll depth percentage, if present.
func (d EventData) ScrollDepth() (float64, bool) {
	return number(d[KeyScrollDepth])
}

func (d EventData) clone() map[string]any {
	if d == nil {
		return map[string]any{}
	}
	return maps.Clone(map[string]any(d))
}

// truthy follows JSON truthiness: false, 0, "" and null are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	default:
		f, ok := number(v)
		if ok {
			return f != 0
		}
		return true
	}
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
