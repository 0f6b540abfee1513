package store

import "time"

type ExperimentStatus string

const (
	StatusActive  ExperimentStatus = "active"
	StatusStopped ExperimentStatus = "stopped"
)

// MaxRecentEvents caps the per-variant event window kept for inspection.
const MaxRecentEvents = 100

type Experiment struct {
	ID               string             `json:"testId"`
	Name             string             `json:"name"`
	Page             string             `json:"page"`
	Variants         []Variant          `json:"variants"` // Stored order; index 0 is the control
	TrafficSplit     map[string]float64 `json:"trafficSplit"`
	MinSampleSize    int                `json:"minSampleSize"`
	ConfidenceLevel  float64            `json:"confidenceLevel"`
	PrimaryMetric    string             `json:"primaryMetric"`
	SecondaryMetrics []string           `json:"secondaryMetrics,omitempty"`
	Status           ExperimentStatus   `json:"status"`
	StopReason       string             `json:"stopReason,omitempty"`
	StartDate        *time.Time         `json:"startDate,omitempty"`
	EndDate          *time.Time         `json:"endDate,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// Control returns the designated baseline variant.
func (e *Experiment) Control() *Variant {
	if len(e.Variants) == 0 {
		return nil
	}
	return &e.Variants[0]
}

// Variant looks up a variant by id.
func (e *Experiment) Variant(id string) (*Variant, bool) {
	for i := range e.Variants {
		if e.Variants[i].ID == id {
			return &e.Variants[i], true
		}
	}
	return nil, false
}

type Variant struct {
	ID             string          `json:"variantId"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Implementation *Implementation `json:"implementation,omitempty"`
	TrafficPercent float64         `json:"trafficPercent"`
}

// Implementation is a declarative set of DOM patches applied by the rendering
// layer. It is data only and is never evaluated as code.
type Implementation struct {
	Patches []Patch `json:"patches" validate:"dive"`
}

type PatchAction string

const (
	PatchText  PatchAction = "text"
	PatchHTML  PatchAction = "html"
	PatchAttr  PatchAction = "attr"
	PatchClass PatchAction = "class"
	PatchStyle PatchAction = "style"
	PatchHide  PatchAction = "hide"
)

type Patch struct {
	Selector  string      `json:"selector" validate:"required"`
	Action    PatchAction `json:"action" validate:"required,oneof=text html attr class style hide"`
	Value     string      `json:"value,omitempty"`
	Attribute string      `json:"attribute,omitempty" validate:"required_if=Action attr"`
}

// LedgerEntry holds the counters for one (experiment, variant) pair.
type LedgerEntry struct {
	ExperimentID string          `json:"experimentId"`
	VariantID    string          `json:"variantId"`
	Impressions  int             `json:"impressions"`
	Conversions  int             `json:"conversions"`
	TimeOnPage   float64         `json:"timeOnPage"`
	ScrollDepth  float64         `json:"scrollDepth"`
	CTAClicks    int             `json:"ctaClicks"`
	Events       []RecordedEvent `json:"events"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// RecordedEvent is a timestamped copy of an event payload.
type RecordedEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}
