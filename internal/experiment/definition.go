package experiment

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/landing-lab/landing-lab/internal/store"
)

const (
	DefaultMinSampleSize   = 500
	DefaultConfidenceLevel = 0.95
	DefaultPrimaryMetric   = "conversion_rate"

	// splitTolerance is how far the traffic split may drift from 100.
	splitTolerance = 0.01
)

var definitionValidate *validator.Validate

// identifierPattern limits ids to characters that are safe in HTML attribute
// names, query strings and storage keys.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func init() {
	definitionValidate = validator.New()
	definitionValidate.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return identifierPattern.MatchString(fl.Field().String())
	})
}

// Definition is the input accepted by Registry.CreateExperiment.
type Definition struct {
	TestID           string              `json:"testId" validate:"required,identifier"`
	Name             string              `json:"name"`
	Page             string              `json:"page"`
	Variants         []VariantDefinition `json:"variants" validate:"required,min=2,dive"`
	TrafficSplit     map[string]float64  `json:"trafficSplit" validate:"required,dive,gte=0,lte=100"`
	StartDate        *time.Time          `json:"startDate,omitempty"`
	EndDate          *time.Time          `json:"endDate,omitempty"`
	MinSampleSize    int                 `json:"minSampleSize" validate:"gte=0"`
	ConfidenceLevel  float64             `json:"confidenceLevel" validate:"gte=0,lt=1"`
	PrimaryMetric    string              `json:"primaryMetric"`
	SecondaryMetrics []string            `json:"secondaryMetrics,omitempty"`
}

type VariantDefinition struct {
	VariantID      string                `json:"variantId" validate:"required,identifier"`
	Name           string                `json:"name"`
	Description    string                `json:"description,omitempty"`
	Implementation *store.Implementation `json:"implementation,omitempty"`
}

// ValidationError reports why a definition was rejected.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid experiment: " + e.Message
	}
	return fmt.Sprintf("invalid experiment: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a definition validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks the definition without touching storage.
func (d *Definition) Validate() error {
	// Reported with the actual count rather than a validator tag.
	if len(d.Variants) < 2 {
		return &ValidationError{Field: "variants", Message: fmt.Sprintf("need at least 2 variants, got %d", len(d.Variants))}
	}

	if err := definitionValidate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Field: fieldPath(fe.Namespace()), Message: fmt.Sprintf("failed %q check", fe.Tag())}
		}
		return &ValidationError{Message: err.Error()}
	}

	seen := make(map[string]bool, len(d.Variants))
	for _, v := range d.Variants {
		if seen[v.VariantID] {
			return &ValidationError{Field: "variants", Message: fmt.Sprintf("duplicate variant id %q", v.VariantID)}
		}
		seen[v.VariantID] = true

		if _, ok := d.TrafficSplit[v.VariantID]; !ok {
			return &ValidationError{Field: "trafficSplit", Message: fmt.Sprintf("missing percentage for variant %q", v.VariantID)}
		}
	}

	total := 0.0
	for id, pct := range d.TrafficSplit {
		if !seen[id] {
			return &ValidationError{Field: "trafficSplit", Message: fmt.Sprintf("unknown variant %q", id)}
		}
		total += pct
	}
	if math.Abs(total-100) > splitTolerance {
		return &ValidationError{Field: "trafficSplit", Message: fmt.Sprintf("traffic split must sum to 100, got %g", total)}
	}

	if d.StartDate != nil && d.EndDate != nil && d.EndDate.Before(*d.StartDate) {
		return &ValidationError{Field: "endDate", Message: "end date precedes start date"}
	}

	return nil
}

// build materializes the stored experiment, copying each variant's
// traffic percentage from the split in input order.
func (d *Definition) build(now time.Time, defaults Defaults) *store.Experiment {
	variants := make([]store.Variant, len(d.Variants))
	for i, v := range d.Variants {
		name := v.Name
		if name == "" {
			name = v.VariantID
		}
		variants[i] = store.Variant{
			ID:             v.VariantID,
			Name:           name,
			Description:    v.Description,
			Implementation: v.Implementation,
			TrafficPercent: d.TrafficSplit[v.VariantID],
		}
	}

	split := make(map[string]float64, len(d.TrafficSplit))
	for k, v := range d.TrafficSplit {
		split[k] = v
	}

	exp := &store.Experiment{
		ID:               d.TestID,
		Name:             d.Name,
		Page:             d.Page,
		Variants:         variants,
		TrafficSplit:     split,
		MinSampleSize:    d.MinSampleSize,
		ConfidenceLevel:  d.ConfidenceLevel,
		PrimaryMetric:    d.PrimaryMetric,
		SecondaryMetrics: d.SecondaryMetrics,
		Status:           store.StatusActive,
		StartDate:        d.StartDate,
		EndDate:          d.EndDate,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if exp.Name == "" {
		exp.Name = exp.ID
	}
	if exp.MinSampleSize == 0 {
		exp.MinSampleSize = defaults.MinSampleSize
	}
	if exp.ConfidenceLevel == 0 {
		exp.ConfidenceLevel = defaults.ConfidenceLevel
	}
	if exp.PrimaryMetric == "" {
		exp.PrimaryMetric = DefaultPrimaryMetric
	}
	if exp.StartDate == nil {
		start := now
		exp.StartDate = &start
	}

	return exp
}

// fieldPath turns "Definition.Variants[0].VariantID" into "Variants[0].VariantID".
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
