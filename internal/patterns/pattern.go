// Package patterns models optimization patterns and predicts how they
// interact when applied to the same page.
package patterns

// Known pattern categories.
const (
	CategoryPersonalization = "personalization"
	CategoryUrgency         = "urgency"
	CategoryTrust           = "trust"
	CategoryScarcity        = "scarcity"
	CategorySocialProof     = "social_proof"
	CategoryAnimation       = "animation"
	CategoryDynamicContent  = "dynamic_content"
)

// StatusProduction marks patterns that are live and eligible by default.
const StatusProduction = "production"

type Pattern struct {
	ID             string      `json:"id" yaml:"id"`
	Name           string      `json:"name" yaml:"name"`
	Category       string      `json:"category" yaml:"category"`
	Type           string      `json:"type,omitempty" yaml:"type,omitempty"`
	Status         string      `json:"status" yaml:"status"`
	Targets        []string    `json:"targets" yaml:"targets"`
	Performance    Performance `json:"performance" yaml:"performance"`
	DynamicContent bool        `json:"dynamic_content,omitempty" yaml:"dynamic_content,omitempty"`
}

type Performance struct {
	// AverageLift is a measured or assumed lift in percent.
	AverageLift *float64 `json:"average_lift,omitempty" yaml:"average_lift,omitempty"`
}

// Lift returns the pattern's average lift, treating a missing value as 0.
func (p Pattern) Lift() float64 {
	if p.Performance.AverageLift == nil {
		return 0
	}
	return *p.Performance.AverageLift
}

func (p Pattern) IsAnimation() bool {
	return p.Category == CategoryAnimation || p.Type == CategoryAnimation
}

func (p Pattern) IsDynamic() bool {
	return p.DynamicContent || p.Category == CategoryDynamicContent || p.Type == "dynamic"
}

func (p Pattern) IsProduction() bool {
	return p.Status == StatusProduction
}

// DisplayName falls back to the id when the pattern has no name.
func (p Pattern) DisplayName() string {
	if p.Name == "" {
		return p.ID
	}
	return p.Name
}

func hasCategory(patterns []Pattern, category string) bool {
	for _, p := range patterns {
		if p.Category == category {
			return true
		}
	}
	return false
}

func idsWithCategory(patterns []Pattern, categories ...string) []string {
	var ids []string
	for _, p := range patterns {
		for _, c := range categories {
			if p.Category == c {
				ids = append(ids, p.ID)
				break
			}
		}
	}
	return ids
}
