package patterns

type Strength string

const (
	StrengthHigh   Strength = "high"
	StrengthMedium Strength = "medium"
)

type Synergy struct {
	Type          string   `json:"type"`
	Strength      Strength `json:"strength"`
	Description   string   `json:"description"`
	ExpectedBoost float64  `json:"expected_boost"`
	Patterns      []string `json:"patterns,omitempty"`
}

// SynergyRule is a complementary pair of categories. It matches when both
// categories are present in the set, regardless of order or count.
type SynergyRule struct {
	Type        string
	Categories  [2]string
	Strength    Strength
	Boost       float64
	Description string
}

var SynergyRules = []SynergyRule{
	{
		Type:        "personalization_urgency",
		Categories:  [2]string{CategoryPersonalization, CategoryUrgency},
		Strength:    StrengthHigh,
		Boost:       1.30,
		Description: "Personalized urgency feels relevant rather than generic",
	},
	{
		Type:        "social_proof_scarcity",
		Categories:  [2]string{CategorySocialProof, CategoryScarcity},
		Strength:    StrengthHigh,
		Boost:       1.25,
		Description: "Others buying plus limited supply reinforces demand",
	},
	{
		Type:        "trust_urgency",
		Categories:  [2]string{CategoryTrust, CategoryUrgency},
		Strength:    StrengthMedium,
		Boost:       1.15,
		Description: "Trust signals reduce the risk of acting quickly",
	},
	{
		Type:        "personalization_social_proof",
		Categories:  [2]string{CategoryPersonalization, CategorySocialProof},
		Strength:    StrengthMedium,
		Boost:       1.20,
		Description: "Proof from similar visitors is more persuasive",
	},
}

// Matches reports whether both categories occur in the set.
func (r SynergyRule) Matches(patterns []Pattern) bool {
	return hasCategory(patterns, r.Categories[0]) && hasCategory(patterns, r.Categories[1])
}

// DetectSynergies returns one record per matching rule in SynergyRules.
func DetectSynergies(patterns []Pattern) []Synergy {
	var synergies []Synergy
	for _, rule := range SynergyRules {
		if !rule.Matches(patterns) {
			continue
		}
		synergies = append(synergies, Synergy{
			Type:          rule.Type,
			Strength:      rule.Strength,
			Description:   rule.Description,
			ExpectedBoost: rule.Boost,
			Patterns:      idsWithCategory(patterns, rule.Categories[0], rule.Categories[1]),
		})
	}
	return synergies
}
