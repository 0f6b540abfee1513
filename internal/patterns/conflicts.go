package patterns

import (
	"fmt"
	"sort"
	"strings"
)

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

const (
	ConflictDOM         = "dom_conflict"
	ConflictMessaging   = "messaging_conflict"
	ConflictPerformance = "performance_conflict"
)

type Conflict struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Patterns    []string `json:"patterns,omitempty"`
	Mitigation  string   `json:"mitigation,omitempty"`
}

// ConflictRule inspects a pattern set and reports a conflict, or nil.
type ConflictRule func(patterns []Pattern) *Conflict

// ConflictRules is the rule set applied by DetectConflicts, in report order.
var ConflictRules = []ConflictRule{
	OverlappingTargets,
	UrgencyUnderminesTrust,
	AnimationLoad,
}

// DetectConflicts applies ConflictRules to the set.
func DetectConflicts(patterns []Pattern) []Conflict {
	return DetectConflictsWith(ConflictRules, patterns)
}

func DetectConflictsWith(rules []ConflictRule, patterns []Pattern) []Conflict {
	var conflicts []Conflict
	for _, rule := range rules {
		if c := rule(patterns); c != nil {
			conflicts = append(conflicts, *c)
		}
	}
	return conflicts
}

// OverlappingTargets reports patterns that modify the same element.
func OverlappingTargets(patterns []Pattern) *Conflict {
	owners := make(map[string][]string)
	for _, p := range patterns {
		seen := make(map[string]bool, len(p.Targets))
		for _, target := range p.Targets {
			if seen[target] {
				continue
			}
			seen[target] = true
			owners[target] = append(owners[target], p.ID)
		}
	}

	var shared []string
	affected := make(map[string]bool)
	for target, ids := range owners {
		if len(ids) < 2 {
			continue
		}
		shared = append(shared, target)
		for _, id := range ids {
			affected[id] = true
		}
	}
	if len(shared) == 0 {
		return nil
	}
	sort.Strings(shared)

	var ids []string
	for _, p := range patterns {
		if affected[p.ID] {
			ids = append(ids, p.ID)
		}
	}

	return &Conflict{
		Type:        ConflictDOM,
		Severity:    SeverityHigh,
		Description: fmt.Sprintf("Patterns modify the same elements: %s", strings.Join(shared, ", ")),
		Patterns:    ids,
	}
}

// UrgencyUnderminesTrust reports aggressive urgency alongside trust framing.
func UrgencyUnderminesTrust(patterns []Pattern) *Conflict {
	if !hasCategory(patterns, CategoryUrgency) || !hasCategory(patterns, CategoryTrust) {
		return nil
	}
	return &Conflict{
		Type:        ConflictMessaging,
		Severity:    SeverityMedium,
		Description: "Urgency messaging may undermine trust signals",
		Patterns:    idsWithCategory(patterns, CategoryUrgency, CategoryTrust),
		Mitigation:  "Use soft urgency (limited-time benefits) instead of pressure tactics",
	}
}

// AnimationLoad reports compounding animation cost in larger combinations.
func AnimationLoad(patterns []Pattern) *Conflict {
	if len(patterns) <= 2 {
		return nil
	}

	var animated []string
	for _, p := range patterns {
		if p.IsAnimation() {
			animated = append(animated, p.ID)
		}
	}
	if len(animated) == 0 {
		return nil
	}

	return &Conflict{
		Type:        ConflictPerformance,
		Severity:    SeverityLow,
		Description: fmt.Sprintf("Animation combined with %d other patterns may slow rendering", len(patterns)-1),
		Patterns:    animated,
		Mitigation:  "Lazy-load animations and respect prefers-reduced-motion",
	}
}

// HasHighSeverity reports whether any conflict is high severity.
func HasHighSeverity(conflicts []Conflict) bool {
	for _, c := range conflicts {
		if c.Severity == SeverityHigh {
			return true
		}
	}
	return false
}
