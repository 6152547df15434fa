package media

import (
	"fmt"
	"math"
	"strings"
)

// RuleType names the visual feature a continuity rule checks.
type RuleType string

const (
	RuleColor       RuleType = "color"
	RuleLighting    RuleType = "lighting"
	RuleMotion      RuleType = "motion"
	RuleComposition RuleType = "composition"
)

var allRuleTypes = []RuleType{RuleColor, RuleLighting, RuleMotion, RuleComposition}

// AllRuleTypes returns the rule types in canonical evaluation order.
func AllRuleTypes() []RuleType {
	cp := make([]RuleType, len(allRuleTypes))
	copy(cp, allRuleTypes)
	return cp
}

// ParseRuleType converts a string into a known RuleType.
func ParseRuleType(value string) (RuleType, bool) {
	normalized := RuleType(strings.ToLower(strings.TrimSpace(value)))
	for _, rt := range allRuleTypes {
		if rt == normalized {
			return rt, true
		}
	}
	return "", false
}

func (t RuleType) order() int {
	for i, rt := range allRuleTypes {
		if rt == t {
			return i
		}
	}
	return len(allRuleTypes)
}

// Rule describes the acceptable drift for one feature between adjacent segments.
type Rule struct {
	Type      RuleType `json:"type"`
	Threshold float64  `json:"threshold"`
}

// RuleSet is an ordered set of rules with at most one rule per type.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet validates rules and returns them in canonical type order.
func NewRuleSet(rules ...Rule) (RuleSet, error) {
	seen := make(map[RuleType]struct{}, len(rules))
	for _, rule := range rules {
		if _, ok := ParseRuleType(string(rule.Type)); !ok {
			return RuleSet{}, fmt.Errorf("unknown continuity rule type %q", rule.Type)
		}
		if math.IsNaN(rule.Threshold) || rule.Threshold < 0 {
			return RuleSet{}, fmt.Errorf("continuity rule %s: threshold must be >= 0", rule.Type)
		}
		if _, dup := seen[rule.Type]; dup {
			return RuleSet{}, fmt.Errorf("continuity rule %s defined more than once", rule.Type)
		}
		seen[rule.Type] = struct{}{}
	}
	ordered := make([]Rule, 0, len(rules))
	for _, rt := range allRuleTypes {
		for _, rule := range rules {
			if rule.Type == rt {
				ordered = append(ordered, rule)
			}
		}
	}
	return RuleSet{rules: ordered}, nil
}

// MustRuleSet is NewRuleSet for static rule tables; it panics on invalid input.
func MustRuleSet(rules ...Rule) RuleSet {
	set, err := NewRuleSet(rules...)
	if err != nil {
		panic(err)
	}
	return set
}

// Rules returns a copy of the rules in canonical order.
func (s RuleSet) Rules() []Rule {
	cp := make([]Rule, len(s.rules))
	copy(cp, s.rules)
	return cp
}

// Len returns the number of rules in the set.
func (s RuleSet) Len() int {
	return len(s.rules)
}

// Threshold returns the configured threshold for a rule type.
func (s RuleSet) Threshold(t RuleType) (float64, bool) {
	for _, rule := range s.rules {
		if rule.Type == t {
			return rule.Threshold, true
		}
	}
	return 0, false
}

// Features holds normalized [0,1] measurements of a segment's look.
type Features struct {
	Color       float64 `json:"color"`
	Lighting    float64 `json:"lighting"`
	Motion      float64 `json:"motion"`
	Composition float64 `json:"composition"`
}

// Value returns the feature measurement for a rule type.
func (f Features) Value(t RuleType) float64 {
	switch t {
	case RuleColor:
		return f.Color
	case RuleLighting:
		return f.Lighting
	case RuleMotion:
		return f.Motion
	case RuleComposition:
		return f.Composition
	default:
		return 0
	}
}

// Delta returns the absolute per-feature difference between two measurements.
func Delta(a, b Features) Features {
	return Features{
		Color:       math.Abs(a.Color - b.Color),
		Lighting:    math.Abs(a.Lighting - b.Lighting),
		Motion:      math.Abs(a.Motion - b.Motion),
		Composition: math.Abs(a.Composition - b.Composition),
	}
}

// Less orders rule types canonically; used to break severity ties.
func (t RuleType) Less(other RuleType) bool {
	return t.order() < other.order()
}
