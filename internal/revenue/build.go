package revenue

import (
	"fmt"
	"math"

	"ContentPipeline/internal/domain"
)

// Rule kinds accepted in configuration.
const (
	KindConstant    = "constant"
	KindPerChannel  = "per-channel"
	KindPerKilochar = "per-kilochar"
	KindSentiment   = "sentiment"
)

// Spec is the declarative form of a rule.
type Spec struct {
	Name   string
	Kind   string
	Amount float64
	Label  string
}

// KnownKind reports whether kind names a buildable rule.
func KnownKind(kind string) bool {
	switch kind {
	case KindConstant, KindPerChannel, KindPerKilochar, KindSentiment:
		return true
	}
	return false
}

// Build turns specs into rules. An empty spec list yields DefaultRules.
func Build(specs []Spec) ([]Rule, error) {
	if len(specs) == 0 {
		return DefaultRules(), nil
	}

	rules := make([]Rule, 0, len(specs))
	seen := make(map[string]struct{}, len(specs))
	for i, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("%w: revenue rule[%d] has no name", domain.ErrInvalidConfig, i)
		}
		if _, dup := seen[spec.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate revenue rule %s", domain.ErrInvalidConfig, spec.Name)
		}
		seen[spec.Name] = struct{}{}

		if spec.Amount < 0 || math.IsNaN(spec.Amount) || math.IsInf(spec.Amount, 0) {
			return nil, fmt.Errorf("%w: revenue rule %s amount must be a non-negative number", domain.ErrInvalidConfig, spec.Name)
		}

		switch spec.Kind {
		case KindConstant, "":
			rules = append(rules, Constant{RuleName: spec.Name, Amount: spec.Amount})
		case KindPerChannel:
			rules = append(rules, PerChannel{RuleName: spec.Name, Amount: spec.Amount})
		case KindPerKilochar:
			rules = append(rules, PerKilochar{RuleName: spec.Name, Amount: spec.Amount})
		case KindSentiment:
			if spec.Label == "" {
				return nil, fmt.Errorf("%w: sentiment rule %s needs a label", domain.ErrInvalidConfig, spec.Name)
			}
			rules = append(rules, Sentiment{RuleName: spec.Name, Label: domain.Label(spec.Label), Amount: spec.Amount})
		default:
			return nil, fmt.Errorf("%w: revenue rule %s has unknown kind %q", domain.ErrInvalidConfig, spec.Name, spec.Kind)
		}
	}
	return rules, nil
}
