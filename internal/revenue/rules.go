// Package revenue estimates the monetizable value of adapted content.
package revenue

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"ContentPipeline/internal/domain"
)

// Rule is an independent revenue computation. Rules must not keep mutable state
// between calls so that repeated estimates are identical.
type Rule interface {
	Name() string
	Estimate(content domain.AdaptedContent, sentiment domain.Label) (float64, error)
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc struct {
	RuleName string
	Fn       func(content domain.AdaptedContent, sentiment domain.Label) (float64, error)
}

// Name returns the rule name.
func (r RuleFunc) Name() string { return r.RuleName }

// Estimate calls the wrapped function.
func (r RuleFunc) Estimate(content domain.AdaptedContent, sentiment domain.Label) (float64, error) {
	if r.Fn == nil {
		return 0, errors.New("rule function is nil")
	}
	return r.Fn(content, sentiment)
}

// Constant always yields Amount. Non-negative whenever Amount is.
type Constant struct {
	RuleName string
	Amount   float64
}

func (c Constant) Name() string { return c.RuleName }

func (c Constant) Estimate(domain.AdaptedContent, domain.Label) (float64, error) {
	return c.Amount, nil
}

// PerChannel yields Amount for every channel the content was adapted for. Non-negative whenever Amount is.
type PerChannel struct {
	RuleName string
	Amount   float64
}

func (p PerChannel) Name() string { return p.RuleName }

func (p PerChannel) Estimate(content domain.AdaptedContent, _ domain.Label) (float64, error) {
	return p.Amount * float64(len(content)), nil
}

// PerKilochar yields Amount per thousand runes across all formatted content. Non-negative whenever Amount is.
type PerKilochar struct {
	RuleName string
	Amount   float64
}

func (p PerKilochar) Name() string { return p.RuleName }

func (p PerKilochar) Estimate(content domain.AdaptedContent, _ domain.Label) (float64, error) {
	runes := 0
	for _, body := range content {
		runes += utf8.RuneCountInString(body)
	}
	return p.Amount * float64(runes) / 1000, nil
}

// Sentiment yields Amount when the sentiment label matches Label, zero otherwise.
// Non-negative whenever Amount is.
type Sentiment struct {
	RuleName string
	Label    domain.Label
	Amount   float64
}

func (s Sentiment) Name() string { return s.RuleName }

func (s Sentiment) Estimate(_ domain.AdaptedContent, sentiment domain.Label) (float64, error) {
	if strings.EqualFold(string(s.Label), string(sentiment)) {
		return s.Amount, nil
	}
	return 0, nil
}

// DefaultRules returns the placeholder rule set: advertisement placement, sponsorship
// detection and affiliate marketing at fixed amounts.
func DefaultRules() []Rule {
	return []Rule{
		Constant{RuleName: "advertisement", Amount: 100},
		Constant{RuleName: "sponsorship", Amount: 200},
		Constant{RuleName: "affiliate", Amount: 300},
	}
}

// RuleSet sums an ordered collection of rules.
type RuleSet struct {
	rules  []Rule
	logger *slog.Logger
}

// NewRuleSet builds a rule set. The slice is copied.
func NewRuleSet(rules []Rule, logger *slog.Logger) *RuleSet {
	copied := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r != nil {
			copied = append(copied, r)
		}
	}
	return &RuleSet{rules: copied, logger: logger}
}

// Rules returns the names of the registered rules in evaluation order.
func (s *RuleSet) Rules() []string {
	names := make([]string, len(s.rules))
	for i, r := range s.rules {
		names[i] = r.Name()
	}
	return names
}

// Total sums every rule. A rule that errors, panics, or returns a non-finite
// value contributes zero and is listed in the report's FailedRules.
func (s *RuleSet) Total(content domain.AdaptedContent, sentiment domain.Label) domain.RevenueReport {
	var report domain.RevenueReport
	for _, rule := range s.rules {
		value, err := estimate(rule, content, sentiment)
		if err != nil {
			report.FailedRules = append(report.FailedRules, rule.Name())
			s.warn("revenue rule failed", "rule", rule.Name(), "error", err)
			continue
		}
		report.Total += value
	}
	return report
}

func estimate(rule Rule, content domain.AdaptedContent, sentiment domain.Label) (value float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = 0
			err = &domain.RuleError{Rule: rule.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	value, err = rule.Estimate(content, sentiment)
	if err != nil {
		return 0, &domain.RuleError{Rule: rule.Name(), Err: err}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, &domain.RuleError{Rule: rule.Name(), Err: fmt.Errorf("non-finite estimate %v", value)}
	}
	return value, nil
}

func (s *RuleSet) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
