package domain

import (
	"errors"
	"fmt"
	"regexp"
)

// Rule outcomes. Review and fail add the rule's weight to the suspicion
// score; pass and err add nothing.
const (
	RuleOutcomePass   = ".pass"
	RuleOutcomeReview = ".review"
	RuleOutcomeFail   = ".fail"
	RuleOutcomeError  = ".err"
)

// MaxRuleWeight caps how much a single custom rule can add to a score, so
// one operator rule cannot outweigh every built-in signal combined.
const MaxRuleWeight = 10

var ruleIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

var ErrInvalidRule = errors.New("invalid rule")

// RuleConfig is an operator-supplied CEL rule evaluated against every
// account after the built-in signals.
type RuleConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
	Expression  string `json:"expression"`

	// Bands map the expression value to an outcome. Without bands any
	// non-zero value is a review.
	Bands []RuleBand `json:"bands"`

	Weight  int  `json:"weight"`
	Enabled bool `json:"enabled"`
}

// Validate checks the fields that do not need the CEL environment.
func (r *RuleConfig) Validate() error {
	switch {
	case !ruleIDPattern.MatchString(r.ID):
		return fmt.Errorf("%w: id must be lower-case letters, digits, '-' or '_'", ErrInvalidRule)
	case r.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	case r.Expression == "":
		return fmt.Errorf("%w: expression is required", ErrInvalidRule)
	case r.Weight < 0 || r.Weight > MaxRuleWeight:
		return fmt.Errorf("%w: weight must be between 0 and %d", ErrInvalidRule, MaxRuleWeight)
	}

	for i, b := range r.Bands {
		switch b.SubRuleRef {
		case RuleOutcomePass, RuleOutcomeReview, RuleOutcomeFail:
		default:
			return fmt.Errorf("%w: band %d has unknown outcome %q", ErrInvalidRule, i, b.SubRuleRef)
		}
		if b.LowerLimit != nil && b.UpperLimit != nil && *b.LowerLimit >= *b.UpperLimit {
			return fmt.Errorf("%w: band %d is empty", ErrInvalidRule, i)
		}
	}
	return nil
}

// RuleBand maps [LowerLimit, UpperLimit) to an outcome. A nil limit is
// unbounded on that side, except that a nil LowerLimit starts at zero.
type RuleBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	SubRuleRef string   `json:"subRuleRef"`
	Reason     string   `json:"reason"`
}

// RuleResult is one rule's verdict on one account.
type RuleResult struct {
	RuleID     string  `json:"ruleId"`
	SubRuleRef string  `json:"subRuleRef"`
	Score      float64 `json:"score"` // raw expression value
	Reason     string  `json:"reason"`
	Weight     int     `json:"weight"`
}

// Triggered reports whether the result should count toward the suspicion score.
func (r RuleResult) Triggered() bool {
	return r.SubRuleRef == RuleOutcomeFail || r.SubRuleRef == RuleOutcomeReview
}
