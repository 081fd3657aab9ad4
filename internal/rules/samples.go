package rules

import "github.com/opensource-finance/fakeguard/internal/domain"

func limit(v float64) *float64 { return &v }

// SampleRules returns example account rules. They are never loaded
// automatically; operators post them through the rules API to opt in.
func SampleRules() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:          "follow-farming",
			Name:        "Follow farming",
			Description: "Follows far more accounts than follow back",
			Version:     "1.0.0",
			Expression:  "following > 500 && followers * 10 < following",
			Bands: []domain.RuleBand{
				{UpperLimit: limit(1), SubRuleRef: domain.RuleOutcomePass, Reason: "balanced follow graph"},
				{LowerLimit: limit(1), SubRuleRef: domain.RuleOutcomeReview, Reason: "follows ten times more than followed"},
			},
			Weight:  1,
			Enabled: true,
		},
		{
			ID:          "silent-old-account",
			Name:        "Silent old account",
			Description: "Aged account that never posted but follows many",
			Version:     "1.0.0",
			Expression:  "age_days > 365 && posts == 0 && following > 100",
			Bands: []domain.RuleBand{
				{UpperLimit: limit(1), SubRuleRef: domain.RuleOutcomePass, Reason: "active or new account"},
				{LowerLimit: limit(1), SubRuleRef: domain.RuleOutcomeReview, Reason: "dormant account with large follow list"},
			},
			Weight:  1,
			Enabled: true,
		},
		{
			ID:          "numeric-email",
			Name:        "Numeric email local part",
			Description: "Email local part is mostly digits",
			Version:     "1.0.0",
			Expression:  `email.matches("^[0-9]{6,}@")`,
			Bands: []domain.RuleBand{
				{UpperLimit: limit(1), SubRuleRef: domain.RuleOutcomePass, Reason: "regular email"},
				{LowerLimit: limit(1), SubRuleRef: domain.RuleOutcomeReview, Reason: "numeric email address"},
			},
			Weight:  2,
			Enabled: true,
		},
	}
}
