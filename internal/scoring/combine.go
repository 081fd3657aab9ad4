package scoring

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-finance/fakeguard/internal/domain"
)

// Detector weights added to the suspicion score when a detector triggers.
// Metadata has no fixed weight; it contributes its own sub-score.
const (
	WeightBurstPosting     = 2
	WeightCompleteness     = 1
	WeightAccountAge       = 1
	WeightUsernamePattern  = 2
	WeightDuplicateProfile = 3
	WeightActivity         = 1
	WeightContent          = 2
)

// Tier thresholds.
const (
	HighThreshold   = 5
	MediumThreshold = 3

	// FlagThreshold is the score at which the batch coordinator flags an account.
	FlagThreshold = MediumThreshold
)

// Tier maps a suspicion score to a risk level.
func Tier(score int) domain.RiskLevel {
	switch {
	case score >= HighThreshold:
		return domain.RiskHigh
	case score >= MediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// IsFlagged reports whether an analysis crosses the flagging threshold.
func IsFlagged(a domain.AccountAnalysis) bool {
	return a.SuspicionScore >= FlagThreshold
}

// Combine sums triggered detector weights and builds the flag messages in
// detector order. Triggered custom rules follow the eight detectors.
func Combine(d domain.Details) (int, []string) {
	score := 0
	flags := make([]string, 0, 8)

	if d.BurstPosting.IsSuspicious {
		score += WeightBurstPosting
		flags = append(flags, fmt.Sprintf("High posting frequency: %s posts/day",
			strconv.FormatFloat(d.BurstPosting.PostsPerDay, 'f', -1, 64)))
	}

	if d.ProfileCompleteness.IsSuspicious {
		score += WeightCompleteness
		flags = append(flags, fmt.Sprintf("Low profile completeness: %d%%", d.ProfileCompleteness.Score))
	}

	if d.AccountAge.IsSuspicious {
		score += WeightAccountAge
		flags = append(flags, fmt.Sprintf("New account: %d days old", d.AccountAge.AgeDays))
	}

	if d.UsernamePattern.IsSuspicious {
		score += WeightUsernamePattern
		flags = append(flags, "Suspicious username pattern: "+d.UsernamePattern.Description)
	}

	if d.DuplicateProfile.IsSuspicious {
		score += WeightDuplicateProfile
		flags = append(flags, "Duplicate profile picture detected")
	}

	if d.Metadata.IsSuspicious {
		score += d.Metadata.Score
		flags = append(flags, "Suspicious metadata: "+strings.Join(d.Metadata.Issues, ", "))
	}

	if d.Activity.IsSuspicious {
		score += WeightActivity
		flags = append(flags, "Activity anomaly: "+d.Activity.Issue)
	}

	if d.Content.IsSuspicious {
		score += WeightContent
		flags = append(flags, fmt.Sprintf("Duplicate content detected: %d%% similarity", d.Content.Similarity))
	}

	for _, r := range d.CustomRules {
		if !r.Triggered() {
			continue
		}
		score += r.Weight
		flags = append(flags, "Custom rule: "+r.Reason)
	}

	return score, flags
}
