package signals

import (
	"strconv"

	"github.com/opensource-finance/fakeguard/internal/domain"
)

const (
	// More distinct posting hours than this looks like round-the-clock automation.
	maxDistinctHours = 20

	// More distinct recent locations than this is implausible travel.
	maxDistinctLocations = 3

	IssueContinuousPosting = "24/7 posting pattern detected"
	IssueLocationHopping   = "Multiple geographic locations in short time"
)

// CheckActivity flags near-continuous posting or implausible movement.
// Only one issue is reported; the posting-hours check takes precedence.
func CheckActivity(rec domain.AccountRecord) domain.ActivityFinding {
	hours := distinctHours(List(rec, domain.FieldPostingHours))
	locations := distinctTokens(List(rec, domain.FieldRecentLocations))

	finding := domain.ActivityFinding{
		DistinctHours:     hours,
		DistinctLocations: locations,
	}

	switch {
	case hours > maxDistinctHours:
		finding.IsSuspicious = true
		finding.Issue = IssueContinuousPosting
	case locations > maxDistinctLocations:
		finding.IsSuspicious = true
		finding.Issue = IssueLocationHopping
	}

	return finding
}

// distinctHours counts distinct integer tokens, skipping unparseable ones.
func distinctHours(tokens []string) int {
	seen := make(map[int]struct{}, len(tokens))
	for _, t := range tokens {
		h, err := strconv.Atoi(t)
		if err != nil {
			continue
		}
		seen[h] = struct{}{}
	}
	return len(seen)
}

// distinctTokens counts distinct tokens. Comparison is exact, so "NYC" and
// "nyc" are two locations.
func distinctTokens(tokens []string) int {
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		seen[t] = struct{}{}
	}
	return len(seen)
}
