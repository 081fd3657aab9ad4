package signals

import (
	"github.com/opensource-finance/fakeguard/internal/domain"
)

// profileFields are worth 20 points each toward completeness.
var profileFields = []string{
	domain.FieldBio,
	domain.FieldProfilePicture,
	domain.FieldFullName,
	domain.FieldWebsite,
	domain.FieldLocation,
}

const (
	pointsPerField    = 20
	pointsFollowers   = 10
	pointsFollowing   = 10
	minCompleteness   = 40
	maxCompleteness   = 100
	followersForBonus = 10
	followingForBonus = 5
)

// CheckProfileCompleteness scores how filled-in a profile is and flags
// profiles below 40%.
func CheckProfileCompleteness(rec domain.AccountRecord) domain.CompletenessFinding {
	score := 0
	missing := make([]string, 0, len(profileFields))

	for _, field := range profileFields {
		if Blank(rec, field) {
			missing = append(missing, field)
			continue
		}
		score += pointsPerField
	}

	if Int(rec, domain.FieldFollowers) > followersForBonus {
		score += pointsFollowers
	}
	if Int(rec, domain.FieldFollowing) > followingForBonus {
		score += pointsFollowing
	}

	return domain.CompletenessFinding{
		IsSuspicious:  score < minCompleteness,
		Score:         min(score, maxCompleteness),
		MissingFields: missing,
	}
}
