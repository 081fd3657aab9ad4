package signals

import (
	"math"
	"time"

	"github.com/opensource-finance/fakeguard/internal/domain"
)

// Sustained posting above this rate is treated as automated.
const burstPostsPerDay = 50.0

// CheckBurstPosting flags accounts averaging more than 50 posts a day over
// their lifetime. The age floors to one day so brand-new accounts divide safely.
func CheckBurstPosting(rec domain.AccountRecord, now time.Time) domain.BurstFinding {
	posts := Int(rec, domain.FieldPosts)
	age := AccountAge(rec, now)
	if age < 1 {
		age = 1
	}

	rate := float64(posts) / float64(age)

	return domain.BurstFinding{
		IsSuspicious: rate > burstPostsPerDay,
		PostsPerDay:  math.Round(rate*100) / 100,
		TotalPosts:   posts,
		AccountAge:   age,
	}
}
