package signals

import (
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/opensource-finance/fakeguard/internal/domain"
)

const (
	day = 24 * time.Hour

	// Accounts younger than this many days are suspicious.
	newAccountDays = 30
)

// AccountAge returns the number of days between created_at and now, rounded up.
// A missing or unparseable created_at yields 0.
func AccountAge(rec domain.AccountRecord, now time.Time) int {
	raw := strings.TrimSpace(rec.String(domain.FieldCreatedAt))
	if raw == "" {
		return 0
	}

	created, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return 0
	}

	diff := now.Sub(created)
	if diff < 0 {
		diff = -diff
	}
	return int(math.Ceil(float64(diff) / float64(day)))
}

// CheckAccountAge flags accounts created less than 30 days ago.
func CheckAccountAge(rec domain.AccountRecord, now time.Time) domain.AgeFinding {
	age := AccountAge(rec, now)
	return domain.AgeFinding{
		IsSuspicious: age < newAccountDays,
		AgeDays:      age,
	}
}
