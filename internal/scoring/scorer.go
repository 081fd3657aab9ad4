// Package scoring combines the signal detectors into a suspicion score and
// risk tier, for one account or for a whole batch.
package scoring

import (
	"sync"
	"time"

	"github.com/opensource-finance/fakeguard/internal/domain"
	"github.com/opensource-finance/fakeguard/internal/signals"
)

// RuleEvaluator runs operator-defined rules against an account.
// Results must come back in a stable order.
type RuleEvaluator interface {
	EvaluateAccount(rec domain.AccountRecord, now time.Time) []domain.RuleResult
}

// Scorer runs every detector over account records.
// A Scorer holds no per-batch state and may be shared between goroutines.
type Scorer struct {
	// Optional custom rules evaluated after the built-in detectors
	Rules RuleEvaluator

	// Clock used for account age; defaults to time.Now
	Now func() time.Time

	// Per-record fan-out inside ScoreBatch; 1 or less scores sequentially
	Workers int
}

// NewScorer creates a sequential scorer with no custom rules.
func NewScorer() *Scorer {
	return &Scorer{
		Now:     time.Now,
		Workers: 1,
	}
}

func (s *Scorer) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// ScoreOne analyzes a single record. Duplicate-picture detection consults
// and updates idx; a nil idx is replaced by a fresh empty index, so a
// standalone check never reports a duplicate.
func (s *Scorer) ScoreOne(rec domain.AccountRecord, idx *signals.DedupIndex) domain.AccountAnalysis {
	if idx == nil {
		idx = signals.NewDedupIndex()
	}
	dup := signals.CheckDuplicateProfilePicture(rec, idx)
	return s.analyze(rec, dup, s.now())
}

// ScoreBatch analyzes records in order with one batch-scoped dedup index and
// partitions the results. The earliest record with a given picture is the
// original; later ones are duplicates.
func (s *Scorer) ScoreBatch(records []domain.AccountRecord) domain.BatchResult {
	now := s.now()

	// Dedup is order-dependent and runs first, in input order
	idx := signals.NewDedupIndex()
	dups := make([]domain.DuplicateFinding, len(records))
	for i, rec := range records {
		dups[i] = signals.CheckDuplicateProfilePicture(rec, idx)
	}

	analyses := make([]domain.AccountAnalysis, len(records))
	if s.Workers <= 1 || len(records) < 2 {
		for i, rec := range records {
			analyses[i] = s.analyze(rec, dups[i], now)
		}
	} else {
		var wg sync.WaitGroup
		sem := make(chan struct{}, s.Workers)

		for i, rec := range records {
			wg.Add(1)
			go func(idx int, r domain.AccountRecord) {
				defer wg.Done()

				sem <- struct{}{}        // Acquire
				defer func() { <-sem }() // Release

				analyses[idx] = s.analyze(r, dups[idx], now)
			}(i, rec)
		}

		wg.Wait()
	}

	return Partition(records, analyses)
}

// Partition splits analyses into flagged and clean, keeping input order.
// Flagged analyses carry their original record.
func Partition(records []domain.AccountRecord, analyses []domain.AccountAnalysis) domain.BatchResult {
	result := domain.BatchResult{
		Total:   len(analyses),
		Flagged: make([]domain.AccountAnalysis, 0),
		Clean:   make([]domain.AccountAnalysis, 0),
	}

	for i, a := range analyses {
		if IsFlagged(a) {
			if i < len(records) {
				a.AccountData = records[i]
			}
			result.Flagged = append(result.Flagged, a)
			continue
		}
		result.Clean = append(result.Clean, a)
	}

	return result
}

// analyze runs every detector except dedup and combines the findings.
func (s *Scorer) analyze(rec domain.AccountRecord, dup domain.DuplicateFinding, now time.Time) domain.AccountAnalysis {
	username := rec.Username()

	details := domain.Details{
		BurstPosting:        signals.CheckBurstPosting(rec, now),
		ProfileCompleteness: signals.CheckProfileCompleteness(rec),
		AccountAge:          signals.CheckAccountAge(rec, now),
		UsernamePattern:     signals.CheckUsername(username),
		DuplicateProfile:    dup,
		Metadata:            signals.CheckMetadata(rec),
		Activity:            signals.CheckActivity(rec),
		Content:             signals.CheckContent(rec),
	}

	if s.Rules != nil {
		details.CustomRules = s.Rules.EvaluateAccount(rec, now)
	}

	score, flags := Combine(details)

	return domain.AccountAnalysis{
		Username:       username,
		SuspicionScore: score,
		RiskLevel:      Tier(score),
		Flags:          flags,
		Details:        details,
	}
}
