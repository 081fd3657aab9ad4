package signals

import (
	"math"
	"strings"

	"github.com/opensource-finance/fakeguard/internal/domain"
)

const (
	// PostDelimiter separates posts inside recent_posts.
	PostDelimiter = "|||"

	// Above this share of repeated posts the content is considered copy-paste.
	maxDuplicateRatio = 0.5
)

// CheckContent flags accounts whose recent posts are mostly exact repeats,
// ignoring case and surrounding whitespace.
func CheckContent(rec domain.AccountRecord) domain.ContentFinding {
	raw := rec.String(domain.FieldRecentPosts)
	if raw == "" {
		return domain.ContentFinding{}
	}

	posts := strings.Split(raw, PostDelimiter)
	if len(posts) < 2 {
		return domain.ContentFinding{TotalPosts: len(posts)}
	}

	unique := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		unique[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
	}

	ratio := 1 - float64(len(unique))/float64(len(posts))

	return domain.ContentFinding{
		IsSuspicious: ratio > maxDuplicateRatio,
		Similarity:   int(math.Round(ratio * 100)),
		TotalPosts:   len(posts),
	}
}
