package signals

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/opensource-finance/fakeguard/internal/domain"
)

// DedupIndex maps a profile-picture content hash to the first username seen
// with it. One index belongs to one batch and must not outlive it.
// It is not safe for concurrent use.
type DedupIndex struct {
	seen map[string]string
}

// NewDedupIndex returns an empty index.
func NewDedupIndex() *DedupIndex {
	return &DedupIndex{seen: make(map[string]string)}
}

// Observe records picture for username unless it was seen before.
// It returns the first-seen username and true for a repeat.
func (x *DedupIndex) Observe(picture, username string) (string, bool) {
	hash := pictureHash(picture)
	if original, ok := x.seen[hash]; ok {
		return original, true
	}
	x.seen[hash] = username
	return "", false
}

// Len returns the number of distinct pictures indexed.
func (x *DedupIndex) Len() int {
	return len(x.seen)
}

func pictureHash(picture string) string {
	sum := md5.Sum([]byte(picture))
	return hex.EncodeToString(sum[:])
}

// CheckDuplicateProfilePicture flags an account whose profile picture was
// already used by an earlier account in the same index. The first account
// with a picture is never flagged.
func CheckDuplicateProfilePicture(rec domain.AccountRecord, idx *DedupIndex) domain.DuplicateFinding {
	picture := rec.String(domain.FieldProfilePicture)
	if picture == "" || idx == nil {
		return domain.DuplicateFinding{}
	}

	original, dup := idx.Observe(picture, rec.Username())
	if !dup {
		return domain.DuplicateFinding{}
	}

	return domain.DuplicateFinding{
		IsSuspicious:    true,
		OriginalAccount: original,
	}
}
