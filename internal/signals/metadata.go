package signals

import (
	"strings"

	"github.com/opensource-finance/fakeguard/internal/domain"
)

// disposableDomains are throwaway mailbox providers.
var disposableDomains = map[string]bool{
	"10minutemail.com":  true,
	"guerrillamail.com": true,
	"mailinator.com":    true,
	"yopmail.com":       true,
	"tempmail.org":      true,
	"throwaway.email":   true,
	"temp-mail.org":     true,
	"getnada.com":       true,
	"maildrop.cc":       true,
}

// Metadata issues and their sub-scores.
const (
	IssueEmailNotVerified = "Email not verified"
	IssueDisposableEmail  = "Disposable email domain"
	IssuePhoneNotVerified = "Phone not verified"
	IssueNoEmail          = "No email provided"
)

// IsDisposableDomain reports whether domain belongs to a throwaway provider.
func IsDisposableDomain(domain string) bool {
	return disposableDomains[strings.ToLower(domain)]
}

// EmailDomain returns the lower-cased part after the first '@', or "".
func EmailDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) < 2 {
		return ""
	}
	return strings.ToLower(parts[1])
}

// CheckMetadata accumulates independent account-metadata issues.
// Unlike the other detectors its weight is variable: Score is the sum of the
// triggered issues' sub-scores.
func CheckMetadata(rec domain.AccountRecord) domain.MetadataFinding {
	issues := make([]string, 0, 4)
	score := 0

	if IsFalse(rec, domain.FieldEmailVerified) {
		issues = append(issues, IssueEmailNotVerified)
		score++
	}

	email := rec.String(domain.FieldEmail)
	if email != "" && IsDisposableDomain(EmailDomain(email)) {
		issues = append(issues, IssueDisposableEmail)
		score += 2
	}

	if IsFalse(rec, domain.FieldPhoneVerified) {
		issues = append(issues, IssuePhoneNotVerified)
		score++
	}

	if strings.TrimSpace(email) == "" {
		issues = append(issues, IssueNoEmail)
		score++
	}

	return domain.MetadataFinding{
		IsSuspicious: len(issues) > 0,
		Issues:       issues,
		Score:        score,
	}
}
