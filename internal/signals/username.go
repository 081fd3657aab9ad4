package signals

import (
	"regexp"

	"github.com/opensource-finance/fakeguard/internal/domain"
)

type usernamePattern struct {
	re          *regexp.Regexp
	description string
}

// usernamePatterns are tried in order; the first match wins.
var usernamePatterns = []usernamePattern{
	{regexp.MustCompile(`^[a-z]+\d{4,}$`), "letters followed by 4+ digits"},
	{regexp.MustCompile(`^[a-z]{1,3}\d{8,}$`), "1-3 letters followed by 8+ digits"},
	{regexp.MustCompile(`(?i)^user\d+$`), "'user' followed by digits"},
	{regexp.MustCompile(`(?i)^account\d+$`), "'account' followed by digits"},
	{regexp.MustCompile(`(?i)^test\d+$`), "'test' followed by digits"},
	{regexp.MustCompile(`(?i)^fake\d+$`), "'fake' followed by digits"},
	{regexp.MustCompile(`(?i)^bot\d+$`), "'bot' followed by digits"},
}

// CheckUsername matches a username against known generated-account shapes.
func CheckUsername(username string) domain.UsernameFinding {
	if username == "" {
		return domain.UsernameFinding{}
	}

	for _, p := range usernamePatterns {
		if p.re.MatchString(username) {
			return domain.UsernameFinding{
				IsSuspicious: true,
				Pattern:      p.re.String(),
				Description:  p.description,
			}
		}
	}

	return domain.UsernameFinding{}
}
