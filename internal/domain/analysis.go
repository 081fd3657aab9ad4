package domain

import (
	"fmt"
	"time"
)

// RiskLevel is the tier derived from a suspicion score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// BurstFinding is the output of the burst-posting detector.
type BurstFinding struct {
	IsSuspicious bool    `json:"isSuspicious"`
	PostsPerDay  float64 `json:"postsPerDay"`
	TotalPosts   int     `json:"totalPosts"`
	AccountAge   int     `json:"accountAge"`
}

// CompletenessFinding is the output of the profile-completeness detector.
type CompletenessFinding struct {
	IsSuspicious  bool     `json:"isSuspicious"`
	Score         int      `json:"score"`
	MissingFields []string `json:"missingFields"`
}

// AgeFinding is the output of the account-age detector.
type AgeFinding struct {
	IsSuspicious bool `json:"isSuspicious"`
	AgeDays      int  `json:"ageDays"`
}

// UsernameFinding is the output of the username-pattern detector.
type UsernameFinding struct {
	IsSuspicious bool   `json:"isSuspicious"`
	Pattern      string `json:"pattern,omitempty"`
	Description  string `json:"description,omitempty"`
}

// DuplicateFinding is the output of the duplicate-profile-picture detector.
type DuplicateFinding struct {
	IsSuspicious    bool   `json:"isSuspicious"`
	OriginalAccount string `json:"originalAccount,omitempty"`
}

// MetadataFinding is the output of the suspicious-metadata detector.
// Score is the sum of the per-issue sub-scores.
type MetadataFinding struct {
	IsSuspicious bool     `json:"isSuspicious"`
	Issues       []string `json:"issues"`
	Score        int      `json:"score"`
}

// ActivityFinding is the output of the activity-anomaly detector.
type ActivityFinding struct {
	IsSuspicious      bool   `json:"isSuspicious"`
	Issue             string `json:"issue,omitempty"`
	DistinctHours     int    `json:"distinctHours"`
	DistinctLocations int    `json:"distinctLocations"`
}

// ContentFinding is the output of the content-similarity detector.
type ContentFinding struct {
	IsSuspicious bool `json:"isSuspicious"`
	Similarity   int  `json:"similarity"` // duplicate ratio as a percentage
	TotalPosts   int  `json:"totalPosts"`
}

// Details holds every detector's finding for one account, keyed by detector name.
type Details struct {
	BurstPosting        BurstFinding        `json:"burstPosting"`
	ProfileCompleteness CompletenessFinding `json:"profileCompleteness"`
	AccountAge          AgeFinding          `json:"accountAge"`
	UsernamePattern     UsernameFinding     `json:"usernamePattern"`
	DuplicateProfile    DuplicateFinding    `json:"duplicateProfile"`
	Metadata            MetadataFinding     `json:"metadata"`
	Activity            ActivityFinding     `json:"activity"`
	Content             ContentFinding      `json:"content"`

	// CustomRules holds results of operator-defined rules, if any are loaded.
	CustomRules []RuleResult `json:"customRules,omitempty"`
}

// AccountAnalysis is the scored result for a single account.
type AccountAnalysis struct {
	Username       string    `json:"username"`
	SuspicionScore int       `json:"suspicionScore"`
	RiskLevel      RiskLevel `json:"riskLevel"`
	Flags          []string  `json:"flags"`
	Details        Details   `json:"details"`

	// AccountData is the original record, attached only to flagged accounts.
	AccountData AccountRecord `json:"accountData,omitempty"`
}

// BatchResult partitions a scored batch into flagged and clean accounts.
// Both sequences keep the input order.
type BatchResult struct {
	Total   int               `json:"total"`
	Flagged []AccountAnalysis `json:"flagged"`
	Clean   []AccountAnalysis `json:"clean"`
}

// AnalysisReport is the cached outcome of the last batch analysis for a tenant.
type AnalysisReport struct {
	ID             string            `json:"id"`
	TenantID       string            `json:"tenantId"`
	DatasetID      string            `json:"datasetId"`
	TotalProcessed int               `json:"totalProcessed"`
	TotalFlagged   int               `json:"totalFlagged"`
	Flagged        []AccountAnalysis `json:"flagged"`
	CreatedAt      time.Time         `json:"createdAt"`
	Metadata       ReportMetadata    `json:"metadata"`
}

// ReportMetadata contains processing information for a report.
type ReportMetadata struct {
	TraceID       string `json:"traceId,omitempty"`
	DurationMs    int64  `json:"durationMs"`
	RulesLoaded   int    `json:"rulesLoaded"`
	EngineVersion string `json:"engineVersion"`
}

// FlaggedPercentage renders the flagged share with two decimals.
func (r *AnalysisReport) FlaggedPercentage() string {
	if r.TotalProcessed == 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", float64(r.TotalFlagged)/float64(r.TotalProcessed)*100)
}

// RecentFlags returns up to n of the most recently flagged accounts, oldest first.
func (r *AnalysisReport) RecentFlags(n int) []AccountAnalysis {
	if r == nil || n <= 0 || len(r.Flagged) == 0 {
		return []AccountAnalysis{}
	}
	if len(r.Flagged) <= n {
		return r.Flagged
	}
	return r.Flagged[len(r.Flagged)-n:]
}
