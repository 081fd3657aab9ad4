package rules

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/fakeguard/internal/domain"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "test-rule-001",
		Name:       "Test Rule",
		Expression: "followers > 100",
		Weight:     1,
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	t.Run("Syntax", func(t *testing.T) {
		rule := &domain.RuleConfig{
			ID:         "invalid-rule",
			Expression: "this is not valid CEL !!!",
			Enabled:    true,
		}
		if err := engine.LoadRule(rule); err == nil {
			t.Error("expected error for invalid CEL expression")
		}
	})

	t.Run("StringResult", func(t *testing.T) {
		rule := &domain.RuleConfig{
			ID:         "string-rule",
			Expression: "username",
			Enabled:    true,
		}
		if err := engine.ValidateRule(rule); err == nil {
			t.Error("expected error for non-numeric result type")
		}
	})

	t.Run("UnknownVariable", func(t *testing.T) {
		rule := &domain.RuleConfig{
			ID:         "unknown-var",
			Expression: "amount > 10.0",
			Enabled:    true,
		}
		if err := engine.ValidateRule(rule); err == nil {
			t.Error("expected error for undeclared variable")
		}
	})

	if engine.RulesCount() != 0 {
		t.Errorf("invalid rules should not be loaded, got %d", engine.RulesCount())
	}
}

func TestEvaluateBandedRule(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	one := 1.0

	rule := &domain.RuleConfig{
		ID:         "follower-ratio",
		Expression: "followers == 0 ? 1.0 : double(following) / double(followers) / 10.0",
		Bands: []domain.RuleBand{
			{UpperLimit: &one, SubRuleRef: domain.RuleOutcomePass, Reason: "Normal ratio"},
			{LowerLimit: &one, SubRuleRef: domain.RuleOutcomeFail, Reason: "Follows far more than followed"},
		},
		Weight:  2,
		Enabled: true,
	}
	engine.LoadRule(rule)

	ctx := context.Background()

	results, err := engine.EvaluateAll(ctx, domain.AccountRecord{"followers": 100, "following": 50}, testNow)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].SubRuleRef != domain.RuleOutcomePass {
		t.Errorf("expected PASS, got %s", results[0].SubRuleRef)
	}
	if results[0].Weight != 2 {
		t.Errorf("expected weight 2, got %d", results[0].Weight)
	}

	results, _ = engine.EvaluateAll(ctx, domain.AccountRecord{"followers": "3", "following": "900"}, testNow)
	if results[0].SubRuleRef != domain.RuleOutcomeFail {
		t.Errorf("expected FAIL, got %s", results[0].SubRuleRef)
	}
	if results[0].Reason != "Follows far more than followed" {
		t.Errorf("unexpected reason %q", results[0].Reason)
	}
	if !results[0].Triggered() {
		t.Error("fail outcome should trigger")
	}
}

func TestAccountVariables(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	one := 1.0
	bands := []domain.RuleBand{
		{UpperLimit: &one, SubRuleRef: domain.RuleOutcomePass, Reason: "no"},
		{LowerLimit: &one, SubRuleRef: domain.RuleOutcomeReview, Reason: "yes"},
	}

	rec := domain.AccountRecord{
		"username":   "shop_bot",
		"email":      "deals@Example.COM",
		"posts":      "42",
		"created_at": testNow.Add(-10 * 24 * time.Hour).Format(time.RFC3339),
		"bio":        "best deals",
	}

	tests := []struct {
		name string
		expr string
		want string
	}{
		{"Username", `username.endsWith("_bot")`, domain.RuleOutcomeReview},
		{"EmailDomainLowered", `email_domain == "example.com"`, domain.RuleOutcomeReview},
		{"Posts", `posts == 42`, domain.RuleOutcomeReview},
		{"AgeDays", `age_days == 10`, domain.RuleOutcomeReview},
		{"RawAccount", `"bio" in account && account.bio.contains("deals")`, domain.RuleOutcomeReview},
		{"MissingCountsZero", `followers == 0 && following == 0`, domain.RuleOutcomeReview},
		{"NotMatched", `posts > 1000`, domain.RuleOutcomePass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &domain.RuleConfig{ID: tt.name, Expression: tt.expr, Bands: bands, Enabled: true}
			if err := engine.ReloadRules([]*domain.RuleConfig{cfg}); err != nil {
				t.Fatalf("failed to load rule: %v", err)
			}

			results := engine.EvaluateAccount(rec, testNow)
			if len(results) != 1 {
				t.Fatalf("expected 1 result, got %d", len(results))
			}
			if results[0].SubRuleRef != tt.want {
				t.Errorf("expected %s, got %s (%s)", tt.want, results[0].SubRuleRef, results[0].Reason)
			}
		})
	}
}

func TestEvaluationError(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadRule(&domain.RuleConfig{
		ID:         "missing-key",
		Expression: `account.website == "x"`,
		Enabled:    true,
	})

	results := engine.EvaluateAccount(domain.AccountRecord{"username": "alice"}, testNow)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].SubRuleRef != domain.RuleOutcomeError {
		t.Errorf("expected ERR, got %s", results[0].SubRuleRef)
	}
	if results[0].Triggered() {
		t.Error("errors must not count toward the score")
	}
}

func TestResultsOrderedByRuleID(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	for _, i := range []int{7, 2, 9, 0, 5, 1, 8, 3, 6, 4} {
		engine.LoadRule(&domain.RuleConfig{
			ID:         fmt.Sprintf("rule-%d", i),
			Expression: "posts >= 0",
			Enabled:    true,
		})
	}

	if engine.RulesCount() != 10 {
		t.Fatalf("expected 10 rules, got %d", engine.RulesCount())
	}

	results := engine.EvaluateAccount(domain.AccountRecord{}, testNow)
	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}

	for i, r := range results {
		if r.RuleID != fmt.Sprintf("rule-%d", i) {
			t.Errorf("position %d: expected rule-%d, got %s", i, i, r.RuleID)
		}
		if r.Score != 1.0 {
			t.Errorf("rule %s: expected score 1.0, got %.2f", r.RuleID, r.Score)
		}
	}

	loaded := engine.GetLoadedRules()
	if loaded[0].ID != "rule-0" || loaded[9].ID != "rule-9" {
		t.Errorf("loaded rules not sorted: %s .. %s", loaded[0].ID, loaded[9].ID)
	}
}

func TestReloadRules(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadRule(&domain.RuleConfig{ID: "old", Expression: "true", Enabled: true})

	err := engine.ReloadRules([]*domain.RuleConfig{
		{ID: "new-1", Expression: "posts > 1", Enabled: true},
		{ID: "new-2", Expression: "posts > 2", Enabled: false},
	})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 enabled rule, got %d", engine.RulesCount())
	}

	err = engine.ReloadRules([]*domain.RuleConfig{
		{ID: "broken", Expression: "posts >", Enabled: true},
	})
	if err == nil {
		t.Fatal("expected reload error")
	}
	if engine.RulesCount() != 1 || engine.GetLoadedRules()[0].ID != "new-1" {
		t.Error("failed reload must keep the previous rule set")
	}
}

func TestMatchBand(t *testing.T) {
	half := 0.5
	one := 1.0
	bands := []domain.RuleBand{
		{UpperLimit: &half, SubRuleRef: domain.RuleOutcomePass, Reason: "low"},
		{LowerLimit: &half, UpperLimit: &one, SubRuleRef: domain.RuleOutcomeReview, Reason: "mid"},
		{LowerLimit: &one, SubRuleRef: domain.RuleOutcomeFail, Reason: "high"},
	}

	tests := []struct {
		score float64
		want  string
	}{
		{0, domain.RuleOutcomePass},
		{0.49, domain.RuleOutcomePass},
		{0.5, domain.RuleOutcomeReview},
		{0.99, domain.RuleOutcomeReview},
		{1, domain.RuleOutcomeFail},
		{50, domain.RuleOutcomeFail},
	}

	for _, tt := range tests {
		got, _ := matchBand(tt.score, bands)
		if got != tt.want {
			t.Errorf("score %.2f: expected %s, got %s", tt.score, tt.want, got)
		}
	}

	if got, reason := matchBand(1, nil); got != domain.RuleOutcomePass || reason != "no matching band" {
		t.Errorf("empty bands should pass, got %s (%s)", got, reason)
	}
}

func TestSampleRulesCompile(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	if err := engine.LoadRules(SampleRules()); err != nil {
		t.Fatalf("sample rules failed to load: %v", err)
	}

	rec := domain.AccountRecord{
		"email":     "123456789@gmail.com",
		"followers": 10,
		"following": 900,
	}

	triggered := 0
	for _, r := range engine.EvaluateAccount(rec, testNow) {
		if r.Triggered() {
			triggered++
		}
	}
	if triggered != 2 {
		t.Errorf("expected follow-farming and numeric-email to trigger, got %d", triggered)
	}
}

func TestRuleWithoutBands(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadRule(&domain.RuleConfig{
		ID:          "no-bio",
		Name:        "No bio",
		Description: "Profile has no bio",
		Expression:  `!has(account.bio) || account.bio == ''`,
		Weight:      2,
		Enabled:     true,
	})

	results := engine.EvaluateAccount(domain.AccountRecord{"username": "ghost"}, testNow)
	if !results[0].Triggered() || results[0].Reason != "Profile has no bio" {
		t.Errorf("expected trigger with description as reason, got %+v", results[0])
	}

	results = engine.EvaluateAccount(domain.AccountRecord{"username": "jane", "bio": "writer"}, testNow)
	if results[0].Triggered() {
		t.Errorf("rule should not trigger for a filled bio, got %+v", results[0])
	}
}

func TestAccountFunctions(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	rec := domain.AccountRecord{
		"email":      "x@Mailinator.com",
		"posts":      300,
		"created_at": testNow.Add(-3 * 24 * time.Hour).Format(time.RFC3339),
	}

	engine.ReloadRules([]*domain.RuleConfig{
		{ID: "disposable", Expression: `disposable(email_domain)`, Enabled: true},
		{ID: "rate", Expression: `posts_per_day >= 100.0`, Enabled: true},
		{ID: "rate-value", Expression: `posts_per_day`, Enabled: true},
	})

	results := engine.EvaluateAccount(rec, testNow)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Triggered() {
			t.Errorf("rule %s should trigger, got %+v", r.RuleID, r)
		}
	}
	if results[2].Score != 100 {
		t.Errorf("expected 100 posts per day, got %.2f", results[2].Score)
	}
}

func TestCostLimit(t *testing.T) {
	engine, _ := NewEngine(WithCostLimit(1))
	defer engine.Close()

	engine.LoadRule(&domain.RuleConfig{
		ID:         "expensive",
		Expression: `username.matches("^[a-z]+[0-9]+$") && email.contains("@") && followers > following`,
		Enabled:    true,
	})

	results := engine.EvaluateAccount(domain.AccountRecord{"username": "user12345", "email": "a@b.c"}, testNow)
	if results[0].SubRuleRef != domain.RuleOutcomeError {
		t.Errorf("expected cost limit to abort evaluation, got %+v", results[0])
	}
}

func TestEvaluateAllCancelled(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()
	engine.LoadRule(&domain.RuleConfig{ID: "any", Expression: "true", Enabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.EvaluateAll(ctx, domain.AccountRecord{}, testNow); err == nil {
		t.Error("expected context error")
	}
}

func TestLoadRuleReplacesSameID(t *testing.T) {
	engine, _ := NewEngine()
	defer engine.Close()

	engine.LoadRule(&domain.RuleConfig{ID: "r", Expression: "posts > 1", Enabled: true})
	engine.LoadRule(&domain.RuleConfig{ID: "r", Expression: "posts > 2", Enabled: true})

	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
	if got := engine.GetLoadedRules()[0].Expression; got != "posts > 2" {
		t.Errorf("expected latest expression, got %s", got)
	}
}
