// Package rules runs operator-defined CEL rules against account records.
//
// Rules see a fixed set of derived variables plus the raw record as
// "account". An expression may return bool, int or double; the value is
// mapped to an outcome through the rule's bands. A rule with no bands
// triggers whenever its value is non-zero.
package rules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/fakeguard/internal/domain"
	"github.com/opensource-finance/fakeguard/internal/signals"
)

// DefaultCostLimit bounds the work a single rule may do on one account.
const DefaultCostLimit uint64 = 10000

var ErrRuleRequired = errors.New("rule config is required")

// Engine holds the compiled rule set. Evaluation is safe for concurrent use
// and runs rules sequentially per account; the scorer parallelizes across
// accounts.
type Engine struct {
	mu        sync.RWMutex
	env       *cel.Env
	costLimit uint64
	compiled  []*CompiledRule // sorted by rule ID
}

// CompiledRule pairs a rule with its checked program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// Option configures an Engine.
type Option func(*Engine)

// WithCostLimit overrides DefaultCostLimit. Zero disables the limit.
func WithCostLimit(limit uint64) Option {
	return func(e *Engine) { e.costLimit = limit }
}

// NewEngine builds the CEL environment for account rules.
func NewEngine(opts ...Option) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("account", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("username", cel.StringType),
		cel.Variable("email", cel.StringType),
		cel.Variable("email_domain", cel.StringType),
		cel.Variable("posts", cel.IntType),
		cel.Variable("followers", cel.IntType),
		cel.Variable("following", cel.IntType),
		cel.Variable("age_days", cel.IntType),
		cel.Variable("posts_per_day", cel.DoubleType),
		cel.Function("disposable",
			cel.Overload("disposable_string", []*cel.Type{cel.StringType}, cel.BoolType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					return types.Bool(signals.IsDisposableDomain(string(v.(types.String))))
				}),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{env: env, costLimit: DefaultCostLimit}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Activation builds the CEL variables for one account.
func Activation(rec domain.AccountRecord, now time.Time) map[string]any {
	email := rec.String(domain.FieldEmail)

	account := make(map[string]any, len(rec))
	for k, v := range rec {
		account[k] = v
	}

	return map[string]any{
		"account":       account,
		"username":      rec.Username(),
		"email":         email,
		"email_domain":  signals.EmailDomain(email),
		"posts":         int64(signals.Int(rec, domain.FieldPosts)),
		"followers":     int64(signals.Int(rec, domain.FieldFollowers)),
		"following":     int64(signals.Int(rec, domain.FieldFollowing)),
		"age_days":      int64(signals.AccountAge(rec, now)),
		"posts_per_day": signals.CheckBurstPosting(rec, now).PostsPerDay,
	}
}

// ValidateRule compiles cfg without touching the loaded set.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	_, err := e.compile(cfg)
	return err
}

// LoadRule compiles cfg and adds it, replacing any rule with the same ID.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	compiled, err := e.compile(cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := make([]*CompiledRule, 0, len(e.compiled)+1)
	for _, c := range e.compiled {
		if c.Config.ID != cfg.ID {
			next = append(next, c)
		}
	}
	e.compiled = sortRules(append(next, compiled))
	return nil
}

// LoadRules loads each enabled rule, stopping at the first that fails.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		if err := e.LoadRule(cfg); err != nil {
			return err
		}
	}
	return nil
}

// ReloadRules replaces the loaded set with the enabled rules in configs.
// If any of them fails to compile the previous set stays in place.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	next := make([]*CompiledRule, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compile(cfg)
		if err != nil {
			return err
		}
		next = append(next, compiled)
	}

	e.mu.Lock()
	e.compiled = sortRules(next)
	e.mu.Unlock()
	return nil
}

// EvaluateAll runs every loaded rule against rec, in rule ID order.
// It stops early with ctx's error if ctx is cancelled.
func (e *Engine) EvaluateAll(ctx context.Context, rec domain.AccountRecord, now time.Time) ([]domain.RuleResult, error) {
	e.mu.RLock()
	rules := e.compiled
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	activation := Activation(rec, now)
	results := make([]domain.RuleResult, 0, len(rules))
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results = append(results, evaluate(ctx, rule, activation))
	}
	return results, nil
}

// EvaluateAccount is EvaluateAll without cancellation.
func (e *Engine) EvaluateAccount(rec domain.AccountRecord, now time.Time) []domain.RuleResult {
	results, _ := e.EvaluateAll(context.Background(), rec, now)
	return results
}

func evaluate(ctx context.Context, rule *CompiledRule, activation map[string]any) domain.RuleResult {
	cfg := rule.Config
	result := domain.RuleResult{
		RuleID: cfg.ID,
		Weight: cfg.Weight,
	}

	out, _, err := rule.Program.ContextEval(ctx, activation)
	if err != nil {
		result.SubRuleRef = domain.RuleOutcomeError
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		return result
	}

	result.Score = toScore(out)

	if len(cfg.Bands) == 0 {
		result.SubRuleRef, result.Reason = domain.RuleOutcomePass, "not triggered"
		if result.Score != 0 {
			result.SubRuleRef, result.Reason = domain.RuleOutcomeReview, ruleReason(cfg)
		}
		return result
	}

	result.SubRuleRef, result.Reason = matchBand(result.Score, cfg.Bands)
	return result
}

// ruleReason is the flag text for a rule without bands.
func ruleReason(cfg *domain.RuleConfig) string {
	if cfg.Description != "" {
		return cfg.Description
	}
	return cfg.Name
}

func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1
		}
		return 0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0
	}
}

// matchBand returns the first band containing score. Lower limits are
// inclusive, upper limits exclusive, and a nil upper limit is unbounded.
func matchBand(score float64, bands []domain.RuleBand) (string, string) {
	for _, band := range bands {
		if band.LowerLimit != nil && score < *band.LowerLimit {
			continue
		}
		if band.LowerLimit == nil && score < 0 {
			continue
		}
		if band.UpperLimit == nil || score < *band.UpperLimit {
			return band.SubRuleRef, band.Reason
		}
	}
	return domain.RuleOutcomePass, "no matching band"
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// GetLoadedRules returns the loaded rule configurations, ordered by ID.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.RuleConfig, len(e.compiled))
	for i, c := range e.compiled {
		out[i] = c.Config
	}
	return out
}

// Close unloads every rule.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = nil
	return nil
}

func (e *Engine) compile(cfg *domain.RuleConfig) (*CompiledRule, error) {
	if cfg == nil {
		return nil, ErrRuleRequired
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	switch ast.OutputType() {
	case cel.BoolType, cel.IntType, cel.DoubleType:
	default:
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, ast.OutputType())
	}

	var progOpts []cel.ProgramOption
	if e.costLimit > 0 {
		progOpts = append(progOpts, cel.CostLimit(e.costLimit))
	}

	program, err := e.env.Program(ast, progOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{Config: cfg, Program: program}, nil
}

func sortRules(rules []*CompiledRule) []*CompiledRule {
	sort.Slice(rules, func(i, j int) bool { return rules[i].Config.ID < rules[j].Config.ID })
	return rules
}
