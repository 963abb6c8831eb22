// Package safety implements the deterministic SQL safety validator.
//
// The validator is the final authority over every SQL string the router
// executes, regardless of whether the SQL came from the LLM, from a cache
// tier, or straight from the caller. It is intentionally regex-based and
// stateless: the layers below contain the blast radius without attempting
// to parse SQL.
package safety

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/holdersav20001/enterprise-tool-router/pkg/errs"
)

// DefaultAllowedTables is the fixed set of tables that may appear after FROM
// or JOIN.
var DefaultAllowedTables = []string{"sales_fact", "job_runs", "audit_log"}

// DefaultBlockedKeywords are rejected wherever they appear as whole words.
var DefaultBlockedKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "CREATE", "DROP", "ALTER",
	"TRUNCATE", "GRANT", "REVOKE", "COPY",
}

// DefaultLimit is appended when a query carries no LIMIT clause.
const DefaultLimit = 200

var (
	limitPattern = regexp.MustCompile(`\bLIMIT\s+\d+`)
	fromPattern  = regexp.MustCompile(`\bFROM\s+(\w+)`)
	joinPattern  = regexp.MustCompile(`\bJOIN\s+(\w+)`)
)

// Validator applies the safety layers in fixed order, short-circuiting on the
// first failure. The only rewrite it performs is appending a LIMIT clause.
type Validator struct {
	allowedTables   map[string]struct{}
	blockedPatterns map[string]*regexp.Regexp
	defaultLimit    int
}

// Config customizes the validator policy. Zero values fall back to defaults.
type Config struct {
	AllowedTables   []string
	BlockedKeywords []string
	DefaultLimit    int
}

// New creates a validator with the given policy.
func New(cfg Config) *Validator {
	tables := cfg.AllowedTables
	if len(tables) == 0 {
		tables = DefaultAllowedTables
	}
	keywords := cfg.BlockedKeywords
	if len(keywords) == 0 {
		keywords = DefaultBlockedKeywords
	}
	limit := cfg.DefaultLimit
	if limit <= 0 {
		limit = DefaultLimit
	}

	v := &Validator{
		allowedTables:   make(map[string]struct{}, len(tables)),
		blockedPatterns: make(map[string]*regexp.Regexp, len(keywords)),
		defaultLimit:    limit,
	}
	for _, t := range tables {
		v.allowedTables[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	for _, kw := range keywords {
		kw = strings.ToUpper(strings.TrimSpace(kw))
		v.blockedPatterns[kw] = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
	}
	return v
}

// Validate checks sql against every safety layer and returns the sanitized
// form. The returned string is the only SQL the executor may run.
func (v *Validator) Validate(sql string) (string, error) {
	trimmed := strings.TrimSpace(sql)
	upper := strings.ToUpper(trimmed)

	// Layer 1: shape gate.
	if !strings.HasPrefix(upper, "SELECT") {
		return "", errs.NewSafetyError("only SELECT statements are allowed")
	}

	// Layer 2: statement boundary.
	if strings.Contains(trimmed, ";") {
		return "", errs.NewSafetyError("semicolons are not allowed")
	}

	// Layer 3: keyword blocklist.
	for kw, pattern := range v.blockedPatterns {
		if pattern.MatchString(upper) {
			return "", errs.NewSafetyError(fmt.Sprintf("keyword %q is not allowed", kw))
		}
	}

	// Layer 4: LIMIT enforcement, the sole rewrite.
	if !limitPattern.MatchString(upper) {
		trimmed = fmt.Sprintf("%s LIMIT %d", trimmed, v.defaultLimit)
	}

	// Layer 5: table allowlist over every FROM/JOIN target.
	for _, table := range extractTables(upper) {
		if _, ok := v.allowedTables[table]; !ok {
			return "", errs.NewSafetyError(fmt.Sprintf("table %q is not in the allowlist", table))
		}
	}

	return trimmed, nil
}

// DefaultLimit returns the LIMIT value appended to unbounded queries.
func (v *Validator) DefaultLimit() int {
	return v.defaultLimit
}

func extractTables(upperSQL string) []string {
	var tables []string
	for _, m := range fromPattern.FindAllStringSubmatch(upperSQL, -1) {
		tables = append(tables, strings.ToLower(m[1]))
	}
	for _, m := range joinPattern.FindAllStringSubmatch(upperSQL, -1) {
		tables = append(tables, strings.ToLower(m[1]))
	}
	return tables
}
