package auth

import (
	"time"
	"unicode"
)

// Rule identifiers returned by PasswordPolicy.Validate
const (
	RuleMinLength = "min_length"
	RuleUppercase = "uppercase"
	RuleLowercase = "lowercase"
	RuleDigit     = "digit"
)

// PasswordPolicy holds configurable complexity rules for passwords and PINs
type PasswordPolicy struct {
	MinLength    int
	RequireUpper bool
	RequireLower bool
	RequireDigit bool
}

// DefaultPasswordPolicy returns the policy applied unless overridden by config
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:    8,
		RequireUpper: true,
		RequireLower: true,
		RequireDigit: true,
	}
}

// Validate checks every configured rule and returns the identifiers of all
// violated rules. Rules are evaluated cumulatively, never short-circuited,
// so callers can report the complete set of problems at once.
func (p PasswordPolicy) Validate(secret string) []string {
	violations := make([]string, 0)

	if len(secret) < p.MinLength {
		violations = append(violations, RuleMinLength)
	}

	hasUpper := false
	hasLower := false
	hasDigit := false
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if p.RequireUpper && !hasUpper {
		violations = append(violations, RuleUppercase)
	}
	if p.RequireLower && !hasLower {
		violations = append(violations, RuleLowercase)
	}
	if p.RequireDigit && !hasDigit {
		violations = append(violations, RuleDigit)
	}

	return violations
}

// SecretExpired reports whether a secret last changed at changedAt has
// outlived maxAgeDays. A maxAgeDays of zero disables expiry.
func SecretExpired(changedAt, now time.Time, maxAgeDays int) bool {
	if maxAgeDays <= 0 {
		return false
	}
	return now.Sub(changedAt) > time.Duration(maxAgeDays)*24*time.Hour
}
