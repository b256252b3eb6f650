package config

import (
	"fmt"
	"strings"
	"unicode"
)

// SecretStrength represents the strength level of a secret.
type SecretStrength int

const (
	SecretStrengthWeak SecretStrength = iota
	SecretStrengthMedium
	SecretStrengthStrong
)

var commonPlaceholders = []string{
	"changeme", "please_change_me", "your_api_key", "your_secret",
	"test", "password", "admin", "secret", "example", "sample", "demo", "default",
}

var commonWeakPasswords = []string{
	"123456", "password", "12345678", "qwerty", "abc123", "letmein",
}

// SecretValidationResult is the outcome of ValidateSecret.
type SecretValidationResult struct {
	IsValid  bool
	Strength SecretStrength
	Errors   []string
}

// ValidateSecret validates a secret for strength and for common
// placeholder values. minLength is the minimum acceptable length;
// requireStrong enforces a mix of character classes (used in production).
func ValidateSecret(secret, name string, minLength int, requireStrong bool) SecretValidationResult {
	result := SecretValidationResult{IsValid: true, Strength: SecretStrengthStrong}

	if secret == "" {
		result.IsValid = false
		result.Strength = SecretStrengthWeak
		result.Errors = append(result.Errors, fmt.Sprintf("%s cannot be empty", name))
		return result
	}

	lower := strings.ToLower(secret)
	for _, p := range commonPlaceholders {
		if strings.Contains(lower, p) {
			result.IsValid = false
			result.Strength = SecretStrengthWeak
			result.Errors = append(result.Errors, fmt.Sprintf("%s appears to be a placeholder value", name))
			return result
		}
	}
	for _, w := range commonWeakPasswords {
		if lower == w {
			result.IsValid = false
			result.Strength = SecretStrengthWeak
			result.Errors = append(result.Errors, fmt.Sprintf("%s is a commonly known weak password", name))
			return result
		}
	}

	if len(secret) < minLength {
		result.IsValid = false
		result.Strength = SecretStrengthWeak
		result.Errors = append(result.Errors, fmt.Sprintf("%s must be at least %d characters", name, minLength))
		return result
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, ch := range secret {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasNumber = true
		case unicode.IsPunct(ch) || unicode.IsSymbol(ch):
			hasSpecial = true
		}
	}
	types := 0
	for _, ok := range []bool{hasUpper, hasLower, hasNumber, hasSpecial} {
		if ok {
			types++
		}
	}

	switch {
	case len(secret) >= 16 && types >= 3:
		result.Strength = SecretStrengthStrong
	case len(secret) >= 12 && types >= 2:
		result.Strength = SecretStrengthMedium
	default:
		result.Strength = SecretStrengthWeak
	}

	if requireStrong && result.Strength == SecretStrengthWeak {
		result.IsValid = false
		result.Errors = append(result.Errors, fmt.Sprintf("%s is too weak for production use", name))
	}

	return result
}

// ValidateProductionSecrets validates the exchange credentials and store
// password configured for production use.
func ValidateProductionSecrets(cfg *Config) ValidationErrors {
	var errors ValidationErrors

	if cfg.Store.Backend == "postgres" && cfg.Database.Password != "" {
		result := ValidateSecret(cfg.Database.Password, "database password", 12, true)
		for _, e := range result.Errors {
			errors = append(errors, ValidationError{Field: "database.password", Message: e})
		}
	}

	for name, ex := range cfg.Exchanges {
		if ex.APIKey != "" {
			result := ValidateSecret(ex.APIKey, fmt.Sprintf("%s API key", name), 10, false)
			for _, e := range result.Errors {
				errors = append(errors, ValidationError{Field: fmt.Sprintf("exchanges.%s.api_key", name), Message: e})
			}
		}
	}

	return errors
}
