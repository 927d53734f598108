// Package validation provides custom validation rules for the application.
package validation

import (
	"regexp"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/orders/internal/errors"
)

// currencyRegex matches ISO 4217 alphabetic currency codes.
var currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// CurrencyCode validates that a string is an uppercase ISO 4217 currency code.
var CurrencyCode = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_currency_type", "must be a string")
	}
	if s == "" {
		return nil // Let Required handle empty strings
	}
	if !currencyRegex.MatchString(s) {
		return validation.NewError("validation_currency", "must be a three-letter uppercase currency code")
	}
	return nil
})

// IdempotencyKeyFormat validates the shape of a client-supplied idempotency key.
// Keys are opaque but bounded and limited to printable, URL-safe characters.
var IdempotencyKeyFormat = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_idempotency_key_type", "must be a string")
	}
	if s == "" {
		return nil // Let Required handle empty strings
	}
	if len(s) > 255 {
		return validation.NewError("validation_idempotency_key_length", "must be at most 255 characters")
	}
	for _, r := range s {
		if !isKeyRune(r) {
			return validation.NewError(
				"validation_idempotency_key_charset",
				"must contain only letters, digits, dashes, underscores, or dots",
			)
		}
	}
	return nil
})

func isKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.':
		return true
	}
	return false
}
