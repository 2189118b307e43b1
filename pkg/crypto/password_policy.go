package crypto

import (
	"net/http"
	"unicode"

	apperrors "github.com/adeelraza/floodcoord/pkg/errors"
)

// Minimum length enforced for account passwords set via invitation acceptance
// or registration.
const MinPasswordLength = 8

// Password policy failures carry a distinct code per missing character class
// so clients can point at the exact requirement.
var (
	ErrPasswordTooShort = apperrors.New("WEAK_PASSWORD_LENGTH",
		"Password must be at least 8 characters long", http.StatusBadRequest)
	ErrPasswordNoUpper = apperrors.New("WEAK_PASSWORD_UPPERCASE",
		"Password must contain at least one uppercase letter", http.StatusBadRequest)
	ErrPasswordNoLower = apperrors.New("WEAK_PASSWORD_LOWERCASE",
		"Password must contain at least one lowercase letter", http.StatusBadRequest)
	ErrPasswordNoDigit = apperrors.New("WEAK_PASSWORD_DIGIT",
		"Password must contain at least one digit", http.StatusBadRequest)
	ErrPasswordNoSymbol = apperrors.New("WEAK_PASSWORD_SYMBOL",
		"Password must contain at least one symbol", http.StatusBadRequest)
)

// ValidatePasswordStrength checks the password against the account password
// policy and returns the first unmet requirement.
func ValidatePasswordStrength(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	switch {
	case !hasUpper:
		return ErrPasswordNoUpper
	case !hasLower:
		return ErrPasswordNoLower
	case !hasDigit:
		return ErrPasswordNoDigit
	case !hasSymbol:
		return ErrPasswordNoSymbol
	}

	return nil
}
