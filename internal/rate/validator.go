package rate

import (
	"errors"
	"strings"

	"fxquotes/internal/domain"
)

var (
	ErrCodeRequired  = errors.New("currency code is required")
	ErrCodeMalformed = errors.New("currency code must be three letters")
)

// NormalizeCode trims and upper-cases code and checks it is a three-letter code.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", ErrCodeRequired
	}
	if !domain.IsCurrencyCode(code) {
		return "", ErrCodeMalformed
	}
	return code, nil
}

// IsInvalidInput reports whether err was caused by a malformed request argument.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrCodeRequired) || errors.Is(err, ErrCodeMalformed)
}
