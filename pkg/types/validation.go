package types

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validator returns the shared validator used for wire payloads and config.
func Validator() *validator.Validate {
	return validate
}

// NormalizeName trims a requested display name and checks it against maxLen runes.
func NormalizeName(raw string, maxLen int) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrInvalidName
	}
	if err := validate.Var(name, fmt.Sprintf("max=%d", maxLen)); err != nil {
		return "", ErrNameTooLong
	}
	return name, nil
}

// NormalizeText trims message text and checks it against maxLen runes.
func NormalizeText(raw string, maxLen int) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ErrInvalidMessage
	}
	if err := validate.Var(text, fmt.Sprintf("max=%d", maxLen)); err != nil {
		return "", ErrMessageTooLong
	}
	return text, nil
}
