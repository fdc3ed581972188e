package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	maxBoardName        = 100
	maxBoardDescription = 1000
	maxColumnName       = 100
	maxTaskTitle        = 254
	maxTagLength        = 50
)

func validateLength(field string, v string, min, max int) error {
	n := utf8.RuneCountInString(v)
	if n < min || n > max {
		if min > 0 {
			return newError(ErrValidation, "%s must be between %d and %d characters long", field, min, max)
		}
		return newError(ErrValidation, "%s must be at most %d characters long", field, max)
	}
	return nil
}

func validateTags(tags []string) error {
	for _, tag := range tags {
		if n := utf8.RuneCountInString(tag); n < 1 || n > maxTagLength {
			return newError(ErrValidation, "each tag must be between 1 and %d characters long", maxTagLength)
		}
	}
	return nil
}

func validateID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return newError(ErrValidation, "%s is required", field)
	}
	return nil
}
