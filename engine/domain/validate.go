package domain

import (
	"fmt"
	"strings"
)

// ValidateQuery checks a query request before any model work is spent on it.
func ValidateQuery(sessionID, question string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("validate: sessionId is required: %w", ErrInvalidArgument)
	}
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("validate: question is required: %w", ErrInvalidArgument)
	}
	return nil
}
