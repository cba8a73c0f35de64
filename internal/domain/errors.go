package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const MaxQueryLength = 500

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidQuery = errors.New("invalid search query")
	ErrInvalidID    = errors.New("movie id must not be empty")
)

// ValidateQuery rejects queries that cannot be sent to the catalog. An
// empty query is valid and lists the catalog's default selection.
func ValidateQuery(query string) error {
	if !utf8.ValidString(query) {
		return fmt.Errorf("%w: not valid utf-8", ErrInvalidQuery)
	}
	if len(query) > MaxQueryLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidQuery, MaxQueryLength)
	}
	return nil
}

func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidID
	}
	return nil
}
