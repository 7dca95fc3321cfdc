package server

import (
	"errors"
	"fmt"

	"github.com/trendingmotion/motion-crm/pkg/docstore"
)

// Error codes carried on "ERR <code> <message>" replies.
const (
	CodeNotFound     = "not_found"
	CodeMissingIndex = "missing_index"
	CodeInvalid      = "invalid"
	CodeInternal     = "internal"
)

// ErrorCode maps a store error onto its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, docstore.ErrMissingIndex):
		return CodeMissingIndex
	case errors.Is(err, docstore.ErrInvalidQuery):
		return CodeInvalid
	default:
		return CodeInternal
	}
}

// DecodeError rebuilds a store error from a wire code so callers can keep
// using errors.Is against the docstore sentinels.
func DecodeError(code, msg string) error {
	switch code {
	case CodeNotFound:
		return fmt.Errorf("%w: %s", docstore.ErrNotFound, msg)
	case CodeMissingIndex:
		return fmt.Errorf("%w: %s", docstore.ErrMissingIndex, msg)
	case CodeInvalid:
		return fmt.Errorf("%w: %s", docstore.ErrInvalidQuery, msg)
	default:
		return fmt.Errorf("remote store: %s", msg)
	}
}
