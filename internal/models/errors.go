package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a delete or lookup against a missing record id.
	ErrNotFound = errors.New("record not found")

	// ErrPredictionUnavailable covers every failure mode of the predictive
	// model (network, timeout, non-2xx, malformed payload). Callers fall
	// back to rule-based classification; it never blocks the dashboard.
	ErrPredictionUnavailable = errors.New("prediction unavailable")

	// ErrExportFailed reports an unreachable repository during a full
	// export. Zero rows is not a failure; it produces a header-only CSV.
	ErrExportFailed = errors.New("export failed")
)

// InvalidPageError rejects a page request outside the valid range before any
// row query executes. MaxPage lets the caller clamp or report precisely.
type InvalidPageError struct {
	Page    int
	MaxPage int
}

func (e *InvalidPageError) Error() string {
	return fmt.Sprintf("invalid page %d: valid range is 1-%d", e.Page, e.MaxPage)
}
