package tika

import (
	"github.com/dameikle/tika/internal/types"
)

// UnsupportedFormatError is an alias to types.UnsupportedFormatError.
// Re-exporting from internal/types to maintain public API.
type UnsupportedFormatError = types.UnsupportedFormatError

// MalformedInputError is an alias to types.MalformedInputError.
// Re-exporting from internal/types to maintain public API.
type MalformedInputError = types.MalformedInputError

// TranslationError is an alias to types.TranslationError.
// Re-exporting from internal/types to maintain public API.
type TranslationError = types.TranslationError

// NoExtractorAvailableError is an alias to types.NoExtractorAvailableError.
// Re-exporting from internal/types to maintain public API.
type NoExtractorAvailableError = types.NoExtractorAvailableError

// ResourceLimitError is an alias to types.ResourceLimitError.
// Re-exporting from internal/types to maintain public API.
type ResourceLimitError = types.ResourceLimitError

// OutOfBoundsError is an alias to types.OutOfBoundsError.
// Re-exporting from internal/types to maintain public API.
type OutOfBoundsError = types.OutOfBoundsError

// Warning is an alias to types.Warning.
// Re-exporting from internal/types to maintain public API.
type Warning = types.Warning

// Condition is an alias to types.Condition.
type Condition = types.Condition

// Recoverable conditions recorded as warnings.
const (
	ConditionNone         = types.ConditionNone
	UnsupportedFormat     = types.UnsupportedFormat
	MalformedInput        = types.MalformedInput
	TranslationFailed     = types.TranslationFailed
	NoExtractorAvailable  = types.NoExtractorAvailable
	ResourceLimitExceeded = types.ResourceLimitExceeded
)

// ErrStreamBroken reports that the root stream failed mid-read.
var ErrStreamBroken = types.ErrStreamBroken

// ConditionOf classifies err. Errors outside the taxonomy count as
// MalformedInput.
func ConditionOf(err error) Condition {
	return types.ConditionOf(err)
}
