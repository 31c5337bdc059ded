package types

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Condition names a recoverable extraction condition. Every condition is
// recorded on the affected node and never aborts siblings or ancestors.
type Condition int

const (
	// ConditionNone means no condition applies.
	ConditionNone Condition = iota
	// UnsupportedFormat means the stream matched a format but could not be interpreted.
	UnsupportedFormat
	// MalformedInput means the stream was truncated or corrupt.
	MalformedInput
	// TranslationFailed means a translator accepted a stream but could not unwrap it.
	TranslationFailed
	// NoExtractorAvailable means no registered extractor supports the format.
	NoExtractorAvailable
	// ResourceLimitExceeded means a depth, count, byte or deadline limit was hit.
	ResourceLimitExceeded
)

var conditionNames = map[Condition]string{
	ConditionNone:         "None",
	UnsupportedFormat:     "UnsupportedFormatError",
	MalformedInput:        "MalformedInputError",
	TranslationFailed:     "TranslationError",
	NoExtractorAvailable:  "NoExtractorAvailable",
	ResourceLimitExceeded: "ResourceLimitExceeded",
}

// String returns the condition name used in warning keys.
func (c Condition) String() string {
	if s, ok := conditionNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Condition(%d)", int(c))
}

// ParseCondition maps a condition name back to its value.
func ParseCondition(s string) (Condition, bool) {
	for c, name := range conditionNames {
		if name == s {
			return c, true
		}
	}
	return ConditionNone, false
}

// ErrStreamBroken is returned from Context.Embed once the root stream has
// failed. Extractors must propagate it so open ancestors unwind.
var ErrStreamBroken = errors.New("root stream broken")

// UnsupportedFormatError is returned when a stream cannot be interpreted
// despite matching a supported format (ambiguous or unknown header).
type UnsupportedFormatError struct {
	Err    error
	Format Format
	Reason string
}

func (e *UnsupportedFormatError) Error() string {
	msg := fmt.Sprintf("unsupported %s: %s", formatOrUnknown(e.Format), e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnsupportedFormatError) Unwrap() error { return e.Err }

// Condition implements Conditional.
func (e *UnsupportedFormatError) Condition() Condition { return UnsupportedFormat }

// MalformedInputError is returned when a stream is truncated or corrupt.
type MalformedInputError struct {
	Err    error
	Format Format
	Reason string
	Offset int64
}

func (e *MalformedInputError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "malformed %s", formatOrUnknown(e.Format))
	if e.Offset > 0 {
		fmt.Fprintf(&b, " at offset %d", e.Offset)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// Condition implements Conditional.
func (e *MalformedInputError) Condition() Condition { return MalformedInput }

// TranslationError is returned when a translator accepted a stream but the
// unwrapping itself failed.
type TranslationError struct {
	Err        error
	Translator string
	Reason     string
}

func (e *TranslationError) Error() string {
	msg := fmt.Sprintf("translator %s: %s", e.Translator, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TranslationError) Unwrap() error { return e.Err }

// Condition implements Conditional.
func (e *TranslationError) Condition() Condition { return TranslationFailed }

// NoExtractorAvailableError is recorded when no extractor supports a format.
type NoExtractorAvailableError struct {
	Format Format
}

func (e *NoExtractorAvailableError) Error() string {
	return fmt.Sprintf("no extractor available for %s", formatOrUnknown(e.Format))
}

// Condition implements Conditional.
func (e *NoExtractorAvailableError) Condition() Condition { return NoExtractorAvailable }

// ResourceLimitError is returned when a depth, count, byte or deadline limit
// is exceeded.
type ResourceLimitError struct {
	Err   error
	Limit string // "depth", "embedded", "bytes", "deadline"
	Max   int64
}

func (e *ResourceLimitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s limit exceeded: %v", e.Limit, e.Err)
	}
	return fmt.Sprintf("%s limit exceeded (max %d)", e.Limit, e.Max)
}

func (e *ResourceLimitError) Unwrap() error { return e.Err }

// Condition implements Conditional.
func (e *ResourceLimitError) Condition() Condition { return ResourceLimitExceeded }

// OutOfBoundsError is returned when attempting to read beyond buffer bounds.
type OutOfBoundsError struct {
	Path   string
	What   string
	Offset int64
	Length int
	Size   int64
}

func (e *OutOfBoundsError) Error() string {
	if e.Offset >= e.Size {
		return fmt.Sprintf("%s: offset %d out of bounds (size: %d) while reading %s",
			e.Path, e.Offset, e.Size, e.What)
	}
	return fmt.Sprintf("%s: read of %d bytes at offset %d would exceed size %d while reading %s",
		e.Path, e.Length, e.Offset, e.Size, e.What)
}

// Condition implements Conditional.
func (e *OutOfBoundsError) Condition() Condition { return MalformedInput }

// Conditional is implemented by errors that map to a recoverable condition.
type Conditional interface {
	error
	Condition() Condition
}

// ConditionOf classifies err. Errors that carry no condition are treated as
// malformed input, since they surfaced while reading the stream.
func ConditionOf(err error) Condition {
	if err == nil {
		return ConditionNone
	}
	// A spent budget surfaces through whatever read error wraps it.
	var limit *ResourceLimitError
	if errors.As(err, &limit) {
		return ResourceLimitExceeded
	}
	var c Conditional
	if errors.As(err, &c) {
		return c.Condition()
	}
	return MalformedInput
}

// Warning is a recorded recoverable condition.
type Warning struct {
	Condition Condition
	Message   string
}

// String returns a human-readable warning message.
func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Condition, w.Message)
}

// Warnings reads the warnings recorded in md, in key order.
func Warnings(md *Metadata) []Warning {
	var out []Warning
	for _, name := range md.Names() {
		if !strings.HasPrefix(name, KeyWarningPrefix) {
			continue
		}
		c, ok := ParseCondition(strings.TrimPrefix(name, KeyWarningPrefix))
		if !ok {
			continue
		}
		for _, v := range md.Values(name) {
			out = append(out, Warning{Condition: c, Message: v})
		}
	}
	return out
}

func formatOrUnknown(f Format) string {
	if f.IsZero() {
		return "input"
	}
	return string(f.Base())
}
