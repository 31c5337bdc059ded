package types

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/dameikle/tika/internal/sink"
)

// Extractor extracts content and metadata from streams of the formats it
// declares.
type Extractor interface {
	// Name identifies the extractor in metadata, logs and option overrides.
	Name() string

	// SupportedFormats returns the formats this extractor handles. The result
	// must be stable for a given context.
	SupportedFormats(ec *Context) []Format

	// Extract consumes s, writes a balanced event sequence to h and adds
	// facts to md. Every embedded object found is passed to ec.Embed, in
	// discovery order, before Extract returns.
	//
	// Return *UnsupportedFormatError when the stream cannot be interpreted
	// and *MalformedInputError when it is truncated or corrupt. Errors from
	// ec.Embed must be returned unchanged.
	Extract(ctx context.Context, s *Stream, h sink.Handler, md *Metadata, ec *Context) error
}

// Translator unwraps an embedded stream before detection, for example an
// object wrapper around the real payload.
type Translator interface {
	Name() string

	// ShouldTranslate decides whether s needs unwrapping. It may Peek or
	// Buffer s but must leave it replayable.
	ShouldTranslate(s *Stream, md *Metadata) (bool, error)

	// Translate returns the stream to use in place of s. Only called after
	// ShouldTranslate returned true. Failures are *TranslationError.
	Translate(s *Stream, md *Metadata) (io.Reader, error)
}

// Detector names the format of a stream. It may Peek s and read hints from
// md but must not consume s or modify md.
type Detector interface {
	Detect(s *Stream, md *Metadata) (Format, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(s *Stream, md *Metadata) (Format, error)

// Detect implements Detector.
func (f DetectorFunc) Detect(s *Stream, md *Metadata) (Format, error) {
	return f(s, md)
}

// FormatSet is a convenience for declaring supported formats.
func FormatSet(formats ...Format) []Format {
	out := make([]Format, len(formats))
	for i, f := range formats {
		out[i] = f.Base()
	}
	return out
}

// Embedded is the handle the driver builds for every stream an extractor
// passes to Context.Embed. It is not retained after the callback returns.
type Embedded struct {
	Reader   io.Reader
	Metadata *Metadata
	Index    int   // discovery index within the parent
	Path     []int // parent path plus Index
}

// PathString renders a provenance path, e.g. "/0/2". The root is "/".
func PathString(path []int) string {
	if len(path) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, i := range path {
		b.WriteByte('/')
		b.WriteString(strconv.Itoa(i))
	}
	return b.String()
}
