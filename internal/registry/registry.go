// Package registry holds the ordered extractor and translator lists the
// driver dispatches through.
//
// A Registry is built once with a Builder and never changes afterwards, so it
// can be shared by concurrent extractions without locking.
package registry

import (
	"github.com/dameikle/tika/internal/types"
)

// Registry is an immutable, ordered set of extractors and translators.
//
// Order is priority: when several extractors declare the same format, or
// overlapping format sets, the one registered first wins. Lookup is a linear
// scan, never a map iteration, so the outcome does not depend on runtime
// ordering.
type Registry struct {
	extractors  []types.Extractor
	translators []types.Translator
}

// Builder accumulates registrations before freezing them into a Registry.
type Builder struct {
	extractors  []types.Extractor
	translators []types.Translator
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Register appends an extractor at the lowest priority so far.
func (b *Builder) Register(e types.Extractor) *Builder {
	if e != nil {
		b.extractors = append(b.extractors, e)
	}
	return b
}

// RegisterTranslator appends a translator at the lowest priority so far.
func (b *Builder) RegisterTranslator(t types.Translator) *Builder {
	if t != nil {
		b.translators = append(b.translators, t)
	}
	return b
}

// Build returns the immutable registry.
func (b *Builder) Build() *Registry {
	return &Registry{
		extractors:  append([]types.Extractor(nil), b.extractors...),
		translators: append([]types.Translator(nil), b.translators...),
	}
}

// Select returns the highest-priority extractor supporting format.
// Returns false if no extractor is registered for the format.
func (r *Registry) Select(ec *types.Context, format types.Format) (types.Extractor, bool) {
	base := format.Base()
	if base == "" {
		return nil, false
	}
	for _, e := range r.extractors {
		for _, f := range e.SupportedFormats(ec) {
			if f.Base() == base {
				return e, true
			}
		}
	}
	return nil, false
}

// Extractors returns the extractors in priority order.
func (r *Registry) Extractors() []types.Extractor {
	return append([]types.Extractor(nil), r.extractors...)
}

// Translators returns the translators in priority order.
func (r *Registry) Translators() []types.Translator {
	return append([]types.Translator(nil), r.translators...)
}

// Formats returns every supported format, deduplicated, in priority order.
func (r *Registry) Formats(ec *types.Context) []types.Format {
	seen := make(map[types.Format]bool)
	var out []types.Format
	for _, e := range r.extractors {
		for _, f := range e.SupportedFormats(ec) {
			if b := f.Base(); !seen[b] {
				seen[b] = true
				out = append(out, b)
			}
		}
	}
	return out
}
