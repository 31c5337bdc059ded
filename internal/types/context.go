package types

import (
	"context"
	"io"
	"strconv"

	"go.uber.org/zap"
)

// EmbedFunc receives an embedded stream discovered by an extractor and
// extracts it before returning.
type EmbedFunc func(ctx context.Context, r io.Reader, md *Metadata) error

// Context is the configuration bag threaded through every extraction call.
//
// Context is immutable: every With method returns a modified copy. The
// Budget it references is shared, so consumption by one branch of the tree
// is visible to all others.
type Context struct {
	budget      *Budget
	logger      *zap.Logger
	embed       EmbedFunc
	options     map[string]map[string]string
	values      map[any]any
	translators []Translator
	depth       int
}

// NewContext creates a root context (depth 0).
func NewContext(budget *Budget) *Context {
	if budget == nil {
		budget = NewBudget(Limits{})
	}
	return &Context{budget: budget}
}

func (c *Context) clone() *Context {
	cp := *c
	return &cp
}

// Depth returns the recursion depth. The root document is at depth 0.
func (c *Context) Depth() int {
	return c.depth
}

// Descend returns the context for an embedded object one level down.
// The embed callback is not inherited; the driver binds a new one.
func (c *Context) Descend() *Context {
	cp := c.clone()
	cp.depth++
	cp.embed = nil
	return cp
}

// Budget returns the shared consumption budget.
func (c *Context) Budget() *Budget {
	return c.budget
}

// WithBudget returns a copy drawing on budget.
func (c *Context) WithBudget(budget *Budget) *Context {
	cp := c.clone()
	cp.budget = budget
	return cp
}

// Limits returns the configured limits.
func (c *Context) Limits() Limits {
	return c.budget.Limits()
}

// WithEmbedder binds the callback that receives embedded streams.
func (c *Context) WithEmbedder(fn EmbedFunc) *Context {
	cp := c.clone()
	cp.embed = fn
	return cp
}

// Embed hands an embedded stream to the bound callback. Without a callback
// the stream is ignored.
//
// A non-nil error means extraction of the whole tree can no longer proceed
// (the root stream broke); extractors must return it.
func (c *Context) Embed(ctx context.Context, r io.Reader, md *Metadata) error {
	if c.embed == nil {
		return nil
	}
	if md == nil {
		md = NewMetadata()
	}
	return c.embed(ctx, r, md)
}

// WithTranslators sets the translator chain, in priority order.
func (c *Context) WithTranslators(ts []Translator) *Context {
	cp := c.clone()
	cp.translators = append([]Translator(nil), ts...)
	return cp
}

// Translators returns the translator chain in priority order.
func (c *Context) Translators() []Translator {
	return c.translators
}

// WithLogger sets the logger handed to extractors.
func (c *Context) WithLogger(l *zap.Logger) *Context {
	cp := c.clone()
	cp.logger = l
	return cp
}

// Logger returns the configured logger, never nil.
func (c *Context) Logger() *zap.Logger {
	if c.logger == nil {
		return zap.NewNop()
	}
	return c.logger
}

// WithOptions sets per-extractor option overrides, keyed by extractor name.
func (c *Context) WithOptions(opts map[string]map[string]string) *Context {
	cp := c.clone()
	cp.options = make(map[string]map[string]string, len(opts))
	for name, kv := range opts {
		m := make(map[string]string, len(kv))
		for k, v := range kv {
			m[k] = v
		}
		cp.options[name] = m
	}
	return cp
}

// Option returns the override for key on the named extractor.
func (c *Context) Option(extractor, key string) (string, bool) {
	v, ok := c.options[extractor][key]
	return v, ok
}

// BoolOption returns a boolean override, or def when unset or unparsable.
func (c *Context) BoolOption(extractor, key string, def bool) bool {
	v, ok := c.Option(extractor, key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// IntOption returns an integer override, or def when unset or unparsable.
func (c *Context) IntOption(extractor, key string, def int) int {
	v, ok := c.Option(extractor, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// With returns a copy carrying value under key.
func (c *Context) With(key, value any) *Context {
	cp := c.clone()
	cp.values = make(map[any]any, len(c.values)+1)
	for k, v := range c.values {
		cp.values[k] = v
	}
	cp.values[key] = value
	return cp
}

// Value returns the value stored under key, or nil.
func (c *Context) Value(key any) any {
	return c.values[key]
}
