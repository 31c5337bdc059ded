package types

import (
	"io"

	"go.uber.org/atomic"
)

// Limits bounds the work a single root extraction may perform.
// Zero means no limit.
type Limits struct {
	MaxDepth    int   // deepest embedded level, root is depth 0
	MaxEmbedded int   // total embedded objects across the tree
	MaxBytes    int64 // total bytes read across all streams in the tree
}

// DefaultLimits returns the limits applied when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxDepth:    32,
		MaxEmbedded: 10000,
		MaxBytes:    2 << 30,
	}
}

// Budget tracks consumption against Limits for one root extraction.
//
// A Budget is shared by every Context derived from the root, so sibling and
// nested extractions draw on the same allowance.
type Budget struct {
	limits   Limits
	embedded atomic.Int64
	bytes    atomic.Int64
	overrun  atomic.Bool
}

// NewBudget creates a budget for l.
func NewBudget(l Limits) *Budget {
	return &Budget{limits: l}
}

// Limits returns the configured limits.
func (b *Budget) Limits() Limits {
	return b.limits
}

// TakeEmbedded reserves one embedded object.
func (b *Budget) TakeEmbedded() error {
	n := b.embedded.Inc()
	if b.limits.MaxEmbedded > 0 && n > int64(b.limits.MaxEmbedded) {
		return &ResourceLimitError{Limit: "embedded", Max: int64(b.limits.MaxEmbedded)}
	}
	return nil
}

// Charge records n bytes read.
func (b *Budget) Charge(n int) error {
	total := b.bytes.Add(int64(n))
	if b.limits.MaxBytes > 0 && total > b.limits.MaxBytes {
		return &ResourceLimitError{Limit: "bytes", Max: b.limits.MaxBytes}
	}
	return nil
}

// BytesExhausted reports whether some stream had more bytes than the limit
// allows. Reading exactly MaxBytes is within budget.
func (b *Budget) BytesExhausted() bool {
	return b.limits.MaxBytes > 0 && (b.overrun.Load() || b.bytes.Load() > b.limits.MaxBytes)
}

// Embedded returns the number of embedded objects reserved so far.
func (b *Budget) Embedded() int64 {
	return b.embedded.Load()
}

// Bytes returns the number of bytes charged so far.
func (b *Budget) Bytes() int64 {
	return b.bytes.Load()
}

// Reader wraps r so every byte read is charged to the budget.
func (b *Budget) Reader(r io.Reader) io.Reader {
	return &chargedReader{r: r, b: b}
}

type chargedReader struct {
	r io.Reader
	b *Budget
}

// Read never hands out more bytes than the budget has left. Once the budget
// is spent it fails with *ResourceLimitError, unless the source ends exactly
// at the limit.
func (c *chargedReader) Read(p []byte) (int, error) {
	if limit := c.b.limits.MaxBytes; limit > 0 {
		remaining := limit - c.b.bytes.Load()
		if remaining <= 0 {
			return c.overrun(limit)
		}
		if int64(len(p)) > remaining {
			p = p[:remaining]
		}
	}
	n, err := c.r.Read(p)
	c.b.bytes.Add(int64(n))
	return n, err
}

// overrun reads one byte past a spent budget to tell a source that ends at
// the limit from one that exceeds it. The extra byte is discarded.
func (c *chargedReader) overrun(limit int64) (int, error) {
	var one [1]byte
	n, err := c.r.Read(one[:])
	if n == 0 {
		return 0, err
	}
	c.b.overrun.Store(true)
	return 0, &ResourceLimitError{Limit: "bytes", Max: limit}
}
