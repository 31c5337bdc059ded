// Package driver runs the recursive embedded-object extraction.
//
// For every stream the driver checks limits, runs the translator chain,
// detects the format, selects an extractor and runs it. Embedded objects the
// extractor discovers are extracted synchronously through Context.Embed,
// producing a tree of Nodes in discovery order. Every failure below the root
// is recorded on the node it happened in and never stops its siblings or
// ancestors.
package driver

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/dameikle/tika/internal/registry"
	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
)

// Observer is notified once per node when the node reaches a terminal state.
// Implementations must be safe for concurrent use.
type Observer interface {
	ObserveNode(n *Node, elapsed time.Duration)
}

// Config configures a Driver.
type Config struct {
	Registry *registry.Registry
	Detector types.Detector
	Limits   types.Limits
	Logger   *zap.Logger
	Observer Observer
	// Options holds per-extractor overrides keyed by extractor name.
	Options map[string]map[string]string
}

// Driver is safe for concurrent use. It holds only immutable configuration;
// each Extract call keeps its own state.
type Driver struct {
	reg      *registry.Registry
	detector types.Detector
	limits   types.Limits
	log      *zap.Logger
	obs      Observer
	base     *types.Context
}

// New creates a driver.
func New(cfg Config) *Driver {
	reg := cfg.Registry
	if reg == nil {
		reg = registry.NewBuilder().Build()
	}
	det := cfg.Detector
	if det == nil {
		det = types.DetectorFunc(func(*types.Stream, *types.Metadata) (types.Format, error) {
			return types.FormatOctetStream, nil
		})
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	base := types.NewContext(nil).
		WithLogger(log).
		WithTranslators(reg.Translators()).
		WithOptions(cfg.Options)
	return &Driver{
		reg:      reg,
		detector: det,
		limits:   cfg.Limits,
		log:      log,
		obs:      cfg.Observer,
		base:     base,
	}
}

// Registry returns the registry the driver dispatches through.
func (d *Driver) Registry() *registry.Registry {
	return d.reg
}

// Extract runs the pipeline on a root stream and returns the full tree.
//
// md seeds the root record with hints such as resourceName; it is copied, not
// modified. The only error returned is a failure to read the root stream at
// all. Every other condition is recorded on the node where it happened.
func (d *Driver) Extract(ctx context.Context, r io.Reader, md *types.Metadata) (*Node, error) {
	if md == nil {
		md = types.NewMetadata()
	} else {
		md = md.Clone()
	}

	budget := types.NewBudget(d.limits)
	run := &run{d: d}
	s := types.NewStream(budget.Reader(&rootReader{r: r, broken: &run.broken}))
	if _, err := s.Peek(1); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "read root stream")
	}

	ec := d.base.WithBudget(budget)
	return run.extract(ctx, ec, s, md, nil, false), nil
}

// rootReader flags the run as broken when the root source fails.
type rootReader struct {
	r      io.Reader
	broken *atomic.Bool
}

func (rr *rootReader) Read(p []byte) (int, error) {
	n, err := rr.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		rr.broken.Store(true)
	}
	return n, err
}

// run is the per-call state of one root extraction.
type run struct {
	d      *Driver
	broken atomic.Bool
}

// extract always returns a terminal node. A panic outside the extractor,
// in a detector or registry lookup, fails only this node.
func (r *run) extract(ctx context.Context, ec *types.Context, in io.Reader, md *types.Metadata, path []int, embedded bool) (n *Node) {
	start := time.Now()
	n = &Node{Path: path, State: StateDetecting, Metadata: md}
	rec := sink.NewRecorder()
	log := r.d.log.With(zap.String("path", n.PathString()))
	defer func() {
		if p := recover(); p != nil {
			r.fail(n, log, &types.MalformedInputError{
				Format: n.Format,
				Reason: fmt.Sprintf("panic while %s: %v", n.State, p),
			})
		}
		n.Events = rec.Events()
		n.Metadata.Freeze()
		if r.d.obs != nil {
			r.d.obs.ObserveNode(n, time.Since(start))
		}
	}()

	log.Debug("node state", zap.Stringer("state", n.State), zap.Int("depth", ec.Depth()))
	if err := r.checkLimits(ctx, ec, embedded); err != nil {
		r.fail(n, log, err)
		return n
	}

	s, err := r.translate(ec, types.NewStream(in), md, log)
	if err != nil {
		r.fail(n, log, err)
		return n
	}

	format, err := r.d.detector.Detect(s, md)
	if types.ConditionOf(err) == types.ResourceLimitExceeded {
		r.fail(n, log, err)
		return n
	}
	if err != nil || format.IsZero() {
		log.Debug("detection failed, using octet-stream", zap.Error(err))
		format = types.FormatOctetStream
	}
	n.Format = format
	md.Set(types.KeyContentType, string(format))
	log = log.With(zap.Stringer("format", format))

	ex, ok := r.d.reg.Select(ec, format)
	if !ok {
		r.fail(n, log, &types.NoExtractorAvailableError{Format: format})
		return n
	}
	n.State = StateExtractorSelected
	md.Add(types.KeyParsedBy, ex.Name())
	log = log.With(zap.String("extractor", ex.Name()))
	log.Debug("node state", zap.Stringer("state", n.State))

	n.State = StateExtracting
	err = r.safeExtract(ctx, ex, s, rec, md, ec.WithEmbedder(r.embedder(ec, n)), format)
	if err == nil && r.broken.Load() {
		err = types.ErrStreamBroken
	}
	switch {
	case err != nil:
		r.fail(n, log, err)
	case !rec.Balanced():
		r.fail(n, log, &types.MalformedInputError{
			Format: format,
			Reason: fmt.Sprintf("unbalanced content events, open elements %v", rec.Open()),
		})
	default:
		n.State = StateCompleted
		log.Debug("node state", zap.Stringer("state", n.State), zap.Int("children", len(n.Children)))
	}
	return n
}

func (r *run) checkLimits(ctx context.Context, ec *types.Context, embedded bool) error {
	if err := ctx.Err(); err != nil {
		return &types.ResourceLimitError{Err: err, Limit: "deadline"}
	}
	limits := ec.Limits()
	if limits.MaxDepth > 0 && ec.Depth() > limits.MaxDepth {
		return &types.ResourceLimitError{Limit: "depth", Max: int64(limits.MaxDepth)}
	}
	if embedded {
		if err := ec.Budget().TakeEmbedded(); err != nil {
			return err
		}
	}
	if ec.Budget().BytesExhausted() {
		return &types.ResourceLimitError{Limit: "bytes", Max: limits.MaxBytes}
	}
	return nil
}

// translate applies the first translator whose predicate matches. On a
// failed translation the original stream is used and a warning recorded.
// The returned error fails the node: the byte budget ran out while a
// translator buffered the stream, or a translator panicked.
func (r *run) translate(ec *types.Context, s *types.Stream, md *types.Metadata, log *zap.Logger) (_ *types.Stream, err error) {
	var name string
	defer func() {
		if p := recover(); p != nil {
			err = &types.TranslationError{Translator: name, Reason: fmt.Sprintf("panicked: %v", p)}
		}
	}()
	for _, t := range ec.Translators() {
		name = t.Name()
		ok, err := t.ShouldTranslate(s, md)
		if err != nil {
			if types.ConditionOf(err) == types.ResourceLimitExceeded {
				return s, err
			}
			r.warn(md, log, &types.TranslationError{Err: err, Translator: name, Reason: "predicate"})
			if rerr := s.Rewind(); rerr != nil {
				log.Debug("rewind after failed predicate", zap.Error(rerr))
			}
			continue
		}
		if !ok {
			continue
		}
		if _, err := s.Buffer(); err != nil {
			if types.ConditionOf(err) == types.ResourceLimitExceeded {
				return s, err
			}
			r.warn(md, log, &types.TranslationError{Err: err, Translator: name, Reason: "buffer input"})
			return s, nil
		}
		out, err := t.Translate(s, md)
		if err != nil {
			var te *types.TranslationError
			if !errors.As(err, &te) {
				err = &types.TranslationError{Err: err, Translator: name, Reason: "translate"}
			}
			r.warn(md, log, err)
			if rerr := s.Rewind(); rerr != nil {
				log.Debug("rewind after failed translation", zap.Error(rerr))
			}
			return s, nil
		}
		md.Set(types.KeyTranslatedBy, name)
		md.Add(types.KeyParsedBy, name)
		log.Debug("stream translated", zap.String("translator", name))
		return types.NewStream(ec.Budget().Reader(out)), nil
	}
	return s, nil
}

func (r *run) safeExtract(ctx context.Context, ex types.Extractor, s *types.Stream, h sink.Handler, md *types.Metadata, ec *types.Context, format types.Format) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &types.MalformedInputError{
				Format: format,
				Reason: fmt.Sprintf("extractor %s panicked: %v", ex.Name(), p),
			}
		}
	}()
	return ex.Extract(ctx, s, h, md, ec)
}

// embedder binds the callback that recurses into embedded streams of parent.
func (r *run) embedder(ec *types.Context, parent *Node) types.EmbedFunc {
	return func(ctx context.Context, in io.Reader, md *types.Metadata) error {
		if r.broken.Load() {
			return types.ErrStreamBroken
		}
		idx := len(parent.Children)
		e := types.Embedded{
			Reader:   in,
			Metadata: md.Clone(),
			Index:    idx,
			Path:     append(append([]int(nil), parent.Path...), idx),
		}
		child := ec.Descend()
		r.annotate(parent, &e, child.Depth())
		n := r.extract(ctx, child, child.Budget().Reader(e.Reader), e.Metadata, e.Path, true)
		parent.Children = append(parent.Children, n)
		if r.broken.Load() {
			return types.ErrStreamBroken
		}
		return nil
	}
}

// annotate writes the provenance keys linking e to its parent.
func (r *run) annotate(parent *Node, e *types.Embedded, depth int) {
	md := e.Metadata
	name := md.Get(types.KeyResourceName)
	if name == "" {
		name = "embedded-" + strconv.Itoa(e.Index)
	}
	parentResource := ""
	if len(parent.Path) > 0 {
		parentResource = parent.Metadata.Get(types.KeyEmbeddedResourcePath)
	}
	md.Set(types.KeyEmbeddedDepth, strconv.Itoa(depth))
	md.Set(types.KeyEmbeddedPath, types.PathString(e.Path))
	md.Set(types.KeyEmbeddedParentPath, parent.PathString())
	md.Set(types.KeyEmbeddedResourcePath, parentResource+"/"+name)
}

func (r *run) fail(n *Node, log *zap.Logger, err error) {
	n.State = StateFailed
	r.warn(n.Metadata, log, err)
}

func (r *run) warn(md *types.Metadata, log *zap.Logger, err error) {
	c := types.ConditionOf(err)
	md.Add(types.WarningKey(c), err.Error())
	log.Warn("recoverable extraction condition", zap.Stringer("condition", c), zap.Error(err))
}
