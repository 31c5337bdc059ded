package tika

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/dameikle/tika/internal/detect"
	"github.com/dameikle/tika/internal/driver"
	"github.com/dameikle/tika/internal/types"
)

// Tika extracts content and metadata from documents and everything embedded
// in them. It is safe for concurrent use.
type Tika struct {
	d           *driver.Driver
	concurrency int
}

// New creates an extractor with the built-in formats and any options.
//
// Example:
//
//	t := tika.New()
//	root, err := t.ExtractFile(ctx, "report.pdf")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(root.Metadata.Get(tika.KeyTitle))
func New(opts ...Option) *Tika {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	det := o.detector
	if det == nil {
		det = detect.New()
	}
	var obs driver.Observer
	switch len(o.observers) {
	case 0:
	case 1:
		obs = o.observers[0]
	default:
		obs = observers(o.observers)
	}

	return &Tika{
		d: driver.New(driver.Config{
			Registry: buildRegistry(o),
			Detector: det,
			Limits:   o.limits,
			Logger:   o.logger,
			Observer: obs,
			Options:  o.extractorOptions,
		}),
		concurrency: o.concurrency,
	}
}

// Extract runs the pipeline on r and returns the result tree.
//
// md seeds the root record with hints such as resourceName and may be nil.
// The returned error is non-nil only when r cannot be read at all; every
// other problem is recorded as a warning on the node where it happened.
func (t *Tika) Extract(ctx context.Context, r io.Reader, md *Metadata) (*Node, error) {
	return t.d.Extract(ctx, r, md)
}

// ExtractFile opens path and extracts it, seeding resourceName with the base
// name and Content-Length with the file size.
func (t *Tika) ExtractFile(ctx context.Context, path string) (*Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	md := types.NewMetadata()
	md.Set(types.KeyResourceName, filepath.Base(path))
	if info, err := f.Stat(); err == nil && info.Mode().IsRegular() {
		md.Set(types.KeyContentLength, strconv.FormatInt(info.Size(), 10))
	}

	root, err := t.d.Extract(ctx, f, md)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return root, nil
}

// ExtractMany extracts multiple files concurrently.
//
// Results are returned in the same order as paths. If any file cannot be
// opened or read, the remaining work is cancelled and the first error is
// returned. Files that merely contain unsupported or corrupt content still
// produce a tree.
//
// Example:
//
//	roots, err := t.ExtractMany(ctx, "a.docx", "b.zip", "c.eml")
func (t *Tika) ExtractMany(ctx context.Context, paths ...string) ([]*Node, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	limit := t.concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	g.SetLimit(limit)

	results := make([]*Node, len(paths))
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			root, err := t.ExtractFile(ctx, path)
			if err != nil {
				return err
			}
			results[i] = root
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Formats returns every format the registered extractors support, in
// priority order.
func (t *Tika) Formats() []Format {
	return t.d.Registry().Formats(types.NewContext(nil))
}

// Extractors returns the registered extractors in priority order.
func (t *Tika) Extractors() []Extractor {
	return t.d.Registry().Extractors()
}

// observers fans one notification out to several observers.
type observers []driver.Observer

func (obs observers) ObserveNode(n *driver.Node, elapsed time.Duration) {
	for _, o := range obs {
		o.ObserveNode(n, elapsed)
	}
}
