package tika

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dameikle/tika/internal/driver"
	"github.com/dameikle/tika/internal/metrics"
	"github.com/dameikle/tika/internal/types"
)

// Option configures a Tika instance.
//
// Options use the functional options pattern for clean, extensible APIs.
//
// Example:
//
//	t := tika.New(
//	    tika.WithMaxDepth(4),
//	    tika.WithLogger(logger),
//	)
type Option func(*options)

// options holds the configuration New assembles a driver from.
type options struct {
	limits             types.Limits
	logger             *zap.Logger
	detector           types.Detector
	extractors         []types.Extractor // Registered ahead of the defaults
	translators        []types.Translator
	defaultTranslators bool
	extractorOptions   map[string]map[string]string
	observers          []driver.Observer
	concurrency        int // ExtractMany limit (0 = one per CPU)
}

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		limits:             types.DefaultLimits(),
		logger:             zap.NewNop(),
		defaultTranslators: true,
	}
}

// WithMaxDepth limits how deep embedded objects may nest.
//
// The root document is depth 0. An embedded object deeper than n is not
// extracted; its node fails with a ResourceLimitError and its siblings carry
// on. Zero disables the limit.
func WithMaxDepth(n int) Option {
	return func(o *options) {
		o.limits.MaxDepth = n
	}
}

// WithMaxEmbedded limits how many embedded objects one document may yield
// across the whole tree. Zero disables the limit.
func WithMaxEmbedded(n int) Option {
	return func(o *options) {
		o.limits.MaxEmbedded = n
	}
}

// WithMaxBytes limits how many bytes are read from the root stream and all
// embedded streams combined. Zero disables the limit.
//
// Example:
//
//	t := tika.New(tika.WithMaxBytes(64 << 20)) // 64 MiB per document
func WithMaxBytes(n int64) Option {
	return func(o *options) {
		o.limits.MaxBytes = n
	}
}

// WithLogger sets the logger handed to the driver and every extractor.
//
// By default nothing is logged.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDetector replaces the built-in format detector.
func WithDetector(d types.Detector) Option {
	return func(o *options) {
		o.detector = d
	}
}

// WithExtractors registers extractors ahead of the built-in ones.
//
// Selection takes the first registered extractor that supports a format, so
// these win over any default extractor claiming the same format. Repeated
// calls append in order.
//
// Example:
//
//	t := tika.New(tika.WithExtractors(myRTFExtractor))
func WithExtractors(es ...types.Extractor) Option {
	return func(o *options) {
		o.extractors = append(o.extractors, es...)
	}
}

// WithTranslators registers embedded-stream translators ahead of the
// built-in ones.
func WithTranslators(ts ...types.Translator) Option {
	return func(o *options) {
		o.translators = append(o.translators, ts...)
	}
}

// WithoutDefaultTranslators drops the built-in translators. Translators added
// with WithTranslators are kept.
func WithoutDefaultTranslators() Option {
	return func(o *options) {
		o.defaultTranslators = false
	}
}

// WithExtractorOption overrides one setting of the named extractor.
//
// Example:
//
//	t := tika.New(tika.WithExtractorOption("pdf.Extractor", "extractAttachments", "false"))
func WithExtractorOption(extractor, key, value string) Option {
	return func(o *options) {
		if o.extractorOptions == nil {
			o.extractorOptions = make(map[string]map[string]string)
		}
		if o.extractorOptions[extractor] == nil {
			o.extractorOptions[extractor] = make(map[string]string)
		}
		o.extractorOptions[extractor][key] = value
	}
}

// WithObserver registers an observer notified once per finished node.
// Several observers may be registered; they run in registration order.
func WithObserver(obs driver.Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithMetrics registers Prometheus collectors with reg and feeds them from
// every extraction. Passing the same registerer to two instances panics.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.observers = append(o.observers, metrics.New(reg))
	}
}

// WithConcurrency bounds how many files ExtractMany processes at once.
// Zero or less means one per CPU.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}
