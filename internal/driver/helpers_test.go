package driver

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/dameikle/tika/internal/registry"
	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
)

// Formats used by the fake extractors below. The detector recognizes them
// by a four-byte prefix.
const (
	formatContainer types.Format = "application/x-test-container"
	formatText      types.Format = "text/x-test"
	formatBad       types.Format = "application/x-test-bad"
	formatAudio     types.Format = "audio/x-test"
	formatSelf      types.Format = "application/x-test-self"
	formatPanic     types.Format = "application/x-test-panic"
	formatOpen      types.Format = "application/x-test-open"
	formatCapture   types.Format = "application/x-test-capture"
)

var prefixes = map[string]types.Format{
	"CONT": formatContainer,
	"TEXT": formatText,
	"BAD!": formatBad,
	"AUDI": formatAudio,
	"SELF": formatSelf,
	"PANI": formatPanic,
	"OPEN": formatOpen,
}

var prefixDetector = types.DetectorFunc(func(s *types.Stream, _ *types.Metadata) (types.Format, error) {
	head, err := s.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if f, ok := prefixes[string(head)]; ok {
		return f, nil
	}
	return types.FormatOctetStream, nil
})

// containerExtractor reads "CONT\n" followed by one "name:payload" line per
// embedded object, embedding each as soon as its line is read.
type containerExtractor struct{}

func (containerExtractor) Name() string { return "test.Container" }

func (containerExtractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(formatContainer)
}

func (containerExtractor) Extract(ctx context.Context, s *types.Stream, h sink.Handler, md *types.Metadata, ec *types.Context) error {
	x := sink.NewXHTML(h)
	if err := x.StartDocument(); err != nil {
		return err
	}
	sc := bufio.NewScanner(s)
	sc.Scan() // header
	count := 0
	for sc.Scan() {
		name, payload, _ := strings.Cut(sc.Text(), ":")
		if err := x.Element("p", name, sink.Attr{Name: "class", Value: "embedded"}); err != nil {
			return err
		}
		child := types.NewMetadata()
		child.Set(types.KeyResourceName, name)
		if err := ec.Embed(ctx, strings.NewReader(payload), child); err != nil {
			return err
		}
		count++
	}
	if err := sc.Err(); err != nil {
		return &types.MalformedInputError{Err: err, Format: formatContainer, Reason: "read entry"}
	}
	md.Set("test:entries", strings.Repeat("x", count))
	return x.EndDocument()
}

type textExtractor struct{}

func (textExtractor) Name() string { return "test.Text" }

func (textExtractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(formatText)
}

func (textExtractor) Extract(_ context.Context, s *types.Stream, h sink.Handler, md *types.Metadata, _ *types.Context) error {
	data, err := io.ReadAll(s)
	if err != nil {
		return &types.MalformedInputError{Err: err, Format: formatText}
	}
	x := sink.NewXHTML(h)
	if err := x.StartDocument(); err != nil {
		return err
	}
	text := strings.TrimSpace(strings.TrimPrefix(string(data), "TEXT"))
	if err := x.Element("p", text); err != nil {
		return err
	}
	md.Set(types.KeyTitle, text)
	return x.EndDocument()
}

// badExtractor starts output then fails, like a decoder hitting a truncated
// body.
type badExtractor struct{}

func (badExtractor) Name() string { return "test.Bad" }

func (badExtractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(formatBad)
}

func (badExtractor) Extract(_ context.Context, _ *types.Stream, h sink.Handler, md *types.Metadata, _ *types.Context) error {
	x := sink.NewXHTML(h)
	if err := x.StartDocument(); err != nil {
		return err
	}
	if err := x.Start("p"); err != nil {
		return err
	}
	md.Set("test:partial", "true")
	return &types.MalformedInputError{Format: formatBad, Reason: "truncated body", Offset: 4}
}

// audioExtractor rejects every header before emitting anything.
type audioExtractor struct{}

func (audioExtractor) Name() string { return "test.Audio" }

func (audioExtractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(formatAudio)
}

func (audioExtractor) Extract(context.Context, *types.Stream, sink.Handler, *types.Metadata, *types.Context) error {
	return &types.UnsupportedFormatError{Format: formatAudio, Reason: "unknown sample encoding"}
}

// selfExtractor embeds its own input, forming an endless chain.
type selfExtractor struct{}

func (selfExtractor) Name() string { return "test.Self" }

func (selfExtractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(formatSelf)
}

func (selfExtractor) Extract(ctx context.Context, s *types.Stream, h sink.Handler, _ *types.Metadata, ec *types.Context) error {
	data, err := io.ReadAll(s)
	if err != nil {
		return err
	}
	x := sink.NewXHTML(h)
	if err := x.StartDocument(); err != nil {
		return err
	}
	if err := ec.Embed(ctx, bytes.NewReader(data), nil); err != nil {
		return err
	}
	return x.EndDocument()
}

type panicExtractor struct{}

func (panicExtractor) Name() string { return "test.Panic" }

func (panicExtractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(formatPanic)
}

func (panicExtractor) Extract(context.Context, *types.Stream, sink.Handler, *types.Metadata, *types.Context) error {
	var m map[string]int
	m["boom"]++
	return nil
}

// openExtractor returns cleanly with an element left open.
type openExtractor struct{}

func (openExtractor) Name() string { return "test.Open" }

func (openExtractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(formatOpen)
}

func (openExtractor) Extract(_ context.Context, _ *types.Stream, h sink.Handler, _ *types.Metadata, _ *types.Context) error {
	x := sink.NewXHTML(h)
	if err := x.StartDocument(); err != nil {
		return err
	}
	return x.Start("div")
}

// captureExtractor keeps every byte it reads.
type captureExtractor struct {
	mu   sync.Mutex
	seen []byte
}

func (c *captureExtractor) Name() string { return "test.Capture" }

func (c *captureExtractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(formatCapture, types.FormatOctetStream)
}

func (c *captureExtractor) Extract(_ context.Context, s *types.Stream, h sink.Handler, _ *types.Metadata, _ *types.Context) error {
	data, err := io.ReadAll(s)
	c.mu.Lock()
	c.seen = data
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if err := h.StartDocument(); err != nil {
		return err
	}
	return h.EndDocument()
}

func (c *captureExtractor) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen
}

// fakeTranslator counts calls and, when matching, replaces the stream.
type fakeTranslator struct {
	name       string
	match      bool
	fail       bool
	output     string
	predicates int
	translates int
}

func (t *fakeTranslator) Name() string { return t.name }

func (t *fakeTranslator) ShouldTranslate(s *types.Stream, _ *types.Metadata) (bool, error) {
	t.predicates++
	if _, err := s.Peek(16); err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return t.match, nil
}

func (t *fakeTranslator) Translate(s *types.Stream, _ *types.Metadata) (io.Reader, error) {
	t.translates++
	if _, err := io.Copy(io.Discard, s); err != nil {
		return nil, err
	}
	if t.fail {
		return nil, errors.New("wrapper header corrupt")
	}
	return strings.NewReader(t.output), nil
}

// triggerTranslator panics in its predicate on streams starting with
// trigger and matches nothing else.
type triggerTranslator struct {
	trigger string
}

func (t triggerTranslator) Name() string { return "test.Trigger" }

func (t triggerTranslator) ShouldTranslate(s *types.Stream, _ *types.Metadata) (bool, error) {
	head, err := s.Peek(len(t.trigger))
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	if string(head) == t.trigger {
		panic("wrapper table corrupt")
	}
	return false, nil
}

func (t triggerTranslator) Translate(s *types.Stream, _ *types.Metadata) (io.Reader, error) {
	return s, nil
}

// bufferingTranslator buffers the whole stream in its predicate, like a
// translator that must see the full container directory, and returns err
// when it is set.
type bufferingTranslator struct {
	err error
}

func (t bufferingTranslator) Name() string { return "test.Buffering" }

func (t bufferingTranslator) ShouldTranslate(s *types.Stream, _ *types.Metadata) (bool, error) {
	if _, err := s.Buffer(); err != nil {
		return false, err
	}
	return false, t.err
}

func (t bufferingTranslator) Translate(s *types.Stream, _ *types.Metadata) (io.Reader, error) {
	return s, nil
}

// triggerDetector panics on streams starting with trigger and otherwise
// detects by prefix.
func triggerDetector(trigger string) types.Detector {
	return types.DetectorFunc(func(s *types.Stream, md *types.Metadata) (types.Format, error) {
		head, _ := s.Peek(len(trigger))
		if string(head) == trigger {
			panic("magic table corrupt")
		}
		return prefixDetector.Detect(s, md)
	})
}

func testRegistry(extra ...types.Extractor) *registry.Registry {
	b := registry.NewBuilder().
		Register(containerExtractor{}).
		Register(textExtractor{}).
		Register(badExtractor{}).
		Register(audioExtractor{}).
		Register(selfExtractor{}).
		Register(panicExtractor{}).
		Register(openExtractor{})
	for _, e := range extra {
		b.Register(e)
	}
	return b.Build()
}

func newTestDriver(limits types.Limits, extra ...types.Extractor) *Driver {
	return New(Config{
		Registry: testRegistry(extra...),
		Detector: prefixDetector,
		Limits:   limits,
	})
}

// failingReader returns data on the first read and err afterwards.
type failingReader struct {
	data []byte
	err  error
	done bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.done {
		return 0, f.err
	}
	f.done = true
	return copy(p, f.data), nil
}

// countingReader counts bytes handed out by the underlying reader.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func warningConditions(n *Node) []types.Condition {
	var out []types.Condition
	for _, w := range n.Warnings() {
		out = append(out, w.Condition)
	}
	return out
}
