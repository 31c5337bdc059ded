package driver

import (
	"bytes"
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dameikle/tika/internal/registry"
	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
)

func extract(t *testing.T, d *Driver, input string) *Node {
	t.Helper()
	root, err := d.Extract(context.Background(), strings.NewReader(input), nil)
	require.NoError(t, err)
	require.NotNil(t, root)
	return root
}

func TestExtract_SingleDocument(t *testing.T) {
	root := extract(t, newTestDriver(types.Limits{}), "TEXT hello world")

	assert.Equal(t, StateCompleted, root.State)
	assert.Equal(t, formatText, root.Format)
	assert.Equal(t, "hello world", root.Metadata.Get(types.KeyTitle))
	assert.Equal(t, string(formatText), root.Metadata.Get(types.KeyContentType))
	assert.Equal(t, []string{"test.Text"}, root.Metadata.Values(types.KeyParsedBy))
	assert.False(t, root.Metadata.Has(types.KeyEmbeddedDepth), "root carries no embedded depth")
	assert.True(t, root.Metadata.Frozen())
	assert.Empty(t, root.Warnings())

	rec := sink.NewRecorder()
	for _, e := range root.Events {
		replay(t, rec, e)
	}
	assert.True(t, rec.Balanced())
}

func TestExtract_ContainerOneCorruptChild(t *testing.T) {
	input := "CONT\na.txt:TEXT alpha\nb.bin:BAD!data\nc.txt:TEXT gamma\n"
	root := extract(t, newTestDriver(types.Limits{}), input)

	require.Equal(t, StateCompleted, root.State)
	require.Len(t, root.Children, 3)

	failed := 0
	for _, c := range root.Children {
		if c.Failed() {
			failed++
		}
	}
	assert.Equal(t, 1, failed)

	bad := root.Children[1]
	assert.Equal(t, StateFailed, bad.State)
	assert.Equal(t, []types.Condition{types.MalformedInput}, warningConditions(bad))
	assert.True(t, bad.Metadata.Has(types.WarningKey(types.MalformedInput)))
	assert.Equal(t, "true", bad.Metadata.Get("test:partial"), "partial metadata is kept")
	assert.NotEmpty(t, bad.Events, "partial events are kept")

	assert.Equal(t, "alpha", root.Children[0].Metadata.Get(types.KeyTitle))
	assert.Equal(t, "gamma", root.Children[2].Metadata.Get(types.KeyTitle))
	assert.Equal(t, StateCompleted, root.Children[0].State)
	assert.Equal(t, StateCompleted, root.Children[2].State)
}

func TestExtract_EmbeddedOrderAndProvenance(t *testing.T) {
	input := "CONT\nA:TEXT a\nB:BAD!\nC:TEXT c\ninner:CONT\n"
	root := extract(t, newTestDriver(types.Limits{}), input)

	require.Len(t, root.Children, 4)
	for i, name := range []string{"A", "B", "C", "inner"} {
		c := root.Children[i]
		assert.Equal(t, []int{i}, c.Path)
		assert.Equal(t, name, c.Metadata.Get(types.KeyResourceName))
		assert.Equal(t, "/"+name, c.Metadata.Get(types.KeyEmbeddedResourcePath))
		assert.Equal(t, "/", c.Metadata.Get(types.KeyEmbeddedParentPath))
		assert.Equal(t, "1", c.Metadata.Get(types.KeyEmbeddedDepth))
		assert.Equal(t, c.PathString(), c.Metadata.Get(types.KeyEmbeddedPath))
	}
}

func TestExtract_NestedPaths(t *testing.T) {
	// A container cannot hold newlines in a payload, so nest through the
	// self-embedding extractor and check the composed paths.
	d := newTestDriver(types.Limits{MaxDepth: 3})
	root := extract(t, d, "SELF")

	var paths []string
	require.NoError(t, root.Walk(func(n *Node) error {
		paths = append(paths, n.PathString())
		return nil
	}))
	assert.Equal(t, []string{"/", "/0", "/0/0", "/0/0/0", "/0/0/0/0"}, paths)

	deep := root.Find(0, 0)
	require.NotNil(t, deep)
	assert.Equal(t, "/0", deep.Metadata.Get(types.KeyEmbeddedParentPath))
	assert.Equal(t, "/embedded-0/embedded-0", deep.Metadata.Get(types.KeyEmbeddedResourcePath))
}

func TestExtract_DepthBomb(t *testing.T) {
	done := make(chan *Node, 1)
	go func() {
		root, err := newTestDriver(types.Limits{MaxDepth: 5}).Extract(context.Background(), strings.NewReader("SELF"), nil)
		if err != nil {
			done <- nil
			return
		}
		done <- root
	}()

	var root *Node
	select {
	case root = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("extraction of a self-referential container did not terminate")
	}
	require.NotNil(t, root)

	assert.Equal(t, 7, root.Count(), "root plus depths 1..5 plus the rejected node")
	leaf := root
	for len(leaf.Children) > 0 {
		leaf = leaf.Children[0]
	}
	assert.Equal(t, 6, leaf.Depth())
	assert.Equal(t, StateFailed, leaf.State)
	assert.Equal(t, []types.Condition{types.ResourceLimitExceeded}, warningConditions(leaf))

	require.NoError(t, root.Walk(func(n *Node) error {
		if n != leaf {
			assert.Equal(t, StateCompleted, n.State, "node %s", n.PathString())
		}
		return nil
	}))
}

func TestExtract_EmbeddedCountBudget(t *testing.T) {
	input := "CONT\n1:TEXT a\n2:TEXT b\n3:TEXT c\n4:TEXT d\n5:TEXT e\n"
	root := extract(t, newTestDriver(types.Limits{MaxEmbedded: 3}), input)

	require.Len(t, root.Children, 5, "rejected objects are still reported")
	for i, c := range root.Children {
		if i < 3 {
			assert.Equal(t, StateCompleted, c.State)
			continue
		}
		assert.Equal(t, StateFailed, c.State)
		assert.Equal(t, []types.Condition{types.ResourceLimitExceeded}, warningConditions(c))
		assert.Empty(t, c.Events)
	}
}

func TestExtract_ByteBudget(t *testing.T) {
	payload := "CONT\n" + strings.Repeat("x:TEXT aaaaaaaaaaaaaaaaaaaa\n", 50)
	src := &countingReader{r: strings.NewReader(payload)}

	root, err := newTestDriver(types.Limits{MaxBytes: 64}).Extract(context.Background(), src, nil)
	require.NoError(t, err)

	assert.LessOrEqual(t, src.n, int64(64+1), "root source read more than one byte past the byte budget")
	assert.Contains(t, warningConditions(root), types.ResourceLimitExceeded)
	assert.Equal(t, StateFailed, root.State)
}

func TestExtract_InputAtExactByteBudget(t *testing.T) {
	root := extract(t, newTestDriver(types.Limits{MaxBytes: 10}), "TEXT hello")

	assert.Equal(t, StateCompleted, root.State)
	assert.Empty(t, root.Warnings())
	assert.Equal(t, "hello", root.Metadata.Get(types.KeyTitle))
}

func TestExtract_ChildAfterExactByteBudget(t *testing.T) {
	input := "CONT
a:TEXT one
"
	root := extract(t, newTestDriver(types.Limits{MaxBytes: int64(len(input))}), input)

	require.Len(t, root.Children, 1)
	assert.Equal(t, StateFailed, root.Children[0].State, "child bytes are over the budget")
	assert.Equal(t, []types.Condition{types.ResourceLimitExceeded}, warningConditions(root.Children[0]))
}

func TestExtract_TranslatorPredicateHitsByteBudget(t *testing.T) {
	reg := registry.NewBuilder().
		Register(textExtractor{}).
		RegisterTranslator(bufferingTranslator{}).
		Build()
	d := New(Config{Registry: reg, Detector: prefixDetector, Limits: types.Limits{MaxBytes: 100000}})

	root := extract(t, d, "TEXT"+strings.Repeat("a", 200001))

	assert.Equal(t, StateFailed, root.State, "truncated stream must not complete")
	assert.Equal(t, []types.Condition{types.ResourceLimitExceeded}, warningConditions(root))
	assert.False(t, root.Metadata.Has(types.KeyTitle))
	assert.False(t, root.Metadata.Has(types.KeyParsedBy))
}

func TestExtract_TranslatorPredicateErrorIsWarning(t *testing.T) {
	reg := registry.NewBuilder().
		Register(textExtractor{}).
		RegisterTranslator(bufferingTranslator{err: errors.New("directory sector unreadable")}).
		Build()
	d := New(Config{Registry: reg, Detector: prefixDetector})

	root := extract(t, d, "TEXT fine")

	assert.Equal(t, StateCompleted, root.State)
	assert.Equal(t, "fine", root.Metadata.Get(types.KeyTitle))
	assert.Equal(t, []types.Condition{types.TranslationFailed}, warningConditions(root))
	assert.Contains(t, root.Metadata.Get(types.WarningKey(types.TranslationFailed)), "directory sector unreadable")
}

func TestExtract_TranslatorAtMostOnce(t *testing.T) {
	first := &fakeTranslator{name: "first", match: true, output: "TEXT from first"}
	second := &fakeTranslator{name: "second", match: true, output: "TEXT from second"}
	reg := registry.NewBuilder().
		Register(textExtractor{}).
		RegisterTranslator(first).
		RegisterTranslator(second).
		Build()
	d := New(Config{Registry: reg, Detector: prefixDetector})

	root := extract(t, d, "WRAPPED")

	assert.Equal(t, 1, first.translates)
	assert.Equal(t, 0, second.translates)
	assert.Equal(t, 0, second.predicates, "chain stops at the first match")
	assert.Equal(t, "from first", root.Metadata.Get(types.KeyTitle))
	assert.Equal(t, "first", root.Metadata.Get(types.KeyTranslatedBy))
	assert.Equal(t, []string{"first", "test.Text"}, root.Metadata.Values(types.KeyParsedBy))
	assert.Equal(t, formatText, root.Format, "detection runs on the translated stream")
}

func TestExtract_TranslatorFailureFallsBack(t *testing.T) {
	broken := &fakeTranslator{name: "broken", match: true, fail: true}
	reg := registry.NewBuilder().
		Register(textExtractor{}).
		RegisterTranslator(broken).
		Build()
	d := New(Config{Registry: reg, Detector: prefixDetector})

	root := extract(t, d, "TEXT original")

	assert.Equal(t, StateCompleted, root.State)
	assert.Equal(t, "original", root.Metadata.Get(types.KeyTitle))
	assert.Equal(t, []types.Condition{types.TranslationFailed}, warningConditions(root))
	assert.False(t, root.Metadata.Has(types.KeyTranslatedBy))
}

func TestExtract_PassthroughTranslatorKeepsBytes(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	payload := make([]byte, 3*types.PeekSize+123)
	rng.Read(payload)
	payload[0] = 0 // never matches a test prefix

	capture := &captureExtractor{}
	pass := &fakeTranslator{name: "pass", match: false}
	reg := registry.NewBuilder().Register(capture).RegisterTranslator(pass).Build()
	d := New(Config{Registry: reg, Detector: prefixDetector})

	root, err := d.Extract(context.Background(), bytes.NewReader(payload), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, pass.predicates)
	assert.Equal(t, 0, pass.translates)
	assert.Equal(t, StateCompleted, root.State)
	assert.True(t, bytes.Equal(payload, capture.bytes()), "extractor saw modified bytes")
}

func TestExtract_UnparsableAudioHeader(t *testing.T) {
	root := extract(t, newTestDriver(types.Limits{}), "AUDI\x00\x00garbage")

	assert.Equal(t, StateFailed, root.State)
	assert.Empty(t, root.Events)
	assert.Len(t, root.Warnings(), 1)
	assert.Equal(t, []types.Condition{types.UnsupportedFormat}, warningConditions(root))
}

func TestExtract_NoExtractor(t *testing.T) {
	root := extract(t, newTestDriver(types.Limits{}), "\x00\x01unknown")

	assert.Equal(t, StateFailed, root.State)
	assert.Equal(t, types.FormatOctetStream, root.Format)
	assert.Equal(t, []types.Condition{types.NoExtractorAvailable}, warningConditions(root))
	assert.False(t, root.Metadata.Has(types.KeyParsedBy))
}

func TestExtract_PanicIsRecovered(t *testing.T) {
	root := extract(t, newTestDriver(types.Limits{}), "CONT\np:PANIC\nok:TEXT fine\n")

	require.Len(t, root.Children, 2)
	assert.Equal(t, StateFailed, root.Children[0].State)
	assert.Equal(t, []types.Condition{types.MalformedInput}, warningConditions(root.Children[0]))
	assert.Equal(t, StateCompleted, root.Children[1].State)
	assert.Equal(t, StateCompleted, root.State)
}

func TestExtract_TranslatorPanicFailsOnlyThatChild(t *testing.T) {
	reg := registry.NewBuilder().
		Register(containerExtractor{}).
		Register(textExtractor{}).
		RegisterTranslator(triggerTranslator{trigger: "PBOM"}).
		Build()
	d := New(Config{Registry: reg, Detector: prefixDetector})

	root := extract(t, d, "CONT
a:TEXT one
b:PBOM
c:TEXT three
")

	assert.Equal(t, StateCompleted, root.State)
	require.Len(t, root.Children, 3)
	assert.Equal(t, StateCompleted, root.Children[0].State)
	assert.Equal(t, StateFailed, root.Children[1].State)
	assert.Equal(t, []types.Condition{types.TranslationFailed}, warningConditions(root.Children[1]))
	assert.Contains(t, root.Children[1].Metadata.Get(types.WarningKey(types.TranslationFailed)), "test.Trigger")
	assert.Equal(t, StateCompleted, root.Children[2].State)
	assert.Equal(t, "three", root.Children[2].Metadata.Get(types.KeyTitle))
	assert.Equal(t, []int{2}, root.Children[2].Path)
}

func TestExtract_TranslatorPanicAtRoot(t *testing.T) {
	reg := registry.NewBuilder().
		Register(textExtractor{}).
		RegisterTranslator(triggerTranslator{trigger: "PBOM"}).
		Build()
	d := New(Config{Registry: reg, Detector: prefixDetector})

	var root *Node
	require.NotPanics(t, func() { root = extract(t, d, "PBOM") })
	assert.Equal(t, StateFailed, root.State)
	assert.Equal(t, []types.Condition{types.TranslationFailed}, warningConditions(root))
}

func TestExtract_DetectorPanicIsRecovered(t *testing.T) {
	d := New(Config{Registry: testRegistry(), Detector: triggerDetector("DBOM")})

	root := extract(t, d, "CONT
a:DBOM
b:TEXT two
")

	assert.Equal(t, StateCompleted, root.State)
	require.Len(t, root.Children, 2)
	assert.Equal(t, StateFailed, root.Children[0].State)
	assert.Equal(t, []types.Condition{types.MalformedInput}, warningConditions(root.Children[0]))
	assert.Equal(t, StateCompleted, root.Children[1].State)

	var top *Node
	require.NotPanics(t, func() { top = extract(t, d, "DBOM") })
	assert.Equal(t, StateFailed, top.State)
}

func TestExtract_UnbalancedOutputIsDowngraded(t *testing.T) {
	root := extract(t, newTestDriver(types.Limits{}), "OPEN")

	assert.Equal(t, StateFailed, root.State)
	assert.Equal(t, []types.Condition{types.MalformedInput}, warningConditions(root))
	assert.NotEmpty(t, root.Events)
}

func TestExtract_RootUnreadable(t *testing.T) {
	src := &failingReader{err: errors.New("disk on fire"), done: true}

	root, err := newTestDriver(types.Limits{}).Extract(context.Background(), src, nil)

	require.Error(t, err)
	assert.Nil(t, root)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestExtract_EmptyRootIsNotFatal(t *testing.T) {
	root, err := newTestDriver(types.Limits{}).Extract(context.Background(), strings.NewReader(""), nil)

	require.NoError(t, err)
	assert.Equal(t, types.FormatOctetStream, root.Format)
}

func TestExtract_RootBreaksMidStream(t *testing.T) {
	src := &failingReader{
		data: []byte("CONT\nfirst:TEXT one\n"),
		err:  errors.New("connection reset"),
	}

	root, err := newTestDriver(types.Limits{}).Extract(context.Background(), src, nil)
	require.NoError(t, err)

	assert.Equal(t, StateFailed, root.State, "open ancestor is unwound as failed")
	require.Len(t, root.Children, 1)
	assert.Equal(t, StateCompleted, root.Children[0].State)
	assert.NotEmpty(t, root.Warnings())
}

func TestExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root, err := newTestDriver(types.Limits{}).Extract(ctx, strings.NewReader("TEXT x"), nil)
	require.NoError(t, err)

	assert.Equal(t, StateFailed, root.State)
	assert.Equal(t, []types.Condition{types.ResourceLimitExceeded}, warningConditions(root))
}

func TestExtract_HintsAreCopied(t *testing.T) {
	hints := types.NewMetadata()
	hints.Set(types.KeyResourceName, "note.txt")

	root, err := newTestDriver(types.Limits{}).Extract(context.Background(), strings.NewReader("TEXT n"), hints)
	require.NoError(t, err)

	assert.Equal(t, "note.txt", root.Metadata.Get(types.KeyResourceName))
	assert.False(t, hints.Has(types.KeyContentType), "caller's record was modified")
	assert.False(t, hints.Frozen())
}

func TestExtract_Idempotent(t *testing.T) {
	d := newTestDriver(types.Limits{})
	input := "CONT\na:TEXT a\nb:BAD!\nc:CONT\nd:AUDI\n"

	first := extract(t, d, input)
	second := extract(t, d, input)

	var a, b []*Node
	_ = first.Walk(func(n *Node) error { a = append(a, n); return nil })
	_ = second.Walk(func(n *Node) error { b = append(b, n); return nil })
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.True(t, a[i].Metadata.Equal(b[i].Metadata), "node %s metadata differs", a[i].PathString())
		assert.Equal(t, a[i].Events, b[i].Events)
		assert.Equal(t, a[i].State, b[i].State)
	}
}

func TestExtract_Concurrent(t *testing.T) {
	d := newTestDriver(types.Limits{MaxEmbedded: 2})
	input := "CONT\na:TEXT a\nb:TEXT b\nc:TEXT c\n"

	var wg sync.WaitGroup
	results := make([]*Node, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			root, err := d.Extract(context.Background(), strings.NewReader(input), nil)
			if err == nil {
				results[i] = root
			}
		}(i)
	}
	wg.Wait()

	for i, root := range results {
		require.NotNil(t, root, "run %d", i)
		require.Len(t, root.Children, 3)
		// Each run has its own budget.
		assert.Equal(t, StateCompleted, root.Children[1].State)
		assert.Equal(t, StateFailed, root.Children[2].State)
	}
}

type recordingObserver struct {
	mu    sync.Mutex
	nodes []string
}

func (o *recordingObserver) ObserveNode(n *Node, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodes = append(o.nodes, n.PathString()+" "+n.State.String())
}

func TestExtract_ObserverSeesEveryNode(t *testing.T) {
	obs := &recordingObserver{}
	d := New(Config{Registry: testRegistry(), Detector: prefixDetector, Observer: obs})

	_, err := d.Extract(context.Background(), strings.NewReader("CONT\na:TEXT a\nb:BAD!\n"), nil)
	require.NoError(t, err)

	// Children finish before their parent.
	assert.Equal(t, []string{
		"/0 completed",
		"/1 failed-non-fatal",
		"/ completed",
	}, obs.nodes)
}

func TestExtract_OptionsReachExtractors(t *testing.T) {
	var seen string
	optioned := extractorFunc{
		name:    "optioned",
		formats: []types.Format{formatCapture, types.FormatOctetStream},
		fn: func(_ *types.Stream, h sink.Handler, ec *types.Context) error {
			seen, _ = ec.Option("optioned", "mode")
			if err := h.StartDocument(); err != nil {
				return err
			}
			return h.EndDocument()
		},
	}
	d := New(Config{
		Registry: registry.NewBuilder().Register(optioned).Build(),
		Options:  map[string]map[string]string{"optioned": {"mode": "fast"}},
	})

	_, err := d.Extract(context.Background(), strings.NewReader("anything"), nil)
	require.NoError(t, err)
	assert.Equal(t, "fast", seen)
}

type extractorFunc struct {
	name    string
	formats []types.Format
	fn      func(s *types.Stream, h sink.Handler, ec *types.Context) error
}

func (e extractorFunc) Name() string { return e.name }

func (e extractorFunc) SupportedFormats(*types.Context) []types.Format { return e.formats }

func (e extractorFunc) Extract(_ context.Context, s *types.Stream, h sink.Handler, _ *types.Metadata, ec *types.Context) error {
	return e.fn(s, h, ec)
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDetecting, "detecting"},
		{StateExtractorSelected, "extractor-selected"},
		{StateExtracting, "extracting"},
		{StateCompleted, "completed"},
		{StateFailed, "failed-non-fatal"},
		{State(42), "State(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateExtracting.Terminal())
}

func TestNode_WalkSkipChildren(t *testing.T) {
	root := &Node{Children: []*Node{
		{Path: []int{0}, Children: []*Node{{Path: []int{0, 0}}}},
		{Path: []int{1}},
	}}

	var visited []string
	err := root.Walk(func(n *Node) error {
		visited = append(visited, n.PathString())
		if n.PathString() == "/0" {
			return ErrSkipChildren
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/0", "/1"}, visited)
	assert.Equal(t, 4, root.Count())
	assert.Nil(t, root.Find(5))
}

func replay(t *testing.T, h sink.Handler, e sink.Event) {
	t.Helper()
	var err error
	switch e.Kind {
	case sink.EventStartDocument:
		err = h.StartDocument()
	case sink.EventEndDocument:
		err = h.EndDocument()
	case sink.EventStartElement:
		err = h.StartElement(e.Name, e.Attrs...)
	case sink.EventEndElement:
		err = h.EndElement(e.Name)
	case sink.EventCharacters:
		err = h.Characters(e.Text)
	}
	require.NoError(t, err)
}
