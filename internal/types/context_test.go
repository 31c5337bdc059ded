package types

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestContext_DescendAddsOne(t *testing.T) {
	root := NewContext(nil)
	child := root.Descend()
	grandchild := child.Descend()

	assert.Equal(t, 0, root.Depth())
	assert.Equal(t, 1, child.Depth())
	assert.Equal(t, 2, grandchild.Depth())
	assert.Same(t, root.Budget(), grandchild.Budget(), "budget is shared down the tree")
}

func TestContext_IsCopyOnWrite(t *testing.T) {
	base := NewContext(NewBudget(Limits{MaxDepth: 3}))
	withValue := base.With("k", "v")

	assert.Nil(t, base.Value("k"))
	assert.Equal(t, "v", withValue.Value("k"))
	assert.Equal(t, 3, withValue.Limits().MaxDepth)

	other := withValue.With("k2", 1)
	assert.Nil(t, withValue.Value("k2"))
	assert.Equal(t, "v", other.Value("k"))
}

func TestContext_Embed(t *testing.T) {
	var got []string
	var names []string
	ec := NewContext(nil).WithEmbedder(func(_ context.Context, r io.Reader, md *Metadata) error {
		b, err := io.ReadAll(r)
		got = append(got, string(b))
		names = append(names, md.Get(KeyResourceName))
		return err
	})

	md := NewMetadata()
	md.Set(KeyResourceName, "a.txt")
	require.NoError(t, ec.Embed(context.Background(), strings.NewReader("one"), md))
	require.NoError(t, ec.Embed(context.Background(), strings.NewReader("two"), nil))

	assert.Equal(t, []string{"one", "two"}, got)
	assert.Equal(t, []string{"a.txt", ""}, names)

	assert.NoError(t, ec.Descend().Embed(context.Background(), strings.NewReader("x"), nil),
		"descended context has no embedder until one is bound")
}

func TestContext_Options(t *testing.T) {
	opts := map[string]map[string]string{
		"pdf":  {"extractAttachments": "false", "maxPages": "12", "bad": "many"},
		"mail": {"mode": "strict"},
	}
	ec := NewContext(nil).WithOptions(opts)
	opts["pdf"]["maxPages"] = "99"

	v, ok := ec.Option("mail", "mode")
	assert.True(t, ok)
	assert.Equal(t, "strict", v)
	_, ok = ec.Option("mail", "missing")
	assert.False(t, ok)

	assert.False(t, ec.BoolOption("pdf", "extractAttachments", true))
	assert.True(t, ec.BoolOption("pdf", "missing", true))
	assert.Equal(t, 12, ec.IntOption("pdf", "maxPages", 0), "options are copied")
	assert.Equal(t, 7, ec.IntOption("pdf", "bad", 7))
}

func TestContext_Logger(t *testing.T) {
	ec := NewContext(nil)
	assert.NotNil(t, ec.Logger())

	l := zap.NewExample()
	assert.Same(t, l, ec.WithLogger(l).Logger())
}

func TestContext_Translators(t *testing.T) {
	ts := []Translator{nil}
	ec := NewContext(nil).WithTranslators(ts)
	ts[0] = nil
	assert.Len(t, ec.Translators(), 1)
	assert.Empty(t, NewContext(nil).Translators())
}
