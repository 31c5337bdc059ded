package render

import (
	"bytes"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dameikle/tika/internal/driver"
	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
)

func record(t *testing.T, fn func(x *sink.XHTML) error) []sink.Event {
	t.Helper()
	rec := sink.NewRecorder()
	x := sink.NewXHTML(rec)
	require.NoError(t, x.StartDocument())
	require.NoError(t, fn(x))
	require.NoError(t, x.EndDocument())
	return rec.Events()
}

func sampleTree(t *testing.T) *driver.Node {
	rootMD := types.NewMetadata()
	rootMD.Set(types.KeyContentType, string(types.FormatZip))
	rootMD.Set(types.KeyResourceName, "bundle.zip")
	rootMD.Add(types.KeyParsedBy, "archive.Extractor")

	childMD := types.NewMetadata()
	childMD.Set(types.KeyContentType, "text/plain; charset=UTF-8")
	childMD.Set(types.KeyResourceName, "a <b>.txt")
	childMD.Add(types.KeyParsedBy, "text.Extractor")
	childMD.Add(types.KeyParsedBy, "second")

	return &driver.Node{
		State:    driver.StateCompleted,
		Format:   types.FormatZip,
		Metadata: rootMD,
		Events: record(t, func(x *sink.XHTML) error {
			return x.Element("h1", "a <b>.txt", sink.Attr{Name: "class", Value: "entry"})
		}),
		Children: []*driver.Node{{
			Path:     []int{0},
			State:    driver.StateFailed,
			Format:   "text/plain",
			Metadata: childMD,
			Events: record(t, func(x *sink.XHTML) error {
				if err := x.Element("p", "first line"); err != nil {
					return err
				}
				return x.Element("p", "second line")
			}),
		}},
	}
}

func TestWriteTree(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTree(&buf, sampleTree(t)))
	assert.Contains(t, buf.String(), `"a <b>.txt"`, "HTML is not escaped")

	var got struct {
		Path     string              `json:"path"`
		State    string              `json:"state"`
		Format   string              `json:"format"`
		Metadata map[string][]string `json:"metadata"`
		Events   []struct {
			Type  string            `json:"type"`
			Name  string            `json:"name"`
			Text  string            `json:"text"`
			Attrs map[string]string `json:"attributes"`
		} `json:"content-events"`
		Embedded []struct {
			Path     string              `json:"path"`
			State    string              `json:"state"`
			Metadata map[string][]string `json:"metadata"`
		} `json:"embedded"`
	}
	require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &got))

	assert.Equal(t, "/", got.Path)
	assert.Equal(t, "completed", got.State)
	assert.Equal(t, "application/zip", got.Format)
	assert.Equal(t, []string{"bundle.zip"}, got.Metadata[types.KeyResourceName])
	require.Len(t, got.Events, 9)
	assert.Equal(t, "start-document", got.Events[0].Type)
	assert.Equal(t, "start-element", got.Events[3].Type)
	assert.Equal(t, "h1", got.Events[3].Name)
	assert.Equal(t, map[string]string{"class": "entry"}, got.Events[3].Attrs)
	assert.Equal(t, "a <b>.txt", got.Events[4].Text)

	require.Len(t, got.Embedded, 1)
	assert.Equal(t, "/0", got.Embedded[0].Path)
	assert.Equal(t, "failed-non-fatal", got.Embedded[0].State)
	assert.Equal(t, []string{"text.Extractor", "second"}, got.Embedded[0].Metadata[types.KeyParsedBy])
}

func TestWriteMetadataList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMetadataList(&buf, sampleTree(t)))

	var got []map[string]any
	require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "bundle.zip", got[0][types.KeyResourceName])
	assert.Equal(t, []any{"text.Extractor", "second"}, got[1][types.KeyParsedBy])
}

func TestWriteMetadata_KeepsOrder(t *testing.T) {
	md := types.NewMetadata()
	md.Set("zeta", "1")
	md.Set("alpha", "2", "3")
	md.Set("mid", `quote " and \ slash`)

	var buf bytes.Buffer
	require.NoError(t, WriteMetadata(&buf, md))
	assert.Equal(t, `{"zeta":"1","alpha":["2","3"],"mid":"quote \" and \\ slash"}`+"\n", buf.String())
}

func TestWriteMetadata_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMetadata(&buf, types.NewMetadata()))
	assert.Equal(t, "{}\n", buf.String())
}

func TestText(t *testing.T) {
	assert.Equal(t, "a <b>.txt\nfirst line\nsecond line\n", Text(sampleTree(t)))
}
