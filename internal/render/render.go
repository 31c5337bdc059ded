// Package render serializes extraction results.
//
// JSON is written with jsoniter's streaming encoder so metadata keys come out
// in the order they were recorded.
package render

import (
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/dameikle/tika/internal/driver"
	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
)

var api = jsoniter.Config{EscapeHTML: false}.Froze()

// blocks are elements whose end starts a new line in plain text.
var blocks = map[string]bool{
	"p": true, "div": true, "li": true, "tr": true, "title": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"pre": true, "blockquote": true, "br": true, "img": true,
}

// WriteTree writes the full node tree: path, state, metadata, content events
// and embedded children.
func WriteTree(w io.Writer, n *driver.Node) error {
	s := jsoniter.NewStream(api, w, 4096)
	writeNode(s, n)
	s.WriteRaw("\n")
	return finish(s)
}

// WriteMetadataList writes the metadata record of every node, depth-first in
// document order, as a JSON array.
func WriteMetadataList(w io.Writer, n *driver.Node) error {
	s := jsoniter.NewStream(api, w, 4096)
	s.WriteArrayStart()
	first := true
	_ = n.Walk(func(c *driver.Node) error {
		if !first {
			s.WriteMore()
		}
		first = false
		writeMetadata(s, c.Metadata)
		return nil
	})
	s.WriteArrayEnd()
	s.WriteRaw("\n")
	return finish(s)
}

// WriteMetadata writes one record as a JSON object. Single values are
// written as strings and multiple values as arrays.
func WriteMetadata(w io.Writer, md *types.Metadata) error {
	s := jsoniter.NewStream(api, w, 4096)
	writeMetadata(s, md)
	s.WriteRaw("\n")
	return finish(s)
}

// Text returns the character content of n and its descendants. Block
// elements end a line; the text of each embedded node follows its parent's.
func Text(n *driver.Node) string {
	var b strings.Builder
	_ = n.Walk(func(c *driver.Node) error {
		for _, e := range c.Events {
			switch e.Kind {
			case sink.EventCharacters:
				b.WriteString(e.Text)
			case sink.EventEndElement:
				if blocks[e.Name] {
					newline(&b)
				}
			}
		}
		newline(&b)
		return nil
	})
	return strings.TrimSpace(b.String()) + "\n"
}

func newline(b *strings.Builder) {
	if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
		b.WriteByte('\n')
	}
}

func finish(s *jsoniter.Stream) error {
	if s.Error != nil {
		return s.Error
	}
	return s.Flush()
}

func writeNode(s *jsoniter.Stream, n *driver.Node) {
	s.WriteObjectStart()
	s.WriteObjectField("path")
	s.WriteString(n.PathString())
	s.WriteMore()
	s.WriteObjectField("state")
	s.WriteString(n.State.String())
	if !n.Format.IsZero() {
		s.WriteMore()
		s.WriteObjectField("format")
		s.WriteString(string(n.Format))
	}
	s.WriteMore()
	s.WriteObjectField("metadata")
	writeMultiMetadata(s, n.Metadata)
	s.WriteMore()
	s.WriteObjectField("content-events")
	s.WriteArrayStart()
	for i, e := range n.Events {
		if i > 0 {
			s.WriteMore()
		}
		writeEvent(s, e)
	}
	s.WriteArrayEnd()
	s.WriteMore()
	s.WriteObjectField("embedded")
	s.WriteArrayStart()
	for i, c := range n.Children {
		if i > 0 {
			s.WriteMore()
		}
		writeNode(s, c)
	}
	s.WriteArrayEnd()
	s.WriteObjectEnd()
}

func writeEvent(s *jsoniter.Stream, e sink.Event) {
	s.WriteObjectStart()
	s.WriteObjectField("type")
	s.WriteString(e.Kind.String())
	switch e.Kind {
	case sink.EventStartElement, sink.EventEndElement:
		s.WriteMore()
		s.WriteObjectField("name")
		s.WriteString(e.Name)
	case sink.EventCharacters:
		s.WriteMore()
		s.WriteObjectField("text")
		s.WriteString(e.Text)
	}
	if len(e.Attrs) > 0 {
		s.WriteMore()
		s.WriteObjectField("attributes")
		s.WriteObjectStart()
		for i, a := range e.Attrs {
			if i > 0 {
				s.WriteMore()
			}
			s.WriteObjectField(a.Name)
			s.WriteString(a.Value)
		}
		s.WriteObjectEnd()
	}
	s.WriteObjectEnd()
}

// writeMultiMetadata writes every key with an array of values.
func writeMultiMetadata(s *jsoniter.Stream, md *types.Metadata) {
	s.WriteObjectStart()
	if md != nil {
		for i, k := range md.Names() {
			if i > 0 {
				s.WriteMore()
			}
			s.WriteObjectField(k)
			writeStrings(s, md.Values(k))
		}
	}
	s.WriteObjectEnd()
}

// writeMetadata writes single values as strings and the rest as arrays.
func writeMetadata(s *jsoniter.Stream, md *types.Metadata) {
	s.WriteObjectStart()
	if md != nil {
		for i, k := range md.Names() {
			if i > 0 {
				s.WriteMore()
			}
			s.WriteObjectField(k)
			if vs := md.Values(k); len(vs) == 1 {
				s.WriteString(vs[0])
			} else {
				writeStrings(s, vs)
			}
		}
	}
	s.WriteObjectEnd()
}

func writeStrings(s *jsoniter.Stream, vs []string) {
	s.WriteArrayStart()
	for i, v := range vs {
		if i > 0 {
			s.WriteMore()
		}
		s.WriteString(v)
	}
	s.WriteArrayEnd()
}
