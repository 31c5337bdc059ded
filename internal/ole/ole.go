// Package ole reads OLE2 compound documents.
//
// The Extractor records the summary property sets of a compound file and
// hands the objects it packs to the embedded-object callback. The
// NativeTranslator unwraps compound files that exist only to carry a packaged
// file, so the driver extracts the file itself.
package ole

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/richardlehane/mscfb"
	"github.com/richardlehane/msoleps"
	olepstypes "github.com/richardlehane/msoleps/types"
	"go.uber.org/zap"

	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
)

// Name identifies the extractor.
const Name = "ole.Extractor"

// Metadata keys written by this package.
const (
	KeyPropertyPrefix = "ole:"
	KeyClassID        = "ole:classID"
	KeyStreams        = "ole:streamCount"
	KeyStreamPath     = "ole:streamPath"
)

// Magic is the compound file signature.
var Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

const (
	nativeInitial = 0x01
	nativeName    = "Ole10Native"
	zeroCLSID     = "{00000000-0000-0000-0000-000000000000}"
)

// payloadStreams are streams holding a complete document of another format.
var payloadStreams = map[string]bool{
	"Package":     true,
	"CONTENTS":    true,
	"EmbeddedOdf": true,
}

// summaryKeys maps summary property names onto metadata keys.
var summaryKeys = map[string]string{
	"Title":        types.KeyTitle,
	"Subject":      types.KeySubject,
	"Author":       types.KeyCreator,
	"Comments":     types.KeyDescription,
	"CreateTime":   types.KeyCreated,
	"LastSaveTime": types.KeyModified,
	"PageCount":    types.KeyPageCount,
	"Language":     types.KeyLanguage,
}

// skipProperties are bookkeeping entries of every property set.
var skipProperties = map[string]bool{
	"":           true,
	"Dictionary": true,
	"CodePage":   true,
	"Locale":     true,
	"Behaviour":  true,
	"Thumbnail":  true,
}

// Extractor reads OLE2 compound documents.
type Extractor struct{}

// New creates an OLE2 extractor.
func New() *Extractor {
	return &Extractor{}
}

// Name implements types.Extractor.
func (e *Extractor) Name() string { return Name }

// SupportedFormats implements types.Extractor.
func (e *Extractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(types.FormatOLE)
}

// Extract implements types.Extractor.
func (e *Extractor) Extract(ctx context.Context, s *types.Stream, h sink.Handler, md *types.Metadata, ec *types.Context) error {
	head, err := s.Peek(len(Magic))
	if err != nil && !errors.Is(err, io.EOF) {
		return &types.MalformedInputError{Err: err, Format: types.FormatOLE, Reason: "read signature"}
	}
	if !bytes.Equal(head, Magic) {
		return &types.UnsupportedFormatError{Format: types.FormatOLE, Reason: "no compound file signature"}
	}
	ra, err := s.ReaderAt()
	if err != nil {
		return &types.MalformedInputError{Err: err, Format: types.FormatOLE, Reason: "read document"}
	}
	doc, err := open(ra)
	if err != nil {
		return err
	}
	log := ec.Logger()

	if id := doc.ID(); id != zeroCLSID {
		md.Set(KeyClassID, id)
	}
	if t := doc.Modified(); t.Unix() > 0 {
		md.Set(types.KeyModified, t.UTC().Format(time.RFC3339))
	}

	x := sink.NewXHTML(h)
	if err := x.StartDocument(); err != nil {
		return err
	}
	streams := 0
	for _, f := range doc.File[1:] {
		if err := ctx.Err(); err != nil {
			return &types.ResourceLimitError{Limit: "deadline", Err: err}
		}
		if f.FileInfo().IsDir() {
			continue
		}
		streams++
		switch {
		case msoleps.IsMSOLEPS(f.Initial):
			if err := applyProperties(f, md); err != nil {
				md.Add(types.WarningKey(types.MalformedInput), fmt.Sprintf("property set %s: %v", f.Name, err))
				log.Debug("property set unreadable", zap.String("stream", f.Name), zap.Error(err))
			}
		case isNative(f):
			if err := embedNative(ctx, x, ec, md, f); err != nil {
				return err
			}
		case payloadStreams[f.Name]:
			if err := embedStream(ctx, x, ec, md, f); err != nil {
				return err
			}
		}
	}
	md.Set(KeyStreams, strconv.Itoa(streams))
	log.Debug("compound document extracted", zap.Int("streams", streams))
	return x.EndDocument()
}

// open parses the compound file directory, turning a panic into an error.
func open(ra io.ReaderAt) (doc *mscfb.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			doc, err = nil, &types.MalformedInputError{Format: types.FormatOLE, Reason: fmt.Sprintf("read directory: %v", p)}
		}
	}()
	doc, err = mscfb.New(ra)
	if err != nil {
		return nil, &types.MalformedInputError{Err: err, Format: types.FormatOLE, Reason: "read directory"}
	}
	if len(doc.File) == 0 {
		return nil, &types.MalformedInputError{Format: types.FormatOLE, Reason: "no root entry"}
	}
	return doc, nil
}

// readStream reads a whole stream, turning a panic into an error.
func readStream(f *mscfb.File) (data []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			data, err = nil, errors.Errorf("read stream %s: %v", f.Name, p)
		}
	}()
	data, err = io.ReadAll(f)
	return data, errors.Wrapf(err, "read stream %s", f.Name)
}

func isNative(f *mscfb.File) bool {
	return f.Initial == nativeInitial && f.Name == nativeName
}

// streamPath renders the storage path and name of f, e.g.
// "ObjectPool/_1234/Package".
func streamPath(f *mscfb.File) string {
	return strings.Join(append(append([]string(nil), f.Path...), f.Name), "/")
}

// embedNative unpacks a packaged file and embeds its payload.
func embedNative(ctx context.Context, x *sink.XHTML, ec *types.Context, md *types.Metadata, f *mscfb.File) error {
	data, err := readStream(f)
	if err != nil {
		md.Add(types.WarningKey(types.MalformedInput), err.Error())
		return nil
	}
	n, err := ParseNative(data)
	if err != nil {
		md.Add(types.WarningKey(types.MalformedInput), "Ole10Native: "+err.Error())
		return nil
	}
	child := types.NewMetadata()
	name := n.Name()
	if name != "" {
		child.Set(types.KeyResourceName, name)
	}
	child.Set(KeyStreamPath, streamPath(f))
	return embed(ctx, x, ec, child, name, bytes.NewReader(n.Data))
}

// embedStream embeds a stream holding a whole document.
func embedStream(ctx context.Context, x *sink.XHTML, ec *types.Context, md *types.Metadata, f *mscfb.File) error {
	data, err := readStream(f)
	if err != nil {
		md.Add(types.WarningKey(types.MalformedInput), err.Error())
		return nil
	}
	child := types.NewMetadata()
	child.Set(KeyStreamPath, streamPath(f))
	return embed(ctx, x, ec, child, f.Name, bytes.NewReader(data))
}

func embed(ctx context.Context, x *sink.XHTML, ec *types.Context, child *types.Metadata, label string, r io.Reader) error {
	if err := x.Element("p", label, sink.Attr{Name: "class", Value: "embedded"}); err != nil {
		return err
	}
	return ec.Embed(ctx, r, child)
}

// applyProperties copies a summary property set into md. Mapped properties
// keep the first value seen; the rest are recorded under the ole: prefix.
func applyProperties(f *mscfb.File, md *types.Metadata) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("%v", p)
		}
	}()
	props, err := msoleps.NewFrom(f)
	if err != nil {
		return err
	}
	for _, p := range props.Property {
		if p == nil || p.T == nil || skipProperties[p.Name] {
			continue
		}
		v := propertyValue(p.T)
		if v == "" {
			continue
		}
		if key, ok := summaryKeys[p.Name]; ok {
			if !md.Has(key) {
				md.Set(key, v)
			}
			continue
		}
		md.Set(KeyPropertyPrefix+strings.ReplaceAll(p.Name, " ", ""), v)
	}
	return nil
}

// propertyValue renders a property as text, timestamps as RFC 3339 UTC.
func propertyValue(t olepstypes.Type) string {
	if ft, ok := t.(olepstypes.FileTime); ok {
		tm := ft.Time()
		if tm.Unix() <= 0 {
			return ""
		}
		return tm.UTC().Format(time.RFC3339)
	}
	return strings.TrimSpace(t.String())
}
