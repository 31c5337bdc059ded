// Package office extracts OOXML word-processing and OpenDocument text files.
//
// Text and document properties come from docconv. Objects and images stored
// inside the package are handed to the embedded-object callback.
package office

import (
	"context"
	"io"
	"maps"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"code.sajari.com/docconv"
	"github.com/mholt/archiver/v4"
	"go.uber.org/zap"

	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
)

// Name identifies the extractor.
const Name = "office.Extractor"

// KeyPropertyPrefix prefixes document properties with no Dublin Core mapping.
const KeyPropertyPrefix = "office:"

// propertyKeys maps docconv property names onto Dublin Core keys.
var propertyKeys = map[string]string{
	"title":           types.KeyTitle,
	"creator":         types.KeyCreator,
	"initial-creator": types.KeyCreator,
	"subject":         types.KeySubject,
	"description":     types.KeyDescription,
	"language":        types.KeyLanguage,
	"created":         types.KeyCreated,
	"creation-date":   types.KeyCreated,
	"CreatedDate":     types.KeyCreated,
	"modified":        types.KeyModified,
	"date":            types.KeyModified,
	"ModifiedDate":    types.KeyModified,
}

// embeddedDirs lists package folders whose entries are embedded objects.
var embeddedDirs = map[types.Format][]string{
	types.FormatDOCX: {"word/embeddings/", "word/media/"},
	types.FormatODT:  {"Pictures/", "Object "},
}

// Extractor reads DOCX and ODT documents.
type Extractor struct{}

// New creates an office document extractor.
func New() *Extractor {
	return &Extractor{}
}

// Name implements types.Extractor.
func (e *Extractor) Name() string { return Name }

// SupportedFormats implements types.Extractor.
func (e *Extractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(types.FormatDOCX, types.FormatODT)
}

// Extract implements types.Extractor.
func (e *Extractor) Extract(ctx context.Context, s *types.Stream, h sink.Handler, md *types.Metadata, ec *types.Context) error {
	format := types.Format(md.Get(types.KeyContentType)).Base()
	if _, ok := embeddedDirs[format]; !ok {
		return &types.UnsupportedFormatError{Format: format, Reason: "not a word-processing document"}
	}
	ra, err := s.ReaderAt()
	if err != nil {
		return &types.MalformedInputError{Err: err, Format: format, Reason: "read document"}
	}
	res, err := docconv.Convert(ra, string(format), false)
	if err != nil {
		return &types.MalformedInputError{Err: err, Format: format, Reason: "convert document"}
	}
	applyProperties(res.Meta, md)

	x := sink.NewXHTML(h)
	if err := x.StartDocument(); err != nil {
		return err
	}
	for _, line := range strings.Split(res.Body, "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		if err := x.Element("p", line); err != nil {
			return err
		}
	}

	if _, err := ra.Seek(0, io.SeekStart); err != nil {
		return &types.MalformedInputError{Err: err, Format: format, Reason: "rewind document"}
	}
	n, err := embedParts(ctx, ra, x, md, ec, embeddedDirs[format])
	if err != nil {
		return err
	}
	ec.Logger().Debug("office document extracted", zap.Int("embedded", n), zap.Int("textBytes", len(res.Body)))
	return x.EndDocument()
}

// embedParts walks the package and embeds entries under dirs. Only errors
// from the embedded-object callback are returned; a damaged package is
// recorded as a warning on md.
func embedParts(ctx context.Context, r io.Reader, x *sink.XHTML, md *types.Metadata, ec *types.Context, dirs []string) (int, error) {
	count := 0
	var embedErr error
	err := archiver.Zip{}.Extract(ctx, r, func(ctx context.Context, f archiver.FileInfo) error {
		if f.IsDir() || !underAny(f.NameInArchive, dirs) {
			return nil
		}
		rc, err := f.Open()
		if err != nil {
			md.Add(types.WarningKey(types.MalformedInput), "open "+f.NameInArchive+": "+err.Error())
			return nil
		}
		defer rc.Close()

		child := types.NewMetadata()
		name := path.Base(f.NameInArchive)
		child.Set(types.KeyResourceName, name)
		child.Set(KeyPropertyPrefix+"partName", f.NameInArchive)
		if guess := types.FormatForName(name); !guess.IsZero() {
			child.Set(types.KeyContentType, string(guess))
		}
		if err := x.Element("p", name, sink.Attr{Name: "class", Value: "embedded"}); err != nil {
			embedErr = err
			return err
		}
		count++
		if err := ec.Embed(ctx, rc, child); err != nil {
			embedErr = err
			return err
		}
		return nil
	})
	if embedErr != nil {
		return count, embedErr
	}
	if err != nil {
		md.Add(types.WarningKey(types.MalformedInput), "read package: "+err.Error())
	}
	return count, nil
}

func underAny(name string, dirs []string) bool {
	for _, d := range dirs {
		if strings.HasPrefix(name, d) {
			return true
		}
	}
	return false
}

// applyProperties maps docconv's property map onto md in sorted key order.
func applyProperties(props map[string]string, md *types.Metadata) {
	for _, k := range slices.Sorted(maps.Keys(props)) {
		v := strings.TrimSpace(props[k])
		if v == "" {
			continue
		}
		key, ok := propertyKeys[k]
		if !ok {
			md.Set(KeyPropertyPrefix+k, v)
			continue
		}
		if key == types.KeyCreated || key == types.KeyModified {
			v = normalizeDate(v)
		}
		if !md.Has(key) {
			md.Set(key, v)
		}
	}
}

// normalizeDate renders Unix seconds and ISO 8601 timestamps as RFC 3339 UTC.
// Anything else is kept as written.
func normalizeDate(v string) string {
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC().Format(time.RFC3339)
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return v
}
