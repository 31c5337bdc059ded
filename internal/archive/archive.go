// Package archive extracts archive and compression containers.
//
// Archives (zip, tar, 7z, rar and compressed tarballs) hand every regular
// entry to the embedded-object callback in archive order. Single-stream
// compression (gzip, bzip2, xz, zstd) hands the decompressed payload over as
// one embedded object.
package archive

import (
	"context"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mholt/archiver/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
)

// Name identifies the extractor.
const Name = "archive.Extractor"

// Metadata keys written by this package.
const (
	KeyEntries   = "archive:entryCount"
	KeyEntryPath = "archive:entryPath"
)

// compressionExts are stripped from a resource name to name the payload of a
// single-stream compressed file.
var compressionExts = map[string]string{
	".gz":   "",
	".tgz":  ".tar",
	".bz2":  "",
	".tbz2": ".tar",
	".xz":   "",
	".txz":  ".tar",
	".zst":  "",
}

// Extractor walks archives with archiver.
type Extractor struct{}

// New creates an archive extractor.
func New() *Extractor {
	return &Extractor{}
}

// Name implements types.Extractor.
func (e *Extractor) Name() string { return Name }

// SupportedFormats implements types.Extractor.
func (e *Extractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(
		types.FormatZip, types.FormatTar, types.Format7z, types.FormatRar,
		types.FormatGzip, types.FormatBzip2, types.FormatXz, types.FormatZstd,
		"application/x-gzip", "application/vnd.rar",
	)
}

// Extract implements types.Extractor.
func (e *Extractor) Extract(ctx context.Context, s *types.Stream, h sink.Handler, md *types.Metadata, ec *types.Context) error {
	format := types.Format(md.Get(types.KeyContentType)).Base()
	ra, err := s.ReaderAt()
	if err != nil {
		return &types.MalformedInputError{Err: err, Format: format, Reason: "read archive"}
	}

	name := md.Get(types.KeyResourceName)
	af, _, err := archiver.Identify(ctx, name, ra)
	if errors.Is(err, archiver.NoMatch) {
		return &types.UnsupportedFormatError{Err: err, Format: format, Reason: "unrecognized archive"}
	} else if err != nil {
		return &types.MalformedInputError{Err: err, Format: format, Reason: "identify archive"}
	}
	// Zip and 7z need random access, so every format reads from the start of
	// the buffered copy rather than from Identify's replay reader.
	if _, err := ra.Seek(0, io.SeekStart); err != nil {
		return &types.MalformedInputError{Err: err, Format: format, Reason: "rewind archive"}
	}

	switch f := af.(type) {
	case archiver.Extractor:
		return e.walk(ctx, f, ra, h, md, ec, format)
	case archiver.Decompressor:
		return e.decompress(ctx, f, ra, h, md, ec, format)
	}
	return &types.UnsupportedFormatError{Format: format, Reason: "container cannot be read"}
}

// walk embeds every regular entry of an archive.
func (e *Extractor) walk(ctx context.Context, ax archiver.Extractor, input io.Reader, h sink.Handler, md *types.Metadata, ec *types.Context, format types.Format) error {
	x := sink.NewXHTML(h)
	if err := x.StartDocument(); err != nil {
		return err
	}

	log := ec.Logger()
	entries := 0
	var embedErr error
	err := ax.Extract(ctx, input, func(ctx context.Context, f archiver.FileInfo) error {
		if f.IsDir() || f.LinkTarget != "" {
			return nil
		}
		entries++
		if err := writeEntry(x, f.NameInArchive); err != nil {
			embedErr = err
			return err
		}
		rc, err := f.Open()
		if err != nil {
			log.Debug("archive entry unreadable", zap.String("entry", f.NameInArchive), zap.Error(err))
			md.Add(types.WarningKey(types.MalformedInput), "open "+f.NameInArchive+": "+err.Error())
			return nil
		}
		defer rc.Close()

		if err := ec.Embed(ctx, rc, entryMetadata(f)); err != nil {
			embedErr = err
			return err
		}
		return nil
	})
	md.Set(KeyEntries, strconv.Itoa(entries))
	if embedErr != nil {
		return embedErr
	}
	if err != nil {
		return &types.MalformedInputError{Err: err, Format: format, Reason: "read entries"}
	}
	log.Debug("archive walked", zap.Int("entries", entries))
	return x.EndDocument()
}

// decompress embeds the single payload of a compressed stream.
func (e *Extractor) decompress(ctx context.Context, dc archiver.Decompressor, input io.Reader, h sink.Handler, md *types.Metadata, ec *types.Context, format types.Format) error {
	rc, err := dc.OpenReader(input)
	if err != nil {
		return &types.MalformedInputError{Err: err, Format: format, Reason: "open decompressor"}
	}
	defer rc.Close()

	x := sink.NewXHTML(h)
	if err := x.StartDocument(); err != nil {
		return err
	}
	child := types.NewMetadata()
	if name := payloadName(md.Get(types.KeyResourceName)); name != "" {
		child.Set(types.KeyResourceName, name)
		if err := writeEntry(x, name); err != nil {
			return err
		}
	}
	md.Set(KeyEntries, "1")
	if err := ec.Embed(ctx, rc, child); err != nil {
		return err
	}
	return x.EndDocument()
}

func writeEntry(x *sink.XHTML, name string) error {
	if err := x.Start("div", sink.Attr{Name: "class", Value: "package-entry"}); err != nil {
		return err
	}
	if err := x.Element("h1", name); err != nil {
		return err
	}
	return x.End("div")
}

// entryMetadata seeds the embedded record of an archive entry.
func entryMetadata(f archiver.FileInfo) *types.Metadata {
	md := types.NewMetadata()
	md.Set(types.KeyResourceName, path.Base(f.NameInArchive))
	md.Set(KeyEntryPath, f.NameInArchive)
	if size := f.Size(); size >= 0 {
		md.Set(types.KeyContentLength, strconv.FormatInt(size, 10))
	}
	if mt := f.ModTime(); !mt.IsZero() {
		md.Set(types.KeyModified, mt.UTC().Format(time.RFC3339))
	}
	return md
}

// payloadName derives the name of a compressed file's payload, e.g.
// "notes.txt.gz" to "notes.txt" and "src.tgz" to "src.tar".
func payloadName(name string) string {
	if name == "" {
		return ""
	}
	ext := filepath.Ext(name)
	repl, ok := compressionExts[strings.ToLower(ext)]
	if !ok {
		return ""
	}
	return strings.TrimSuffix(name, ext) + repl
}
