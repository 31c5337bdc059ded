// Package pdf extracts PDF documents.
//
// Page text comes from ledongthuc/pdf, one div per page. File attachments are
// read with pdfcpu and handed to the embedded-object callback. Both libraries
// can panic on hostile input; a panic while reading one page or the
// attachment list is recorded as a warning and extraction carries on.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ledongthuc/pdf"
	pdfcpuapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
)

// Name identifies the extractor.
const Name = "pdf.Extractor"

// OptAttachments turns attachment extraction off when "false".
const OptAttachments = "extractAttachments"

// Metadata keys written by this package.
const (
	KeyVersion     = "pdf:PDFVersion"
	KeyProducer    = "pdf:producer"
	KeyCreatorTool = "xmp:CreatorTool"
	KeyKeywords    = "pdf:keywords"
	KeyEncrypted   = "pdf:encrypted"
	KeyAttachments = "pdf:attachmentCount"
)

// infoKeys maps document information entries onto metadata keys.
var infoKeys = []struct{ entry, key string }{
	{"Title", types.KeyTitle},
	{"Author", types.KeyCreator},
	{"Subject", types.KeySubject},
	{"Keywords", KeyKeywords},
	{"Creator", KeyCreatorTool},
	{"Producer", KeyProducer},
}

var configOnce sync.Once

// newConfig returns a relaxed pdfcpu configuration that never touches the
// user's config directory.
func newConfig() *model.Configuration {
	configOnce.Do(func() { model.ConfigPath = "disable" })
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Extractor reads PDF documents.
type Extractor struct{}

// New creates a PDF extractor.
func New() *Extractor {
	return &Extractor{}
}

// Name implements types.Extractor.
func (e *Extractor) Name() string { return Name }

// SupportedFormats implements types.Extractor.
func (e *Extractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(types.FormatPDF)
}

// Extract implements types.Extractor.
func (e *Extractor) Extract(ctx context.Context, s *types.Stream, h sink.Handler, md *types.Metadata, ec *types.Context) error {
	ra, err := s.ReaderAt()
	if err != nil {
		return &types.MalformedInputError{Err: err, Format: types.FormatPDF, Reason: "read document"}
	}
	r, err := openReader(ra)
	if err != nil {
		return err
	}
	log := ec.Logger()

	pages := r.NumPage()
	applyInfo(r.Trailer().Key("Info"), md)
	if v := version(ra); v != "" {
		md.Set(KeyVersion, v)
	}
	md.Set(KeyEncrypted, strconv.FormatBool(!r.Trailer().Key("Encrypt").IsNull()))
	md.Set(types.KeyPageCount, strconv.Itoa(pages))

	x := sink.NewXHTML(h)
	if err := x.StartDocument(); err != nil {
		return err
	}
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return &types.ResourceLimitError{Limit: "deadline", Err: err}
		}
		text, perr := pageText(r, i, fonts)
		if perr != nil {
			md.Add(types.WarningKey(types.MalformedInput), fmt.Sprintf("page %d: %v", i, perr))
			log.Debug("page text unreadable", zap.Int("page", i), zap.Error(perr))
		}
		if err := x.Start("div", sink.Attr{Name: "class", Value: "page"}); err != nil {
			return err
		}
		if err := x.Paragraphs(text); err != nil {
			return err
		}
		if err := x.End("div"); err != nil {
			return err
		}
	}

	if ec.BoolOption(Name, OptAttachments, true) {
		if _, err := ra.Seek(0, io.SeekStart); err != nil {
			return &types.MalformedInputError{Err: err, Format: types.FormatPDF, Reason: "rewind document"}
		}
		atts, aerr := attachments(ra)
		if aerr != nil {
			md.Add(types.WarningKey(types.MalformedInput), "attachments: "+aerr.Error())
			log.Debug("attachments unreadable", zap.Error(aerr))
		}
		md.Set(KeyAttachments, strconv.Itoa(len(atts)))
		if err := embedAttachments(ctx, x, ec, atts); err != nil {
			return err
		}
	}
	log.Debug("pdf extracted", zap.Int("pages", pages))
	return x.EndDocument()
}

// openReader classifies reader construction failures.
func openReader(ra *bytes.Reader) (r *pdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, &types.MalformedInputError{Format: types.FormatPDF, Reason: fmt.Sprintf("open document: %v", p)}
		}
	}()
	r, err = pdf.NewReader(ra, ra.Size())
	switch {
	case err == nil:
		return r, nil
	case errors.Is(err, pdf.ErrInvalidPassword):
		return nil, &types.UnsupportedFormatError{Err: err, Format: types.FormatPDF, Reason: "encrypted document"}
	case strings.Contains(err.Error(), "not a PDF file"):
		return nil, &types.UnsupportedFormatError{Err: err, Format: types.FormatPDF, Reason: "no PDF header or trailer"}
	}
	return nil, &types.MalformedInputError{Err: err, Format: types.FormatPDF, Reason: "open document"}
}

// pageText reads the text of page i, turning a panic into an error.
func pageText(r *pdf.Reader, i int, fonts map[string]*pdf.Font) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			text, err = "", errors.Errorf("%v", p)
		}
	}()
	p := r.Page(i)
	if p.V.IsNull() {
		return "", errors.New("page missing from page tree")
	}
	for _, name := range p.Fonts() {
		if _, ok := fonts[name]; !ok {
			f := p.Font(name)
			fonts[name] = &f
		}
	}
	return p.GetPlainText(fonts)
}

// attachments lists the document's embedded files, turning a panic into an
// error.
func attachments(rs io.ReadSeeker) (atts []model.Attachment, err error) {
	defer func() {
		if p := recover(); p != nil {
			atts, err = nil, errors.Errorf("%v", p)
		}
	}()
	return pdfcpuapi.ExtractAttachmentsRaw(rs, "", nil, newConfig())
}

// embedAttachments hands each attachment to the embedded-object callback.
func embedAttachments(ctx context.Context, x *sink.XHTML, ec *types.Context, atts []model.Attachment) error {
	for i, a := range atts {
		if a.Reader == nil {
			continue
		}
		child := types.NewMetadata()
		name := a.FileName
		if name == "" {
			name = "attachment-" + strconv.Itoa(i)
		}
		child.Set(types.KeyResourceName, name)
		if a.Desc != "" {
			child.Set(types.KeyDescription, a.Desc)
		}
		if a.ModTime != nil {
			child.Set(types.KeyModified, a.ModTime.UTC().Format(time.RFC3339))
		}
		if err := x.Element("p", name, sink.Attr{Name: "class", Value: "embedded"}); err != nil {
			return err
		}
		if err := ec.Embed(ctx, a.Reader, child); err != nil {
			return err
		}
	}
	return nil
}

// applyInfo copies the document information dictionary into md.
func applyInfo(info pdf.Value, md *types.Metadata) {
	if info.IsNull() {
		return
	}
	for _, k := range infoKeys {
		if v := strings.TrimSpace(info.Key(k.entry).Text()); v != "" {
			md.Set(k.key, v)
		}
	}
	if t, ok := parseDate(info.Key("CreationDate").Text()); ok {
		md.Set(types.KeyCreated, t.Format(time.RFC3339))
	}
	if t, ok := parseDate(info.Key("ModDate").Text()); ok {
		md.Set(types.KeyModified, t.Format(time.RFC3339))
	}
}

// version reads "1.7" from a "%PDF-1.7" header.
func version(ra io.ReaderAt) string {
	buf := make([]byte, 8)
	if n, _ := ra.ReadAt(buf, 0); n < 8 || !bytes.HasPrefix(buf, []byte("%PDF-")) {
		return ""
	}
	return string(buf[5:8])
}

// parseDate reads a PDF date string, "D:YYYYMMDDHHmmSSOHH'mm'", where every
// field after the year is optional. The result is in UTC.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "D:")
	if len(s) < 4 {
		return time.Time{}, false
	}
	digits := s
	if i := strings.IndexAny(s, "Zz+-"); i >= 0 {
		digits = s[:i]
	}
	// Pad missing fields with month 01, day 01 and zero time.
	const pad = "0101000000"
	if len(digits) < 14 && len(digits) >= 4 {
		digits += pad[len(digits)-4:]
	}
	t, err := time.Parse("20060102150405", digits[:min(len(digits), 14)])
	if err != nil {
		return time.Time{}, false
	}
	if i := strings.IndexAny(s, "+-"); i >= 0 {
		tz := strings.ReplaceAll(s[i+1:], "'", "")
		if len(tz) >= 2 {
			hh, _ := strconv.Atoi(tz[:2])
			mm := 0
			if len(tz) >= 4 {
				mm, _ = strconv.Atoi(tz[2:4])
			}
			offset := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
			if s[i] == '+' {
				t = t.Add(-offset)
			} else {
				t = t.Add(offset)
			}
		}
	}
	return t.UTC(), true
}
