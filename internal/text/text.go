// Package text extracts plain text, detecting and decoding its character set.
package text

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
)

// Name identifies the extractor.
const Name = "text.Extractor"

// Option keys read from the extraction context.
const (
	// OptMinConfidence is the lowest chardet confidence (1-100) accepted.
	OptMinConfidence = "minConfidence"
	// OptFallback names the charset used when detection is inconclusive.
	OptFallback = "fallbackCharset"
)

const (
	sniffSize            = 8 << 10
	defaultMinConfidence = 30
	defaultFallback      = "windows-1252"
)

// byteOrderMarks maps a leading BOM to its charset name.
var byteOrderMarks = []struct {
	bom     []byte
	charset string
}{
	{[]byte{0xEF, 0xBB, 0xBF}, "UTF-8"},
	{[]byte{0xFE, 0xFF}, "UTF-16BE"},
	{[]byte{0xFF, 0xFE}, "UTF-16LE"},
}

// Extractor reads text/plain streams.
type Extractor struct {
	detector *chardet.Detector
}

// New creates a plain-text extractor.
func New() *Extractor {
	return &Extractor{detector: chardet.NewTextDetector()}
}

// Name implements types.Extractor.
func (e *Extractor) Name() string { return Name }

// SupportedFormats implements types.Extractor.
func (e *Extractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(types.FormatText, "text/csv", "text/markdown", "text/x-log")
}

// Extract implements types.Extractor. Each run of non-blank lines becomes a
// paragraph.
func (e *Extractor) Extract(ctx context.Context, s *types.Stream, h sink.Handler, md *types.Metadata, ec *types.Context) error {
	head, err := s.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return &types.MalformedInputError{Err: err, Format: types.FormatText, Reason: "read header"}
	}

	declared := types.Format(md.Get(types.KeyContentType)).Param("charset")
	charset, enc := e.resolve(head, declared, ec)
	base := types.Format(md.Get(types.KeyContentType)).Base()
	if base.IsZero() {
		base = types.FormatText
	}
	md.Set(types.KeyContentType, string(base)+"; charset="+charset)
	md.Set(types.KeyEncoding, charset)
	ec.Logger().Debug("text charset",
		zap.String("charset", charset),
		zap.String("declared", declared))

	x := sink.NewXHTML(h)
	if err := x.StartDocument(); err != nil {
		return err
	}

	br := bufio.NewReader(transform.NewReader(s, enc.NewDecoder()))
	var para strings.Builder
	flush := func() error {
		if para.Len() == 0 {
			return nil
		}
		text := para.String()
		para.Reset()
		return x.Element("p", text)
	}
	first := true
	for {
		if err := ctx.Err(); err != nil {
			return &types.ResourceLimitError{Limit: "deadline", Err: err}
		}
		line, rerr := br.ReadString('\n')
		if first {
			line = strings.TrimPrefix(line, "\uFEFF")
			first = false
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return err
			}
		} else {
			if para.Len() > 0 {
				para.WriteByte('\n')
			}
			para.WriteString(line)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			if err := flush(); err != nil {
				return err
			}
			return &types.MalformedInputError{Err: rerr, Format: base, Reason: "decode " + charset}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	return x.EndDocument()
}

// resolve picks the charset: BOM, then a declared charset, then valid UTF-8,
// then chardet, then the fallback.
func (e *Extractor) resolve(head []byte, declared string, ec *types.Context) (string, encoding.Encoding) {
	for _, m := range byteOrderMarks {
		if bytes.HasPrefix(head, m.bom) {
			if enc := lookup(m.charset); enc != nil {
				return m.charset, enc
			}
		}
	}
	if declared != "" {
		if enc := lookup(declared); enc != nil {
			return declared, enc
		}
		ec.Logger().Debug("unknown declared charset", zap.String("charset", declared))
	}
	if validUTF8Prefix(head) {
		return "UTF-8", unicode.UTF8
	}

	minConf := ec.IntOption(Name, OptMinConfidence, defaultMinConfidence)
	if res, err := e.detector.DetectBest(head); err == nil && res.Confidence >= minConf {
		if enc := lookup(res.Charset); enc != nil {
			return res.Charset, enc
		}
	}

	fallback := defaultFallback
	if v, ok := ec.Option(Name, OptFallback); ok {
		fallback = v
	}
	if enc := lookup(fallback); enc != nil {
		return fallback, enc
	}
	return defaultFallback, lookup(defaultFallback)
}

// lookup resolves a charset label through the WHATWG index, then IANA.
func lookup(name string) encoding.Encoding {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, "GB-18030") {
		name = "gb18030"
	}
	if enc, err := htmlindex.Get(name); err == nil {
		return enc
	}
	if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
		return enc
	}
	return nil
}

// validUTF8Prefix reports whether head is UTF-8, allowing a rune cut off at
// the end of the sniffed window.
func validUTF8Prefix(head []byte) bool {
	if utf8.Valid(head) {
		return true
	}
	for cut := 1; cut < utf8.UTFMax && cut <= len(head); cut++ {
		if utf8.Valid(head[:len(head)-cut]) && !utf8.FullRune(head[len(head)-cut:]) {
			return true
		}
	}
	return false
}
