// Package html extracts HTML documents with goquery.
//
// Title, language and meta tags go into the metadata record. Block-level
// elements become events of the same name, and images inlined as data: URIs
// are handed over as embedded objects.
package html

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
)

// Name identifies the extractor.
const Name = "html.Extractor"

// KeyMetaPrefix prefixes meta tag names that have no Dublin Core mapping.
const KeyMetaPrefix = "meta:"

// blocks are the elements copied into the event stream. An element nested in
// another block is part of the outer element's text.
const blocks = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, dt, dd, td, th, caption, figcaption"

// metaKeys maps meta names onto Dublin Core keys.
var metaKeys = map[string]string{
	"description": types.KeyDescription,
	"author":      types.KeyCreator,
	"keywords":    types.KeySubject,
}

// Extractor reads HTML and XHTML.
type Extractor struct{}

// New creates an HTML extractor.
func New() *Extractor {
	return &Extractor{}
}

// Name implements types.Extractor.
func (e *Extractor) Name() string { return Name }

// SupportedFormats implements types.Extractor.
func (e *Extractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(types.FormatHTML, types.FormatXHTML)
}

// Extract implements types.Extractor.
func (e *Extractor) Extract(ctx context.Context, s *types.Stream, h sink.Handler, md *types.Metadata, ec *types.Context) error {
	format := types.Format(md.Get(types.KeyContentType))
	raw, err := s.Buffer()
	if err != nil {
		return &types.MalformedInputError{Err: err, Format: format.Base(), Reason: "read document"}
	}
	enc, name, _ := charset.DetermineEncoding(raw, string(format))
	body, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return &types.MalformedInputError{Err: err, Format: format.Base(), Reason: "decode " + name}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return &types.MalformedInputError{Err: err, Format: format.Base(), Reason: "parse HTML"}
	}
	md.Set(types.KeyEncoding, name)
	applyHead(doc, md)

	doc.Find("script, style, noscript, template").Remove()

	x := sink.NewXHTML(h)
	if err := x.StartDocument(); err != nil {
		return err
	}

	emitted := 0
	var werr error
	doc.Find("body").Find(blocks).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if sel.ParentsFiltered(blocks).Length() > 0 {
			return true
		}
		text := collapse(sel.Text())
		if text == "" {
			return true
		}
		emitted++
		werr = x.Element(goquery.NodeName(sel), text)
		return werr == nil
	})
	if werr != nil {
		return werr
	}
	if emitted == 0 {
		if text := collapse(doc.Find("body").Text()); text != "" {
			if err := x.Element("p", text); err != nil {
				return err
			}
		}
	}

	if err := embedImages(ctx, doc, x, md, ec); err != nil {
		return err
	}
	ec.Logger().Debug("html extracted", zap.String("charset", name), zap.Int("blocks", emitted))
	return x.EndDocument()
}

// applyHead copies the title, document language and meta tags into md.
func applyHead(doc *goquery.Document, md *types.Metadata) {
	if title := collapse(doc.Find("title").First().Text()); title != "" {
		md.Set(types.KeyTitle, title)
	}
	if lang, ok := doc.Find("html").Attr("lang"); ok && lang != "" {
		md.Set(types.KeyLanguage, lang)
	}
	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		content, ok := sel.Attr("content")
		if !ok || strings.TrimSpace(content) == "" {
			return
		}
		content = strings.TrimSpace(content)
		name := strings.ToLower(strings.TrimSpace(sel.AttrOr("name", sel.AttrOr("property", ""))))
		if name == "" {
			return
		}
		if key, ok := metaKeys[name]; ok {
			md.Add(key, content)
			return
		}
		md.Add(KeyMetaPrefix+name, content)
	})
}

// embedImages hands every data: URI image to the embedded-object callback.
func embedImages(ctx context.Context, doc *goquery.Document, x *sink.XHTML, md *types.Metadata, ec *types.Context) error {
	var err error
	index := 0
	doc.Find("img[src^='data:']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		mediaType, data, derr := decodeDataURI(sel.AttrOr("src", ""))
		if derr != nil {
			md.Add(types.WarningKey(types.MalformedInput), derr.Error())
			return true
		}
		child := types.NewMetadata()
		name := fmt.Sprintf("image-%d", index)
		if exts := types.Format(mediaType).Extensions(); len(exts) > 0 {
			name += exts[0]
		}
		index++
		child.Set(types.KeyResourceName, name)
		child.Set(types.KeyContentType, mediaType)
		if alt := strings.TrimSpace(sel.AttrOr("alt", "")); alt != "" {
			child.Set(types.KeyDescription, alt)
		}
		if err = x.Element("img", "", sink.Attr{Name: "src", Value: "embedded:" + name}); err != nil {
			return false
		}
		err = ec.Embed(ctx, bytes.NewReader(data), child)
		return err == nil
	})
	return err
}

// decodeDataURI parses "data:[<mediatype>][;base64],<data>".
func decodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, errors.New("not a data URI")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data URI without payload")
	}
	isBase64 := false
	if h, found := strings.CutSuffix(header, ";base64"); found {
		header, isBase64 = h, true
	}
	mediaType := header
	if mediaType == "" {
		mediaType = "text/plain;charset=US-ASCII"
	}
	if isBase64 {
		payload = strings.Map(func(r rune) rune {
			if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
				return -1
			}
			return r
		}, payload)
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if err != nil {
			return "", nil, errors.Wrap(err, "data URI")
		}
		return mediaType, data, nil
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, errors.Wrap(err, "data URI")
	}
	return mediaType, []byte(text), nil
}

// collapse trims text and folds whitespace runs into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
