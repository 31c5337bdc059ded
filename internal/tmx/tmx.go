// Package tmx extracts Translation Memory eXchange documents.
//
// Each translation unit becomes a div and each of its variants a paragraph
// carrying the variant's language. Header attributes are copied into the
// metadata record under a "tmx:" prefix.
package tmx

import (
	"context"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
)

// Name identifies the extractor.
const Name = "tmx.Extractor"

// Metadata keys written by this package.
const (
	KeyPrefix       = "tmx:"
	KeyVersion      = "tmx:version"
	KeyUnits        = "tmx:translationUnits"
	KeyVariants     = "tmx:translationUnitVariants"
	KeySourceLang   = "tmx:srclang"
	KeyVariantLangs = "tmx:languages"
)

// maxHeaderAttrLen drops oversized header attribute values.
const maxHeaderAttrLen = 4 << 10

// Extractor reads TMX documents.
type Extractor struct{}

// New creates a TMX extractor.
func New() *Extractor {
	return &Extractor{}
}

// Name implements types.Extractor.
func (e *Extractor) Name() string { return Name }

// SupportedFormats implements types.Extractor.
func (e *Extractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(types.FormatTMX)
}

// Extract implements types.Extractor. The whole document is parsed before
// the first event, so malformed XML produces no content.
func (e *Extractor) Extract(_ context.Context, s *types.Stream, h sink.Handler, md *types.Metadata, ec *types.Context) error {
	doc, err := xmlquery.Parse(s)
	if err != nil {
		return &types.MalformedInputError{Err: err, Format: types.FormatTMX, Reason: "parse XML"}
	}
	root := xmlquery.FindOne(doc, "/tmx")
	if root == nil {
		return &types.UnsupportedFormatError{Format: types.FormatTMX, Reason: "no tmx root element"}
	}

	md.Set(types.KeyContentType, string(types.FormatTMX))
	if v := root.SelectAttr("version"); v != "" {
		md.Set(KeyVersion, v)
	}
	if header := root.SelectElement("header"); header != nil {
		for _, a := range header.Attr {
			if a.Value == "" || len(a.Value) > maxHeaderAttrLen {
				continue
			}
			md.Set(KeyPrefix+a.Name.Local, a.Value)
		}
	}

	x := sink.NewXHTML(h)
	if err := x.StartDocument(); err != nil {
		return err
	}

	units, variants := 0, 0
	langs := map[string]bool{}
	for _, tu := range xmlquery.Find(root, "body/tu") {
		units++
		var attrs []sink.Attr
		if id := tu.SelectAttr("tuid"); id != "" {
			attrs = append(attrs, sink.Attr{Name: "id", Value: id})
		}
		if err := x.Start("div", attrs...); err != nil {
			return err
		}
		for _, tuv := range tu.SelectElements("tuv") {
			variants++
			lang := variantLang(tuv)
			var seg string
			if n := tuv.SelectElement("seg"); n != nil {
				seg = strings.TrimSpace(n.InnerText())
			}
			var pattrs []sink.Attr
			if lang != "" {
				pattrs = append(pattrs, sink.Attr{Name: "lang", Value: lang})
				if !langs[lang] {
					langs[lang] = true
					md.Add(KeyVariantLangs, lang)
				}
			}
			if err := x.Element("p", seg, pattrs...); err != nil {
				return err
			}
		}
		if err := x.End("div"); err != nil {
			return err
		}
	}

	md.Set(KeyUnits, strconv.Itoa(units))
	md.Set(KeyVariants, strconv.Itoa(variants))
	ec.Logger().Debug("tmx document", zap.Int("units", units), zap.Int("variants", variants))
	return x.EndDocument()
}

// variantLang reads xml:lang, falling back to the TMX 1.1 lang attribute.
func variantLang(tuv *xmlquery.Node) string {
	if l := tuv.SelectAttr("xml:lang"); l != "" {
		return l
	}
	return tuv.SelectAttr("lang")
}
