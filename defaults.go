package tika

import (
	"github.com/dameikle/tika/internal/archive"
	"github.com/dameikle/tika/internal/audio"
	"github.com/dameikle/tika/internal/flac"
	"github.com/dameikle/tika/internal/html"
	"github.com/dameikle/tika/internal/m4a"
	"github.com/dameikle/tika/internal/mail"
	"github.com/dameikle/tika/internal/mp3"
	"github.com/dameikle/tika/internal/office"
	"github.com/dameikle/tika/internal/ogg"
	"github.com/dameikle/tika/internal/ole"
	"github.com/dameikle/tika/internal/pdf"
	"github.com/dameikle/tika/internal/registry"
	"github.com/dameikle/tika/internal/subtitle"
	"github.com/dameikle/tika/internal/text"
	"github.com/dameikle/tika/internal/tmx"
	"github.com/dameikle/tika/internal/types"
)

// DefaultExtractors returns the built-in extractors in priority order.
//
// Specific formats come first and the text extractor last, since it accepts
// every text/* type the others have not claimed.
func DefaultExtractors() []types.Extractor {
	return []types.Extractor{
		audio.New(),
		flac.New(),
		ogg.New(),
		mp3.New(),
		m4a.New(),
		tmx.New(),
		archive.New(),
		mail.New(),
		mail.NewMbox(),
		html.New(),
		office.New(),
		pdf.New(),
		subtitle.New(),
		ole.New(),
		text.New(),
	}
}

// DefaultTranslators returns the built-in embedded-stream translators.
func DefaultTranslators() []types.Translator {
	return []types.Translator{
		ole.NewNativeTranslator(),
	}
}

func buildRegistry(o *options) *registry.Registry {
	b := registry.NewBuilder()
	for _, e := range o.extractors {
		b.Register(e)
	}
	for _, e := range DefaultExtractors() {
		b.Register(e)
	}
	for _, t := range o.translators {
		b.RegisterTranslator(t)
	}
	if o.defaultTranslators {
		for _, t := range DefaultTranslators() {
			b.RegisterTranslator(t)
		}
	}
	return b.Build()
}
