package ole

import (
	"bytes"
	"io"

	"github.com/richardlehane/mscfb"

	"github.com/dameikle/tika/internal/types"
)

// TranslatorName identifies the Ole10Native translator.
const TranslatorName = "ole.Ole10NativeTranslator"

// KeyNativeLabel records the packager label of an unwrapped object.
const KeyNativeLabel = "ole:nativeLabel"

// NativeTranslator replaces a compound file carrying a packaged file in a
// top-level \x01Ole10Native stream with the packaged file itself, and names
// it after the file's original path.
type NativeTranslator struct{}

// NewNativeTranslator creates the Ole10Native translator.
func NewNativeTranslator() *NativeTranslator {
	return &NativeTranslator{}
}

// Name implements types.Translator.
func (t *NativeTranslator) Name() string { return TranslatorName }

// ShouldTranslate implements types.Translator. It only buffers streams that
// start with the compound file signature.
func (t *NativeTranslator) ShouldTranslate(s *types.Stream, _ *types.Metadata) (bool, error) {
	head, err := s.Peek(len(Magic))
	if err != nil || !bytes.Equal(head, Magic) {
		return false, nil
	}
	data, err := s.Buffer()
	if err != nil {
		return false, err
	}
	doc, err := open(bytes.NewReader(data))
	if err != nil {
		return false, nil
	}
	return topLevelNative(doc) != nil, nil
}

// Translate implements types.Translator.
func (t *NativeTranslator) Translate(s *types.Stream, md *types.Metadata) (io.Reader, error) {
	data, err := s.Buffer()
	if err != nil {
		return nil, &types.TranslationError{Err: err, Translator: TranslatorName, Reason: "buffer compound file"}
	}
	doc, err := open(bytes.NewReader(data))
	if err != nil {
		return nil, &types.TranslationError{Err: err, Translator: TranslatorName, Reason: "read compound file"}
	}
	f := topLevelNative(doc)
	if f == nil {
		return nil, &types.TranslationError{Translator: TranslatorName, Reason: "no Ole10Native stream"}
	}
	raw, err := readStream(f)
	if err != nil {
		return nil, &types.TranslationError{Err: err, Translator: TranslatorName, Reason: "read Ole10Native stream"}
	}
	n, err := ParseNative(raw)
	if err != nil {
		return nil, &types.TranslationError{Err: err, Translator: TranslatorName, Reason: "decode Ole10Native stream"}
	}
	if name := n.Name(); name != "" {
		md.Set(types.KeyResourceName, name)
		md.Remove(types.KeyContentType)
	}
	if n.Label != "" {
		md.Set(KeyNativeLabel, n.Label)
	}
	return bytes.NewReader(n.Data), nil
}

func topLevelNative(doc *mscfb.Reader) *mscfb.File {
	for _, f := range doc.File[1:] {
		if len(f.Path) == 0 && isNative(f) && !f.FileInfo().IsDir() {
			return f
		}
	}
	return nil
}
