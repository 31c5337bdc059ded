package mp3

import (
	"bytes"
	"cmp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/dameikle/tika/internal/audio"
	"github.com/dameikle/tika/internal/binary"
	"github.com/dameikle/tika/internal/flac"
	"github.com/dameikle/tika/internal/types"
	"github.com/dameikle/tika/internal/vorbis"
)

// Text encodings of ID3v2 string fields.
const (
	encLatin1  = 0
	encUTF16   = 1 // with BOM
	encUTF16BE = 2
	encUTF8    = 3
)

var decoders = map[byte]encoding.Encoding{
	encLatin1:  charmap.ISO8859_1,
	encUTF16:   unicode.UTF16(unicode.BigEndian, unicode.UseBOM),
	encUTF16BE: unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
	encUTF8:    unicode.UTF8,
}

// textKeys maps text frames onto common metadata keys. Every text frame is
// also recorded under KeyPrefix plus its ID.
var textKeys = map[string][]string{
	"TIT2": {types.KeyTitle},
	"TPE1": {vorbis.KeyArtist, types.KeyCreator},
	"TALB": {vorbis.KeyAlbum},
	"TPE2": {vorbis.KeyAlbumArt},
	"TCOM": {vorbis.KeyComposer},
	"TCON": {vorbis.KeyGenre},
	"TRCK": {vorbis.KeyTrack},
	"TPOS": {vorbis.KeyDisc},
	"TYER": {vorbis.KeyDate},
	"TDRC": {vorbis.KeyDate},
	"TCOP": {vorbis.KeyRights},
	"TPUB": {"dc:publisher"},
	"TLAN": {types.KeyLanguage},
	"TSSE": {audio.KeyCreatorTool},
}

// contents is what a tag yields besides metadata.
type contents struct {
	pictures []*flac.Picture
	chapters []vorbis.Chapter
	lyrics   []string
}

// apply writes the tag's frames into md. Frames that cannot be decoded are
// returned as errors and do not stop the others.
func (t *tag) apply(md *types.Metadata) (*contents, []error) {
	c := &contents{}
	errs := slices.Clone(t.errs)
	for _, f := range t.frames {
		if err := c.applyFrame(md, f, t.header.Version); err != nil {
			errs = append(errs, errors.Wrapf(err, "frame %s", f.ID))
		}
	}
	slices.SortStableFunc(c.chapters, func(a, b vorbis.Chapter) int {
		return cmp.Compare(a.Start, b.Start)
	})
	for i := range c.chapters {
		c.chapters[i].Index = i + 1
	}
	return c, errs
}

func (c *contents) applyFrame(md *types.Metadata, f frame, version byte) error {
	switch {
	case f.ID == "TXXX":
		desc, values, err := describedText(f.Data)
		if err != nil {
			return err
		}
		for _, v := range values {
			md.Add(KeyPrefix+"TXXX:"+desc, v)
		}
	case f.ID[0] == 'T':
		values, err := textValues(f.Data)
		if err != nil {
			return err
		}
		for _, v := range values {
			md.Add(KeyPrefix+f.ID, v)
			if f.ID == "TCON" {
				v = genreName(v)
			}
			for _, key := range textKeys[f.ID] {
				md.Add(key, v)
			}
		}
	case f.ID == "COMM":
		desc, text, err := languageText(f.Data)
		if err != nil {
			return err
		}
		// iTunes stores normalisation and gapless data as comments.
		if text != "" && !strings.HasPrefix(desc, "iTun") {
			md.Add(vorbis.KeyComment, text)
		}
	case f.ID == "USLT":
		_, text, err := languageText(f.Data)
		if err != nil {
			return err
		}
		if text != "" {
			c.lyrics = append(c.lyrics, text)
		}
	case f.ID == "APIC":
		pic, err := parseAPIC(f.Data)
		if err != nil {
			return err
		}
		c.pictures = append(c.pictures, pic)
	case f.ID == "CHAP":
		ch, err := parseChapter(f.Data, version)
		if err != nil {
			return err
		}
		c.chapters = append(c.chapters, ch)
	}
	return nil
}

// textValues decodes a text frame body: an encoding byte followed by one or
// more terminated strings. Empty values are dropped.
func textValues(data []byte) ([]string, error) {
	if len(data) < 1 {
		return nil, errors.New("empty text frame")
	}
	enc := data[0]
	var out []string
	for _, part := range splitTerminated(data[1:], enc) {
		s, err := decodeText(part, enc)
		if err != nil {
			return out, err
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// describedText decodes a TXXX body: encoding, description, value(s).
func describedText(data []byte) (string, []string, error) {
	values, err := textValues(data)
	if err != nil {
		return "", nil, err
	}
	if len(values) == 0 {
		return "", nil, errors.New("TXXX frame without description")
	}
	return values[0], values[1:], nil
}

// languageText decodes a COMM or USLT body:
//
//	[1 byte]              Text encoding
//	[3 bytes]             Language
//	[terminated]          Short description
//	[remaining]           Text
func languageText(data []byte) (desc, text string, err error) {
	if len(data) < 4 {
		return "", "", errors.New("frame too short")
	}
	enc := data[0]
	body := data[4:]
	end := findTerminator(body, enc)
	if end < 0 {
		// No terminator: treat everything as the text.
		text, err = decodeText(body, enc)
		return "", strings.TrimSpace(text), err
	}
	if desc, err = decodeText(body[:end], enc); err != nil {
		return "", "", err
	}
	text, err = decodeText(body[end+terminatorSize(enc):], enc)
	return desc, strings.TrimSpace(strings.TrimRight(text, "\x00")), err
}

// parseAPIC parses an APIC (Attached Picture) frame:
//
//	[1 byte]              Text encoding
//	[null-terminated]     MIME type
//	[1 byte]              Picture type
//	[terminated]          Description
//	[remaining]           Picture data
func parseAPIC(data []byte) (*flac.Picture, error) {
	if len(data) < 4 {
		return nil, errors.New("APIC frame too short")
	}
	enc := data[0]
	pos := 1
	mimeEnd := bytes.IndexByte(data[pos:], 0)
	if mimeEnd < 0 {
		return nil, errors.New("APIC MIME type not null-terminated")
	}
	mime := strings.ToLower(string(data[pos : pos+mimeEnd]))
	pos += mimeEnd + 1
	if pos >= len(data) {
		return nil, errors.New("APIC frame truncated after MIME type")
	}
	p := &flac.Picture{Type: uint32(data[pos])}
	pos++

	descEnd := findTerminator(data[pos:], enc)
	if descEnd < 0 {
		return nil, errors.New("APIC description not terminated")
	}
	desc, err := decodeText(data[pos:pos+descEnd], enc)
	if err != nil {
		return nil, err
	}
	p.Description = desc
	pos += descEnd + terminatorSize(enc)
	if pos >= len(data) {
		return nil, errors.New("APIC frame has no image data")
	}
	p.Data = data[pos:]

	// Older writers store "JPG", "PNG" or nothing; the bytes decide.
	switch {
	case mime == flac.PictureLinkMIME:
		p.MIMEType = mime
	case mime == "image/jpg":
		p.MIMEType = "image/jpeg"
	case strings.Contains(mime, "/"):
		p.MIMEType = mime
	default:
		if m := mimetype.Detect(p.Data); !m.Is("application/octet-stream") {
			p.MIMEType = m.String()
		}
	}
	return p, nil
}

// parseChapter parses a CHAP frame:
//
//	[null-terminated]     Element ID
//	[4 bytes]             Start time (ms)
//	[4 bytes]             End time (ms)
//	[4 bytes]             Start offset
//	[4 bytes]             End offset
//	[remaining]           Embedded frames
//
// The title comes from an embedded TIT2 frame, else the element ID.
func parseChapter(data []byte, version byte) (vorbis.Chapter, error) {
	idEnd := bytes.IndexByte(data, 0)
	if idEnd < 0 {
		return vorbis.Chapter{}, errors.New("CHAP element ID not terminated")
	}
	elementID := string(data[:idEnd])
	data = data[idEnd+1:]
	if len(data) < 16 {
		return vorbis.Chapter{}, errors.New("CHAP frame truncated")
	}
	start := binary.Decode[uint32](data[0:4], binary.BigEndian)
	end := binary.Decode[uint32](data[4:8], binary.BigEndian)

	ch := vorbis.Chapter{
		Title: elementID,
		Start: time.Duration(start) * time.Millisecond,
		End:   time.Duration(end) * time.Millisecond,
	}
	sub, _ := parseFrames(data[16:], version)
	for _, f := range sub {
		if f.ID != "TIT2" {
			continue
		}
		if values, err := textValues(f.Data); err == nil && len(values) > 0 {
			ch.Title = values[0]
		}
	}
	return ch, nil
}

// decodeText decodes a string field without its terminator.
func decodeText(data []byte, enc byte) (string, error) {
	d, ok := decoders[enc]
	if !ok {
		return "", errors.Errorf("unknown text encoding %d", enc)
	}
	if len(data) == 0 {
		return "", nil
	}
	out, err := d.NewDecoder().Bytes(data)
	if err != nil {
		return "", errors.Wrap(err, "decode text")
	}
	return string(out), nil
}

// splitTerminated splits data at every terminator of the encoding. A
// trailing terminator does not produce an empty final part.
func splitTerminated(data []byte, enc byte) [][]byte {
	var parts [][]byte
	for len(data) > 0 {
		end := findTerminator(data, enc)
		if end < 0 {
			parts = append(parts, data)
			break
		}
		parts = append(parts, data[:end])
		data = data[end+terminatorSize(enc):]
	}
	return parts
}

// findTerminator finds the null terminator for the encoding. UTF-16
// terminators are two zero bytes on a code unit boundary.
func findTerminator(data []byte, enc byte) int {
	if terminatorSize(enc) == 1 {
		return bytes.IndexByte(data, 0)
	}
	for i := 0; i+1 < len(data); i += 2 {
		if data[i] == 0 && data[i+1] == 0 {
			return i
		}
	}
	return -1
}

func terminatorSize(enc byte) int {
	if enc == encUTF16 || enc == encUTF16BE {
		return 2
	}
	return 1
}

// genreName resolves ID3v1 genre references in a TCON value: "(17)",
// "17", "(17)Rock" and the "(RX)" and "(CR)" keywords.
func genreName(v string) string {
	if rest, ok := strings.CutPrefix(v, "("); ok {
		ref, text, found := strings.Cut(rest, ")")
		if found && text != "" {
			return text
		}
		switch ref {
		case "RX":
			return "Remix"
		case "CR":
			return "Cover"
		}
		v = ref
	}
	if n, err := strconv.Atoi(v); err == nil {
		if name := Genre(n); name != "" {
			return name
		}
	}
	return v
}
