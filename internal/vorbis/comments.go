// Package vorbis provides shared Vorbis comment parsing.
//
// Vorbis comments are used by both FLAC and Ogg Vorbis streams. The format is
// identical: a vendor string followed by UTF-8 "KEY=VALUE" strings, all
// prefixed with little-endian 32-bit lengths.
package vorbis

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/dameikle/tika/internal/binary"
	"github.com/dameikle/tika/internal/types"
)

// Metadata keys written by this package.
const (
	KeyVendor   = "vorbis:vendor"
	KeyPrefix   = "vorbis:"
	KeyAlbum    = "xmpDM:album"
	KeyArtist   = "xmpDM:artist"
	KeyAlbumArt = "xmpDM:albumArtist"
	KeyComposer = "xmpDM:composer"
	KeyGenre    = "xmpDM:genre"
	KeyTrack    = "xmpDM:trackNumber"
	KeyDisc     = "xmpDM:discNumber"
	KeyDate     = "xmpDM:releaseDate"
	KeyComment  = "xmpDM:logComment"
	KeyRights   = "dc:rights"
)

// maxComments bounds the comment count read from one block.
const maxComments = 1 << 16

// commonKeys maps upper-cased comment names to metadata keys. Every comment
// is also kept under its raw vorbis:<KEY> name.
var commonKeys = map[string]string{
	"TITLE":       types.KeyTitle,
	"ARTIST":      KeyArtist,
	"ALBUM":       KeyAlbum,
	"ALBUMARTIST": KeyAlbumArt,
	"COMPOSER":    KeyComposer,
	"GENRE":       KeyGenre,
	"TRACKNUMBER": KeyTrack,
	"DISCNUMBER":  KeyDisc,
	"DATE":        KeyDate,
	"COMMENT":     KeyComment,
	"DESCRIPTION": types.KeyDescription,
	"COPYRIGHT":   KeyRights,
	"LANGUAGE":    types.KeyLanguage,
	"LANG":        types.KeyLanguage,
	"PUBLISHER":   "dc:publisher",
}

// Block is a decoded comment header.
type Block struct {
	Vendor   string
	Comments []string
}

// ReadBlock decodes a comment header body.
func ReadBlock(body []byte) (*Block, error) {
	r := binary.NewReaderLE(binary.NewBytesReader(body, "vorbis comment"), 0)
	vendorLen, err := binary.ReadValue[uint32](r, "vendor length")
	if err != nil {
		return nil, err
	}
	vendor, err := r.ReadString(int(vendorLen), "vendor string")
	if err != nil {
		return nil, err
	}
	count, err := binary.ReadValue[uint32](r, "comment count")
	if err != nil {
		return nil, err
	}
	if count > maxComments {
		return nil, errors.Errorf("comment count %d exceeds %d", count, maxComments)
	}

	b := &Block{Vendor: vendor, Comments: make([]string, 0, count)}
	for i := uint32(0); i < count; i++ {
		n, err := binary.ReadValue[uint32](r, "comment length")
		if err != nil {
			return b, errors.Wrapf(err, "comment %d", i)
		}
		c, err := r.ReadString(int(n), "comment")
		if err != nil {
			return b, errors.Wrapf(err, "comment %d", i)
		}
		b.Comments = append(b.Comments, c)
	}
	return b, nil
}

// Apply writes every comment of b into md.
func (b *Block) Apply(md *types.Metadata) error {
	if b.Vendor != "" {
		md.Set(KeyVendor, b.Vendor)
	}
	var bad []string
	for _, c := range b.Comments {
		if err := ParseComment(c, md); err != nil {
			bad = append(bad, c)
		}
	}
	if len(bad) > 0 {
		return errors.Errorf("%d comments without '=': %q", len(bad), bad)
	}
	return nil
}

// ParseComment parses a single "KEY=VALUE" comment into md. Names are
// case-insensitive. Repeated names, such as several ARTIST comments, add
// values rather than replacing them.
func ParseComment(comment string, md *types.Metadata) error {
	key, value, ok := strings.Cut(comment, "=")
	if !ok {
		return errors.Errorf("missing '=' in comment: %s", comment)
	}
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		return errors.Errorf("empty name in comment: %s", comment)
	}

	md.Add(KeyPrefix+key, value)
	if value == "" {
		return nil
	}
	if mapped, ok := commonKeys[key]; ok {
		md.Add(mapped, value)
	}
	// TRACKNUMBER is sometimes written as "5/12".
	if key == "TRACKNUMBER" {
		if _, total, ok := strings.Cut(value, "/"); ok && !md.Has(KeyPrefix+"TRACKTOTAL") {
			md.Set(KeyPrefix+"TRACKTOTAL", total)
		}
	}
	return nil
}
