package mp3

import (
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/dameikle/tika/internal/binary"
	"github.com/dameikle/tika/internal/types"
	"github.com/dameikle/tika/internal/vorbis"
)

const id3v1Len = 128

// genres are the ID3v1 genre names including the Winamp extensions.
var genres = []string{
	"Blues", "Classic Rock", "Country", "Dance", "Disco", "Funk", "Grunge",
	"Hip-Hop", "Jazz", "Metal", "New Age", "Oldies", "Other", "Pop", "R&B",
	"Rap", "Reggae", "Rock", "Techno", "Industrial", "Alternative", "Ska",
	"Death Metal", "Pranks", "Soundtrack", "Euro-Techno", "Ambient",
	"Trip-Hop", "Vocal", "Jazz+Funk", "Fusion", "Trance", "Classical",
	"Instrumental", "Acid", "House", "Game", "Sound Clip", "Gospel", "Noise",
	"AlternRock", "Bass", "Soul", "Punk", "Space", "Meditative",
	"Instrumental Pop", "Instrumental Rock", "Ethnic", "Gothic", "Darkwave",
	"Techno-Industrial", "Electronic", "Pop-Folk", "Eurodance", "Dream",
	"Southern Rock", "Comedy", "Cult", "Gangsta", "Top 40", "Christian Rap",
	"Pop/Funk", "Jungle", "Native American", "Cabaret", "New Wave",
	"Psychadelic", "Rave", "Showtunes", "Trailer", "Lo-Fi", "Tribal",
	"Acid Punk", "Acid Jazz", "Polka", "Retro", "Musical", "Rock & Roll",
	"Hard Rock", "Folk", "Folk-Rock", "National Folk", "Swing", "Fast Fusion",
	"Bebob", "Latin", "Revival", "Celtic", "Bluegrass", "Avantgarde",
	"Gothic Rock", "Progressive Rock", "Psychedelic Rock", "Symphonic Rock",
	"Slow Rock", "Big Band", "Chorus", "Easy Listening", "Acoustic", "Humour",
	"Speech", "Chanson", "Opera", "Chamber Music", "Sonata", "Symphony",
	"Booty Bass", "Primus", "Porn Groove", "Satire", "Slow Jam", "Club",
	"Tango", "Samba", "Folklore", "Ballad", "Power Ballad", "Rhythmic Soul",
	"Freestyle", "Duet", "Punk Rock", "Drum Solo", "A capella", "Euro-House",
	"Dance Hall",
}

// Genre returns the ID3v1 genre name for n, or "" when n is out of range.
func Genre(n int) string {
	if n >= 0 && n < len(genres) {
		return genres[n]
	}
	return ""
}

// v1Tag is an ID3v1 or ID3v1.1 trailer.
type v1Tag struct {
	Title, Artist, Album, Year, Comment string
	Track                               int // 0 when absent (ID3v1.0)
	Genre                               string
}

// readV1 reads the trailer in the last 128 bytes. ok is false when there
// is none.
func readV1(sr *binary.SafeReader) (*v1Tag, bool) {
	if sr.Size() < id3v1Len {
		return nil, false
	}
	buf := make([]byte, id3v1Len)
	if err := sr.ReadAt(buf, sr.Size()-id3v1Len, "ID3v1 tag"); err != nil || string(buf[:3]) != "TAG" {
		return nil, false
	}
	t := &v1Tag{
		Title:  v1String(buf[3:33]),
		Artist: v1String(buf[33:63]),
		Album:  v1String(buf[63:93]),
		Year:   v1String(buf[93:97]),
		Genre:  Genre(int(buf[127])),
	}
	comment := buf[97:127]
	// ID3v1.1 stores the track in the last comment byte after a zero.
	if comment[28] == 0 && comment[29] != 0 {
		t.Track = int(comment[29])
		comment = comment[:28]
	}
	t.Comment = v1String(comment)
	return t, true
}

// v1String decodes a fixed-width, NUL- or space-padded ISO-8859-1 field.
func v1String(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		b = b[:i]
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(s))
}

// apply fills the keys an ID3v2 tag did not already set.
func (t *v1Tag) apply(md *types.Metadata) {
	fields := []struct {
		key, value string
	}{
		{types.KeyTitle, t.Title},
		{vorbis.KeyArtist, t.Artist},
		{types.KeyCreator, t.Artist},
		{vorbis.KeyAlbum, t.Album},
		{vorbis.KeyDate, t.Year},
		{vorbis.KeyComment, t.Comment},
		{vorbis.KeyGenre, t.Genre},
	}
	if t.Track > 0 {
		fields = append(fields, struct{ key, value string }{vorbis.KeyTrack, strconv.Itoa(t.Track)})
	}
	for _, f := range fields {
		if f.value != "" && !md.Has(f.key) {
			md.Set(f.key, f.value)
		}
	}
}
