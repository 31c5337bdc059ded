package vorbis

import (
	"bytes"
	"testing"
	"time"

	"github.com/dameikle/tika/internal/binary"
	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
)

func TestParseComment(t *testing.T) {
	tests := []struct {
		name    string
		comment string
		key     string
		want    string
	}{
		{"title", "TITLE=Test Song", types.KeyTitle, "Test Song"},
		{"artist", "ARTIST=Test Artist", KeyArtist, "Test Artist"},
		{"album", "ALBUM=Test Album", KeyAlbum, "Test Album"},
		{"album artist", "ALBUMARTIST=Various Artists", KeyAlbumArt, "Various Artists"},
		{"date", "DATE=2024-05-15", KeyDate, "2024-05-15"},
		{"track number", "TRACKNUMBER=5", KeyTrack, "5"},
		{"disc number", "DISCNUMBER=2", KeyDisc, "2"},
		{"genre", "GENRE=Rock", KeyGenre, "Rock"},
		{"composer", "COMPOSER=John Williams", KeyComposer, "John Williams"},
		{"comment", "COMMENT=Great album!", KeyComment, "Great album!"},
		{"description", "DESCRIPTION=Liner notes", types.KeyDescription, "Liner notes"},
		{"copyright", "COPYRIGHT=2024 Sony Music", KeyRights, "2024 Sony Music"},
		{"language", "LANGUAGE=en", types.KeyLanguage, "en"},
		{"lang", "LANG=English", types.KeyLanguage, "English"},
		{"lower-case name", "title=quiet", types.KeyTitle, "quiet"},
		{"value with equals", "COMMENT=x=y=z", KeyComment, "x=y=z"},
		{"raw tag", "TITLE=Test Song", "vorbis:TITLE", "Test Song"},
		{"unknown tag kept raw", "CUSTOMTAG=CustomValue", "vorbis:CUSTOMTAG", "CustomValue"},
		{"track total from pair", "TRACKNUMBER=5/12", "vorbis:TRACKTOTAL", "12"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			md := types.NewMetadata()
			if err := ParseComment(tc.comment, md); err != nil {
				t.Fatalf("ParseComment() error = %v", err)
			}
			if got := md.Get(tc.key); got != tc.want {
				t.Errorf("ParseComment(%q): %s = %q, want %q", tc.comment, tc.key, got, tc.want)
			}
		})
	}
}

func TestParseComment_RepeatedNamesAddValues(t *testing.T) {
	md := types.NewMetadata()
	for _, c := range []string{"GENRE=Rock", "GENRE=Alternative", "GENRE=Indie"} {
		if err := ParseComment(c, md); err != nil {
			t.Fatal(err)
		}
	}
	got := md.Values(KeyGenre)
	if len(got) != 3 || got[0] != "Rock" || got[1] != "Alternative" || got[2] != "Indie" {
		t.Errorf("Genres = %v, want [Rock Alternative Indie]", got)
	}
}

func TestParseComment_Invalid(t *testing.T) {
	for _, c := range []string{"NOEQUALSIGN", "=value", "  =value"} {
		md := types.NewMetadata()
		if err := ParseComment(c, md); err == nil {
			t.Errorf("ParseComment(%q) should return an error", c)
		}
		if md.Len() != 0 {
			t.Errorf("ParseComment(%q) wrote %v", c, md.Names())
		}
	}
}

func TestParseComment_EmptyValue(t *testing.T) {
	md := types.NewMetadata()
	if err := ParseComment("TITLE=", md); err != nil {
		t.Fatalf("ParseComment() error = %v, want nil for empty value", err)
	}
	if md.Has(types.KeyTitle) {
		t.Errorf("empty value mapped to %s", types.KeyTitle)
	}
	if !md.Has("vorbis:TITLE") {
		t.Error("raw tag with empty value not kept")
	}
}

func buildBlock(vendor string, comments ...string) []byte {
	buf := &bytes.Buffer{}
	sw := binary.NewSafeWriter(buf)
	_ = binary.WriteLE(sw, uint32(len(vendor)))
	_ = sw.WriteString(vendor)
	_ = binary.WriteLE(sw, uint32(len(comments)))
	for _, c := range comments {
		_ = binary.WriteLE(sw, uint32(len(c)))
		_ = sw.WriteString(c)
	}
	return buf.Bytes()
}

func TestReadBlock(t *testing.T) {
	body := buildBlock("reference libFLAC 1.4.3", "TITLE=Song", "ARTIST=Band", "BROKEN")
	b, err := ReadBlock(body)
	if err != nil {
		t.Fatalf("ReadBlock() error = %v", err)
	}
	if b.Vendor != "reference libFLAC 1.4.3" {
		t.Errorf("Vendor = %q", b.Vendor)
	}
	if len(b.Comments) != 3 {
		t.Fatalf("Comments = %v, want 3", b.Comments)
	}

	md := types.NewMetadata()
	if err := b.Apply(md); err == nil {
		t.Error("Apply() should report the comment without '='")
	}
	if md.Get(types.KeyTitle) != "Song" || md.Get(KeyArtist) != "Band" {
		t.Errorf("valid comments not applied: %v", md.Map())
	}
	if md.Get(KeyVendor) != "reference libFLAC 1.4.3" {
		t.Errorf("vendor = %q", md.Get(KeyVendor))
	}
}

func TestReadBlock_Truncated(t *testing.T) {
	body := buildBlock("v", "TITLE=Song", "ARTIST=Band")
	tests := []struct {
		name string
		cut  int
		kept int
	}{
		{"no vendor length", 2, 0},
		{"vendor cut", 6, 0},
		{"second comment cut", len(body) - 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ReadBlock(body[:tt.cut])
			if err == nil {
				t.Fatal("ReadBlock() should fail on a truncated block")
			}
			if tt.kept > 0 && (b == nil || len(b.Comments) != tt.kept) {
				t.Errorf("kept comments = %v, want %d", b, tt.kept)
			}
		})
	}
}

func TestReadBlock_CountBomb(t *testing.T) {
	buf := &bytes.Buffer{}
	sw := binary.NewSafeWriter(buf)
	_ = binary.WriteLE[uint32](sw, 0)
	_ = binary.WriteLE[uint32](sw, 0xFFFFFFFF)
	if _, err := ReadBlock(buf.Bytes()); err == nil {
		t.Error("ReadBlock() should reject an absurd comment count")
	}
}

func TestParseChapters(t *testing.T) {
	comments := []string{
		"CHAPTER002=00:05:23.500",
		"CHAPTER002NAME=The Beginning",
		"CHAPTER001=00:00:00.000",
		"CHAPTER001NAME=Introduction",
		"CHAPTER003=10:00",
		"CHAPTERXNAME=ignored",
		"CHAPTER004=bogus",
		"TITLE=not a chapter",
	}
	got := ParseChapters(comments, 20*time.Minute)
	if len(got) != 3 {
		t.Fatalf("ParseChapters() = %d chapters, want 3: %+v", len(got), got)
	}

	want := []Chapter{
		{Index: 1, Title: "Introduction", Start: 0, End: 5*time.Minute + 23500*time.Millisecond},
		{Index: 2, Title: "The Beginning", Start: 5*time.Minute + 23500*time.Millisecond, End: 10 * time.Minute},
		{Index: 3, Title: "Chapter 3", Start: 10 * time.Minute, End: 20 * time.Minute},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chapter %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseChapters_None(t *testing.T) {
	if got := ParseChapters([]string{"TITLE=x", "CHAPTER001NAME=no time"}, 0); got != nil {
		t.Errorf("ParseChapters() = %+v, want nil", got)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"01:02:03.500", time.Hour + 2*time.Minute + 3500*time.Millisecond, false},
		{"02:03", 2*time.Minute + 3*time.Second, false},
		{"7.25", 7250 * time.Millisecond, false},
		{"", 0, true},
		{"00:61:00", 0, true},
		{"1:2:3:4", 0, true},
		{"aa:00", 0, true},
	}
	for _, tt := range tests {
		got, err := parseTimestamp(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseTimestamp(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWriteChapters(t *testing.T) {
	rec := sink.NewRecorder()
	x := sink.NewXHTML(rec)
	if err := x.StartDocument(); err != nil {
		t.Fatal(err)
	}
	chapters := []Chapter{{Index: 1, Title: "Intro", Start: 83 * time.Second}}
	if err := WriteChapters(x, chapters); err != nil {
		t.Fatal(err)
	}
	if err := x.EndDocument(); err != nil {
		t.Fatal(err)
	}
	if !rec.Balanced() {
		t.Error("unbalanced chapter output")
	}

	var text string
	for _, e := range rec.Events() {
		if e.Kind == sink.EventCharacters {
			text += e.Text
		}
	}
	if text != "00:01:23.000 Intro" {
		t.Errorf("chapter text = %q", text)
	}
}
