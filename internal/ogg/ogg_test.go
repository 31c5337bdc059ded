package ogg

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dameikle/tika/internal/audio"
	"github.com/dameikle/tika/internal/binary"
	"github.com/dameikle/tika/internal/flac"
	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
	"github.com/dameikle/tika/internal/vorbis"
)

const (
	testSerial  = 0x1234
	noGranule   = ^uint64(0)
	testVendor  = "Lavf60.3.100"
	otherSerial = 0x9999
)

// page builds one Ogg page. The CRC field is left zero.
func page(flags byte, granule uint64, serial, seq uint32, lacing, data []byte) []byte {
	buf := &bytes.Buffer{}
	sw := binary.NewSafeWriter(buf)
	_ = sw.WriteString("OggS")
	_ = binary.Write[uint8](sw, 0)
	_ = binary.Write(sw, flags)
	_ = binary.WriteLE(sw, granule)
	_ = binary.WriteLE(sw, serial)
	_ = binary.WriteLE(sw, seq)
	_ = binary.WriteLE[uint32](sw, 0)
	_ = binary.Write(sw, uint8(len(lacing)))
	_ = sw.WriteBytes(lacing)
	_ = sw.WriteBytes(data)
	return buf.Bytes()
}

// lace returns the lacing values of one complete packet.
func lace(n int) []byte {
	out := bytes.Repeat([]byte{255}, n/255)
	return append(out, byte(n%255))
}

// packetPage wraps a single complete packet in its own page.
func packetPage(flags byte, granule uint64, seq uint32, pkt []byte) []byte {
	return page(flags, granule, testSerial, seq, lace(len(pkt)), pkt)
}

func vorbisIdent(channels uint8, rate uint32, nominal int32) []byte {
	buf := &bytes.Buffer{}
	sw := binary.NewSafeWriter(buf)
	_ = sw.WriteBytes(vorbisIdentMagic)
	_ = binary.WriteLE[uint32](sw, 0)
	_ = binary.Write(sw, channels)
	_ = binary.WriteLE(sw, rate)
	_ = binary.WriteLE[uint32](sw, 0)
	_ = binary.WriteLE(sw, uint32(nominal))
	_ = binary.WriteLE[uint32](sw, 0)
	_ = binary.Write[uint8](sw, 0xB8)
	_ = binary.Write[uint8](sw, 1)
	return buf.Bytes()
}

func opusHead(channels uint8, preSkip uint16, inputRate uint32, gain int16) []byte {
	buf := &bytes.Buffer{}
	sw := binary.NewSafeWriter(buf)
	_ = sw.WriteBytes(opusHeadMagic)
	_ = binary.Write[uint8](sw, 1)
	_ = binary.Write(sw, channels)
	_ = binary.WriteLE(sw, preSkip)
	_ = binary.WriteLE(sw, inputRate)
	_ = binary.WriteLE(sw, uint16(gain))
	_ = binary.Write[uint8](sw, 0)
	return buf.Bytes()
}

func commentPacket(magic []byte, comments ...string) []byte {
	buf := &bytes.Buffer{}
	sw := binary.NewSafeWriter(buf)
	_ = sw.WriteBytes(magic)
	_ = binary.WriteLE(sw, uint32(len(testVendor)))
	_ = sw.WriteString(testVendor)
	_ = binary.WriteLE(sw, uint32(len(comments)))
	for _, c := range comments {
		_ = binary.WriteLE(sw, uint32(len(c)))
		_ = sw.WriteString(c)
	}
	if bytes.Equal(magic, vorbisCommentMagic) {
		_ = binary.Write[uint8](sw, 1)
	}
	return buf.Bytes()
}

// pictureComment encodes a FLAC PICTURE block as a comment.
func pictureValue(kind uint32, mime string, data []byte) string {
	buf := &bytes.Buffer{}
	sw := binary.NewSafeWriter(buf)
	_ = binary.Write(sw, kind)
	_ = binary.Write(sw, uint32(len(mime)))
	_ = sw.WriteString(mime)
	_ = binary.Write[uint32](sw, 0)
	_ = binary.Write[uint32](sw, 300)
	_ = binary.Write[uint32](sw, 300)
	_ = binary.Write[uint32](sw, 24)
	_ = binary.Write[uint32](sw, 0)
	_ = binary.Write(sw, uint32(len(data)))
	_ = sw.WriteBytes(data)
	return pictureComment + "=" + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// stream lays out an identification packet, a comment packet and one audio
// page ending at the given granule.
func stream(ident, comments []byte, granule uint64) []byte {
	var out []byte
	out = append(out, packetPage(flagBOS, 0, 0, ident)...)
	out = append(out, packetPage(0, 0, 1, comments)...)
	out = append(out, packetPage(flagEOS, granule, 2, []byte("audio data"))...)
	return out
}

type embedCall struct {
	data []byte
	md   *types.Metadata
}

func run(t *testing.T, data []byte) (*types.Metadata, *sink.Recorder, []embedCall, error) {
	t.Helper()
	var calls []embedCall
	ec := types.NewContext(nil).WithEmbedder(func(_ context.Context, r io.Reader, md *types.Metadata) error {
		b, err := io.ReadAll(r)
		require.NoError(t, err)
		calls = append(calls, embedCall{data: b, md: md})
		return nil
	})
	md := types.NewMetadata()
	rec := sink.NewRecorder()
	err := New().Extract(context.Background(), types.NewStream(bytes.NewReader(data)), rec, md, ec)
	return md, rec, calls, err
}

func text(rec *sink.Recorder) []string {
	var out []string
	for _, e := range rec.Events() {
		if e.Kind == sink.EventCharacters {
			out = append(out, e.Text)
		}
	}
	return out
}

func TestExtract_Vorbis(t *testing.T) {
	data := stream(
		vorbisIdent(2, 44100, 128000),
		commentPacket(vorbisCommentMagic, "TITLE=Night Drive", "ARTIST=The Band", "ALBUM=Roads", "GENRE=Synth"),
		88200,
	)
	md, rec, calls, err := run(t, data)
	require.NoError(t, err)
	assert.Empty(t, calls)

	assert.Equal(t, string(types.FormatVorbis), md.Get(types.KeyContentType))
	assert.Equal(t, "Vorbis", md.Get(KeyCompressor))
	assert.Equal(t, "2", md.Get(audio.KeyChannels))
	assert.Equal(t, "44100.0", md.Get(audio.KeySampleRate))
	assert.Equal(t, "2", md.Get(audio.KeyDuration))
	assert.Equal(t, "128000", md.Get(KeyNominalBitrate))
	assert.False(t, md.Has(KeyInputSampleRate))

	assert.Equal(t, "Night Drive", md.Get(types.KeyTitle))
	assert.Equal(t, "The Band", md.Get(vorbis.KeyArtist))
	assert.Equal(t, testVendor, md.Get(vorbis.KeyVendor))

	assert.True(t, rec.Balanced())
	assert.Equal(t, []string{"Night Drive", "The Band", "Roads"}, text(rec))
}

func TestExtract_Opus(t *testing.T) {
	data := stream(
		opusHead(1, 312, 44100, -512),
		commentPacket(opusTagsMagic, "TITLE=Spoken"),
		48000+312,
	)
	md, rec, _, err := run(t, data)
	require.NoError(t, err)

	assert.Equal(t, string(types.FormatOpus), md.Get(types.KeyContentType))
	assert.Equal(t, "Opus", md.Get(KeyCompressor))
	assert.Equal(t, "48000.0", md.Get(audio.KeySampleRate))
	assert.Equal(t, "1", md.Get(audio.KeyDuration))
	assert.Equal(t, "44100", md.Get(KeyInputSampleRate))
	assert.Equal(t, "-2.00", md.Get(KeyOutputGain))
	assert.False(t, md.Has(KeyNominalBitrate))
	assert.Equal(t, []string{"Spoken"}, text(rec))
}

func TestExtract_PicturesAreEmbedded(t *testing.T) {
	cover := []byte("\x89PNG\r\n\x1a\n cover")
	data := stream(
		vorbisIdent(2, 48000, -1),
		commentPacket(vorbisCommentMagic,
			"TITLE=With Art",
			pictureValue(3, "image/png", cover),
			pictureValue(0, flac.PictureLinkMIME, []byte("http://example.com/a.jpg")),
			pictureComment+"=!!not base64!!",
		),
		48000,
	)
	md, rec, calls, err := run(t, data)
	require.NoError(t, err)
	require.Len(t, calls, 1)

	assert.Equal(t, cover, calls[0].data)
	assert.Equal(t, "picture-0.png", calls[0].md.Get(types.KeyResourceName))
	assert.Equal(t, "Front cover", calls[0].md.Get(flac.KeyPictureType))
	assert.Equal(t, "http://example.com/a.jpg", md.Get(flac.KeyPictureURL))
	assert.False(t, md.Has(vorbis.KeyPrefix+pictureComment), "pictures are not copied as comments")
	assert.Len(t, md.Values(types.WarningKey(types.MalformedInput)), 1)
	assert.Equal(t, []string{"With Art", "picture-0.png"}, text(rec))
	assert.True(t, rec.Balanced())
}

func TestExtract_Chapters(t *testing.T) {
	data := stream(
		vorbisIdent(2, 44100, 0),
		commentPacket(vorbisCommentMagic, "CHAPTER001=00:00:00.000", "CHAPTER001NAME=Intro", "CHAPTER002=00:00:01.500"),
		44100*3,
	)
	_, rec, _, err := run(t, data)
	require.NoError(t, err)
	assert.Equal(t, []string{"00:00:00.000 Intro", "00:00:01.500 Chapter 2"}, text(rec))
}

func TestExtract_PacketSpansPages(t *testing.T) {
	long := "COMMENT=" + string(bytes.Repeat([]byte("x"), 400))
	comments := commentPacket(vorbisCommentMagic, "TITLE=Split", long)
	require.Greater(t, len(comments), 255)

	var data []byte
	data = append(data, packetPage(flagBOS, 0, 0, vorbisIdent(1, 8000, 0))...)
	data = append(data, page(0, noGranule, testSerial, 1, []byte{255}, comments[:255])...)
	data = append(data, page(flagBOS, 0, otherSerial, 0, []byte{4}, []byte("skip"))...)
	data = append(data, page(flagContinued, 0, testSerial, 2, lace(len(comments)-255), comments[255:])...)
	data = append(data, packetPage(flagEOS, 8000, 3, []byte("audio"))...)

	md, _, _, err := run(t, data)
	require.NoError(t, err)
	assert.Equal(t, "Split", md.Get(types.KeyTitle))
	assert.Len(t, md.Get(vorbis.KeyComment), 400)
	assert.Equal(t, "1", md.Get(audio.KeyDuration))
}

func TestExtract_DamagedCommentsAreWarnings(t *testing.T) {
	comments := commentPacket(vorbisCommentMagic, "TITLE=Kept")
	comments[len(vorbisCommentMagic)+4+len(testVendor)] = 2 // claims a second comment
	data := stream(vorbisIdent(2, 44100, 0), comments, 44100)

	md, rec, _, err := run(t, data)
	require.NoError(t, err)
	assert.True(t, rec.Balanced())
	assert.Equal(t, "Kept", md.Get(types.KeyTitle))
	assert.Len(t, md.Values(types.WarningKey(types.MalformedInput)), 1)
}

func TestExtract_Unsupported(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"wrong magic", []byte("fLaC\x00\x00\x00\x22")},
		{"truncated page", []byte("OggS\x00\x02")},
		{"no BOS flag", packetPage(0, 0, 0, vorbisIdent(2, 44100, 0))},
		{"unknown codec", packetPage(flagBOS, 0, 0, []byte("\x80theora-header-bytes"))},
		{"zero sample rate", packetPage(flagBOS, 0, 0, vorbisIdent(2, 0, 0))},
		{"short OpusHead", packetPage(flagBOS, 0, 0, opusHead(2, 0, 48000, 0)[:12])},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rec, _, err := run(t, tt.data)
			require.Error(t, err)
			assert.Equal(t, types.UnsupportedFormat, types.ConditionOf(err))
			assert.Equal(t, 0, rec.Len())
		})
	}
}

func TestExtract_MissingCommentHeader(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"no second page", packetPage(flagBOS, 0, 0, vorbisIdent(2, 44100, 0))},
		{"wrong packet", stream(vorbisIdent(2, 44100, 0), []byte("\x05vorbis setup"), 0)},
		{"opus with vorbis comments", stream(opusHead(2, 0, 0, 0), commentPacket(vorbisCommentMagic), 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rec, _, err := run(t, tt.data)
			require.Error(t, err)
			assert.Equal(t, types.MalformedInput, types.ConditionOf(err))
			assert.Equal(t, 0, rec.Len())
		})
	}
}

func TestLastGranule(t *testing.T) {
	var data []byte
	data = append(data, packetPage(flagBOS, 0, 0, []byte("a"))...)
	data = append(data, packetPage(0, 1000, 1, []byte("b"))...)
	data = append(data, page(0, 5000, otherSerial, 0, []byte{1}, []byte("c"))...)
	data = append(data, page(0, noGranule, testSerial, 2, []byte{255}, bytes.Repeat([]byte{0}, 255))...)

	g, err := lastGranule(binary.NewBytesReader(data, "ogg"), testSerial)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), g, "pages of other streams and pages without a granule are skipped")

	_, err = lastGranule(binary.NewBytesReader([]byte("nothing here"), "ogg"), testSerial)
	assert.Error(t, err)
}
