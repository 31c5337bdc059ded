// Package mp3 extracts MPEG audio metadata.
//
// ID3v2.3 and ID3v2.4 tags supply the text frames, comments, lyrics and
// chapters, and every attached picture is handed to the driver as an
// embedded object. An ID3v1 trailer fills whatever the ID3v2 tag left
// unset. Sample rate, channels and duration come from the first audio
// frame and its Xing or VBRI header.
package mp3

import (
	"context"

	"go.uber.org/zap"

	"github.com/dameikle/tika/internal/audio"
	"github.com/dameikle/tika/internal/binary"
	"github.com/dameikle/tika/internal/flac"
	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
	"github.com/dameikle/tika/internal/vorbis"
)

// Name identifies the extractor.
const Name = "mp3.Extractor"

// Metadata keys written by this package.
const (
	KeyCompressor = flac.KeyCompressor
	KeyVersion    = "version"
	KeyPrefix     = "id3:"
)

var compressors = [...]string{"", "MP1", "MP2", "MP3"}

// Extractor reads ID3 tags and MPEG audio frame headers.
type Extractor struct{}

// New creates an MP3 extractor.
func New() *Extractor {
	return &Extractor{}
}

// Name implements types.Extractor.
func (e *Extractor) Name() string { return Name }

// SupportedFormats implements types.Extractor.
func (e *Extractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(types.FormatMP3, "audio/mp3", "audio/x-mpeg")
}

// Extract implements types.Extractor. The tag header and the first audio
// frame are located before any event is emitted.
func (e *Extractor) Extract(ctx context.Context, s *types.Stream, h sink.Handler, md *types.Metadata, ec *types.Context) error {
	log := ec.Logger()

	head, _ := s.Peek(tagHeaderLen)
	hasTag := len(head) >= 3 && string(head[:3]) == "ID3"
	if !hasTag && (len(head) < 2 || head[0] != 0xFF || head[1]&0xE0 != 0xE0) {
		return &types.UnsupportedFormatError{Format: types.FormatMP3, Reason: "no ID3v2 tag or MPEG frame sync"}
	}
	ra, err := s.ReaderAt()
	if err != nil {
		return &types.MalformedInputError{Err: err, Format: types.FormatMP3, Reason: "buffer stream"}
	}
	sr := binary.NewSafeReader(ra, ra.Size(), "mp3")

	var (
		t          *tag
		audioStart int64
	)
	if hasTag {
		if t, err = readTag(sr); err != nil {
			return &types.MalformedInputError{Err: err, Format: types.FormatMP3, Reason: "read ID3v2 tag"}
		}
		audioStart = t.header.Len()
	}
	v1, hasV1 := readV1(sr)
	audioEnd := sr.Size()
	if hasV1 {
		audioEnd -= id3v1Len
	}

	off, fh, ferr := findFrame(sr, audioStart, audioEnd)
	if ferr != nil && !hasTag {
		return &types.UnsupportedFormatError{Err: ferr, Format: types.FormatMP3, Reason: "find audio frame"}
	}

	hdr := audio.Header{Format: types.FormatMP3}
	vbr := false
	if ferr == nil {
		hdr.SampleRate = float64(fh.SampleRate)
		hdr.Channels = fh.Channels
		hdr.Frames, vbr = sampleFrames(sr, off, audioEnd, fh)
	}
	hdr.Apply(md)
	if ferr == nil {
		md.Set(KeyCompressor, compressors[fh.Layer])
		md.Set(KeyVersion, fh.VersionText())
	} else {
		warn(md, log, "audio frames", ferr)
	}

	c := &contents{}
	if t != nil {
		var errs []error
		c, errs = t.apply(md)
		for _, err := range errs {
			warn(md, log, "ID3v2 tag", err)
		}
	}
	if hasV1 {
		v1.apply(md)
	}

	x := sink.NewXHTML(h)
	if err := x.StartDocument(); err != nil {
		return err
	}
	if err := flac.WriteSummary(x, md); err != nil {
		return err
	}
	for _, lyrics := range c.lyrics {
		if err := x.Element("p", lyrics, sink.Attr{Name: "class", Value: "lyrics"}); err != nil {
			return err
		}
	}

	embedded := 0
	for _, pic := range c.pictures {
		if pic.MIMEType == flac.PictureLinkMIME {
			md.Add(flac.KeyPictureURL, string(pic.Data))
			continue
		}
		if err := flac.EmbedPicture(ctx, x, ec, pic, embedded); err != nil {
			return err
		}
		embedded++
	}

	if err := vorbis.WriteChapters(x, c.chapters); err != nil {
		return err
	}
	log.Debug("mp3 metadata",
		zap.Bool("id3v2", t != nil),
		zap.Bool("id3v1", hasV1),
		zap.Bool("vbr", vbr),
		zap.Int("pictures", embedded),
		zap.Int("chapters", len(c.chapters)))
	return x.EndDocument()
}

// warn records a damaged non-essential part on the stream's own record.
func warn(md *types.Metadata, log *zap.Logger, what string, err error) {
	err = &types.MalformedInputError{Err: err, Format: types.FormatMP3, Reason: "parse " + what}
	md.Add(types.WarningKey(types.MalformedInput), err.Error())
	log.Debug("skipping damaged MP3 part", zap.String("part", what), zap.Error(err))
}
