// Package m4a extracts MPEG-4 and QuickTime metadata.
//
// The atom tree is walked without reading media data. The iTunes ilst
// atom supplies the tags and cover art, the movie and sound track headers
// the audio properties, and a QuickTime chapter track or a Nero chpl atom
// the chapter list. Cover art is handed to the driver as embedded objects.
package m4a

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dameikle/tika/internal/audio"
	"github.com/dameikle/tika/internal/binary"
	"github.com/dameikle/tika/internal/flac"
	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
	"github.com/dameikle/tika/internal/vorbis"
)

// Name identifies the extractor.
const Name = "m4a.Extractor"

// Metadata keys written by this package.
const (
	KeyCompressor = flac.KeyCompressor
	KeyPrefix     = "itunes:"
	KeyBrand      = "mp4:majorBrand"
	KeyProfile    = "mp4:audioProfile"
	KeyBitrate    = "mp4:averageBitrate"
	KeyHandler    = "mp4:trackHandler"
)

// Extractor reads the atom tree of MPEG-4 files.
type Extractor struct{}

// New creates an MPEG-4 extractor.
func New() *Extractor {
	return &Extractor{}
}

// Name implements types.Extractor.
func (e *Extractor) Name() string { return Name }

// SupportedFormats implements types.Extractor.
func (e *Extractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(types.FormatM4A, "audio/x-m4a", types.FormatMP4, types.FormatQuickTime)
}

// contents are the parts of the file emitted as events.
type contents struct {
	pictures []*flac.Picture
	chapters []vorbis.Chapter
	lyrics   []string
}

// Extract implements types.Extractor. The ftyp and moov atoms are located
// before any event is emitted.
func (e *Extractor) Extract(ctx context.Context, s *types.Stream, h sink.Handler, md *types.Metadata, ec *types.Context) error {
	log := ec.Logger()

	head, _ := s.Peek(12)
	if len(head) < 12 || (string(head[4:8]) != "ftyp" && string(head[4:8]) != "moov" && string(head[4:8]) != "wide") {
		return &types.UnsupportedFormatError{Format: types.FormatM4A, Reason: "no ftyp or moov atom"}
	}
	ra, err := s.ReaderAt()
	if err != nil {
		return &types.MalformedInputError{Err: err, Format: types.FormatM4A, Reason: "buffer stream"}
	}
	sr := binary.NewSafeReader(ra, ra.Size(), "m4a")

	var brand string
	if string(head[4:8]) == "ftyp" {
		brand = string(head[8:12])
	}
	moov, err := findAtom(sr, 0, sr.Size(), "moov")
	if err != nil {
		var offset int64
		var oob *types.OutOfBoundsError
		if errors.As(err, &oob) {
			offset = oob.Offset
		}
		return &types.MalformedInputError{Err: err, Format: types.FormatM4A, Reason: "find moov atom", Offset: offset}
	}

	tracks, errs := readTracks(sr, moov)
	for _, err := range errs {
		warn(md, log, "tracks", err)
	}

	hdr := audio.Header{Format: contentType(brand, tracks)}
	total := movieDuration(sr, moov, md, log)
	var sound *soundInfo
	for _, t := range tracks {
		if t.Handler != "soun" || t.Entry == nil {
			continue
		}
		info, err := readSoundEntry(sr, t.Entry)
		if err != nil {
			warn(md, log, "sound sample entry", err)
			break
		}
		sound = &info
		hdr.Channels = info.Channels
		hdr.Bits = info.Bits
		hdr.SampleRate = info.SampleRate
		if t.Timing.Timescale > 0 && t.Timing.Units > 0 {
			total = t.Timing.Duration()
		}
		break
	}
	if hdr.SampleRate > 0 {
		hdr.Frames = int64(math.Round(total.Seconds() * hdr.SampleRate))
	}
	hdr.Apply(md)
	if hdr.SampleRate == 0 && total > 0 {
		md.Set(audio.KeyDuration, audio.DurationText(total))
	}
	if brand != "" {
		md.Set(KeyBrand, brand)
	}
	for _, t := range tracks {
		md.Add(KeyHandler, t.Handler)
	}
	if sound != nil {
		md.Set(KeyCompressor, sound.Codec)
		if sound.esds.Profile != "" {
			md.Set(KeyProfile, sound.esds.Profile)
		}
		if sound.esds.AvgBitrate > 0 {
			md.Set(KeyBitrate, formatUint(sound.esds.AvgBitrate))
		}
	}

	c := &contents{}
	if ilst, err := findPath(sr, moov, "udta", "meta", "ilst"); err == nil {
		items, errs := readItems(sr, ilst)
		errs = append(errs, c.applyItems(md, items)...)
		for _, err := range errs {
			warn(md, log, "iTunes tags", err)
		}
	} else if !errors.Is(err, errNotFound) {
		warn(md, log, "iTunes tags", err)
	}

	if c.chapters, err = readChapters(sr, moov, tracks, total); err != nil {
		warn(md, log, "chapters", err)
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
	for i, pic := range c.pictures {
		if err := flac.EmbedPicture(ctx, x, ec, pic, i); err != nil {
			return err
		}
	}
	if err := vorbis.WriteChapters(x, c.chapters); err != nil {
		return err
	}
	log.Debug("mp4 metadata",
		zap.String("brand", brand),
		zap.Int("tracks", len(tracks)),
		zap.Int("pictures", len(c.pictures)),
		zap.Int("chapters", len(c.chapters)))
	return x.EndDocument()
}

// contentType names the file from its major brand, or from its tracks when
// the brand is generic.
func contentType(brand string, tracks []*track) types.Format {
	switch brand {
	case "M4A ", "M4B ", "M4P ":
		return types.FormatM4A
	case "qt  ":
		return types.FormatQuickTime
	}
	for _, t := range tracks {
		if t.Handler == "vide" {
			return types.FormatMP4
		}
	}
	return types.FormatM4A
}

// movieDuration reads mvhd. Failures are warnings since track headers may
// still supply a duration.
func movieDuration(sr *binary.SafeReader, moov *Atom, md *types.Metadata, log *zap.Logger) time.Duration {
	mvhd, err := findAtom(sr, moov.DataOffset(), moov.End(), "mvhd")
	if err != nil {
		warn(md, log, "movie header", err)
		return 0
	}
	t, err := readTiming(sr, mvhd)
	if err != nil {
		warn(md, log, "movie header", err)
		return 0
	}
	return t.Duration()
}

func formatUint(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}

// warn records a damaged non-essential part on the stream's own record.
func warn(md *types.Metadata, log *zap.Logger, what string, err error) {
	err = &types.MalformedInputError{Err: err, Format: types.FormatM4A, Reason: "parse " + what}
	md.Add(types.WarningKey(types.MalformedInput), err.Error())
	log.Debug("skipping damaged MP4 part", zap.String("part", what), zap.Error(err))
}
