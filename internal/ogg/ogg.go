// Package ogg extracts Ogg Vorbis and Ogg Opus stream metadata.
//
// The identification and comment packets of the first logical stream are
// reassembled from their pages. The comment header supplies the tags and
// CHAPTER comments, and every METADATA_BLOCK_PICTURE comment is handed to
// the driver as an embedded object. The duration comes from the granule
// position of the stream's last page. Audio packets are never decoded.
package ogg

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dameikle/tika/internal/binary"
	"github.com/dameikle/tika/internal/flac"
	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
	"github.com/dameikle/tika/internal/vorbis"
)

// Name identifies the extractor.
const Name = "ogg.Extractor"

// Metadata keys written by this package.
const (
	KeyCompressor      = flac.KeyCompressor
	KeyNominalBitrate  = "ogg:nominalBitrate"
	KeyInputSampleRate = "opus:inputSampleRate"
	KeyOutputGain      = "opus:outputGain"
)

// pictureComment carries a base64 FLAC PICTURE block.
const pictureComment = "METADATA_BLOCK_PICTURE"

// Extractor reads Ogg Vorbis and Opus headers.
type Extractor struct{}

// New creates an Ogg extractor.
func New() *Extractor {
	return &Extractor{}
}

// Name implements types.Extractor.
func (e *Extractor) Name() string { return Name }

// SupportedFormats implements types.Extractor.
func (e *Extractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(types.FormatOgg, types.FormatVorbis, types.FormatOpus, "application/ogg")
}

// Extract implements types.Extractor. The first page and both header
// packets are validated before any event is emitted.
func (e *Extractor) Extract(ctx context.Context, s *types.Stream, h sink.Handler, md *types.Metadata, ec *types.Context) error {
	log := ec.Logger()

	head, _ := s.Peek(4)
	if string(head) != "OggS" {
		return &types.UnsupportedFormatError{Format: types.FormatOgg, Reason: "invalid Ogg capture pattern"}
	}
	ra, err := s.ReaderAt()
	if err != nil {
		return &types.MalformedInputError{Err: err, Format: types.FormatOgg, Reason: "buffer stream"}
	}
	sr := binary.NewSafeReader(ra, ra.Size(), "ogg")

	first, err := readPage(sr, 0)
	if err != nil {
		return &types.UnsupportedFormatError{Err: err, Format: types.FormatOgg, Reason: "read first page"}
	}
	if first.HeaderType&flagBOS == 0 {
		return &types.UnsupportedFormatError{Format: types.FormatOgg, Reason: "first page does not begin a logical stream"}
	}
	pr := newPacketReader(sr, first)
	ident, err := pr.next()
	if err != nil {
		return &types.UnsupportedFormatError{Err: err, Format: types.FormatOgg, Reason: "read identification header"}
	}
	c, err := identify(ident)
	if err != nil {
		return &types.UnsupportedFormatError{Err: err, Format: types.FormatOgg, Reason: "identification header"}
	}
	tags, err := pr.next()
	if err != nil {
		return &types.MalformedInputError{Err: err, Format: c.Header.Format, Offset: pr.off, Reason: "read comment header"}
	}
	if !bytes.HasPrefix(tags, c.CommentMagic) {
		return &types.MalformedInputError{Format: c.Header.Format, Offset: pr.off, Reason: "second packet is not a comment header"}
	}

	if g, err := lastGranule(sr, first.Serial); err != nil {
		log.Debug("ogg duration unknown", zap.Error(err))
	} else if g > c.PreSkip {
		c.Header.Frames = g - c.PreSkip
	}
	c.Header.Apply(md)
	c.Apply(md)

	comments, pictures := splitComments(md, log, c, tags)

	x := sink.NewXHTML(h)
	if err := x.StartDocument(); err != nil {
		return err
	}
	if err := flac.WriteSummary(x, md); err != nil {
		return err
	}

	embedded := 0
	for _, value := range pictures {
		pic, err := decodePicture(value)
		if err != nil {
			warn(md, log, c, "picture comment", err)
			continue
		}
		if pic.MIMEType == flac.PictureLinkMIME {
			md.Add(flac.KeyPictureURL, string(pic.Data))
			continue
		}
		if err := flac.EmbedPicture(ctx, x, ec, pic, embedded); err != nil {
			return err
		}
		embedded++
	}

	chapters := vorbis.ParseChapters(comments, c.Header.Duration())
	if err := vorbis.WriteChapters(x, chapters); err != nil {
		return err
	}
	log.Debug("ogg metadata",
		zap.String("codec", c.Name),
		zap.Int("comments", len(comments)),
		zap.Int("pictures", embedded),
		zap.Int("chapters", len(chapters)))
	return x.EndDocument()
}

// splitComments applies the comment header to md and returns the plain
// comments and the picture comment values separately. A damaged header is
// recorded as a warning and whatever was read before the damage is kept.
func splitComments(md *types.Metadata, log *zap.Logger, c *codec, pkt []byte) (comments, pictures []string) {
	b, err := vorbis.ReadBlock(pkt[len(c.CommentMagic):])
	if b == nil {
		warn(md, log, c, "comment header", err)
		return nil, nil
	}
	for _, comment := range b.Comments {
		key, value, _ := strings.Cut(comment, "=")
		if strings.EqualFold(strings.TrimSpace(key), pictureComment) {
			pictures = append(pictures, value)
			continue
		}
		comments = append(comments, comment)
	}
	kept := &vorbis.Block{Vendor: b.Vendor, Comments: comments}
	if aerr := kept.Apply(md); aerr != nil && err == nil {
		err = aerr
	}
	if err != nil {
		warn(md, log, c, "comment header", err)
	}
	return comments, pictures
}

// decodePicture decodes a METADATA_BLOCK_PICTURE value, a base64 FLAC
// PICTURE block.
func decodePicture(value string) (*flac.Picture, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, errors.Wrap(err, "invalid base64")
	}
	return flac.ParsePicture(data)
}

// warn records a damaged non-essential part on the stream's own record.
func warn(md *types.Metadata, log *zap.Logger, c *codec, what string, err error) {
	err = &types.MalformedInputError{Err: err, Format: c.Header.Format, Reason: "parse " + what}
	md.Add(types.WarningKey(types.MalformedInput), err.Error())
	log.Debug("skipping damaged Ogg header part", zap.String("part", what), zap.Error(err))
}
