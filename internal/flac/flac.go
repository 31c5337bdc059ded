// Package flac extracts FLAC stream metadata.
//
// The metadata blocks at the head of the stream are read in order. STREAMINFO
// supplies the audio properties, VORBIS_COMMENT the tags, CUESHEET or
// CHAPTER comments the chapter list, and every PICTURE block is handed to
// the driver as an embedded object. Audio frames are never decoded.
package flac

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
	"github.com/dameikle/tika/internal/vorbis"
)

// Name identifies the extractor.
const Name = "flac.Extractor"

// Metadata block types
const (
	blockTypeStreamInfo    = 0
	blockTypePadding       = 1
	blockTypeApplication   = 2
	blockTypeSeekTable     = 3
	blockTypeVorbisComment = 4
	blockTypeCueSheet      = 5
	blockTypePicture       = 6
)

// Extractor reads FLAC metadata blocks.
type Extractor struct{}

// New creates a FLAC extractor.
func New() *Extractor {
	return &Extractor{}
}

// Name implements types.Extractor.
func (e *Extractor) Name() string { return Name }

// SupportedFormats implements types.Extractor.
func (e *Extractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(types.FormatFLAC, "audio/flac")
}

// blockHeader is the 4-byte header preceding every metadata block.
type blockHeader struct {
	last   bool
	kind   uint8
	length uint32
	offset int64 // offset of the block body
}

// blockReader walks metadata blocks sequentially.
type blockReader struct {
	r   io.Reader
	off int64
}

func (br *blockReader) next() (blockHeader, error) {
	var b [4]byte
	if _, err := io.ReadFull(br.r, b[:]); err != nil {
		return blockHeader{}, err
	}
	br.off += 4
	return blockHeader{
		last:   b[0]&0x80 != 0,
		kind:   b[0] & 0x7F,
		length: uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]),
		offset: br.off,
	}, nil
}

func (br *blockReader) body(h blockHeader) ([]byte, error) {
	buf := make([]byte, h.length)
	n, err := io.ReadFull(br.r, buf)
	br.off += int64(n)
	return buf, err
}

func (br *blockReader) skip(h blockHeader) error {
	n, err := io.CopyN(io.Discard, br.r, int64(h.length))
	br.off += n
	return err
}

// Extract implements types.Extractor. The signature and STREAMINFO block are
// validated before any event is emitted.
func (e *Extractor) Extract(ctx context.Context, s *types.Stream, h sink.Handler, md *types.Metadata, ec *types.Context) error {
	log := ec.Logger()

	var magic [4]byte
	if _, err := io.ReadFull(s, magic[:]); err != nil || string(magic[:]) != "fLaC" {
		return &types.UnsupportedFormatError{Format: types.FormatFLAC, Reason: "invalid FLAC magic bytes"}
	}
	br := &blockReader{r: s, off: 4}

	first, err := br.next()
	if err != nil || first.kind != blockTypeStreamInfo {
		return &types.UnsupportedFormatError{Format: types.FormatFLAC, Reason: "STREAMINFO is not the first metadata block"}
	}
	body, err := br.body(first)
	if err != nil {
		return &types.UnsupportedFormatError{Err: err, Format: types.FormatFLAC, Reason: "read STREAMINFO"}
	}
	info, err := parseStreamInfo(body)
	if err != nil {
		return err
	}
	info.Header.Apply(md)
	md.Set(KeyCompressor, "FLAC")
	if info.MD5 != "" {
		md.Set(KeyMD5, info.MD5)
	}

	x := sink.NewXHTML(h)
	if err := x.StartDocument(); err != nil {
		return err
	}

	var (
		comments []string
		cue      *CueSheet
		pictures int
	)
	last := first.last
	for !last {
		if err := ctx.Err(); err != nil {
			return &types.ResourceLimitError{Err: err, Limit: "deadline"}
		}
		hdr, err := br.next()
		if err != nil {
			return &types.MalformedInputError{Err: err, Format: types.FormatFLAC, Offset: br.off, Reason: "truncated metadata block header"}
		}
		last = hdr.last

		switch hdr.kind {
		case blockTypeVorbisComment, blockTypeCueSheet, blockTypePicture:
			body, err := br.body(hdr)
			if err != nil {
				return &types.MalformedInputError{Err: err, Format: types.FormatFLAC, Offset: hdr.offset, Reason: "truncated metadata block"}
			}
			switch hdr.kind {
			case blockTypeVorbisComment:
				b, err := vorbis.ReadBlock(body)
				if b != nil {
					comments = append(comments, b.Comments...)
					if aerr := b.Apply(md); aerr != nil && err == nil {
						err = aerr
					}
				}
				if err != nil {
					warn(md, log, hdr, "Vorbis comments", err)
				}
			case blockTypeCueSheet:
				if cue, err = parseCueSheet(body); err != nil {
					warn(md, log, hdr, "CUESHEET", err)
				}
			case blockTypePicture:
				pic, err := ParsePicture(body)
				if err != nil {
					warn(md, log, hdr, "PICTURE", err)
					continue
				}
				if pic.MIMEType == PictureLinkMIME {
					md.Add(KeyPictureURL, string(pic.Data))
					continue
				}
				if err := EmbedPicture(ctx, x, ec, pic, pictures); err != nil {
					return err
				}
				pictures++
			}
		case blockTypeStreamInfo:
			warn(md, log, hdr, "STREAMINFO", errors.New("repeated STREAMINFO block"))
			if err := br.skip(hdr); err != nil {
				return &types.MalformedInputError{Err: err, Format: types.FormatFLAC, Offset: hdr.offset, Reason: "truncated metadata block"}
			}
		default:
			// Padding, application and seek table blocks carry nothing to extract.
			if err := br.skip(hdr); err != nil {
				return &types.MalformedInputError{Err: err, Format: types.FormatFLAC, Offset: hdr.offset, Reason: "truncated metadata block"}
			}
		}
	}

	if err := WriteSummary(x, md); err != nil {
		return err
	}
	chapters := cue.Chapters(info.Header.SampleRate)
	if len(chapters) == 0 {
		chapters = vorbis.ParseChapters(comments, info.Header.Duration())
	}
	if err := vorbis.WriteChapters(x, chapters); err != nil {
		return err
	}
	log.Debug("flac metadata",
		zap.Int("comments", len(comments)),
		zap.Int("pictures", pictures),
		zap.Int("chapters", len(chapters)))
	return x.EndDocument()
}

// WriteSummary emits the title and the artist/album line.
func WriteSummary(x *sink.XHTML, md *types.Metadata) error {
	if title := md.Get(types.KeyTitle); title != "" {
		if err := x.Element("h1", title); err != nil {
			return err
		}
	}
	for _, key := range []string{vorbis.KeyArtist, vorbis.KeyAlbum} {
		if v := md.Get(key); v != "" {
			if err := x.Element("p", v); err != nil {
				return err
			}
		}
	}
	return nil
}

// EmbedPicture hands a picture to the driver. JPEG and PNG dimensions are
// read from the image when the picture does not state them.
func EmbedPicture(ctx context.Context, x *sink.XHTML, ec *types.Context, pic *Picture, index int) error {
	child := types.NewMetadata()
	name := fmt.Sprintf("picture-%d", index)
	if exts := types.Format(pic.MIMEType).Extensions(); len(exts) > 0 {
		name += exts[0]
	}
	child.Set(types.KeyResourceName, name)
	if pic.MIMEType != "" {
		child.Set(types.KeyContentType, pic.MIMEType)
	}
	child.Set(KeyPictureType, pic.TypeName())
	if pic.Description != "" {
		child.Set(types.KeyDescription, pic.Description)
	}
	if pic.Width == 0 && pic.Height == 0 {
		pic.Width, pic.Height = imageDimensions(pic.Data, pic.MIMEType)
	}
	if pic.Width > 0 && pic.Height > 0 {
		child.Set("tiff:ImageWidth", fmt.Sprint(pic.Width))
		child.Set("tiff:ImageLength", fmt.Sprint(pic.Height))
	}

	if err := x.Element("p", name, sink.Attr{Name: "class", Value: "embedded"}); err != nil {
		return err
	}
	return ec.Embed(ctx, bytes.NewReader(pic.Data), child)
}

// warn records a damaged non-essential block on the stream's own record.
func warn(md *types.Metadata, log *zap.Logger, hdr blockHeader, what string, err error) {
	err = &types.MalformedInputError{Err: err, Format: types.FormatFLAC, Offset: hdr.offset, Reason: "parse " + what}
	md.Add(types.WarningKey(types.MalformedInput), err.Error())
	log.Debug("skipping damaged FLAC block", zap.String("block", what), zap.Error(err))
}

// Metadata keys written by this package.
const (
	KeyCompressor  = "xmpDM:audioCompressor"
	KeyMD5         = "flac:md5"
	KeyPictureType = "flac:pictureType"
	KeyPictureURL  = "flac:pictureURL"
)
