package flac

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/dameikle/tika/internal/binary"
	"github.com/dameikle/tika/internal/vorbis"
)

// leadOutTrack is the track number of the lead-out on CD-DA cue sheets.
const leadOutTrack = 170

// CueSheet represents a FLAC CUESHEET metadata block
type CueSheet struct {
	MediaCatalogNumber string
	LeadIn             uint64
	IsCD               bool
	Tracks             []CueTrack
}

// CueTrack represents a track in a cue sheet
type CueTrack struct {
	Offset      uint64 // samples from start of audio
	Number      byte   // 1-99, 170 for the lead-out
	ISRC        string
	IsAudio     bool
	PreEmphasis bool
	Indices     []CueIndex
}

// CueIndex represents an index point within a track
type CueIndex struct {
	Offset uint64 // samples from start of track
	Number byte
}

// parseCueSheet decodes a CUESHEET block body.
func parseCueSheet(data []byte) (*CueSheet, error) {
	// 128 MCN + 8 lead-in + 1 flags + 258 reserved + 1 track count
	if len(data) < 396 {
		return nil, errors.Errorf("CUESHEET block too short: %d bytes (need at least 396)", len(data))
	}

	cr := binary.NewChainReader(binary.NewReader(binary.NewBytesReader(data, "CUESHEET block"), 0))
	mcn := strings.TrimRight(cr.String(128, "media catalog number"), "\x00")
	leadIn := binary.ReadChained[uint64](cr, "lead-in samples")
	flags := binary.ReadChained[uint8](cr, "cuesheet flags")
	cr.Skip(258)
	trackCount := binary.ReadChained[uint8](cr, "track count")
	if err := cr.Error(); err != nil {
		return nil, err
	}

	cs := &CueSheet{
		MediaCatalogNumber: mcn,
		LeadIn:             leadIn,
		IsCD:               flags&0x80 != 0,
		Tracks:             make([]CueTrack, 0, trackCount),
	}
	for i := byte(0); i < trackCount; i++ {
		track, err := parseCueTrack(cr)
		if err != nil {
			return nil, errors.Wrapf(err, "parse track %d", i)
		}
		cs.Tracks = append(cs.Tracks, *track)
	}
	return cs, nil
}

// parseCueTrack decodes one track and its index points.
func parseCueTrack(cr *binary.ChainReader) (*CueTrack, error) {
	t := &CueTrack{}
	t.Offset = binary.ReadChained[uint64](cr, "track offset")
	t.Number = binary.ReadChained[uint8](cr, "track number")
	t.ISRC = strings.TrimRight(cr.String(12, "ISRC"), "\x00")
	flags := binary.ReadChained[uint8](cr, "track flags")
	t.IsAudio = flags&0x80 == 0
	t.PreEmphasis = flags&0x40 != 0
	cr.Skip(13)
	indexCount := binary.ReadChained[uint8](cr, "index count")
	if err := cr.Error(); err != nil {
		return nil, err
	}

	t.Indices = make([]CueIndex, 0, indexCount)
	for j := byte(0); j < indexCount; j++ {
		idx := CueIndex{
			Offset: binary.ReadChained[uint64](cr, "index offset"),
			Number: binary.ReadChained[uint8](cr, "index number"),
		}
		cr.Skip(3)
		if err := cr.Error(); err != nil {
			return nil, errors.Wrapf(err, "parse index %d", j)
		}
		t.Indices = append(t.Indices, idx)
	}
	return t, nil
}

// Chapters converts the audio tracks of the cue sheet into chapters. A nil
// cue sheet has none.
func (cs *CueSheet) Chapters(sampleRate float64) []vorbis.Chapter {
	if cs == nil || len(cs.Tracks) == 0 || sampleRate <= 0 {
		return nil
	}

	var tracks []CueTrack
	var leadOut uint64
	for _, track := range cs.Tracks {
		switch {
		case track.Number == leadOutTrack:
			leadOut = track.Offset
		case track.IsAudio:
			tracks = append(tracks, track)
		}
	}

	at := func(samples uint64) time.Duration {
		return time.Duration(float64(samples) / sampleRate * float64(time.Second))
	}
	chapters := make([]vorbis.Chapter, len(tracks))
	for i, track := range tracks {
		var end time.Duration
		if i < len(tracks)-1 {
			end = at(tracks[i+1].Offset)
		} else if leadOut > 0 {
			end = at(leadOut)
		}

		title := fmt.Sprintf("Track %02d", track.Number)
		if track.ISRC != "" {
			title = fmt.Sprintf("Track %02d (%s)", track.Number, track.ISRC)
		}
		chapters[i] = vorbis.Chapter{
			Index: i + 1,
			Title: title,
			Start: at(track.Offset),
			End:   end,
		}
	}
	return chapters
}
