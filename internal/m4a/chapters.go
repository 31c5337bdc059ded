package m4a

import (
	"bytes"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"

	"github.com/dameikle/tika/internal/binary"
	"github.com/dameikle/tika/internal/vorbis"
)

// maxChapterSamples bounds the sample tables read for a chapter track.
const maxChapterSamples = 1 << 16

// readChapters returns the QuickTime chapter track's chapters, falling back
// to a Nero chpl list. The last chapter ends at total.
func readChapters(sr *binary.SafeReader, moov *Atom, tracks []*track, total time.Duration) ([]vorbis.Chapter, error) {
	chapters, qtErr := quickTimeChapters(sr, tracks)
	if len(chapters) == 0 {
		var chplErr error
		chapters, chplErr = neroChapters(sr, moov)
		if len(chapters) == 0 {
			if qtErr != nil {
				return nil, qtErr
			}
			return nil, chplErr
		}
	}
	for i := range chapters {
		chapters[i].Index = i + 1
		if i+1 < len(chapters) {
			chapters[i].End = chapters[i+1].Start
		} else if total > chapters[i].Start {
			chapters[i].End = total
		}
	}
	return chapters, nil
}

// neroChapters parses moov/udta/chpl.
func neroChapters(sr *binary.SafeReader, moov *Atom) ([]vorbis.Chapter, error) {
	chpl, err := findPath(sr, moov, "udta", "chpl")
	if err != nil {
		return nil, nil
	}
	r := binary.NewReader(sr, chpl.DataOffset())
	// version, flags and a reserved word
	r.Skip(8)
	count, err := binary.ReadValue[uint8](r, "chapter count")
	if err != nil {
		return nil, err
	}
	chapters := make([]vorbis.Chapter, 0, count)
	for range count {
		start, err := binary.ReadValue[uint64](r, "chapter start")
		if err != nil {
			return chapters, err
		}
		n, err := binary.ReadValue[uint8](r, "chapter title length")
		if err != nil {
			return chapters, err
		}
		title, err := r.ReadString(int(n), "chapter title")
		if err != nil {
			return chapters, err
		}
		// Start times are in 100ns units.
		chapters = append(chapters, vorbis.Chapter{Title: title, Start: time.Duration(start * 100)})
	}
	return chapters, nil
}

// quickTimeChapters reads the text track a tref/chap atom points at.
func quickTimeChapters(sr *binary.SafeReader, tracks []*track) ([]vorbis.Chapter, error) {
	var target uint32
	for _, t := range tracks {
		chap, err := findPath(sr, t.Atom, "tref", "chap")
		if err != nil || chap.DataSize() < 4 {
			continue
		}
		if target, err = binary.Read[uint32](sr, chap.DataOffset(), "chapter track ID"); err == nil {
			break
		}
	}
	if target == 0 {
		return nil, nil
	}
	for _, t := range tracks {
		if trackID(sr, t.Atom) == target {
			return textTrackChapters(sr, t)
		}
	}
	return nil, errors.Errorf("chapter track %d not found", target)
}

// trackID reads tkhd's track ID, or 0.
func trackID(sr *binary.SafeReader, trak *Atom) uint32 {
	tkhd, err := findAtom(sr, trak.DataOffset(), trak.End(), "tkhd")
	if err != nil {
		return 0
	}
	version, err := binary.Read[uint8](sr, tkhd.DataOffset(), "tkhd version")
	if err != nil {
		return 0
	}
	off := tkhd.DataOffset() + 12
	if version == 1 {
		off = tkhd.DataOffset() + 20
	}
	id, err := binary.Read[uint32](sr, off, "track ID")
	if err != nil {
		return 0
	}
	return id
}

// textTrackChapters turns each text sample of t into a chapter.
func textTrackChapters(sr *binary.SafeReader, t *track) ([]vorbis.Chapter, error) {
	stbl, err := findPath(sr, t.Atom, "mdia", "minf", "stbl")
	if err != nil {
		return nil, err
	}
	starts, err := sampleTimes(sr, stbl, t.Timing.Timescale)
	if err != nil {
		return nil, err
	}
	offsets, sizes, err := sampleLocations(sr, stbl)
	if err != nil {
		return nil, err
	}

	n := min(len(starts), len(offsets))
	chapters := make([]vorbis.Chapter, 0, n)
	for i := range n {
		title, err := textSample(sr, offsets[i], sizes[i])
		if err != nil {
			return chapters, err
		}
		chapters = append(chapters, vorbis.Chapter{Title: title, Start: starts[i]})
	}
	return chapters, nil
}

// tableHeader reads the version, flags and entry count of a sample table
// atom and returns a reader positioned at its first entry.
func tableHeader(sr *binary.SafeReader, stbl *Atom, name string, skip int64) (*binary.Reader, uint32, error) {
	a, err := findAtom(sr, stbl.DataOffset(), stbl.End(), name)
	if err != nil {
		return nil, 0, err
	}
	r := binary.NewReader(sr, a.DataOffset()+4+skip)
	count, err := binary.ReadValue[uint32](r, name+" entry count")
	if err != nil {
		return nil, 0, err
	}
	if count > maxChapterSamples {
		return nil, 0, errors.Errorf("%s has %d entries", name, count)
	}
	return r, count, nil
}

// sampleTimes expands stts into per-sample start times.
func sampleTimes(sr *binary.SafeReader, stbl *Atom, timescale uint32) ([]time.Duration, error) {
	if timescale == 0 {
		return nil, errors.New("chapter track has no timescale")
	}
	r, count, err := tableHeader(sr, stbl, "stts", 0)
	if err != nil {
		return nil, err
	}
	var (
		times []time.Duration
		now   uint64
	)
	for range count {
		cr := binary.NewChainReader(r)
		samples := binary.ReadChained[uint32](cr, "stts sample count")
		delta := binary.ReadChained[uint32](cr, "stts sample delta")
		if err := cr.Error(); err != nil {
			return times, err
		}
		for range samples {
			if len(times) >= maxChapterSamples {
				return times, nil
			}
			times = append(times, timing{Timescale: timescale, Units: now}.Duration())
			now += uint64(delta)
		}
	}
	return times, nil
}

// sampleLocations resolves every sample's file offset and size from stsz,
// stsc and stco or co64.
func sampleLocations(sr *binary.SafeReader, stbl *Atom) ([]int64, []uint32, error) {
	r, count, err := tableHeader(sr, stbl, "stsz", 4)
	if err != nil {
		return nil, nil, err
	}
	fixed, err := binary.Read[uint32](sr, r.Offset()-8, "stsz sample size")
	if err != nil {
		return nil, nil, err
	}
	sizes := make([]uint32, count)
	for i := range sizes {
		if fixed != 0 {
			sizes[i] = fixed
			continue
		}
		if sizes[i], err = binary.ReadValue[uint32](r, "stsz entry"); err != nil {
			return nil, nil, err
		}
	}

	chunks, err := chunkOffsets(sr, stbl)
	if err != nil {
		return nil, nil, err
	}

	// stsc runs: samples per chunk from a first chunk (1-based) onwards.
	type chunkRun struct{ first, perChunk uint32 }
	var runs []chunkRun
	if r, n, err := tableHeader(sr, stbl, "stsc", 0); err == nil {
		for range n {
			cr := binary.NewChainReader(r)
			first := binary.ReadChained[uint32](cr, "stsc first chunk")
			per := binary.ReadChained[uint32](cr, "stsc samples per chunk")
			cr.Bytes(4, "stsc description index")
			if err := cr.Error(); err != nil {
				return nil, nil, err
			}
			runs = append(runs, chunkRun{first, per})
		}
	}
	if len(runs) == 0 {
		runs = []chunkRun{{1, 1}}
	}

	offsets := make([]int64, 0, len(sizes))
	sample := 0
	for ci, chunkOff := range chunks {
		per := uint32(0)
		for _, rn := range runs {
			if rn.first <= uint32(ci+1) {
				per = rn.perChunk
			}
		}
		off := chunkOff
		for range per {
			if sample >= len(sizes) {
				break
			}
			offsets = append(offsets, off)
			off += int64(sizes[sample])
			sample++
		}
	}
	return offsets, sizes[:len(offsets)], nil
}

// chunkOffsets reads stco, or co64 when stco is absent.
func chunkOffsets(sr *binary.SafeReader, stbl *Atom) ([]int64, error) {
	wide := false
	r, count, err := tableHeader(sr, stbl, "stco", 0)
	if err != nil {
		if r, count, err = tableHeader(sr, stbl, "co64", 0); err != nil {
			return nil, err
		}
		wide = true
	}
	offsets := make([]int64, count)
	for i := range offsets {
		if wide {
			v, err := binary.ReadValue[uint64](r, "co64 entry")
			if err != nil {
				return nil, err
			}
			offsets[i] = int64(v)
			continue
		}
		v, err := binary.ReadValue[uint32](r, "stco entry")
		if err != nil {
			return nil, err
		}
		offsets[i] = int64(v)
	}
	return offsets, nil
}

// textSample decodes a QuickTime text sample: a 16-bit length then UTF-8,
// or UTF-16 when the text starts with a byte order mark.
func textSample(sr *binary.SafeReader, off int64, size uint32) (string, error) {
	if size < 2 {
		return "", nil
	}
	n, err := binary.Read[uint16](sr, off, "text sample length")
	if err != nil {
		return "", err
	}
	if uint32(n) > size-2 {
		return "", errors.Errorf("text sample length %d exceeds sample size %d", n, size)
	}
	buf := make([]byte, n)
	if err := sr.ReadAt(buf, off+2, "text sample"); err != nil {
		return "", err
	}
	if bytes.HasPrefix(buf, []byte{0xFE, 0xFF}) || bytes.HasPrefix(buf, []byte{0xFF, 0xFE}) {
		out, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(buf)
		if err != nil {
			return "", errors.Wrap(err, "decode UTF-16 chapter title")
		}
		return string(out), nil
	}
	return string(buf), nil
}
