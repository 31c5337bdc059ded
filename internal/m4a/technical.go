package m4a

import (
	"time"

	"github.com/pkg/errors"

	"github.com/dameikle/tika/internal/binary"
)

// timing is a timescale and a duration in its units.
type timing struct {
	Timescale uint32
	Units     uint64 // duration in timescale units
}

// Duration converts the timing to a time.Duration.
func (t timing) Duration() time.Duration {
	if t.Timescale == 0 {
		return 0
	}
	secs := t.Units / uint64(t.Timescale)
	rem := t.Units % uint64(t.Timescale)
	return time.Duration(secs)*time.Second + time.Duration(rem)*time.Second/time.Duration(t.Timescale)
}

// readTiming parses an mvhd or mdhd atom, both of which carry the
// timescale and duration at the same version-dependent offsets.
func readTiming(sr *binary.SafeReader, a *Atom) (timing, error) {
	cr := binary.NewChainReader(binary.NewReader(sr, a.DataOffset()))
	version := binary.ReadChained[uint8](cr, a.Type+" version")
	cr.Bytes(3, a.Type+" flags")
	var t timing
	if version == 1 {
		cr.Bytes(16, a.Type+" times")
		t.Timescale = binary.ReadChained[uint32](cr, a.Type+" timescale")
		t.Units = binary.ReadChained[uint64](cr, a.Type+" duration")
	} else {
		cr.Bytes(8, a.Type+" times")
		t.Timescale = binary.ReadChained[uint32](cr, a.Type+" timescale")
		d := binary.ReadChained[uint32](cr, a.Type+" duration")
		if d != 0xFFFFFFFF {
			t.Units = uint64(d)
		}
	}
	return t, cr.Error()
}

// track is one trak atom's handler, timing and first sample entry.
type track struct {
	Atom    *Atom
	Handler string
	Timing  timing
	Format  string // sample entry type, e.g. "mp4a"
	Entry   *Atom
}

// readTracks reads the handler and media timing of every track in moov.
// Tracks that cannot be read are returned as errors.
func readTracks(sr *binary.SafeReader, moov *Atom) ([]*track, []error) {
	var (
		tracks []*track
		errs   []error
	)
	err := eachAtom(sr, moov.DataOffset(), moov.End(), func(a *Atom) error {
		if a.Type != "trak" {
			return nil
		}
		t, err := readTrack(sr, a)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "track %d", len(tracks)+len(errs)+1))
			return nil
		}
		tracks = append(tracks, t)
		return nil
	})
	if err != nil {
		errs = append(errs, errors.Wrap(err, "moov"))
	}
	return tracks, errs
}

func readTrack(sr *binary.SafeReader, trak *Atom) (*track, error) {
	t := &track{Atom: trak}
	hdlr, err := findPath(sr, trak, "mdia", "hdlr")
	if err != nil {
		return nil, err
	}
	handler := make([]byte, 4)
	if err := sr.ReadAt(handler, hdlr.DataOffset()+8, "handler type"); err != nil {
		return nil, err
	}
	t.Handler = string(handler)

	if mdhd, err := findPath(sr, trak, "mdia", "mdhd"); err == nil {
		if t.Timing, err = readTiming(sr, mdhd); err != nil {
			return nil, err
		}
	}

	stsd, err := findPath(sr, trak, "mdia", "minf", "stbl", "stsd")
	if err != nil {
		// Tracks without a sample table carry nothing else of interest.
		return t, nil
	}
	// version, flags and entry count precede the first entry.
	if stsd.DataSize() >= 16 {
		entry, err := readAtomHeader(sr, stsd.DataOffset()+8, stsd.End())
		if err != nil {
			return nil, errors.Wrap(err, "sample entry")
		}
		t.Entry = entry
		t.Format = entry.Type
	}
	return t, nil
}

// soundInfo is what an audio sample entry describes.
type soundInfo struct {
	Channels   int
	Bits       int
	SampleRate float64
	Codec      string
	esds       esdsInfo
}

// Offsets within an audio sample entry's data.
const (
	soundEntryLen   = 28 // reserved, reference index and version 0 fields
	soundV1Extra    = 16
	soundV2Extra    = 36
	soundVersionOff = 8
)

// readSoundEntry parses an audio sample entry and its esds child.
func readSoundEntry(sr *binary.SafeReader, entry *Atom) (soundInfo, error) {
	info := soundInfo{Codec: codecNames[entry.Type]}
	if info.Codec == "" {
		info.Codec = entry.Type
	}
	cr := binary.NewChainReader(binary.NewReader(sr, entry.DataOffset()+soundVersionOff))
	version := binary.ReadChained[uint16](cr, "sound entry version")
	cr.Bytes(6, "revision and vendor")
	info.Channels = int(binary.ReadChained[uint16](cr, "channel count"))
	info.Bits = int(binary.ReadChained[uint16](cr, "sample size"))
	cr.Bytes(4, "compression and packet size")
	rate := binary.ReadChained[uint32](cr, "sample rate")
	if err := cr.Error(); err != nil {
		return info, err
	}
	info.SampleRate = float64(rate>>16) + float64(rate&0xFFFF)/65536

	children := entry.DataOffset() + soundEntryLen
	switch version {
	case 1:
		children += soundV1Extra
	case 2:
		children += soundV2Extra
	}
	if esds, err := findAtom(sr, children, entry.End(), "esds"); err == nil {
		buf, err := readData(sr, esds, "esds")
		if err != nil {
			return info, err
		}
		if len(buf) < 4 {
			return info, errors.New("esds atom too short")
		}
		if info.esds, err = parseESDescriptors(buf[4:]); err != nil {
			return info, errors.Wrap(err, "esds")
		}
	}
	return info, nil
}
