package m4a

import (
	"github.com/pkg/errors"

	"github.com/dameikle/tika/internal/binary"
)

// errNotFound reports a missing optional atom.
var errNotFound = errors.New("atom not found")

// Atom represents an MP4/M4A/M4B atom (box).
type Atom struct {
	Size     uint64 // Total size including header
	Type     string // 4-character type code
	Offset   int64  // Position in file
	Extended bool   // Whether this uses 64-bit extended size
}

// headerSize returns the length of the size and type fields.
func (a *Atom) headerSize() int64 {
	if a.Extended {
		return 16
	}
	return 8
}

// DataSize returns the size of the atom's data (excluding header).
func (a *Atom) DataSize() int64 {
	return int64(a.Size) - a.headerSize()
}

// DataOffset returns the file offset where the atom's data starts.
func (a *Atom) DataOffset() int64 {
	return a.Offset + a.headerSize()
}

// End returns the file offset just past the atom.
func (a *Atom) End() int64 {
	return a.Offset + int64(a.Size)
}

// readAtomHeader reads an atom header at offset. The atom must end at or
// before end. A size of zero means the atom runs to end.
func readAtomHeader(sr *binary.SafeReader, offset, end int64) (*Atom, error) {
	size32, err := binary.Read[uint32](sr, offset, "atom size")
	if err != nil {
		return nil, err
	}
	typeBytes := make([]byte, 4)
	if err := sr.ReadAt(typeBytes, offset+4, "atom type"); err != nil {
		return nil, err
	}
	atom := &Atom{Type: string(typeBytes), Offset: offset}

	switch size32 {
	case 0:
		atom.Size = uint64(end - offset)
	case 1:
		size64, err := binary.Read[uint64](sr, offset+8, "extended atom size")
		if err != nil {
			return nil, err
		}
		atom.Size = size64
		atom.Extended = true
	default:
		atom.Size = uint64(size32)
	}

	if atom.Size < uint64(atom.headerSize()) {
		return nil, errors.Errorf("atom %q at offset %d has invalid size %d", atom.Type, offset, atom.Size)
	}
	if atom.Size > uint64(end-offset) {
		return nil, errors.Errorf("atom %q at offset %d overruns its parent (%d > %d bytes)", atom.Type, offset, atom.Size, end-offset)
	}
	return atom, nil
}

// eachAtom calls fn for every atom between start and end, stopping at the
// first error.
func eachAtom(sr *binary.SafeReader, start, end int64, fn func(*Atom) error) error {
	for offset := start; offset+8 <= end; {
		atom, err := readAtomHeader(sr, offset, end)
		if err != nil {
			return err
		}
		if err := fn(atom); err != nil {
			return err
		}
		offset = atom.End()
	}
	return nil
}

// errStop ends an eachAtom walk early without an error.
var errStop = errors.New("stop")

// findAtom returns the first atom of the given type between start and end.
func findAtom(sr *binary.SafeReader, start, end int64, atomType string) (*Atom, error) {
	var found *Atom
	err := eachAtom(sr, start, end, func(a *Atom) error {
		if a.Type == atomType {
			found = a
			return errStop
		}
		return nil
	})
	if found != nil {
		return found, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, errors.Wrap(errNotFound, atomType)
}

// findPath descends from parent through the named children.
func findPath(sr *binary.SafeReader, parent *Atom, path ...string) (*Atom, error) {
	cur := parent
	for _, name := range path {
		start := childOffset(sr, cur)
		next, err := findAtom(sr, start, cur.End(), name)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// childOffset returns where a container's children start. ISO meta atoms
// carry a version and flags before their children; QuickTime ones do not.
func childOffset(sr *binary.SafeReader, a *Atom) int64 {
	if a.Type != "meta" {
		return a.DataOffset()
	}
	next := make([]byte, 4)
	if err := sr.ReadAt(next, a.DataOffset()+4, "meta child type"); err == nil && string(next) == "hdlr" {
		return a.DataOffset()
	}
	return a.DataOffset() + 4
}

// readData reads an atom's data.
func readData(sr *binary.SafeReader, a *Atom, what string) ([]byte, error) {
	if a.DataSize() > maxAtomData {
		return nil, errors.Errorf("%s atom of %d bytes exceeds %d", a.Type, a.DataSize(), maxAtomData)
	}
	buf := make([]byte, a.DataSize())
	if err := sr.ReadAt(buf, a.DataOffset(), what); err != nil {
		return nil, err
	}
	return buf, nil
}

// maxAtomData bounds atoms read whole into memory.
const maxAtomData = 64 << 20
