package ole

import (
	"bytes"
	encbin "encoding/binary"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/stretchr/testify/require"

	"github.com/dameikle/tika/internal/binary"
)

const (
	sectorSize = 512
	freeSect   = 0xFFFFFFFF
	endOfChain = 0xFFFFFFFE
	fatSect    = 0xFFFFFFFD
	noStream   = 0xFFFFFFFF
)

type cfbStream struct {
	name string
	data []byte
}

// buildCFB writes a version 3 compound file holding the given top-level
// streams. Every stream must be smaller than 4096 bytes so it lives in the
// mini stream. Sector layout: FAT, directory, mini FAT, mini stream.
func buildCFB(t *testing.T, streams ...cfbStream) []byte {
	t.Helper()
	n := len(streams)
	dirSectors := (n + 1 + 3) / 4

	miniStart := make([]uint32, n)
	var mini []byte
	var miniFAT []uint32
	for i, s := range streams {
		require.Less(t, len(s.data), 4096)
		if len(s.data) == 0 {
			miniStart[i] = endOfChain
			continue
		}
		first := uint32(len(mini) / 64)
		miniStart[i] = first
		count := (len(s.data) + 63) / 64
		for j := 0; j < count; j++ {
			next := uint32(endOfChain)
			if j < count-1 {
				next = first + uint32(j) + 1
			}
			miniFAT = append(miniFAT, next)
		}
		padded := make([]byte, count*64)
		copy(padded, s.data)
		mini = append(mini, padded...)
	}
	require.LessOrEqual(t, len(miniFAT), sectorSize/4)
	miniSectors := (len(mini) + sectorSize - 1) / sectorSize

	dirLoc := uint32(1)
	miniFATLoc := dirLoc + uint32(dirSectors)
	miniLoc := miniFATLoc + 1
	total := int(miniLoc) + miniSectors

	out := make([]byte, sectorSize*(total+1))
	le := encbin.LittleEndian
	sector := func(i uint32) []byte { return out[sectorSize*(int(i)+1) : sectorSize*(int(i)+2)] }

	// Header.
	h := out[:sectorSize]
	copy(h, Magic)
	le.PutUint16(h[24:], 0x003E)
	le.PutUint16(h[26:], 0x0003)
	le.PutUint16(h[28:], 0xFFFE)
	le.PutUint16(h[30:], 0x0009)
	le.PutUint16(h[32:], 0x0006)
	le.PutUint32(h[44:], 1)
	le.PutUint32(h[48:], dirLoc)
	le.PutUint32(h[56:], 4096)
	le.PutUint32(h[60:], miniFATLoc)
	le.PutUint32(h[64:], 1)
	le.PutUint32(h[68:], endOfChain)
	le.PutUint32(h[76:], 0)
	for off := 80; off < sectorSize; off += 4 {
		le.PutUint32(h[off:], freeSect)
	}

	// FAT.
	fat := make([]uint32, sectorSize/4)
	for i := range fat {
		fat[i] = freeSect
	}
	fat[0] = fatSect
	chain := func(start uint32, count int) {
		for j := 0; j < count; j++ {
			next := uint32(endOfChain)
			if j < count-1 {
				next = start + uint32(j) + 1
			}
			fat[start+uint32(j)] = next
		}
	}
	chain(dirLoc, dirSectors)
	chain(miniFATLoc, 1)
	chain(miniLoc, miniSectors)
	for i, v := range fat {
		le.PutUint32(sector(0)[i*4:], v)
	}

	// Mini FAT.
	mf := sector(miniFATLoc)
	for i := 0; i < sectorSize/4; i++ {
		v := uint32(freeSect)
		if i < len(miniFAT) {
			v = miniFAT[i]
		}
		le.PutUint32(mf[i*4:], v)
	}

	// Mini stream.
	for i := 0; i < miniSectors; i++ {
		copy(sector(miniLoc+uint32(i)), mini[i*sectorSize:])
	}

	// Directory.
	dir := make([]byte, dirSectors*sectorSize)
	entry := func(id int, name string, objType byte, left, right, child, start uint32, size int) {
		e := dir[id*128 : (id+1)*128]
		units := utf16.Encode([]rune(name))
		for i, u := range units {
			le.PutUint16(e[i*2:], u)
		}
		le.PutUint16(e[64:], uint16((len(units)+1)*2))
		e[66] = objType
		e[67] = 1
		le.PutUint32(e[68:], left)
		le.PutUint32(e[72:], right)
		le.PutUint32(e[76:], child)
		le.PutUint32(e[116:], start)
		le.PutUint32(e[120:], uint32(size))
	}
	rootChild, rootStart := uint32(noStream), uint32(endOfChain)
	if n > 0 {
		rootChild = 1
	}
	if len(mini) > 0 {
		rootStart = miniLoc
	}
	entry(0, "Root Entry", 5, noStream, noStream, rootChild, rootStart, len(mini))
	for i, s := range streams {
		right := uint32(noStream)
		if i < n-1 {
			right = uint32(i + 2)
		}
		entry(i+1, s.name, 2, noStream, right, noStream, miniStart[i], len(s.data))
	}
	for i := 0; i < dirSectors; i++ {
		copy(sector(dirLoc+uint32(i)), dir[i*sectorSize:(i+1)*sectorSize])
	}
	return out
}

// nativePayload builds an \x01Ole10Native stream in packager layout.
func nativePayload(t *testing.T, label, file string, data []byte) []byte {
	t.Helper()
	var body bytes.Buffer
	w := binary.NewSafeWriter(&body)
	require.NoError(t, binary.WriteLE[uint16](w, 2))
	require.NoError(t, w.WriteCString(label))
	require.NoError(t, w.WriteCString(file))
	require.NoError(t, binary.WriteLE[uint16](w, 0))
	require.NoError(t, binary.WriteLE[uint16](w, 3))
	require.NoError(t, binary.WriteLE[uint32](w, uint32(len(file)+1)))
	require.NoError(t, w.WriteCString(file))
	require.NoError(t, binary.WriteLE[uint32](w, uint32(len(data))))
	require.NoError(t, w.WriteBytes(data))

	var out bytes.Buffer
	ow := binary.NewSafeWriter(&out)
	require.NoError(t, binary.WriteLE[uint32](ow, uint32(body.Len())))
	require.NoError(t, ow.WriteBytes(body.Bytes()))
	return out.Bytes()
}

// summaryInformation builds a SummaryInformation property set stream.
func summaryInformation(title, author string, created time.Time, pages uint32) []byte {
	le := encbin.LittleEndian
	codeString := func(s string) []byte {
		chars := append([]byte(s), 0)
		for len(chars)%4 != 0 {
			chars = append(chars, 0)
		}
		v := make([]byte, 8, 8+len(chars))
		le.PutUint16(v, 0x1E)
		le.PutUint32(v[4:], uint32(len(s)+1))
		return append(v, chars...)
	}
	fileTime := func(tm time.Time) []byte {
		ticks := uint64(tm.Unix()+11644473600) * 10000000
		v := make([]byte, 12)
		le.PutUint16(v, 0x40)
		le.PutUint32(v[4:], uint32(ticks))
		le.PutUint32(v[8:], uint32(ticks>>32))
		return v
	}
	i4 := func(n uint32) []byte {
		v := make([]byte, 8)
		le.PutUint16(v, 0x03)
		le.PutUint32(v[4:], n)
		return v
	}
	codePage := make([]byte, 8)
	le.PutUint16(codePage, 0x02)
	le.PutUint16(codePage[4:], 1252)

	props := []struct {
		id    uint32
		value []byte
	}{
		{0x01, codePage},
		{0x02, codeString(title)},
		{0x04, codeString(author)},
		{0x0C, fileTime(created)},
		{0x0E, i4(pages)},
	}

	set := make([]byte, 8+8*len(props))
	for i, p := range props {
		le.PutUint32(set[8+i*8:], p.id)
		le.PutUint32(set[12+i*8:], uint32(len(set)))
		set = append(set, p.value...)
	}
	le.PutUint32(set, uint32(len(set)))
	le.PutUint32(set[4:], uint32(len(props)))

	head := make([]byte, 48)
	le.PutUint16(head, 0xFFFE)
	le.PutUint32(head[24:], 1)
	copy(head[28:], []byte{0xE0, 0x85, 0x9F, 0xF2, 0xF9, 0x4F, 0x68, 0x10, 0xAB, 0x91, 0x08, 0x00, 0x2B, 0x27, 0xB3, 0xD9})
	le.PutUint32(head[44:], 48)
	return append(head, set...)
}
