package ole

import (
	"path"
	"strings"

	"github.com/dameikle/tika/internal/binary"
	"github.com/dameikle/tika/internal/types"
)

// Native is the decoded content of an \x01Ole10Native stream: a file packed
// into an OLE object by the Windows packager.
type Native struct {
	Label    string
	FileName string
	Command  string
	Data     []byte
}

// Name returns the best file name for the payload: the base of the original
// file path, else the label.
func (n *Native) Name() string {
	for _, s := range []string{n.FileName, n.Command, n.Label} {
		s = strings.TrimSpace(strings.ReplaceAll(s, `\`, "/"))
		if s == "" {
			continue
		}
		if base := path.Base(s); base != "." && base != "/" {
			return base
		}
	}
	return ""
}

// ParseNative decodes an \x01Ole10Native stream.
//
// The packager layout is a 4-byte total size followed by flags, label, file
// name, command and the data block. Streams written by other tools carry only
// the total size and the raw payload; when the packager layout does not fit,
// the payload is taken as-is.
func ParseNative(b []byte) (*Native, error) {
	sr := binary.NewBytesReader(b, "Ole10Native")
	r := binary.NewReaderLE(sr, 0)
	total, err := binary.ReadValue[uint32](r, "total size")
	if err != nil {
		return nil, err
	}
	if int64(total) > r.Remaining() {
		return nil, &types.OutOfBoundsError{
			Path:   sr.Name(),
			What:   "native payload",
			Offset: 4,
			Length: int(total),
			Size:   sr.Size(),
		}
	}

	cr := binary.NewChainReader(r)
	binary.ReadChained[uint16](cr, "flags1")
	n := &Native{
		Label:    cr.CString("label"),
		FileName: cr.CString("file name"),
	}
	binary.ReadChained[uint16](cr, "flags2")
	binary.ReadChained[uint16](cr, "unknown")
	cmdLen := binary.ReadChained[uint32](cr, "command length")
	n.Command = strings.TrimRight(cr.String(int(cmdLen), "command"), "\x00")
	dataLen := binary.ReadChained[uint32](cr, "data size")
	n.Data = cr.Bytes(int64(dataLen), "data")
	if cr.Error() != nil || cr.Offset() > 4+int64(total) {
		return &Native{Data: b[4 : 4+int64(total)]}, nil
	}
	return n, nil
}
