package m4a

import (
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/dameikle/tika/internal/audio"
	"github.com/dameikle/tika/internal/binary"
	"github.com/dameikle/tika/internal/flac"
	"github.com/dameikle/tika/internal/mp3"
	"github.com/dameikle/tika/internal/types"
	"github.com/dameikle/tika/internal/vorbis"
)

// Well-known data atom types.
const (
	dataUTF8    = 1
	dataUTF16   = 2
	dataJPEG    = 13
	dataPNG     = 14
	dataInteger = 21
	dataBMP     = 27
)

// itemKeys maps iTunes item atoms onto common metadata keys. Every text
// item is also recorded under KeyPrefix plus its name.
var itemKeys = map[string][]string{
	"©nam": {types.KeyTitle},
	"©ART": {vorbis.KeyArtist, types.KeyCreator},
	"aART": {vorbis.KeyAlbumArt},
	"©alb": {vorbis.KeyAlbum},
	"©gen": {vorbis.KeyGenre},
	"©wrt": {vorbis.KeyComposer},
	"©day": {vorbis.KeyDate},
	"©cmt": {vorbis.KeyComment},
	"cprt": {vorbis.KeyRights},
	"©too": {audio.KeyCreatorTool},
	"desc": {types.KeyDescription},
	"ldes": {types.KeyDescription},
}

// dataAtom is one value of an item.
type dataAtom struct {
	Type  uint32
	Value []byte
}

// item is one child of ilst with its values.
type item struct {
	Name string
	Mean string // "----" items only
	Key  string // "----" items only
	Data []dataAtom
}

// readItems parses every item of an ilst atom. Items that cannot be read
// are returned as errors and do not stop the others.
func readItems(sr *binary.SafeReader, ilst *Atom) ([]item, []error) {
	var (
		items []item
		errs  []error
	)
	err := eachAtom(sr, ilst.DataOffset(), ilst.End(), func(a *Atom) error {
		it, err := readItem(sr, a)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "item %s", itemName(a.Type)))
			return nil
		}
		items = append(items, it)
		return nil
	})
	if err != nil {
		errs = append(errs, errors.Wrap(err, "ilst"))
	}
	return items, errs
}

func readItem(sr *binary.SafeReader, a *Atom) (item, error) {
	it := item{Name: itemName(a.Type)}
	err := eachAtom(sr, a.DataOffset(), a.End(), func(child *Atom) error {
		switch child.Type {
		case "mean", "name":
			buf, err := readData(sr, child, child.Type)
			if err != nil {
				return err
			}
			if len(buf) < 4 {
				return errors.Errorf("%s atom too short", child.Type)
			}
			if child.Type == "mean" {
				it.Mean = string(buf[4:])
			} else {
				it.Key = string(buf[4:])
			}
		case "data":
			buf, err := readData(sr, child, "data")
			if err != nil {
				return err
			}
			if len(buf) < 8 {
				return errors.New("data atom too short")
			}
			it.Data = append(it.Data, dataAtom{
				Type:  binary.Decode[uint32](buf[:4], binary.BigEndian) & 0xFFFFFF,
				Value: buf[8:],
			})
		}
		return nil
	})
	return it, err
}

// itemName decodes an atom type as Latin-1, so 0xA9 reads as "©".
func itemName(t string) string {
	name, err := charmap.ISO8859_1.NewDecoder().String(t)
	if err != nil {
		return t
	}
	return name
}

// applyItems writes the items into c and md.
func (c *contents) applyItems(md *types.Metadata, items []item) []error {
	var errs []error
	for _, it := range items {
		if err := c.applyItem(md, it); err != nil {
			errs = append(errs, errors.Wrapf(err, "item %s", it.Name))
		}
	}
	return errs
}

func (c *contents) applyItem(md *types.Metadata, it item) error {
	switch it.Name {
	case "trkn", "disk":
		key, totalKey := vorbis.KeyTrack, KeyPrefix+"trackTotal"
		if it.Name == "disk" {
			key, totalKey = vorbis.KeyDisc, KeyPrefix+"discTotal"
		}
		for _, d := range it.Data {
			if len(d.Value) < 6 {
				return errors.Errorf("%d-byte number pair", len(d.Value))
			}
			n := binary.Decode[uint16](d.Value[2:4], binary.BigEndian)
			total := binary.Decode[uint16](d.Value[4:6], binary.BigEndian)
			if n == 0 {
				continue
			}
			md.Set(key, strconv.Itoa(int(n)))
			if total > 0 {
				md.Set(totalKey, strconv.Itoa(int(total)))
			}
		}
	case "gnre":
		for _, d := range it.Data {
			if len(d.Value) < 2 {
				return errors.New("short genre index")
			}
			// gnre stores the ID3v1 genre plus one.
			n := int(binary.Decode[uint16](d.Value[:2], binary.BigEndian))
			if g := mp3.Genre(n - 1); g != "" && !md.Has(vorbis.KeyGenre) {
				md.Set(vorbis.KeyGenre, g)
			}
		}
	case "covr":
		for _, d := range it.Data {
			c.pictures = append(c.pictures, coverPicture(d))
		}
	case "©lyr":
		for _, d := range it.Data {
			if s, err := dataText(d); err == nil && s != "" {
				c.lyrics = append(c.lyrics, s)
			}
		}
	case "----":
		if it.Key == "" {
			return errors.New("freeform item without a name")
		}
		for _, d := range it.Data {
			s, err := dataText(d)
			if err != nil {
				return err
			}
			md.Add(KeyPrefix+"----:"+it.Key, s)
		}
	default:
		for _, d := range it.Data {
			s, err := dataText(d)
			if err != nil {
				return err
			}
			if s == "" {
				continue
			}
			md.Add(KeyPrefix+it.Name, s)
			for _, key := range itemKeys[it.Name] {
				md.Add(key, s)
			}
		}
	}
	return nil
}

// dataText renders a text or integer value.
func dataText(d dataAtom) (string, error) {
	switch d.Type {
	case dataUTF8, 0:
		return strings.TrimRight(string(d.Value), "\x00"), nil
	case dataUTF16:
		s, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(d.Value)
		if err != nil {
			return "", errors.Wrap(err, "decode UTF-16")
		}
		return strings.TrimRight(string(s), "\x00"), nil
	case dataInteger:
		var v int64
		switch len(d.Value) {
		case 1:
			v = int64(int8(d.Value[0]))
		case 2:
			v = int64(int16(binary.Decode[uint16](d.Value, binary.BigEndian)))
		case 4:
			v = int64(int32(binary.Decode[uint32](d.Value, binary.BigEndian)))
		case 8:
			v = int64(binary.Decode[uint64](d.Value, binary.BigEndian))
		default:
			return "", errors.Errorf("%d-byte integer", len(d.Value))
		}
		return strconv.FormatInt(v, 10), nil
	}
	return "", errors.Errorf("unsupported data type %d", d.Type)
}

// coverPicture wraps a covr value as a front-cover picture.
func coverPicture(d dataAtom) *flac.Picture {
	pic := &flac.Picture{Type: 3, Data: d.Value}
	switch d.Type {
	case dataJPEG:
		pic.MIMEType = "image/jpeg"
	case dataPNG:
		pic.MIMEType = "image/png"
	case dataBMP:
		pic.MIMEType = "image/bmp"
	default:
		pic.MIMEType = mimetype.Detect(d.Value).String()
	}
	return pic
}
