package types

import (
	"mime"
	"path/filepath"
	"strings"
)

// Format identifies a content format, in media-type form such as
// "audio/vnd.wave" or "text/html; charset=utf-8".
type Format string

// Common formats.
const (
	FormatOctetStream Format = "application/octet-stream"
	FormatText        Format = "text/plain"
	FormatHTML        Format = "text/html"
	FormatXHTML       Format = "application/xhtml+xml"
	FormatXML         Format = "application/xml"
	FormatTMX         Format = "application/x-tmx"
	FormatWAV         Format = "audio/vnd.wave"
	FormatAIFF        Format = "audio/x-aiff"
	FormatAU          Format = "audio/basic"
	FormatFLAC        Format = "audio/x-flac"
	FormatOgg         Format = "audio/ogg"
	FormatVorbis      Format = "audio/vorbis"
	FormatOpus        Format = "audio/opus"
	FormatMP3         Format = "audio/mpeg"
	FormatM4A         Format = "audio/mp4"
	FormatMP4         Format = "video/mp4"
	FormatQuickTime   Format = "video/quicktime"
	FormatZip         Format = "application/zip"
	FormatTar         Format = "application/x-tar"
	FormatGzip        Format = "application/gzip"
	FormatBzip2       Format = "application/x-bzip2"
	FormatXz          Format = "application/x-xz"
	FormatZstd        Format = "application/zstd"
	Format7z          Format = "application/x-7z-compressed"
	FormatRar         Format = "application/x-rar-compressed"
	FormatRFC822      Format = "message/rfc822"
	FormatMbox        Format = "application/mbox"
	FormatPDF         Format = "application/pdf"
	FormatDOCX        Format = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	FormatODT         Format = "application/vnd.oasis.opendocument.text"
	FormatOLE         Format = "application/x-tika-msoffice"
	FormatSRT         Format = "application/x-subrip"
	FormatVTT         Format = "text/vtt"
	FormatSSA         Format = "text/x-ssa"
)

// Base returns the lower-cased type/subtype without parameters.
func (f Format) Base() Format {
	s := string(f)
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return Format(strings.ToLower(strings.TrimSpace(s)))
}

// Param returns a media-type parameter such as "charset".
func (f Format) Param(name string) string {
	_, params, err := mime.ParseMediaType(string(f))
	if err != nil {
		return ""
	}
	return params[name]
}

// Is reports whether both formats share the same base type.
func (f Format) Is(other Format) bool {
	return f.Base() == other.Base()
}

// IsZero reports whether the format is empty.
func (f Format) IsZero() bool {
	return f.Base() == ""
}

// String returns the format as written.
func (f Format) String() string {
	return string(f)
}

// Extensions returns common file extensions for this format.
func (f Format) Extensions() []string {
	switch f.Base() {
	case FormatWAV, "audio/wav", "audio/x-wav":
		return []string{".wav"}
	case FormatAIFF, "audio/aiff":
		return []string{".aiff", ".aif", ".aifc"}
	case FormatAU:
		return []string{".au", ".snd"}
	case FormatFLAC, "audio/flac":
		return []string{".flac"}
	case FormatOgg, FormatVorbis, "application/ogg":
		return []string{".ogg", ".oga"}
	case FormatOpus:
		return []string{".opus"}
	case FormatMP3, "audio/mp3":
		return []string{".mp3"}
	case FormatM4A, "audio/x-m4a":
		return []string{".m4a", ".m4b"}
	case FormatMP4:
		return []string{".mp4"}
	case FormatQuickTime:
		return []string{".mov"}
	case FormatTMX:
		return []string{".tmx"}
	case FormatMbox:
		return []string{".mbox"}
	case FormatRFC822:
		return []string{".eml"}
	case FormatSRT:
		return []string{".srt"}
	case FormatVTT:
		return []string{".vtt"}
	case FormatSSA:
		return []string{".ssa", ".ass"}
	case FormatOLE:
		return []string{".msg", ".doc", ".xls", ".ppt", ".bin"}
	case "image/jpeg":
		return []string{".jpg", ".jpeg"}
	case "image/png":
		return []string{".png"}
	case "image/gif":
		return []string{".gif"}
	}
	exts, _ := mime.ExtensionsByType(string(f.Base())) //nolint:errcheck // Unknown types have no extensions
	return exts
}

// FormatForName guesses a format from a resource name's extension.
// Returns the zero Format when nothing is known.
func FormatForName(name string) Format {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	for _, f := range nameFormats {
		for _, e := range f.Extensions() {
			if e == ext {
				return f
			}
		}
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return Format(t)
	}
	return ""
}

// nameFormats lists formats whose extensions the platform MIME table may not know.
var nameFormats = []Format{
	FormatWAV, FormatAIFF, FormatAU, FormatFLAC, FormatOgg, FormatOpus, FormatMP3, FormatM4A, FormatMP4,
	FormatQuickTime, FormatTMX, FormatMbox, FormatRFC822, FormatSRT, FormatVTT, FormatSSA, FormatOLE,
}
