// Package subtitle extracts SubRip, WebVTT and SSA/ASS subtitle files.
package subtitle

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/asticode/go-astisub"
	"go.uber.org/zap"

	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
)

// Name identifies the extractor.
const Name = "subtitle.Extractor"

// Metadata keys written by this package.
const (
	KeyCues     = "subtitle:cueCount"
	KeyDuration = "xmpDM:duration"
)

type reader func(io.Reader) (*astisub.Subtitles, error)

var readers = map[types.Format]reader{
	types.FormatSRT: astisub.ReadFromSRT,
	types.FormatVTT: astisub.ReadFromWebVTT,
	types.FormatSSA: astisub.ReadFromSSA,
}

// Extractor reads subtitle cues.
type Extractor struct{}

// New creates a subtitle extractor.
func New() *Extractor {
	return &Extractor{}
}

// Name implements types.Extractor.
func (e *Extractor) Name() string { return Name }

// SupportedFormats implements types.Extractor.
func (e *Extractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(types.FormatSRT, types.FormatVTT, types.FormatSSA)
}

// Extract implements types.Extractor. Each cue becomes a paragraph whose
// start and end attributes hold its timing.
func (e *Extractor) Extract(ctx context.Context, s *types.Stream, h sink.Handler, md *types.Metadata, ec *types.Context) error {
	format := types.Format(md.Get(types.KeyContentType)).Base()
	read, ok := readers[format]
	if !ok {
		return &types.UnsupportedFormatError{Format: format, Reason: "not a subtitle format"}
	}
	subs, err := read(s)
	if err != nil {
		return &types.MalformedInputError{Err: err, Format: format, Reason: "parse subtitles"}
	}

	var end time.Duration
	for _, item := range subs.Items {
		if item.EndAt > end {
			end = item.EndAt
		}
	}
	md.Set(KeyCues, strconv.Itoa(len(subs.Items)))
	if end > 0 {
		md.Set(KeyDuration, strconv.FormatFloat(end.Seconds(), 'f', -1, 64))
	}
	if subs.Metadata != nil {
		if subs.Metadata.Title != "" {
			md.Set(types.KeyTitle, subs.Metadata.Title)
		}
		if subs.Metadata.Language != "" {
			md.Set(types.KeyLanguage, subs.Metadata.Language)
		}
	}
	ec.Logger().Debug("subtitles", zap.Int("cues", len(subs.Items)), zap.Duration("end", end))

	x := sink.NewXHTML(h)
	if err := x.StartDocument(); err != nil {
		return err
	}
	for _, item := range subs.Items {
		if err := ctx.Err(); err != nil {
			return &types.ResourceLimitError{Limit: "deadline", Err: err}
		}
		lines := make([]string, 0, len(item.Lines))
		for _, l := range item.Lines {
			if t := strings.TrimSpace(l.String()); t != "" {
				lines = append(lines, t)
			}
		}
		err := x.Element("p", strings.Join(lines, "\n"),
			sink.Attr{Name: "class", Value: "cue"},
			sink.Attr{Name: "start", Value: timestamp(item.StartAt)},
			sink.Attr{Name: "end", Value: timestamp(item.EndAt)})
		if err != nil {
			return err
		}
	}
	return x.EndDocument()
}

// timestamp renders d as HH:MM:SS.mmm.
func timestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}
