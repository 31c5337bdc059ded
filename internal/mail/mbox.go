package mail

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/emersion/go-mbox"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
)

// MboxName identifies the mailbox extractor.
const MboxName = "mail.MboxExtractor"

// KeyMessages counts the messages of a mailbox.
const KeyMessages = "mbox:messageCount"

// MboxExtractor splits an mbox mailbox into embedded messages.
type MboxExtractor struct{}

// NewMbox creates a mailbox extractor.
func NewMbox() *MboxExtractor {
	return &MboxExtractor{}
}

// Name implements types.Extractor.
func (e *MboxExtractor) Name() string { return MboxName }

// SupportedFormats implements types.Extractor.
func (e *MboxExtractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(types.FormatMbox)
}

// Extract implements types.Extractor. Each message is handed to the
// embedded-object callback as message/rfc822.
func (e *MboxExtractor) Extract(ctx context.Context, s *types.Stream, h sink.Handler, md *types.Metadata, ec *types.Context) error {
	r := mbox.NewReader(s)
	msg, err := r.NextMessage()
	if errors.Is(err, io.EOF) {
		return &types.UnsupportedFormatError{Format: types.FormatMbox, Reason: "empty mailbox"}
	} else if err != nil {
		return &types.UnsupportedFormatError{Err: err, Format: types.FormatMbox, Reason: "no message separator"}
	}

	x := sink.NewXHTML(h)
	if err := x.StartDocument(); err != nil {
		return err
	}
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return &types.ResourceLimitError{Limit: "deadline", Err: err}
		}
		child := types.NewMetadata()
		name := fmt.Sprintf("message-%d.eml", count)
		child.Set(types.KeyResourceName, name)
		child.Set(types.KeyContentType, string(types.FormatRFC822))
		if err := embed(ctx, x, ec, child, msg); err != nil {
			return err
		}
		count++

		msg, err = r.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			md.Set(KeyMessages, strconv.Itoa(count))
			return &types.MalformedInputError{Err: err, Format: types.FormatMbox, Reason: "read message " + strconv.Itoa(count)}
		}
	}
	md.Set(KeyMessages, strconv.Itoa(count))
	ec.Logger().Debug("mailbox split", zap.Int("messages", count))
	return x.EndDocument()
}
