// Package mail extracts RFC 822 messages and mbox mailboxes.
//
// A message's text body becomes paragraphs and its attachments, inline parts
// and other non-body parts become embedded objects. A mailbox embeds each of
// its messages.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	"go.uber.org/zap"

	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
)

// Name identifies the message extractor.
const Name = "mail.Extractor"

// OptEmbedHTML makes the HTML alternative body an embedded object.
const OptEmbedHTML = "embedHTMLBody"

// Metadata keys written by this package.
const (
	KeyFrom          = "Message-From"
	KeyTo            = "Message-To"
	KeyCc            = "Message-Cc"
	KeyBcc           = "Message-Bcc"
	KeyRawHeader     = "Message:Raw-Header:"
	KeyContentID     = "Content-ID"
	KeyAttachmentCnt = "Message:Attachment-Count"
)

// rawHeaders are copied verbatim under KeyRawHeader.
var rawHeaders = []string{"Message-ID", "In-Reply-To", "References", "X-Mailer", "User-Agent"}

var addressFields = []struct{ key, header string }{
	{KeyFrom, "From"},
	{KeyTo, "To"},
	{KeyCc, "Cc"},
	{KeyBcc, "Bcc"},
}

// Extractor reads MIME messages with enmime.
type Extractor struct{}

// New creates a message extractor.
func New() *Extractor {
	return &Extractor{}
}

// Name implements types.Extractor.
func (e *Extractor) Name() string { return Name }

// SupportedFormats implements types.Extractor.
func (e *Extractor) SupportedFormats(*types.Context) []types.Format {
	return types.FormatSet(types.FormatRFC822)
}

// Extract implements types.Extractor.
func (e *Extractor) Extract(ctx context.Context, s *types.Stream, h sink.Handler, md *types.Metadata, ec *types.Context) error {
	env, err := enmime.ReadEnvelope(s)
	if err != nil {
		return &types.MalformedInputError{Err: err, Format: types.FormatRFC822, Reason: "read message"}
	}
	log := ec.Logger()

	applyHeaders(env, md)
	for _, perr := range env.Errors {
		md.Add(types.WarningKey(types.MalformedInput), perr.Error())
		log.Debug("mime part damaged", zap.String("detail", perr.Error()))
	}

	x := sink.NewXHTML(h)
	if err := x.StartDocument(); err != nil {
		return err
	}
	if subject := env.GetHeader("Subject"); subject != "" {
		if err := x.Element("h1", subject); err != nil {
			return err
		}
	}
	if err := x.Start("div", sink.Attr{Name: "class", Value: "email-body"}); err != nil {
		return err
	}
	if err := x.Paragraphs(env.Text); err != nil {
		return err
	}
	if err := x.End("div"); err != nil {
		return err
	}

	index := 0
	if env.HTML != "" && ec.BoolOption(Name, OptEmbedHTML, false) {
		child := types.NewMetadata()
		child.Set(types.KeyResourceName, "body.html")
		child.Set(types.KeyContentType, string(types.FormatHTML)+"; charset=utf-8")
		if err := embed(ctx, x, ec, child, strings.NewReader(env.HTML)); err != nil {
			return err
		}
		index++
	}

	parts := make([]*enmime.Part, 0, len(env.Attachments)+len(env.Inlines)+len(env.OtherParts))
	parts = append(parts, env.Attachments...)
	parts = append(parts, env.Inlines...)
	parts = append(parts, env.OtherParts...)
	for _, p := range parts {
		child := types.NewMetadata()
		name := p.FileName
		if name == "" {
			name = fmt.Sprintf("part-%d", index)
			if exts := types.Format(p.ContentType).Extensions(); len(exts) > 0 {
				name += exts[0]
			}
		}
		child.Set(types.KeyResourceName, name)
		if p.ContentType != "" {
			child.Set(types.KeyContentType, p.ContentType)
		}
		if p.ContentID != "" {
			child.Set(KeyContentID, p.ContentID)
		}
		if err := embed(ctx, x, ec, child, bytes.NewReader(p.Content)); err != nil {
			return err
		}
		index++
	}
	md.Set(KeyAttachmentCnt, fmt.Sprint(len(env.Attachments)))
	log.Debug("message extracted", zap.Int("parts", len(parts)), zap.Int("errors", len(env.Errors)))
	return x.EndDocument()
}

func embed(ctx context.Context, x *sink.XHTML, ec *types.Context, md *types.Metadata, r io.Reader) error {
	if err := x.Element("p", md.Get(types.KeyResourceName), sink.Attr{Name: "class", Value: "embedded"}); err != nil {
		return err
	}
	return ec.Embed(ctx, r, md)
}

// applyHeaders maps message headers onto md.
func applyHeaders(env *enmime.Envelope, md *types.Metadata) {
	if subject := env.GetHeader("Subject"); subject != "" {
		md.Set(types.KeyTitle, subject)
		md.Set(types.KeySubject, subject)
	}
	for _, f := range addressFields {
		addrs, err := env.AddressList(f.header)
		if err != nil {
			continue
		}
		for _, a := range addrs {
			md.Add(f.key, formatAddress(a))
		}
	}
	if from := md.Values(KeyFrom); len(from) > 0 {
		md.Set(types.KeyCreator, from...)
	}
	if date := env.GetHeader("Date"); date != "" {
		if t, err := netmail.ParseDate(date); err == nil {
			md.Set(types.KeyCreated, t.UTC().Format(time.RFC3339))
		}
	}
	for _, name := range rawHeaders {
		if v := env.GetHeader(name); v != "" {
			md.Set(KeyRawHeader+name, strings.TrimSpace(v))
		}
	}
}

// formatAddress renders "Name <addr>", or the bare address without a name.
func formatAddress(a *netmail.Address) string {
	if a.Name == "" {
		return a.Address
	}
	return a.Name + " <" + a.Address + ">"
}
