package sink

import (
	"strings"

	"github.com/pkg/errors"
)

// XHTML writes an html/body shaped document into a Handler and refuses to
// close elements out of order. Extractors use it instead of talking to the
// Handler directly.
type XHTML struct {
	h     Handler
	stack []string
}

// NewXHTML wraps h.
func NewXHTML(h Handler) *XHTML {
	return &XHTML{h: h}
}

// StartDocument starts the document and opens html and body.
func (x *XHTML) StartDocument() error {
	if err := x.h.StartDocument(); err != nil {
		return err
	}
	if err := x.Start("html"); err != nil {
		return err
	}
	return x.Start("body")
}

// EndDocument closes body and html and ends the document. Every element
// opened by the caller must already be closed.
func (x *XHTML) EndDocument() error {
	if len(x.stack) != 2 {
		return errors.Wrapf(ErrUnbalanced, "end of document with open elements %v", x.stack)
	}
	if err := x.End("body"); err != nil {
		return err
	}
	if err := x.End("html"); err != nil {
		return err
	}
	return x.h.EndDocument()
}

// Start opens an element.
func (x *XHTML) Start(name string, attrs ...Attr) error {
	if err := x.h.StartElement(name, attrs...); err != nil {
		return err
	}
	x.stack = append(x.stack, name)
	return nil
}

// End closes the innermost element, which must be name.
func (x *XHTML) End(name string) error {
	if len(x.stack) == 0 || x.stack[len(x.stack)-1] != name {
		return errors.Wrapf(ErrUnbalanced, "end of %q does not match open elements %v", name, x.stack)
	}
	if err := x.h.EndElement(name); err != nil {
		return err
	}
	x.stack = x.stack[:len(x.stack)-1]
	return nil
}

// Characters writes text. Empty text is skipped.
func (x *XHTML) Characters(text string) error {
	if text == "" {
		return nil
	}
	return x.h.Characters(text)
}

// Element writes a complete element holding text.
func (x *XHTML) Element(name, text string, attrs ...Attr) error {
	if err := x.Start(name, attrs...); err != nil {
		return err
	}
	if err := x.Characters(text); err != nil {
		return err
	}
	return x.End(name)
}

// Paragraphs writes text as p elements, one per run of non-blank lines.
// Line breaks inside a run are kept.
func (x *XHTML) Paragraphs(text string) error {
	var para []string
	flush := func() error {
		if len(para) == 0 {
			return nil
		}
		err := x.Element("p", strings.Join(para, "\n"))
		para = para[:0]
		return err
	}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		para = append(para, strings.TrimRight(line, " \t\r"))
	}
	return flush()
}

// Depth returns the number of open elements, including html and body.
func (x *XHTML) Depth() int {
	return len(x.stack)
}
