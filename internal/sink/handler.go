// Package sink defines the canonical content event stream every extractor
// writes into, plus a recorder and an XHTML-shaped writer on top of it.
package sink

import "github.com/pkg/errors"

// ErrUnbalanced is returned when an event breaks stack discipline.
var ErrUnbalanced = errors.New("unbalanced content events")

// Attr is an element attribute.
type Attr struct {
	Name  string
	Value string
}

// Handler consumes a strictly nested sequence of document, element and
// character events. Returning an error stops the producing extractor.
type Handler interface {
	StartDocument() error
	EndDocument() error
	StartElement(name string, attrs ...Attr) error
	EndElement(name string) error
	Characters(text string) error
}

// Discard is a Handler that accepts and drops every event.
var Discard Handler = discard{}

type discard struct{}

func (discard) StartDocument() error               { return nil }
func (discard) EndDocument() error                 { return nil }
func (discard) StartElement(string, ...Attr) error { return nil }
func (discard) EndElement(string) error            { return nil }
func (discard) Characters(string) error            { return nil }
