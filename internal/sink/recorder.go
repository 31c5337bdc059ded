package sink

import (
	"fmt"

	"github.com/pkg/errors"
)

// EventKind identifies a content event.
type EventKind int

const (
	EventStartDocument EventKind = iota
	EventEndDocument
	EventStartElement
	EventEndElement
	EventCharacters
)

// String returns the serialized name of the kind.
func (k EventKind) String() string {
	switch k {
	case EventStartDocument:
		return "start-document"
	case EventEndDocument:
		return "end-document"
	case EventStartElement:
		return "start-element"
	case EventEndElement:
		return "end-element"
	case EventCharacters:
		return "characters"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one recorded content event.
type Event struct {
	Kind  EventKind
	Name  string
	Text  string
	Attrs []Attr
}

// Recorder is a Handler that keeps the full event log and tracks nesting.
//
// Events that break stack discipline are still recorded, the call returns
// ErrUnbalanced, and the recorder stops reporting itself well-formed.
// Balance can be queried at any point, including after a failed extraction.
type Recorder struct {
	events  []Event
	stack   []string
	docOpen bool
	broken  bool
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) fail(format string, args ...any) error {
	r.broken = true
	return errors.Wrapf(ErrUnbalanced, format, args...)
}

// StartDocument implements Handler.
func (r *Recorder) StartDocument() error {
	r.events = append(r.events, Event{Kind: EventStartDocument})
	if r.docOpen {
		return r.fail("document already started")
	}
	r.docOpen = true
	return nil
}

// EndDocument implements Handler.
func (r *Recorder) EndDocument() error {
	r.events = append(r.events, Event{Kind: EventEndDocument})
	if !r.docOpen {
		return r.fail("end of document that was never started")
	}
	r.docOpen = false
	if len(r.stack) > 0 {
		return r.fail("document ended with %d open elements", len(r.stack))
	}
	return nil
}

// StartElement implements Handler.
func (r *Recorder) StartElement(name string, attrs ...Attr) error {
	r.events = append(r.events, Event{Kind: EventStartElement, Name: name, Attrs: append([]Attr(nil), attrs...)})
	if !r.docOpen {
		return r.fail("element %q outside document", name)
	}
	r.stack = append(r.stack, name)
	return nil
}

// EndElement implements Handler.
func (r *Recorder) EndElement(name string) error {
	r.events = append(r.events, Event{Kind: EventEndElement, Name: name})
	if len(r.stack) == 0 {
		return r.fail("end of %q with no open element", name)
	}
	top := r.stack[len(r.stack)-1]
	if top != name {
		return r.fail("end of %q while %q is open", name, top)
	}
	r.stack = r.stack[:len(r.stack)-1]
	return nil
}

// Characters implements Handler.
func (r *Recorder) Characters(text string) error {
	r.events = append(r.events, Event{Kind: EventCharacters, Text: text})
	if !r.docOpen {
		return r.fail("characters outside document")
	}
	return nil
}

// Events returns a copy of the log.
func (r *Recorder) Events() []Event {
	return append([]Event(nil), r.events...)
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	return len(r.events)
}

// WellFormed reports whether no event so far broke stack discipline.
func (r *Recorder) WellFormed() bool {
	return !r.broken
}

// Balanced reports whether the log is currently complete: well-formed, no
// open elements and no open document. An empty log is balanced.
func (r *Recorder) Balanced() bool {
	return !r.broken && len(r.stack) == 0 && !r.docOpen
}

// Open returns the currently open element names, innermost last.
func (r *Recorder) Open() []string {
	return append([]string(nil), r.stack...)
}

// DocumentOpen reports whether a document was started and not yet ended.
func (r *Recorder) DocumentOpen() bool {
	return r.docOpen
}
