package tika

import (
	"github.com/dameikle/tika/internal/driver"
	"github.com/dameikle/tika/internal/types"
)

type (
	// Metadata is an ordered multi-valued record of facts about one stream.
	Metadata = types.Metadata
	// Format is a media type such as "application/pdf".
	Format = types.Format
	// Limits bounds one extraction.
	Limits = types.Limits
	// Extractor handles the formats it declares.
	Extractor = types.Extractor
	// Translator unwraps embedded streams before detection.
	Translator = types.Translator
	// Detector names the format of a stream.
	Detector = types.Detector
	// Node is one extracted stream in the result tree.
	Node = driver.Node
	// State is the lifecycle state of a Node.
	State = driver.State
	// Observer is notified once per finished node.
	Observer = driver.Observer
)

// Node states.
const (
	StateCompleted = driver.StateCompleted
	StateFailed    = driver.StateFailed
)

// Metadata keys written by the pipeline.
const (
	KeyContentType   = types.KeyContentType
	KeyResourceName  = types.KeyResourceName
	KeyContentLength = types.KeyContentLength
	KeyParsedBy      = types.KeyParsedBy
	KeyTranslatedBy  = types.KeyTranslatedBy
	KeyEmbeddedPath  = types.KeyEmbeddedPath
	KeyTitle         = types.KeyTitle
	KeyCreator       = types.KeyCreator
)

// NewMetadata returns an empty record, e.g. to seed Extract with hints.
func NewMetadata() *Metadata {
	return types.NewMetadata()
}

// DefaultLimits returns the limits New applies unless overridden.
func DefaultLimits() Limits {
	return types.DefaultLimits()
}
