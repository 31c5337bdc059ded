package driver

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/dameikle/tika/internal/sink"
	"github.com/dameikle/tika/internal/types"
)

// State is the lifecycle state of one node in the extraction tree.
type State int

const (
	// StateDetecting is the initial state: limits and translators run and
	// the format is being detected.
	StateDetecting State = iota
	// StateExtractorSelected means an extractor was chosen for the format.
	StateExtractorSelected
	// StateExtracting means the extractor is running.
	StateExtracting
	// StateCompleted means the extractor returned cleanly with balanced output.
	StateCompleted
	// StateFailed means a recoverable condition stopped this node. Partial
	// events and metadata are kept.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDetecting:
		return "detecting"
	case StateExtractorSelected:
		return "extractor-selected"
	case StateExtracting:
		return "extracting"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed-non-fatal"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Node is the result of extracting one stream. Children are in discovery
// order. The metadata record is frozen.
type Node struct {
	Path     []int
	State    State
	Format   types.Format
	Metadata *types.Metadata
	Events   []sink.Event
	Children []*Node
}

// PathString renders the node's provenance path, "/" for the root.
func (n *Node) PathString() string {
	return types.PathString(n.Path)
}

// Depth returns the node's depth, 0 for the root.
func (n *Node) Depth() int {
	return len(n.Path)
}

// Failed reports whether the node ended in StateFailed.
func (n *Node) Failed() bool {
	return n.State == StateFailed
}

// Warnings returns the recoverable conditions recorded on this node.
func (n *Node) Warnings() []types.Warning {
	if n.Metadata == nil {
		return nil
	}
	return types.Warnings(n.Metadata)
}

// ErrSkipChildren can be returned from a Walk function to skip the
// descendants of the current node.
var ErrSkipChildren = errors.New("skip children")

// Walk visits n and its descendants depth-first in document order.
func (n *Node) Walk(fn func(*Node) error) error {
	err := fn(n)
	if errors.Is(err, ErrSkipChildren) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := c.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of nodes in the tree rooted at n.
func (n *Node) Count() int {
	total := 1
	for _, c := range n.Children {
		total += c.Count()
	}
	return total
}

// Find returns the node at the given path below n, or nil.
func (n *Node) Find(path ...int) *Node {
	cur := n
	for _, i := range path {
		if i < 0 || i >= len(cur.Children) {
			return nil
		}
		cur = cur.Children[i]
	}
	return cur
}
