// Package workflow holds the entities of the workflow graph: workflows, the
// nodes placed in them, and the links joining those nodes.
//
// Links are stored on their target node as incoming links; there is no global
// edge list. A node is either a simple placement of a catalog component or a
// group aggregating an ordered run of member nodes behind a synthesized
// component. The two share every field except the group payload, which is
// only set when Kind is KindGroup.
//
// The types here carry no behaviour beyond lookups and deep copies. All
// mutation goes through the graph package so that naming and validation rules
// are applied consistently.
package workflow

import (
	"time"

	"github.com/vk/workgraph/internal/descriptor"
)

// Status is the lifecycle state of a workflow.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Visibility controls who may see a workflow.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Workflow is a named, ordered collection of nodes.
type Workflow struct {
	ID          string
	Name        string
	Description string
	Status      Status
	Visibility  Visibility
	Owner       string
	CreatedAt   time.Time
	Tags        []string
	// Active is cleared by a soft delete; workflows are never purged here.
	Active bool
	Nodes  []*Node
}

// Node returns the top-level node with the given id.
func (w *Workflow) Node(id string) (*Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

// NodeByName returns the first top-level node with the given name.
func (w *Workflow) NodeByName(name string) (*Node, bool) {
	for _, n := range w.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return nil, false
}

// Names returns the names of every top-level node except the one with
// excludeID (pass "" to keep all).
func (w *Workflow) Names(excludeID string) []string {
	names := make([]string, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		if excludeID != "" && n.ID == excludeID {
			continue
		}
		names = append(names, n.Name)
	}
	return names
}

// Children returns the nodes holding at least one incoming link from id.
func (w *Workflow) Children(id string) []*Node {
	var out []*Node
	for _, n := range w.Nodes {
		for _, l := range n.Links {
			if l.SourceNodeID == id {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// Clone returns a deep copy of the workflow and all of its nodes.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	out := *w
	out.Tags = append([]string(nil), w.Tags...)
	out.Nodes = make([]*Node, len(w.Nodes))
	for i, n := range w.Nodes {
		out.Nodes[i] = n.Clone()
	}
	return &out
}

// Link is a directed edge from an output of the source node to an input of
// the node that stores it.
type Link struct {
	SourceNodeID string
	Output       descriptor.Target
	Input        descriptor.Source
}

// Valid reports whether the link names a source node, an output and an input.
func (l Link) Valid() bool {
	return l.SourceNodeID != "" && l.Output.ID != "" && l.Input.ID != ""
}

// Matches reports whether two links join the same endpoints.
func (l Link) Matches(o Link) bool {
	return l.SourceNodeID == o.SourceNodeID && l.Output.ID == o.Output.ID && l.Input.ID == o.Input.ID
}
