package workflow

import "github.com/vk/workgraph/internal/descriptor"

// Kind discriminates the node variants.
type Kind string

const (
	KindSimple Kind = "simple"
	KindGroup  Kind = "group"
)

// ComponentRef points a node at a catalog component.
type ComponentRef struct {
	ID   string
	Type descriptor.ComponentType
}

// ParameterOverride is a node-local value for one component parameter.
type ParameterOverride struct {
	Name  string
	Value string
}

// GroupData is the payload of a group node.
type GroupData struct {
	Members   []*Node
	Component *descriptor.Component
}

// Node is one placement of a component inside a workflow.
type Node struct {
	ID             string
	WorkflowID     string
	Kind           Kind
	Name           string
	X, Y           float64
	Component      ComponentRef
	CustomValues   []ParameterOverride
	PreserveOutput bool
	Links          []Link
	Group          *GroupData
}

// IsGroup reports whether the node is a group node.
func (n *Node) IsGroup() bool {
	return n.Kind == KindGroup
}

// IsDataSource reports whether the node references a datasource component.
func (n *Node) IsDataSource() bool {
	return n.Component.Type == descriptor.DataSource
}

// CustomValue returns the override for the named parameter, if any. When a
// name is overridden more than once the last entry wins.
func (n *Node) CustomValue(name string) (string, bool) {
	for i := len(n.CustomValues) - 1; i >= 0; i-- {
		if n.CustomValues[i].Name == name {
			return n.CustomValues[i].Value, true
		}
	}
	return "", false
}

// RemoveLinksFrom strips every incoming link whose source is sourceID and
// reports how many were removed.
func (n *Node) RemoveLinksFrom(sourceID string) int {
	kept := n.Links[:0]
	removed := 0
	for _, l := range n.Links {
		if l.SourceNodeID == sourceID {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	n.Links = kept
	return removed
}

// RemoveLink strips the incoming links matching l and reports whether one
// was found.
func (n *Node) RemoveLink(l Link) bool {
	kept := n.Links[:0]
	found := false
	for _, existing := range n.Links {
		if existing.Matches(l) {
			found = true
			continue
		}
		kept = append(kept, existing)
	}
	n.Links = kept
	return found
}

// Clone returns a deep copy of the node, including group members.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	out.CustomValues = append([]ParameterOverride(nil), n.CustomValues...)
	out.Links = append([]Link(nil), n.Links...)
	if n.Group != nil {
		g := &GroupData{Component: n.Group.Component.Clone()}
		for _, m := range n.Group.Members {
			g.Members = append(g.Members, m.Clone())
		}
		out.Group = g
	}
	return &out
}

// AssignIDs gives an id to the node and to any group member lacking one, and
// stamps the workflow id on all of them. It is used by stores on first save.
func AssignIDs(n *Node, workflowID string, newID func() string) {
	if n.ID == "" {
		n.ID = newID()
	}
	n.WorkflowID = workflowID
	if n.Group == nil {
		return
	}
	for _, m := range n.Group.Members {
		AssignIDs(m, workflowID, newID)
	}
}
