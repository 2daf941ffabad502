package graph

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vk/workgraph/internal/ctxlog"
	"github.com/vk/workgraph/internal/descriptor"
	"github.com/vk/workgraph/internal/naming"
	"github.com/vk/workgraph/internal/workflow"
)

// GroupSpec describes the group node created by AddGroup.
//
// The group's component is synthesized: its inputs are those of the first
// member's component and its outputs those of the last member's. Members are
// chained in order, each one's first output feeding the next one's first
// input. When a node before the group is named, its first output is linked
// to the group's first input; an input without a declared cardinality then
// takes the cardinality of that node's own first input.
type GroupSpec struct {
	Name           string
	X, Y           float64
	PreserveOutput bool
}

// AddGroup implements Graph.
func (m *Manager) AddGroup(ctx context.Context, workflowID string, spec GroupSpec, nodeBeforeID string, members []*workflow.Node) (saved *workflow.Node, err error) {
	ctx, span := m.startSpan(ctx, "AddGroup",
		attribute.String("workflow.id", workflowID),
		attribute.Int("group.members", len(members)),
	)
	defer func() { endSpan(span, err) }()

	if len(members) == 0 {
		return nil, workflow.InvalidArgument("a group needs at least one node")
	}
	for _, member := range members {
		if member == nil {
			return nil, workflow.InvalidArgument("group member is nil")
		}
		if member.ID != "" {
			return nil, workflow.InvalidArgument("group member %q already has an id", member.ID)
		}
	}

	unlock := m.locks.Lock(workflowID)
	defer unlock()

	wf, err := m.loadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Debug("Adding group.", "workflow_id", wf.ID, "name", spec.Name, "members", len(members))

	groupID := m.newID()
	copies := make([]*workflow.Node, 0, len(members))
	comps := make([]*descriptor.Component, 0, len(members))
	var names []string
	for _, member := range members {
		c := member.Clone()
		if c.Kind == "" {
			c.Kind = workflow.KindSimple
		}
		c.Name = naming.Disambiguate(c.Name, names)
		names = append(names, c.Name)
		workflow.AssignIDs(c, wf.ID, m.newID)

		comp, err := m.componentOf(ctx, c)
		if err != nil {
			return nil, err
		}
		copies = append(copies, c)
		comps = append(comps, comp)
	}

	for i := 1; i < len(copies); i++ {
		prev, cur := comps[i-1], comps[i]
		if len(prev.Targets) == 0 || len(cur.Sources) == 0 {
			continue
		}
		copies[i].Links = append(copies[i].Links, workflow.Link{
			SourceNodeID: copies[i-1].ID,
			Output:       prev.Targets[0],
			Input:        cur.Sources[0],
		})
	}

	name := naming.Disambiguate(spec.Name, wf.Names(""))
	groupComp := descriptor.NewGroupComponent(groupID, name, comps[0], comps[len(comps)-1])
	g := &workflow.Node{
		ID:             groupID,
		Kind:           workflow.KindGroup,
		Name:           name,
		X:              spec.X,
		Y:              spec.Y,
		PreserveOutput: spec.PreserveOutput,
		Component:      workflow.ComponentRef{ID: groupID, Type: descriptor.Group},
		Group:          &workflow.GroupData{Members: copies, Component: groupComp},
	}

	if nodeBeforeID != "" {
		before, ok := wf.Node(nodeBeforeID)
		if !ok {
			return nil, workflow.NotFound("node", nodeBeforeID)
		}
		beforeComp, err := m.componentOf(ctx, before)
		if err != nil {
			return nil, err
		}
		if len(beforeComp.Targets) == 0 {
			return nil, workflow.InvalidArgument("node '%s' has no output to feed the group", before.Name)
		}
		if len(groupComp.Sources) == 0 {
			return nil, workflow.InvalidArgument("group '%s' has no input", name)
		}
		if groupComp.Sources[0].Cardinality == descriptor.CardinalityUnspecified && len(beforeComp.Sources) > 0 {
			groupComp.Sources[0].Cardinality = beforeComp.Sources[0].Cardinality
		}
		g.Links = []workflow.Link{{
			SourceNodeID: before.ID,
			Output:       beforeComp.Targets[0],
			Input:        groupComp.Sources[0],
		}}
	}

	return m.addNode(ctx, wf, g)
}
