package graph

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vk/workgraph/internal/ctxlog"
	"github.com/vk/workgraph/internal/naming"
	"github.com/vk/workgraph/internal/workflow"
)

// AddNode implements Graph.
func (m *Manager) AddNode(ctx context.Context, workflowID string, n *workflow.Node) (saved *workflow.Node, err error) {
	ctx, span := m.startSpan(ctx, "AddNode", attribute.String("workflow.id", workflowID))
	defer func() { endSpan(span, err) }()

	if n == nil {
		return nil, workflow.InvalidArgument("node is required")
	}
	if n.ID != "" {
		return nil, workflow.InvalidArgument("node %q already has an id", n.ID)
	}

	unlock := m.locks.Lock(workflowID)
	defer unlock()

	wf, err := m.loadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return m.addNode(ctx, wf, n.Clone())
}

// addNode names, validates and saves candidate, then appends the stored node
// to wf.Nodes so that later steps of the same operation see it. candidate may
// already carry an id.
func (m *Manager) addNode(ctx context.Context, wf *workflow.Workflow, candidate *workflow.Node) (*workflow.Node, error) {
	logger := ctxlog.FromContext(ctx).With("workflow_id", wf.ID)

	candidate.WorkflowID = wf.ID
	if candidate.Kind == "" {
		candidate.Kind = workflow.KindSimple
	}
	candidate.Name = naming.Disambiguate(candidate.Name, wf.Names(""))
	logger.Debug("Adding node.", "name", candidate.Name, "component_id", candidate.Component.ID)

	if err := m.validateNode(ctx, wf, candidate); err != nil {
		return nil, err
	}

	saved, err := m.store.SaveNode(ctx, candidate)
	if err != nil {
		return nil, workflow.Persistence("save node", err)
	}
	wf.Nodes = append(wf.Nodes, saved)

	logger.Info("Node added.", "node_id", saved.ID, "name", saved.Name)
	return saved, nil
}

// UpdateNode implements Graph.
func (m *Manager) UpdateNode(ctx context.Context, workflowID string, n *workflow.Node) (updated *workflow.Node, err error) {
	ctx, span := m.startSpan(ctx, "UpdateNode", attribute.String("workflow.id", workflowID))
	defer func() { endSpan(span, err) }()

	if n == nil || n.ID == "" {
		return nil, workflow.InvalidArgument("node id is required for an update")
	}
	span.SetAttributes(attribute.String("node.id", n.ID))

	unlock := m.locks.Lock(workflowID)
	defer unlock()

	wf, err := m.loadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if _, ok := wf.Node(n.ID); !ok {
		return nil, workflow.NotFound("node", n.ID)
	}

	logger := ctxlog.FromContext(ctx).With("workflow_id", wf.ID, "node_id", n.ID)
	candidate := n.Clone()
	candidate.WorkflowID = wf.ID
	if candidate.Kind == "" {
		candidate.Kind = workflow.KindSimple
	}
	candidate.Name = naming.Disambiguate(candidate.Name, wf.Names(candidate.ID))
	logger.Debug("Updating node.", "name", candidate.Name)

	if err := m.validateNode(ctx, wf, candidate); err != nil {
		return nil, err
	}

	updated, err = m.store.UpdateNode(ctx, candidate)
	if err != nil {
		return nil, workflow.Persistence("update node", err)
	}
	logger.Info("Node updated.", "name", updated.Name)
	return updated, nil
}

// RemoveNode implements Graph.
func (m *Manager) RemoveNode(ctx context.Context, workflowID, nodeID string) (err error) {
	ctx, span := m.startSpan(ctx, "RemoveNode",
		attribute.String("workflow.id", workflowID),
		attribute.String("node.id", nodeID),
	)
	defer func() { endSpan(span, err) }()

	unlock := m.locks.Lock(workflowID)
	defer unlock()

	wf, err := m.loadWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	target, ok := wf.Node(nodeID)
	if !ok {
		return workflow.NotFound("node", nodeID)
	}

	logger := ctxlog.FromContext(ctx).With("workflow_id", wf.ID, "node_id", nodeID)
	logger.Debug("Removing node.", "name", target.Name)

	// The node is dropped as a whole below; its own links go with it.
	severed := len(target.Links)
	target.Links = nil

	rewritten := 0
	for _, other := range wf.Nodes {
		if other.ID == nodeID || stripLinksFrom(other, nodeID) == 0 {
			continue
		}
		if _, err := m.store.UpdateNode(ctx, other); err != nil {
			return workflow.Persistence("update child node", err)
		}
		rewritten++
	}

	if m.queries != nil {
		for _, ds := range dataSources(target) {
			if err := m.queries.RemoveQueryForNode(ctx, ds.ID); err != nil {
				return workflow.Persistence("remove query for node", err)
			}
		}
	}

	kept := make([]*workflow.Node, 0, len(wf.Nodes))
	for _, n := range wf.Nodes {
		if n.ID != nodeID {
			kept = append(kept, n)
		}
	}
	wf.Nodes = kept
	if err := m.store.UpdateWorkflow(ctx, wf); err != nil {
		return workflow.Persistence("update workflow", err)
	}

	logger.Info("Node removed.", "links_severed", severed, "children_rewritten", rewritten)
	return nil
}

// stripLinksFrom removes the links from sourceID held by n or by any of its
// group members, recursively, and reports how many were removed.
func stripLinksFrom(n *workflow.Node, sourceID string) int {
	removed := n.RemoveLinksFrom(sourceID)
	if n.IsGroup() && n.Group != nil {
		for _, member := range n.Group.Members {
			removed += stripLinksFrom(member, sourceID)
		}
	}
	return removed
}

// dataSources returns n and its group members that reference a datasource.
func dataSources(n *workflow.Node) []*workflow.Node {
	var out []*workflow.Node
	if n.IsDataSource() {
		out = append(out, n)
	}
	if n.IsGroup() && n.Group != nil {
		for _, member := range n.Group.Members {
			out = append(out, dataSources(member)...)
		}
	}
	return out
}
