package graph

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vk/workgraph/internal/ctxlog"
	"github.com/vk/workgraph/internal/workflow"
)

// AddLink implements Graph. Adding a link that already exists is a no-op.
func (m *Manager) AddLink(ctx context.Context, sourceNodeID, outputID, targetNodeID, inputID string) (updated *workflow.Node, err error) {
	ctx, span := m.startSpan(ctx, "AddLink",
		attribute.String("link.source_node_id", sourceNodeID),
		attribute.String("link.output_id", outputID),
		attribute.String("link.target_node_id", targetNodeID),
		attribute.String("link.input_id", inputID),
	)
	defer func() { endSpan(span, err) }()

	if sourceNodeID == "" || outputID == "" || targetNodeID == "" || inputID == "" {
		return nil, workflow.InvalidArgument("a link needs a source node, an output, a target node and an input")
	}

	wf, unlock, err := m.lockNodeWorkflow(ctx, targetNodeID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	dst, ok := wf.Node(targetNodeID)
	if !ok {
		return nil, workflow.NotFound("node", targetNodeID)
	}
	src, ok := wf.Node(sourceNodeID)
	if !ok {
		other, err := m.store.GetNodeByID(ctx, sourceNodeID)
		if err != nil {
			return nil, workflow.Persistence("get node", err)
		}
		return nil, workflow.InvalidArgument("node %q belongs to workflow %q, not %q", other.ID, other.WorkflowID, wf.ID)
	}

	srcComp, err := m.componentOf(ctx, src)
	if err != nil {
		return nil, err
	}
	output, ok := srcComp.Target(outputID)
	if !ok {
		return nil, fmt.Errorf("%w: output %q on component %q of node %q", workflow.ErrNotFound, outputID, srcComp.ID, src.Name)
	}
	dstComp, err := m.componentOf(ctx, dst)
	if err != nil {
		return nil, err
	}
	input, ok := dstComp.Source(inputID)
	if !ok {
		return nil, fmt.Errorf("%w: input %q on component %q of node %q", workflow.ErrNotFound, inputID, dstComp.ID, dst.Name)
	}

	return m.appendLink(ctx, dst, workflow.Link{SourceNodeID: src.ID, Output: output, Input: input})
}

func (m *Manager) appendLink(ctx context.Context, dst *workflow.Node, l workflow.Link) (*workflow.Node, error) {
	for _, existing := range dst.Links {
		if existing.Matches(l) {
			return dst, nil
		}
	}
	dst.Links = append(dst.Links, l)

	updated, err := m.store.UpdateNode(ctx, dst)
	if err != nil {
		return nil, workflow.Persistence("update node", err)
	}
	ctxlog.FromContext(ctx).Info("Link added.",
		"workflow_id", dst.WorkflowID,
		"node_id", dst.ID,
		"source_node_id", l.SourceNodeID,
		"output_id", l.Output.ID,
		"input_id", l.Input.ID,
	)
	return updated, nil
}

// RemoveLink implements Graph.
func (m *Manager) RemoveLink(ctx context.Context, nodeID string, l workflow.Link) (updated *workflow.Node, err error) {
	ctx, span := m.startSpan(ctx, "RemoveLink", attribute.String("node.id", nodeID))
	defer func() { endSpan(span, err) }()

	if !l.Valid() {
		return nil, workflow.InvalidArgument("link must name a source node, an output and an input")
	}

	wf, unlock, err := m.lockNodeWorkflow(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	n, ok := wf.Node(nodeID)
	if !ok {
		return nil, workflow.NotFound("node", nodeID)
	}
	if !n.RemoveLink(l) {
		return nil, fmt.Errorf("%w: link %s/%s -> %s on node %q", workflow.ErrNotFound, l.SourceNodeID, l.Output.ID, l.Input.ID, n.Name)
	}

	updated, err = m.store.UpdateNode(ctx, n)
	if err != nil {
		return nil, workflow.Persistence("update node", err)
	}
	ctxlog.FromContext(ctx).Info("Link removed.", "workflow_id", wf.ID, "node_id", nodeID, "source_node_id", l.SourceNodeID)
	return updated, nil
}

// lockNodeWorkflow locks the workflow owning nodeID and loads it once the
// lock is held.
func (m *Manager) lockNodeWorkflow(ctx context.Context, nodeID string) (*workflow.Workflow, func(), error) {
	probe, err := m.store.GetNodeByID(ctx, nodeID)
	if err != nil {
		return nil, nil, workflow.Persistence("get node", err)
	}

	unlock := m.locks.Lock(probe.WorkflowID)
	wf, err := m.loadWorkflow(ctx, probe.WorkflowID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return wf, unlock, nil
}
