package definition

import (
	"context"
	"fmt"

	"github.com/vk/workgraph/internal/ctxlog"
	"github.com/vk/workgraph/internal/graph"
	"github.com/vk/workgraph/internal/workflow"
)

// Apply creates a workflow from doc through g: nodes in document order, then
// every declared link. Like the other multi-step graph operations it is not
// transactional; when a later step fails the id of the partially built
// workflow is returned with the error.
func Apply(ctx context.Context, g graph.Graph, doc *Document) (string, error) {
	if err := doc.Validate(); err != nil {
		return "", err
	}
	logger := ctxlog.FromContext(ctx)

	wf, err := g.CreateWorkflow(ctx, &workflow.Workflow{
		Name:        doc.Name,
		Description: doc.Description,
		Visibility:  workflow.Visibility(doc.Visibility),
		Owner:       doc.Owner,
		Tags:        append([]string(nil), doc.Tags...),
	})
	if err != nil {
		return "", err
	}
	logger = logger.With("workflow_id", wf.ID)

	ids := make(map[string]string, len(doc.Nodes))
	for _, d := range doc.Nodes {
		saved, err := applyNode(ctx, g, wf.ID, d, ids)
		if err != nil {
			return wf.ID, fmt.Errorf("node '%s': %w", d.Name, err)
		}
		ids[d.Name] = saved.ID
	}

	links := 0
	for _, d := range doc.Nodes {
		for _, l := range d.Links {
			if _, err := g.AddLink(ctx, ids[l.From], l.Output, ids[d.Name], l.Input); err != nil {
				return wf.ID, fmt.Errorf("node '%s': link from '%s': %w", d.Name, l.From, err)
			}
			links++
		}
	}

	logger.Info("Workflow definition applied.", "name", wf.Name, "nodes", len(doc.Nodes), "links", links)
	return wf.ID, nil
}

func applyNode(ctx context.Context, g graph.Graph, workflowID string, d NodeDef, ids map[string]string) (*workflow.Node, error) {
	if !d.IsGroup() {
		return g.AddNode(ctx, workflowID, d.node())
	}
	members := make([]*workflow.Node, 0, len(d.Group))
	for _, m := range d.Group {
		members = append(members, m.node())
	}
	spec := graph.GroupSpec{Name: d.Name, X: d.X, Y: d.Y, PreserveOutput: d.PreserveOutput}
	return g.AddGroup(ctx, workflowID, spec, ids[d.After], members)
}

// Export renders the stored workflow id as a document. Group members are
// listed without links since AddGroup recreates the chain between them; a
// group's own incoming links are exported as ordinary links.
func Export(ctx context.Context, g graph.Graph, id string) (*Document, error) {
	wf, err := g.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Name:        wf.Name,
		Description: wf.Description,
		Owner:       wf.Owner,
		Tags:        append([]string(nil), wf.Tags...),
	}
	if wf.Visibility != workflow.VisibilityPrivate {
		doc.Visibility = string(wf.Visibility)
	}

	for _, n := range wf.Nodes {
		d := nodeDef(n)
		for _, l := range n.Links {
			src, ok := wf.Node(l.SourceNodeID)
			if !ok {
				return nil, fmt.Errorf("node '%s': %w: link source %q", n.Name, workflow.ErrNotFound, l.SourceNodeID)
			}
			d.Links = append(d.Links, LinkDef{From: src.Name, Output: l.Output.ID, Input: l.Input.ID})
		}
		doc.Nodes = append(doc.Nodes, d)
	}
	return doc, nil
}
