package graph

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vk/workgraph/internal/ctxlog"
	"github.com/vk/workgraph/internal/descriptor"
	"github.com/vk/workgraph/internal/naming"
	"github.com/vk/workgraph/internal/topo"
	"github.com/vk/workgraph/internal/workflow"
)

// Clone implements Graph. The copy is named after the original,
// disambiguated against every stored workflow, and starts as a draft.
func (m *Manager) Clone(ctx context.Context, workflowID string) (newID string, err error) {
	ctx, span := m.startSpan(ctx, "Clone", attribute.String("workflow.id", workflowID))
	defer func() { endSpan(span, err) }()

	src, err := m.loadWorkflow(ctx, workflowID)
	if err != nil {
		return "", err
	}
	existing, err := m.store.ListWorkflows(ctx, true)
	if err != nil {
		return "", workflow.Persistence("list workflows", err)
	}
	names := make([]string, 0, len(existing))
	for _, wf := range existing {
		names = append(names, wf.Name)
	}

	created, err := m.store.SaveWorkflow(ctx, &workflow.Workflow{
		Name:        naming.Disambiguate(src.Name, names),
		Description: src.Description,
		Status:      workflow.StatusDraft,
		Visibility:  src.Visibility,
		Owner:       src.Owner,
		Tags:        append([]string(nil), src.Tags...),
		Active:      true,
	})
	if err != nil {
		return "", workflow.Persistence("save workflow", err)
	}
	span.SetAttributes(attribute.String("clone.id", created.ID))

	unlock := m.locks.Lock(created.ID)
	defer unlock()

	logger := ctxlog.FromContext(ctx).With("workflow_id", src.ID, "clone_id", created.ID)
	logger.Debug("Cloning workflow.", "nodes", len(src.Nodes))

	if _, err := m.replay(ctx, created, src, func(*workflow.Node) bool { return true }); err != nil {
		logger.Error("Clone left partially built.", "error", err)
		return created.ID, &workflow.PersistenceError{Op: "clone workflow", Err: err}
	}

	logger.Info("Workflow cloned.", "name", created.Name, "nodes", len(created.Nodes))
	return created.ID, nil
}

// ImportWorkflowNodes implements Graph.
func (m *Manager) ImportWorkflowNodes(ctx context.Context, masterID, subID string, keepDataSources bool) (ids map[string]string, err error) {
	ctx, span := m.startSpan(ctx, "ImportWorkflowNodes",
		attribute.String("workflow.id", masterID),
		attribute.String("import.source_id", subID),
		attribute.Bool("import.keep_datasources", keepDataSources),
	)
	defer func() { endSpan(span, err) }()

	if masterID == subID {
		return nil, workflow.InvalidArgument("cannot import workflow %q into itself", masterID)
	}
	sub, err := m.loadWorkflow(ctx, subID)
	if err != nil {
		return nil, err
	}

	unlock := m.locks.Lock(masterID)
	defer unlock()

	master, err := m.loadWorkflow(ctx, masterID)
	if err != nil {
		return nil, err
	}

	logger := ctxlog.FromContext(ctx).With("workflow_id", master.ID, "source_id", sub.ID)
	logger.Debug("Importing workflow nodes.", "nodes", len(sub.Nodes), "keep_datasources", keepDataSources)

	keep := func(n *workflow.Node) bool { return keepDataSources || !n.IsDataSource() }
	ids, err = m.replay(ctx, master, sub, keep)
	if err != nil {
		logger.Error("Import left partially applied.", "error", err)
		return ids, &workflow.PersistenceError{Op: "import workflow nodes", Err: err}
	}

	logger.Info("Workflow nodes imported.", "imported", len(ids))
	return ids, nil
}

type replayed struct {
	from, to *workflow.Node
}

// replay copies the nodes of src accepted by keep into target, in link
// order, then recreates the links between copied nodes. target.Nodes is
// kept current. It returns the mapping from src node ids to new ids built so
// far, even on failure.
func (m *Manager) replay(ctx context.Context, target, src *workflow.Workflow, keep func(*workflow.Node) bool) (map[string]string, error) {
	ordered, err := topo.Order(src.Nodes)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]string, len(ordered))
	var done []replayed
	for _, n := range ordered {
		if !keep(n) {
			continue
		}
		saved, err := m.addNode(ctx, target, m.freshCopy(n, ids))
		if err != nil {
			return ids, fmt.Errorf("copy node '%s': %w", n.Name, err)
		}
		ids[n.ID] = saved.ID
		done = append(done, replayed{from: n, to: saved})
	}

	for _, r := range done {
		added := 0
		for _, l := range r.from.Links {
			newSrcID, ok := ids[l.SourceNodeID]
			if !ok {
				continue
			}
			srcNode, _ := target.Node(newSrcID)
			link, err := m.translateLink(ctx, srcNode, r.to, l)
			if err != nil {
				return ids, fmt.Errorf("copy links of node '%s': %w", r.from.Name, err)
			}
			if !hasLink(r.to, link) {
				r.to.Links = append(r.to.Links, link)
				added++
			}
		}
		if added == 0 {
			continue
		}
		if _, err := m.store.UpdateNode(ctx, r.to); err != nil {
			return ids, workflow.Persistence("update node", err)
		}
	}
	return ids, nil
}

// freshCopy returns a copy of n without links and with new ids for the node
// and its group members. Links between members are remapped; member links
// from top-level nodes are remapped through ids, or dropped when that node
// was not copied.
func (m *Manager) freshCopy(n *workflow.Node, ids map[string]string) *workflow.Node {
	c := n.Clone()
	c.Links = nil

	remap := make(map[string]string, len(ids))
	for k, v := range ids {
		remap[k] = v
	}
	m.renumber(c, remap)
	if c.IsGroup() && c.Group != nil {
		relink(c.Group.Members, remap)
	}
	return c
}

func (m *Manager) renumber(n *workflow.Node, ids map[string]string) {
	id := m.newID()
	ids[n.ID] = id
	n.ID = id
	n.WorkflowID = ""
	if !n.IsGroup() || n.Group == nil {
		return
	}
	n.Component.ID = id
	restamp(n.Group.Component, id)
	for _, member := range n.Group.Members {
		m.renumber(member, ids)
	}
}

func relink(members []*workflow.Node, ids map[string]string) {
	for _, member := range members {
		kept := member.Links[:0]
		for _, l := range member.Links {
			if id, ok := ids[l.SourceNodeID]; ok {
				l.SourceNodeID = id
				kept = append(kept, l)
			}
		}
		member.Links = kept
		if member.IsGroup() && member.Group != nil {
			relink(member.Group.Members, ids)
		}
	}
}

// restamp points a synthesized group component and its descriptors at a new
// group id.
func restamp(c *descriptor.Component, id string) {
	if c == nil {
		return
	}
	c.ID = id
	for i := range c.Sources {
		c.Sources[i].ComponentID = id
		c.Sources[i].GroupID = id
	}
	for i := range c.Targets {
		c.Targets[i].ComponentID = id
		c.Targets[i].GroupID = id
	}
}

// translateLink rebuilds l between two copied nodes, taking the descriptors
// from the copies' components. Descriptors are matched by id, then by name.
func (m *Manager) translateLink(ctx context.Context, src, dst *workflow.Node, l workflow.Link) (workflow.Link, error) {
	srcComp, err := m.componentOf(ctx, src)
	if err != nil {
		return workflow.Link{}, err
	}
	dstComp, err := m.componentOf(ctx, dst)
	if err != nil {
		return workflow.Link{}, err
	}

	output, ok := srcComp.Target(l.Output.ID)
	if !ok {
		output, ok = srcComp.TargetByName(l.Output.Name)
	}
	if !ok {
		return workflow.Link{}, fmt.Errorf("%w: output %q on component %q", workflow.ErrNotFound, l.Output.ID, srcComp.ID)
	}
	input, ok := dstComp.Source(l.Input.ID)
	if !ok {
		input, ok = dstComp.SourceByName(l.Input.Name)
	}
	if !ok {
		return workflow.Link{}, fmt.Errorf("%w: input %q on component %q", workflow.ErrNotFound, l.Input.ID, dstComp.ID)
	}
	return workflow.Link{SourceNodeID: src.ID, Output: output, Input: input}, nil
}

func hasLink(n *workflow.Node, l workflow.Link) bool {
	for _, existing := range n.Links {
		if existing.Matches(l) {
			return true
		}
	}
	return false
}
