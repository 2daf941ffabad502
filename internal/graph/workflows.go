package graph

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vk/workgraph/internal/ctxlog"
	"github.com/vk/workgraph/internal/params"
	"github.com/vk/workgraph/internal/store"
	"github.com/vk/workgraph/internal/topo"
	"github.com/vk/workgraph/internal/workflow"
)

// CreateWorkflow implements Graph.
func (m *Manager) CreateWorkflow(ctx context.Context, wf *workflow.Workflow) (created *workflow.Workflow, err error) {
	ctx, span := m.startSpan(ctx, "CreateWorkflow")
	defer func() { endSpan(span, err) }()

	if wf == nil {
		return nil, workflow.InvalidArgument("workflow is required")
	}
	if wf.ID != "" {
		return nil, workflow.InvalidArgument("workflow %q already has an id", wf.ID)
	}
	if len(wf.Nodes) > 0 {
		return nil, workflow.InvalidArgument("nodes are added with AddNode, not with the workflow")
	}
	if wf.Name == "" {
		return nil, workflow.NewValidationError([]string{"workflow name must not be empty"})
	}

	shell := wf.Clone()
	if shell.Status == "" {
		shell.Status = workflow.StatusDraft
	}
	if shell.Visibility == "" {
		shell.Visibility = workflow.VisibilityPrivate
	}
	shell.Active = true

	created, err = m.store.SaveWorkflow(ctx, shell)
	if err != nil {
		return nil, workflow.Persistence("save workflow", err)
	}
	span.SetAttributes(attribute.String("workflow.id", created.ID))
	ctxlog.FromContext(ctx).Info("Workflow created.", "workflow_id", created.ID, "name", created.Name)
	return created, nil
}

// GetWorkflow implements Graph.
func (m *Manager) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	return m.loadWorkflow(ctx, id)
}

// ListWorkflows implements Graph.
func (m *Manager) ListWorkflows(ctx context.Context, includeInactive bool) ([]*workflow.Workflow, error) {
	list, err := m.store.ListWorkflows(ctx, includeInactive)
	if err != nil {
		return nil, workflow.Persistence("list workflows", err)
	}
	return list, nil
}

// DeleteWorkflow implements Graph. Deleting an inactive workflow is a no-op.
func (m *Manager) DeleteWorkflow(ctx context.Context, id string) (err error) {
	ctx, span := m.startSpan(ctx, "DeleteWorkflow", attribute.String("workflow.id", id))
	defer func() { endSpan(span, err) }()

	unlock := m.locks.Lock(id)
	defer unlock()

	wf, err := m.loadWorkflow(ctx, id)
	if err != nil {
		return err
	}
	if !wf.Active {
		return nil
	}
	wf.Active = false
	if err := m.store.UpdateWorkflow(ctx, wf); err != nil {
		return workflow.Persistence("update workflow", err)
	}
	ctxlog.FromContext(ctx).Info("Workflow deleted.", "workflow_id", id)
	return nil
}

// ValidateWorkflow implements Graph.
func (m *Manager) ValidateWorkflow(ctx context.Context, id string) (err error) {
	ctx, span := m.startSpan(ctx, "ValidateWorkflow", attribute.String("workflow.id", id))
	defer func() { endSpan(span, err) }()

	wf, err := m.loadWorkflow(ctx, id)
	if err != nil {
		return err
	}
	problems, err := m.validator.Workflow(ctx, wf)
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		ctxlog.FromContext(ctx).Warn("Workflow failed validation.", "workflow_id", id, "problems", len(problems))
	}
	return workflow.NewValidationError(problems)
}

// ExecutionOrder implements Graph.
func (m *Manager) ExecutionOrder(ctx context.Context, id string) (tasks []*workflow.Node, err error) {
	ctx, span := m.startSpan(ctx, "ExecutionOrder", attribute.String("workflow.id", id))
	defer func() { endSpan(span, err) }()

	wf, err := m.loadWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	ordered, err := topo.Order(wf.Nodes)
	if err != nil {
		return nil, err
	}
	return topo.Expand(ordered), nil
}

// WorkflowParameters implements Graph.
func (m *Manager) WorkflowParameters(ctx context.Context, id string) (out map[string][]params.Parameter, err error) {
	ctx, span := m.startSpan(ctx, "WorkflowParameters", attribute.String("workflow.id", id))
	defer func() { endSpan(span, err) }()

	wf, err := m.loadWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.params.WorkflowParameters(ctx, wf)
}

// SetQuery implements Graph.
func (m *Manager) SetQuery(ctx context.Context, q *store.Query) (err error) {
	ctx, span := m.startSpan(ctx, "SetQuery")
	defer func() { endSpan(span, err) }()

	if q == nil || q.NodeID == "" {
		return workflow.InvalidArgument("query must name a node")
	}
	if q.Offset < 0 || q.Limit < 0 {
		return workflow.InvalidArgument("query offset and limit must not be negative")
	}
	if m.queries == nil {
		return workflow.InvalidArgument("no query store is configured")
	}
	span.SetAttributes(attribute.String("node.id", q.NodeID))

	n, err := m.store.GetNodeByID(ctx, q.NodeID)
	if err != nil {
		return workflow.Persistence("get node", err)
	}
	if !n.IsDataSource() {
		return workflow.InvalidArgument("node '%s' is not a datasource", n.Name)
	}
	if err := m.queries.SaveQuery(ctx, q); err != nil {
		return workflow.Persistence("save query", err)
	}
	ctxlog.FromContext(ctx).Info("Query saved.", "workflow_id", n.WorkflowID, "node_id", n.ID, "filters", len(q.Filters))
	return nil
}
