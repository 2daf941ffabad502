package graph

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vk/workgraph/internal/catalog"
	"github.com/vk/workgraph/internal/convert"
	"github.com/vk/workgraph/internal/ctxlog"
	"github.com/vk/workgraph/internal/descriptor"
	"github.com/vk/workgraph/internal/params"
	"github.com/vk/workgraph/internal/store"
	"github.com/vk/workgraph/internal/validate"
	"github.com/vk/workgraph/internal/workflow"
)

// TracerName is the instrumentation name used when Deps.Tracer is nil.
const TracerName = "github.com/vk/workgraph/internal/graph"

// Deps carries the collaborators of a Manager.
type Deps struct {
	// Store is required.
	Store store.Store
	// Queries defaults to Store when it also implements store.QueryStore.
	Queries store.QueryStore
	// Catalog is required.
	Catalog catalog.Catalog
	// Converter defaults to convert.CtyConverter.
	Converter convert.Converter
	// Tracer defaults to the global provider's tracer.
	Tracer trace.Tracer
}

// Manager implements Graph on top of its collaborators.
type Manager struct {
	store     store.Store
	queries   store.QueryStore
	catalog   catalog.Catalog
	validator *validate.Validator
	params    *params.Aggregator
	tracer    trace.Tracer
	locks     *keyedMutex
	newID     func() string
}

var _ Graph = (*Manager)(nil)

// New creates a Manager.
func New(d Deps) (*Manager, error) {
	if d.Store == nil {
		return nil, errors.New("graph: store is required")
	}
	if d.Catalog == nil {
		return nil, errors.New("graph: catalog is required")
	}

	queries := d.Queries
	if queries == nil {
		if qs, ok := d.Store.(store.QueryStore); ok {
			queries = qs
		}
	}
	conv := d.Converter
	if conv == nil {
		conv = convert.CtyConverter{}
	}
	tracer := d.Tracer
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}

	return &Manager{
		store:     d.Store,
		queries:   queries,
		catalog:   d.Catalog,
		validator: validate.New(d.Catalog, conv),
		params:    params.New(d.Catalog, queries),
		tracer:    tracer,
		locks:     newKeyedMutex(),
		newID:     uuid.NewString,
	}, nil
}

func (m *Manager) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "workgraph.graph."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (m *Manager) loadWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	if id == "" {
		return nil, workflow.InvalidArgument("workflow id is required")
	}
	wf, err := m.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, workflow.Persistence("get workflow", err)
	}
	return wf, nil
}

// componentOf resolves the component attached to n. Missing components are
// reported as not found; any other catalog failure as a persistence error.
func (m *Manager) componentOf(ctx context.Context, n *workflow.Node) (*descriptor.Component, error) {
	comp, err := catalog.ComponentOf(ctx, m.catalog, n)
	if err != nil {
		return nil, workflow.Persistence("find component", err)
	}
	return comp, nil
}

func (m *Manager) validateNode(ctx context.Context, wf *workflow.Workflow, n *workflow.Node) error {
	problems, err := m.validator.Node(ctx, wf, n)
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		ctxlog.FromContext(ctx).Warn("Node failed validation.",
			"workflow_id", wf.ID, "name", n.Name, "problems", len(problems))
	}
	return workflow.NewValidationError(problems)
}
