// Package store defines the persistence interfaces the graph engine depends on.
//
// # Why a narrow store
//
// The graph engine owns every rule about names, links and groups; the store
// owns none of them. It only keeps workflows and nodes and hands back copies.
// Keeping the interface this small lets the engine run unchanged against the
// in-memory store in tests and the SQLite store in the CLI.
//
// # Ownership
//
// A workflow owns its nodes. SaveNode attaches a new node to the workflow
// named by its WorkflowID, and UpdateWorkflow rewrites the ordered node
// membership: nodes missing from the list are detached and dropped. Group
// members travel inside their group node and are never stored on their own.
//
// # Errors
//
// Missing workflows and nodes are reported with workflow.ErrNotFound. Any
// other failure is wrapped in a *workflow.PersistenceError.
package store

import (
	"context"

	"github.com/vk/workgraph/internal/workflow"
)

// Store persists workflows and their nodes.
//
// Every method returns or stores deep copies; callers may keep mutating the
// values they pass in or receive.
//
// # Thread-Safety Requirements
//
// Implementations MUST be safe for concurrent use. They do not serialize
// read-modify-write sequences made by callers; that is the graph engine's job.
type Store interface {
	// GetWorkflow returns the workflow with its nodes in membership order.
	// Soft-deleted workflows are still returned.
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)

	// SaveWorkflow creates a workflow. The id is assigned here when empty, as
	// is the creation time. Nodes carried by wf are saved and attached too.
	SaveWorkflow(ctx context.Context, wf *workflow.Workflow) (*workflow.Workflow, error)

	// UpdateWorkflow rewrites the workflow's metadata and its ordered node
	// membership. Every listed node must already exist in this workflow.
	UpdateWorkflow(ctx context.Context, wf *workflow.Workflow) error

	// ListWorkflows returns workflow metadata, without nodes, ordered by
	// creation time. Inactive workflows are skipped unless includeInactive.
	ListWorkflows(ctx context.Context, includeInactive bool) ([]*workflow.Workflow, error)

	// SaveNode stores a new node and appends it to its workflow. Ids are
	// assigned to the node and to any group member lacking one.
	SaveNode(ctx context.Context, n *workflow.Node) (*workflow.Node, error)

	// UpdateNode replaces a stored node. Group members lacking an id get one.
	UpdateNode(ctx context.Context, n *workflow.Node) (*workflow.Node, error)

	// GetNodeByID returns a top-level node.
	GetNodeByID(ctx context.Context, id string) (*workflow.Node, error)

	// Close releases the resources held by the store.
	Close() error
}

// Query is a stored filter bound to a datasource node.
type Query struct {
	NodeID  string            `json:"node_id" yaml:"node_id"`
	Filters map[string]string `json:"filters,omitempty" yaml:"filters,omitempty"`
	Offset  int               `json:"offset" yaml:"offset"`
	Limit   int               `json:"limit" yaml:"limit"`
}

// Clone returns a deep copy of the query.
func (q *Query) Clone() *Query {
	if q == nil {
		return nil
	}
	out := *q
	if q.Filters != nil {
		out.Filters = make(map[string]string, len(q.Filters))
		for k, v := range q.Filters {
			out.Filters[k] = v
		}
	}
	return &out
}

// QueryStore associates stored filter queries with datasource nodes.
type QueryStore interface {
	// SaveQuery binds q to q.NodeID, replacing any previous query.
	SaveQuery(ctx context.Context, q *Query) error

	// GetQueryForNode returns the query bound to the node, or nil when there
	// is none.
	GetQueryForNode(ctx context.Context, nodeID string) (*Query, error)

	// RemoveQueryForNode drops the node's query. Removing a missing query is
	// not an error.
	RemoveQueryForNode(ctx context.Context, nodeID string) error
}
