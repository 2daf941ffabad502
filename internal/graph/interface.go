package graph

import (
	"context"

	"github.com/vk/workgraph/internal/params"
	"github.com/vk/workgraph/internal/store"
	"github.com/vk/workgraph/internal/workflow"
)

// Graph is the mutation and query API of the workflow graph.
//
// Errors are classified with errors.Is against the kinds declared in
// package workflow: ErrNotFound, ErrInvalidArgument, ErrValidationFailed
// (a *workflow.ValidationError listing every problem) and ErrPersistence.
type Graph interface {
	// CreateWorkflow stores a new, empty workflow. The name is required;
	// status defaults to draft and visibility to private.
	CreateWorkflow(ctx context.Context, wf *workflow.Workflow) (*workflow.Workflow, error)

	// GetWorkflow returns a workflow with its nodes.
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)

	// ListWorkflows returns workflow metadata in creation order.
	ListWorkflows(ctx context.Context, includeInactive bool) ([]*workflow.Workflow, error)

	// DeleteWorkflow soft-deletes a workflow by clearing its active flag.
	DeleteWorkflow(ctx context.Context, id string) error

	// AddNode adds a new node to a workflow.
	//
	// The node must not have an id yet. Its name is disambiguated against
	// its siblings ("A" becomes "A (1)") and it is validated before it is
	// saved. Returns the stored node with its assigned id.
	AddNode(ctx context.Context, workflowID string, n *workflow.Node) (*workflow.Node, error)

	// UpdateNode replaces an existing node of a workflow, going through the
	// same disambiguation and validation as AddNode.
	UpdateNode(ctx context.Context, workflowID string, n *workflow.Node) (*workflow.Node, error)

	// RemoveNode removes a node, every link it holds and every link that
	// other nodes hold from it. Queries of removed datasource nodes are
	// dropped too.
	RemoveNode(ctx context.Context, workflowID, nodeID string) error

	// AddLink links an output of the source node to an input of the target
	// node and stores the link on the target. Both descriptors must exist on
	// the components attached to their nodes; compatibility and cardinality
	// are left to validation.
	AddLink(ctx context.Context, sourceNodeID, outputID, targetNodeID, inputID string) (*workflow.Node, error)

	// RemoveLink removes an incoming link from a node.
	RemoveLink(ctx context.Context, nodeID string, l workflow.Link) (*workflow.Node, error)

	// AddGroup wraps members into a new group node. See GroupSpec.
	AddGroup(ctx context.Context, workflowID string, spec GroupSpec, nodeBeforeID string, members []*workflow.Node) (*workflow.Node, error)

	// Clone copies a workflow with all of its nodes and links and returns the
	// new workflow's id. On failure the id of the partial copy, if any, is
	// returned with the error.
	Clone(ctx context.Context, workflowID string) (string, error)

	// ImportWorkflowNodes copies the nodes and links of sub into master and
	// returns the mapping from sub's node ids to the new ids. When
	// keepDataSources is false, datasource nodes and the links leaving them
	// are skipped.
	ImportWorkflowNodes(ctx context.Context, masterID, subID string, keepDataSources bool) (map[string]string, error)

	// ValidateWorkflow validates every node of a workflow and returns a
	// *workflow.ValidationError listing all problems, or nil.
	ValidateWorkflow(ctx context.Context, id string) error

	// ExecutionOrder lists the nodes of a workflow in link order, each group
	// followed by its members.
	ExecutionOrder(ctx context.Context, id string) ([]*workflow.Node, error)

	// WorkflowParameters returns the effective parameters of every node.
	WorkflowParameters(ctx context.Context, id string) (map[string][]params.Parameter, error)

	// SetQuery binds a filter query to a datasource node.
	SetQuery(ctx context.Context, q *store.Query) error
}
