// Package inmemorystore provides an ephemeral, thread-safe, in-memory
// implementation of the store.Store and store.QueryStore interfaces.
//
// # Characteristics
//
//   - **Ephemeral:** Nothing survives the process; use sqlitestore for that
//   - **Thread-Safe:** A single sync.RWMutex guards every map
//   - **Copying:** Values are deep-copied on the way in and out, so callers
//     never share memory with the store
//
// # When to Use
//
// This implementation is suitable for tests, for CLI runs without a
// configured database, and for embedding the graph engine where persistence
// is handled elsewhere.
package inmemorystore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vk/workgraph/internal/store"
	"github.com/vk/workgraph/internal/workflow"
)

// Store implements store.Store and store.QueryStore using maps guarded by a
// mutex.
//
// The store keeps:
//   - workflows: workflow metadata by id, with Nodes always nil
//   - order: workflow ids in creation order
//   - members: the ordered node ids of each workflow
//   - nodes: top-level nodes by id, group members embedded
//   - queries: datasource queries by node id
type Store struct {
	mu        sync.RWMutex
	workflows map[string]*workflow.Workflow
	order     []string
	members   map[string][]string
	nodes     map[string]*workflow.Node
	queries   map[string]*store.Query
}

var (
	_ store.Store      = (*Store)(nil)
	_ store.QueryStore = (*Store)(nil)
)

// New creates a new, empty in-memory store.
func New() *Store {
	return &Store{
		workflows: make(map[string]*workflow.Workflow),
		members:   make(map[string][]string),
		nodes:     make(map[string]*workflow.Node),
		queries:   make(map[string]*store.Query),
	}
}

// GetWorkflow implements store.Store.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, workflow.NotFound("workflow", id)
	}
	out := wf.Clone()
	for _, nodeID := range s.members[id] {
		out.Nodes = append(out.Nodes, s.nodes[nodeID].Clone())
	}
	return out, nil
}

// SaveWorkflow implements store.Store.
func (s *Store) SaveWorkflow(ctx context.Context, wf *workflow.Workflow) (*workflow.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := wf.Clone()
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if _, exists := s.workflows[meta.ID]; exists {
		return nil, workflow.InvalidArgument("workflow %q already exists", meta.ID)
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	nodes := meta.Nodes
	meta.Nodes = nil

	s.workflows[meta.ID] = meta
	s.order = append(s.order, meta.ID)
	s.members[meta.ID] = nil

	out := meta.Clone()
	for _, n := range nodes {
		workflow.AssignIDs(n, meta.ID, uuid.NewString)
		s.nodes[n.ID] = n
		s.members[meta.ID] = append(s.members[meta.ID], n.ID)
		out.Nodes = append(out.Nodes, n.Clone())
	}
	return out, nil
}

// UpdateWorkflow implements store.Store.
func (s *Store) UpdateWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[wf.ID]; !ok {
		return workflow.NotFound("workflow", wf.ID)
	}

	keep := make(map[string]struct{}, len(wf.Nodes))
	ids := make([]string, 0, len(wf.Nodes))
	for _, n := range wf.Nodes {
		stored, ok := s.nodes[n.ID]
		if !ok || stored.WorkflowID != wf.ID {
			return workflow.NotFound("node", n.ID)
		}
		keep[n.ID] = struct{}{}
		ids = append(ids, n.ID)
	}

	for _, old := range s.members[wf.ID] {
		if _, ok := keep[old]; !ok {
			delete(s.nodes, old)
		}
	}

	meta := wf.Clone()
	meta.Nodes = nil
	meta.CreatedAt = s.workflows[wf.ID].CreatedAt
	s.workflows[wf.ID] = meta
	s.members[wf.ID] = ids
	return nil
}

// ListWorkflows implements store.Store.
func (s *Store) ListWorkflows(ctx context.Context, includeInactive bool) ([]*workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*workflow.Workflow, 0, len(s.order))
	for _, id := range s.order {
		wf := s.workflows[id]
		if !wf.Active && !includeInactive {
			continue
		}
		out = append(out, wf.Clone())
	}
	return out, nil
}

// SaveNode implements store.Store.
func (s *Store) SaveNode(ctx context.Context, n *workflow.Node) (*workflow.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[n.WorkflowID]; !ok {
		return nil, workflow.NotFound("workflow", n.WorkflowID)
	}
	stored := n.Clone()
	stored.ID = ""
	if n.ID != "" {
		if _, exists := s.nodes[n.ID]; exists {
			return nil, workflow.InvalidArgument("node %q already exists", n.ID)
		}
		stored.ID = n.ID
	}
	workflow.AssignIDs(stored, n.WorkflowID, uuid.NewString)

	s.nodes[stored.ID] = stored
	s.members[n.WorkflowID] = append(s.members[n.WorkflowID], stored.ID)
	return stored.Clone(), nil
}

// UpdateNode implements store.Store.
func (s *Store) UpdateNode(ctx context.Context, n *workflow.Node) (*workflow.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.nodes[n.ID]
	if !ok {
		return nil, workflow.NotFound("node", n.ID)
	}
	stored := n.Clone()
	workflow.AssignIDs(stored, existing.WorkflowID, uuid.NewString)
	s.nodes[n.ID] = stored
	return stored.Clone(), nil
}

// GetNodeByID implements store.Store.
func (s *Store) GetNodeByID(ctx context.Context, id string) (*workflow.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, workflow.NotFound("node", id)
	}
	return n.Clone(), nil
}

// SaveQuery implements store.QueryStore.
func (s *Store) SaveQuery(ctx context.Context, q *store.Query) error {
	if q == nil || q.NodeID == "" {
		return workflow.InvalidArgument("query must name a node")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[q.NodeID] = q.Clone()
	return nil
}

// GetQueryForNode implements store.QueryStore.
func (s *Store) GetQueryForNode(ctx context.Context, nodeID string) (*store.Query, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queries[nodeID].Clone(), nil
}

// RemoveQueryForNode implements store.QueryStore.
func (s *Store) RemoveQueryForNode(ctx context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queries, nodeID)
	return nil
}

// Close is a no-op; the store holds no external resources.
func (s *Store) Close() error {
	return nil
}
