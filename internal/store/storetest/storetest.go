// Package storetest is a conformance suite shared by the store.Store
// implementations.
package storetest

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/workgraph/internal/descriptor"
	"github.com/vk/workgraph/internal/store"
	"github.com/vk/workgraph/internal/workflow"
)

// Factory returns a fresh, empty store. The returned value must also
// implement store.QueryStore.
type Factory func(t *testing.T) store.Store

// Run exercises the store contract against the implementation built by f.
func Run(t *testing.T, f Factory) {
	t.Run("workflow round trip", func(t *testing.T) { testWorkflowRoundTrip(t, f(t)) })
	t.Run("missing entities", func(t *testing.T) { testMissing(t, f(t)) })
	t.Run("node lifecycle", func(t *testing.T) { testNodeLifecycle(t, f(t)) })
	t.Run("group members", func(t *testing.T) { testGroupMembers(t, f(t)) })
	t.Run("membership rewrite", func(t *testing.T) { testMembership(t, f(t)) })
	t.Run("list workflows", func(t *testing.T) { testList(t, f(t)) })
	t.Run("queries", func(t *testing.T) { testQueries(t, f(t)) })
}

func newWorkflow(t *testing.T, s store.Store, name string) *workflow.Workflow {
	t.Helper()
	wf, err := s.SaveWorkflow(context.Background(), &workflow.Workflow{
		Name:       name,
		Status:     workflow.StatusDraft,
		Visibility: workflow.VisibilityPrivate,
		Owner:      "alice",
		Tags:       []string{"etl", "nightly"},
		Active:     true,
	})
	require.NoError(t, err)
	return wf
}

func testWorkflowRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	saved := newWorkflow(t, s, "ingest")
	require.NotEmpty(t, saved.ID)
	require.False(t, saved.CreatedAt.IsZero())

	got, err := s.GetWorkflow(ctx, saved.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(saved, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("workflow mismatch (-saved +got):\n%s", diff)
	}

	got.Name = "mutated"
	got.Tags[0] = "mutated"
	again, err := s.GetWorkflow(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "ingest", again.Name)
	assert.Equal(t, []string{"etl", "nightly"}, again.Tags)
}

func testMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.GetWorkflow(ctx, "nope")
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	_, err = s.GetNodeByID(ctx, "nope")
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	_, err = s.SaveNode(ctx, &workflow.Node{WorkflowID: "nope", Name: "A"})
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	_, err = s.UpdateNode(ctx, &workflow.Node{ID: "nope", Name: "A"})
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	err = s.UpdateWorkflow(ctx, &workflow.Workflow{ID: "nope"})
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func sampleNode(wfID, name string) *workflow.Node {
	return &workflow.Node{
		WorkflowID:     wfID,
		Kind:           workflow.KindSimple,
		Name:           name,
		X:              10.5,
		Y:              -3,
		Component:      workflow.ComponentRef{ID: "normalize", Type: descriptor.Processing},
		CustomValues:   []workflow.ParameterOverride{{Name: "threshold", Value: "0.7"}},
		PreserveOutput: true,
	}
}

func testNodeLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	wf := newWorkflow(t, s, "ingest")

	first, err := s.SaveNode(ctx, sampleNode(wf.ID, "A"))
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second := sampleNode(wf.ID, "B")
	second.Links = []workflow.Link{{
		SourceNodeID: first.ID,
		Output:       descriptor.Target{ID: "normalize.out", ComponentID: "normalize", Name: "out", Format: "csv"},
		Input:        descriptor.Source{ID: "normalize.in", ComponentID: "normalize", Name: "in", Cardinality: descriptor.CardinalityOne},
	}}
	second, err = s.SaveNode(ctx, second)
	require.NoError(t, err)

	got, err := s.GetNodeByID(ctx, second.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(second, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("node mismatch (-saved +got):\n%s", diff)
	}

	loaded, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Nodes, 2)
	assert.Equal(t, first.ID, loaded.Nodes[0].ID)
	assert.Equal(t, second.ID, loaded.Nodes[1].ID)

	got.Name = "B2"
	got.Links = nil
	_, err = s.UpdateNode(ctx, got)
	require.NoError(t, err)
	updated, err := s.GetNodeByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "B2", updated.Name)
	assert.Empty(t, updated.Links)
	assert.Equal(t, wf.ID, updated.WorkflowID)
}

func testGroupMembers(t *testing.T, s store.Store) {
	ctx := context.Background()
	wf := newWorkflow(t, s, "grouped")

	first := &descriptor.Component{ID: "fetch", Sources: []descriptor.Source{{ID: "fetch.in", ComponentID: "fetch"}}}
	last := &descriptor.Component{ID: "publish", Targets: []descriptor.Target{{ID: "publish.out", ComponentID: "publish", Cardinality: descriptor.CardinalityMany}}}
	group := &workflow.Node{
		WorkflowID: wf.ID,
		Kind:       workflow.KindGroup,
		Name:       "G",
		Component:  workflow.ComponentRef{Type: descriptor.Group},
		Group: &workflow.GroupData{
			Members: []*workflow.Node{
				sampleNode(wf.ID, "m1"),
				sampleNode(wf.ID, "m2"),
			},
			Component: descriptor.NewGroupComponent("g", "G", first, last),
		},
	}

	saved, err := s.SaveNode(ctx, group)
	require.NoError(t, err)
	require.Len(t, saved.Group.Members, 2)
	for _, m := range saved.Group.Members {
		assert.NotEmpty(t, m.ID)
		assert.Equal(t, wf.ID, m.WorkflowID)
	}

	got, err := s.GetNodeByID(ctx, saved.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(saved, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("group mismatch (-saved +got):\n%s", diff)
	}

	_, err = s.GetNodeByID(ctx, saved.Group.Members[0].ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound, "members are not top-level nodes")
}

func testMembership(t *testing.T, s store.Store) {
	ctx := context.Background()
	wf := newWorkflow(t, s, "ingest")
	a, err := s.SaveNode(ctx, sampleNode(wf.ID, "A"))
	require.NoError(t, err)
	b, err := s.SaveNode(ctx, sampleNode(wf.ID, "B"))
	require.NoError(t, err)
	c, err := s.SaveNode(ctx, sampleNode(wf.ID, "C"))
	require.NoError(t, err)

	loaded, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	loaded.Nodes = []*workflow.Node{c, a}
	loaded.Status = workflow.StatusActive
	loaded.Active = false
	require.NoError(t, s.UpdateWorkflow(ctx, loaded))

	after, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusActive, after.Status)
	assert.False(t, after.Active)
	require.Len(t, after.Nodes, 2)
	assert.Equal(t, c.ID, after.Nodes[0].ID)
	assert.Equal(t, a.ID, after.Nodes[1].ID)

	_, err = s.GetNodeByID(ctx, b.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	other := newWorkflow(t, s, "other")
	other.Nodes = []*workflow.Node{a}
	err = s.UpdateWorkflow(ctx, other)
	assert.ErrorIs(t, err, workflow.ErrNotFound, "nodes of another workflow cannot be attached")
}

func testList(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := newWorkflow(t, s, "first")
	second := newWorkflow(t, s, "second")
	second.Active = false
	require.NoError(t, s.UpdateWorkflow(ctx, second))

	active, err := s.ListWorkflows(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)

	all, err := s.ListWorkflows(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
}

func testQueries(t *testing.T, s store.Store) {
	ctx := context.Background()
	qs, ok := s.(store.QueryStore)
	require.True(t, ok, "store must implement store.QueryStore")

	got, err := qs.GetQueryForNode(ctx, "n1")
	require.NoError(t, err)
	assert.Nil(t, got)

	q := &store.Query{NodeID: "n1", Filters: map[string]string{"region": "eu"}, Offset: 10, Limit: 50}
	require.NoError(t, qs.SaveQuery(ctx, q))
	q.Filters["region"] = "us"

	got, err = qs.GetQueryForNode(ctx, "n1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "eu", got.Filters["region"])
	assert.Equal(t, 10, got.Offset)
	assert.Equal(t, 50, got.Limit)

	require.NoError(t, qs.SaveQuery(ctx, &store.Query{NodeID: "n1", Limit: 5}))
	got, err = qs.GetQueryForNode(ctx, "n1")
	require.NoError(t, err)
	assert.Empty(t, got.Filters)
	assert.Equal(t, 5, got.Limit)

	require.NoError(t, qs.RemoveQueryForNode(ctx, "n1"))
	require.NoError(t, qs.RemoveQueryForNode(ctx, "n1"))
	got, err = qs.GetQueryForNode(ctx, "n1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
