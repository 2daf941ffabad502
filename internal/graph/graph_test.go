package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vk/workgraph/internal/catalog"
	"github.com/vk/workgraph/internal/descriptor"
	"github.com/vk/workgraph/internal/inmemorystore"
	"github.com/vk/workgraph/internal/store"
	"github.com/vk/workgraph/internal/testutil"
	"github.com/vk/workgraph/internal/workflow"
)

type fixture struct {
	m     *Manager
	store *inmemorystore.Store
	cat   *catalog.Registry
	spans *tracetest.InMemoryExporter
}

// testingT is satisfied by both *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

func setup(t *testing.T) *fixture {
	t.Helper()
	return newFixture(t, testutil.NewCatalog(t))
}

func newFixture(t testingT, cat *catalog.Registry) *fixture {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	st := inmemorystore.New()
	m, err := New(Deps{Store: st, Catalog: cat, Tracer: tp.Tracer("test")})
	require.NoError(t, err)
	return &fixture{m: m, store: st, cat: cat, spans: exporter}
}

func (f *fixture) workflow(t testingT, name string) *workflow.Workflow {
	t.Helper()
	wf, err := f.m.CreateWorkflow(context.Background(), &workflow.Workflow{Name: name})
	require.NoError(t, err)
	return wf
}

func (f *fixture) add(t testingT, wfID string, n *workflow.Node) *workflow.Node {
	t.Helper()
	saved, err := f.m.AddNode(context.Background(), wfID, n)
	require.NoError(t, err)
	return saved
}

func (f *fixture) link(t testingT, from *workflow.Node, outputID string, to *workflow.Node, inputID string) {
	t.Helper()
	_, err := f.m.AddLink(context.Background(), from.ID, outputID, to.ID, inputID)
	require.NoError(t, err)
}

func (f *fixture) node(t testingT, id string) *workflow.Node {
	t.Helper()
	n, err := f.store.GetNodeByID(context.Background(), id)
	require.NoError(t, err)
	return n
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{Catalog: catalog.NewRegistry()})
	assert.Error(t, err)

	_, err = New(Deps{Store: inmemorystore.New()})
	assert.Error(t, err)

	m, err := New(Deps{Store: inmemorystore.New(), Catalog: catalog.NewRegistry()})
	require.NoError(t, err)
	assert.NotNil(t, m.queries, "queries default to a store that implements QueryStore")
}

func TestCreateWorkflow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	wf := f.workflow(t, "pipeline")
	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, workflow.StatusDraft, wf.Status)
	assert.Equal(t, workflow.VisibilityPrivate, wf.Visibility)
	assert.True(t, wf.Active)

	_, err := f.m.CreateWorkflow(ctx, &workflow.Workflow{})
	assert.ErrorIs(t, err, workflow.ErrValidationFailed)

	_, err = f.m.CreateWorkflow(ctx, &workflow.Workflow{ID: "x", Name: "x"})
	assert.ErrorIs(t, err, workflow.ErrInvalidArgument)

	_, err = f.m.CreateWorkflow(ctx, &workflow.Workflow{Name: "x", Nodes: []*workflow.Node{testutil.Node("n", "score")}})
	assert.ErrorIs(t, err, workflow.ErrInvalidArgument)
}

func TestAddNode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	wf := f.workflow(t, "w")

	saved := f.add(t, wf.ID, testutil.Node("norm", "normalize", testutil.Set("threshold", "0.9")))
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, wf.ID, saved.WorkflowID)
	assert.Equal(t, workflow.KindSimple, saved.Kind)

	stored, err := f.m.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, stored.Nodes, 1)
	assert.Equal(t, saved.ID, stored.Nodes[0].ID)

	t.Run("node with an id", func(t *testing.T) {
		n := testutil.Node("x", "score")
		n.ID = "given"
		_, err := f.m.AddNode(ctx, wf.ID, n)
		assert.ErrorIs(t, err, workflow.ErrInvalidArgument)
	})

	t.Run("missing workflow", func(t *testing.T) {
		_, err := f.m.AddNode(ctx, "ghost", testutil.Node("x", "score"))
		assert.ErrorIs(t, err, workflow.ErrNotFound)
	})

	t.Run("invalid node lists every problem", func(t *testing.T) {
		_, err := f.m.AddNode(ctx, wf.ID, testutil.Node("", "normalize", testutil.Set("threshold", "lots"), testutil.Set("nope", "1")))
		require.ErrorIs(t, err, workflow.ErrValidationFailed)

		var verr *workflow.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Len(t, verr.Problems, 3)

		stored, err := f.m.GetWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		assert.Len(t, stored.Nodes, 1, "an invalid node is never saved")
	})

	t.Run("caller's node is not modified", func(t *testing.T) {
		n := testutil.Node("norm", "normalize")
		saved := f.add(t, wf.ID, n)
		assert.Equal(t, "norm (1)", saved.Name)
		assert.Equal(t, "norm", n.Name)
		assert.Empty(t, n.ID)
	})
}

func TestAddNode_NameSequence(t *testing.T) {
	f := setup(t)
	wf := f.workflow(t, "w")

	var got []string
	for i := 0; i < 5; i++ {
		got = append(got, f.add(t, wf.ID, testutil.Node("A", "score")).Name)
	}
	assert.Equal(t, []string{"A", "A (1)", "A (2)", "A (3)", "A (4)"}, got)
}

func TestAddNode_ConcurrentWritersGetDistinctNames(t *testing.T) {
	f := setup(t)
	wf := f.workflow(t, "w")

	const writers = 20
	var wg sync.WaitGroup
	names := make([]string, writers)
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			saved, err := f.m.AddNode(context.Background(), wf.ID, testutil.Node("A", "score"))
			errs[i] = err
			if err == nil {
				names[i] = saved.Name
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, writers)
	for i := range names {
		require.NoError(t, errs[i])
		assert.False(t, seen[names[i]], "duplicate name %q", names[i])
		seen[names[i]] = true
	}
	assert.Len(t, seen, writers)
	assert.Zero(t, f.m.locks.held())
}

func TestUpdateNode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	wf := f.workflow(t, "w")
	a := f.add(t, wf.ID, testutil.Node("a", "normalize"))
	f.add(t, wf.ID, testutil.Node("b", "normalize"))

	t.Run("keeps its own name", func(t *testing.T) {
		a.CustomValues = []workflow.ParameterOverride{testutil.Set("strict", "true")}
		updated, err := f.m.UpdateNode(ctx, wf.ID, a)
		require.NoError(t, err)
		assert.Equal(t, "a", updated.Name)
		assert.Equal(t, "true", f.node(t, a.ID).CustomValues[0].Value)
	})

	t.Run("renamed onto a sibling", func(t *testing.T) {
		a.Name = "b"
		updated, err := f.m.UpdateNode(ctx, wf.ID, a)
		require.NoError(t, err)
		assert.Equal(t, "b (1)", updated.Name)
	})

	t.Run("invalid value", func(t *testing.T) {
		bad := f.node(t, a.ID)
		bad.CustomValues = []workflow.ParameterOverride{testutil.Set("strict", "maybe")}
		_, err := f.m.UpdateNode(ctx, wf.ID, bad)
		assert.ErrorIs(t, err, workflow.ErrValidationFailed)
		assert.Equal(t, "true", f.node(t, a.ID).CustomValues[0].Value)
	})

	t.Run("without id", func(t *testing.T) {
		_, err := f.m.UpdateNode(ctx, wf.ID, testutil.Node("x", "score"))
		assert.ErrorIs(t, err, workflow.ErrInvalidArgument)
	})

	t.Run("node of another workflow", func(t *testing.T) {
		other := f.workflow(t, "other")
		_, err := f.m.UpdateNode(ctx, other.ID, a)
		assert.ErrorIs(t, err, workflow.ErrNotFound)
	})
}

func TestAddLink(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	wf := f.workflow(t, "w")
	ds := f.add(t, wf.ID, testutil.Node("ds", "fetch"))
	norm := f.add(t, wf.ID, testutil.Node("norm", "normalize"))

	updated, err := f.m.AddLink(ctx, ds.ID, "fetch.rows", norm.ID, "normalize.in")
	require.NoError(t, err)
	require.Len(t, updated.Links, 1)
	l := updated.Links[0]
	assert.Equal(t, ds.ID, l.SourceNodeID)
	assert.Equal(t, "fetch", l.Output.ComponentID)
	assert.Equal(t, "normalize", l.Input.ComponentID)

	t.Run("adding it again is a no-op", func(t *testing.T) {
		updated, err := f.m.AddLink(ctx, ds.ID, "fetch.rows", norm.ID, "normalize.in")
		require.NoError(t, err)
		assert.Len(t, updated.Links, 1)
	})

	testCases := []struct {
		name          string
		source        string
		output        string
		target        string
		input         string
		wantErrorKind error
	}{
		{name: "output not on source component", source: ds.ID, output: "normalize.out", target: norm.ID, input: "normalize.in", wantErrorKind: workflow.ErrNotFound},
		{name: "input not on target component", source: ds.ID, output: "fetch.rows", target: norm.ID, input: "score.in", wantErrorKind: workflow.ErrNotFound},
		{name: "missing source node", source: "ghost", output: "fetch.rows", target: norm.ID, input: "normalize.in", wantErrorKind: workflow.ErrNotFound},
		{name: "missing target node", source: ds.ID, output: "fetch.rows", target: "ghost", input: "normalize.in", wantErrorKind: workflow.ErrNotFound},
		{name: "empty descriptor", source: ds.ID, output: "", target: norm.ID, input: "normalize.in", wantErrorKind: workflow.ErrInvalidArgument},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.m.AddLink(ctx, tc.source, tc.output, tc.target, tc.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErrorKind)
			assert.Len(t, f.node(t, norm.ID).Links, 1, "a failed link is never stored")
		})
	}

	t.Run("nodes of different workflows", func(t *testing.T) {
		other := f.workflow(t, "other")
		foreign := f.add(t, other.ID, testutil.Node("foreign", "fetch"))
		_, err := f.m.AddLink(ctx, foreign.ID, "fetch.rows", norm.ID, "normalize.in")
		assert.ErrorIs(t, err, workflow.ErrInvalidArgument)
	})

	t.Run("compatibility is left to validation", func(t *testing.T) {
		score := f.add(t, wf.ID, testutil.Node("score", "score"))
		render := f.add(t, wf.ID, testutil.Node("render", "render"))
		f.link(t, score, "score.scores", render, "render.in")

		err := f.m.ValidateWorkflow(ctx, wf.ID)
		require.ErrorIs(t, err, workflow.ErrValidationFailed)
		assert.Contains(t, err.Error(), "node 'render': output 'score.scores' is not compatible with input 'render.in'")
	})
}

func TestRemoveLink(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	wf := f.workflow(t, "w")
	ds := f.add(t, wf.ID, testutil.Node("ds", "fetch"))
	norm := f.add(t, wf.ID, testutil.Node("norm", "normalize"))
	f.link(t, ds, "fetch.rows", norm, "normalize.in")
	l := f.node(t, norm.ID).Links[0]

	_, err := f.m.RemoveLink(ctx, norm.ID, workflow.Link{SourceNodeID: ds.ID})
	assert.ErrorIs(t, err, workflow.ErrInvalidArgument)

	updated, err := f.m.RemoveLink(ctx, norm.ID, l)
	require.NoError(t, err)
	assert.Empty(t, updated.Links)
	assert.Empty(t, f.node(t, norm.ID).Links)

	_, err = f.m.RemoveLink(ctx, norm.ID, l)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestRemoveNode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	wf := f.workflow(t, "w")

	ds := f.add(t, wf.ID, testutil.Node("ds", "fetch"))
	n := f.add(t, wf.ID, testutil.Node("n", "normalize"))
	m1 := f.add(t, wf.ID, testutil.Node("m1", "score"))
	m2 := f.add(t, wf.ID, testutil.Node("m2", "score"))
	f.link(t, ds, "fetch.rows", n, "normalize.in")
	f.link(t, n, "normalize.out", m1, "score.in")
	f.link(t, n, "normalize.out", m2, "score.in")
	f.link(t, ds, "fetch.rows", m2, "score.in")
	require.NoError(t, f.m.SetQuery(ctx, &store.Query{NodeID: ds.ID, Filters: map[string]string{"region": "us"}}))

	require.NoError(t, f.m.RemoveNode(ctx, wf.ID, n.ID))

	stored, err := f.m.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ds", "m1", "m2"}, names(stored.Nodes))
	assert.Empty(t, f.node(t, m1.ID).Links)
	require.Len(t, f.node(t, m2.ID).Links, 1)
	assert.Equal(t, ds.ID, f.node(t, m2.ID).Links[0].SourceNodeID)

	_, err = f.store.GetNodeByID(ctx, n.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	t.Run("datasource query is dropped", func(t *testing.T) {
		require.NoError(t, f.m.RemoveNode(ctx, wf.ID, ds.ID))
		q, err := f.store.GetQueryForNode(ctx, ds.ID)
		require.NoError(t, err)
		assert.Nil(t, q)
		assert.Empty(t, f.node(t, m2.ID).Links)
	})

	t.Run("missing node", func(t *testing.T) {
		assert.ErrorIs(t, f.m.RemoveNode(ctx, wf.ID, "ghost"), workflow.ErrNotFound)
	})
}

func TestAddGroup(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	wf := f.workflow(t, "w")
	ds := f.add(t, wf.ID, testutil.Node("DS", "fetch"))

	g, err := f.m.AddGroup(ctx, wf.ID, GroupSpec{Name: "prep", X: 10, Y: 20}, ds.ID, []*workflow.Node{
		testutil.Node("n1", "normalize"),
		testutil.Node("n2", "normalize", testutil.Set("strict", "true")),
		testutil.Node("n3", "score"),
	})
	require.NoError(t, err)

	assert.Equal(t, workflow.KindGroup, g.Kind)
	assert.Equal(t, descriptor.Group, g.Component.Type)
	assert.Equal(t, g.ID, g.Component.ID)
	assert.Equal(t, 10.0, g.X)
	require.NotNil(t, g.Group)
	require.Len(t, g.Group.Members, 3)

	normalize, err := f.cat.FindComponent(ctx, "normalize", descriptor.Processing)
	require.NoError(t, err)
	score, err := f.cat.FindComponent(ctx, "score", descriptor.Processing)
	require.NoError(t, err)
	comp := g.Group.Component
	assert.Equal(t, descriptorIDs(normalize.Sources), descriptorIDs(comp.Sources))
	assert.Equal(t, targetIDs(score.Targets), targetIDs(comp.Targets))
	for _, s := range comp.Sources {
		assert.Equal(t, g.ID, s.GroupID)
		assert.Equal(t, g.ID, s.ComponentID)
	}

	require.Len(t, g.Links, 1)
	assert.Equal(t, ds.ID, g.Links[0].SourceNodeID)
	assert.Equal(t, "fetch.rows", g.Links[0].Output.ID)
	assert.Equal(t, "normalize.in", g.Links[0].Input.ID)

	members := g.Group.Members
	assert.Empty(t, members[0].Links)
	require.Len(t, members[1].Links, 1)
	assert.Equal(t, members[0].ID, members[1].Links[0].SourceNodeID)
	require.Len(t, members[2].Links, 1)
	assert.Equal(t, members[1].ID, members[2].Links[0].SourceNodeID)

	stored, err := f.m.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"DS", "prep"}, names(stored.Nodes), "members are not top-level nodes")
	require.NoError(t, f.m.ValidateWorkflow(ctx, wf.ID))

	t.Run("downstream node links to the group's outputs", func(t *testing.T) {
		after := f.add(t, wf.ID, testutil.Node("after", "score"))
		_, err := f.m.AddLink(ctx, g.ID, "score.scores", after.ID, "score.in")
		require.NoError(t, err)
	})

	t.Run("no members", func(t *testing.T) {
		_, err := f.m.AddGroup(ctx, wf.ID, GroupSpec{Name: "empty"}, "", nil)
		assert.ErrorIs(t, err, workflow.ErrInvalidArgument)
	})

	t.Run("missing node before", func(t *testing.T) {
		_, err := f.m.AddGroup(ctx, wf.ID, GroupSpec{Name: "x"}, "ghost", []*workflow.Node{testutil.Node("a", "score")})
		assert.ErrorIs(t, err, workflow.ErrNotFound)
	})

	t.Run("member names are disambiguated among members", func(t *testing.T) {
		g, err := f.m.AddGroup(ctx, wf.ID, GroupSpec{Name: "prep"}, "", []*workflow.Node{
			testutil.Node("x", "normalize"),
			testutil.Node("x", "normalize"),
		})
		require.NoError(t, err)
		assert.Equal(t, "prep (1)", g.Name)
		assert.Equal(t, []string{"x", "x (1)"}, names(g.Group.Members))
	})
}

func TestAddGroup_CardinalityFromNodeBefore(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.cat.Register(&descriptor.Component{
		ID:      "sink",
		Type:    descriptor.Processing,
		Name:    "sink",
		Sources: []descriptor.Source{{ID: "sink.in", ComponentID: "sink", Name: "in", Format: "csv"}},
	}))

	wf := f.workflow(t, "w")
	norm := f.add(t, wf.ID, testutil.Node("norm", "normalize"))

	g, err := f.m.AddGroup(ctx, wf.ID, GroupSpec{Name: "g"}, norm.ID, []*workflow.Node{
		{Name: "s", Component: workflow.ComponentRef{ID: "sink", Type: descriptor.Processing}},
	})
	require.NoError(t, err)
	assert.Equal(t, descriptor.CardinalityOne, g.Group.Component.Sources[0].Cardinality)
	assert.Equal(t, descriptor.CardinalityOne, g.Links[0].Input.Cardinality)
}

func TestClone(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	wf := f.workflow(t, "pipeline")

	ds := f.add(t, wf.ID, testutil.Node("ds", "fetch", testutil.Set("table", "orders")))
	g, err := f.m.AddGroup(ctx, wf.ID, GroupSpec{Name: "prep"}, ds.ID, []*workflow.Node{
		testutil.Node("n1", "normalize"),
		testutil.Node("n2", "normalize", testutil.Set("strict", "true")),
	})
	require.NoError(t, err)
	out := f.add(t, wf.ID, testutil.Node("out", "score"))
	f.link(t, g, "normalize.out", out, "score.in")

	cloneID, err := f.m.Clone(ctx, wf.ID)
	require.NoError(t, err)
	require.NotEqual(t, wf.ID, cloneID)

	clone, err := f.m.GetWorkflow(ctx, cloneID)
	require.NoError(t, err)
	assert.Equal(t, "pipeline (1)", clone.Name)
	assert.Equal(t, []string{"ds", "prep", "out"}, names(clone.Nodes))

	cg, ok := clone.NodeByName("prep")
	require.True(t, ok)
	assert.NotEqual(t, g.ID, cg.ID)
	assert.Equal(t, cg.ID, cg.Group.Component.ID)
	assert.Equal(t, cg.ID, cg.Group.Component.Targets[0].GroupID)
	assert.NotEqual(t, g.Group.Members[0].ID, cg.Group.Members[0].ID)
	assert.Equal(t, cg.Group.Members[0].ID, cg.Group.Members[1].Links[0].SourceNodeID)

	cds, _ := clone.NodeByName("ds")
	require.Len(t, cg.Links, 1)
	assert.Equal(t, cds.ID, cg.Links[0].SourceNodeID)

	cout, _ := clone.NodeByName("out")
	require.Len(t, cout.Links, 1)
	assert.Equal(t, cg.ID, cout.Links[0].SourceNodeID)
	assert.Equal(t, cg.ID, cout.Links[0].Output.ComponentID)

	require.NoError(t, f.m.ValidateWorkflow(ctx, cloneID))

	t.Run("original is untouched", func(t *testing.T) {
		orig, err := f.m.GetWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		assert.Len(t, orig.Nodes, 3)
		o, _ := orig.NodeByName("out")
		assert.Equal(t, g.ID, o.Links[0].SourceNodeID)
	})

	t.Run("missing workflow", func(t *testing.T) {
		_, err := f.m.Clone(ctx, "ghost")
		assert.ErrorIs(t, err, workflow.ErrNotFound)
	})
}

func TestClone_PartialCopyIsReported(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	wf := f.workflow(t, "w")
	f.add(t, wf.ID, testutil.Node("a", "score"))
	f.add(t, wf.ID, testutil.Node("b", "render"))

	// b no longer validates once render is gone from the catalog.
	broken, err := New(Deps{Store: f.store, Catalog: hidingCatalog{Catalog: f.cat, hidden: "render"}})
	require.NoError(t, err)

	cloneID, err := broken.Clone(ctx, wf.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, workflow.ErrPersistence)
	assert.ErrorIs(t, err, workflow.ErrValidationFailed)
	require.NotEmpty(t, cloneID)

	partial := mustWorkflow(t, f, cloneID)
	assert.Equal(t, []string{"a"}, names(partial.Nodes))
}

type hidingCatalog struct {
	catalog.Catalog
	hidden string
}

func (h hidingCatalog) FindComponent(ctx context.Context, id string, typ descriptor.ComponentType) (*descriptor.Component, error) {
	if id == h.hidden {
		return nil, workflow.NotFound("component", id)
	}
	return h.Catalog.FindComponent(ctx, id, typ)
}

func TestImportWorkflowNodes(t *testing.T) {
	ctx := context.Background()

	build := func(t *testing.T) (*fixture, *workflow.Workflow, *workflow.Workflow) {
		f := setup(t)
		master := f.workflow(t, "master")
		f.add(t, master.ID, testutil.Node("norm", "normalize"))

		sub := f.workflow(t, "sub")
		ds := f.add(t, sub.ID, testutil.Node("ds", "fetch"))
		norm := f.add(t, sub.ID, testutil.Node("norm", "normalize"))
		score := f.add(t, sub.ID, testutil.Node("score", "score"))
		f.link(t, ds, "fetch.rows", norm, "normalize.in")
		f.link(t, norm, "normalize.out", score, "score.in")
		f.link(t, ds, "fetch.rows", score, "score.in")
		return f, master, sub
	}

	t.Run("keep datasources", func(t *testing.T) {
		f, master, sub := build(t)
		ids, err := f.m.ImportWorkflowNodes(ctx, master.ID, sub.ID, true)
		require.NoError(t, err)
		assert.Len(t, ids, 3)

		got, err := f.m.GetWorkflow(ctx, master.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"norm", "ds", "norm (1)", "score"}, names(got.Nodes))

		score, _ := got.NodeByName("score")
		assert.ElementsMatch(t, []string{"norm (1)", "ds"}, sourceNames(got, score))

		srcScore, _ := mustWorkflow(t, f, sub.ID).NodeByName("score")
		assert.Equal(t, score.ID, ids[srcScore.ID])
	})

	t.Run("skip datasources", func(t *testing.T) {
		f, master, sub := build(t)
		ids, err := f.m.ImportWorkflowNodes(ctx, master.ID, sub.ID, false)
		require.NoError(t, err)
		assert.Len(t, ids, 2)

		got := mustWorkflow(t, f, master.ID)
		assert.Equal(t, []string{"norm", "norm (1)", "score"}, names(got.Nodes))
		score, _ := got.NodeByName("score")
		assert.Equal(t, []string{"norm (1)"}, sourceNames(got, score))
		imported, _ := got.NodeByName("norm (1)")
		assert.Empty(t, imported.Links)
	})

	t.Run("into itself", func(t *testing.T) {
		f, master, _ := build(t)
		_, err := f.m.ImportWorkflowNodes(ctx, master.ID, master.ID, true)
		assert.ErrorIs(t, err, workflow.ErrInvalidArgument)
	})
}

func TestDeleteWorkflow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	wf := f.workflow(t, "w")
	f.add(t, wf.ID, testutil.Node("a", "score"))

	require.NoError(t, f.m.DeleteWorkflow(ctx, wf.ID))
	require.NoError(t, f.m.DeleteWorkflow(ctx, wf.ID))

	got := mustWorkflow(t, f, wf.ID)
	assert.False(t, got.Active)
	assert.Len(t, got.Nodes, 1, "soft delete keeps the nodes")

	active, err := f.m.ListWorkflows(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := f.m.ListWorkflows(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestExecutionOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	wf := f.workflow(t, "w")

	out := f.add(t, wf.ID, testutil.Node("out", "score"))
	ds := f.add(t, wf.ID, testutil.Node("ds", "fetch"))
	g, err := f.m.AddGroup(ctx, wf.ID, GroupSpec{Name: "g"}, ds.ID, []*workflow.Node{
		testutil.Node("m1", "normalize"),
		testutil.Node("m2", "normalize"),
	})
	require.NoError(t, err)
	f.link(t, g, "normalize.out", out, "score.in")

	tasks, err := f.m.ExecutionOrder(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ds", "g", "m1", "m2", "out"}, names(tasks))

	t.Run("cycle", func(t *testing.T) {
		a := f.add(t, wf.ID, testutil.Node("a", "normalize"))
		b := f.add(t, wf.ID, testutil.Node("b", "normalize"))
		f.link(t, a, "normalize.out", b, "normalize.in")
		f.link(t, b, "normalize.out", a, "normalize.in")

		_, err := f.m.ExecutionOrder(ctx, wf.ID)
		assert.ErrorIs(t, err, workflow.ErrCyclic)
	})
}

func TestWorkflowParametersAndQueries(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	wf := f.workflow(t, "w")
	ds := f.add(t, wf.ID, testutil.Node("ds", "fetch", testutil.Set("table", "orders")))
	norm := f.add(t, wf.ID, testutil.Node("norm", "normalize"))

	require.NoError(t, f.m.SetQuery(ctx, &store.Query{NodeID: ds.ID, Filters: map[string]string{"region": "us"}, Limit: 100}))
	assert.ErrorIs(t, f.m.SetQuery(ctx, &store.Query{NodeID: norm.ID}), workflow.ErrInvalidArgument)
	assert.ErrorIs(t, f.m.SetQuery(ctx, &store.Query{NodeID: ds.ID, Limit: -1}), workflow.ErrInvalidArgument)
	assert.ErrorIs(t, f.m.SetQuery(ctx, &store.Query{NodeID: "ghost"}), workflow.ErrNotFound)

	got, err := f.m.WorkflowParameters(ctx, wf.ID)
	require.NoError(t, err)
	require.Contains(t, got, "ds")
	require.Contains(t, got, "norm")

	values := make(map[string]string)
	for _, p := range got["ds"] {
		values[p.Name] = p.Value
	}
	assert.Equal(t, map[string]string{"table": "orders", "region": "us", "offset": "0", "limit": "100"}, values)
}

func TestSpans(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	wf := f.workflow(t, "w")
	f.add(t, wf.ID, testutil.Node("a", "score"))
	_, err := f.m.AddNode(ctx, wf.ID, testutil.Node("", "score"))
	require.Error(t, err)

	var addNode []tracetest.SpanStub
	for _, s := range f.spans.GetSpans() {
		if s.Name == "workgraph.graph.AddNode" {
			addNode = append(addNode, s)
		}
	}
	require.Len(t, addNode, 2)
	assert.Equal(t, codes.Ok, addNode[0].Status.Code)
	assert.Equal(t, codes.Error, addNode[1].Status.Code)
}

func names(nodes []*workflow.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Name)
	}
	return out
}

func sourceNames(wf *workflow.Workflow, n *workflow.Node) []string {
	var out []string
	for _, l := range n.Links {
		src, ok := wf.Node(l.SourceNodeID)
		if ok {
			out = append(out, src.Name)
		}
	}
	sort.Strings(out)
	return out
}

func descriptorIDs(sources []descriptor.Source) []string {
	var out []string
	for _, s := range sources {
		out = append(out, fmt.Sprintf("%s/%s/%s/%s", s.ID, s.Name, s.Format, s.DataType))
	}
	return out
}

func targetIDs(targets []descriptor.Target) []string {
	var out []string
	for _, t := range targets {
		out = append(out, fmt.Sprintf("%s/%s/%s/%s", t.ID, t.Name, t.Format, t.DataType))
	}
	return out
}

func mustWorkflow(t testingT, f *fixture, id string) *workflow.Workflow {
	t.Helper()
	wf, err := f.m.GetWorkflow(context.Background(), id)
	require.NoError(t, err)
	return wf
}
