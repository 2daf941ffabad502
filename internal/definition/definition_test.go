package definition

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/workgraph/internal/graph"
	"github.com/vk/workgraph/internal/inmemorystore"
	"github.com/vk/workgraph/internal/testutil"
	"github.com/vk/workgraph/internal/workflow"
)

const nightly = `
name: nightly
tags: [etl]
nodes:
  - name: orders
    component: fetch
    type: datasource
    values:
      table: orders
  - name: prep
    after: orders
    group:
      - name: clean
        component: normalize
        values:
          strict: "true"
      - name: rescale
        component: normalize
  - name: scores
    component: score
    x: 120
    links:
      - from: prep
        output: normalize.out
        input: score.in
`

func newManager(t *testing.T) *graph.Manager {
	t.Helper()
	m, err := graph.New(graph.Deps{Store: inmemorystore.New(), Catalog: testutil.NewCatalog(t)})
	require.NoError(t, err)
	return m
}

func decode(t *testing.T, src string) *Document {
	t.Helper()
	doc, err := Decode(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func TestApplyAndExport(t *testing.T) {
	ctx, _ := testutil.Context(t)
	m := newManager(t)

	id, err := Apply(ctx, m, decode(t, nightly))
	require.NoError(t, err)
	require.NoError(t, m.ValidateWorkflow(ctx, id))

	got, err := Export(ctx, m, id)
	require.NoError(t, err)

	want := &Document{
		Name: "nightly",
		Tags: []string{"etl"},
		Nodes: []NodeDef{
			{Name: "orders", Component: "fetch", Type: "datasource", Values: map[string]string{"table": "orders"}},
			{
				Name: "prep",
				Group: []NodeDef{
					{Name: "clean", Component: "normalize", Values: map[string]string{"strict": "true"}},
					{Name: "rescale", Component: "normalize"},
				},
				Links: []LinkDef{{From: "orders", Output: "fetch.rows", Input: "normalize.in"}},
			},
			{
				Name: "scores", Component: "score", X: 120,
				Links: []LinkDef{{From: "prep", Output: "normalize.out", Input: "score.in"}},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Export() mismatch (-want +got):\n%s", diff)
	}

	t.Run("exported document replays to the same workflow", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, got))

		again, err := Apply(ctx, m, decode(t, buf.String()))
		require.NoError(t, err)
		require.NotEqual(t, id, again)

		second, err := Export(ctx, m, again)
		require.NoError(t, err)
		if diff := cmp.Diff(got, second); diff != "" {
			t.Errorf("round trip mismatch (-first +second):\n%s", diff)
		}
	})
}

func TestDecode(t *testing.T) {
	t.Run("unknown field", func(t *testing.T) {
		_, err := Decode(strings.NewReader("name: x\nnodez: []\n"))
		assert.ErrorIs(t, err, workflow.ErrInvalidArgument)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := Decode(strings.NewReader(""))
		assert.ErrorIs(t, err, workflow.ErrInvalidArgument)
	})

	t.Run("file", func(t *testing.T) {
		dir := testutil.WriteFiles(t, map[string]string{"nightly.yaml": nightly})
		doc, err := LoadFile(filepath.Join(dir, "nightly.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "nightly", doc.Name)
		assert.Len(t, doc.Nodes, 3)

		_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "missing names",
			src:  "nodes:\n  - component: score\n",
			want: []string{"workflow name must not be empty", "node #1: name must not be empty"},
		},
		{
			name: "no nodes",
			src:  "name: w\nnodes: []\n",
			want: []string{"workflow must declare at least one node"},
		},
		{
			name: "duplicate node",
			src:  "name: w\nnodes:\n  - {name: a, component: score}\n  - {name: a, component: score}\n",
			want: []string{"node 'a': name is declared twice"},
		},
		{
			name: "unknown link source",
			src:  "name: w\nnodes:\n  - name: a\n    component: score\n    links: [{from: ghost, output: x, input: y}]\n",
			want: []string{"node 'a': link source 'ghost' is not declared"},
		},
		{
			name: "incomplete link",
			src:  "name: w\nnodes:\n  - name: a\n    component: score\n    links: [{from: a}]\n",
			want: []string{"node 'a': link must name from, output and input"},
		},
		{
			name: "bad type",
			src:  "name: w\nnodes:\n  - {name: a, component: score, type: group}\n",
			want: []string{"node 'a': type 'group' is reserved for group nodes"},
		},
		{
			name: "after on a plain node",
			src:  "name: w\nnodes:\n  - {name: a, component: score}\n  - {name: b, component: score, after: a}\n",
			want: []string{"node 'b': after is only allowed on groups"},
		},
		{
			name: "after names a later node",
			src: `name: w
nodes:
  - name: g
    after: a
    group: [{name: m, component: score}]
  - {name: a, component: score}
`,
			want: []string{"node 'g': after 'a' must name a node declared earlier"},
		},
		{
			name: "member with links",
			src: `name: w
nodes:
  - {name: a, component: score}
  - name: g
    group:
      - name: m
        links: [{from: a, output: x, input: y}]
`,
			want: []string{
				"node 'g': group member 'm' cannot declare links, after or a group",
				"node 'g': member 'm': component must be set",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := decode(t, tc.src).Validate()
			require.ErrorIs(t, err, workflow.ErrValidationFailed)

			var verr *workflow.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.want, verr.Problems)
		})
	}
}

func TestApply_PartialFailureReturnsWorkflow(t *testing.T) {
	ctx, logs := testutil.Context(t)
	m := newManager(t)

	id, err := Apply(ctx, m, decode(t, `
name: broken
nodes:
  - {name: a, component: score}
  - {name: b, component: ghost}
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, workflow.ErrValidationFailed)
	assert.Contains(t, err.Error(), "node 'b'")
	require.NotEmpty(t, id)

	wf, err := m.GetWorkflow(ctx, id)
	require.NoError(t, err)
	require.Len(t, wf.Nodes, 1)
	assert.Equal(t, "a", wf.Nodes[0].Name)
	assert.NotContains(t, logs.String(), "Workflow definition applied.")
}

func TestApply_InvalidDocumentCreatesNothing(t *testing.T) {
	ctx, _ := testutil.Context(t)
	m := newManager(t)

	id, err := Apply(ctx, m, &Document{Name: "w"})
	assert.ErrorIs(t, err, workflow.ErrValidationFailed)
	assert.Empty(t, id)

	all, err := m.ListWorkflows(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, all)
}
