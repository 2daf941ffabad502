package workflow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/workgraph/internal/descriptor"
)

func link(from, out, in string) Link {
	return Link{
		SourceNodeID: from,
		Output:       descriptor.Target{ID: out},
		Input:        descriptor.Source{ID: in},
	}
}

func TestWorkflowChildren(t *testing.T) {
	wf := &Workflow{Nodes: []*Node{
		{ID: "a", Name: "A"},
		{ID: "b", Name: "B", Links: []Link{link("a", "a.out", "b.in")}},
		{ID: "c", Name: "C", Links: []Link{link("a", "a.out", "c.in"), link("b", "b.out", "c.in2")}},
		{ID: "d", Name: "D", Links: []Link{link("c", "c.out", "d.in")}},
	}}

	children := wf.Children("a")
	require.Len(t, children, 2)
	assert.Equal(t, "b", children[0].ID)
	assert.Equal(t, "c", children[1].ID)
	assert.Empty(t, wf.Children("d"))

	assert.Equal(t, []string{"A", "C", "D"}, wf.Names("b"))
	n, ok := wf.NodeByName("C")
	require.True(t, ok)
	assert.Equal(t, "c", n.ID)
}

func TestNodeLinkRemoval(t *testing.T) {
	n := &Node{Links: []Link{link("a", "a.out", "n.in"), link("b", "b.out", "n.in"), link("a", "a.err", "n.log")}}

	assert.Equal(t, 2, n.RemoveLinksFrom("a"))
	require.Len(t, n.Links, 1)
	assert.Equal(t, "b", n.Links[0].SourceNodeID)

	assert.False(t, n.RemoveLink(link("b", "b.other", "n.in")))
	assert.True(t, n.RemoveLink(link("b", "b.out", "n.in")))
	assert.Empty(t, n.Links)
}

func TestNodeCloneIsDeep(t *testing.T) {
	orig := &Node{
		ID:           "g",
		Kind:         KindGroup,
		CustomValues: []ParameterOverride{{Name: "p", Value: "1"}},
		Links:        []Link{link("a", "a.out", "g.in")},
		Group: &GroupData{
			Members:   []*Node{{ID: "m1", Name: "member"}},
			Component: &descriptor.Component{ID: "g", Sources: []descriptor.Source{{ID: "s"}}},
		},
	}

	c := orig.Clone()
	c.CustomValues[0].Value = "2"
	c.Links[0].SourceNodeID = "z"
	c.Group.Members[0].Name = "renamed"
	c.Group.Component.Sources[0].ID = "t"

	assert.Equal(t, "1", orig.CustomValues[0].Value)
	assert.Equal(t, "a", orig.Links[0].SourceNodeID)
	assert.Equal(t, "member", orig.Group.Members[0].Name)
	assert.Equal(t, "s", orig.Group.Component.Sources[0].ID)
}

func TestCustomValueLastWins(t *testing.T) {
	n := &Node{CustomValues: []ParameterOverride{{Name: "p", Value: "1"}, {Name: "p", Value: "2"}}}
	v, ok := n.CustomValue("p")
	require.True(t, ok)
	assert.Equal(t, "2", v)
	_, ok = n.CustomValue("q")
	assert.False(t, ok)
}

func TestAssignIDs(t *testing.T) {
	next := 0
	newID := func() string { next++; return fmt.Sprintf("id-%d", next) }
	n := &Node{Kind: KindGroup, Group: &GroupData{Members: []*Node{{}, {ID: "keep"}}}}

	AssignIDs(n, "wf", newID)

	assert.Equal(t, "id-1", n.ID)
	assert.Equal(t, "id-2", n.Group.Members[0].ID)
	assert.Equal(t, "keep", n.Group.Members[1].ID)
	assert.Equal(t, "wf", n.Group.Members[1].WorkflowID)
}

func TestErrorKinds(t *testing.T) {
	t.Run("validation error aggregates", func(t *testing.T) {
		err := NewValidationError([]string{"name is empty", "component missing"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidationFailed))
		var ve *ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Len(t, ve.Problems, 2)
		assert.Contains(t, err.Error(), "- component missing")
		assert.NoError(t, NewValidationError(nil))
	})

	t.Run("persistence wraps but keeps not found", func(t *testing.T) {
		nf := NotFound("node", "n1")
		assert.Same(t, nf, Persistence("get node", nf))

		err := Persistence("save node", errors.New("disk full"))
		assert.True(t, errors.Is(err, ErrPersistence))
		assert.Contains(t, err.Error(), "disk full")
		assert.NoError(t, Persistence("noop", nil))
	})

	t.Run("invalid argument", func(t *testing.T) {
		err := InvalidArgument("node %q already has an id", "x")
		assert.True(t, errors.Is(err, ErrInvalidArgument))
	})
}
