// Package topo orders workflow nodes along their links.
//
// The ordering is used to replay nodes when cloning or importing a workflow
// (a link can only be recreated once both endpoints exist), to walk nodes
// deterministically when aggregating parameters, and to list execution tasks.
// A group node is a single unit in the ordering; its members follow it only
// in the expanded task listing.
package topo

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dominikbraun/graph"

	"github.com/vk/workgraph/internal/workflow"
)

// Order returns nodes sorted so that every link's source precedes the node
// holding it. Nodes with no constraint between them keep their relative
// input order. Links whose source is not among nodes are ignored. A cycle
// yields an error wrapping workflow.ErrCyclic.
func Order(nodes []*workflow.Node) ([]*workflow.Node, error) {
	g := graph.New(graph.StringHash, graph.Directed())
	byID := make(map[string]string, len(nodes))

	for i, n := range nodes {
		key := strconv.Itoa(i)
		if err := g.AddVertex(key); err != nil {
			return nil, fmt.Errorf("add node %q: %w", n.ID, err)
		}
		if _, dup := byID[n.ID]; !dup {
			byID[n.ID] = key
		}
	}

	for i, n := range nodes {
		to := strconv.Itoa(i)
		for _, l := range n.Links {
			from, ok := byID[l.SourceNodeID]
			if !ok {
				continue
			}
			if err := g.AddEdge(from, to); err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return nil, fmt.Errorf("add link %s -> %s: %w", l.SourceNodeID, n.ID, err)
			}
		}
	}

	keys, err := graph.StableTopologicalSort(g, func(a, b string) bool {
		return index(a) < index(b)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrCyclic, err)
	}

	out := make([]*workflow.Node, 0, len(keys))
	for _, k := range keys {
		out = append(out, nodes[index(k)])
	}
	return out, nil
}

// Expand flattens an ordering into execution tasks: each group node is
// followed by its members, recursively, in member order.
func Expand(ordered []*workflow.Node) []*workflow.Node {
	out := make([]*workflow.Node, 0, len(ordered))
	for _, n := range ordered {
		out = append(out, n)
		if n.IsGroup() && n.Group != nil {
			out = append(out, Expand(n.Group.Members)...)
		}
	}
	return out
}

func index(key string) int {
	i, _ := strconv.Atoi(key)
	return i
}
