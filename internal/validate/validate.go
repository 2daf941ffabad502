// Package validate checks nodes and workflows and reports every problem at
// once.
//
// Checks run in a fixed order so that messages are stable:
//
//  1. the name is not empty
//  2. no sibling node has the same name
//  3. every incoming link names an output of its source node's component and
//     an input of this node's component
//  4. the component resolves through the catalog
//  5. every custom value names a declared parameter and converts under its type
//  6. every incoming link joins compatible connection points, and inputs of
//     cardinality one receive at most one link
//
// Group nodes must carry their synthesized component and at least one
// member; each member is then validated in turn against the other members.
// Validation never mutates its input.
package validate

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/workgraph/internal/catalog"
	"github.com/vk/workgraph/internal/convert"
	"github.com/vk/workgraph/internal/descriptor"
	"github.com/vk/workgraph/internal/workflow"
)

// Validator holds the collaborators validation consults.
type Validator struct {
	catalog   catalog.Catalog
	converter convert.Converter
}

// New creates a Validator.
func New(cat catalog.Catalog, conv convert.Converter) *Validator {
	return &Validator{catalog: cat, converter: conv}
}

// Node validates n as a top-level node of wf. n may be a node not yet in
// wf.Nodes, or a modified copy of one (matched by id). The returned error is
// reserved for collaborator failures; problems are returned as messages.
func (v *Validator) Node(ctx context.Context, wf *workflow.Workflow, n *workflow.Node) ([]string, error) {
	return v.check(ctx, wf.Nodes, nil, n)
}

// Workflow validates every top-level node of wf. Messages are prefixed with
// the node's name.
func (v *Validator) Workflow(ctx context.Context, wf *workflow.Workflow) ([]string, error) {
	var problems []string
	if wf.Name == "" {
		problems = append(problems, "workflow name must not be empty")
	}
	for _, n := range wf.Nodes {
		nodeProblems, err := v.check(ctx, wf.Nodes, nil, n)
		if err != nil {
			return nil, err
		}
		for _, p := range nodeProblems {
			problems = append(problems, fmt.Sprintf("node '%s': %s", n.Name, p))
		}
	}
	return problems, nil
}

// check validates n among siblings. outer holds the nodes a group member's
// links may also come from.
func (v *Validator) check(ctx context.Context, siblings, outer []*workflow.Node, n *workflow.Node) ([]string, error) {
	var problems []string

	// 1. name
	if n.Name == "" {
		problems = append(problems, "name must not be empty")
	}

	// 2. uniqueness
	if n.Name != "" {
		for _, s := range siblings {
			if s.Name == n.Name && (n.ID == "" || s.ID != n.ID) && s != n {
				problems = append(problems, fmt.Sprintf("name '%s' is already used by another node", n.Name))
				break
			}
		}
	}

	comp, compProblem, err := v.component(ctx, n)
	if err != nil {
		return nil, err
	}

	// 3. link endpoints
	type resolvedLink struct {
		link   workflow.Link
		target descriptor.Target
		source descriptor.Source
	}
	var resolved []resolvedLink
	for _, l := range n.Links {
		if !l.Valid() {
			problems = append(problems, "link must name a source node, an output and an input")
			continue
		}
		from := find(l.SourceNodeID, siblings, outer)
		if from == nil {
			problems = append(problems, fmt.Sprintf("link source node '%s' does not exist", l.SourceNodeID))
			continue
		}
		fromComp, err := catalog.ComponentOf(ctx, v.catalog, from)
		if errors.Is(err, workflow.ErrNotFound) {
			problems = append(problems, fmt.Sprintf("link source node '%s' has no resolvable component", from.Name))
			continue
		}
		if err != nil {
			return nil, err
		}
		target, ok := fromComp.Target(l.Output.ID)
		if !ok {
			problems = append(problems, fmt.Sprintf("output '%s' does not belong to component '%s' of node '%s'", l.Output.ID, fromComp.ID, from.Name))
		}
		var source descriptor.Source
		srcOK := false
		if comp != nil {
			source, srcOK = comp.Source(l.Input.ID)
			if !srcOK {
				problems = append(problems, fmt.Sprintf("input '%s' does not belong to component '%s'", l.Input.ID, comp.ID))
			}
		}
		if ok && srcOK {
			resolved = append(resolved, resolvedLink{link: l, target: target, source: source})
		}
	}

	// 4. component
	if compProblem != "" {
		problems = append(problems, compProblem)
	}

	// 5. custom values
	if comp != nil {
		for _, cv := range n.CustomValues {
			p, ok := comp.Parameter(cv.Name)
			if !ok {
				problems = append(problems, fmt.Sprintf("parameter '%s' is not declared by component '%s'", cv.Name, comp.ID))
				continue
			}
			if _, err := v.converter.Convert(p, cv.Value); err != nil {
				problems = append(problems, err.Error())
			}
		}
	}

	// 6. compatibility and cardinality
	perInput := make(map[string]int)
	for _, r := range resolved {
		if !v.catalog.IsCompatible(r.target, r.source) {
			problems = append(problems, fmt.Sprintf("output '%s' is not compatible with input '%s'", r.target.ID, r.source.ID))
		}
		perInput[r.source.ID]++
		if r.source.Cardinality == descriptor.CardinalityOne && perInput[r.source.ID] == 2 {
			problems = append(problems, fmt.Sprintf("input '%s' accepts one link but has several", r.source.ID))
		}
	}

	// group members
	if n.IsGroup() && n.Group != nil {
		if len(n.Group.Members) == 0 {
			problems = append(problems, "group must have at least one member")
		}
		memberOuter := append(append([]*workflow.Node(nil), siblings...), outer...)
		for _, m := range n.Group.Members {
			memberProblems, err := v.check(ctx, n.Group.Members, memberOuter, m)
			if err != nil {
				return nil, err
			}
			for _, p := range memberProblems {
				problems = append(problems, fmt.Sprintf("member '%s': %s", m.Name, p))
			}
		}
	}

	return problems, nil
}

// component resolves n's component. A missing component is reported as a
// problem message; other failures are returned as errors.
func (v *Validator) component(ctx context.Context, n *workflow.Node) (*descriptor.Component, string, error) {
	if n.IsGroup() {
		if n.Group == nil || n.Group.Component == nil {
			return nil, "group has no synthesized component", nil
		}
		return n.Group.Component, "", nil
	}
	if n.Component.ID == "" {
		return nil, "component must be set", nil
	}
	comp, err := v.catalog.FindComponent(ctx, n.Component.ID, n.Component.Type)
	if errors.Is(err, workflow.ErrNotFound) {
		return nil, fmt.Sprintf("component '%s' of type '%s' does not exist", n.Component.ID, n.Component.Type), nil
	}
	if err != nil {
		return nil, "", workflow.Persistence("find component", err)
	}
	return comp, "", nil
}

func find(id string, lists ...[]*workflow.Node) *workflow.Node {
	for _, list := range lists {
		for _, n := range list {
			if n.ID == id {
				return n
			}
		}
	}
	return nil
}
