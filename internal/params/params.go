// Package params computes the effective parameters of workflow nodes.
//
// A node's parameters start from its component's declarations and their
// defaults. Datasource nodes then take the values of their stored query: one
// entry per filter plus the offset and limit paging fields. Finally the
// node's own custom values replace matching entries. Later layers win, so
// the precedence is default < query < custom.
package params

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"github.com/vk/workgraph/internal/catalog"
	"github.com/vk/workgraph/internal/convert"
	"github.com/vk/workgraph/internal/ctxlog"
	"github.com/vk/workgraph/internal/store"
	"github.com/vk/workgraph/internal/topo"
	"github.com/vk/workgraph/internal/workflow"
)

// Source names the layer an effective value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceQuery   Source = "query"
	SourceCustom  Source = "custom"
)

// Paging fields added to every datasource node.
const (
	OffsetParam = "offset"
	LimitParam  = "limit"
)

// Parameter is one effective parameter of a node.
type Parameter struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Value       string `json:"value" yaml:"value"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Source      Source `json:"source" yaml:"source"`
}

// Aggregator merges parameter layers. Queries may be nil, in which case
// datasource nodes only get the default paging fields.
type Aggregator struct {
	catalog catalog.Catalog
	queries store.QueryStore
}

// New creates an Aggregator.
func New(cat catalog.Catalog, queries store.QueryStore) *Aggregator {
	return &Aggregator{catalog: cat, queries: queries}
}

// WorkflowParameters returns the effective parameters of every node of wf,
// group members included. Entries are keyed by node name, or by
// "<id>:<name>" for every node whose name is shared with another node.
func (a *Aggregator) WorkflowParameters(ctx context.Context, wf *workflow.Workflow) (map[string][]Parameter, error) {
	ordered, err := topo.Order(wf.Nodes)
	if errors.Is(err, workflow.ErrCyclic) {
		ctxlog.FromContext(ctx).Warn("Workflow has a cycle, listing parameters in stored order.", "workflow_id", wf.ID)
		ordered = wf.Nodes
	} else if err != nil {
		return nil, err
	}

	var nodes []*workflow.Node
	for _, n := range topo.Expand(ordered) {
		if !n.IsGroup() {
			nodes = append(nodes, n)
		}
	}

	seen := make(map[string]int, len(nodes))
	for _, n := range nodes {
		seen[n.Name]++
	}

	out := make(map[string][]Parameter, len(nodes))
	for _, n := range nodes {
		list, err := a.NodeParameters(ctx, n)
		if err != nil {
			return nil, err
		}
		out[Key(n, seen[n.Name] > 1)] = list
	}
	return out, nil
}

// Key is the display key of n in WorkflowParameters.
func Key(n *workflow.Node, shared bool) string {
	if shared {
		return n.ID + ":" + n.Name
	}
	return n.Name
}

// NodeParameters returns the effective parameters of one node, in
// declaration order followed by the paging fields and query-only filters.
func (a *Aggregator) NodeParameters(ctx context.Context, n *workflow.Node) ([]Parameter, error) {
	comp, err := catalog.ComponentOf(ctx, a.catalog, n)
	if err != nil {
		return nil, err
	}

	list := make([]Parameter, 0, len(comp.Parameters))
	for _, p := range comp.Parameters {
		param := Parameter{
			Name:        p.Name,
			Type:        convert.TypeName(p.Type),
			Description: p.Description,
			Source:      SourceDefault,
		}
		if p.Default != nil {
			param.Value = convert.Format(*p.Default)
		}
		list = append(list, param)
	}

	if n.IsDataSource() {
		list, err = a.applyQuery(ctx, n, list)
		if err != nil {
			return nil, err
		}
	}

	for _, cv := range n.CustomValues {
		if i := indexOf(list, cv.Name); i >= 0 {
			list[i].Value = cv.Value
			list[i].Source = SourceCustom
		}
	}
	return list, nil
}

func (a *Aggregator) applyQuery(ctx context.Context, n *workflow.Node, list []Parameter) ([]Parameter, error) {
	list = set(list, Parameter{Name: OffsetParam, Type: "number", Value: "0", Source: SourceDefault}, false)
	list = set(list, Parameter{Name: LimitParam, Type: "number", Value: "0", Source: SourceDefault}, false)

	if a.queries == nil || n.ID == "" {
		return list, nil
	}
	q, err := a.queries.GetQueryForNode(ctx, n.ID)
	if err != nil {
		return nil, workflow.Persistence("get query for node", err)
	}
	if q == nil {
		return list, nil
	}

	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		list = set(list, Parameter{Name: k, Type: "string", Value: q.Filters[k], Source: SourceQuery}, true)
	}
	list = set(list, Parameter{Name: OffsetParam, Type: "number", Value: strconv.Itoa(q.Offset), Source: SourceQuery}, true)
	list = set(list, Parameter{Name: LimitParam, Type: "number", Value: strconv.Itoa(q.Limit), Source: SourceQuery}, true)
	return list, nil
}

// set appends p, or overwrites the value of an existing entry with the same
// name when override is true.
func set(list []Parameter, p Parameter, override bool) []Parameter {
	i := indexOf(list, p.Name)
	if i < 0 {
		return append(list, p)
	}
	if override {
		list[i].Value = p.Value
		list[i].Source = p.Source
	}
	return list
}

func indexOf(list []Parameter, name string) int {
	for i, p := range list {
		if p.Name == name {
			return i
		}
	}
	return -1
}
