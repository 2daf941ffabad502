package sqlitestore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vk/workgraph/internal/descriptor"
	"github.com/vk/workgraph/internal/workflow"
)

// workflowModel represents a row of the workflows table.
type workflowModel struct {
	ID          string
	Name        string
	Description string
	Status      string
	Visibility  string
	Owner       string
	Tags        string // JSON encoded
	Active      bool
	CreatedAt   int64 // Unix nanoseconds
}

// nodeModel represents a row of the nodes table.
type nodeModel struct {
	ID             string
	WorkflowID     string
	Position       int
	Kind           string
	Name           string
	X, Y           float64
	ComponentID    string
	ComponentType  string
	CustomValues   string  // JSON encoded
	PreserveOutput bool
	Links          string  // JSON encoded
	GroupData      *string // JSON encoded, nullable
}

// The JSON shapes below are the persisted form of a node's nested values.
// They are kept apart from the domain types so that renaming a Go field
// never silently changes stored data.

type overrideJSON struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type linkJSON struct {
	SourceNodeID string            `json:"source_node_id"`
	Output       descriptor.Target `json:"output"`
	Input        descriptor.Source `json:"input"`
}

type memberJSON struct {
	ID             string         `json:"id"`
	Kind           string         `json:"kind"`
	Name           string         `json:"name"`
	X              float64        `json:"x"`
	Y              float64        `json:"y"`
	ComponentID    string         `json:"component_id"`
	ComponentType  string         `json:"component_type"`
	CustomValues   []overrideJSON `json:"custom_values,omitempty"`
	PreserveOutput bool           `json:"preserve_output,omitempty"`
	Links          []linkJSON     `json:"links,omitempty"`
	Group          *groupJSON     `json:"group,omitempty"`
}

// componentJSON holds a synthesized group component. Group components
// declare no parameters, so none are stored.
type componentJSON struct {
	ID          string              `json:"id"`
	Type        string              `json:"type"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Sources     []descriptor.Source `json:"sources,omitempty"`
	Targets     []descriptor.Target `json:"targets,omitempty"`
}

type groupJSON struct {
	Members   []memberJSON   `json:"members"`
	Component *componentJSON `json:"component,omitempty"`
}

func toWorkflowModel(wf *workflow.Workflow) (*workflowModel, error) {
	tags, err := json.Marshal(nonNil(wf.Tags))
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	return &workflowModel{
		ID:          wf.ID,
		Name:        wf.Name,
		Description: wf.Description,
		Status:      string(wf.Status),
		Visibility:  string(wf.Visibility),
		Owner:       wf.Owner,
		Tags:        string(tags),
		Active:      wf.Active,
		CreatedAt:   wf.CreatedAt.UnixNano(),
	}, nil
}

func (m *workflowModel) toDomain() (*workflow.Workflow, error) {
	var tags []string
	if err := json.Unmarshal([]byte(m.Tags), &tags); err != nil {
		return nil, fmt.Errorf("decode tags of workflow %s: %w", m.ID, err)
	}
	return &workflow.Workflow{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Status:      workflow.Status(m.Status),
		Visibility:  workflow.Visibility(m.Visibility),
		Owner:       m.Owner,
		CreatedAt:   time.Unix(0, m.CreatedAt).UTC(),
		Tags:        tags,
		Active:      m.Active,
	}, nil
}

func toNodeModel(n *workflow.Node, position int) (*nodeModel, error) {
	m := &nodeModel{
		ID:             n.ID,
		WorkflowID:     n.WorkflowID,
		Position:       position,
		Kind:           string(n.Kind),
		Name:           n.Name,
		X:              n.X,
		Y:              n.Y,
		ComponentID:    n.Component.ID,
		ComponentType:  string(n.Component.Type),
		PreserveOutput: n.PreserveOutput,
	}
	if m.Kind == "" {
		m.Kind = string(workflow.KindSimple)
	}

	custom, err := json.Marshal(toOverridesJSON(n.CustomValues))
	if err != nil {
		return nil, fmt.Errorf("encode custom values: %w", err)
	}
	m.CustomValues = string(custom)

	links, err := json.Marshal(toLinksJSON(n.Links))
	if err != nil {
		return nil, fmt.Errorf("encode links: %w", err)
	}
	m.Links = string(links)

	if n.Group != nil {
		group, err := json.Marshal(toGroupJSON(n.Group))
		if err != nil {
			return nil, fmt.Errorf("encode group: %w", err)
		}
		s := string(group)
		m.GroupData = &s
	}
	return m, nil
}

func (m *nodeModel) toDomain() (*workflow.Node, error) {
	n := &workflow.Node{
		ID:             m.ID,
		WorkflowID:     m.WorkflowID,
		Kind:           workflow.Kind(m.Kind),
		Name:           m.Name,
		X:              m.X,
		Y:              m.Y,
		Component:      workflow.ComponentRef{ID: m.ComponentID, Type: descriptor.ComponentType(m.ComponentType)},
		PreserveOutput: m.PreserveOutput,
	}

	var custom []overrideJSON
	if err := json.Unmarshal([]byte(m.CustomValues), &custom); err != nil {
		return nil, fmt.Errorf("decode custom values of node %s: %w", m.ID, err)
	}
	n.CustomValues = fromOverridesJSON(custom)

	var links []linkJSON
	if err := json.Unmarshal([]byte(m.Links), &links); err != nil {
		return nil, fmt.Errorf("decode links of node %s: %w", m.ID, err)
	}
	n.Links = fromLinksJSON(links)

	if m.GroupData != nil {
		var g groupJSON
		if err := json.Unmarshal([]byte(*m.GroupData), &g); err != nil {
			return nil, fmt.Errorf("decode group of node %s: %w", m.ID, err)
		}
		n.Group = fromGroupJSON(&g, m.WorkflowID)
	}
	return n, nil
}

func toOverridesJSON(in []workflow.ParameterOverride) []overrideJSON {
	out := make([]overrideJSON, 0, len(in))
	for _, o := range in {
		out = append(out, overrideJSON{Name: o.Name, Value: o.Value})
	}
	return out
}

func fromOverridesJSON(in []overrideJSON) []workflow.ParameterOverride {
	if len(in) == 0 {
		return nil
	}
	out := make([]workflow.ParameterOverride, 0, len(in))
	for _, o := range in {
		out = append(out, workflow.ParameterOverride{Name: o.Name, Value: o.Value})
	}
	return out
}

func toLinksJSON(in []workflow.Link) []linkJSON {
	out := make([]linkJSON, 0, len(in))
	for _, l := range in {
		out = append(out, linkJSON{SourceNodeID: l.SourceNodeID, Output: l.Output, Input: l.Input})
	}
	return out
}

func fromLinksJSON(in []linkJSON) []workflow.Link {
	if len(in) == 0 {
		return nil
	}
	out := make([]workflow.Link, 0, len(in))
	for _, l := range in {
		out = append(out, workflow.Link{SourceNodeID: l.SourceNodeID, Output: l.Output, Input: l.Input})
	}
	return out
}

func toGroupJSON(g *workflow.GroupData) *groupJSON {
	out := &groupJSON{Members: make([]memberJSON, 0, len(g.Members))}
	for _, m := range g.Members {
		mj := memberJSON{
			ID:             m.ID,
			Kind:           string(m.Kind),
			Name:           m.Name,
			X:              m.X,
			Y:              m.Y,
			ComponentID:    m.Component.ID,
			ComponentType:  string(m.Component.Type),
			CustomValues:   toOverridesJSON(m.CustomValues),
			PreserveOutput: m.PreserveOutput,
			Links:          toLinksJSON(m.Links),
		}
		if m.Group != nil {
			mj.Group = toGroupJSON(m.Group)
		}
		out.Members = append(out.Members, mj)
	}
	if c := g.Component; c != nil {
		out.Component = &componentJSON{
			ID:          c.ID,
			Type:        string(c.Type),
			Name:        c.Name,
			Description: c.Description,
			Sources:     c.Sources,
			Targets:     c.Targets,
		}
	}
	return out
}

func fromGroupJSON(g *groupJSON, workflowID string) *workflow.GroupData {
	out := &workflow.GroupData{}
	for _, mj := range g.Members {
		m := &workflow.Node{
			ID:             mj.ID,
			WorkflowID:     workflowID,
			Kind:           workflow.Kind(mj.Kind),
			Name:           mj.Name,
			X:              mj.X,
			Y:              mj.Y,
			Component:      workflow.ComponentRef{ID: mj.ComponentID, Type: descriptor.ComponentType(mj.ComponentType)},
			CustomValues:   fromOverridesJSON(mj.CustomValues),
			PreserveOutput: mj.PreserveOutput,
			Links:          fromLinksJSON(mj.Links),
		}
		if mj.Group != nil {
			m.Group = fromGroupJSON(mj.Group, workflowID)
		}
		out.Members = append(out.Members, m)
	}
	if c := g.Component; c != nil {
		out.Component = &descriptor.Component{
			ID:          c.ID,
			Type:        descriptor.ComponentType(c.Type),
			Name:        c.Name,
			Description: c.Description,
			Sources:     c.Sources,
			Targets:     c.Targets,
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
