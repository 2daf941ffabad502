package descriptor

import "github.com/zclconf/go-cty/cty"

// ParameterDescriptor declares one configurable parameter of a component.
// Type drives conversion of the raw string values users attach to nodes.
type ParameterDescriptor struct {
	Name        string
	Type        cty.Type
	Default     *cty.Value
	Description string
	Required    bool
}

// Component is the catalog's description of a reusable processing unit.
type Component struct {
	ID          string
	Type        ComponentType
	Name        string
	Description string
	Sources     []Source
	Targets     []Target
	Parameters  []ParameterDescriptor
}

// Source returns the input connection point with the given id.
func (c *Component) Source(id string) (Source, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return Source{}, false
}

// Target returns the output connection point with the given id.
func (c *Component) Target(id string) (Target, bool) {
	for _, t := range c.Targets {
		if t.ID == id {
			return t, true
		}
	}
	return Target{}, false
}

// SourceByName returns the input connection point with the given local name.
func (c *Component) SourceByName(name string) (Source, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

// TargetByName returns the output connection point with the given local name.
func (c *Component) TargetByName(name string) (Target, bool) {
	for _, t := range c.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}

// Parameter returns the parameter descriptor with the given name.
func (c *Component) Parameter(name string) (ParameterDescriptor, bool) {
	for _, p := range c.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterDescriptor{}, false
}

// Clone returns a deep copy of the component. cty values are immutable and
// are shared.
func (c *Component) Clone() *Component {
	if c == nil {
		return nil
	}
	out := *c
	out.Sources = append([]Source(nil), c.Sources...)
	out.Targets = append([]Target(nil), c.Targets...)
	out.Parameters = append([]ParameterDescriptor(nil), c.Parameters...)
	return &out
}

// NewGroupComponent synthesizes the component behind a group node. Its
// sources are those of the first member's component and its targets those of
// the last member's component, each stamped with the group's id.
func NewGroupComponent(id, name string, first, last *Component) *Component {
	g := &Component{
		ID:   id,
		Type: Group,
		Name: name,
	}
	if first != nil {
		for _, s := range first.Sources {
			s.ComponentID = id
			s.GroupID = id
			g.Sources = append(g.Sources, s)
		}
	}
	if last != nil {
		for _, t := range last.Targets {
			t.ComponentID = id
			t.GroupID = id
			g.Targets = append(g.Targets, t)
		}
	}
	return g
}
