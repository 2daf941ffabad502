// Package definition reads and writes workflows as YAML documents.
//
// A document names its nodes and wires them by name, so it can be written by
// hand and replayed into any graph:
//
//	name: nightly
//	nodes:
//	  - name: orders
//	    component: fetch
//	    type: datasource
//	    values:
//	      table: orders
//	  - name: clean
//	    component: normalize
//	    links:
//	      - from: orders
//	        output: fetch.rows
//	        input: normalize.in
//	  - name: prep
//	    after: clean
//	    group:
//	      - name: a
//	        component: normalize
//	      - name: b
//	        component: score
//
// A node with a group list becomes a group node; its members are chained in
// order and, when after is set, fed from that node. Links always point into
// the node that declares them.
package definition

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/vk/workgraph/internal/descriptor"
	"github.com/vk/workgraph/internal/workflow"
)

// Document is a workflow definition.
type Document struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Visibility  string    `yaml:"visibility,omitempty"`
	Owner       string    `yaml:"owner,omitempty"`
	Tags        []string  `yaml:"tags,omitempty"`
	Nodes       []NodeDef `yaml:"nodes"`
}

// NodeDef describes one node. Component and Type are ignored for groups.
type NodeDef struct {
	Name           string            `yaml:"name"`
	Component      string            `yaml:"component,omitempty"`
	Type           string            `yaml:"type,omitempty"`
	X              float64           `yaml:"x,omitempty"`
	Y              float64           `yaml:"y,omitempty"`
	PreserveOutput bool              `yaml:"preserve_output,omitempty"`
	Values         map[string]string `yaml:"values,omitempty"`
	Links          []LinkDef         `yaml:"links,omitempty"`
	After          string            `yaml:"after,omitempty"`
	Group          []NodeDef         `yaml:"group,omitempty"`
}

// LinkDef is an incoming link: output of node From feeds Input.
type LinkDef struct {
	From   string `yaml:"from"`
	Output string `yaml:"output"`
	Input  string `yaml:"input"`
}

// IsGroup reports whether d declares a group node.
func (d NodeDef) IsGroup() bool { return len(d.Group) > 0 }

// Decode reads a document. Unknown fields are rejected.
func Decode(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty workflow definition", workflow.ErrInvalidArgument)
		}
		return nil, fmt.Errorf("%w: parsing YAML: %v", workflow.ErrInvalidArgument, err)
	}
	return &doc, nil
}

// LoadFile decodes the document stored at path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow definition: %w", err)
	}
	doc, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Encode writes doc as YAML.
func Encode(w io.Writer, doc *Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding workflow definition: %w", err)
	}
	return enc.Close()
}

// Validate checks that the document can be replayed: names are set and
// unique, every link and after names a node declared in the document, and
// after names a node declared earlier. All problems are reported together.
func (doc *Document) Validate() error {
	var problems []string
	if doc.Name == "" {
		problems = append(problems, "workflow name must not be empty")
	}
	if len(doc.Nodes) == 0 {
		problems = append(problems, "workflow must declare at least one node")
	}

	declared := make(map[string]int, len(doc.Nodes))
	for i, n := range doc.Nodes {
		if n.Name == "" {
			problems = append(problems, fmt.Sprintf("node #%d: name must not be empty", i+1))
			continue
		}
		if _, dup := declared[n.Name]; dup {
			problems = append(problems, fmt.Sprintf("node '%s': name is declared twice", n.Name))
			continue
		}
		declared[n.Name] = i
	}

	for i, n := range doc.Nodes {
		prefix := fmt.Sprintf("node '%s': ", n.Name)
		if n.Name == "" {
			prefix = fmt.Sprintf("node #%d: ", i+1)
		}
		problems = append(problems, nodeProblems(prefix, n)...)

		for _, l := range n.Links {
			if l.From == "" || l.Output == "" || l.Input == "" {
				problems = append(problems, prefix+"link must name from, output and input")
				continue
			}
			if _, ok := declared[l.From]; !ok {
				problems = append(problems, fmt.Sprintf("%slink source '%s' is not declared", prefix, l.From))
			}
		}

		if n.After == "" {
			continue
		}
		if !n.IsGroup() {
			problems = append(problems, prefix+"after is only allowed on groups")
		} else if at, ok := declared[n.After]; !ok || at >= i {
			problems = append(problems, fmt.Sprintf("%safter '%s' must name a node declared earlier", prefix, n.After))
		}
	}
	return workflow.NewValidationError(problems)
}

func nodeProblems(prefix string, n NodeDef) []string {
	var problems []string
	if !n.IsGroup() {
		if n.Component == "" {
			problems = append(problems, prefix+"component must be set")
		}
		if _, err := componentType(n.Type); err != nil {
			problems = append(problems, prefix+err.Error())
		}
		return problems
	}

	seen := make(map[string]bool, len(n.Group))
	for _, m := range n.Group {
		if m.Name == "" {
			problems = append(problems, prefix+"group member name must not be empty")
			continue
		}
		if seen[m.Name] {
			problems = append(problems, fmt.Sprintf("%sgroup member '%s' is declared twice", prefix, m.Name))
		}
		seen[m.Name] = true
		if m.IsGroup() || len(m.Links) > 0 || m.After != "" {
			problems = append(problems, fmt.Sprintf("%sgroup member '%s' cannot declare links, after or a group", prefix, m.Name))
		}
		problems = append(problems, nodeProblems(fmt.Sprintf("%smember '%s': ", prefix, m.Name), NodeDef{
			Name: m.Name, Component: m.Component, Type: m.Type,
		})...)
	}
	return problems
}

func componentType(s string) (descriptor.ComponentType, error) {
	if s == "" {
		return descriptor.Processing, nil
	}
	typ, err := descriptor.ParseComponentType(s)
	if err != nil {
		return "", err
	}
	if typ == descriptor.Group {
		return "", fmt.Errorf("type '%s' is reserved for group nodes", s)
	}
	return typ, nil
}

// node converts a non-group definition into an unsaved node.
func (d NodeDef) node() *workflow.Node {
	typ, _ := componentType(d.Type)
	n := &workflow.Node{
		Kind:           workflow.KindSimple,
		Name:           d.Name,
		X:              d.X,
		Y:              d.Y,
		PreserveOutput: d.PreserveOutput,
		Component:      workflow.ComponentRef{ID: d.Component, Type: typ},
	}
	names := make([]string, 0, len(d.Values))
	for name := range d.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		n.CustomValues = append(n.CustomValues, workflow.ParameterOverride{Name: name, Value: d.Values[name]})
	}
	return n
}

// nodeDef is the inverse of node. Links are filled in by the caller.
func nodeDef(n *workflow.Node) NodeDef {
	d := NodeDef{
		Name:           n.Name,
		X:              n.X,
		Y:              n.Y,
		PreserveOutput: n.PreserveOutput,
	}
	if n.IsGroup() {
		if n.Group != nil {
			for _, m := range n.Group.Members {
				d.Group = append(d.Group, nodeDef(m))
			}
		}
		return d
	}

	d.Component = n.Component.ID
	if n.Component.Type == descriptor.DataSource {
		d.Type = string(descriptor.DataSource)
	}
	if len(n.CustomValues) > 0 {
		d.Values = make(map[string]string, len(n.CustomValues))
		for _, cv := range n.CustomValues {
			d.Values[cv.Name] = cv.Value
		}
	}
	return d
}
