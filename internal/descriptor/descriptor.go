// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the connection points of a Component.
//
// A Component is the reusable definition of a processing unit, and a Node is
// a placement of that definition inside a workflow. Components expose typed
// connection points: a Source is an input the component consumes, a Target is
// an output it produces. Links between nodes always join one node's Target to
// another node's Source, so every compatibility or cardinality question the
// graph engine asks is answered by looking at these descriptors.
//
// Descriptors are facts owned by the component catalog. The graph engine
// reads them and copies them into links, but the only mutation it ever makes
// is stamping the parent/group ids when it synthesizes a group component.
package descriptor

import (
	"fmt"
	"strings"
)

// ComponentType distinguishes the families of components a node may reference.
type ComponentType string

const (
	// Processing components are executables, scripts or remote services.
	Processing ComponentType = "processing"
	// DataSource components fetch data and may carry a stored filter query.
	DataSource ComponentType = "datasource"
	// Group components are synthesized from a linear run of member nodes.
	Group ComponentType = "group"
)

// ParseComponentType validates a textual component type.
func ParseComponentType(s string) (ComponentType, error) {
	switch ComponentType(strings.ToLower(strings.TrimSpace(s))) {
	case Processing:
		return Processing, nil
	case DataSource:
		return DataSource, nil
	case Group:
		return Group, nil
	}
	return "", fmt.Errorf("unknown component type %q: must be one of processing, datasource, group", s)
}

// Cardinality is the multiplicity a connection point accepts or produces.
type Cardinality string

const (
	CardinalityUnspecified Cardinality = ""
	CardinalityOne         Cardinality = "one"
	CardinalityMany        Cardinality = "many"
)

// ParseCardinality validates a textual cardinality. The empty string is
// accepted and means unspecified.
func ParseCardinality(s string) (Cardinality, error) {
	switch Cardinality(strings.ToLower(strings.TrimSpace(s))) {
	case CardinalityUnspecified:
		return CardinalityUnspecified, nil
	case CardinalityOne:
		return CardinalityOne, nil
	case CardinalityMany:
		return CardinalityMany, nil
	}
	return "", fmt.Errorf("unknown cardinality %q: must be one of one, many", s)
}

// Source is an input connection point of a component.
type Source struct {
	ID          string      `json:"id" yaml:"id"`
	ComponentID string      `json:"component_id" yaml:"component_id"`
	GroupID     string      `json:"group_id,omitempty" yaml:"group_id,omitempty"`
	Name        string      `json:"name" yaml:"name"`
	Format      string      `json:"format,omitempty" yaml:"format,omitempty"`
	DataType    string      `json:"data_type,omitempty" yaml:"data_type,omitempty"`
	Cardinality Cardinality `json:"cardinality,omitempty" yaml:"cardinality,omitempty"`
}

// Target is an output connection point of a component.
type Target struct {
	ID          string      `json:"id" yaml:"id"`
	ComponentID string      `json:"component_id" yaml:"component_id"`
	GroupID     string      `json:"group_id,omitempty" yaml:"group_id,omitempty"`
	Name        string      `json:"name" yaml:"name"`
	Format      string      `json:"format,omitempty" yaml:"format,omitempty"`
	DataType    string      `json:"data_type,omitempty" yaml:"data_type,omitempty"`
	Cardinality Cardinality `json:"cardinality,omitempty" yaml:"cardinality,omitempty"`
}

// Compatible reports whether data produced at t may flow into s. Formats and
// data types must match case-insensitively; an empty or "*" value on either
// side matches anything.
func Compatible(t Target, s Source) bool {
	return matches(t.Format, s.Format) && matches(t.DataType, s.DataType)
}

func matches(a, b string) bool {
	if a == "" || b == "" || a == "*" || b == "*" {
		return true
	}
	return strings.EqualFold(a, b)
}
