// Package convert turns the raw string values users attach to nodes into
// typed cty values, following the type a component declares for each
// parameter.
package convert

import (
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"
	ctyconvert "github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/workgraph/internal/descriptor"
)

// Converter is the parameter conversion collaborator.
type Converter interface {
	// Convert parses raw under the declared type of p.
	Convert(p descriptor.ParameterDescriptor, raw string) (cty.Value, error)
}

// CtyConverter converts with go-cty's standard conversion rules.
type CtyConverter struct{}

var _ Converter = CtyConverter{}

// Convert implements Converter. Parameters without a declared type, or
// declared as any, keep the raw string.
func (CtyConverter) Convert(p descriptor.ParameterDescriptor, raw string) (cty.Value, error) {
	if p.Type == cty.NilType || p.Type.Equals(cty.DynamicPseudoType) || p.Type.Equals(cty.String) {
		return cty.StringVal(raw), nil
	}
	val, err := ctyconvert.Convert(cty.StringVal(strings.TrimSpace(raw)), p.Type)
	if err != nil {
		return cty.NilVal, fmt.Errorf("parameter '%s': value %q is not a valid %s: %w", p.Name, raw, p.Type.FriendlyName(), err)
	}
	return val, nil
}

// Format renders a primitive cty value the way users type it. Null and
// unknown values render as the empty string.
func Format(v cty.Value) string {
	if v == cty.NilVal || v.IsNull() || !v.IsKnown() {
		return ""
	}
	ty := v.Type()
	switch {
	case ty.Equals(cty.String):
		return v.AsString()
	case ty.Equals(cty.Number):
		return v.AsBigFloat().Text('f', -1)
	case ty.Equals(cty.Bool):
		if v.True() {
			return "true"
		}
		return "false"
	}
	s, err := ctyconvert.Convert(v, cty.String)
	if err != nil {
		return v.GoString()
	}
	return s.AsString()
}

// TypeName returns the keyword for a primitive type, as written in manifests.
func TypeName(ty cty.Type) string {
	switch {
	case ty == cty.NilType:
		return ""
	case ty.Equals(cty.String):
		return "string"
	case ty.Equals(cty.Number):
		return "number"
	case ty.Equals(cty.Bool):
		return "bool"
	case ty.Equals(cty.DynamicPseudoType):
		return "any"
	}
	return ty.FriendlyName()
}

// TypeByName is the inverse of TypeName for the supported keywords.
func TypeByName(name string) (cty.Type, bool) {
	switch name {
	case "string":
		return cty.String, true
	case "number":
		return cty.Number, true
	case "bool":
		return cty.Bool, true
	case "any":
		return cty.DynamicPseudoType, true
	}
	return cty.NilType, false
}
