// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the HCL manifest format for components and the logic for
// parsing it into descriptors.
//
// A manifest holds one or more `component` blocks:
//
//	component "normalize" {
//	  type        = "processing"
//	  description = "Rescales every numeric column."
//
//	  source "in" {
//	    format      = "csv"
//	    data_type   = "table"
//	    cardinality = "one"
//	  }
//	  target "out" {
//	    format    = "csv"
//	    data_type = "table"
//	  }
//
//	  parameter "threshold" {
//	    type    = number
//	    default = 0.5
//	  }
//	}
//
// Connection point ids are derived as "<component>.<name>", which keeps them
// unique across the catalog and readable in links. Parameter types are bare
// keywords, not strings, so that a default can be checked against them at
// parse time instead of when a user first sets a custom value.
package catalog

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/workgraph/internal/convert"
	"github.com/vk/workgraph/internal/ctxlog"
	"github.com/vk/workgraph/internal/descriptor"
)

// manifestRoot defines the top-level structure of a file, expecting one or more 'component' blocks.
type manifestRoot struct {
	Components []*hclComponent `hcl:"component,block"`
}

// hclComponent represents a single 'component' block for decoding purposes.
type hclComponent struct {
	ID   string   `hcl:"id,label"`
	Body hcl.Body `hcl:",remain"`
}

// hclConnectionPoint is the body of a 'source' or 'target' block.
type hclConnectionPoint struct {
	Format      string `hcl:"format,optional"`
	DataType    string `hcl:"data_type,optional"`
	Cardinality string `hcl:"cardinality,optional"`
}

var componentBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		// `type` is required, but we check for its existence manually
		// to provide a better error message.
		{Name: "type"},
		{Name: "name"},
		{Name: "description"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "source", LabelNames: []string{"name"}},
		{Type: "target", LabelNames: []string{"name"}},
		{Type: "parameter", LabelNames: []string{"name"}},
	},
}

var parameterBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "type"},
		{Name: "description"},
		{Name: "default"},
		{Name: "required"},
	},
}

// ParseManifest decodes an HCL file that contains one or more 'component' blocks.
func ParseManifest(ctx context.Context, file *hcl.File, filePath string) ([]*descriptor.Component, hcl.Diagnostics) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Parsing component manifest", "file_path", filePath)

	var allDiags hcl.Diagnostics
	if file == nil {
		allDiags = append(allDiags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "HCL file is nil",
		})
		return nil, allDiags
	}

	root := &manifestRoot{}
	diags := gohcl.DecodeBody(file.Body, nil, root)
	allDiags = append(allDiags, diags...)
	if diags.HasErrors() {
		return nil, allDiags
	}

	components := make([]*descriptor.Component, 0, len(root.Components))
	seen := make(map[string]struct{})
	for _, parsed := range root.Components {
		if _, dup := seen[parsed.ID]; dup {
			rng := parsed.Body.MissingItemRange()
			allDiags = append(allDiags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate component definition",
				Detail:   fmt.Sprintf("A component named '%s' has already been defined in this file.", parsed.ID),
				Subject:  &rng,
			})
			continue
		}
		seen[parsed.ID] = struct{}{}

		c, compDiags := parseComponent(parsed)
		allDiags = append(allDiags, compDiags...)
		if c != nil {
			components = append(components, c)
		}
	}

	if allDiags.HasErrors() {
		return nil, allDiags
	}

	logger.Debug("Parsed component manifest", "file_path", filePath, "count", len(components))
	return components, allDiags
}

func parseComponent(parsed *hclComponent) (*descriptor.Component, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	content, contentDiags := parsed.Body.Content(componentBodySchema)
	diags = append(diags, contentDiags...)
	if contentDiags.HasErrors() {
		return nil, diags
	}

	c := &descriptor.Component{ID: parsed.ID, Name: parsed.ID}

	typeAttr, exists := content.Attributes["type"]
	if !exists {
		rng := parsed.Body.MissingItemRange()
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Missing 'type' attribute",
			Detail:   fmt.Sprintf("Component '%s' must declare its type: processing or datasource.", parsed.ID),
			Subject:  &rng,
		})
		return nil, diags
	}
	var rawType string
	if d := gohcl.DecodeExpression(typeAttr.Expr, nil, &rawType); d.HasErrors() {
		return nil, append(diags, d...)
	}
	typ, err := descriptor.ParseComponentType(rawType)
	if err == nil && typ == descriptor.Group {
		err = fmt.Errorf("group components are synthesized and cannot be declared in a manifest")
	}
	if err != nil {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid component type",
			Detail:   err.Error(),
			Subject:  typeAttr.Expr.Range().Ptr(),
		})
		return nil, diags
	}
	c.Type = typ

	if attr, ok := content.Attributes["name"]; ok {
		diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, &c.Name)...)
	}
	if attr, ok := content.Attributes["description"]; ok {
		diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, &c.Description)...)
	}

	pointNames := make(map[string]struct{})
	for _, block := range content.Blocks {
		switch block.Type {
		case "source", "target":
			name := block.Labels[0]
			if _, dup := pointNames[name]; dup {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Duplicate connection point",
					Detail:   fmt.Sprintf("Component '%s' already declares a source or target named '%s'.", c.ID, name),
					Subject:  &block.DefRange,
				})
				continue
			}
			pointNames[name] = struct{}{}

			var point hclConnectionPoint
			pointDiags := gohcl.DecodeBody(block.Body, nil, &point)
			diags = append(diags, pointDiags...)
			if pointDiags.HasErrors() {
				continue
			}
			card, err := descriptor.ParseCardinality(point.Cardinality)
			if err != nil {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Invalid cardinality",
					Detail:   err.Error(),
					Subject:  &block.DefRange,
				})
				continue
			}
			id := c.ID + "." + name
			if block.Type == "source" {
				c.Sources = append(c.Sources, descriptor.Source{
					ID: id, ComponentID: c.ID, Name: name,
					Format: point.Format, DataType: point.DataType, Cardinality: card,
				})
			} else {
				c.Targets = append(c.Targets, descriptor.Target{
					ID: id, ComponentID: c.ID, Name: name,
					Format: point.Format, DataType: point.DataType, Cardinality: card,
				})
			}
		}
	}

	params, paramDiags := parseParameters(content.Blocks.OfType("parameter"))
	diags = append(diags, paramDiags...)
	c.Parameters = params

	if diags.HasErrors() {
		return nil, diags
	}
	return c, diags
}

// parseParameters decodes the 'parameter' blocks of a component in
// declaration order.
func parseParameters(blocks hcl.Blocks) ([]descriptor.ParameterDescriptor, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	var params []descriptor.ParameterDescriptor
	seen := make(map[string]struct{})

	for _, block := range blocks {
		// The schema guarantees us one label.
		name := block.Labels[0]

		if _, exists := seen[name]; exists {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate parameter definition",
				Detail:   fmt.Sprintf("A parameter named '%s' has already been defined.", name),
				Subject:  &block.DefRange,
			})
			continue
		}
		seen[name] = struct{}{}

		content, contentDiags := block.Body.Content(parameterBodySchema)
		diags = append(diags, contentDiags...)
		if contentDiags.HasErrors() {
			continue
		}

		typeAttr, exists := content.Attributes["type"]
		if !exists {
			missingItemRange := block.Body.MissingItemRange()
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Missing 'type' attribute",
				Detail:   "The 'type' attribute is required for all parameter blocks.",
				Subject:  &missingItemRange,
			})
			continue
		}

		ctyType, typeDiags := typeFromExpr(typeAttr.Expr)
		diags = append(diags, typeDiags...)
		if typeDiags.HasErrors() {
			continue
		}

		p := descriptor.ParameterDescriptor{Name: name, Type: ctyType}
		if attr, ok := content.Attributes["description"]; ok {
			diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, &p.Description)...)
		}
		if attr, ok := content.Attributes["required"]; ok {
			diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, &p.Required)...)
		}

		if defaultAttr, ok := content.Attributes["default"]; ok {
			// A nil eval context is used because defaults must be literal values.
			val, valDiags := defaultAttr.Expr.Value(nil)
			diags = append(diags, valDiags...)
			if valDiags.HasErrors() {
				continue
			}
			if !ctyType.Equals(cty.DynamicPseudoType) && !val.Type().Equals(ctyType) {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Invalid default value type",
					Detail:   fmt.Sprintf("The default value for '%s' is not compatible with its type, '%s'.", name, ctyType.FriendlyName()),
					Subject:  defaultAttr.Expr.Range().Ptr(),
				})
				continue
			}
			p.Default = &val
		}

		params = append(params, p)
	}

	return params, diags
}

// typeFromExpr converts an HCL expression that represents a type (e.g. the
// `string` keyword) into its cty.Type. Only primitive keywords and `any` are
// accepted.
func typeFromExpr(expr hcl.Expression) (cty.Type, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	// We expect a simple identifier like `string`, not a complex expression.
	traversal, travDiags := hcl.AbsTraversalForExpr(expr)
	if travDiags.HasErrors() || len(traversal) != 1 {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid type specification",
			Detail:   "The 'type' attribute must be a simple type keyword like 'string', 'number', or 'bool', not a complex expression.",
			Subject:  expr.Range().Ptr(),
		})
		return cty.NilType, diags
	}

	typeName := traversal.RootName()
	if ty, ok := convert.TypeByName(typeName); ok {
		return ty, diags
	}

	detail := fmt.Sprintf("The keyword '%s' is not a valid type. Supported types are: string, number, bool, any.", typeName)
	switch typeName {
	case "list", "map", "set", "object", "tuple":
		detail = fmt.Sprintf("The complex type '%s' is not supported for parameters; custom values are single strings.", typeName)
	}
	diags = append(diags, &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  "Unsupported type",
		Detail:   detail,
		Subject:  expr.Range().Ptr(),
	})
	return cty.NilType, diags
}
