package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/workgraph/internal/catalog"
	"github.com/vk/workgraph/internal/descriptor"
	"github.com/vk/workgraph/internal/workflow"
)

// Node builds an unsaved simple node referencing a component of CatalogHCL.
// fetch is a datasource, everything else is processing.
func Node(name, componentID string, custom ...workflow.ParameterOverride) *workflow.Node {
	typ := descriptor.Processing
	if componentID == "fetch" {
		typ = descriptor.DataSource
	}
	return &workflow.Node{
		Kind:         workflow.KindSimple,
		Name:         name,
		Component:    workflow.ComponentRef{ID: componentID, Type: typ},
		CustomValues: custom,
	}
}

// Set builds a parameter override.
func Set(name, value string) workflow.ParameterOverride {
	return workflow.ParameterOverride{Name: name, Value: value}
}

// Link builds the link from output outputID of from to input inputID of to,
// copying the descriptors from the components attached to both nodes.
func Link(t *testing.T, cat catalog.Catalog, from *workflow.Node, outputID string, to *workflow.Node, inputID string) workflow.Link {
	t.Helper()

	ctx := context.Background()
	fromComp, err := catalog.ComponentOf(ctx, cat, from)
	require.NoError(t, err)
	toComp, err := catalog.ComponentOf(ctx, cat, to)
	require.NoError(t, err)

	output, ok := fromComp.Target(outputID)
	require.True(t, ok, "output %s not found on %s", outputID, fromComp.ID)
	input, ok := toComp.Source(inputID)
	require.True(t, ok, "input %s not found on %s", inputID, toComp.ID)

	return workflow.Link{SourceNodeID: from.ID, Output: output, Input: input}
}
