package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/workgraph/internal/catalog"
)

// CatalogHCL is the manifest behind NewCatalog. It describes a small data
// pipeline:
//
//	fetch (datasource) -> normalize -> score -> render
//
// plus merge, which joins two tables. score's output is not compatible with
// render's input, which tests use to provoke link problems.
const CatalogHCL = `
component "fetch" {
  type        = "datasource"
  description = "Reads rows from a table."

  target "rows" {
    format      = "csv"
    data_type   = "table"
    cardinality = "many"
  }

  parameter "table" {
    type     = string
    required = true
  }
  parameter "region" {
    type    = string
    default = "eu"
  }
}

component "normalize" {
  type = "processing"
  name = "Normalize"

  source "in" {
    format      = "csv"
    data_type   = "table"
    cardinality = "one"
  }
  target "out" {
    format      = "csv"
    data_type   = "table"
    cardinality = "many"
  }

  parameter "threshold" {
    type    = number
    default = 0.5
  }
  parameter "strict" {
    type    = bool
    default = false
  }
}

component "score" {
  type = "processing"

  source "in" {
    format      = "csv"
    data_type   = "*"
    cardinality = "many"
  }
  target "scores" {
    format    = "json"
    data_type = "table"
  }

  parameter "model" {
    type    = string
    default = "linear"
  }
}

component "render" {
  type = "processing"

  source "in" {
    format      = "json"
    data_type   = "report"
    cardinality = "one"
  }
  target "pdf" {
    format    = "pdf"
    data_type = "document"
  }

  parameter "title" {
    type    = string
    default = "Report"
  }
}

component "merge" {
  type = "processing"

  source "left" {
    format      = "csv"
    data_type   = "table"
    cardinality = "one"
  }
  source "right" {
    format      = "csv"
    data_type   = "table"
    cardinality = "one"
  }
  target "out" {
    format    = "csv"
    data_type = "table"
  }
}
`

// NewCatalog returns a registry loaded from CatalogHCL.
func NewCatalog(t *testing.T) *catalog.Registry {
	t.Helper()

	components, err := catalog.NewLoader().ParseSource(context.Background(), []byte(CatalogHCL), "testutil/catalog.hcl")
	require.NoError(t, err)

	reg := catalog.NewRegistry()
	require.NoError(t, reg.Register(components...))
	return reg
}
