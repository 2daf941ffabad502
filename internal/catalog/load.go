package catalog

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/workgraph/internal/ctxlog"
	"github.com/vk/workgraph/internal/descriptor"
	"github.com/vk/workgraph/internal/fsutil"
)

// Loader reads component manifests from disk.
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader creates a Loader with a fresh HCL parser.
func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

// ParseSource parses manifest source held in memory. filename is used in
// diagnostics only.
func (l *Loader) ParseSource(ctx context.Context, src []byte, filename string) ([]*descriptor.Component, error) {
	file, diags := l.parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	components, diags := ParseManifest(ctx, file, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to process component definitions in %s: %w", filename, diags)
	}
	return components, nil
}

// LoadRecursively parses every .hcl file under root.
func (l *Loader) LoadRecursively(ctx context.Context, root string) ([]*descriptor.Component, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading component manifests...", "path", root)

	filePaths, err := fsutil.FindFilesByExtension(root, ".hcl")
	if err != nil {
		logger.Error("Failed to walk catalog directory", "path", root, "error", err)
		return nil, err
	}

	if len(filePaths) == 0 {
		logger.Warn("No .hcl manifest files found in path", "path", root)
		return nil, nil
	}

	var all []*descriptor.Component
	for _, filePath := range filePaths {
		file, diags := l.parser.ParseHCLFile(filePath)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", filePath, diags)
		}

		components, diags := ParseManifest(ctx, file, filePath)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to process component definitions in %s: %w", filePath, diags)
		}
		all = append(all, components...)
		logger.Debug("Loaded component manifest", "file", filePath, "components", len(components))
	}
	return all, nil
}

// LoadRecursively loads every manifest under root into the registry.
func (r *Registry) LoadRecursively(ctx context.Context, root string) error {
	components, err := NewLoader().LoadRecursively(ctx, root)
	if err != nil {
		return err
	}
	if err := r.Register(components...); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Catalog loaded successfully.", "components_loaded", len(components))
	return nil
}
