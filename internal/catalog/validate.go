package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/workgraph/internal/convert"
	"github.com/vk/workgraph/internal/ctxlog"
)

// Validate performs a consistency check over every registered component. It
// checks that connection points point back at their component, that their
// ids are unique, and that declared parameter defaults survive a round trip
// through the converter the graph engine will use for custom values.
func (r *Registry) Validate(ctx context.Context, conv convert.Converter) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	components := r.Components()
	for _, c := range components {
		if c.Type == "" {
			errs = append(errs, fmt.Sprintf("component '%s': type is not set", c.ID))
		}

		seen := make(map[string]struct{})
		for _, s := range c.Sources {
			if s.ComponentID != c.ID {
				errs = append(errs, fmt.Sprintf("component '%s': source '%s' belongs to component '%s'", c.ID, s.ID, s.ComponentID))
			}
			if _, dup := seen[s.ID]; dup {
				errs = append(errs, fmt.Sprintf("component '%s': connection point id '%s' is declared twice", c.ID, s.ID))
			}
			seen[s.ID] = struct{}{}
		}
		for _, t := range c.Targets {
			if t.ComponentID != c.ID {
				errs = append(errs, fmt.Sprintf("component '%s': target '%s' belongs to component '%s'", c.ID, t.ID, t.ComponentID))
			}
			if _, dup := seen[t.ID]; dup {
				errs = append(errs, fmt.Sprintf("component '%s': connection point id '%s' is declared twice", c.ID, t.ID))
			}
			seen[t.ID] = struct{}{}
		}

		for _, p := range c.Parameters {
			if p.Type.Equals(cty.DynamicPseudoType) {
				logger.Warn("Component declares a parameter with 'type = any', which disables conversion checks. Consider using a specific type like 'string', 'number', or 'bool'.", "component", c.ID, "parameter", p.Name)
			}
			if p.Default == nil {
				continue
			}
			if _, err := conv.Convert(p, convert.Format(*p.Default)); err != nil {
				errs = append(errs, fmt.Sprintf("component '%s', parameter '%s': default does not convert: %v", c.ID, p.Name, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("catalog validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	logger.Debug("Catalog validated", "components", len(components))
	return nil
}
