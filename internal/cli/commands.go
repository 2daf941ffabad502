package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vk/workgraph/internal/ctxlog"
	"github.com/vk/workgraph/internal/definition"
	"github.com/vk/workgraph/internal/store"
	"github.com/vk/workgraph/internal/workflow"
)

func (c *command) catalogCommand() *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the component catalog",
	}
	catalogCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load and validate every component manifest",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			components := c.app.Registry().Components()
			w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tINPUTS\tOUTPUTS\tPARAMETERS")
			for _, comp := range components {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", comp.ID, comp.Type, len(comp.Sources), len(comp.Targets), len(comp.Parameters))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%d components OK\n", len(components))
			return nil
		},
	})
	return catalogCmd
}

func (c *command) importCommand() *cobra.Command {
	var validate bool
	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create a workflow from a YAML definition",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, err := definition.LoadFile(args[0])
			if err != nil {
				return err
			}
			id, err := definition.Apply(ctx, c.app.Graph(), doc)
			if err != nil {
				if id != "" {
					ctxlog.FromContext(ctx).Error("Workflow left partially imported.", "workflow_id", id)
				}
				return err
			}
			fmt.Fprintln(c.out, id)
			if validate {
				return c.reportValidation(cmd, id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&validate, "validate", false, "validate the workflow after importing it")
	return cmd
}

func (c *command) listCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored workflows",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := c.app.Graph().ListWorkflows(cmd.Context(), all)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tACTIVE")
			for _, wf := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", wf.ID, wf.Name, wf.Status, wf.Active)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include deleted workflows")
	return cmd
}

func (c *command) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow-id>",
		Short: "Check every node of a workflow",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.reportValidation(cmd, args[0])
		},
	}
}

// reportValidation prints each problem on its own line and fails with exit
// code 1 when there are any.
func (c *command) reportValidation(cmd *cobra.Command, id string) error {
	err := c.app.Graph().ValidateWorkflow(cmd.Context(), id)
	var verr *workflow.ValidationError
	if errors.As(err, &verr) {
		for _, p := range verr.Problems {
			fmt.Fprintln(c.out, p)
		}
		return &ExitError{Code: 1, Message: fmt.Sprintf("workflow %s has %d problem(s)", id, len(verr.Problems))}
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "workflow %s is valid\n", id)
	return nil
}

func (c *command) orderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "order <workflow-id>",
		Short: "Print the execution order of a workflow's tasks",
		Long: `Print the nodes of a workflow in link order. Group members follow
their group node, in member order.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := c.app.Graph().ExecutionOrder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			for i, n := range tasks {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, n.Name, n.ID, n.Component.ID)
			}
			return w.Flush()
		},
	}
}

func (c *command) paramsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "params <workflow-id>",
		Short: "Print the effective parameters of every node as YAML",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := c.app.Graph().WorkflowParameters(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(c.out)
			enc.SetIndent(2)
			if err := enc.Encode(params); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func (c *command) queryCommand() *cobra.Command {
	var q store.Query
	cmd := &cobra.Command{
		Use:   "query <datasource-node-id>",
		Short: "Store the filter query of a datasource node",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q.NodeID = args[0]
			if err := c.app.Graph().SetQuery(cmd.Context(), &q); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "query saved for node %s\n", q.NodeID)
			return nil
		},
	}
	cmd.Flags().StringToStringVarP(&q.Filters, "filter", "f", nil, "filter as key=value, repeatable")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "rows to skip")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum rows, 0 for no limit")
	return cmd
}

func (c *command) cloneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clone <workflow-id>",
		Short: "Copy a workflow and print the id of the copy",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := c.app.Graph().Clone(ctx, args[0])
			if err != nil {
				if id != "" {
					ctxlog.FromContext(ctx).Error("Workflow left partially cloned.", "workflow_id", id)
				}
				return err
			}
			fmt.Fprintln(c.out, id)
			return nil
		},
	}
}

func (c *command) exportCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <workflow-id>",
		Short: "Write a workflow as a YAML definition",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := definition.Export(cmd.Context(), c.app.Graph(), args[0])
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				return definition.Encode(c.out, doc)
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := definition.Encode(f, doc); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write instead of stdout")
	return cmd
}

func (c *command) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <workflow-id>",
		Short: "Soft-delete a workflow",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Graph().DeleteWorkflow(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "workflow %s deleted\n", args[0])
			return nil
		},
	}
}
