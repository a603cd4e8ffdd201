package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"crudschema/internal/access"
	"crudschema/internal/engine"
	"crudschema/internal/query"
)

type planOptions struct {
	model    string
	context  string
	relation string
	id       string
	search   string
	sort     string
	page     int
	size     int
	maxSize  int
	perms    []string
}

func newPlanCmd(root *rootOptions) *cobra.Command {
	opts := &planOptions{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the listing SQL for a model or relation",
		Example: `  schemactl plan --model users --search ann --sort name
  schemactl plan --model users --relation roles --id 7
  schemactl plan --model staff --permission view_salary`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := loadStore(cmd.Context(), root.dir)
			if err != nil {
				return err
			}
			eng, err := offlineEngine(store, opts.maxSize)
			if err != nil {
				return err
			}

			req := engine.Request{
				Model:       opts.model,
				Context:     opts.context,
				Relation:    opts.relation,
				Permissions: access.NewPermissionSet(opts.perms...),
				Query: query.Params{
					Page:   opts.page,
					Size:   opts.size,
					Sort:   opts.sort,
					Search: opts.search,
				},
			}
			if opts.id != "" {
				req.ID = parseID(opts.id)
			}

			plan, err := eng.Plan(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printPlan(cmd.OutOrStdout(), plan)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.model, "model", "", "model to list (required)")
	f.StringVar(&opts.context, "context", "", "context selector (default list)")
	f.StringVar(&opts.relation, "relation", "", "relation to traverse from --id")
	f.StringVar(&opts.id, "id", "", "source record id for --relation")
	f.StringVar(&opts.search, "search", "", "search term")
	f.StringVar(&opts.sort, "sort", "", "sort field, prefix with - for descending")
	f.IntVar(&opts.page, "page", 0, "zero based page")
	f.IntVar(&opts.size, "size", 20, "page size")
	f.IntVar(&opts.maxSize, "max-size", 100, "page size clamp")
	f.StringSliceVar(&opts.perms, "permission", nil, "caller permission, repeatable; guarded fields are hidden without it")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func printPlan(w io.Writer, plan *query.Plan) error {
	sections := []struct {
		name   string
		render func() (string, []any, error)
	}{
		{"select", plan.SelectSQL},
		{"count", plan.CountSQL},
		{"total", plan.TotalSQL},
	}
	for _, s := range sections {
		sql, args, err := s.render()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "-- %s\n%s\n", s.name, sql)
		if len(args) > 0 {
			fmt.Fprintf(w, "-- args: %v\n", args)
		}
	}
	return nil
}
