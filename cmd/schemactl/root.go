package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"crudschema/internal/engine"
	"crudschema/internal/mutation"
	"crudschema/internal/schema"
)

// options shared by every command.
type rootOptions struct {
	dir string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "schemactl",
		Short: "Offline tooling for crudschema models",
		Long: `schemactl - offline tooling for crudschema models

Reads the schema directory the server loads, reports lint issues, prints
flattened schemas and renders listing queries.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.dir, "dir", "schemas", "schema directory")

	cmd.AddCommand(newValidateCmd(opts))
	cmd.AddCommand(newPlanCmd(opts))
	cmd.AddCommand(newShowCmd(opts))
	return cmd
}

// loadStore reads dir into a fresh store.
func loadStore(ctx context.Context, dir string) (*schema.Store, []schema.Issue, error) {
	store := schema.NewStore(schema.DirLoader{Dir: dir})
	issues, err := store.Reload(ctx)
	if err != nil {
		return nil, nil, err
	}
	return store, issues, nil
}

// offlineEngine can plan queries and flatten schemas but not execute them.
func offlineEngine(store *schema.Store, maxPageSize int) (*engine.Engine, error) {
	v, err := mutation.NewValidator()
	if err != nil {
		return nil, err
	}
	return engine.New(store, nil, v, engine.Options{MaxPageSize: maxPageSize}), nil
}

func parseID(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}
