package main

import (
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"crudschema/internal/schema"
)

func newShowCmd(root *rootOptions) *cobra.Command {
	var model, context string
	var wrap bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a flattened schema as YAML",
		Example: `  schemactl show --model users --context list,form`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := loadStore(cmd.Context(), root.dir)
			if err != nil {
				return err
			}
			doc, err := store.Get(model)
			if err != nil {
				return err
			}

			fs := schema.Flatten(doc, context)
			var out any = fs
			if wrap {
				out = fs.Wrap()
			}
			raw, err := yaml.Marshal(out)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "model to show (required)")
	cmd.Flags().StringVar(&context, "context", "list", "context selector")
	cmd.Flags().BoolVar(&wrap, "wrap", false, "print the wrapped layout")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}
