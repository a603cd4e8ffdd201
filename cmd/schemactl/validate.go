package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate [dir]",
		Short: "Decode and lint every schema file",
		Example: `  # Lint the default directory
  schemactl validate

  # Fail on lint issues too
  schemactl validate ./schemas --strict`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := root.dir
			if len(args) == 1 {
				dir = args[0]
			}

			store, issues, err := loadStore(cmd.Context(), dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, issue := range issues {
				fmt.Fprintln(out, issue.String())
			}
			fmt.Fprintf(out, "%d models, %d issues\n", len(store.Models()), len(issues))

			if strict && len(issues) > 0 {
				return fmt.Errorf("%d lint issues", len(issues))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "treat lint issues as errors")
	return cmd
}
