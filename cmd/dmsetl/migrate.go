package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dmsetl/internal/registry"
)

func newMigrateCmd() *cobra.Command {
	var in, out string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite a legacy DMS schema document in the canonical shape",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in == "" {
				return usageErr("--in is required")
			}
			raw, err := os.ReadFile(in)
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			s, err := registry.MigrateLegacy(raw)
			if err != nil {
				return &exitError{code: exitFatal, err: fmt.Errorf("%s: %w", in, err)}
			}
			b, err := json.MarshalIndent(s, "", "  ")
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			b = append(b, '\n')
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "migrated %d report(s) to %s\n", len(s.Reports), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "legacy schema document")
	cmd.Flags().StringVar(&out, "out", "", "output path (default stdout)")
	return cmd
}
