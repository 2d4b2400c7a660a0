package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"dmsetl/internal/registry"
)

func newValidateCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the run config and every DMS schema document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			bad, err := validateSchemas(filepath.Join(cfg.ClientsDir, "dms"), cmd.OutOrStdout())
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			if bad > 0 {
				return &exitError{code: exitFatal, err: fmt.Errorf("%d schema document(s) invalid", bad)}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %s\n", cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "run config YAML path")
	return cmd
}

// validateSchemas checks every <dir>/*.json and prints one line per
// problem. It returns the number of invalid documents.
func validateSchemas(dir string, w io.Writer) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, err
	}
	bad := 0
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return bad, err
		}
		s, err := registry.DecodeDmsSchema(raw)
		if err != nil {
			fmt.Fprintf(w, "error: %s: %v\n", filepath.Base(p), err)
			bad++
			continue
		}
		names := make([]string, 0, len(s.Reports))
		for n := range s.Reports {
			names = append(names, n)
		}
		sort.Strings(names)

		var problems []string
		for _, n := range names {
			if err := s.Reports[n].Validate(n); err != nil {
				problems = append(problems, strings.Split(err.Error(), "\n")...)
			}
			for _, key := range s.Reports[n].UnusedFormulas() {
				fmt.Fprintf(w, "warning: %s: report %s: formula for unknown column %q is ignored\n", filepath.Base(p), n, key)
			}
		}
		if len(problems) > 0 {
			bad++
			for _, pr := range problems {
				fmt.Fprintf(w, "error: %s: %s\n", filepath.Base(p), pr)
			}
		}
	}
	return bad, nil
}
