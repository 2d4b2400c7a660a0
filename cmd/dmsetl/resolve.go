package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dmsetl/internal/archive"
	"dmsetl/internal/pipeline"
	"dmsetl/internal/registry"
)

var errNoArchive = errors.New("no archive name given and none found in working_dir")

func newResolveCmd() *cobra.Command {
	var cfgPath, archiveName string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show the client, branch and reports an archive resolves to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			name := archiveName
			if name == "" {
				found, err := archive.Find(cfg.WorkingDir)
				if err != nil {
					return &exitError{code: exitFatal, err: fmt.Errorf("%w: %v", errNoArchive, err)}
				}
				name = found
			}
			info, err := registry.ParseArchiveName(name)
			if err != nil {
				return usageErr("%v", err)
			}

			res, err := (&registry.Resolver{Root: cfg.ClientsDir}).Resolve(cmd.Context(), info.Client, info.Branch)
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "archive %s: client %s branch %s stamp %s\n", info.Name, info.Client, info.Branch, info.Stamp)
			for _, ref := range res.Reports {
				if ref.Spec.Empty() {
					fmt.Fprintf(out, "  %-10s %-10s -> %-12s (no schema; skipped)\n", ref.DMS, ref.Name, pipeline.TableName(ref.Name, info.Branch))
					continue
				}
				fmt.Fprintf(out, "  %-10s %-10s -> %-12s %s\n", ref.DMS, ref.Name, pipeline.TableName(ref.Name, info.Branch), strings.Join(ref.Spec.Columns, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "run config YAML path")
	cmd.Flags().StringVar(&archiveName, "archive", "", "archive file name (default: the archive in working_dir)")
	return cmd
}
