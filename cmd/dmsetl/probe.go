package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"dmsetl/internal/probe"
	"dmsetl/internal/registry"
)

func newProbeCmd() *cobra.Command {
	var (
		file, report, delim string
		sample              int
		stats               bool
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Draft a DMS schema entry from a raw report file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(file) == "" {
				return usageErr("--file is required")
			}
			if report == "" {
				base := filepath.Base(file)
				report = strings.TrimSuffix(base, filepath.Ext(base))
			}
			res, err := probe.File(file, probe.Options{Delimiter: delim, SampleRows: sample})
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}

			doc := registry.DmsSchema{Reports: map[string]registry.ReportSpec{report: res.Spec}}
			b, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))

			if stats {
				w := cmd.ErrOrStderr()
				fmt.Fprintf(w, "%s: %d rows sampled, encoding %s\n", file, res.Sampled, res.Encoding)
				for _, c := range res.Columns {
					fmt.Fprintf(w, "  %-24s %-10s empty=%d distinct=%d max_len=%d\n", c.Name, c.Type.Type, c.Empty, c.Distinct, c.MaxLen)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "raw report file")
	cmd.Flags().StringVar(&report, "report", "", "report name (default: file name without extension)")
	cmd.Flags().StringVar(&delim, "delimiter", "|", "field delimiter")
	cmd.Flags().IntVar(&sample, "sample", probe.DefaultSampleRows, "data rows to inspect")
	cmd.Flags().BoolVar(&stats, "stats", false, "print per-column statistics to stderr")
	return cmd
}
