// Command dmsetl ingests dealership management system exports into a
// relational store.
//
//	dmsetl run      --config run.yaml   ingest the archive in the working directory
//	dmsetl validate --config run.yaml   check the run config and every DMS schema
//	dmsetl resolve  --config run.yaml   show the reports an archive would load
//	dmsetl migrate  --in old.json       rewrite a legacy DMS schema document
//	dmsetl probe    --file MACC.txt     draft a schema entry from a raw report
//
// Exit codes: 0 success, 1 configuration or fatal run error, 2 usage error,
// 3 run finished with failed reports.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	// register all backends with the storage factory; the run config picks one.
	_ "dmsetl/internal/storage/all"
)

const (
	exitOK      = 0
	exitFatal   = 1
	exitUsage   = 2
	exitPartial = 3
)

// exitError carries a process exit code through cobra's error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageErr(format string, a ...any) error {
	return &exitError{code: exitUsage, err: fmt.Errorf(format, a...)}
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "dmsetl: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "dmsetl: %v\n", err)
	return exitFatal
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dmsetl",
		Short:         "Load dealership management system exports into a relational store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &exitError{code: exitUsage, err: err}
	})
	root.AddCommand(newRunCmd(), newValidateCmd(), newResolveCmd(), newMigrateCmd(), newProbeCmd())
	return root
}
