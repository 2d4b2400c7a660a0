package main

import (
	"fmt"
	"io"
	"strings"

	"dmsetl/internal/config"
)

// loadConfig loads and validates the run config, printing every issue to w.
// Any error-severity issue fails with exit code 1.
func loadConfig(path string, w io.Writer) (config.Run, error) {
	if strings.TrimSpace(path) == "" {
		return config.Run{}, usageErr("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, &exitError{code: exitFatal, err: err}
	}
	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintln(w, iss.String())
	}
	if config.HasErrors(issues) {
		return cfg, &exitError{code: exitFatal, err: fmt.Errorf("configuration is invalid: %s", path)}
	}
	return cfg, nil
}
