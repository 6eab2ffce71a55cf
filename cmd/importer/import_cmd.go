package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/boddenberg/central-sheets-import/internal/domain"

	"github.com/spf13/cobra"
)

type importOptions struct {
	RequestFile string
	Timeout     time.Duration
}

func newImportCmd(root *rootOptions) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import --request <file.json>",
		Short: "Run one import from a request file and print the report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(opts.RequestFile) == "" {
				return errors.New("--request is required")
			}
			req, err := readImportRequest(opts.RequestFile)
			if err != nil {
				return err
			}

			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.close()

			if a.importSvc == nil {
				return a.cfg.Validate()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			report, runErr := a.importSvc.RunImport(ctx, req)
			if report != nil {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			}
			if runErr != nil {
				return runErr
			}
			if !report.Success {
				return fmt.Errorf("import %s finished as %s", report.ImportID, report.State)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.RequestFile, "request", "", "JSON import request (selectedRows, columnMapping)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Minute, "overall import deadline")

	return cmd
}

func readImportRequest(path string) (*domain.ImportRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var req domain.ImportRequest
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &req, nil
}
