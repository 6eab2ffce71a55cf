package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"
)

func newPingDBCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping-db",
		Short: "Check the central database connection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.close()

			status, err := a.conn.TestConnection(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(status); err != nil {
				return err
			}
			if !status.Success {
				return errors.New(status.Message)
			}
			return nil
		},
	}
}
