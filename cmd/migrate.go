package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pin and dead-letter schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		applied, err := st.Migrate(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("migrations complete", zap.Int("applied", len(applied)))
		if len(applied) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date") //nolint:errcheck
		}
		for _, name := range applied {
			fmt.Fprintln(cmd.OutOrStdout(), "applied", name) //nolint:errcheck
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
