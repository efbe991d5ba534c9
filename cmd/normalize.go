package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pin-ingest/internal/model"
)

var normalizeFormat string

// normalizedRow is one line of `normalize` output.
type normalizedRow struct {
	Row        int                     `json:"row"`
	Address    model.NormalizedAddress `json:"address"`
	Contact    model.Contact           `json:"contact"`
	Coordinate *model.Coordinate       `json:"coordinate,omitempty"`
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize <path-or-url>",
	Short: "Print each row's normalized address as JSON lines",
	Long:  "Parses and normalizes an upload without geocoding or submitting anything. Rejected rows are reported on stderr.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		up, err := loadUpload(ctx, args[0], normalizeFormat, "")
		if err != nil {
			return err
		}
		orch, err := newOrchestrator(cfg, nil)
		if err != nil {
			return err
		}
		p, err := orch.Prepare(ctx, up)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, d := range p.Drafts {
			row := normalizedRow{Row: d.Row, Address: d.Address, Contact: d.Contact}
			if !d.Coordinate.IsZero() {
				c := d.Coordinate
				row.Coordinate = &c
			}
			if err := enc.Encode(row); err != nil {
				return eris.Wrap(err, "encode row")
			}
		}
		for _, re := range p.RowErrors {
			cmd.PrintErrln(re.Error())
		}
		return nil
	},
}

func init() {
	normalizeCmd.Flags().StringVar(&normalizeFormat, "format", "", "upload format: csv, json or xlsx (default from file name)")
	rootCmd.AddCommand(normalizeCmd)
}
