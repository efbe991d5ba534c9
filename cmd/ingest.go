package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pin-ingest/internal/ingest"
	"github.com/sells-group/pin-ingest/internal/model"
	"github.com/sells-group/pin-ingest/internal/parser"
	"github.com/sells-group/pin-ingest/internal/pins"
)

var (
	ingestFormat     string
	ingestCaller     string
	ingestDryRun     bool
	ingestNoProgress bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path-or-url>",
	Short: "Ingest an address upload and print the submission report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		up, err := loadUpload(ctx, args[0], ingestFormat, ingestCaller)
		if err != nil {
			return err
		}

		if ingestDryRun {
			orch, err := newOrchestrator(cfg, nil)
			if err != nil {
				return err
			}
			p, err := orch.Prepare(ctx, up)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), dryRunSummary(p))
		}

		env, err := openSink(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		orch, err := newOrchestrator(cfg, env)
		if err != nil {
			return err
		}

		var onProgress func(int)
		if !ingestNoProgress {
			onProgress = progressPrinter(cmd.ErrOrStderr())
		}

		report, err := orch.Run(ctx, up, onProgress)
		if err != nil {
			return err
		}
		if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
		if report.Failed > 0 {
			zap.L().Warn("ingest: some pins were not created",
				zap.Int("failed", report.Failed),
				zap.Int("attempted", report.TotalAttempted),
			)
		}
		return nil
	},
}

// loadUpload fetches ref and settles its format: the flag wins, then the
// detected format.
func loadUpload(ctx context.Context, ref, format, caller string) (ingest.Upload, error) {
	f, err := newLoader(cfg.Source).Load(ctx, ref)
	if err != nil {
		return ingest.Upload{}, err
	}

	pf := f.Format
	if format != "" {
		if pf, err = parser.ParseFormat(format); err != nil {
			return ingest.Upload{}, err
		}
	}
	if pf == "" {
		return ingest.Upload{}, eris.Errorf("cannot tell the format of %q, pass --format", f.Name)
	}

	if caller == "" {
		caller = os.Getenv("USER")
	}
	return ingest.Upload{Data: f.Data, Format: pf, Caller: caller, FileName: f.Name}, nil
}

// progressPrinter writes "progress: N%" lines.
func progressPrinter(w io.Writer) func(int) {
	return func(percent int) {
		fmt.Fprintf(w, "progress: %d%%\n", percent) //nolint:errcheck
	}
}

type dryRun struct {
	Drafts      []model.PinDraft `json:"drafts"`
	NeedGeocode int              `json:"need_geocode"`
	RowsSkipped int              `json:"rows_skipped"`
	RowErrors   []string         `json:"row_errors,omitempty"`
	Warnings    []string         `json:"parse_warnings,omitempty"`
}

func dryRunSummary(p *ingest.Prepared) dryRun {
	out := dryRun{
		Drafts:      p.Drafts,
		RowsSkipped: p.RowsSkipped + len(p.RowErrors),
		Warnings:    p.Warnings,
	}
	for _, d := range p.Drafts {
		if pins.NeedsGeocode(d) {
			out.NeedGeocode++
		}
	}
	for _, re := range p.RowErrors {
		out.RowErrors = append(out.RowErrors, re.Error())
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode output")
	}
	return nil
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFormat, "format", "", "upload format: csv, json or xlsx (default from file name)")
	ingestCmd.Flags().StringVar(&ingestCaller, "caller", "", "uploader recorded as created_by (default $USER)")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "parse and normalize only; no geocoding or submission")
	ingestCmd.Flags().BoolVar(&ingestNoProgress, "no-progress", false, "suppress progress lines on stderr")
	rootCmd.AddCommand(ingestCmd)
}
