package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pin-ingest/internal/resilience"
	"github.com/sells-group/pin-ingest/internal/store"
	"github.com/sells-group/pin-ingest/internal/submit"
)

var (
	dlListLimit   int
	dlListType    string
	dlListJSON    bool
	dlReplayAll   bool
	dlReplayLimit int
)

var deadLettersCmd = &cobra.Command{
	Use:     "deadletters",
	Aliases: []string{"dlq"},
	Short:   "Inspect and replay chunks the sink rejected",
}

var deadLettersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered chunks, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.ListDeadLetters(ctx, resilience.DLQFilter{ErrorType: dlListType, Limit: dlListLimit})
		if err != nil {
			return err
		}
		if dlListJSON {
			return writeJSON(cmd.OutOrStdout(), entries)
		}
		return printDeadLetters(cmd.OutOrStdout(), entries)
	},
}

var deadLettersReplayCmd = &cobra.Command{
	Use:   "replay [id...]",
	Short: "Submit dead-lettered chunks again through the configured sink",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if len(args) == 0 && !dlReplayAll {
			return eris.New("pass entry IDs or --all")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		env, err := openSink(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		var entries []resilience.DLQEntry
		if dlReplayAll {
			entries, err = st.ListDeadLetters(ctx, resilience.DLQFilter{Limit: dlReplayLimit})
			if err != nil {
				return err
			}
		} else {
			for _, id := range args {
				e, err := st.GetDeadLetter(ctx, id)
				if err != nil {
					return err
				}
				entries = append(entries, *e)
			}
		}

		res := replayDeadLetters(ctx, st, env.Creator, entries)
		fmt.Fprintf(cmd.OutOrStdout(), "replayed %d, still failing %d, skipped %d\n", //nolint:errcheck
			res.Replayed, res.Failed, res.Skipped)
		return nil
	},
}

// replayResult counts the outcome of a replay pass.
type replayResult struct {
	Replayed int
	Failed   int
	Skipped  int
}

// replayStore is the part of store.Store a replay touches.
type replayStore interface {
	RecordReplay(ctx context.Context, id string, replayErr error) error
}

// replayDeadLetters sends each entry's drafts once. An entry succeeds only
// when every draft is created; anything less is recorded as a failed replay.
func replayDeadLetters(ctx context.Context, st replayStore, sink submit.BulkCreator, entries []resilience.DLQEntry) replayResult {
	var res replayResult
	for i := range entries {
		e := &entries[i]
		if !e.CanRetry() {
			res.Skipped++
			continue
		}

		replayErr := replayOne(ctx, sink, e)
		if err := st.RecordReplay(ctx, e.ID, replayErr); err != nil {
			zap.L().Error("deadletters: record replay", zap.String("id", e.ID), zap.Error(err))
		}
		if replayErr != nil {
			res.Failed++
			zap.L().Warn("deadletters: replay failed", zap.String("id", e.ID), zap.Error(replayErr))
			continue
		}
		res.Replayed++
	}
	return res
}

func replayOne(ctx context.Context, sink submit.BulkCreator, e *resilience.DLQEntry) error {
	result, err := sink.BulkCreate(ctx, e.Drafts)
	if err != nil {
		return err
	}
	if result.Created < len(e.Drafts) {
		return eris.Errorf("%d of %d created: %s", result.Created, len(e.Drafts), strings.Join(result.Errors, "; "))
	}
	return nil
}

func openStore(ctx context.Context) (store.Store, error) {
	driver, dsn := cfg.Store.Driver, cfg.Store.DatabaseURL
	if driver == "" && (cfg.Submit.Sink == store.DriverPostgres || cfg.Submit.Sink == store.DriverSQLite) {
		driver = cfg.Submit.Sink
	}
	return store.Open(ctx, driver, dsn)
}

func printDeadLetters(w io.Writer, entries []resilience.DLQEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSINK\tDRAFTS\tTYPE\tRETRIES\tLAST FAILED\tERROR") //nolint:errcheck
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d/%d\t%s\t%s\n", //nolint:errcheck
			e.ID, e.Sink, len(e.Drafts), e.ErrorType, e.RetryCount, e.MaxRetries,
			e.LastFailedAt.Format("2006-01-02 15:04:05"), truncate(e.Error, 80))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func init() {
	deadLettersListCmd.Flags().IntVar(&dlListLimit, "limit", 100, "maximum entries to list")
	deadLettersListCmd.Flags().StringVar(&dlListType, "type", "", "filter by error type: transient or permanent")
	deadLettersListCmd.Flags().BoolVar(&dlListJSON, "json", false, "print entries as JSON")
	deadLettersReplayCmd.Flags().BoolVar(&dlReplayAll, "all", false, "replay every retryable entry")
	deadLettersReplayCmd.Flags().IntVar(&dlReplayLimit, "limit", 100, "maximum entries replayed with --all")

	deadLettersCmd.AddCommand(deadLettersListCmd, deadLettersReplayCmd)
	rootCmd.AddCommand(deadLettersCmd)
}
