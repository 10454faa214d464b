package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/greenline/possync/internal/catalogsync"
)

type passFlags struct {
	locations []int64
	userID    int64
}

func (f *passFlags) bind(cmd *cobra.Command, defaultUser int64) {
	cmd.Flags().Int64SliceVar(&f.locations, "location", nil, "restrict the pass to these location ids")
	cmd.Flags().Int64Var(&f.userID, "user", defaultUser, "user id recorded as the initiator")
}

type summaryOutput struct {
	RunID     string `json:"run_id,omitempty"`
	Vendor    string `json:"vendor"`
	Count     int    `json:"count"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	var flags passFlags
	cmd := &cobra.Command{
		Use:   "run [vendor]",
		Short: "Run a catalog sync pass in this process",
		Long: `Run a catalog sync pass in this process and wait for it.

Without a vendor every configured vendor is synchronized.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.factory.OpenSyncer == nil {
				return errors.New("run: syncer not configured")
			}
			syncer, closeFn, err := opts.factory.OpenSyncer(cmd.Context())
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			if closeFn != nil {
				defer closeFn()
			}

			var summary catalogsync.Summary
			if len(args) == 0 {
				summary, err = syncer.SynchronizeAll(cmd.Context(), flags.userID)
			} else {
				summary, err = syncer.Synchronize(cmd.Context(), catalogsync.Pass{
					Vendor:      args[0],
					LocationIDs: flags.locations,
					InitiatedBy: flags.userID,
				})
			}
			out := summaryOutput{
				Vendor:    summary.Vendor,
				Count:     summary.Count,
				Completed: summary.Completed,
				Failed:    summary.Failed,
				Skipped:   summary.Skipped,
				Message:   summary.Message,
			}
			if len(args) == 1 {
				out.RunID = summary.RunID.String()
			}
			if err != nil {
				out.Error = err.Error()
			}
			if writeErr := writeSummary(cmd.OutOrStdout(), opts.Format, out); writeErr != nil {
				return writeErr
			}
			return err
		},
	}
	flags.bind(cmd, opts.factory.DefaultUserID)
	return cmd
}

func writeSummary(w io.Writer, format string, out summaryOutput) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(out)
	}
	if out.RunID != "" {
		fmt.Fprintf(w, "run %s\n", out.RunID)
	}
	fmt.Fprintln(w, out.Message)
	return nil
}

// NewTriggerCommand creates the trigger command.
func NewTriggerCommand(opts *RootOptions) *cobra.Command {
	var flags passFlags
	cmd := &cobra.Command{
		Use:   "trigger <vendor>",
		Short: "Enqueue a catalog sync pass on the worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := openQueue(opts)
			if err != nil {
				return err
			}
			defer queue.Close()

			info, err := queue.Trigger(cmd.Context(), args[0], flags.userID, flags.locations)
			if err != nil {
				return fmt.Errorf("trigger: %w", err)
			}
			if opts.Format == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"task_id": info.ID, "queue": info.Queue})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s on %s\n", info.ID, info.Queue)
			return nil
		},
	}
	flags.bind(cmd, opts.factory.DefaultUserID)
	return cmd
}

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue depth and catalog syncs in flight",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := openQueue(opts)
			if err != nil {
				return err
			}
			defer queue.Close()

			stats, err := queue.InspectQueues(cmd.Context())
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			running, err := queue.ListRunning(cmd.Context())
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}

			w := cmd.OutOrStdout()
			if opts.Format == "json" {
				return json.NewEncoder(w).Encode(map[string]any{"queues": stats, "running": running})
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
			for _, s := range stats {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(running) == 0 {
				fmt.Fprintln(w, "no catalog syncs in flight")
				return nil
			}
			for _, task := range running {
				fmt.Fprintf(w, "%s %s vendor=%s locations=%v\n", task.ID, task.State, task.Payload.Vendor, task.Payload.LocationIDs)
			}
			return nil
		},
	}
}

func openQueue(opts *RootOptions) (Queue, error) {
	if opts.factory.OpenQueue == nil {
		return nil, errors.New("queue not configured")
	}
	return opts.factory.OpenQueue()
}
