// Package cli implements the catalogsync operator commands.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/greenline/possync/internal/catalogsync"
	"github.com/greenline/possync/jobs"
)

// Syncer runs passes in-process.
type Syncer interface {
	Synchronize(ctx context.Context, pass catalogsync.Pass) (catalogsync.Summary, error)
	SynchronizeAll(ctx context.Context, initiatingUserID int64) (catalogsync.Summary, error)
}

// Queue talks to the worker queue.
type Queue interface {
	Trigger(ctx context.Context, vendor string, userID int64, locationIDs []int64) (*asynq.TaskInfo, error)
	ListRunning(ctx context.Context) ([]jobs.RunningTask, error)
	InspectQueues(ctx context.Context) ([]QueueStats, error)
	Close() error
}

// Factory opens backends lazily so that each command only connects to what it needs.
type Factory struct {
	DefaultUserID int64
	OpenSyncer    func(ctx context.Context) (Syncer, func(), error)
	OpenQueue     func() (Queue, error)
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format  string
	factory Factory
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the catalogsync root command.
func NewRootCommand(factory Factory) *cobra.Command {
	opts := &RootOptions{factory: factory}

	cmd := &cobra.Command{
		Use:   "catalogsync",
		Short: "Synchronize POS catalogs into the local store",
		Long: `Synchronize product catalogs from the POS vendors into the local store.

run executes a pass in this process, trigger hands one to the worker,
status reports queue depth and passes in flight.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTriggerCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))

	return cmd
}
