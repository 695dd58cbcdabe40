package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// SyncData is the sync payload.
type SyncData struct {
	Attempted int      `json:"attempted"`
	Synced    int      `json:"synced"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Pending   []string `json:"pending"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Retry persistence of completed missions held locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts)
		},
	}
}

func runSync(cmd *cobra.Command, rootOpts *RootOptions) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, rootOpts.Config)
	if err != nil {
		return err
	}
	defer rt.Close()

	f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	rt.session.Wait()
	outcomes, syncErr := rt.session.ReconcileAll(ctx)

	data := SyncData{Attempted: len(outcomes), Pending: []string{}}
	for _, out := range outcomes {
		switch {
		case !out.OK():
			data.Failed++
		case out.Skipped:
			data.Skipped++
		default:
			data.Synced++
		}
	}
	for _, id := range rt.session.Pending(ctx) {
		data.Pending = append(data.Pending, id.Key())
	}
	if syncErr != nil {
		f.VerboseLog("sync errors: %v", syncErr)
	}

	if f.JSON() {
		if err := f.Success(data); err != nil {
			return err
		}
	} else {
		w := f.Writer
		switch {
		case data.Attempted == 0:
			fmt.Fprintf(w, "%s nothing to sync\n", okMark)
		case data.Failed == 0:
			fmt.Fprintf(w, "%s %d synced, %d already stored\n", okMark, data.Synced, data.Skipped)
		default:
			fmt.Fprintf(w, "%s %d synced, %d already stored, %d failed\n", failMark, data.Synced, data.Skipped, data.Failed)
		}
		for _, key := range data.Pending {
			fmt.Fprintf(w, "  %s %s pending\n", pendingMark, key)
		}
	}

	if data.Failed > 0 {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d missions failed to sync", data.Failed), syncErr)
	}
	return nil
}
