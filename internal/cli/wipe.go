package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// WipeOptions holds flags for the wipe command.
type WipeOptions struct {
	*RootOptions
	Yes bool
}

// NewWipeCommand creates the wipe command.
func NewWipeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WipeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete every item and audit record",
		Long: `Delete the whole inventory and its transaction log.

Refuses to run without --yes.

Example:
  stockbook wipe --db ./stock.db --yes`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWipe(opts, cmd)
		},
	}
	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm the wipe")
	return cmd
}

func runWipe(opts *WipeOptions, cmd *cobra.Command) error {
	if !opts.Yes {
		return WrapExitError(ExitCommandError, "refusing to wipe without --yes", nil)
	}

	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer e.close()
	ctx := cmd.Context()

	if err := e.ledger.ClearTransactions(ctx); err != nil {
		_ = e.out.Fail(err)
		return WrapExitError(ExitFailure, "wipe failed", err)
	}
	if err := e.ledger.ClearItems(ctx); err != nil {
		_ = e.out.Fail(err)
		return WrapExitError(ExitFailure, "wipe failed", err)
	}

	if opts.Format == "json" {
		return e.out.Success(struct {
			Wiped bool `json:"wiped"`
		}{true})
	}
	fmt.Fprintln(e.out.Writer, "inventory and transaction log wiped")
	return nil
}
