package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewReverseCommand creates the reverse command.
func NewReverseCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reverse <transaction-id>",
		Short: "Undo a sale",
		Long: `Undo the sale documented by an audit record.

The sold stock is restored to the item's boxes and the record is deleted,
together with the companion records the same sale produced (the quantity
update written alongside it). Non-sale records are rejected.

Example:
  stockbook reverse --db ./stock.db 1042`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReverse(rootOpts, cmd, args[0])
		},
	}
	return cmd
}

func runReverse(rootOpts *RootOptions, cmd *cobra.Command, arg string) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return WrapExitError(ExitCommandError, "transaction id must be an integer", err)
	}

	e, err := openEnv(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	out, err := e.ledger.Reverse(cmd.Context(), id)
	if err != nil {
		_ = e.out.Fail(err)
		return WrapExitError(ExitFailure, "reversal failed", err)
	}

	if rootOpts.Format == "json" {
		payload := struct {
			ItemMissing    bool    `json:"itemMissing"`
			RestoredItemID *int64  `json:"restoredItemId,omitempty"`
			TotalQuantity  *int    `json:"totalQuantity,omitempty"`
			DeletedRecords []int64 `json:"deletedRecords"`
		}{ItemMissing: out.ItemMissing, DeletedRecords: out.DeletedRecords}
		if out.Restored != nil {
			payload.RestoredItemID = &out.Restored.ID
			payload.TotalQuantity = &out.Restored.TotalQuantity
		}
		return e.out.Success(payload)
	}

	if out.ItemMissing {
		fmt.Fprintf(e.out.Writer, "item no longer exists; removed %d record(s)\n", len(out.DeletedRecords))
		return nil
	}
	fmt.Fprintf(e.out.Writer, "restored item %d (%s) to %d units; removed %d record(s)\n",
		out.Restored.ID, out.Restored.Name, out.Restored.TotalQuantity, len(out.DeletedRecords))
	return nil
}
