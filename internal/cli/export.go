package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/avelis/stockbook/internal/audit"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Out string
}

// exportRecord is the stable wire shape of one exported audit record.
type exportRecord struct {
	ID        int64           `json:"id"`
	Action    audit.Action    `json:"action"`
	ItemID    *int64          `json:"itemId"`
	ItemName  string          `json:"itemName"`
	Timestamp int64           `json:"timestamp"`
	Details   json.RawMessage `json:"details"`
}

type exportDocument struct {
	Transactions []exportRecord `json:"transactions"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the full transaction log as JSON",
		Long: `Export every audit record in chronological order.

The output is a raw JSON document, not the usual response envelope, so it
can be archived or fed to other tooling directly.

Example:
  stockbook export --db ./stock.db > log.json
  stockbook export --db ./stock.db --out log.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Out, "out", "", "write to a file instead of stdout")
	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	txs, err := e.ledger.Transactions(cmd.Context())
	if err != nil {
		_ = e.out.Fail(err)
		return WrapExitError(ExitFailure, "export failed", err)
	}

	doc := exportDocument{Transactions: make([]exportRecord, 0, len(txs))}
	for _, tx := range txs {
		doc.Transactions = append(doc.Transactions, exportRecord{
			ID:        tx.ID,
			Action:    tx.Action,
			ItemID:    tx.ItemID,
			ItemName:  tx.ItemName,
			Timestamp: tx.Timestamp,
			Details:   tx.Details,
		})
	}

	w := e.out.Writer
	if opts.Out != "" {
		f, err := os.Create(opts.Out)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create output file", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return WrapExitError(ExitFailure, "failed to encode export", err)
	}
	e.out.VerboseLog("exported %d record(s)", len(doc.Transactions))
	return nil
}
