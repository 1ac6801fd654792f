package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/avelis/stockbook/internal/audit"
	"github.com/avelis/stockbook/internal/ledger"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit  int
	Offset int
	Search string
	From   string
	To     string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse the transaction log",
		Long: `Browse audit records, newest first.

Dates are inclusive and use YYYY-MM-DD.

Example:
  stockbook history --db ./stock.db --limit 20
  stockbook history --db ./stock.db --search boot
  stockbook history --db ./stock.db --from 2026-08-01 --to 2026-08-31`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum records per page")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "page offset")
	cmd.Flags().StringVar(&opts.Search, "search", "", "filter by item name substring")
	cmd.Flags().StringVar(&opts.From, "from", "", "start date (inclusive)")
	cmd.Flags().StringVar(&opts.To, "to", "", "end date (inclusive)")
	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer e.close()
	ctx := cmd.Context()

	var (
		txs     []audit.Transaction
		hasMore bool
	)
	switch {
	case opts.Search != "":
		txs, err = e.ledger.SearchTransactions(ctx, opts.Search, opts.Limit)
	case opts.From != "" || opts.To != "":
		var from, to int64
		from, to, err = parseDateRange(opts.From, opts.To)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid date range", err)
		}
		txs, err = e.ledger.TransactionsInRange(ctx, from, to)
	default:
		var page ledger.HistoryPage
		page, err = e.ledger.TransactionPage(ctx, opts.Limit, opts.Offset)
		txs, hasMore = page.Transactions, page.HasMore
	}
	if err != nil {
		_ = e.out.Fail(err)
		return WrapExitError(ExitFailure, "history query failed", err)
	}

	if opts.Format == "json" {
		return e.out.Success(struct {
			Transactions []audit.Transaction `json:"transactions"`
			HasMore      bool                `json:"hasMore"`
		}{txs, hasMore})
	}

	var b strings.Builder
	for _, tx := range txs {
		ts := time.Unix(tx.Timestamp, 0).UTC().Format("2006-01-02 15:04:05")
		fmt.Fprintf(&b, "%-6d %s %-9s %s\n", tx.ID, ts, tx.Action, tx.ItemName)
	}
	if hasMore {
		fmt.Fprintf(&b, "(more records; use --offset %d)\n", opts.Offset+opts.Limit)
	}
	fmt.Fprint(e.out.Writer, b.String())
	return nil
}

// parseDateRange converts inclusive YYYY-MM-DD bounds into second
// timestamps. An open end defaults to the epoch extremes.
func parseDateRange(from, to string) (int64, int64, error) {
	lo := int64(0)
	hi := time.Now().UTC().Unix()
	if from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return 0, 0, fmt.Errorf("parse --from: %w", err)
		}
		lo = t.Unix()
	}
	if to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return 0, 0, fmt.Errorf("parse --to: %w", err)
		}
		// Whole final day.
		hi = t.Add(24*time.Hour - time.Second).Unix()
	}
	return lo, hi, nil
}
