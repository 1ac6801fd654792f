package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/avelis/stockbook/internal/item"
	"github.com/avelis/stockbook/internal/ledger"
)

// ItemsOptions holds flags for the items subcommands.
type ItemsOptions struct {
	*RootOptions
	Limit     int
	Offset    int
	Search    string
	Warehouse string
	Type      string
}

// NewItemsCommand creates the items command group.
func NewItemsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ItemsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "items",
		Short: "Inspect the item inventory",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List items",
		Long: `List inventory items, optionally filtered.

Example:
  stockbook items list --db ./stock.db --warehouse main --search boot`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runItemsList(opts, cmd)
		},
	}
	list.Flags().IntVar(&opts.Limit, "limit", 50, "maximum items per page")
	list.Flags().IntVar(&opts.Offset, "offset", 0, "page offset")
	list.Flags().StringVar(&opts.Search, "search", "", "filter by name or code substring")
	list.Flags().StringVar(&opts.Warehouse, "warehouse", "", "filter by warehouse")
	list.Flags().StringVar(&opts.Type, "type", "", "filter by code prefix")

	show := &cobra.Command{
		Use:           "show <item-id>",
		Short:         "Show one item in full",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runItemsShow(opts, cmd, args[0])
		},
	}

	cmd.AddCommand(list)
	cmd.AddCommand(show)
	return cmd
}

func runItemsList(opts *ItemsOptions, cmd *cobra.Command) error {
	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	page, err := e.ledger.ItemPage(cmd.Context(), ledger.ItemFilter{
		Limit:     opts.Limit,
		Offset:    opts.Offset,
		Search:    opts.Search,
		Warehouse: opts.Warehouse,
		Type:      opts.Type,
	})
	if err != nil {
		_ = e.out.Fail(err)
		return WrapExitError(ExitFailure, "listing items failed", err)
	}

	if opts.Format == "json" {
		return e.out.Success(struct {
			Items   []item.Item `json:"items"`
			HasMore bool        `json:"hasMore"`
		}{page.Items, page.HasMore})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-6s %-28s %-10s %-10s %8s %12s\n", "ID", "NAME", "CODE", "WAREHOUSE", "QTY", "VALUE")
	for _, it := range page.Items {
		fmt.Fprintf(&b, "%-6d %-28s %-10s %-10s %8d %12s\n",
			it.ID, it.Name, it.Code, it.Warehouse, it.TotalQuantity, it.TotalValue.String())
	}
	if page.HasMore {
		fmt.Fprintf(&b, "(more items; use --offset %d)\n", opts.Offset+opts.Limit)
	}
	fmt.Fprint(e.out.Writer, b.String())
	return nil
}

func runItemsShow(opts *ItemsOptions, cmd *cobra.Command, arg string) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return WrapExitError(ExitCommandError, "item id must be an integer", err)
	}

	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	it, err := e.ledger.ItemByID(cmd.Context(), id)
	if err != nil {
		_ = e.out.Fail(err)
		return WrapExitError(ExitFailure, "item lookup failed", err)
	}

	if opts.Format == "json" {
		return e.out.Success(it)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Item %d: %s\n", it.ID, it.Name)
	fmt.Fprintf(&b, "  code: %s  warehouse: %s  shelf: row %d pos %d side %s\n",
		it.Code, it.Warehouse, it.Row, it.Position, it.Side)
	fmt.Fprintf(&b, "  total: %d units, value %s\n", it.TotalQuantity, it.TotalValue.String())
	for i, box := range it.Boxes {
		fmt.Fprintf(&b, "  box %d:\n", i)
		for _, s := range box.Sizes {
			fmt.Fprintf(&b, "    size %-6s qty %-4d price %s\n", s.Size.String(), s.Quantity, s.Price.String())
		}
	}
	fmt.Fprint(e.out.Writer, b.String())
	return nil
}
