package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avelis/stockbook/internal/seed"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <seed-file>",
		Short: "Replace the inventory from a seed file",
		Long: `Validate a YAML seed file and replace the item inventory with its
contents. Nothing is written unless the whole file validates. Each imported
item gets a create record in the transaction log.

Example:
  stockbook import --db ./stock.db ./seed.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, cmd, args[0])
		},
	}
	return cmd
}

func runImport(rootOpts *RootOptions, cmd *cobra.Command, path string) error {
	f, err := seed.ParseFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "seed file rejected", err)
	}

	e, err := openEnv(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	n, err := seed.Import(cmd.Context(), e.ledger, f)
	if err != nil {
		_ = e.out.Fail(err)
		return WrapExitError(ExitFailure, "import failed", err)
	}

	if rootOpts.Format == "json" {
		return e.out.Success(struct {
			Imported int `json:"imported"`
		}{n})
	}
	fmt.Fprintf(e.out.Writer, "imported %d item(s)\n", n)
	return nil
}
