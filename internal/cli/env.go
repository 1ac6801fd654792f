package cli

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/avelis/stockbook/internal/config"
	"github.com/avelis/stockbook/internal/ledger"
	"github.com/avelis/stockbook/internal/store"
)

// env is everything a command needs once flags are resolved.
type env struct {
	ledger *ledger.Ledger
	log    *zap.Logger
	out    *OutputFormatter
	close  func()
}

// osRemover deletes item image artifacts from the local filesystem.
type osRemover struct{}

func (osRemover) Remove(path string) error { return os.Remove(path) }

// openEnv resolves config, builds the logger and wires the ledger. The
// returned close func flushes the logger and closes the store.
func openEnv(opts *RootOptions, cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}

	log, err := newLogger(cfg.LogLevel, opts.Verbose)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build logger", err)
	}

	retry := store.DefaultRetryPolicy()
	retry.Base = cfg.Retry.Base()
	retry.MaxAttempts = cfg.Retry.MaxAttempts
	retry.Log = log

	mgr := store.NewManager(cfg.DBPath, retry, log)
	l := ledger.New(mgr, log, ledger.WithArtifactRemover(osRemover{}))

	return &env{
		ledger: l,
		log:    log,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
		close: func() {
			if err := mgr.Close(); err != nil {
				log.Warn("closing store", zap.Error(err))
			}
			_ = log.Sync()
		},
	}, nil
}

func newLogger(level string, verbose bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
