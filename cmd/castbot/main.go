package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"castbot/internal/app"
	"castbot/internal/config"
	"castbot/internal/storage"
	logx "castbot/pkg/logx"
)

type rootFlags struct {
	configPath string
	envFile    string
}

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f rootFlags
	root := &cobra.Command{
		Use:           "castbot",
		Short:         "Telegram broadcast bot with resumable delivery and recall",
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// an explicit --env-file must exist; the default .env is optional
			return config.LoadDotEnv(f.envFile, cmd.Flags().Changed("env-file"))
		},
		RunE: func(cmd *cobra.Command, _ []string) error { return runBot(cmd.Context(), f) },
	}
	addPersistentFlags(root.PersistentFlags(), &f)

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the bot (default)",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return runBot(cmd.Context(), f) },
		},
		newCheckpointCmd(&f),
		newMigrateCmd(&f),
	)
	return root
}

func addPersistentFlags(fs *pflag.FlagSet, f *rootFlags) {
	fs.StringVarP(&f.configPath, "config", "c", "./config.yaml", "config file (.json, .yaml or .toml)")
	fs.StringVar(&f.envFile, "env-file", ".env", "dotenv file with secrets")
}

func runBot(parent context.Context, f rootFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	a, err := app.New(ctx, f.configPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return fmt.Errorf("start: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	reason := app.StopUnknown
	select {
	case sig := <-sigCh:
		reason = app.StopSIGTERM
		if sig == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}

// openStore loads the config and opens its storage for maintenance commands.
func openStore(ctx context.Context, f rootFlags) (storage.Store, error) {
	cfg, err := config.NewManager(f.configPath).Load()
	if err != nil {
		return nil, err
	}
	sc, err := app.StorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	return storage.Open(ctx, sc, logx.NewConsole(cfg.Logging.Level))
}
