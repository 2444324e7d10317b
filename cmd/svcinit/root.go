package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	svcinit "github.com/axondata/go-svcinit"
)

// rootFlags mirror Config; a flag only overrides the file when set
type rootFlags struct {
	configPath   string
	dirs         []string
	chain        []string
	stateFile    string
	concurrency  int
	startTimeout time.Duration
	watch        bool
	logLevel     string
	logFormat    string
}

func newRootCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "svcinit",
		Short: "Start services in dependency order",
		Long: `svcinit loads service descriptors from one or more directories, orders
them by their dependencies and starts each one as an isolated process.
Services whose dependencies are all online start concurrently.`,
		Version: svcinit.Version,
		// SilenceUsage keeps runtime errors from printing the usage text
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSupervisor(cmd, f)
		},
	}
	cmd.SetVersionTemplate(`{{printf "svcinit version %s\n" .Version}}`)

	flags := cmd.Flags()
	flags.StringVarP(&f.configPath, "config", "c", "", "Path to the configuration file")
	flags.StringSliceVarP(&f.dirs, "dir", "d", nil, "Boot descriptor directory (repeatable)")
	flags.StringArrayVar(&f.chain, "chain", nil, "Chain load provides=dir once provides is online (repeatable)")
	flags.StringVar(&f.stateFile, "state-file", "", "Write service states to this file")
	flags.IntVar(&f.concurrency, "concurrency", svcinit.DefaultConcurrency, "Services started at once within a group")
	flags.DurationVar(&f.startTimeout, "start-timeout", svcinit.DefaultStartTimeout, "Default deadline of a start attempt")
	flags.BoolVar(&f.watch, "watch", false, "Keep loading descriptors added to the boot directories")
	flags.StringVar(&f.logLevel, "log-level", svcinit.DefaultLogLevel, "Log level: debug, info, warn, error")
	flags.StringVar(&f.logFormat, "log-format", "text", "Log format: text or json")

	cmd.AddCommand(newStatusCmd(), newSchemesCmd(), newVersionCmd())
	return cmd
}

// loadConfig reads the configuration file and applies the flags that were
// set explicitly.
func loadConfig(cmd *cobra.Command, f *rootFlags) (*svcinit.Config, error) {
	cfg, err := svcinit.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("dir") {
		cfg.Dirs = f.dirs
	}
	if flags.Changed("chain") {
		cfg.Chain = cfg.Chain[:0]
		for _, s := range f.chain {
			ch, err := svcinit.ParseChain(s)
			if err != nil {
				return nil, err
			}
			cfg.Chain = append(cfg.Chain, ch)
		}
	}
	if flags.Changed("state-file") {
		cfg.StateFile = f.stateFile
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = f.concurrency
	}
	if flags.Changed("start-timeout") {
		cfg.StartTimeout = f.startTimeout
	}
	if flags.Changed("watch") {
		cfg.Watch = f.watch
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSupervisor(cmd *cobra.Command, f *rootFlags) error {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := newLogger(level, f.logFormat, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", "version", svcinit.Version, "dirs", cfg.Dirs, "watch", cfg.Watch)

	sup := svcinit.NewSupervisor(cfg, logger, svcinit.WithNotifier(notifyReady))
	if err := sup.Run(ctx); err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	logger.Info("stopped")
	return nil
}

// notifyReady tells systemd the boot batch is up. It is a no-op outside
// systemd.
func notifyReady() error {
	_, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	return err
}
