package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/juste-un-gars/anemone_transfer/internal/app"
	"github.com/juste-un-gars/anemone_transfer/internal/config"
	"github.com/juste-un-gars/anemone_transfer/internal/logger"
	"github.com/juste-un-gars/anemone_transfer/internal/store"
	"github.com/juste-un-gars/anemone_transfer/internal/transfer"
)

var (
	cfgFile  string
	logLevel string

	rootCmd = &cobra.Command{
		Use:   "anemonetransfer",
		Short: "Scheduled file transfers between local folders and remote servers",
		Long: `anemonetransfer moves files on a timer between local folders and
SMB, SFTP or FTP servers. Each job uploads or downloads the files of one
folder, optionally filtered, and can delete the source once copied.`,
		SilenceErrors: true,
	}
)

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or the user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override app.log_level (debug, info, warn, error)")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// environment is what every command needs before touching jobs
type environment struct {
	cfg     *config.Config
	logger  *zap.Logger
	factory *transfer.Factory
}

// loadEnvironment reads the configuration and builds the logger and the
// connection factory. Interactive commands pass quiet so that only the
// log file receives log lines.
func loadEnvironment(quiet bool) (*environment, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		if _, err := logger.ParseLevel(logLevel); err != nil {
			return nil, err
		}
		cfg.App.LogLevel = logLevel
	}
	if quiet {
		cfg.Logging.Quiet = true
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	profiles, err := cfg.ConnectionSettings()
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	creds := transfer.NewKeyringStore(cfg.Security.KeystoreServiceName, log)
	factory := transfer.NewFactory(profiles, afero.NewOsFs(), creds, log)

	return &environment{cfg: cfg, logger: log, factory: factory}, nil
}

// openApp opens the job store and builds the engine on top of it
func (e *environment) openApp(offline bool) (*app.App, error) {
	st, err := store.Open(e.cfg.StoreOptions(), e.logger)
	if err != nil {
		return nil, err
	}
	a, err := app.New(app.Options{
		Store:             st,
		Factory:           e.factory,
		LocalFs:           e.factory.LocalFs(),
		Logger:            e.logger,
		MaxConcurrentRuns: e.cfg.Scheduler.MaxConcurrentRuns,
		Offline:           offline,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return a, nil
}

// shutdown stops a with the configured grace period
func (e *environment) shutdown(a *app.App) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout())
	defer cancel()
	return a.Shutdown(ctx)
}

// withOfflineApp loads the jobs without arming timers, runs fn and
// persists the result.
func withOfflineApp(cmd *cobra.Command, fn func(env *environment, a *app.App) error) error {
	env, err := loadEnvironment(true)
	if err != nil {
		return err
	}
	defer func() { _ = env.logger.Sync() }()

	a, err := env.openApp(true)
	if err != nil {
		return err
	}
	if err := a.Start(cmd.Context()); err != nil {
		return errors.Join(err, env.shutdown(a))
	}
	runErr := fn(env, a)
	return errors.Join(runErr, env.shutdown(a))
}
