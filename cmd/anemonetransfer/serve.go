package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/juste-un-gars/anemone_transfer/internal/api"
	"github.com/juste-un-gars/anemone_transfer/internal/app"
)

var _ api.Engine = (*app.App)(nil)

var (
	listenAddr string
	noAPI      bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the control API",
		Long: `Serve restores the persisted jobs, arms the timers of the jobs marked
run_on_startup and exposes the control API until SIGINT or SIGTERM.
Runs in progress get scheduler.shutdown_timeout_seconds to finish, then
the job state is written back to the store.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "override api.listen")
	serveCmd.Flags().BoolVar(&noAPI, "no-api", false, "do not start the control API")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(false)
	if err != nil {
		return err
	}
	defer func() { _ = env.logger.Sync() }()
	log := env.logger

	a, err := env.openApp(false)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := a.Start(ctx); err != nil {
		return errors.Join(err, env.shutdown(a))
	}

	addr := env.cfg.API.Listen
	if listenAddr != "" {
		addr = listenAddr
	}

	egrp, egrpCtx := errgroup.WithContext(ctx)
	if env.cfg.API.Enabled && !noAPI {
		srv := api.NewServer(a, log)
		egrp.Go(func() error {
			return srv.Serve(egrpCtx, addr)
		})
	}
	egrp.Go(func() error {
		<-egrpCtx.Done()
		return nil
	})

	log.Info("anemonetransfer running", zap.Strings("jobs", jobNames(a.Jobs())))
	serveErr := egrp.Wait()
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		log.Error("control API failed", zap.Error(serveErr))
	} else {
		serveErr = nil
	}

	log.Info("shutting down", zap.Duration("grace", env.cfg.ShutdownTimeout()))
	return errors.Join(serveErr, env.shutdown(a))
}
