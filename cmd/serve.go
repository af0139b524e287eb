package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalnine/bart/internal/config"
	"github.com/signalnine/bart/internal/gateway"
	"github.com/signalnine/bart/internal/server"
	"github.com/spf13/cobra"
)

var flagAddr string

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API for launching runs and reading results",
		RunE:  serve,
	}
	cmd.Flags().StringVar(&flagAddr, "addr", ":8080", "listen address")
	cmd.Flags().BoolVar(&flagMock, "mock", false, "use the offline mock agent instead of the API")
	return cmd
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	mock := flagMock || gateway.MockMode()
	launch := func(ctx context.Context, runID string, req server.LaunchRequest) error {
		// Each run gets its own copy so overrides never leak between runs.
		runCfg := *cfg
		runCfg.Models = append([]string(nil), cfg.Models...)
		if err := applyOverrides(&runCfg, overrides{
			Models:      req.Models,
			NumBalloons: req.NumBalloons,
			Seed:        req.Seed,
		}); err != nil {
			return err
		}
		ex := &executor{cfg: &runCfg, db: db, mock: mock, out: os.Stdout}
		_, err := ex.run(ctx, runID)
		return err
	}

	h := server.NewHandler(db, launch)
	e := server.New(h, flagVerbose || cfg.DebugMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("Listening on %s\n", flagAddr)
		if err := e.Start(flagAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: server shutdown: %v", err)
	}
	h.Shutdown()
	return nil
}
