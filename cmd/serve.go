package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/draftscore/internal/api"
	"github.com/joescharf/draftscore/internal/daemon"
	"github.com/joescharf/draftscore/internal/scoring"
)

var serveMockScoring bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST and WebSocket API server",
	Long: `Start an HTTP server exposing reviews, documents, feedback and analysis
under /api/v1. By default it listens on port 8080. Use --port to change it.

With --mock-scoring, the deterministic marker scoring backend is also
served under /scoring/v1, so an http scoring backend can point at it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
		defer stop()
		return serveRun(ctx, nil)
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a server is running for this state directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().BoolVar(&serveMockScoring, "mock-scoring", false, "Also serve the marker scoring backend at /scoring/v1")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))

	serveCmd.AddCommand(serveStatusCmd)
	serveCmd.AddCommand(serveStopCmd)
	rootCmd.AddCommand(serveCmd)
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "draftscore-serve.pid"))
}

// serveRun serves until ctx is done. A non-nil ready receives the bound
// address once the listener is up.
func serveRun(ctx context.Context, ready chan<- string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	release, err := pidFile().Claim()
	if err != nil {
		return err
	}
	defer release()

	srv := api.NewServer(svc, logger)
	if serveMockScoring {
		srv.MountScoring(scoring.NewHandler(scoring.NewMarkerService(viper.GetInt("scoring.pending_polls")), logger))
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", viper.GetInt("port")))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	httpSrv := &http.Server{
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(ln) }()

	addr := ln.Addr().String()
	ui.Success("Serving API at http://%s/api/v1", addr)
	if serveMockScoring {
		ui.Info("Mock scoring backend at http://%s/scoring/v1", addr)
	}
	if ready != nil {
		ready <- addr
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	ui.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func serveStatusRun() error {
	pid, running := pidFile().IsRunning()
	if running {
		ui.Success("Server running (pid %d)", pid)
		return nil
	}
	ui.Info("Server not running")
	return nil
}

func serveStopRun() error {
	if dryRun {
		ui.DryRunMsg("Would stop the server")
		return nil
	}
	pid, err := pidFile().Stop()
	if err != nil {
		return err
	}
	ui.Success("Sent stop signal to server (pid %d)", pid)
	return nil
}
