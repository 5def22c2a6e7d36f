package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go-stepseq/httpapi"
	"go-stepseq/midi"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sequencer headless behind the HTTP control API",
	Long: `Starts the clock and exposes the sequencer over HTTP: state, tracks,
steps, transport and prometheus metrics. The state is restored on start
and saved on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.HTTP.Addr == "" {
			cfg.HTTP.Addr = ":8080"
		}
		noMIDI, _ := cmd.Flags().GetBool("no-midi")
		paused, _ := cmd.Flags().GetBool("paused")

		var send midi.SendFunc = discard
		if !noMIDI {
			if send, err = openOutput(cfg.SynthOutput.PortName); err != nil {
				return err
			}
			defer midi.CloseDriver()
		}

		a, err := newApp(cfg, send)
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		if err := a.restore(ctx); err != nil {
			return fmt.Errorf("failed to restore state: %w", err)
		}

		srv := &http.Server{
			Addr:    cfg.HTTP.Addr,
			Handler: a.handler(),
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			fmt.Printf("stepseq listening on %s (%.0f bpm, %s)\n", srv.Addr, cfg.Tempo.BPM, cfg.Strategy)
			serverErrors <- srv.ListenAndServe()
		}()

		if !paused {
			a.Start()
		}

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
		case sig := <-shutdown:
			fmt.Printf("\nshutting down (%v)\n", sig)
			a.Stop()

			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				fmt.Printf("graceful shutdown did not complete in %v: %v\n", shutdownTimeout, err)
				_ = srv.Close()
			}
		}

		if err := a.save(context.Background(), a.seq.Snapshot()); err != nil {
			return fmt.Errorf("failed to save state: %w", err)
		}
		return nil
	},
}

// handler is the HTTP control API over the app
func (a *app) handler() http.Handler {
	srv := httpapi.NewServer[midi.Params](a.seq)
	srv.Transport = a
	srv.Gatherer = a.registry
	srv.OnTick = a.metrics.ObserveTick
	return srv.Handler()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	engineFlags(serveCmd)
	serveCmd.Flags().Bool("no-midi", false, "Run without a MIDI output")
	serveCmd.Flags().Bool("paused", false, "Do not start the clock until PUT /transport")
}
