package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"go-stepseq/midi"
	"go-stepseq/sequencer"
	"go-stepseq/theme"
	"go-stepseq/tui"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Run the sequencer with the terminal UI",
	Long: `Opens the MIDI output, restores the saved state and starts the clock.
Press w in the UI to save the state, q to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		noMIDI, _ := cmd.Flags().GetBool("no-midi")
		paused, _ := cmd.Flags().GetBool("paused")
		palette, _ := cmd.Flags().GetString("palette")

		th := theme.New(nil)
		if palette != "" {
			p, err := theme.LoadGPL(palette)
			if err != nil {
				return err
			}
			th = theme.New(p)
		}

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

		if cfg.HTTP.Addr != "" {
			srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: a.handler()}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.log.Error("http server", "error", err)
				}
			}()
			defer srv.Shutdown(context.Background())
		}

		updates := tui.NewUpdates()
		a.seq.OnStateChange(updates.Observe)

		m := tui.NewModel(a.seq, a, updates, th, cfg.Strategy)
		m.Save = func(st sequencer.State[midi.Params]) error {
			return a.save(ctx, st)
		}
		m.OnStrategy = func(name string) {
			a.log.Info("strategy", "name", name)
		}

		if !paused {
			a.Start()
		}

		p := tea.NewProgram(m, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("ui: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(playCmd)
	engineFlags(playCmd)
	playCmd.Flags().Bool("no-midi", false, "Run without a MIDI output")
	playCmd.Flags().Bool("paused", false, "Do not start the clock (press p)")
	playCmd.Flags().String("palette", "", "GIMP palette (.gpl) for the UI colors")
}
