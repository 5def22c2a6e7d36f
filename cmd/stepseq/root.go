package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go-stepseq/config"
	"go-stepseq/debug"
)

var rootCmd = &cobra.Command{
	Use:   "stepseq",
	Short: "stepseq is a MIDI step sequencer",
	Long: `stepseq plays tracks of on/off steps to a MIDI output. Run it with a
terminal UI (play) or headless behind an HTTP API (serve).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		on, _ := cmd.Flags().GetBool("debug")
		if on {
			return debug.Enable("")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		debug.Disable()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/go-stepseq/config.json)")
	rootCmd.PersistentFlags().Bool("debug", false, "Write a debug log to ~/.config/go-stepseq/debug.log")
}

// loadConfig reads the config file and applies command line overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if path == "" {
		cfg, err = config.Load()
	} else {
		cfg, err = config.LoadFrom(path)
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("bpm") {
		cfg.Tempo.BPM, _ = flags.GetFloat64("bpm")
	}
	if flags.Changed("strategy") {
		cfg.Strategy, _ = flags.GetString("strategy")
	}
	if flags.Changed("port") {
		cfg.SynthOutput.PortName, _ = flags.GetString("port")
	}
	if flags.Changed("addr") {
		cfg.HTTP.Addr, _ = flags.GetString("addr")
	}
	if flags.Changed("store") {
		kind, _ := flags.GetString("store")
		cfg.Store.Kind = config.StoreKind(kind)
	}
	if flags.Changed("key") {
		cfg.Store.Key, _ = flags.GetString("key")
	}
	if cfg.Debug && !debug.Enabled() {
		if err := debug.Enable(""); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// storeFlags registers the flags selecting the state store
func storeFlags(cmd *cobra.Command) {
	cmd.Flags().String("store", "", "State store: file, redis or memory")
	cmd.Flags().String("key", "", "Key of the saved state")
}

// engineFlags registers the flags shared by play and serve
func engineFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("bpm", 0, "Tempo in beats per minute")
	cmd.Flags().String("strategy", "", "Next-step strategy: forward, backward or backAndForth")
	cmd.Flags().String("port", "", "MIDI output port name (default first port)")
	cmd.Flags().String("addr", "", "HTTP control API listen address, e.g. :8080")
	storeFlags(cmd)
}
