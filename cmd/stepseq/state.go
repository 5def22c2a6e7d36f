package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"go-stepseq/store"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or clear saved sequencer state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		states, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		st, err := states.Load(cmd.Context(), cfg.Store.Key)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		codec, err := store.CodecByName(format)
		if err != nil {
			return err
		}
		data, err := codec.Marshal(st)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved state keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		states, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		keys, err := states.Keys(cmd.Context())
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	},
}

var stateClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the saved state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		states, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := states.Delete(cmd.Context(), cfg.Store.Key); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %q\n", cfg.Store.Key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd, stateListCmd, stateClearCmd)
	for _, c := range []*cobra.Command{stateShowCmd, stateListCmd, stateClearCmd} {
		storeFlags(c)
	}
	stateShowCmd.Flags().String("format", "json", "Output format: json or yaml")
}
