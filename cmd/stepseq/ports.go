package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-stepseq/midi"
	"go-stepseq/sequencer"
)

// portTimeout bounds driver calls; CoreMIDI can hang
const portTimeout = 3 * time.Second

// discard is the output used without a MIDI port
func discard(gomidi.Message) error { return nil }

// openOutput opens the named port (first port if empty)
func openOutput(name string) (midi.SendFunc, error) {
	send, err := midi.OpenOut(name, portTimeout)
	if err != nil {
		if errors.Is(err, midi.ErrPortTimeout) {
			return nil, fmt.Errorf("%w (fix: sudo killall coreaudiod midiserver)", err)
		}
		return nil, err
	}
	return send, nil
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI output ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer midi.CloseDriver()

		names, err := midi.OutPorts(portTimeout)
		if err != nil {
			return err
		}
		fmt.Println("=== MIDI Output Ports ===")
		if len(names) == 0 {
			fmt.Println("  (none)")
		}
		for i, name := range names {
			fmt.Printf("  %d: %s\n", i, name)
		}

		if test, _ := cmd.Flags().GetBool("test"); test {
			port, _ := cmd.Flags().GetString("port")
			return testNote(port)
		}
		return nil
	},
}

// testNote plays middle C on channel 1 of the named port
func testNote(port string) error {
	send, err := openOutput(port)
	if err != nil {
		return err
	}
	exec := midi.NewExecutor(send, midi.WithGate(300*time.Millisecond))
	fmt.Printf("\nplaying C4 on %q...\n", port)
	if err := exec.Execute(sequencer.Trigger[midi.Params]{Parameters: midi.DefaultParams()}); err != nil {
		return err
	}
	time.Sleep(400 * time.Millisecond)
	exec.Flush()
	return nil
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().Bool("test", false, "Play a test note")
	portsCmd.Flags().String("port", "", "Port for --test (default first port)")
}
