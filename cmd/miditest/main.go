// miditest checks MIDI wiring outside the sequencer: port listing, note
// output, controller hot-plug and Launchpad LEDs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"tonegrid/audio"
	"tonegrid/midi"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch os.Args[1] {
	case "list":
		listPorts()
	case "scale":
		err = playScale(os.Args[2:])
	case "devices":
		err = watchDevices()
	default:
		usage()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                  - List all MIDI ports")
	fmt.Println("  scale <port> [ch]     - Play the pentatonic scale on an output port")
	fmt.Println("  devices               - Watch controllers connect; light Launchpad pads")
}

func listPorts() {
	fmt.Println("=== MIDI Input Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	type result struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan result, 1)
	go func() {
		ch <- result{ins: gomidi.GetInPorts(), outs: gomidi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		for i, p := range r.ins {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
		fmt.Println("\n=== MIDI Output Ports ===")
		for i, p := range r.outs {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
	case <-time.After(3 * time.Second):
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
	}
}

func playScale(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("scale needs an output port name")
	}
	channel := 1
	if len(args) > 1 {
		c, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("channel %q: %w", args[1], err)
		}
		channel = c
	}

	out, err := midi.OpenOutput(args[0], channel)
	if err != nil {
		return err
	}
	defer out.Close()

	// lowest row first
	scale := audio.Pentatonic(16, 3)
	for i := len(scale) - 1; i >= 0; i-- {
		n, err := scale[i].MIDI()
		if err != nil {
			return err
		}
		fmt.Printf("  %-4s %d\n", scale[i], n)
		out.PlayNote(uint8(n), 100, 200*time.Millisecond)
		time.Sleep(250 * time.Millisecond)
	}
	return nil
}

func watchDevices() error {
	fmt.Println("Watching for controllers. Connect/disconnect to test. Ctrl+C to exit.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dm := midi.NewDeviceManager(nil)
	go dm.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			summarize(dm)
			return nil
		case ev := <-dm.Events():
			stamp := time.Now().Format("15:04:05")
			if ev.Type == midi.DeviceDisconnected {
				fmt.Printf("[%s] disconnected %s\n", stamp, ev.ID)
				continue
			}
			fmt.Printf("[%s] connected %s\n", stamp, ev.ID)
			if ev.Controller.Type() == midi.ControllerLaunchpad {
				if err := lightDiagonal(ev.Controller); err != nil {
					fmt.Printf("  LEDs: %v\n", err)
				}
			}
		}
	}
}

func summarize(dm *midi.DeviceManager) {
	fmt.Printf("\n%d controllers connected\n", len(dm.Controllers()))
	if lp := dm.First(midi.ControllerLaunchpad); lp != nil {
		fmt.Printf("  launchpad: %s\n", lp.ID())
	}
	if kb := dm.First(midi.ControllerKeyboard); kb != nil {
		fmt.Printf("  keyboard:  %s\n", kb.ID())
	}
}

// lightDiagonal paints the 8x8 diagonal so pad orientation can be checked
func lightDiagonal(c midi.Controller) error {
	var updates []midi.LEDUpdate
	for i := 0; i < 8; i++ {
		updates = append(updates, midi.LEDUpdate{Row: i, Col: i, Color: [3]uint8{0, 255, 0}})
	}
	return c.SetLEDBatch(updates)
}
