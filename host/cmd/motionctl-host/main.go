// Command motionctl-host is a bench console for the firmware: it opens a
// serial link, lets an operator type commands interactively, and can
// replay a saved sequence program from a text file.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"motionctl/engine"
	"motionctl/host/mcu"
	"motionctl/host/serial"
)

var (
	device    = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud      = flag.Int("baud", 115200, "Baud rate (ignored for USB CDC)")
	verbose   = flag.Bool("verbose", false, "Enable verbose output")
	presetDir = flag.String("preset-dir", "./presets", "Directory the console stores saved presets in")
)

func main() {
	flag.Parse()

	fmt.Println("motionctl host console")
	fmt.Println("=======================")

	conn := mcu.NewMCU()
	store := engine.NewFileStore(*presetDir)

	fmt.Printf("Connecting to %s...\n", *device)
	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud
	if err := conn.ConnectWithConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Println("Connected.")

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]

		switch cmd {
		case "quit", "exit", "q":
			fmt.Println("Goodbye!")
			return

		case "help", "?":
			printHelp()

		case "status":
			status, err := conn.GetStatus()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			fmt.Printf("state=%s movement=%s pos=%.2fmm max=%.2fmm total=%.2fmm\n",
				status.State, status.Movement, status.PositionMM, status.MaxDistanceMM, status.TotalMM)

		case "seq_import":
			if len(parts) < 2 {
				fmt.Println("usage: seq_import <path>")
				continue
			}
			if err := importSequence(conn, parts[1]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "save_preset":
			if len(parts) < 3 {
				fmt.Println("usage: save_preset <name> <simple|osc|chaos> [key=val ...]")
				continue
			}
			if err := savePreset(store, parts[1], parts[2], parts[3:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "list_presets":
			if err := listPresets(store); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "delete_preset":
			if len(parts) < 2 {
				fmt.Println("usage: delete_preset <id>")
				continue
			}
			id, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: bad id %q\n", parts[1])
				continue
			}
			if err := engine.DeletePlaylist(store, id); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		default:
			if err := sendRaw(conn, line); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  status                  - Print the firmware's current status")
	fmt.Println("  seq_import <path>       - Replay a saved sequence program")
	fmt.Println("  save_preset <name> <simple|osc|chaos> [key=val ...] - Save a config preset to disk")
	fmt.Println("  list_presets            - List saved presets")
	fmt.Println("  delete_preset <id>      - Delete a saved preset")
	fmt.Println("  <TAG> key=val ...       - Send any raw command tag (e.g. START dist=50 speed=5)")
	fmt.Println("  quit/exit/q             - Exit the console")
	fmt.Println()
}

// sendRaw forwards a typed line verbatim as a command, parsing key=val
// tokens into the float map the firmware's line protocol expects.
func sendRaw(conn *mcu.MCU, line string) error {
	fields := strings.Fields(line)
	tag := fields[0]
	args := make(map[string]float64, len(fields)-1)
	for _, tok := range fields[1:] {
		kv := strings.SplitN(tok, "=", 2)
		if len(kv) != 2 {
			continue
		}
		v, err := strconv.ParseFloat(kv[1], 64)
		if err != nil {
			return fmt.Errorf("bad value %q: %w", tok, err)
		}
		args[kv[0]] = v
	}
	if *verbose {
		fmt.Printf("-> %s %v\n", tag, args)
	}
	return conn.SendCommand(tag, args)
}

// presetMode maps the console's short mode names onto engine.PlaylistMode.
func presetMode(name string) (engine.PlaylistMode, error) {
	switch name {
	case "simple":
		return engine.PlaylistSimple, nil
	case "osc":
		return engine.PlaylistOscillation, nil
	case "chaos":
		return engine.PlaylistChaos, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want simple|osc|chaos)", name)
	}
}

// savePreset stores a named config preset under the host's preset
// directory. Trailing key=val tokens become the preset's ConfigJSON, the
// same way sendRaw builds a command's argument map.
func savePreset(store *engine.FileStore, name, modeName string, kvArgs []string) error {
	mode, err := presetMode(modeName)
	if err != nil {
		return err
	}

	args := make(map[string]float64, len(kvArgs))
	for _, tok := range kvArgs {
		kv := strings.SplitN(tok, "=", 2)
		if len(kv) != 2 {
			continue
		}
		v, err := strconv.ParseFloat(kv[1], 64)
		if err != nil {
			return fmt.Errorf("bad value %q: %w", tok, err)
		}
		args[kv[0]] = v
	}
	configJSON, err := json.Marshal(args)
	if err != nil {
		return err
	}

	preset := engine.PlaylistPreset{
		Name:       name,
		Mode:       mode,
		Timestamp:  time.Now().Unix(),
		ConfigJSON: string(configJSON),
	}
	if err := engine.SavePlaylist(store, preset); err != nil {
		return err
	}
	fmt.Printf("saved preset %q\n", name)
	return nil
}

func listPresets(store *engine.FileStore) error {
	presets, err := engine.LoadPlaylists(store)
	if err != nil {
		return err
	}
	if len(presets) == 0 {
		fmt.Println("no saved presets")
		return nil
	}
	for _, p := range presets {
		fmt.Printf("  [%d] %-20s mode=%d config=%s\n", p.ID, p.Name, p.Mode, p.ConfigJSON)
	}
	return nil
}

// importSequence reads one command per line from a saved program file,
// skipping blank lines and lines starting with '#', tokenizing each with
// shlex so an operator can quote values, and sends each line through
// sendRaw under the command name it starts with.
func importSequence(conn *mcu.MCU, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	for i, rawLine := range strings.Split(string(data), "\n") {
		rawLine = strings.TrimSpace(rawLine)
		if rawLine == "" || strings.HasPrefix(rawLine, "#") {
			continue
		}
		tokens, err := shlex.Split(rawLine)
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		if len(tokens) == 0 {
			continue
		}
		if err := sendRaw(conn, strings.Join(tokens, " ")); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	return nil
}
