// Command stm32emu runs one emulation session from a YAML configuration
// file: it loads the config, builds the memory map and peripheral set,
// and drives the CPU until a stop condition is reached.
package main

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/kvasari/stm32emu/config"
	"github.com/kvasari/stm32emu/cpuengine/armemu"
	"github.com/kvasari/stm32emu/errors"
	"github.com/kvasari/stm32emu/hardware/system"
	"github.com/kvasari/stm32emu/logger"
	"github.com/kvasari/stm32emu/modalflag"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	var args modalflag.Args
	args.Output = os.Stdout
	args.NewArgs(argv)

	v1 := args.AddBool("v", false, "increase log verbosity (WARN->INFO)")
	v2 := args.AddBool("vv", false, "increase log verbosity (WARN->DEBUG)")
	v3 := args.AddBool("vvv", false, "increase log verbosity (WARN->TRACE)")
	v4 := args.AddBool("vvvv", false, "increase log verbosity (WARN->TRACE, incl. instruction trace)")
	busyLoopStop := args.AddBool("busy-loop-stop", false, "stop when the program counter executes a self-branch (b .)")
	color := args.AddString("color", "auto", "colorize log output: auto, always, never")

	p, err := args.Parse()
	switch p {
	case modalflag.ParseHelp:
		return 0
	case modalflag.ParseError:
		fmt.Fprintf(os.Stderr, "stm32emu: %v\n", err)
		return 1
	}

	if args.GetArg(0) == "" {
		fmt.Fprintln(os.Stderr, "stm32emu: configuration file required")
		return 1
	}

	logger.SetLevel(logger.LevelFromVerbosity(verbosityCount(*v1, *v2, *v3, *v4)))
	logger.SetOutput(logger.NewColorizer(os.Stderr, writeStyle(*color)))

	return runConfig(args.GetArg(0), *busyLoopStop)
}

func verbosityCount(v1, v2, v3, v4 bool) int {
	switch {
	case v4:
		return 4
	case v3:
		return 3
	case v2:
		return 2
	case v1:
		return 1
	default:
		return 0
	}
}

func writeStyle(color string) logger.WriteStyle {
	switch color {
	case "always":
		return logger.Always
	case "never":
		return logger.Never
	default:
		if term.IsTerminal(int(os.Stderr.Fd())) {
			return logger.Always
		}
		return logger.Never
	}
}

func runConfig(path string, busyLoopStop bool) int {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stm32emu: %v\n", err)
		return 1
	}

	engine, err := armemu.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stm32emu: %v\n", err)
		return 3
	}

	sys, err := system.Build(cfg, engine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stm32emu: %v\n", err)
		return exitCodeFor(err)
	}
	defer sys.Close()

	logger.SetCounters(sys.Counters)
	logger.Info(logger.Allow, "stm32emu: configuration %s loaded, starting run", path)

	if err := sys.Run(busyLoopStop); err != nil {
		fmt.Fprintf(os.Stderr, "stm32emu: %v\n", err)
		return exitCodeFor(err)
	}

	logger.Info(logger.Allow, "stm32emu: Emulation stop")
	return 0
}

// exitCodeFor maps a fatal EmulatorError to the exit code it belongs to.
// Errors that reach here but aren't EmulatorError (a wrapped engine.MMIOMap
// failure, say) are treated as configuration errors, matching the fact
// that MMIOMap only fails on a malformed region from the config file.
func exitCodeFor(err error) int {
	ee, ok := err.(errors.EmulatorError)
	if !ok {
		return 1
	}
	switch ee.Errno {
	case errors.ImageFileCannotOpen, errors.ImageTooLargeForRegion:
		return 2
	case errors.EngineFault, errors.EngineUnimplementedInstruction:
		return 3
	default:
		return 1
	}
}
