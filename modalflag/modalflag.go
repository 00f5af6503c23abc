// Package modalflag wraps the standard library's flag package with the
// Output/help-buffering idiom the original tool used for its many
// sub-modes (run/debug/test/...). This emulator only ever runs in one
// mode, so the sub-mode machinery is dropped; what is kept is the
// flag.ContinueOnError plus buffered-help plumbing, since flag.ExitOnError
// would call os.Exit from inside Parse and make exit-code selection the
// caller's business impossible to test.
package modalflag

import (
	"flag"
	"io"
)

// Args holds the flag set for one command's arguments.
type Args struct {
	// Output receives usage/help text. Defaults to nothing written if left
	// nil -- set it to os.Stdout (or os.Stderr) before calling Parse.
	Output io.Writer

	flags   *flag.FlagSet
	args    []string
	parsed  bool
}

// NewArgs prepares Args to parse the given argument list (typically
// os.Args[1:]).
func (a *Args) NewArgs(args []string) {
	a.args = args
	a.flags = flag.NewFlagSet("", flag.ContinueOnError)
	a.parsed = false
}

// ParseResult is returned from Parse.
type ParseResult int

const (
	// ParseContinue means flags were parsed with no error; the caller
	// should proceed to inspect RemainingArgs/GetArg.
	ParseContinue ParseResult = iota
	// ParseHelp means -h/-help was requested; the usage message has
	// already been written to Output.
	ParseHelp
	// ParseError means flag parsing failed; err carries the reason.
	ParseError
)

// AddBool registers a boolean flag.
func (a *Args) AddBool(name string, value bool, usage string) *bool {
	return a.flags.Bool(name, value, usage)
}

// AddString registers a string flag.
func (a *Args) AddString(name string, value string, usage string) *string {
	return a.flags.String(name, value, usage)
}

// Parse processes the argument list supplied to NewArgs.
func (a *Args) Parse() (ParseResult, error) {
	a.parsed = true

	hw := &helpWriter{}
	a.flags.SetOutput(hw)

	if err := a.flags.Parse(a.args); err != nil {
		if err == flag.ErrHelp {
			hw.Help(a.Output)
			return ParseHelp, nil
		}
		return ParseError, err
	}
	return ParseContinue, nil
}

// Parsed reports whether Parse has been called since the last NewArgs.
func (a *Args) Parsed() bool { return a.parsed }

// RemainingArgs returns whatever wasn't consumed as a flag.
func (a *Args) RemainingArgs() []string { return a.flags.Args() }

// GetArg returns the i'th non-flag argument.
func (a *Args) GetArg(i int) string { return a.flags.Arg(i) }

// helpWriter buffers flag.FlagSet's usage output so it can be replayed
// through Args.Output with a consistent banner, matching the way the
// original tool amended flag's own "Usage of ...:" preamble.
type helpWriter struct {
	buffer []byte
}

func (hw *helpWriter) Write(p []byte) (int, error) {
	hw.buffer = append(hw.buffer, p...)
	return len(p), nil
}

func (hw *helpWriter) Help(output io.Writer) {
	if output == nil {
		return
	}
	output.Write(hw.buffer)
}
