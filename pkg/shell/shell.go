// Package shell drives a catlang interpreter from a line stream: an
// interactive prompt on a terminal or a program file run top to bottom.
package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/antibyte/catterm/pkg/catlang"
	"github.com/antibyte/catterm/pkg/logger"

	"golang.org/x/term"
)

// maxLineBytes bounds a single input line.
const maxLineBytes = 1024 * 1024

// Options control how Run reports results.
type Options struct {
	Prompt      string    // written before each line when Interactive
	EchoErrors  bool      // print failed statements
	Strict      bool      // stop at the first failed statement
	Interactive bool      // show the prompt and omit line numbers
	ErrOut      io.Writer // error destination, defaults to the output
}

// Stats counts the statements Run passed to the interpreter.
type Stats struct {
	Executed int
	Failed   int
}

// LineError is returned in strict mode for the statement that stopped the run.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

var errQuit = errors.New("quit")

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Run feeds every line of in to interp. Empty lines are skipped. Lines that
// start with a colon are shell commands (:vars, :quit) and are not counted as
// statements. Statement errors never abort the run unless opts.Strict is set;
// read errors always do.
func Run(in io.Reader, out io.Writer, interp *catlang.Interpreter, opts Options) (Stats, error) {
	var stats Stats
	errOut := opts.ErrOut
	if errOut == nil {
		errOut = out
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	lineNo := 0
	for {
		if opts.Interactive {
			fmt.Fprint(out, opts.Prompt)
		}
		if !scanner.Scan() {
			break
		}
		lineNo++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ":") {
			err := runCommand(line, out, interp)
			if errors.Is(err, errQuit) {
				return stats, nil
			}
			if err != nil {
				report(errOut, opts, lineNo, err)
			}
			continue
		}

		stats.Executed++
		res, err := interp.ExecuteLine(line)
		if err != nil {
			stats.Failed++
			logger.Debug(logger.AreaInterpreter, "line %d: %v", lineNo, err)
			report(errOut, opts, lineNo, err)
			if opts.Strict {
				return stats, &LineError{Line: lineNo, Err: err}
			}
			continue
		}
		if res.HasOutput {
			fmt.Fprintln(out, res.Output)
		}
	}

	if opts.Interactive {
		fmt.Fprintln(out)
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("reading input: %w", err)
	}
	return stats, nil
}

func report(w io.Writer, opts Options, lineNo int, err error) {
	if !opts.EchoErrors {
		return
	}
	if opts.Interactive {
		fmt.Fprintln(w, err)
		return
	}
	fmt.Fprintf(w, "line %d: %v\n", lineNo, err)
}

func runCommand(line string, out io.Writer, interp *catlang.Interpreter) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q":
		return errQuit
	case ":vars":
		printVariables(out, interp)
		return nil
	}
	return fmt.Errorf("unknown command %s", fields[0])
}

func printVariables(out io.Writer, interp *catlang.Interpreter) {
	base := interp.Base()
	for _, name := range interp.Names() {
		value, _ := interp.Lookup(name)
		fmt.Fprintf(out, "%s = %s\n", name, catlang.Format(value, base))
	}
}
