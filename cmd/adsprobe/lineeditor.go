// =============================================================================
// lineeditor.go - Line Editor with Dual-Mode Operation
// =============================================================================
//
// Reads operator commands. When stdin is a terminal the editor uses
// ergochat/readline for Emacs keybindings, persistent history and Ctrl-R
// search. When stdin is piped (scripts, Emacs comint) it falls back to a
// bufio.Scanner and prints the prompt itself.
//
// History lives in ~/.adsprobe_history, capped at 500 entries.
//
// =============================================================================

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"golang.org/x/term"
)

const (
	// historyFileName is the history file in the user's home directory.
	historyFileName = ".adsprobe_history"

	// historySize is the maximum number of history entries to retain.
	historySize = 500
)

// LineEditor wraps line input with dual-mode operation.
type LineEditor struct {
	// interactive is true when stdin is a TTY and readline is in use.
	interactive bool

	// rl is the readline instance; nil in non-interactive mode.
	rl *readline.Instance

	// scanner reads piped input; nil in interactive mode.
	scanner *bufio.Scanner

	// out receives the prompt in non-interactive mode.
	out io.Writer
}

// NewLineEditor creates a LineEditor, detecting whether stdin is a terminal.
// Under Emacs (INSIDE_EMACS set) the editor is always non-interactive
// because Emacs does its own line editing.
func NewLineEditor() *LineEditor {
	isInteractive := term.IsTerminal(int(os.Stdin.Fd())) &&
		os.Getenv("INSIDE_EMACS") == ""

	if !isInteractive {
		return newPipedEditor(os.Stdin, os.Stdout)
	}

	rl, err := readline.NewFromConfig(&readline.Config{
		HistoryFile:  filepath.Join(homeDir(), historyFileName),
		HistoryLimit: historySize,
		// Only non-empty lines are saved, see getInteractiveLine.
		DisableAutoSaveHistory: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: readline init failed (%v), using basic input\n", err)
		return newPipedEditor(os.Stdin, os.Stdout)
	}

	return &LineEditor{interactive: true, rl: rl, out: os.Stdout}
}

// newPipedEditor creates a non-interactive editor over in.
func newPipedEditor(in io.Reader, out io.Writer) *LineEditor {
	return &LineEditor{
		interactive: false,
		scanner:     bufio.NewScanner(in),
		out:         out,
	}
}

// GetLine reads one line with the given prompt. It returns io.EOF on
// Ctrl-D, Ctrl-C or when piped input is exhausted.
func (le *LineEditor) GetLine(prompt string) (string, error) {
	if le.interactive {
		return le.getInteractiveLine(prompt)
	}
	return le.getNonInteractiveLine(prompt)
}

func (le *LineEditor) getInteractiveLine(prompt string) (string, error) {
	le.rl.SetPrompt(prompt)

	line, err := le.rl.Readline()
	if err != nil {
		if err == readline.ErrInterrupt {
			return "", io.EOF
		}
		return "", err
	}

	if trimmed := strings.TrimSpace(line); trimmed != "" {
		le.rl.SaveToHistory(trimmed)
	}
	return line, nil
}

func (le *LineEditor) getNonInteractiveLine(prompt string) (string, error) {
	fmt.Fprint(le.out, prompt)

	if !le.scanner.Scan() {
		if err := le.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return le.scanner.Text(), nil
}

// Close saves history and releases the terminal. Safe to call twice.
func (le *LineEditor) Close() {
	if le.rl != nil {
		le.rl.Close()
		le.rl = nil
	}
}

// IsInteractive reports whether readline is in use.
func (le *LineEditor) IsInteractive() bool {
	return le.interactive
}

// homeDir returns the user's home directory, or "." if unknown.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
