// =============================================================================
// repl.go - Session Loop
// =============================================================================
//
// Prompts for one command at a time and hands it to the dispatcher. The next
// prompt appears only after the previous command has reported its result.
// The loop ends on "quit" or end of input; either way the backends are
// released once and the process exits successfully.
//
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mikko80/node-beckhoff/internal/dispatch"
)

// prompt is shown before every command.
const prompt = "beckhoff ADS/AMS command to test (? for help)  "

// lineSource supplies operator input.
type lineSource interface {
	GetLine(prompt string) (string, error)
}

// executor runs one command line.
type executor interface {
	Execute(ctx context.Context, line string) dispatch.Status
	Close() error
}

// session ties the input source to the dispatcher.
type session struct {
	in        lineSource
	exec      executor
	out       io.Writer
	log       zerolog.Logger
	closeOnce sync.Once
}

func newSession(in lineSource, exec executor, out io.Writer, logger zerolog.Logger) *session {
	return &session{in: in, exec: exec, out: out, log: logger}
}

// run loops until quit or end of input, then closes the session.
func (s *session) run(ctx context.Context) {
	for {
		line, err := s.in.GetLine(prompt)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Error().Err(err).Msg("read input")
			}
			break
		}
		if s.exec.Execute(ctx, line) == dispatch.Quit {
			fmt.Fprintln(s.out, "closing down")
			break
		}
	}
	s.close()
}

// close releases the backends and says goodbye. Only the first call has
// any effect, so the signal handler and the loop may both call it.
func (s *session) close() {
	s.closeOnce.Do(func() {
		fmt.Fprintln(s.out, "\nBYE BYE !!!")
		if err := s.exec.Close(); err != nil {
			s.log.Warn().Err(err).Msg("close backends")
		}
	})
}
