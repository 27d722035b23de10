package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mikko80/node-beckhoff/internal/backend"
	"github.com/mikko80/node-beckhoff/internal/catalog"
	"github.com/mikko80/node-beckhoff/internal/dispatch"
	"github.com/mikko80/node-beckhoff/internal/report"
	"github.com/mikko80/node-beckhoff/internal/settings"
	"github.com/mikko80/node-beckhoff/plcsim"
)

// scriptedInput returns lines one by one, then err.
type scriptedInput struct {
	lines   []string
	err     error
	prompts int
}

func (s *scriptedInput) GetLine(p string) (string, error) {
	s.prompts++
	if len(s.lines) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

// recordingExecutor records lines and quits on "quit".
type recordingExecutor struct {
	lines  []string
	closed int
}

func (r *recordingExecutor) Execute(_ context.Context, line string) dispatch.Status {
	r.lines = append(r.lines, line)
	if line == "quit" {
		return dispatch.Quit
	}
	return dispatch.Continue
}

func (r *recordingExecutor) Close() error {
	r.closed++
	return nil
}

func TestSessionQuit(t *testing.T) {
	in := &scriptedInput{lines: []string{"library info", "quit", "never read"}}
	exec := &recordingExecutor{}
	var out bytes.Buffer

	newSession(in, exec, &out, zerolog.Nop()).run(context.Background())

	if got := strings.Join(exec.lines, "|"); got != "library info|quit" {
		t.Errorf("executed %q, want lines up to quit", got)
	}
	if exec.closed != 1 {
		t.Errorf("Close called %d times, want 1", exec.closed)
	}
	if out.String() != "closing down\n\nBYE BYE !!!\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestSessionEOFCloses(t *testing.T) {
	in := &scriptedInput{lines: []string{"?"}}
	exec := &recordingExecutor{}
	var out bytes.Buffer

	newSession(in, exec, &out, zerolog.Nop()).run(context.Background())

	if exec.closed != 1 {
		t.Errorf("Close called %d times, want 1", exec.closed)
	}
	if strings.Contains(out.String(), "closing down") {
		t.Error("EOF should not print the quit message")
	}
	if !strings.Contains(out.String(), "BYE BYE !!!") {
		t.Errorf("output = %q, want farewell", out.String())
	}
}

func TestSessionInputErrorCloses(t *testing.T) {
	in := &scriptedInput{err: errors.New("terminal gone")}
	exec := &recordingExecutor{}
	newSession(in, exec, io.Discard, zerolog.Nop()).run(context.Background())
	if exec.closed != 1 {
		t.Errorf("Close called %d times, want 1", exec.closed)
	}
}

func TestSessionCloseOnce(t *testing.T) {
	exec := &recordingExecutor{}
	s := newSession(&scriptedInput{lines: []string{"quit"}}, exec, io.Discard, zerolog.Nop())
	s.run(context.Background())
	s.close()
	if exec.closed != 1 {
		t.Errorf("Close called %d times, want 1", exec.closed)
	}
}

func TestSessionPromptsPerCommand(t *testing.T) {
	in := &scriptedInput{lines: []string{"", "nonsense", "?"}}
	newSession(in, &recordingExecutor{}, io.Discard, zerolog.Nop()).run(context.Background())
	if in.prompts != 4 {
		t.Errorf("prompted %d times, want 4", in.prompts)
	}
}

// TestSessionAgainstSimulator drives both backends end to end.
func TestSessionAgainstSimulator(t *testing.T) {
	sim := plcsim.New()
	if err := sim.SetSymbol("MAIN.counter", "DINT", 1); err != nil {
		t.Fatal(err)
	}
	if err := sim.SetSymbol("MAIN.flag", "BOOL", false); err != nil {
		t.Fatal(err)
	}
	if err := sim.Start("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	defer sim.Close()

	cfg := settings.DefaultConfig()
	pointAtSimulator(&cfg, sim)
	cfg.Symbols = settings.Symbols{
		Read:       []catalog.Symbol{{Name: "MAIN.counter"}},
		ReadMulti:  [][]catalog.Symbol{{{Name: "MAIN.counter"}, {Name: "MAIN.flag"}}},
		Write:      []catalog.Symbol{{Name: "MAIN.counter", Value: 42}},
		WriteMulti: [][]catalog.Symbol{{{Name: "MAIN.counter", Value: 5}, {Name: "MAIN.flag", Value: true}}},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	log := zerolog.Nop()
	d := dispatch.New(settings.NewStore(cfg), cfg.Symbols.Catalog(), report.New(&out, log), log,
		backend.NewLibrary(log), backend.NewWrapper(log))

	editor := newPipedEditor(strings.NewReader(strings.Join([]string{
		"adsa info",
		"bkhf state",
		"library write",
		"wrapper read",
		"bkhf writemulti",
		"adsa readmulti",
		"wrapper symbol",
		"quit",
	}, "\n")), io.Discard)

	newSession(editor, d, &out, log).run(context.Background())

	output := out.String()
	for _, want := range []string{
		"command: ADS-API DEVICE INFO",
		`"deviceName":"Plc30 App"`,
		"command: BECKHOFF DEVICE STATE",
		"command: ADS-API WRITE SYMBOL",
		"command: BECKHOFF READ SYMBOL",
		`"value":42`,
		"command: BECKHOFF WRITE MULTIPLE SYMBOL",
		"command: ADS-API READ MULTIPLE SYMBOL",
		"OK - 2",
		"closing down",
		"BYE BYE !!!",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q\n%s", want, output)
		}
	}
	if got := strings.Count(output, "Execution time (hr):"); got != 7 {
		t.Errorf("timing lines = %d, want 7", got)
	}

	if v, _ := sim.Value("MAIN.flag"); v != true {
		t.Errorf("MAIN.flag = %v, want true", v)
	}
}
