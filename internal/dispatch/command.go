package dispatch

import "strings"

// Kind classifies a parsed input line.
type Kind int

const (
	// KindNone is any line that triggers no action.
	KindNone Kind = iota
	// KindTopHelp is the bare "?".
	KindTopHelp
	// KindQuit ends the session.
	KindQuit
	// KindNamespaceHelp asks for the verb listing of one namespace.
	KindNamespaceHelp
	// KindVerb runs a protocol verb against a backend.
	KindVerb
)

// Verb is a protocol operation offered by every backend.
type Verb string

const (
	VerbInfo       Verb = "info"
	VerbState      Verb = "state"
	VerbSymbol     Verb = "symbol"
	VerbRead       Verb = "read"
	VerbReadMulti  Verb = "readmulti"
	VerbWrite      Verb = "write"
	VerbWriteMulti Verb = "writemulti"
)

var verbs = map[string]Verb{
	"info":       VerbInfo,
	"state":      VerbState,
	"symbol":     VerbSymbol,
	"read":       VerbRead,
	"readmulti":  VerbReadMulti,
	"write":      VerbWrite,
	"writemulti": VerbWriteMulti,
}

// Command is one parsed line.
type Command struct {
	Kind      Kind
	Namespace string
	Verb      Verb
}

// Parse classifies one line of operator input. Matching is case-sensitive.
// The first word selects the namespace (an alias resolves to its canonical
// name) and the last word selects the verb; a line ending in "?" or "help"
// asks for help instead.
func Parse(line string, namespaces map[string]string) Command {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return Command{Kind: KindNone}
	case "?":
		return Command{Kind: KindTopHelp}
	case "quit":
		return Command{Kind: KindQuit}
	}

	fields := strings.Fields(line)
	ns, ok := namespaces[strings.TrimSuffix(fields[0], "?")]
	if !ok {
		return Command{Kind: KindNone}
	}
	if len(fields) == 1 || strings.HasSuffix(line, "?") || strings.HasSuffix(line, "help") {
		return Command{Kind: KindNamespaceHelp, Namespace: ns}
	}
	verb, ok := verbs[fields[len(fields)-1]]
	if !ok {
		return Command{Kind: KindNone}
	}
	return Command{Kind: KindVerb, Namespace: ns, Verb: verb}
}
