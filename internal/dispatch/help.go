package dispatch

import (
	"fmt"
	"strings"

	"github.com/mikko80/node-beckhoff/internal/backend"
)

const topHelp = `?        -- this help function
library  -- test via the ADS library client (alias: adsa)
            use "library ?" to get more help
wrapper  -- test via the beckhoff wrapper client (alias: bkhf)
            use "wrapper ?" to get more help
quit     -- close this application

`

// verbHelp describes each verb per namespace, in listing order.
var verbHelp = map[string][][2]string{
	backend.NameLibrary: {
		{"?", "library help function"},
		{"help", "library help function"},
		{"info", "get plc info"},
		{"state", "get plc state"},
		{"symbol", "get plc symbol list"},
		{"read", "read the next symbol of the read list"},
		{"readmulti", "read the next group of the readmulti list"},
		{"write", "write the next symbol of the write list"},
		{"writemulti", "write the next group of the writemulti list"},
	},
	backend.NameWrapper: {
		{"?", "beckhoff help function"},
		{"help", "beckhoff help function"},
		{"info", "get plc info"},
		{"state", "get plc state"},
		{"symbol", "get plc symbol list"},
		{"read", "get plc symbol value"},
		{"readmulti", "get multiple plc symbol values"},
		{"write", "write plc symbol value"},
		{"writemulti", "write multiple plc symbol values"},
	},
}

// namespaceHelp renders the verb listing for a namespace.
func namespaceHelp(ns string) string {
	var b strings.Builder
	for _, e := range verbHelp[ns] {
		fmt.Fprintf(&b, "%-20s -- %s\n", ns+" "+e[0], e[1])
	}
	return b.String()
}

// banners names each verb in the "command:" line printed before it runs.
var banners = map[Verb]string{
	VerbInfo:       "DEVICE INFO",
	VerbState:      "DEVICE STATE",
	VerbSymbol:     "SYMBOL LIST",
	VerbRead:       "READ SYMBOL",
	VerbReadMulti:  "READ MULTIPLE SYMBOL",
	VerbWrite:      "WRITE SYMBOL",
	VerbWriteMulti: "WRITE MULTIPLE SYMBOL",
}

var bannerPrefix = map[string]string{
	backend.NameLibrary: "ADS-API",
	backend.NameWrapper: "BECKHOFF",
}

func banner(ns string, v Verb) string {
	return bannerPrefix[ns] + " " + banners[v]
}
