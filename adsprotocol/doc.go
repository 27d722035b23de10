// Package adsprotocol implements the ADS protocol over AMS/TCP as used by
// Beckhoff TwinCAT controllers, together with a callback-style client.
//
// # Wire Format
//
// Every packet is an AMS/TCP header followed by an AMS header and the ADS
// payload, all little endian:
//
//	AMS/TCP header:  reserved(2) length(4)
//	AMS header:      target netid(6) port(2) source netid(6) port(2)
//	                 command(2) state flags(2) data length(4)
//	                 error code(4) invoke id(4)
//	ADS payload:     command specific
//
// Symbolic access goes through the index groups SYM_INFOBYNAMEEX (resolve a
// name to index group, offset, size and type), SYM_UPLOADINFO and
// SYM_UPLOAD (the whole symbol table), and the sum-up groups for reading or
// writing several variables in one round trip.
//
// # Basic Usage
//
// Operations complete through callbacks. Background transport problems are
// delivered to the handlers registered with OnError and OnTimeout:
//
//	client := adsprotocol.NewClient(adsprotocol.Options{
//	    Host:   "192.168.1.10",
//	    Target: adsprotocol.Addr{NetID: adsprotocol.MustParseNetID("192.168.1.10.1.1"), Port: 851},
//	    Source: adsprotocol.Addr{NetID: adsprotocol.MustParseNetID("192.168.1.20.1.1"), Port: 32905},
//	})
//	client.OnError(func(err error) { log.Println("error:", err) })
//	client.OnTimeout(func(err error) { log.Println("timeout:", err) })
//	client.Connect(func() {
//	    client.Read(adsprotocol.SymbolRequest{SymName: "MAIN.counter"}, func(r adsprotocol.SymbolRequest, err error) {
//	        fmt.Println(r.Value, err)
//	    })
//	})
//
// # Values
//
// Elementary PLC types are converted by EncodeValue and DecodeValue. Reads
// surface bool, int64, uint64, float64 or string.
//
// # Errors
//
// Device return codes surface as *AdsError, transport failures as
// *ConnectionError, malformed data as *ParseError and failed sum-up batches
// as one aggregate *SumError. Requests that outlive Options.Timeout settle
// with an error wrapping ErrTimeout.
package adsprotocol
