package adsprotocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrorHandler is called when the transport fails outside of any request,
// for example when the connection cannot be established or is reset.
type ErrorHandler func(err error)

// TimeoutHandler is called when a request or the connection attempt
// exceeds the configured timeout.
type TimeoutHandler func(err error)

// Options configures a Client. Zero values fall back to protocol defaults.
type Options struct {
	// Host is the IP address or host name of the AMS router.
	Host string
	// Port is the TCP port of the AMS router (DefaultTCPPort if zero).
	Port int
	// Target is the logical endpoint requests are addressed to.
	Target Addr
	// Source is the logical endpoint requests originate from.
	Source Addr
	// Timeout bounds every request (DefaultTimeout if zero).
	Timeout time.Duration
	// Verbose enables request logging at 1 and frame dumps at 2.
	Verbose int
	// Logger receives diagnostics; nil discards them.
	Logger *zerolog.Logger
}

// Client is a callback-style ADS client over a single TCP connection.
//
// Every operation returns immediately and reports its outcome exactly once
// through the supplied callback. Callbacks run on the connection's reader
// goroutine (or synchronously when the client is not connected), so they
// must not block for long. Transport failures that are not tied to a
// request are reported through OnError, and expirations additionally
// through OnTimeout.
//
// Thread Safety:
// The client is safe for concurrent use; several requests may be in flight
// and are matched to responses by invoke ID.
type Client struct {
	mu      sync.Mutex
	writeMu sync.Mutex

	opts Options
	log  zerolog.Logger

	conn        net.Conn
	isConnected bool
	readerDone  chan struct{}

	pending  map[uint32]*pendingRequest
	invokeID atomic.Uint32

	errorHandler   ErrorHandler
	timeoutHandler TimeoutHandler
}

type pendingRequest struct {
	cmd   CommandID
	timer *time.Timer
	done  func(Frame, error)
}

// NewClient creates an unconnected client.
func NewClient(opts Options) *Client {
	if opts.Port == 0 {
		opts.Port = DefaultTCPPort
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		opts:    opts,
		log:     logger.With().Str("component", "ads").Str("target", opts.Target.String()).Logger(),
		pending: make(map[uint32]*pendingRequest),
	}
}

// Options returns the options the client was created with.
func (c *Client) Options() Options {
	return c.opts
}

// OnError registers the background error handler.
func (c *Client) OnError(handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorHandler = handler
}

// OnTimeout registers the timeout handler.
func (c *Client) OnTimeout(handler TimeoutHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeoutHandler = handler
}

// IsConnected returns whether the client currently holds a connection.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected
}

// Connect dials the router in the background and calls ready once the
// connection is up. A failed dial is reported to the error handler, or to
// the timeout handler when it ran out of time; ready is not called then.
func (c *Client) Connect(ready func()) {
	go func() {
		if err := c.ConnectWithContext(context.Background()); err != nil {
			if errors.Is(err, ErrTimeout) {
				c.emitTimeout(err)
			} else {
				c.emitError(err)
			}
			return
		}
		if ready != nil {
			ready()
		}
	}()
}

// ConnectWithContext dials the router and starts the reader goroutine.
func (c *Client) ConnectWithContext(ctx context.Context) error {
	c.mu.Lock()
	if c.isConnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	dialTimeout := ConnectionTimeout
	if c.opts.Timeout < dialTimeout {
		dialTimeout = c.opts.Timeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	addr := net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			return NewConnectionError("dial "+addr, ErrTimeout)
		}
		return NewConnectionError("dial "+addr, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.isConnected = true
	c.readerDone = make(chan struct{})
	done := c.readerDone
	c.mu.Unlock()

	go c.readerLoop(conn, done)

	c.log.Debug().Str("addr", addr).Str("source", c.opts.Source.String()).Msg("connected")
	return nil
}

// Close drops the connection. Pending requests settle with ErrClosed.
// Closing an unconnected client is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.isConnected {
		c.mu.Unlock()
		return nil
	}
	c.isConnected = false
	conn := c.conn
	done := c.readerDone
	pending := c.takeAllLocked()
	c.conn = nil
	c.mu.Unlock()

	err := conn.Close()
	<-done

	for _, p := range pending {
		p.timer.Stop()
		p.done(Frame{}, ErrClosed)
	}
	c.log.Debug().Msg("closed")
	return err
}

// ReadDeviceInfo reads the name and version of the target runtime.
func (c *Client) ReadDeviceInfo(cb func(DeviceInfo, error)) {
	c.request(CmdReadDeviceInfo, nil, func(f Frame, err error) {
		if err != nil {
			cb(DeviceInfo{}, err)
			return
		}
		cb(ParseDeviceInfoResponse(f.Data))
	})
}

// ReadState reads the ADS and device state of the target.
func (c *Client) ReadState(cb func(StateInfo, error)) {
	c.request(CmdReadState, nil, func(f Frame, err error) {
		if err != nil {
			cb(StateInfo{}, err)
			return
		}
		cb(ParseStateResponse(f.Data))
	})
}

// RawRead reads length bytes at the given index group and offset.
func (c *Client) RawRead(group, offset, length uint32, cb func([]byte, error)) {
	req := ReadRequest{IndexGroup: group, IndexOffset: offset, Length: length}
	c.request(CmdRead, req.Marshal(), func(f Frame, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(ParseReadResponse(f.Data))
	})
}

// RawWrite writes data at the given index group and offset.
func (c *Client) RawWrite(group, offset uint32, data []byte, cb func(error)) {
	req := WriteRequest{IndexGroup: group, IndexOffset: offset, Data: data}
	c.request(CmdWrite, req.Marshal(), func(f Frame, err error) {
		if err != nil {
			cb(err)
			return
		}
		cb(ParseWriteResponse(f.Data))
	})
}

// RawReadWrite writes data and reads up to readLength bytes in one service.
func (c *Client) RawReadWrite(group, offset, readLength uint32, data []byte, cb func([]byte, error)) {
	req := ReadWriteRequest{IndexGroup: group, IndexOffset: offset, ReadLength: readLength, Data: data}
	c.request(CmdReadWrite, req.Marshal(), func(f Frame, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(ParseReadResponse(f.Data))
	})
}

// ReadSymbolInfo resolves a symbol name to its table entry.
func (c *Client) ReadSymbolInfo(name string, cb func(SymbolInfo, error)) {
	c.RawReadWrite(IndexGroupSymbolInfoByNameEx, 0, symbolInfoReadLength, append([]byte(name), 0), func(data []byte, err error) {
		if err != nil {
			cb(SymbolInfo{}, fmt.Errorf("resolve %s: %w", name, err))
			return
		}
		info, _, err := ParseSymbolInfo(data)
		cb(info, err)
	})
}

// GetSymbols uploads the complete symbol table of the target.
func (c *Client) GetSymbols(cb func([]SymbolInfo, error)) {
	c.RawRead(IndexGroupSymbolUploadInfo, 0, 8, func(data []byte, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		upload, err := ParseUploadInfo(data)
		if err != nil {
			cb(nil, err)
			return
		}
		c.RawRead(IndexGroupSymbolUpload, 0, upload.SymbolLength, func(data []byte, err error) {
			if err != nil {
				cb(nil, err)
				return
			}
			cb(ParseSymbolTable(data, int(upload.SymbolCount)))
		})
	})
}

// ReadSymbol reads and decodes the value of a resolved symbol.
func (c *Client) ReadSymbol(info SymbolInfo, cb func(any, error)) {
	c.RawRead(info.IndexGroup, info.IndexOffset, info.Size, func(data []byte, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(DecodeValue(info.Type, data))
	})
}

// WriteSymbol encodes and writes a value to a resolved symbol.
func (c *Client) WriteSymbol(info SymbolInfo, value any, cb func(error)) {
	data, err := EncodeValue(info.Type, info.Size, value)
	if err != nil {
		cb(fmt.Errorf("encode %s: %w", info.Name, err))
		return
	}
	c.RawWrite(info.IndexGroup, info.IndexOffset, data, cb)
}

// SumRead reads several resolved symbols with one sum-up request. Any item
// failure is reported as a single *SumError.
func (c *Client) SumRead(infos []SymbolInfo, cb func([]any, error)) {
	if len(infos) == 0 {
		cb(nil, nil)
		return
	}
	items := make([]SumItem, len(infos))
	readLength := uint32(4 * len(infos))
	for i, info := range infos {
		items[i] = SumItem{IndexGroup: info.IndexGroup, IndexOffset: info.IndexOffset, Length: info.Size}
		readLength += info.Size
	}
	c.RawReadWrite(IndexGroupSumRead, uint32(len(infos)), readLength, MarshalSumItems(items), func(data []byte, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		if err := parseSumResults(data, len(infos)); err != nil {
			cb(nil, err)
			return
		}
		values := make([]any, len(infos))
		off := 4 * len(infos)
		for i, info := range infos {
			end := off + int(info.Size)
			if end > len(data) {
				cb(nil, newShortPayloadError("sum read data", end, len(data)))
				return
			}
			v, err := DecodeValue(info.Type, data[off:end])
			if err != nil {
				cb(nil, &SumError{Total: len(infos), Failed: 1, First: err})
				return
			}
			values[i] = v
			off = end
		}
		cb(values, nil)
	})
}

// SumWrite writes several resolved symbols with one sum-up request. Any
// item failure is reported as a single *SumError.
func (c *Client) SumWrite(infos []SymbolInfo, values []any, cb func(error)) {
	if len(infos) != len(values) {
		cb(newUnexpectedResponseError(fmt.Sprintf("%d symbols but %d values", len(infos), len(values))))
		return
	}
	if len(infos) == 0 {
		cb(nil)
		return
	}
	items := make([]SumItem, len(infos))
	var payload []byte
	for i, info := range infos {
		data, err := EncodeValue(info.Type, info.Size, values[i])
		if err != nil {
			cb(&SumError{Total: len(infos), Failed: 1, First: fmt.Errorf("encode %s: %w", info.Name, err)})
			return
		}
		items[i] = SumItem{IndexGroup: info.IndexGroup, IndexOffset: info.IndexOffset, Length: uint32(len(data))}
		payload = append(payload, data...)
	}
	req := append(MarshalSumItems(items), payload...)
	c.RawReadWrite(IndexGroupSumWrite, uint32(len(infos)), uint32(4*len(infos)), req, func(data []byte, err error) {
		if err != nil {
			cb(err)
			return
		}
		cb(parseSumResults(data, len(infos)))
	})
}

// Read resolves req.SymName and returns req with Value, Type and Size filled.
func (c *Client) Read(req SymbolRequest, cb func(SymbolRequest, error)) {
	c.ReadSymbolInfo(req.SymName, func(info SymbolInfo, err error) {
		if err != nil {
			cb(req, err)
			return
		}
		c.ReadSymbol(info, func(v any, err error) {
			if err != nil {
				cb(req, err)
				return
			}
			req.Value, req.Type, req.Size = v, info.Type, info.Size
			cb(req, nil)
		})
	})
}

// Write resolves req.SymName and writes req.Value to it.
func (c *Client) Write(req SymbolRequest, cb func(SymbolRequest, error)) {
	c.ReadSymbolInfo(req.SymName, func(info SymbolInfo, err error) {
		if err != nil {
			cb(req, err)
			return
		}
		c.WriteSymbol(info, req.Value, func(err error) {
			req.Type, req.Size = info.Type, info.Size
			cb(req, err)
		})
	})
}

// MultiRead resolves every request and reads them in one sum-up request.
func (c *Client) MultiRead(reqs []SymbolRequest, cb func([]SymbolRequest, error)) {
	c.resolveAll(reqs, func(infos []SymbolInfo, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		c.SumRead(infos, func(values []any, err error) {
			if err != nil {
				cb(nil, err)
				return
			}
			out := make([]SymbolRequest, len(reqs))
			for i, r := range reqs {
				r.Value, r.Type, r.Size = values[i], infos[i].Type, infos[i].Size
				out[i] = r
			}
			cb(out, nil)
		})
	})
}

// MultiWrite resolves every request and writes them in one sum-up request.
func (c *Client) MultiWrite(reqs []SymbolRequest, cb func([]SymbolRequest, error)) {
	c.resolveAll(reqs, func(infos []SymbolInfo, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		values := make([]any, len(reqs))
		for i, r := range reqs {
			values[i] = r.Value
		}
		c.SumWrite(infos, values, func(err error) {
			if err != nil {
				cb(nil, err)
				return
			}
			out := make([]SymbolRequest, len(reqs))
			for i, r := range reqs {
				r.Type, r.Size = infos[i].Type, infos[i].Size
				out[i] = r
			}
			cb(out, nil)
		})
	})
}

// resolveAll looks up each request's symbol in order. The first failure
// aborts the batch as an aggregate error.
func (c *Client) resolveAll(reqs []SymbolRequest, cb func([]SymbolInfo, error)) {
	infos := make([]SymbolInfo, 0, len(reqs))
	var next func(i int)
	next = func(i int) {
		if i == len(reqs) {
			cb(infos, nil)
			return
		}
		c.ReadSymbolInfo(reqs[i].SymName, func(info SymbolInfo, err error) {
			if err != nil {
				cb(nil, &SumError{Total: len(reqs), Failed: 1, First: err})
				return
			}
			infos = append(infos, info)
			next(i + 1)
		})
	}
	next(0)
}

// request sends one ADS service and registers done for its response.
func (c *Client) request(cmd CommandID, data []byte, done func(Frame, error)) {
	c.mu.Lock()
	if !c.isConnected {
		c.mu.Unlock()
		done(Frame{}, ErrNotConnected)
		return
	}
	id := c.invokeID.Add(1)
	p := &pendingRequest{cmd: cmd, done: done}
	c.pending[id] = p
	p.timer = time.AfterFunc(c.opts.Timeout, func() { c.expire(id) })
	conn := c.conn
	c.mu.Unlock()

	frame := NewRequestFrame(c.opts.Target, c.opts.Source, cmd, id, data)
	if c.opts.Verbose >= 1 {
		ev := c.log.Debug().Stringer("cmd", cmd).Uint32("invokeId", id)
		if c.opts.Verbose >= 2 {
			ev = ev.Hex("data", data)
		}
		ev.Msg("request")
	}

	c.writeMu.Lock()
	_, err := conn.Write(frame.Marshal())
	c.writeMu.Unlock()
	if err != nil {
		if p := c.take(id); p != nil {
			p.timer.Stop()
			p.done(Frame{}, NewConnectionError("send "+cmd.String(), err))
		}
	}
}

// expire settles a request whose timer fired before its response arrived.
func (c *Client) expire(id uint32) {
	p := c.take(id)
	if p == nil {
		return
	}
	err := fmt.Errorf("%s (invoke %d) after %s: %w", p.cmd, id, c.opts.Timeout, ErrTimeout)
	c.log.Debug().Err(err).Msg("request expired")
	p.done(Frame{}, err)
	c.emitTimeout(err)
}

func (c *Client) take(id uint32) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pending[id]
	delete(c.pending, id)
	return p
}

func (c *Client) takeAllLocked() []*pendingRequest {
	all := make([]*pendingRequest, 0, len(c.pending))
	for id, p := range c.pending {
		all = append(all, p)
		delete(c.pending, id)
	}
	return all
}

// readerLoop dispatches response frames to their pending requests until the
// connection fails or is closed.
func (c *Client) readerLoop(conn net.Conn, done chan struct{}) {
	defer close(done)

	fr := NewFrameReader(conn)
	for {
		f, err := fr.ReadFrame()
		if err != nil {
			c.handleDisconnect(err)
			return
		}
		if c.opts.Verbose >= 2 {
			c.log.Debug().Stringer("cmd", f.Header.Command).Uint32("invokeId", f.Header.InvokeID).
				Hex("data", f.Data).Msg("response")
		}
		if !f.Header.IsResponse() {
			continue
		}

		p := c.take(f.Header.InvokeID)
		if p == nil {
			c.log.Warn().Uint32("invokeId", f.Header.InvokeID).Msg("response without pending request")
			continue
		}
		p.timer.Stop()
		if f.Header.ErrorCode != 0 {
			p.done(f, NewAdsError(f.Header.ErrorCode))
			continue
		}
		p.done(f, nil)
	}
}

// handleDisconnect fails all pending requests after an unexpected
// connection loss and notifies the error handler. It does nothing when
// the loss was caused by Close.
func (c *Client) handleDisconnect(err error) {
	c.mu.Lock()
	if !c.isConnected {
		c.mu.Unlock()
		return
	}
	c.isConnected = false
	conn := c.conn
	c.conn = nil
	pending := c.takeAllLocked()
	handler := c.errorHandler
	c.mu.Unlock()

	conn.Close()

	cerr := NewConnectionError("connection lost", err)
	for _, p := range pending {
		p.timer.Stop()
		p.done(Frame{}, cerr)
	}
	c.log.Debug().Err(err).Msg("disconnected")
	if handler != nil {
		handler(cerr)
	}
}

func (c *Client) emitError(err error) {
	c.mu.Lock()
	handler := c.errorHandler
	c.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

func (c *Client) emitTimeout(err error) {
	c.mu.Lock()
	handler := c.timeoutHandler
	c.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}
