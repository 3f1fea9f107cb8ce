// Package mudconn is the client side of a MUD telnet connection. It turns
// the server byte stream into an ordered stream of text lines, prompts and
// GMCP messages, and answers telnet option negotiation.
package mudconn

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"github.com/crystal-mush/mudmapper/pkg/logging"
	"github.com/crystal-mush/mudmapper/pkg/metrics"
	"github.com/crystal-mush/mudmapper/pkg/oob"
)

// EventKind identifies what a connection Event carries.
type EventKind int

const (
	EventLine         EventKind = iota // complete text line
	EventPrompt                        // partial line ended by GA/EOR
	EventGMCP                          // GMCP module + payload
	EventNegotiated                    // GMCP availability decided
	EventDisconnected                  // final event; the channel closes after it
)

func (k EventKind) String() string {
	switch k {
	case EventLine:
		return "line"
	case EventPrompt:
		return "prompt"
	case EventGMCP:
		return "gmcp"
	case EventNegotiated:
		return "negotiated"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is one item of the connection's ordered event stream.
type Event struct {
	Kind    EventKind
	Text    string          // Line, Prompt
	Module  string          // GMCP
	Payload json.RawMessage // GMCP; empty when the module carried no data
	GMCP    bool            // Negotiated
	Err     error           // Disconnected: ErrClosed or a *ConnectionError
	Time    time.Time
}

// Options configure a connection.
type Options struct {
	Timeout       time.Duration // dial timeout; 0 means 10s
	WriteTimeout  time.Duration // per-write deadline; 0 means 5s
	Charset       string        // utf-8 (default), latin1, cp437, cp1252
	TerminalType  string        // answer to TTYPE SEND
	ClientName    string        // Core.Hello client
	ClientVersion string        // Core.Hello version
	Supports      []string      // Core.Supports.Set; nil means oob.DefaultSupports
	EventBuffer   int           // Events channel capacity; 0 means 256
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

func (o *Options) withDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.ClientName == "" {
		o.ClientName = "mudmapper"
	}
	if o.ClientVersion == "" {
		o.ClientVersion = "dev"
	}
	if o.Supports == nil {
		o.Supports = oob.DefaultSupports
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 256
	}
}

// Conn is a client telnet connection with GMCP support.
//
// A single reader goroutine owns the decoder and negotiator and is the only
// sender on the Events channel. Callers must drain Events until it is
// closed; the last event is always exactly one EventDisconnected.
type Conn struct {
	addr    string
	nc      net.Conn
	opts    Options
	log     *zap.Logger
	metrics *metrics.Metrics
	charset encoding.Encoding

	decoder *oob.Decoder
	neg     *oob.Negotiator
	gmcp    atomic.Bool

	events chan Event

	writeMu sync.Mutex // serializes writes to nc
	mu      sync.Mutex // guards closed and cause
	closed  bool
	cause   error
	done    chan struct{}
}

// Dial connects to host:port and starts reading. Failure to connect within
// opts.Timeout or ctx returns a *ConnectionError.
func Dial(ctx context.Context, host string, port int, opts Options) (*Conn, error) {
	opts.withDefaults()
	if _, err := lookupCharset(opts.Charset); err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Addr: addr, Err: err}
	}
	return New(nc, opts)
}

// New wraps an established connection, requests GMCP and starts the reader.
func New(nc net.Conn, opts Options) (*Conn, error) {
	opts.withDefaults()
	cs, err := lookupCharset(opts.Charset)
	if err != nil {
		nc.Close()
		return nil, err
	}
	addr := nc.RemoteAddr().String()
	c := &Conn{
		addr:    addr,
		nc:      nc,
		opts:    opts,
		log:     logging.OrNop(opts.Logger).Named("mudconn").With(zap.String("addr", addr)),
		metrics: opts.Metrics,
		charset: cs,
		decoder: oob.NewDecoder(),
		neg:     oob.NewNegotiator(nil, opts.TerminalType),
		events:  make(chan Event, opts.EventBuffer),
		done:    make(chan struct{}),
	}
	if err := c.writeRaw(c.neg.Request(oob.TeloptGMCP)); err != nil {
		c.shutdown(err)
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

// Addr returns the remote address.
func (c *Conn) Addr() string { return c.addr }

// Events returns the ordered event stream.
func (c *Conn) Events() <-chan Event { return c.events }

// Done is closed once the connection is shut down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// GMCPEnabled reports whether the server agreed to speak GMCP.
func (c *Conn) GMCPEnabled() bool { return c.gmcp.Load() }

// Err returns the first cause of shutdown, or nil while open.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// Send writes a command line. IAC bytes are escaped after charset
// encoding and CRLF is appended.
func (c *Conn) Send(line string) error {
	line = strings.TrimRight(line, "\r\n")
	buf := oob.EscapeIAC(encodeText(c.charset, line))
	out := make([]byte, 0, len(buf)+2)
	out = append(out, buf...)
	out = append(out, '\r', '\n')
	return c.writeRaw(out)
}

// SendGMCP sends a GMCP message. A nil data sends the bare module name.
func (c *Conn) SendGMCP(module string, data any) error {
	buf, err := oob.EncodeGMCP(module, data)
	if err != nil {
		return err
	}
	return c.writeRaw(buf)
}

// Close shuts the connection down. It is safe to call more than once and
// from any goroutine.
func (c *Conn) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

func (c *Conn) writeRaw(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.isClosed() {
		return ErrClosed
	}
	c.nc.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	n, err := c.nc.Write(p)
	c.metrics.BytesSent(n)
	if err != nil {
		cerr := &ConnectionError{Op: "write", Addr: c.addr, Err: err}
		c.shutdown(cerr)
		return cerr
	}
	return nil
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// shutdown records the first cause and closes the socket. The reader
// goroutine notices and emits Disconnected.
func (c *Conn) shutdown(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cause = cause
	c.mu.Unlock()

	c.nc.Close()
	close(c.done)
}

func (c *Conn) readLoop() {
	defer close(c.events)

	buf := make([]byte, 4096)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			c.metrics.BytesReceived(n)
			for _, f := range c.decoder.Feed(buf[:n]) {
				c.handleFrame(f)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !c.isClosed() {
				c.log.Debug("read failed", zap.Error(err))
			}
			c.shutdown(&ConnectionError{Op: "read", Addr: c.addr, Err: err})
			break
		}
	}

	if f, ok := c.decoder.Flush(); ok {
		c.handleFrame(f)
	}
	cause := c.Err()
	c.log.Info("disconnected", zap.Error(cause))
	c.emit(Event{Kind: EventDisconnected, Err: cause})
}

func (c *Conn) emit(ev Event) {
	ev.Time = time.Now()
	c.events <- ev
}

func (c *Conn) handleFrame(f oob.Frame) {
	switch f.Kind {
	case oob.FrameLine, oob.FramePrompt:
		c.metrics.Line()
		kind := EventLine
		if f.Kind == oob.FramePrompt {
			kind = EventPrompt
		}
		c.emit(Event{Kind: kind, Text: decodeText(c.charset, f.Text)})

	case oob.FrameNegotiation:
		reply, nev := c.neg.Handle(f.Command, f.Option)
		if reply != nil {
			c.writeRaw(reply)
		}
		switch nev {
		case oob.NegGMCPEnabled:
			c.gmcp.Store(true)
			c.log.Debug("gmcp enabled")
			c.hello()
			c.emit(Event{Kind: EventNegotiated, GMCP: true})
		case oob.NegGMCPDisabled:
			c.gmcp.Store(false)
			c.log.Debug("gmcp refused")
			c.emit(Event{Kind: EventNegotiated, GMCP: false})
		}

	case oob.FrameSubneg:
		if f.Option != oob.TeloptGMCP {
			if reply := c.neg.HandleSubneg(f.Option, f.Data); reply != nil {
				c.writeRaw(reply)
			}
			return
		}
		module, data := oob.ParseGMCPMessage(f.Data)
		if module == "" {
			c.metrics.Malformed()
			c.log.Warn("gmcp frame without module")
			return
		}
		c.metrics.GMCP(module)
		c.emit(Event{Kind: EventGMCP, Module: module, Payload: json.RawMessage(data)})

	case oob.FrameMalformed:
		c.metrics.Malformed()
		c.log.Warn("skipped malformed telnet sequence", zap.ByteString("reason", f.Text))
	}
}

// hello announces the client and the GMCP packages it wants.
func (c *Conn) hello() {
	hello := map[string]string{"client": c.opts.ClientName, "version": c.opts.ClientVersion}
	if err := c.SendGMCP("Core.Hello", hello); err != nil {
		c.log.Warn("send Core.Hello", zap.Error(err))
		return
	}
	if err := c.SendGMCP("Core.Supports.Set", c.opts.Supports); err != nil {
		c.log.Warn("send Core.Supports.Set", zap.Error(err))
	}
}
