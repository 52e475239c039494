package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/ddlog"
	"github.com/Use-Tusk/tusk-drift-go-sdk/internal/metrics"
)

// State is the connection's lifecycle stage.
type State int32

const (
	StateInit State = iota
	StateConnecting
	StateAwaitingAck
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateConnecting:
		return "CONNECTING"
	case StateAwaitingAck:
		return "AWAITING_ACK"
	case StateReady:
		return "READY"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

type pendingEntry struct {
	ch chan pendingResult
}

type pendingResult struct {
	env Envelope
	err error
}

// Conn is one persistent CLI Transport connection: a length-prefixed
// duplex socket (Unix domain socket or TCP) with request/response
// correlation keyed by requestId. The pending-request map is mutated
// only by the sender (on registration) and the reader goroutine (on
// resolution or connection close), so no caller ever touches it
// directly — the same single-writer discipline
// DataDog-dd-trace-go/ddtrace/tracer/transport_test.go's UDS client
// relies on for its one-shot HTTP-over-UDS round trips, generalized
// here to a long-lived multiplexed connection.
type Conn struct {
	network string // "unix" or "tcp"
	address string
	sdkMode string

	state int32 // atomic State

	mu      sync.Mutex
	conn    net.Conn
	writer  *bufio.Writer
	pending map[string]pendingEntry

	metrics *metrics.Registry

	nextReqID uint64

	closeOnce sync.Once
	closed    chan struct{}
}

// Options configures Dial.
type Options struct {
	// SocketPath, if set, dials a Unix domain socket at this path.
	SocketPath string
	// Host/Port dial TCP when SocketPath is empty.
	Host string
	Port int

	SDKMode string
	Metrics *metrics.Registry
}

func (o Options) networkAddress() (network, address string) {
	if o.SocketPath != "" {
		return "unix", o.SocketPath
	}
	return "tcp", net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// Dial opens the socket, performs the Connect handshake, and returns a
// ready connection, or an error if the peer never acknowledges within
// ctx's deadline.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	network, address := opts.networkAddress()
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	c := &Conn{
		network: network,
		address: address,
		sdkMode: opts.SDKMode,
		pending: make(map[string]pendingEntry),
		metrics: m,
		closed:  make(chan struct{}),
	}
	atomic.StoreInt32(&c.state, int32(StateConnecting))
	c.metrics.TransportState.Set(1)

	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		atomic.StoreInt32(&c.state, int32(StateClosed))
		return nil, fmt.Errorf("transport: dial %s %s: %w", network, address, err)
	}
	c.conn = conn
	c.writer = bufio.NewWriter(conn)

	go c.readLoop(bufio.NewReader(conn))

	atomic.StoreInt32(&c.state, int32(StateAwaitingAck))
	resp, err := c.roundTrip(ctx, TypeConnectRequest, "", ConnectRequest{SDKVersion: "1.0.0", Mode: c.sdkMode}, &ConnectResponse{})
	if err != nil {
		c.Close()
		return nil, err
	}
	ack := resp.(*ConnectResponse)
	if !ack.Ack {
		c.Close()
		return nil, fmt.Errorf("transport: connect rejected: %s", ack.Message)
	}
	atomic.StoreInt32(&c.state, int32(StateReady))
	c.metrics.TransportState.Set(2)
	return c, nil
}

// State returns the connection's current lifecycle stage.
func (c *Conn) State() State { return State(atomic.LoadInt32(&c.state)) }

func (c *Conn) newRequestID() string {
	n := atomic.AddUint64(&c.nextReqID, 1)
	return strconv.FormatUint(n, 10)
}

// roundTrip sends req under type t, registers a pending entry for
// requestID before writing (so a response racing the write can never
// arrive before it is awaited), and blocks until a response arrives,
// ctx is done, or the connection closes.
func (c *Conn) roundTrip(ctx context.Context, t MessageType, requestID string, req any, respInto any) (any, error) {
	if requestID == "" {
		requestID = c.newRequestID()
	}
	resultCh := make(chan pendingResult, 1)

	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("transport: connection closed")
	}
	c.pending[requestID] = pendingEntry{ch: resultCh}
	buf, err := encode(t, requestID, req)
	if err != nil {
		delete(c.pending, requestID)
		c.mu.Unlock()
		return nil, err
	}
	writeErr := writeFrame(c.writer, buf)
	if writeErr == nil {
		writeErr = c.writer.Flush()
	}
	if writeErr != nil {
		delete(c.pending, requestID)
		c.mu.Unlock()
		return nil, fmt.Errorf("transport: write %s: %w", t, writeErr)
	}
	c.mu.Unlock()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, res.err
		}
		if err := decodePayload(res.env, respInto); err != nil {
			return nil, err
		}
		return respInto, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-c.closed:
		return nil, fmt.Errorf("transport: connection closed while awaiting %s", t)
	}
}

// RequestMock asks the CLI's Mock Resolver for a match. It is the
// "async" path: the caller supplies ctx for
// cancellation/timeout, there is no blocking netcat subprocess
// involved (see the Sync CLI path decision in DESIGN.md).
func (c *Conn) RequestMock(ctx context.Context, req GetMockRequest) (*GetMockResponse, error) {
	if c.State() != StateReady {
		return nil, fmt.Errorf("transport: RequestMock called in state %s", c.State())
	}
	resp, err := c.roundTrip(ctx, TypeGetMockRequest, "", req, &GetMockResponse{})
	if err != nil {
		return nil, err
	}
	return resp.(*GetMockResponse), nil
}

// SendInboundSpanForReplay ships a finished span to the CLI. It is
// fire-and-forget: no response is awaited, and a write failure is only
// logged, never propagated, since losing one replay-bookkeeping message
// must not affect the request the driver is actually serving.
func (c *Conn) SendInboundSpanForReplay(req SendInboundSpanForReplayRequest) {
	if c.State() != StateReady {
		return
	}
	buf, err := encode(TypeSendInboundSpanForReplay, "", req)
	if err != nil {
		ddlog.Warn("transport: encode SendInboundSpanForReplayRequest: %v", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if err := writeFrame(c.writer, buf); err != nil {
		ddlog.Warn("transport: send inbound span for replay: %v", err)
		return
	}
	if err := c.writer.Flush(); err != nil {
		ddlog.Warn("transport: flush inbound span for replay: %v", err)
	}
}

// readLoop dispatches every inbound frame to the pending request it
// correlates with by requestId, draining and failing every pending
// entry once the peer closes the connection.
func (c *Conn) readLoop(r *bufio.Reader) {
	for {
		buf, err := readFrame(r)
		if err != nil {
			c.failAllPending(fmt.Errorf("transport: read loop ended: %w", err))
			return
		}
		env, err := decodeEnvelope(buf)
		if err != nil {
			ddlog.Warn("transport: %v", err)
			continue
		}
		c.mu.Lock()
		entry, ok := c.pending[env.RequestID]
		if ok {
			delete(c.pending, env.RequestID)
		}
		c.mu.Unlock()
		if !ok {
			ddlog.Warn("transport: no pending request for requestId %q (type %s)", env.RequestID, env.Type)
			continue
		}
		entry.ch <- pendingResult{env: env}
	}
}

func (c *Conn) failAllPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]pendingEntry)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	for _, e := range pending {
		e.ch <- pendingResult{err: err}
	}
	if conn != nil {
		conn.Close()
	}
	atomic.StoreInt32(&c.state, int32(StateClosed))
	c.metrics.TransportState.Set(0)
	c.closeOnce.Do(func() { close(c.closed) })
}

// Close terminates the connection and fails any pending round trips.
func (c *Conn) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	c.failAllPending(fmt.Errorf("transport: connection closed"))
	return nil
}

// reconnectBackoff is used by callers that want to retry Dial after a
// transport failure; exposed here so driftsdk doesn't need its own
// backoff constant, following dd-trace-go's single-source-of-truth
// retry intervals in ddtrace/tracer/transport.go.
var reconnectBackoff = []time.Duration{
	100 * time.Millisecond,
	500 * time.Millisecond,
	2 * time.Second,
	5 * time.Second,
}

// ReconnectBackoff returns the backoff delay for the given attempt
// (0-indexed), clamping to the final configured interval.
func ReconnectBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(reconnectBackoff) {
		attempt = len(reconnectBackoff) - 1
	}
	return reconnectBackoff[attempt]
}
