package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/aegislink/internal/client/models"
	"github.com/dmitrijs2005/aegislink/internal/logging"
	"github.com/fxamacker/cbor/v2"
)

const (
	connectAttempts = 5
	reconnectDelay  = 50 * time.Millisecond
)

// SocketClient is a Client shared by the processes of one device. Payloads
// travel as CBOR items through a hub listening on a Unix socket. The first
// member to bind the socket path serves the hub; when that member leaves,
// the others reconnect and one of them takes over.
type SocketClient struct {
	path   string
	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan models.Payload
	wg     sync.WaitGroup

	mu     sync.Mutex
	conn   net.Conn
	hub    *socketHub
	closed bool
}

// DialSocket joins the hub at path, starting one when nobody serves it.
func DialSocket(ctx context.Context, path string, logger logging.Logger) (*SocketClient, error) {
	return DialSocketWithBuffer(ctx, path, DefaultInboxSize, logger)
}

func DialSocketWithBuffer(ctx context.Context, path string, size int, logger logging.Logger) (*SocketClient, error) {
	runCtx, cancel := context.WithCancel(context.Background())
	c := &SocketClient{
		path:   path,
		logger: logger.With("module", "link"),
		ctx:    runCtx,
		cancel: cancel,
		inbox:  make(chan models.Payload, size),
	}

	conn, err := c.connect(ctx)
	if err != nil {
		cancel()
		c.mu.Lock()
		c.closed = true
		hub := c.hub
		c.hub = nil
		c.mu.Unlock()
		if hub != nil {
			hub.close()
		}
		return nil, err
	}

	c.conn = conn
	c.wg.Add(1)
	go c.receive(conn)
	return c, nil
}

// Hosting reports whether this member currently serves the hub.
func (c *SocketClient) Hosting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hub != nil
}

func (c *SocketClient) connect(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	var lastErr error

	for attempt := 0; attempt < connectAttempts; attempt++ {
		conn, err := d.DialContext(ctx, "unix", c.path)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if c.Hosting() {
			continue
		}

		hub, lerr := listenHub(c.path, c.logger)
		switch {
		case lerr == nil:
			if !c.setHub(hub) {
				hub.close()
				return nil, ErrClosed
			}
		case errors.Is(err, syscall.ECONNREFUSED) && errors.Is(lerr, syscall.EADDRINUSE):
			// left behind by a hub that did not shut down cleanly
			c.logger.Warn(ctx, "removing stale link socket", "path", c.path)
			_ = os.Remove(c.path)
		default:
			lastErr = lerr
		}
	}

	return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, c.path, lastErr)
}

func (c *SocketClient) setHub(h *socketHub) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.hub = h
	return true
}

// receive feeds the inbox and reconnects whenever the hub goes away. It
// owns the inbox and closes it on exit.
func (c *SocketClient) receive(conn net.Conn) {
	defer c.wg.Done()
	defer close(c.inbox)

	for {
		c.readFrom(conn)
		_ = conn.Close()
		if c.ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.logger.Info(c.ctx, "link hub lost, reconnecting", "path", c.path)

		next, err := c.reconnect()
		if err != nil {
			return
		}
		conn = next
	}
}

func (c *SocketClient) readFrom(conn net.Conn) {
	dec := cbor.NewDecoder(conn)
	for {
		var p models.Payload
		err := dec.Decode(&p)

		var typeErr *cbor.UnmarshalTypeError
		switch {
		case err == nil:
		case errors.As(err, &typeErr):
			c.logger.Warn(c.ctx, "undecodable payload skipped", "error", err)
			continue
		default:
			if c.ctx.Err() == nil && !errors.Is(err, io.EOF) {
				c.logger.Debug(c.ctx, "link read failed", "error", err)
			}
			return
		}

		select {
		case c.inbox <- p:
		default:
			c.logger.Warn(c.ctx, "inbox full, payload dropped", "kind", p.Kind, "id", p.ID)
		}
	}
}

func (c *SocketClient) reconnect() (net.Conn, error) {
	for {
		select {
		case <-c.ctx.Done():
			return nil, ErrClosed
		case <-time.After(reconnectDelay):
		}

		conn, err := c.connect(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return nil, ErrClosed
			}
			c.logger.Warn(c.ctx, "link reconnect failed", "error", err)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return nil, ErrClosed
		}
		c.conn = conn
		c.mu.Unlock()

		c.logger.Info(c.ctx, "link hub rejoined", "path", c.path)
		return conn, nil
	}
}

// Broadcast writes p to the hub. It fails with ErrUnavailable while the
// member is between hubs.
func (c *SocketClient) Broadcast(ctx context.Context, p models.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := payloadEncMode.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		return ErrClosed
	case c.conn == nil:
		return ErrUnavailable
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer func() { _ = c.conn.SetWriteDeadline(time.Time{}) }()
	}

	if _, err := c.conn.Write(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *SocketClient) Inbox() <-chan models.Payload {
	return c.inbox
}

// Close leaves the hub, shutting it down if this member serves it. It is
// safe to call more than once.
func (c *SocketClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cancel()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	hub := c.hub
	c.hub = nil
	c.mu.Unlock()

	if hub != nil {
		hub.close()
	}
	c.wg.Wait()
	return nil
}

// socketHub relays every CBOR item it reads from one peer to all the others.
type socketHub struct {
	ln     net.Listener
	logger logging.Logger

	mu     sync.Mutex
	peers  map[*hubPeer]struct{}
	closed bool
	wg     sync.WaitGroup
}

type hubPeer struct {
	conn net.Conn
	out  chan cbor.RawMessage
}

func listenHub(path string, logger logging.Logger) (*socketHub, error) {
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	// not every platform honours socket modes
	_ = os.Chmod(path, 0o600)

	h := &socketHub{
		ln:     ln,
		logger: logger,
		peers:  make(map[*hubPeer]struct{}),
	}
	h.wg.Add(1)
	go h.serve()

	logger.Info(context.Background(), "link hub started", "path", path)
	return h, nil
}

func (h *socketHub) serve() {
	defer h.wg.Done()

	for {
		conn, err := h.ln.Accept()
		if errors.Is(err, net.ErrClosed) {
			return
		}
		if err != nil {
			h.logger.Warn(context.Background(), "link accept failed", "error", err)
			time.Sleep(reconnectDelay)
			continue
		}

		p := &hubPeer{conn: conn, out: make(chan cbor.RawMessage, DefaultInboxSize)}

		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			_ = conn.Close()
			return
		}
		h.peers[p] = struct{}{}
		h.wg.Add(2)
		h.mu.Unlock()

		go h.read(p)
		go h.write(p)
	}
}

func (h *socketHub) read(p *hubPeer) {
	defer h.wg.Done()
	defer h.drop(p)

	dec := cbor.NewDecoder(p.conn)
	for {
		var raw cbor.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return
		}
		h.fanout(p, raw)
	}
}

func (h *socketHub) write(p *hubPeer) {
	defer h.wg.Done()

	for raw := range p.out {
		if _, err := p.conn.Write(raw); err != nil {
			// the reader notices and drops the peer
			_ = p.conn.Close()
		}
	}
}

func (h *socketHub) fanout(from *hubPeer, raw cbor.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for p := range h.peers {
		if p == from {
			continue
		}
		select {
		case p.out <- raw:
		default:
			h.logger.Warn(context.Background(), "peer backlog full, payload dropped")
		}
	}
}

func (h *socketHub) drop(p *hubPeer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.peers[p]; !ok {
		return
	}
	delete(h.peers, p)
	close(p.out)
	_ = p.conn.Close()
}

func (h *socketHub) close() {
	_ = h.ln.Close()

	h.mu.Lock()
	h.closed = true
	for p := range h.peers {
		_ = p.conn.Close()
	}
	h.mu.Unlock()

	h.wg.Wait()
}
