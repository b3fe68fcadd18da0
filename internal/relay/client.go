package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/dialog/internal/errs"
	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/status"
)

const (
	defaultFetchTimeout = 5 * time.Second
	defaultSendTimeout  = 5 * time.Second
)

// ErrRejected is wrapped when the relay answers an EVENT with OK false.
var ErrRejected = errors.New("relay rejected event")

// Options configures a Client.
type Options struct {
	URL          string
	FetchTimeout time.Duration
	SendTimeout  time.Duration
	// Status receives connection transitions. Optional.
	Status *status.Machine
	Logger *zap.Logger
	Dialer *websocket.Dialer
}

// Client is a relay connection. Calls are serialized over one websocket,
// dialled lazily and redialled after any failure.
type Client struct {
	opts Options
	log  *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// New creates a client. It does not dial.
func New(opts Options) *Client {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{opts: opts, log: opts.Logger.With(zap.String("relay", opts.URL))}
}

// URL returns the relay address.
func (c *Client) URL() string { return c.opts.URL }

// Status returns the connection state, Disconnected when no machine is set.
func (c *Client) Status() status.State {
	if c.opts.Status == nil {
		return status.Disconnected
	}
	return c.opts.Status.Current()
}

// Connect dials the relay unless already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.connLocked(ctx)
	return err
}

// Reconnect drops the current connection and dials again.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
	_, err := c.connLocked(ctx)
	return err
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = c.conn.Close()
		c.conn = nil
	}
	c.transition(status.Disconnected)
	return err
}

// Send publishes ev and waits for the relay's OK.
func (c *Client) Send(ctx context.Context, ev *event.Event) error {
	const op = "send_event"
	ctx, cancel := context.WithTimeout(ctx, c.opts.SendTimeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	conn, err := c.connLocked(ctx)
	if err != nil {
		return errs.TransportErr(op, err)
	}
	stop := bindDeadline(ctx, conn)
	defer stop()

	msg, err := encode(labelEvent, ev)
	if err != nil {
		return errs.ProtocolErr(op, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return c.failLocked(ctx, op, err)
	}
	for {
		f, err := readFrame(conn)
		if err != nil {
			return c.failLocked(ctx, op, err)
		}
		if f.Label != labelOK || f.EventID != ev.ID {
			continue
		}
		if !f.Accepted {
			return errs.TransportErr(op, fmt.Errorf("%w %s: %s", ErrRejected, ev.ID.Short(), f.Message))
		}
		return nil
	}
}

// Fetch returns every stored event matching filter, waiting at most
// timeout (the configured fetch timeout when zero) for end of stored events.
func (c *Client) Fetch(ctx context.Context, filter event.Filter, timeout time.Duration) ([]*event.Event, error) {
	const op = "fetch_events"
	if timeout <= 0 {
		timeout = c.opts.FetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	conn, err := c.connLocked(ctx)
	if err != nil {
		return nil, errs.TransportErr(op, err)
	}
	stop := bindDeadline(ctx, conn)
	defer stop()

	sub := uuid.NewString()
	msg, err := encode(labelReq, sub, filter)
	if err != nil {
		return nil, errs.ProtocolErr(op, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return nil, c.failLocked(ctx, op, err)
	}

	var out []*event.Event
	for {
		f, err := readFrame(conn)
		if err != nil {
			return nil, c.failLocked(ctx, op, err)
		}
		if f.SubID != sub {
			continue
		}
		switch f.Label {
		case labelEvent:
			if f.Event != nil {
				out = append(out, f.Event)
			}
		case labelEOSE:
			closeMsg, _ := encode(labelClose, sub)
			if err := conn.WriteMessage(websocket.TextMessage, closeMsg); err != nil {
				return nil, c.failLocked(ctx, op, err)
			}
			return out, nil
		}
	}
}

func (c *Client) connLocked(ctx context.Context) (*websocket.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	c.transition(status.Connecting)
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		c.transition(status.Error)
		c.log.Warn("relay dial failed", zap.Error(err))
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	c.conn = conn
	c.transition(status.Connected)
	c.log.Info("relay connected")
	return conn, nil
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// failLocked drops a connection whose stream is no longer trustworthy and
// returns a transport error describing why.
func (c *Client) failLocked(ctx context.Context, op string, err error) error {
	c.dropLocked()
	c.transition(status.Error)
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	c.log.Warn("relay call failed", zap.String("op", op), zap.Error(err))
	return errs.TransportErr(op, err)
}

func (c *Client) transition(to status.State) {
	if c.opts.Status == nil {
		return
	}
	if err := c.opts.Status.Ensure(to); err != nil {
		c.log.Debug("status transition skipped", zap.Error(err))
	}
}

func readFrame(conn *websocket.Conn) (frame, error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return frame{}, err
		}
		f, err := decode(data)
		if err != nil {
			// unknown or malformed frames are skipped
			continue
		}
		return f, nil
	}
}

// bindDeadline applies ctx's deadline to conn and unblocks pending reads
// when ctx is cancelled.
func bindDeadline(ctx context.Context, conn *websocket.Conn) func() {
	if d, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(d)
		_ = conn.SetWriteDeadline(d)
	}
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
		_ = conn.SetReadDeadline(time.Time{})
		_ = conn.SetWriteDeadline(time.Time{})
	}
}
