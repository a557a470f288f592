package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/livequery/cache"
	"github.com/jonwraymond/livequery/observe"
	"github.com/jonwraymond/livequery/query"
)

// Settings configures connection and reconnection behavior.
type Settings struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration

	// Reconnect backoff: delay starts at InitialDelay and multiplies by
	// Multiplier per consecutive failure, capped at MaxDelay, with up to
	// 25% jitter when Jitter is set.
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectMultiplier   float64
	ReconnectJitter       bool

	// DialFailureThreshold is the number of consecutive failed dials after
	// which ErrUnreachable is broadcast to all live subscriptions. Dialing
	// continues regardless; the broadcast only surfaces the outage.
	DialFailureThreshold int
}

// DefaultSettings returns the default connection settings.
func DefaultSettings() *Settings {
	return &Settings{
		HandshakeTimeout:      5 * time.Second,
		PingInterval:          10 * time.Second,
		WriteTimeout:          5 * time.Second,
		ReadTimeout:           30 * time.Second,
		ReconnectInitialDelay: 250 * time.Millisecond,
		ReconnectMaxDelay:     30 * time.Second,
		ReconnectMultiplier:   2.0,
		ReconnectJitter:       true,
		DialFailureThreshold:  3,
	}
}

// Options carries optional Client collaborators.
type Options struct {
	// AccessKey is sent as a bearer token on the WebSocket handshake.
	AccessKey string
	Settings  *Settings
	Logger    observe.Logger
	Tracer    observe.Tracer
}

// Client is a WebSocket transport multiplexing query subscriptions over a
// single connection. It satisfies the registry's Subscriber contract:
// subscription failures are delivered as error results through onUpdate,
// never returned from Subscribe.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	url       string
	accessKey string
	settings  *Settings
	logger    observe.Logger
	tracer    observe.Tracer

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint64
	subs   map[uint64]*subscription

	writeMu sync.Mutex

	done chan struct{}
}

// subscription is one multiplexed query subscription.
type subscription struct {
	client      *Client
	id          uint64
	functionRef string
	args        map[string]any
	onUpdate    cache.NotifyFunc
	closeOnce   sync.Once
}

// Close detaches the subscription. Idempotent.
func (s *subscription) Close() {
	s.closeOnce.Do(func() {
		s.client.unsubscribe(s.id)
	})
}

// NewClient creates a transport client for the given sync endpoint URL and
// starts its connection loop. Close the client to stop it.
func NewClient(ctx context.Context, url string, opts Options) (*Client, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}
	if opts.Settings == nil {
		opts.Settings = DefaultSettings()
	}
	if opts.Logger == nil {
		opts.Logger = observe.NopLogger()
	}
	if opts.Tracer == nil {
		opts.Tracer = observe.NopTracer()
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	c := &Client{
		ctx:       cancelCtx,
		cancel:    cancel,
		url:       url,
		accessKey: opts.AccessKey,
		settings:  opts.Settings,
		logger:    opts.Logger.With(observe.String("transport.url", url)),
		tracer:    opts.Tracer,
		subs:      make(map[uint64]*subscription),
		done:      make(chan struct{}),
	}
	go c.run()
	return c, nil
}

// Subscribe registers a query subscription. If the connection is down the
// subscription is queued and replayed on the next successful dial; the
// caller learns about a prolonged outage through an error result.
func (c *Client) Subscribe(functionRef string, args query.Args, onUpdate cache.NotifyFunc) cache.Subscription {
	c.mu.Lock()
	c.nextID++
	s := &subscription{
		client:      c,
		id:          c.nextID,
		functionRef: functionRef,
		args:        args.Fields(),
		onUpdate:    onUpdate,
	}
	c.subs[s.id] = s
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		if err := c.write(conn, clientMessage{
			Type:     msgSubscribe,
			ID:       s.id,
			Function: s.functionRef,
			Args:     s.args,
		}); err != nil {
			// the connection loop notices the failure and replays the
			// subscribe after redialing
			c.logger.Warn(c.ctx, "subscribe write failed",
				observe.String("query.function", functionRef),
				observe.Err(err),
			)
		}
	}
	return s
}

// Connected reports whether the client currently holds a live connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close stops the connection loop and waits for it to exit. Idempotent.
func (c *Client) Close() error {
	c.cancel()
	<-c.done
	return nil
}

func (c *Client) unsubscribe(id uint64) {
	c.mu.Lock()
	_, ok := c.subs[id]
	delete(c.subs, id)
	conn := c.conn
	c.mu.Unlock()

	if !ok || conn == nil {
		return
	}
	if err := c.write(conn, clientMessage{Type: msgUnsubscribe, ID: id}); err != nil {
		// the server drops the subscription with the connection anyway
		c.logger.Debug(c.ctx, "unsubscribe write failed", observe.Err(err))
	}
}

func (c *Client) write(conn *websocket.Conn, msg clientMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

// run is the connection loop: dial, replay subscriptions, serve until the
// connection fails, back off, repeat. Exits when the client context ends.
func (c *Client) run() {
	defer close(c.done)

	failures := 0
	delay := c.settings.ReconnectInitialDelay

	for {
		if c.ctx.Err() != nil {
			return
		}

		conn, err := c.dial()
		if err != nil {
			failures++
			if failures >= c.settings.DialFailureThreshold {
				c.broadcast(cache.NewError(fmt.Errorf("%w: %v", ErrUnreachable, err)))
			}
			c.logger.Warn(c.ctx, "dial failed",
				observe.Int("failures", failures),
				observe.Err(err),
			)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(c.jitter(delay)):
			}
			delay = c.nextDelay(delay)
			continue
		}

		failures = 0
		delay = c.settings.ReconnectInitialDelay

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.logger.Info(c.ctx, "connected")

		c.resubscribe(conn)
		err = c.serve(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()

		if c.ctx.Err() != nil {
			return
		}
		c.logger.Warn(c.ctx, "connection lost", observe.Err(err))
	}
}

func (c *Client) dial() (*websocket.Conn, error) {
	ctx, span := c.tracer.StartSpan(c.ctx, "transport.connect",
		attribute.String("transport.url", c.url),
	)

	dialer := &websocket.Dialer{HandshakeTimeout: c.settings.HandshakeTimeout}
	header := http.Header{}
	if c.accessKey != "" {
		header.Set("Authorization", "Bearer "+c.accessKey)
	}

	conn, resp, err := dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	c.tracer.EndSpan(span, err)
	return conn, err
}

// resubscribe replays subscribe frames for every live subscription after a
// (re)connect, in subscription id order.
func (c *Client) resubscribe(conn *websocket.Conn) {
	c.mu.Lock()
	frames := make([]clientMessage, 0, len(c.subs))
	for _, s := range c.subs {
		frames = append(frames, clientMessage{
			Type:     msgSubscribe,
			ID:       s.id,
			Function: s.functionRef,
			Args:     s.args,
		})
	}
	c.mu.Unlock()

	sort.Slice(frames, func(i, j int) bool { return frames[i].ID < frames[j].ID })

	for _, frame := range frames {
		if err := c.write(conn, frame); err != nil {
			c.logger.Warn(c.ctx, "resubscribe write failed", observe.Err(err))
			return
		}
	}
}

// serve pumps the connection until it fails or the client closes.
func (c *Client) serve(conn *websocket.Conn) error {
	g, ctx := errgroup.WithContext(c.ctx)

	g.Go(func() error {
		return c.readLoop(conn)
	})
	g.Go(func() error {
		return c.pingLoop(ctx, conn)
	})
	g.Go(func() error {
		// unblock the read loop when the ping loop fails or the client
		// shuts down
		<-ctx.Done()
		_ = conn.Close()
		return nil
	})

	return g.Wait()
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	resetDeadline := func() error {
		return conn.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
	}
	if err := resetDeadline(); err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error {
		return resetDeadline()
	})

	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if err := resetDeadline(); err != nil {
			return err
		}
		c.dispatch(msg)
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(c.settings.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			deadline := time.Now().Add(c.settings.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return err
			}
		}
	}
}

// dispatch routes one server frame to its subscription. Frames for ids that
// were unsubscribed while in flight are dropped.
func (c *Client) dispatch(msg serverMessage) {
	c.mu.Lock()
	s := c.subs[msg.ID]
	c.mu.Unlock()
	if s == nil {
		return
	}

	switch msg.Type {
	case msgUpdate:
		var v any
		if err := json.Unmarshal(msg.Value, &v); err != nil {
			s.onUpdate(cache.NewError(fmt.Errorf("transport: malformed update: %w", err)))
			return
		}
		s.onUpdate(cache.NewValue(v))
	case msgError:
		s.onUpdate(cache.NewError(&ServerError{Message: msg.Message}))
	default:
		c.logger.Debug(c.ctx, "unknown frame type", observe.String("frame.type", msg.Type))
	}
}

// broadcast delivers a result to every live subscription.
func (c *Client) broadcast(res cache.Result) {
	c.mu.Lock()
	targets := make([]cache.NotifyFunc, 0, len(c.subs))
	for _, s := range c.subs {
		targets = append(targets, s.onUpdate)
	}
	c.mu.Unlock()

	for _, onUpdate := range targets {
		onUpdate(res)
	}
}

func (c *Client) nextDelay(delay time.Duration) time.Duration {
	next := time.Duration(float64(delay) * math.Max(c.settings.ReconnectMultiplier, 1.0))
	if next > c.settings.ReconnectMaxDelay {
		next = c.settings.ReconnectMaxDelay
	}
	return next
}

func (c *Client) jitter(delay time.Duration) time.Duration {
	if !c.settings.ReconnectJitter || delay <= 0 {
		return delay
	}
	// up to 25% jitter to avoid reconnect stampedes
	// #nosec G404 -- jitter is non-cryptographic timing variance.
	return delay + time.Duration(rand.Int64N(int64(delay/4)+1))
}

// Ensure Client implements the registry's transport contract
var _ cache.Subscriber = (*Client)(nil)
