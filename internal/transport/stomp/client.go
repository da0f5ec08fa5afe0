package stomp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"classroom-live/internal/app"
	"classroom-live/internal/domain"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	handshakeTimeout = 10 * time.Second
	closeGracePeriod = time.Second
)

// Config describes how to reach the broker.
type Config struct {
	URL            string
	Host           string
	Login          string
	Passcode       string
	Token          string
	ReconnectDelay time.Duration
	WriteTimeout   time.Duration
}

// Client is a STOMP 1.2 client over a single WebSocket connection. Every STOMP
// frame travels as one text message and heart-beats are disabled. Handlers and
// transport hooks run on the client's reader goroutine.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	log    zerolog.Logger

	mu        sync.Mutex
	active    bool
	conn      *websocket.Conn
	connected bool
	subs      map[string]func([]byte)
	cancel    context.CancelFunc
	done      chan struct{}

	writeMu sync.Mutex
}

var _ app.Transport = (*Client)(nil)

func NewClient(cfg Config, log zerolog.Logger) *Client {
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		log:  log.With().Str("component", "stomp").Str("url", cfg.URL).Logger(),
		subs: make(map[string]func([]byte)),
	}
}

// Activate starts the connect loop and returns immediately. Calling it on an
// active client is a no-op.
func (c *Client) Activate(ctx context.Context, hooks app.TransportHooks) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("parse broker url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("broker url %q: scheme must be ws or wss", c.cfg.URL)
	}

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.active = true
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.run(loopCtx, hooks, done)
	return nil
}

// Deactivate sends DISCONNECT when connected, closes the socket and waits for
// the connect loop to exit. It must not be called from a handler or hook.
func (c *Client) Deactivate() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	c.active = false
	c.cancel()
	conn, connected, done := c.conn, c.connected, c.done
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		if connected {
			if err := c.writeFrame(conn, frame.New(frame.DISCONNECT)); err != nil {
				c.log.Debug().Err(err).Msg("disconnect frame failed")
			}
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		_ = conn.Close()
	}
	<-done
	c.log.Info().Msg("deactivated")
	return nil
}

// Connected reports whether a STOMP session is established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Publish writes a SEND frame to destination.
func (c *Client) Publish(destination string, body []byte) error {
	conn, ok := c.live()
	if !ok {
		return domain.ErrNotConnected
	}
	f := frame.New(frame.SEND, frame.Destination, destination)
	if len(body) > 0 {
		f.Header.Add(frame.ContentType, "application/json")
		f.Body = body
	}
	if err := c.writeFrame(conn, f); err != nil {
		return fmt.Errorf("send %s: %w", destination, err)
	}
	return nil
}

// Subscribe writes a SUBSCRIBE frame and routes matching MESSAGE frames to
// handler until the subscription is cancelled or the connection drops.
func (c *Client) Subscribe(destination string, handler func([]byte)) (app.Subscription, error) {
	conn, ok := c.live()
	if !ok {
		return nil, domain.ErrNotConnected
	}
	id := uuid.NewString()

	c.mu.Lock()
	c.subs[id] = handler
	c.mu.Unlock()

	f := frame.New(frame.SUBSCRIBE,
		frame.Id, id,
		frame.Destination, destination,
		frame.Ack, "auto",
	)
	if err := c.writeFrame(conn, f); err != nil {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", destination, err)
	}
	c.log.Debug().Str("destination", destination).Str("subscription", id).Msg("subscribed")
	return &subscription{client: c, conn: conn, id: id}, nil
}

type subscription struct {
	client *Client
	conn   *websocket.Conn
	id     string
	once   sync.Once
}

// Unsubscribe is a no-op once the connection it was made on is gone.
func (s *subscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		c := s.client
		c.mu.Lock()
		current := c.connected && c.conn == s.conn
		delete(c.subs, s.id)
		c.mu.Unlock()
		if !current {
			return
		}
		if werr := c.writeFrame(s.conn, frame.New(frame.UNSUBSCRIBE, frame.Id, s.id)); werr != nil {
			err = fmt.Errorf("unsubscribe %s: %w", s.id, werr)
		}
	})
	return err
}

func (c *Client) run(ctx context.Context, hooks app.TransportHooks, done chan struct{}) {
	defer close(done)
	for {
		if hooks.OnConnecting != nil {
			hooks.OnConnecting()
		}
		err := c.connectAndServe(ctx, hooks)
		if ctx.Err() != nil {
			return
		}
		delay := c.cfg.ReconnectDelay
		if delay <= 0 {
			c.log.Warn().Err(err).Msg("connection lost, reconnect disabled")
			return
		}
		c.log.Info().Err(err).Dur("delay", delay).Msg("connection lost, reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (c *Client) connectAndServe(ctx context.Context, hooks app.TransportHooks) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, c.dialHeader())
	if err != nil {
		err = fmt.Errorf("dial broker: %w", err)
		c.notifyDisconnect(ctx, hooks, err)
		return err
	}
	defer conn.Close()

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return ctx.Err()
	}
	c.conn = conn
	c.mu.Unlock()

	if err := c.handshake(conn); err != nil {
		c.reset()
		if errors.Is(err, domain.ErrBrokerError) {
			if hooks.OnError != nil && ctx.Err() == nil {
				hooks.OnError(err)
			}
		} else {
			c.notifyDisconnect(ctx, hooks, err)
		}
		return err
	}

	c.mu.Lock()
	if ctx.Err() != nil {
		c.conn = nil
		c.mu.Unlock()
		return ctx.Err()
	}
	c.connected = true
	c.subs = make(map[string]func([]byte))
	c.mu.Unlock()

	c.log.Info().Msg("connected")
	if hooks.OnConnect != nil {
		hooks.OnConnect()
	}

	err = c.readLoop(conn, hooks)
	c.reset()
	c.notifyDisconnect(ctx, hooks, err)
	return err
}

func (c *Client) handshake(conn *websocket.Conn) error {
	connect := frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.2",
		frame.Host, c.host(),
		frame.HeartBeat, "0,0",
	)
	if c.cfg.Login != "" {
		connect.Header.Add(frame.Login, c.cfg.Login)
		connect.Header.Add(frame.Passcode, c.cfg.Passcode)
	}
	if c.cfg.Token != "" {
		connect.Header.Add("Authorization", "Bearer "+c.cfg.Token)
	}
	if err := c.writeFrame(conn, connect); err != nil {
		return fmt.Errorf("write connect: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read connected: %w", err)
		}
		f, err := decodeFrame(data)
		if err != nil {
			return err
		}
		if f == nil {
			continue
		}
		switch f.Command {
		case frame.CONNECTED:
			return nil
		case frame.ERROR:
			return brokerError(f)
		default:
			return fmt.Errorf("unexpected %s frame during handshake", f.Command)
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn, hooks app.TransportHooks) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f, err := decodeFrame(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping undecodable frame")
			continue
		}
		if f == nil {
			continue
		}

		switch f.Command {
		case frame.MESSAGE:
			id := f.Header.Get(frame.Subscription)
			c.mu.Lock()
			handler := c.subs[id]
			c.mu.Unlock()
			if handler == nil {
				c.log.Debug().Str("subscription", id).Msg("message for unknown subscription")
				continue
			}
			handler(f.Body)
		case frame.ERROR:
			err := brokerError(f)
			c.log.Error().Err(err).Msg("broker error")
			if hooks.OnError != nil {
				hooks.OnError(err)
			}
		case frame.RECEIPT:
		default:
			c.log.Debug().Str("command", f.Command).Msg("ignoring frame")
		}
	}
}

func (c *Client) writeFrame(conn *websocket.Conn, f *frame.Frame) error {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, buf.Bytes())
}

func (c *Client) live() (*websocket.Conn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		return nil, false
	}
	return c.conn, true
}

func (c *Client) reset() {
	c.mu.Lock()
	c.conn = nil
	c.connected = false
	c.subs = make(map[string]func([]byte))
	c.mu.Unlock()
}

func (c *Client) notifyDisconnect(ctx context.Context, hooks app.TransportHooks, err error) {
	if ctx.Err() != nil || hooks.OnDisconnect == nil {
		return
	}
	hooks.OnDisconnect(err)
}

func (c *Client) dialHeader() http.Header {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	return header
}

func (c *Client) host() string {
	if c.cfg.Host != "" {
		return c.cfg.Host
	}
	if u, err := url.Parse(c.cfg.URL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return "/"
}

// decodeFrame returns a nil frame for heart-beats.
func decodeFrame(data []byte) (*frame.Frame, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	f, err := frame.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

func brokerError(f *frame.Frame) error {
	msg := f.Header.Get(frame.Message)
	if body := strings.TrimSpace(string(f.Body)); body != "" {
		if msg == "" {
			msg = body
		} else {
			msg += ": " + body
		}
	}
	if msg == "" {
		msg = "unspecified"
	}
	return fmt.Errorf("%w: %s", domain.ErrBrokerError, msg)
}
