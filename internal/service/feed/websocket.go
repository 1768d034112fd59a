package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"DualSignal/internal/domain/models"
	drepo "DualSignal/internal/domain/repository"
	applogger "DualSignal/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client implements MarketStream over a Polygon-style aggregate websocket.
type Client struct {
	apiKey       string
	url          string
	channel      string
	symbols      []string
	pingInterval time.Duration
	readTimeout  time.Duration
	bufferSize   int
	log          *applogger.Logger
	metrics      drepo.Metrics

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// Options for New.
type Options struct {
	APIKey       string
	URL          string
	Channel      string
	Symbols      []string
	PingInterval time.Duration
	ReadTimeout  time.Duration
	BufferSize   int
}

// New creates a websocket MarketStream.
func New(opts Options, log *applogger.Logger, metrics drepo.Metrics) drepo.MarketStream {
	if opts.Channel == "" {
		opts.Channel = "AM"
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1024
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	return &Client{
		apiKey:       opts.APIKey,
		url:          opts.URL,
		channel:      opts.Channel,
		symbols:      opts.Symbols,
		pingInterval: opts.PingInterval,
		readTimeout:  opts.ReadTimeout,
		bufferSize:   opts.BufferSize,
		log:          log.Named("feed"),
		metrics:      metrics,
	}
}

type action struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// Connect dials, consumes the server handshake, and authenticates.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	if err := c.awaitStatus(conn, "connected"); err != nil {
		_ = conn.Close()
		return err
	}
	if c.apiKey != "" {
		if err := conn.WriteJSON(action{Action: "auth", Params: c.apiKey}); err != nil {
			_ = conn.Close()
			return fmt.Errorf("feed auth: %w", err)
		}
		if err := c.awaitStatus(conn, "auth_success"); err != nil {
			_ = conn.Close()
			return err
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("feed connected", applogger.String("url", c.url))
	return nil
}

// awaitStatus reads frames until a status event with the wanted value arrives.
func (c *Client) awaitStatus(conn *websocket.Conn, want string) error {
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed await %s: %w", want, err)
		}
		frame, err := DecodeFrame(b)
		if err != nil {
			continue
		}
		for _, st := range frame.Statuses {
			switch st.Status {
			case want:
				return nil
			case "auth_failed", "error":
				return fmt.Errorf("feed %s: %s", st.Status, st.Message)
			}
		}
	}
}

// Subscribe requests aggregate bars for every watchlist symbol.
func (c *Client) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return fmt.Errorf("feed not connected")
	}
	params := make([]string, 0, len(c.symbols))
	for _, s := range c.symbols {
		params = append(params, c.channel+"."+s)
	}
	if err := c.conn.WriteJSON(action{Action: "subscribe", Params: strings.Join(params, ",")}); err != nil {
		return fmt.Errorf("feed subscribe: %w", err)
	}
	c.log.Info("feed subscribed", applogger.Strings("symbols", c.symbols))
	return nil
}

// Read streams bars until the connection fails or ctx ends. Malformed frames are dropped.
func (c *Client) Read(ctx context.Context) (<-chan *models.Bar, <-chan error) {
	bars := make(chan *models.Bar, c.bufferSize)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		errs <- fmt.Errorf("feed conn nil")
		close(bars)
		close(errs)
		return bars, errs
	}

	readCtx, cancel := context.WithCancel(ctx)
	go c.pingLoop(readCtx, conn)

	go func() {
		defer close(errs)
		defer close(bars)
		defer cancel()
		for {
			if c.readTimeout > 0 {
				_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				if readCtx.Err() != nil {
					return
				}
				c.setConnected(false)
				errs <- fmt.Errorf("feed read: %w", err)
				return
			}
			frame, err := DecodeFrame(b)
			if err != nil || frame.Malformed > 0 {
				c.metrics.RecordError("feed_decode")
				c.log.Warn("dropped malformed feed message",
					applogger.Int("malformed", frame.Malformed), applogger.Error(err))
			}
			for _, st := range frame.Statuses {
				c.log.Debug("feed status", applogger.String("status", st.Status), applogger.String("message", st.Message))
			}
			for _, bar := range frame.Bars {
				select {
				case bars <- bar:
				case <-readCtx.Done():
					return
				}
			}
		}
	}()

	// unblock ReadMessage when the caller cancels
	go func() {
		<-readCtx.Done()
		if ctx.Err() != nil {
			_ = conn.Close()
		}
	}()

	return bars, errs
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				c.log.Debug("feed ping failed", applogger.Error(err))
			}
		}
	}
}

// Reconnect closes and reconnects. Backoff between attempts is the caller's job.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
