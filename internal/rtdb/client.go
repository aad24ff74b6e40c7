package rtdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ChildFunc receives child_added events for a subscribed path.
type ChildFunc func(key string, data json.RawMessage)

// DialOptions configures a Client.
type DialOptions struct {
	// APIKey is presented when signing in.
	APIKey string
	// Header is sent with the WebSocket handshake.
	Header http.Header
	// HandshakeTimeout defaults to 10s.
	HandshakeTimeout time.Duration
	Logger           zerolog.Logger
}

// Client is a connection to a Hub. Child callbacks run on the client's read
// goroutine, one at a time, in the order the hub sent them; a callback must
// not call back into the client.
type Client struct {
	conn   *websocket.Conn
	apiKey string
	logger zerolog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextRef uint64
	pending map[uint64]chan Frame
	subs    map[string]ChildFunc
	uid     string
	err     error

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the hub at rawURL (ws:// or wss://).
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*Client, error) {
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}

	conn, resp, err := dialer.DialContext(ctx, rawURL, opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("dial %s: %w", rawURL, ErrPermissionDenied)
		}
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}

	c := &Client{
		conn:    conn,
		apiKey:  opts.APIKey,
		logger:  opts.Logger.With().Str("component", "rtdb-client").Logger(),
		pending: make(map[uint64]chan Frame),
		subs:    make(map[string]ChildFunc),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// SignInAnonymously opens an anonymous session and returns its uid.
func (c *Client) SignInAnonymously(ctx context.Context) (string, error) {
	resp, err := c.call(ctx, Frame{Op: OpAuth, Token: c.apiKey})
	if err != nil {
		return "", fmt.Errorf("sign in: %w", err)
	}
	c.mu.Lock()
	c.uid = resp.UID
	c.mu.Unlock()
	return resp.UID, nil
}

// UID returns the session uid, empty before sign-in.
func (c *Client) UID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uid
}

// Subscribe registers fn for child_added events under path. Existing
// children are replayed first.
func (c *Client) Subscribe(ctx context.Context, path string, fn ChildFunc) error {
	clean, ok := CleanPath(path)
	if !ok {
		return fmt.Errorf("subscribe: invalid path %q", path)
	}

	c.mu.Lock()
	c.subs[clean] = fn
	c.mu.Unlock()

	if _, err := c.call(ctx, Frame{Op: OpSubscribe, Path: clean}); err != nil {
		c.mu.Lock()
		delete(c.subs, clean)
		c.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", clean, err)
	}
	return nil
}

// Set writes value as child key of path.
func (c *Client) Set(ctx context.Context, path, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("set: marshal: %w", err)
	}
	if _, err := c.call(ctx, Frame{Op: OpSet, Path: path, Key: key, Data: data}); err != nil {
		return fmt.Errorf("set %s/%s: %w", path, key, err)
	}
	return nil
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection ended, if it has.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close ends the connection.
func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

func (c *Client) call(ctx context.Context, f Frame) (Frame, error) {
	ch := make(chan Frame, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return Frame{}, err
	}
	c.nextRef++
	f.Ref = c.nextRef
	c.pending[f.Ref] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, f.Ref)
		c.mu.Unlock()
	}()

	if err := c.write(f); err != nil {
		return Frame{}, err
	}

	select {
	case resp := <-ch:
		if resp.Op == OpError {
			return resp, frameError(resp)
		}
		return resp, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-c.done:
		return Frame{}, c.Err()
	}
}

func (c *Client) write(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.shutdown(err)
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn().Err(err).Msg("malformed frame")
			continue
		}

		switch {
		case f.Op == OpChildAdded:
			c.mu.Lock()
			fn := c.subs[f.Path]
			c.mu.Unlock()
			if fn != nil {
				fn(f.Key, f.Data)
			}

		case f.Ref != 0:
			c.mu.Lock()
			ch := c.pending[f.Ref]
			c.mu.Unlock()
			if ch != nil {
				ch <- f
			}

		case f.Op == OpError:
			c.logger.Warn().Str("error", f.Error).Msg("store error")
		}
	}
}

func (c *Client) shutdown(reason error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = reason
		c.mu.Unlock()

		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.conn.Close()
		close(c.done)
	})
}
