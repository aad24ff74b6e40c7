package rtdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, opts Options) (*Hub, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	opts.Logger = zerolog.Nop()
	hub := NewHub(opts)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(NewHandler(hub).ServeWS))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, key string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), url, DialOptions{APIKey: key, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// collector records child events in arrival order.
type collector struct {
	mu   sync.Mutex
	keys []string
	data map[string]string
}

func (c *collector) fn(key string, data json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string]string)
	}
	c.keys = append(c.keys, key)
	c.data[key] = string(data)
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.keys...)
}

func TestSignIn(t *testing.T) {
	_, url := startHub(t, Options{APIKey: "secret"})
	ctx := context.Background()

	uid, err := dial(t, url, "secret").SignInAnonymously(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, uid)

	other, err := dial(t, url, "secret").SignInAnonymously(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, uid, other)

	_, err = dial(t, url, "wrong").SignInAnonymously(ctx)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestRequireAuthRejectsAnonymousSubscribe(t *testing.T) {
	_, url := startHub(t, Options{RequireAuth: true})
	c := dial(t, url, "")
	var col collector

	err := c.Subscribe(context.Background(), "threads/1/messages", col.fn)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = c.SignInAnonymously(context.Background())
	require.NoError(t, err)
	assert.NoError(t, c.Subscribe(context.Background(), "threads/1/messages", col.fn))
}

func TestSubscribeReplaysThenStreams(t *testing.T) {
	hub, url := startHub(t, Options{})
	ctx := context.Background()

	writer := dial(t, url, "")
	require.NoError(t, writer.Set(ctx, "threads/1/messages", "1", map[string]any{"message_id": 1}))
	require.NoError(t, writer.Set(ctx, "threads/1/messages", "2", map[string]any{"message_id": 2}))

	var col collector
	reader := dial(t, url, "")
	require.NoError(t, reader.Subscribe(ctx, "/threads/1/messages/", col.fn))
	require.Eventually(t, func() bool { return len(col.snapshot()) == 2 }, time.Second, time.Millisecond)

	require.NoError(t, writer.Set(ctx, "threads/1/messages", "3", map[string]any{"message_id": 3, "body": "new"}))
	// Overwrites are stored but not announced.
	require.NoError(t, writer.Set(ctx, "threads/1/messages", "1", map[string]any{"message_id": 1, "body": "changed"}))
	// Other paths are not delivered.
	require.NoError(t, writer.Set(ctx, "threads/2/messages", "9", map[string]any{"message_id": 9}))

	require.Eventually(t, func() bool { return len(col.snapshot()) == 3 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"1", "2", "3"}, col.snapshot())
	assert.JSONEq(t, `{"message_id":3,"body":"new"}`, col.data["3"])
	assert.Equal(t, []string{"1", "2", "3"}, hub.Children("threads/1/messages"))
}

func TestReplayLargerThanSendBuffer(t *testing.T) {
	hub, url := startHub(t, Options{})
	ctx := context.Background()

	const total = sendBuffer + 100
	for i := 1; i <= total; i++ {
		hub.set("threads/1/messages", fmt.Sprint(i), json.RawMessage(fmt.Sprintf(`{"message_id":%d}`, i)))
	}

	var col collector
	reader := dial(t, url, "")
	require.NoError(t, reader.Subscribe(ctx, "threads/1/messages", col.fn))
	require.Eventually(t, func() bool { return len(col.snapshot()) == total }, 5*time.Second, time.Millisecond)

	// The subscription survives the replay and keeps streaming.
	writer := dial(t, url, "")
	require.NoError(t, writer.Set(ctx, "threads/1/messages", "new", map[string]any{"message_id": total + 1}))
	require.Eventually(t, func() bool { return len(col.snapshot()) == total+1 }, time.Second, time.Millisecond)

	keys := col.snapshot()
	assert.Equal(t, "1", keys[0])
	assert.Equal(t, fmt.Sprint(total), keys[total-1])
	assert.Equal(t, "new", keys[total])
	select {
	case <-reader.Done():
		t.Fatal("subscriber was disconnected")
	default:
	}
}

func TestSetValidation(t *testing.T) {
	_, url := startHub(t, Options{})
	c := dial(t, url, "")
	ctx := context.Background()

	assert.Error(t, c.Set(ctx, "a/../b", "1", 1))
	assert.Error(t, c.Set(ctx, "threads/1", "", 1))
	assert.Error(t, c.Subscribe(ctx, "", func(string, json.RawMessage) {}))
}

func TestClientCloseEndsCalls(t *testing.T) {
	_, url := startHub(t, Options{})
	c := dial(t, url, "")
	require.NoError(t, c.Close())

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed")
	}
	assert.ErrorIs(t, c.Set(context.Background(), "a", "1", 1), ErrClosed)
}

func TestHubStopDisconnectsClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(Options{Logger: zerolog.Nop()})
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(NewHandler(hub).ServeWS))
	defer srv.Close()

	c := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"), "")
	_, err := c.SignInAnonymously(context.Background())
	require.NoError(t, err)

	cancel()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client not disconnected")
	}
}

func TestPrune(t *testing.T) {
	hub, url := startHub(t, Options{})
	ctx := context.Background()

	writer := dial(t, url, "")
	require.NoError(t, writer.Set(ctx, "idle", "1", 1))

	reader := dial(t, url, "")
	require.NoError(t, reader.Subscribe(ctx, "watched", func(string, json.RawMessage) {}))
	require.Equal(t, 2, hub.PathCount())

	assert.Equal(t, 0, hub.Prune(time.Now().Add(-time.Hour)))
	assert.Equal(t, 1, hub.Prune(time.Now().Add(time.Second)))
	assert.Nil(t, hub.Children("idle"))
	assert.Equal(t, 1, hub.PathCount())
}

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"threads/1/messages", "threads/1/messages", true},
		{"/threads/1/", "threads/1", true},
		{"", "", false},
		{"/", "", false},
		{"a//b", "", false},
		{"a/./b", "", false},
	}
	for _, tt := range tests {
		got, ok := CleanPath(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
