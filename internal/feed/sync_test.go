package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adi-253/chatfeed/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend serves the poll, send, react and edit endpoints of thread 9.
type fakeBackend struct {
	mu       sync.Mutex
	messages []models.Message
	nextID   models.ID
	sends    atomic.Int32
	onSend   func()
	failSend bool
	srv      *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	b := &fakeBackend{nextID: 100}
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/api/t/9/poll", b.poll)
	mux.HandleFunc("/chat/api/t/9/send", b.send)
	mux.HandleFunc("/chat/t/9/m/", b.form)
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) add(m models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, m)
}

func (b *fakeBackend) poll(w http.ResponseWriter, r *http.Request) {
	since := models.ParseID(r.URL.Query().Get("since"))
	b.mu.Lock()
	out := []models.Message{}
	for _, m := range b.messages {
		if m.ID > since {
			out = append(out, m)
		}
	}
	b.mu.Unlock()
	time.Sleep(2 * time.Millisecond)
	json.NewEncoder(w).Encode(models.PollResponse{Messages: out})
}

func (b *fakeBackend) send(w http.ResponseWriter, r *http.Request) {
	b.sends.Add(1)
	if b.onSend != nil {
		b.onSend()
	}
	if b.failSend {
		http.Error(w, "nope", http.StatusInternalServerError)
		return
	}
	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	b.nextID++
	m := models.Message{ID: b.nextID, ThreadID: 9, SenderID: 1, Body: req.Body, ReplyTo: req.ReplyTo,
		CreatedAt: models.NewTimestamp(time.Now().UTC())}
	b.messages = append(b.messages, m)
	b.mu.Unlock()
	json.NewEncoder(w).Encode(models.SendMessageResponse{Message: &m})
}

func (b *fakeBackend) form(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	mid := models.ParseID(parts[len(parts)-2])
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.messages {
		if b.messages[i].ID != mid {
			continue
		}
		switch parts[len(parts)-1] {
		case "react":
			b.messages[i].UserReaction = r.PostFormValue("emoji")
			b.messages[i].Reactions = models.Reactions{{Emoji: r.PostFormValue("emoji"), Count: 1}}
		case "edit":
			b.messages[i].Body = r.PostFormValue("body")
		}
		m := b.messages[i]
		json.NewEncoder(w).Encode(models.SendMessageResponse{Message: &m})
		return
	}
	http.NotFound(w, r)
}

func (b *fakeBackend) view() *models.ThreadView {
	v := testView()
	v.PollURL = b.srv.URL + "/chat/api/t/9/poll"
	v.SendURL = b.srv.URL + "/chat/api/t/9/send"
	return v
}

func newTestSync(t *testing.T, b *fakeBackend, mutate func(*Config)) (*Synchronizer, *List) {
	t.Helper()
	list := NewList(nil)
	cfg := Config{
		View:       b.view(),
		Surface:    list,
		HTTPClient: b.srv.Client(),
		Logger:     zerolog.Nop(),
		Metrics:    NewMetrics(nil),
		Poll:       PollOptions{Backoff: 10 * time.Millisecond},
		Push:       fastPush(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s, list
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Surface: NewList(nil)})
	assert.Error(t, err)
	_, err = New(Config{View: testView()})
	assert.Error(t, err)
	_, err = New(Config{View: &models.ThreadView{}, Surface: NewList(nil)})
	assert.Error(t, err)
}

func TestDeliverRendersEachIDOnce(t *testing.T) {
	b := newFakeBackend(t)
	s, list := newTestSync(t, b, nil)

	// Poll, push and send deliver the same IDs in every order.
	orders := [][]Source{
		{SourcePoll, SourcePush, SourceSend},
		{SourcePush, SourcePoll, SourceSend},
		{SourceSend, SourcePush, SourcePoll},
	}
	id := models.ID(0)
	for _, order := range orders {
		id++
		for _, src := range order {
			s.deliver(models.Message{ID: id}, src)
		}
	}
	assert.Equal(t, []models.ID{1, 2, 3}, list.IDs())
	assert.Equal(t, models.ID(3), s.Watermark())
	assert.Equal(t, 3, list.ScrolledTo())
	assert.Equal(t, 6.0, testutil.ToFloat64(s.metrics.duplicates.WithLabelValues("poll"))+
		testutil.ToFloat64(s.metrics.duplicates.WithLabelValues("push"))+
		testutil.ToFloat64(s.metrics.duplicates.WithLabelValues("send")))
}

func TestDeliverConcurrentSources(t *testing.T) {
	b := newFakeBackend(t)
	s, list := newTestSync(t, b, nil)

	var wg sync.WaitGroup
	for _, src := range []Source{SourcePoll, SourcePush, SourceSend} {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			for id := models.ID(1); id <= 200; id++ {
				s.deliver(models.Message{ID: id}, src)
			}
		}(src)
	}
	wg.Wait()

	ids := list.IDs()
	require.NotEmpty(t, ids)
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1], "rendered IDs must be unique and increasing")
	}
	assert.Equal(t, models.ID(200), s.Watermark())
}

func TestSeededIDsAreNotRendered(t *testing.T) {
	b := newFakeBackend(t)
	s, list := newTestSync(t, b, func(c *Config) { c.Seed = []models.ID{5, 3} })

	assert.False(t, s.deliver(models.Message{ID: 5}, SourcePoll))
	assert.True(t, s.deliver(models.Message{ID: 6}, SourcePoll))
	assert.Equal(t, []models.ID{6}, list.IDs())
}

func TestStartPollsAndStops(t *testing.T) {
	b := newFakeBackend(t)
	b.add(models.Message{ID: 1, Body: "one"})
	b.add(models.Message{ID: 2, Body: "two"})
	s, list := newTestSync(t, b, func(c *Config) { c.Seed = []models.ID{1} })

	s.Start(context.Background())
	require.Eventually(t, func() bool { return list.Len() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []models.ID{2}, list.IDs())

	b.add(models.Message{ID: 3, Body: "three"})
	require.Eventually(t, func() bool { return s.Watermark() == 3 }, time.Second, time.Millisecond)

	s.Stop()
	s.Stop()
	assert.False(t, s.PushEnabled())
}

func TestSendBlankIsNoop(t *testing.T) {
	b := newFakeBackend(t)
	s, list := newTestSync(t, b, nil)
	s.Composer().SetBody("   ")

	m, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Equal(t, int32(0), b.sends.Load())
	assert.Equal(t, "   ", s.Composer().Body(), "blank input stays untouched")
	assert.Equal(t, 0, list.Len())
}

func TestSendClearsInputBeforeRequest(t *testing.T) {
	b := newFakeBackend(t)
	s, list := newTestSync(t, b, nil)

	var bodyDuringSend atomic.Value
	b.onSend = func() { bodyDuringSend.Store(s.Composer().Body()) }

	s.Composer().SetBody("hello there")
	s.Composer().SetReplyTo(4)
	m, err := s.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.Equal(t, "", bodyDuringSend.Load())
	assert.Equal(t, "hello there", m.Body)
	assert.Equal(t, models.ID(4), m.ReplyTo)
	assert.Equal(t, []models.ID{m.ID}, list.IDs())
	assert.Equal(t, m.ID, s.Watermark())
	assert.Equal(t, models.ID(0), s.Composer().ReplyTo())

	// The poll echo of the same message is dropped.
	assert.False(t, s.deliver(*m, SourcePoll))
}

func TestSendFailureKeepsInputCleared(t *testing.T) {
	b := newFakeBackend(t)
	b.failSend = true
	s, list := newTestSync(t, b, nil)

	s.Composer().SetBody("lost words")
	s.Composer().SetReplyTo(7)
	_, err := s.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusInternalServerError))

	assert.Equal(t, "", s.Composer().Body())
	assert.Equal(t, models.ID(7), s.Composer().ReplyTo())
	assert.Equal(t, 0, list.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.sendFailures))
}

func TestSendWithoutMessageInResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	view := testView()
	view.PollURL = srv.URL + "/poll"
	view.SendURL = srv.URL + "/send"
	s, err := New(Config{View: view, Surface: NewList(nil), HTTPClient: srv.Client()})
	require.NoError(t, err)

	_, err = s.Send(context.Background(), "hi", 0)
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestOneShotSendMirrors(t *testing.T) {
	b := newFakeBackend(t)
	store := newFakeStore()
	d := &scriptedDialer{results: []any{store}}
	s, list := newTestSync(t, b, func(c *Config) {
		c.View.Push = &models.PushConfig{Config: &models.StoreConfig{URL: "ws://store.invalid"}}
		c.Dialer = d.dial
	})

	require.NoError(t, s.OpenPush(context.Background()))
	assert.True(t, s.PushEnabled())
	assert.Empty(t, store.subscribedPath(), "publishing does not subscribe")

	m, err := s.Send(context.Background(), "from the cli", 0)
	require.NoError(t, err)
	assert.Equal(t, []models.ID{m.ID}, list.IDs())

	store.mu.Lock()
	require.Len(t, store.sets, 1)
	assert.Equal(t, "threads/9/messages", store.sets[0].path)
	assert.Equal(t, m.ID.String(), store.sets[0].key)
	store.mu.Unlock()

	s.Close()
	assert.False(t, s.PushEnabled())
	select {
	case <-store.Done():
	default:
		t.Fatal("store left open")
	}
}

func TestOpenPushWithoutConfig(t *testing.T) {
	s, _ := newTestSync(t, newFakeBackend(t), nil)
	assert.ErrorIs(t, s.OpenPush(context.Background()), ErrPushDisabled)
	s.Close()
}

func TestSendMirrorsWhenPushEnabled(t *testing.T) {
	b := newFakeBackend(t)
	store := newFakeStore()
	d := &scriptedDialer{results: []any{store}}
	s, list := newTestSync(t, b, func(c *Config) {
		c.View.Push = &models.PushConfig{Config: &models.StoreConfig{URL: "ws://store.invalid"}}
		c.Dialer = d.dial
	})

	s.Start(context.Background())
	defer s.Stop()
	require.Eventually(t, s.PushEnabled, time.Second, time.Millisecond)

	m, err := s.Send(context.Background(), "mirrored", 0)
	require.NoError(t, err)

	store.mu.Lock()
	require.Len(t, store.sets, 1)
	assert.Equal(t, m.ID.String(), store.sets[0].key)
	store.mu.Unlock()

	// The store echoes the mirrored write back as a child event.
	store.emit(m.ID.String(), `{"message_id":`+m.ID.String()+`,"text":"mirrored"}`)
	assert.Equal(t, []models.ID{m.ID}, list.IDs())
}

func TestPushFailureFallsBackToPolling(t *testing.T) {
	b := newFakeBackend(t)
	b.add(models.Message{ID: 1, Body: "via poll"})
	d := &scriptedDialer{results: []any{errors.New("store unreachable")}}
	s, list := newTestSync(t, b, func(c *Config) {
		c.View.Push = &models.PushConfig{Config: &models.StoreConfig{URL: "ws://store.invalid"}}
		c.Dialer = d.dial
	})

	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return list.Len() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return d.dials.Load() == 3 }, time.Second, time.Millisecond)
	assert.False(t, s.PushEnabled())
}

func TestReactAndEditReplaceFragment(t *testing.T) {
	b := newFakeBackend(t)
	s, list := newTestSync(t, b, nil)

	m, err := s.Send(context.Background(), "first draft", 0)
	require.NoError(t, err)
	before := list.Items()[0].HTML

	edited, err := s.Edit(context.Background(), m.ID, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Body)

	reacted, err := s.React(context.Background(), m.ID, "🎉")
	require.NoError(t, err)
	assert.Equal(t, "🎉", reacted.UserReaction)

	items := list.Items()
	require.Len(t, items, 1)
	assert.NotEqual(t, before, items[0].HTML)
	assert.Contains(t, string(items[0].HTML), "final")
	assert.Contains(t, string(items[0].HTML), `data-emoji="🎉"`)

	_, err = s.Edit(context.Background(), 9999, "nothing")
	assert.True(t, IsStatus(err, http.StatusNotFound))
}
