package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adi-253/chatfeed/internal/models"
	"github.com/adi-253/chatfeed/internal/rtdb"
	"github.com/codeGROOVE-dev/retry"
	"github.com/rs/zerolog"
)

// Store is the realtime backing store used by the push transport.
type Store interface {
	SignInAnonymously(ctx context.Context) (string, error)
	Subscribe(ctx context.Context, path string, fn rtdb.ChildFunc) error
	Set(ctx context.Context, path, key string, value any) error
	Done() <-chan struct{}
	Close() error
}

// StoreDialer opens a Store for the given credentials.
type StoreDialer func(ctx context.Context, cfg models.StoreConfig) (Store, error)

// DialRTDB is the default StoreDialer.
func DialRTDB(logger zerolog.Logger) StoreDialer {
	return func(ctx context.Context, cfg models.StoreConfig) (Store, error) {
		return rtdb.Dial(ctx, cfg.URL, rtdb.DialOptions{APIKey: cfg.APIKey, Logger: logger})
	}
}

// PushOptions tunes connection attempts to the store.
type PushOptions struct {
	// Attempts per (re)connect. Defaults to 3.
	Attempts uint
	// Delay is the initial pause between attempts. Defaults to 1s.
	Delay time.Duration
	// MirrorTimeout bounds a single mirror write. Defaults to 5s.
	MirrorTimeout time.Duration
	// MinUptime is how long a connection must stay up to count as healthy.
	// Shorter connections use up the reconnect budget of Attempts.
	// Defaults to 30s.
	MinUptime time.Duration
}

// ErrPushUnstable is returned when the store keeps dropping the connection
// shortly after subscribing.
var ErrPushUnstable = errors.New("push connection keeps dropping")

// Pusher is the optional push transport. It subscribes to the thread's path
// in the realtime store and mirrors sent messages into it. Any failure
// disables it; the poll path keeps delivering.
type Pusher struct {
	view    *models.ThreadView
	dial    StoreDialer
	opts    PushOptions
	metrics *Metrics
	logger  zerolog.Logger

	mu    sync.Mutex
	store Store
}

func newPusher(view *models.ThreadView, dial StoreDialer, opts PushOptions, metrics *Metrics, logger zerolog.Logger) *Pusher {
	if opts.Attempts == 0 {
		opts.Attempts = 3
	}
	if opts.Delay <= 0 {
		opts.Delay = time.Second
	}
	if opts.MirrorTimeout <= 0 {
		opts.MirrorTimeout = 5 * time.Second
	}
	if opts.MinUptime <= 0 {
		opts.MinUptime = 30 * time.Second
	}
	logger = logger.With().Str("component", "push").Logger()
	if dial == nil {
		dial = DialRTDB(logger)
	}
	return &Pusher{view: view, dial: dial, opts: opts, metrics: metrics, logger: logger}
}

// Enabled reports whether the push subscription is live.
func (p *Pusher) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store != nil
}

// Run connects, subscribes and keeps the subscription alive until ctx is
// cancelled. It returns ErrPushDisabled when the view has no store
// configuration and an error when the store cannot be reached or keeps
// dropping the connection; both leave the transport disabled.
//
// A connection that dies before MinUptime counts as a failed attempt and the
// next reconnect backs off. After Attempts such failures in a row push gives
// up with ErrPushUnstable.
func (p *Pusher) Run(ctx context.Context, deliver func(models.Message)) error {
	if p.view.Push == nil || p.view.Push.Config == nil {
		return ErrPushDisabled
	}

	var failures uint
	for {
		store, err := p.connect(ctx, deliver)
		if err != nil {
			p.setStore(nil)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("push: %w", err)
		}
		p.setStore(store)
		p.logger.Info().Str("path", p.view.PushPath()).Msg("push subscribed")
		connected := time.Now()

		select {
		case <-ctx.Done():
			p.setStore(nil)
			store.Close()
			return nil
		case <-store.Done():
			p.setStore(nil)
		}

		if time.Since(connected) >= p.opts.MinUptime {
			failures = 0
			p.logger.Warn().Msg("push connection lost, reconnecting")
			continue
		}
		failures++
		if failures >= p.opts.Attempts {
			return fmt.Errorf("push: %w after %d reconnects", ErrPushUnstable, failures)
		}
		backoff := p.reconnectDelay(failures)
		p.logger.Warn().Uint("failures", failures).Dur("backoff", backoff).Msg("push connection dropped early, reconnecting")
		if !sleep(ctx, backoff) {
			return nil
		}
	}
}

// reconnectDelay doubles Delay per consecutive failure, capped at 10x Delay.
func (p *Pusher) reconnectDelay(failures uint) time.Duration {
	d := p.opts.Delay
	for i := uint(1); i < failures && d < 10*p.opts.Delay; i++ {
		d *= 2
	}
	if d > 10*p.opts.Delay {
		d = 10 * p.opts.Delay
	}
	return d
}

// Open connects and signs in without subscribing, so Mirror can publish for
// callers that never Run. It must not be mixed with Run on the same Pusher.
func (p *Pusher) Open(ctx context.Context) error {
	if p.view.Push == nil || p.view.Push.Config == nil {
		return ErrPushDisabled
	}
	store, err := p.connect(ctx, nil)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	p.setStore(store)
	return nil
}

// Close releases a connection made by Open.
func (p *Pusher) Close() {
	p.mu.Lock()
	store := p.store
	p.mu.Unlock()
	if store == nil {
		return
	}
	p.setStore(nil)
	store.Close()
}

// connect dials and signs in, subscribing when deliver is non-nil.
func (p *Pusher) connect(ctx context.Context, deliver func(models.Message)) (Store, error) {
	var store Store
	err := retry.Do(
		func() error {
			s, err := p.dial(ctx, *p.view.Push.Config)
			if err != nil {
				return fmt.Errorf("dial: %w", err)
			}
			// Ensure we're signed in (anonymous) so stores requiring auth accept us.
			if _, err := s.SignInAnonymously(ctx); err != nil {
				s.Close()
				return err
			}
			if deliver != nil {
				if err := s.Subscribe(ctx, p.view.PushPath(), func(key string, data json.RawMessage) {
					deliver(normalize(key, data))
				}); err != nil {
					s.Close()
					return err
				}
			}
			store = s
			return nil
		},
		retry.Attempts(p.opts.Attempts),
		retry.Delay(p.opts.Delay),
		retry.MaxDelay(10*p.opts.Delay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Debug().Uint("attempt", n).Err(err).Msg("retrying push connect")
		}),
		retry.RetryIf(func(err error) bool {
			// Rejected credentials will not get better by retrying
			return !errors.Is(err, rtdb.ErrPermissionDenied)
		}),
	)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (p *Pusher) setStore(s Store) {
	p.mu.Lock()
	p.store = s
	p.mu.Unlock()
	p.metrics.setPushEnabled(p.view.ThreadID, s != nil)
}

// mirrorPayload carries the canonical fields plus the aliases older
// consumers of the store expect.
type mirrorPayload struct {
	models.Message
	Text string           `json:"text"`
	TS   models.Timestamp `json:"ts"`
	Name string           `json:"name"`
}

// Mirror writes a confirmed message to the store. Failures are logged and
// counted only; the poll path remains authoritative.
func (p *Pusher) Mirror(ctx context.Context, m models.Message) {
	p.mu.Lock()
	store := p.store
	p.mu.Unlock()
	if store == nil || m.ID == 0 {
		return
	}

	payload := mirrorPayload{Message: m, Text: m.Body, TS: m.CreatedAt, Name: "anon"}
	if payload.TS.IsZero() {
		payload.TS = models.NewTimestamp(time.Now().UTC())
	}
	switch {
	case m.SenderID != 0:
		payload.Name = m.SenderID.String()
	case p.view.CurrentUserID != 0:
		payload.Name = p.view.CurrentUserID.String()
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.MirrorTimeout)
	defer cancel()
	err := retry.Do(
		func() error {
			return store.Set(ctx, p.view.PushPath(), m.ID.String(), payload)
		},
		retry.Attempts(2),
		retry.Delay(p.opts.Delay),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, rtdb.ErrPermissionDenied) && !errors.Is(err, rtdb.ErrClosed)
		}),
	)
	if err != nil {
		p.metrics.mirrorFailures.Inc()
		p.logger.Warn().Err(err).Int64("message_id", int64(m.ID)).Msg("push mirror failed")
	}
}

// normalize turns a store event into a Message. The store key stands in for
// a missing message_id, and legacy aliases fill empty canonical fields.
func normalize(key string, data json.RawMessage) models.Message {
	m := models.DecodeMessage(data)

	var legacy struct {
		Text string           `json:"text"`
		TS   models.Timestamp `json:"ts"`
	}
	_ = json.Unmarshal(data, &legacy)

	if m.ID == 0 {
		m.ID = models.ParseID(key)
	}
	if m.Body == "" {
		m.Body = legacy.Text
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = legacy.TS
	}
	return m
}
