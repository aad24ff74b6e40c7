package feed

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/adi-253/chatfeed/internal/models"
	"github.com/rs/zerolog"
)

// Config configures a Synchronizer.
type Config struct {
	// View is the thread view configuration. Required.
	View *models.ThreadView

	// Surface receives rendered fragments. Required.
	Surface Surface

	// HTTPClient is used for poll, send and form requests
	HTTPClient *http.Client

	// Header is added to every chat request (session cookie, user id)
	Header http.Header

	// Dialer opens the realtime store; nil uses the rtdb client
	Dialer StoreDialer

	Logger   zerolog.Logger
	Metrics  *Metrics
	Location *time.Location
	Poll     PollOptions
	Push     PushOptions

	// Seed are the IDs already displayed by the page.
	Seed []models.ID

	// Now is the receive clock used for latency labels
	Now func() time.Time
}

// Synchronizer keeps one thread's message list in sync with the backend.
// Poll, push and send may deliver the same message in any order; each ID is
// rendered at most once.
type Synchronizer struct {
	view     *models.ThreadView
	surface  Surface
	renderer *Renderer
	tracker  *Tracker
	poller   *Poller
	pusher   *Pusher
	api      *apiClient
	composer *Composer
	metrics  *Metrics
	logger   zerolog.Logger
	now      func() time.Time

	// mu serializes the check-render-observe sequence
	mu sync.Mutex

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a synchronizer for cfg.View.
func New(cfg Config) (*Synchronizer, error) {
	if cfg.View == nil {
		return nil, errors.New("feed: view is required")
	}
	if cfg.Surface == nil {
		return nil, errors.New("feed: surface is required")
	}
	if cfg.View.PollURL == "" || cfg.View.SendURL == "" {
		return nil, errors.New("feed: poll and send URLs are required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	logger := cfg.Logger.With().Int64("thread_id", int64(cfg.View.ThreadID)).Logger()
	api := &apiClient{http: cfg.HTTPClient, header: cfg.Header.Clone()}

	return &Synchronizer{
		view:     cfg.View,
		surface:  cfg.Surface,
		renderer: NewRenderer(cfg.View, cfg.Location, logger),
		tracker:  NewTracker(cfg.Seed...),
		poller:   newPoller(api, cfg.View.PollURL, cfg.Poll, cfg.Metrics, logger),
		pusher:   newPusher(cfg.View, cfg.Dialer, cfg.Push, cfg.Metrics, logger),
		api:      api,
		composer: &Composer{},
		metrics:  cfg.Metrics,
		logger:   logger,
		now:      cfg.Now,
	}, nil
}

// Start launches push initialization and the poll loop. Push runs alongside
// polling and never blocks it. Start is a no-op while already running.
func (s *Synchronizer) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		err := s.pusher.Run(ctx, func(m models.Message) { s.deliver(m, SourcePush) })
		switch {
		case errors.Is(err, ErrPushDisabled):
			s.logger.Info().Msg("no realtime store configured, polling only")
		case err != nil:
			s.logger.Warn().Err(err).Msg("push unavailable, polling only")
		}
	}()
	go func() {
		defer s.wg.Done()
		s.poller.Run(ctx, s.tracker.Watermark, func(m models.Message) { s.deliver(m, SourcePoll) })
	}()

	s.logger.Info().Int64("watermark", int64(s.tracker.Watermark())).Msg("synchronizer started")
}

// Stop cancels the poll loop and the push subscription and waits for both.
func (s *Synchronizer) Stop() {
	s.runMu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info().Msg("synchronizer stopped")
}

// OpenPush connects the push transport for mirroring only, without the
// subscription or the poll loop. It suits one-shot senders that never Start.
func (s *Synchronizer) OpenPush(ctx context.Context) error {
	return s.pusher.Open(ctx)
}

// Close stops the synchronizer and releases a connection made by OpenPush.
func (s *Synchronizer) Close() {
	s.Stop()
	s.pusher.Close()
}

// Watermark returns the highest rendered message ID.
func (s *Synchronizer) Watermark() models.ID {
	return s.tracker.Watermark()
}

// Composer returns the input state used by Submit.
func (s *Synchronizer) Composer() *Composer {
	return s.composer
}

// PushEnabled reports whether the push subscription is live.
func (s *Synchronizer) PushEnabled() bool {
	return s.pusher.Enabled()
}

// deliver renders m unless its ID is at or below the watermark. It reports
// whether m was rendered.
func (s *Synchronizer) deliver(m models.Message, src Source) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tracker.ShouldRender(m) {
		s.metrics.observeDuplicate(src)
		return false
	}
	s.surface.Append(m.ID, s.renderer.Render(m, s.now()))
	s.surface.ScrollToEnd()
	s.tracker.Observe(m)
	s.metrics.observeRender(src, s.view.ThreadID, s.tracker.Watermark())

	s.logger.Debug().Int64("message_id", int64(m.ID)).Str("source", string(src)).Msg("rendered")
	return true
}
