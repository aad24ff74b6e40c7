package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/adi-253/chatfeed/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultPollBackoff is the pause after a failed poll.
const DefaultPollBackoff = 1500 * time.Millisecond

// Poller fetches messages newer than the watermark. It is the reliability
// fallback and keeps running whether or not push is available.
type Poller struct {
	api     *apiClient
	url     string
	backoff time.Duration
	wait    time.Duration
	limiter *rate.Limiter
	metrics *Metrics
	logger  zerolog.Logger
}

// PollOptions tunes the poll loop.
type PollOptions struct {
	// Interval is the minimum spacing between successful polls. Zero repolls
	// immediately, which suits a long-polling backend.
	Interval time.Duration
	// Backoff is the pause after a failure. Defaults to DefaultPollBackoff.
	Backoff time.Duration
	// Wait asks the backend to hold the request open for up to this long.
	Wait time.Duration
}

func newPoller(api *apiClient, pollURL string, opts PollOptions, metrics *Metrics, logger zerolog.Logger) *Poller {
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultPollBackoff
	}
	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}
	return &Poller{
		api:     api,
		url:     pollURL,
		backoff: opts.Backoff,
		wait:    opts.Wait,
		limiter: rate.NewLimiter(limit, 1),
		metrics: metrics,
		logger:  logger.With().Str("component", "poll").Logger(),
	}
}

// Fetch issues one poll for messages after since. A payload without a
// messages field means nothing new. Mistyped fields decode as empty values;
// entries without an ID are skipped.
func (p *Poller) Fetch(ctx context.Context, since models.ID) ([]models.Message, error) {
	u, err := url.Parse(p.url)
	if err != nil {
		return nil, fmt.Errorf("parse poll url: %w", err)
	}
	q := u.Query()
	q.Set("since", strconv.FormatInt(int64(since), 10))
	if p.wait > 0 {
		q.Set("wait", p.wait.String())
	}
	u.RawQuery = q.Encode()

	var payload struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := p.api.getJSON(ctx, u.String(), &payload); err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0, len(payload.Messages))
	for _, raw := range payload.Messages {
		m := models.DecodeMessage(raw)
		if m.ID == 0 {
			p.logger.Warn().RawJSON("payload", raw).Msg("skipping message without an id")
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Run polls until ctx is cancelled, handing every message to deliver in the
// order received. cursor supplies the current watermark for each request.
func (p *Poller) Run(ctx context.Context, cursor func() models.ID, deliver func(models.Message)) {
	p.logger.Debug().Str("url", p.url).Dur("backoff", p.backoff).Msg("poll loop started")
	defer p.logger.Debug().Msg("poll loop stopped")

	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}

		since := cursor()
		msgs, err := p.Fetch(ctx, since)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.metrics.pollErrors.Inc()
			p.logger.Warn().Err(err).Int64("since", int64(since)).Msg("poll error")
			if !sleep(ctx, p.backoff) {
				return
			}
			continue
		}

		for _, m := range msgs {
			deliver(m)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
