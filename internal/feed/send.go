package feed

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/adi-253/chatfeed/internal/models"
)

// Send posts body as a new message. A blank body does nothing. Otherwise the
// composer input is cleared before the request goes out and stays cleared
// even if the send fails. On success the returned message is rendered,
// mirrored to the realtime store and the reply target is cleared.
func (s *Synchronizer) Send(ctx context.Context, body string, replyTo models.ID) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil
	}
	s.composer.SetBody("")

	logger := s.logger.With().Str("component", "send").Logger()

	var resp models.SendMessageResponse
	req := models.SendMessageRequest{Body: body, ReplyTo: replyTo}
	if err := s.api.postJSON(ctx, s.view.SendURL, req, &resp); err != nil {
		s.metrics.sendFailures.Inc()
		logger.Error().Err(err).Msg("send failed")
		return nil, fmt.Errorf("send: %w", err)
	}
	if resp.Message == nil {
		s.metrics.sendFailures.Inc()
		logger.Error().Msg("send response carried no message")
		return nil, ErrNoMessage
	}

	m := *resp.Message
	s.deliver(m, SourceSend)
	s.pusher.Mirror(ctx, m)
	s.composer.ClearReply()

	logger.Debug().Int64("message_id", int64(m.ID)).Msg("sent")
	return &m, nil
}

// Submit sends the composer's current input and reply target.
func (s *Synchronizer) Submit(ctx context.Context) (*models.Message, error) {
	return s.Send(ctx, s.composer.Body(), s.composer.ReplyTo())
}

// React sets the viewer's reaction on mid; an empty emoji removes it. The
// updated message replaces its displayed fragment.
func (s *Synchronizer) React(ctx context.Context, mid models.ID, emoji string) (*models.Message, error) {
	return s.postAction(ctx, s.view.ReactURL(mid), url.Values{"emoji": {emoji}})
}

// Edit replaces the body of one of the viewer's own messages.
func (s *Synchronizer) Edit(ctx context.Context, mid models.ID, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil
	}
	return s.postAction(ctx, s.view.EditURL(mid), url.Values{"body": {body}})
}

func (s *Synchronizer) postAction(ctx context.Context, action string, form url.Values) (*models.Message, error) {
	target, err := s.actionURL(action)
	if err != nil {
		return nil, err
	}

	var resp models.SendMessageResponse
	if err := s.api.postForm(ctx, target, form, &resp); err != nil {
		return nil, fmt.Errorf("post %s: %w", action, err)
	}
	if resp.Message == nil {
		return nil, ErrNoMessage
	}

	m := *resp.Message
	s.mu.Lock()
	if !s.surface.Replace(m.ID, s.renderer.Render(m, s.now())) {
		s.logger.Debug().Int64("message_id", int64(m.ID)).Msg("updated message not displayed")
	}
	s.mu.Unlock()
	return &m, nil
}

// actionURL resolves the form endpoints against the send URL, which is
// absolute once the view has been resolved.
func (s *Synchronizer) actionURL(action string) (string, error) {
	base, err := url.Parse(s.view.SendURL)
	if err != nil {
		return "", fmt.Errorf("parse send url: %w", err)
	}
	ref, err := url.Parse(action)
	if err != nil {
		return "", fmt.Errorf("parse action url: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}
