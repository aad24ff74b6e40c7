package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/adi-253/chatfeed/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultPollLimit caps the number of messages returned by one poll.
const DefaultPollLimit = 200

// stored is a message plus its per-user reactions.
type stored struct {
	msg models.Message
	// reactions maps a user to their emoji; order records first use of
	// each emoji so counts come out in a stable order.
	reactions map[models.ID]string
	order     []string
}

// MessageService handles message storage and retrieval.
// Uses in-memory storage; persistence is out of scope for the dev backend.
type MessageService struct {
	threads *ThreadService

	// messages stores messages per thread in ID order
	messages map[models.ID][]*stored
	byID     map[models.ID]*stored

	// waiters is closed and replaced whenever a thread gets a message
	waiters map[models.ID]chan struct{}

	nextID models.ID
	now    func() time.Time
	mu     sync.RWMutex
}

// NewMessageService creates a new MessageService instance
func NewMessageService(threads *ThreadService) *MessageService {
	return &MessageService{
		threads:  threads,
		messages: make(map[models.ID][]*stored),
		byID:     make(map[models.ID]*stored),
		waiters:  make(map[models.ID]chan struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SendMessage adds a new message to a thread. In broadcast threads only the
// owner may post. A reply target outside the thread is dropped.
func (s *MessageService) SendMessage(tid, sender models.ID, req models.SendMessageRequest) (*models.Message, error) {
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, ErrEmptyBody
	}
	thread, err := s.threads.Authorize(tid, sender)
	if err != nil {
		return nil, err
	}
	if thread.Type == models.ThreadBroadcast && thread.CreatedBy != sender {
		return nil, ErrForbidden
	}

	s.mu.Lock()
	s.nextID++
	msg := models.Message{
		ID:        s.nextID,
		ThreadID:  tid,
		SenderID:  sender,
		Body:      body,
		CreatedAt: models.NewTimestamp(s.now()),
	}
	if target, ok := s.byID[req.ReplyTo]; ok && target.msg.ThreadID == tid {
		msg.ReplyTo = req.ReplyTo
	}
	st := &stored{msg: msg, reactions: make(map[models.ID]string)}
	s.messages[tid] = append(s.messages[tid], st)
	s.byID[msg.ID] = st
	if ch, ok := s.waiters[tid]; ok {
		close(ch)
		delete(s.waiters, tid)
	}
	s.mu.Unlock()

	s.threads.Touch(tid, msg.CreatedAt.Time)
	log.Debug().Int64("thread_id", int64(tid)).Int64("message_id", int64(msg.ID)).Msg("message stored")
	return &msg, nil
}

// Since returns up to limit messages after since visible to viewer, oldest
// first. Subscribers of a broadcast thread see the owner's messages and
// their own.
func (s *MessageService) Since(tid, viewer, since models.ID, limit int) ([]models.Message, error) {
	thread, err := s.threads.Authorize(tid, viewer)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > DefaultPollLimit {
		limit = DefaultPollLimit
	}
	restricted := thread.Type == models.ThreadBroadcast && thread.CreatedBy != viewer

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Message{}
	for _, st := range s.messages[tid] {
		if st.msg.ID <= since {
			continue
		}
		if restricted && st.msg.SenderID != thread.CreatedBy && st.msg.SenderID != viewer {
			continue
		}
		out = append(out, st.view(viewer))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Wait blocks until the thread has a message after since or ctx is done.
func (s *MessageService) Wait(ctx context.Context, tid, since models.ID) {
	for {
		s.mu.Lock()
		msgs := s.messages[tid]
		if len(msgs) > 0 && msgs[len(msgs)-1].msg.ID > since {
			s.mu.Unlock()
			return
		}
		ch, ok := s.waiters[tid]
		if !ok {
			ch = make(chan struct{})
			s.waiters[tid] = ch
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-ch:
		}
	}
}

// React sets user's reaction on a message; an empty emoji removes it.
func (s *MessageService) React(tid, user, mid models.ID, emoji string) (*models.Message, error) {
	if _, err := s.threads.Authorize(tid, user); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byID[mid]
	if !ok || st.msg.ThreadID != tid {
		return nil, ErrNotFound
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		delete(st.reactions, user)
	} else {
		st.reactions[user] = emoji
		if !contains(st.order, emoji) {
			st.order = append(st.order, emoji)
		}
	}
	m := st.view(user)
	return &m, nil
}

// EditMessage replaces the body of a message. Only its sender may edit it.
func (s *MessageService) EditMessage(tid, user, mid models.ID, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyBody
	}
	if _, err := s.threads.Authorize(tid, user); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byID[mid]
	if !ok || st.msg.ThreadID != tid {
		return nil, ErrNotFound
	}
	if st.msg.SenderID != user {
		return nil, ErrForbidden
	}
	st.msg.Body = body
	m := st.view(user)
	return &m, nil
}

// view returns the message as seen by viewer, with aggregated reactions.
func (st *stored) view(viewer models.ID) models.Message {
	m := st.msg
	counts := make(map[string]int, len(st.order))
	for _, e := range st.reactions {
		counts[e]++
	}
	for _, e := range st.order {
		if n := counts[e]; n > 0 {
			m.Reactions = append(m.Reactions, models.Reaction{Emoji: e, Count: n})
		}
	}
	m.UserReaction = st.reactions[viewer]
	return m
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
