package feed

import (
	"sync"

	"github.com/adi-253/chatfeed/internal/models"
)

// Composer models the message input field and the active reply target.
type Composer struct {
	mu      sync.Mutex
	body    string
	replyTo models.ID
}

// Body returns the current input text.
func (c *Composer) Body() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.body
}

// SetBody replaces the input text. Send clears it with SetBody("").
func (c *Composer) SetBody(body string) {
	c.mu.Lock()
	c.body = body
	c.mu.Unlock()
}

// ReplyTo returns the message being replied to, 0 when none.
func (c *Composer) ReplyTo() models.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replyTo
}

// SetReplyTo makes the next message a reply to id.
func (c *Composer) SetReplyTo(id models.ID) {
	c.mu.Lock()
	c.replyTo = id
	c.mu.Unlock()
}

// ClearReply drops the reply target.
func (c *Composer) ClearReply() {
	c.SetReplyTo(0)
}
