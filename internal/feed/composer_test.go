package feed

import (
	"testing"

	"github.com/adi-253/chatfeed/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestComposerReplyTarget(t *testing.T) {
	var c Composer
	assert.Equal(t, models.ID(0), c.ReplyTo())
	assert.Equal(t, "", c.Body())

	c.SetBody("hi")
	c.SetReplyTo(42)
	assert.Equal(t, "hi", c.Body())
	assert.Equal(t, models.ID(42), c.ReplyTo())

	c.ClearReply()
	assert.Equal(t, models.ID(0), c.ReplyTo())
	assert.Equal(t, "hi", c.Body(), "clearing the reply keeps the input")
}
