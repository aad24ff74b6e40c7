package feed

import (
	"strings"
	"testing"

	"github.com/adi-253/chatfeed/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threadPage = `<!doctype html>
<html><body>
<div id="chat-list">
  <div class="chat-msg" data-mid="3">a</div>
  <div class="chat-msg me" data-mid="8">b</div>
  <div class="chat-msg" data-mid="nope">c</div>
</div>
<script id="chat-config" type="application/json">
  {"threadId":9,"currentUserId":1,"pollUrl":"/chat/api/t/9/poll","sendUrl":"/chat/api/t/9/send",
   "push":{"config":{"url":"/rtdb/ws","apiKey":"k"}},"canReact":true,"reactionChoices":["👍"],
   "threadType":"broadcast","isOwner":false,"senders":{"2":{"label":"ana"}}}
</script>
</body></html>`

func TestLoadPage(t *testing.T) {
	page, err := LoadPage(strings.NewReader(threadPage))
	require.NoError(t, err)

	assert.Equal(t, []models.ID{3, 8}, page.SeedIDs)
	v := page.View
	assert.Equal(t, models.ID(9), v.ThreadID)
	assert.Equal(t, models.ID(1), v.CurrentUserID)
	assert.Equal(t, "/chat/api/t/9/poll", v.PollURL)
	require.NotNil(t, v.Push)
	assert.Equal(t, "k", v.Push.Config.APIKey)
	assert.Equal(t, models.ThreadBroadcast, v.ThreadType)
	assert.False(t, v.CanReply())
	assert.Equal(t, "ana", v.SenderLabel(2))

	// The seeded tracker drops what the page already shows.
	tr := NewTracker(page.SeedIDs...)
	assert.False(t, tr.ShouldRender(models.Message{ID: 8}))
}

func TestLoadPageErrors(t *testing.T) {
	_, err := LoadPage(strings.NewReader(`<html><body><div data-mid="1"></div></body></html>`))
	assert.Error(t, err)

	_, err = LoadPage(strings.NewReader(`<script id="chat-config" type="application/json">{not json</script>`))
	assert.Error(t, err)
}

func TestListReplaceUnknownID(t *testing.T) {
	var out strings.Builder
	l := NewList(&out)
	l.Append(1, "<p>one</p>")
	assert.True(t, l.Replace(1, "<p>uno</p>"))
	assert.False(t, l.Replace(2, "<p>two</p>"))

	assert.Equal(t, "<p>one</p>\n<p>uno</p>\n", out.String())
	assert.Equal(t, "<p>uno</p>", string(l.Items()[0].HTML))
}
