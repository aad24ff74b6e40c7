package feed

import (
	"bytes"
	"html/template"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/adi-253/chatfeed/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseFragment(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	sel := doc.Find("div.chat-msg")
	require.Equal(t, 1, sel.Length(), "fragment: %s", html)
	return sel
}

func testView() *models.ThreadView {
	return &models.ThreadView{
		ThreadID:        9,
		CurrentUserID:   1,
		PollURL:         "/chat/api/t/9/poll",
		SendURL:         "/chat/api/t/9/send",
		CanReact:        true,
		ReactionChoices: []string{"👍", "🎉"},
		ThreadType:      models.ThreadGroup,
		Senders:         map[string]models.SenderInfo{"1": {Label: "me"}, "2": {Label: "ana"}},
	}
}

func TestRenderFragment(t *testing.T) {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	m := models.Message{
		ID:        12,
		SenderID:  2,
		Body:      "hello",
		CreatedAt: models.NewTimestamp(created),
		ReplyTo:   11,
	}
	r := NewRenderer(testView(), time.UTC, zerolog.Nop())
	sel := parseFragment(t, string(r.Render(m, created.Add(5400*time.Millisecond))))

	mid, _ := sel.Attr("data-mid")
	assert.Equal(t, "12", mid)
	assert.False(t, sel.HasClass("me"))
	assert.Equal(t, "ana", sel.Find(".sender").Text())
	assert.Equal(t, "2025-01-02 03:04:05.000 (+5.4s)", sel.Find(".ts").Text())
	assert.Equal(t, "replying to #11", sel.Find(".reply-ref").Text())
	assert.Equal(t, "hello", sel.Find(".body").Text())
	assert.Equal(t, 1, sel.Find(`[data-action="reply"]`).Length())
	assert.Equal(t, 0, sel.Find(`[data-action="edit"]`).Length(), "only the author may edit")
}

func TestRenderOwnMessageAndLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	created := time.Date(2025, 1, 2, 3, 4, 5, 250_000_000, time.UTC)
	m := models.Message{ID: 3, SenderID: 1, Body: "mine", CreatedAt: models.NewTimestamp(created)}

	sel := parseFragment(t, string(NewRenderer(testView(), loc, zerolog.Nop()).Render(m, created.Add(900*time.Millisecond))))

	assert.True(t, sel.HasClass("me"))
	assert.Equal(t, "2025-01-02 05:04:05.250 (+900ms)", sel.Find(".ts").Text())
	assert.Equal(t, 1, sel.Find(`.actions [data-action="edit"]`).Length())
	action, _ := sel.Find("form.edit-form").Attr("action")
	assert.Equal(t, "/chat/t/9/m/3/edit", action)
}

func TestRenderEscapesBody(t *testing.T) {
	m := models.Message{ID: 4, SenderID: 2, Body: `<script>alert("x")</script><b>bold</b>`}
	html := string(NewRenderer(testView(), nil, zerolog.Nop()).Render(m, time.Now()))

	assert.NotContains(t, html, "<script>")
	sel := parseFragment(t, html)
	assert.Equal(t, m.Body, sel.Find(".body").Text())
	assert.Equal(t, 0, sel.Find(".body b").Length())
}

func TestRenderMissingFieldsDegrade(t *testing.T) {
	sel := parseFragment(t, string(NewRenderer(testView(), nil, zerolog.Nop()).Render(models.Message{ID: 5}, time.Now())))

	assert.Equal(t, "User 0", sel.Find(".sender").Text())
	assert.Empty(t, strings.TrimSpace(sel.Find(".ts").Text()), "unknown creation time has no timestamp or latency")
	assert.Equal(t, 0, sel.Find(".reply-ref").Length())
	assert.Equal(t, 0, sel.Find(".reaction-row").Length())
}

func TestRenderReactionsHighlightTopCount(t *testing.T) {
	m := models.Message{
		ID:           6,
		SenderID:     2,
		Reactions:    models.Reactions{{Emoji: "👍", Count: 3}, {Emoji: "🎉", Count: 3}, {Emoji: "😀", Count: 1}},
		UserReaction: "👍",
	}
	sel := parseFragment(t, string(NewRenderer(testView(), nil, zerolog.Nop()).Render(m, time.Now())))

	chips := sel.Find(".reaction-row .rg-pill")
	require.Equal(t, 3, chips.Length())
	var unread []string
	chips.Each(func(_ int, c *goquery.Selection) {
		e, _ := c.Attr("data-emoji")
		if c.HasClass("unread") {
			unread = append(unread, e)
		}
	})
	assert.Equal(t, []string{"👍", "🎉"}, unread)

	forms := sel.Find(".reaction-actions form")
	require.Equal(t, 2, forms.Length())
	action, _ := forms.First().Attr("action")
	assert.Equal(t, "/chat/t/9/m/6/react", action)
	current, _ := forms.Eq(0).Find(`input[name="emoji"]`).Attr("value")
	other, _ := forms.Eq(1).Find(`input[name="emoji"]`).Attr("value")
	assert.Equal(t, "", current, "re-submitting the current reaction removes it")
	assert.Equal(t, "🎉", other)
}

func TestRenderZeroCountsAreNotHighlighted(t *testing.T) {
	m := models.Message{ID: 7, Reactions: models.Reactions{{Emoji: "👍", Count: 0}}}
	sel := parseFragment(t, string(NewRenderer(testView(), nil, zerolog.Nop()).Render(m, time.Now())))
	assert.Equal(t, 0, sel.Find(".rg-pill.unread").Length())
}

func TestRenderBroadcastSubscriberCannotReply(t *testing.T) {
	view := testView()
	view.ThreadType = models.ThreadBroadcast
	view.CanReact = false

	sel := parseFragment(t, string(NewRenderer(view, nil, zerolog.Nop()).Render(models.Message{ID: 8, SenderID: 2}, time.Now())))
	assert.Equal(t, 0, sel.Find(`[data-action="reply"]`).Length())
	assert.Equal(t, 0, sel.Find(`[data-action="react"]`).Length())
	assert.Equal(t, 0, sel.Find(".reaction-actions").Length())

	view.IsOwner = true
	sel = parseFragment(t, string(NewRenderer(view, nil, zerolog.Nop()).Render(models.Message{ID: 8, SenderID: 2}, time.Now())))
	assert.Equal(t, 1, sel.Find(`[data-action="reply"]`).Length())
}

func TestRenderLogsTemplateFailure(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(testView(), nil, zerolog.New(&buf))
	r.tmpl = template.Must(template.New("broken").Parse(`{{.Missing}}`))

	assert.Empty(t, r.Render(models.Message{ID: 4}, time.Now()))
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"message_id":4`)
	assert.Contains(t, buf.String(), "render message")
}
