package feed

import (
	"bytes"
	"html/template"
	"time"

	"github.com/adi-253/chatfeed/internal/models"
	"github.com/rs/zerolog"
)

// TimeLayout is the timestamp format shown next to each message.
const TimeLayout = "2006-01-02 15:04:05.000"

var messageTemplate = template.Must(template.New("message").Parse(
	`<div class="chat-msg{{if .Mine}} me{{end}}" data-mid="{{.ID}}">
  <div class="meta">
    <span class="sender"><b>{{.Sender}}</b></span>
    <span>·</span>
    <span class="ts">{{.Time}}{{if .Latency}} {{.Latency}}{{end}}</span>
    {{- if .ReplyTo}}
    <span class="reply-ref text-muted">replying to #{{.ReplyTo}}</span>
    {{- end}}
    <div class="actions">
      {{- if .CanReply}}
      <button class="btn btn-outline-primary" type="button" data-action="reply" data-target="{{.ID}}" data-label="{{.Sender}}">Reply</button>
      {{- end}}
      {{- if .CanReact}}
      <button class="btn btn-outline-secondary react-toggle" type="button" data-action="react" data-target="{{.ID}}">😊</button>
      {{- end}}
      {{- if .CanEdit}}
      <button class="btn btn-outline-secondary" type="button" data-action="edit" data-target="{{.ID}}">Edit</button>
      {{- end}}
    </div>
  </div>
  <div class="bubble">
    <div class="body" id="body_display_{{.ID}}">{{.Body}}</div>
    {{- if .CanEdit}}
    <form id="edit_form_{{.ID}}" class="edit-form mt-2" method="post" action="{{.EditURL}}" hidden>
      <textarea class="form-control" name="body" rows="2">{{.Body}}</textarea>
      <button class="btn btn-sm btn-primary pill" type="submit">Save</button>
      <button class="btn btn-sm btn-outline-secondary pill" type="button" data-action="edit" data-target="{{.ID}}">Cancel</button>
    </form>
    {{- end}}
    {{- if .Chips}}
    <div class="reaction-row mt-2">
      {{- range .Chips}}
      <span class="rg-pill{{if .Top}} unread{{end}}" data-emoji="{{.Emoji}}">{{.Emoji}} <span class="text-muted">{{.Count}}</span></span>
      {{- end}}
    </div>
    {{- end}}
    {{- if .Choices}}
    <div class="reaction-actions mt-2" hidden>
      {{- range .Choices}}
      <form method="post" action="{{$.ReactURL}}">
        <input type="hidden" name="emoji" value="{{.Value}}">
        <button class="btn btn-sm {{if .Mine}}btn-primary{{else}}btn-outline-primary{{end}} pill" type="submit">{{.Emoji}}</button>
      </form>
      {{- end}}
    </div>
    {{- end}}
  </div>
</div>`))

type chip struct {
	Emoji string
	Count int
	Top   bool
}

type choice struct {
	Emoji string
	Value string
	Mine  bool
}

type messageView struct {
	ID       models.ID
	Sender   string
	Time     string
	Latency  string
	ReplyTo  models.ID
	Body     string
	Mine     bool
	CanReply bool
	CanReact bool
	CanEdit  bool
	EditURL  string
	ReactURL string
	Chips    []chip
	Choices  []choice
}

// Renderer turns messages into escaped HTML fragments for one thread view.
type Renderer struct {
	view   *models.ThreadView
	loc    *time.Location
	tmpl   *template.Template
	logger zerolog.Logger
}

// NewRenderer creates a renderer. Timestamps are shown in loc (UTC when nil).
func NewRenderer(view *models.ThreadView, loc *time.Location, logger zerolog.Logger) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{view: view, loc: loc, tmpl: messageTemplate, logger: logger}
}

// Render builds the display fragment for m as received at receivedAt. A zero
// receivedAt omits the latency label. Missing fields render as empty or
// default values.
func (r *Renderer) Render(m models.Message, receivedAt time.Time) template.HTML {
	mine := m.SenderID != 0 && m.SenderID == r.view.CurrentUserID
	v := messageView{
		ID:       m.ID,
		Sender:   r.view.SenderLabel(m.SenderID),
		ReplyTo:  m.ReplyTo,
		Body:     m.Body,
		Mine:     mine,
		CanReply: r.view.CanReply(),
		CanReact: r.view.CanReact,
		CanEdit:  mine,
		EditURL:  r.view.EditURL(m.ID),
		ReactURL: r.view.ReactURL(m.ID),
	}
	if !m.CreatedAt.IsZero() {
		v.Time = m.CreatedAt.In(r.loc).Format(TimeLayout)
		if !receivedAt.IsZero() {
			v.Latency = FormatLatency(receivedAt.Sub(m.CreatedAt.Time))
		}
	}

	top := m.Reactions.Top()
	for _, rc := range m.Reactions {
		v.Chips = append(v.Chips, chip{Emoji: rc.Emoji, Count: rc.Count, Top: top > 0 && rc.Count == top})
	}
	if r.view.CanReact {
		for _, e := range r.view.ReactionChoices {
			c := choice{Emoji: e, Value: e, Mine: m.UserReaction == e}
			if c.Mine {
				// Submitting the current reaction again removes it.
				c.Value = ""
			}
			v.Choices = append(v.Choices, c)
		}
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, v); err != nil {
		r.logger.Error().Err(err).Int64("message_id", int64(m.ID)).Msg("render message")
		return ""
	}
	return template.HTML(buf.String())
}
