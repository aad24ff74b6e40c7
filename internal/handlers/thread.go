package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/adi-253/chatfeed/internal/feed"
	"github.com/adi-253/chatfeed/internal/models"
	"github.com/adi-253/chatfeed/internal/services"
	"github.com/rs/zerolog/log"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div id="chat-list" class="chat-list">
    {{- range .Messages}}
    {{.}}
    {{- end}}
  </div>
  <textarea id="chat-input" name="body" rows="2"></textarea>
  <script id="` + feed.ConfigElementID + `" type="application/json">{{.Config}}</script>
</body>
</html>
`))

type pageData struct {
	Title    string
	Messages []template.HTML
	Config   template.JS
}

// ThreadHandler contains HTTP handlers for thread operations.
type ThreadHandler struct {
	threadService   *services.ThreadService
	messageService  *services.MessageService
	reactionChoices []string
	store           *models.StoreConfig
}

// NewThreadHandler creates a new ThreadHandler instance. A nil store leaves
// thread pages without a push configuration.
func NewThreadHandler(threads *services.ThreadService, messages *services.MessageService, reactionChoices []string, store *models.StoreConfig) *ThreadHandler {
	return &ThreadHandler{
		threadService:   threads,
		messageService:  messages,
		reactionChoices: reactionChoices,
		store:           store,
	}
}

// CreateThread handles POST /chat/api/threads
// Creates a thread owned by the caller. Direct threads are reused per pair.
func (h *ThreadHandler) CreateThread(w http.ResponseWriter, r *http.Request) {
	var req models.CreateThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	thread, created, err := h.threadService.CreateThread(userFrom(r), req)
	if err != nil {
		if errors.Is(err, services.ErrForbidden) {
			writeError(w, err)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, models.CreateThreadResponse{
		Thread:  *thread,
		PageURL: fmt.Sprintf("/chat/t/%d", thread.ID),
	})
}

// Page handles GET /chat/t/{tid}
// Renders the thread with its current messages and the embedded view
// configuration the feed boots from.
func (h *ThreadHandler) Page(w http.ResponseWriter, r *http.Request) {
	tid, ok := idParam(r, "tid")
	if !ok {
		http.Error(w, "thread ID is required", http.StatusBadRequest)
		return
	}
	viewer := userFrom(r)

	thread, err := h.threadService.Authorize(tid, viewer)
	if err != nil {
		writeError(w, err)
		return
	}
	messages, err := h.messageService.Since(tid, viewer, 0, services.DefaultPollLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	view := h.View(thread, viewer)
	cfg, err := json.Marshal(view)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	renderer := feed.NewRenderer(view, time.UTC, log.Logger)
	data := pageData{
		Title:  thread.Name,
		Config: template.JS(cfg),
	}
	if data.Title == "" {
		data.Title = fmt.Sprintf("Thread %d", thread.ID)
	}
	for _, m := range messages {
		data.Messages = append(data.Messages, renderer.Render(m, time.Time{}))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pageTemplate.Execute(w, data); err != nil {
		log.Error().Err(err).Int64("thread_id", int64(tid)).Msg("render thread page")
	}
}

// View builds the view configuration of thread for viewer.
func (h *ThreadHandler) View(thread *models.Thread, viewer models.ID) *models.ThreadView {
	view := &models.ThreadView{
		ThreadID:        thread.ID,
		CurrentUserID:   viewer,
		PollURL:         fmt.Sprintf("/chat/api/t/%d/poll", thread.ID),
		SendURL:         fmt.Sprintf("/chat/api/t/%d/send", thread.ID),
		CanReact:        len(h.reactionChoices) > 0,
		ReactionChoices: h.reactionChoices,
		ThreadType:      thread.Type,
		IsOwner:         thread.CreatedBy == viewer,
		Senders:         h.threadService.Senders(thread.ID),
	}
	if h.store != nil {
		store := *h.store
		view.Push = &models.PushConfig{Config: &store}
	}
	return view
}
