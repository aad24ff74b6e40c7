package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adi-253/chatfeed/internal/models"
	"github.com/adi-253/chatfeed/internal/services"
	"github.com/rs/zerolog/log"
)

// MessageHandler contains HTTP handlers for message operations: the poll
// and send endpoints used by the feed plus the react and edit forms.
type MessageHandler struct {
	messageService *services.MessageService
	longPollMax    time.Duration
}

// NewMessageHandler creates a new MessageHandler instance.
func NewMessageHandler(messageService *services.MessageService, longPollMax time.Duration) *MessageHandler {
	return &MessageHandler{messageService: messageService, longPollMax: longPollMax}
}

// Poll handles GET /chat/api/t/{tid}/poll
// Returns messages after the given ID, oldest first.
// Query params:
//   - since: last message ID the client has seen (default 0)
//   - wait: optional duration to hold the request open until something arrives
func (h *MessageHandler) Poll(w http.ResponseWriter, r *http.Request) {
	tid, ok := idParam(r, "tid")
	if !ok {
		http.Error(w, "thread ID is required", http.StatusBadRequest)
		return
	}
	viewer := userFrom(r)
	since := models.ParseID(r.URL.Query().Get("since"))

	if raw := r.URL.Query().Get("wait"); raw != "" && h.longPollMax > 0 {
		wait, err := time.ParseDuration(raw)
		if err != nil {
			http.Error(w, "invalid 'wait' duration", http.StatusBadRequest)
			return
		}
		if wait > h.longPollMax {
			wait = h.longPollMax
		}
		if _, err := h.messageService.Since(tid, viewer, since, 1); err != nil {
			writeError(w, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		h.messageService.Wait(ctx, tid, since)
		cancel()
	}

	messages, err := h.messageService.Since(tid, viewer, since, services.DefaultPollLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, models.PollResponse{Messages: messages})
}

// Send handles POST /chat/api/t/{tid}/send
// Stores a message and returns the authoritative copy.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	tid, ok := idParam(r, "tid")
	if !ok {
		http.Error(w, "thread ID is required", http.StatusBadRequest)
		return
	}

	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := h.messageService.SendMessage(tid, userFrom(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	log.Debug().Int64("thread_id", int64(tid)).Int64("message_id", int64(msg.ID)).Msg("message sent")
	writeJSON(w, http.StatusOK, models.SendMessageResponse{Message: msg})
}

// React handles POST /chat/t/{tid}/m/{mid}/react
// Form field emoji; an empty value removes the viewer's reaction.
func (h *MessageHandler) React(w http.ResponseWriter, r *http.Request) {
	tid, mid, ok := messageParams(w, r)
	if !ok {
		return
	}
	msg, err := h.messageService.React(tid, userFrom(r), mid, r.PostFormValue("emoji"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondForm(w, r, tid, msg)
}

// Edit handles POST /chat/t/{tid}/m/{mid}/edit
// Form field body; only the sender may edit.
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	tid, mid, ok := messageParams(w, r)
	if !ok {
		return
	}
	msg, err := h.messageService.EditMessage(tid, userFrom(r), mid, r.PostFormValue("body"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondForm(w, r, tid, msg)
}

func messageParams(w http.ResponseWriter, r *http.Request) (tid, mid models.ID, ok bool) {
	if tid, ok = idParam(r, "tid"); !ok {
		http.Error(w, "thread ID is required", http.StatusBadRequest)
		return 0, 0, false
	}
	if mid, ok = idParam(r, "mid"); !ok {
		http.Error(w, "message ID is required", http.StatusBadRequest)
		return 0, 0, false
	}
	return tid, mid, true
}

// respondForm answers API clients with the updated message and browsers
// with a redirect back to the thread page.
func respondForm(w http.ResponseWriter, r *http.Request, tid models.ID, msg *models.Message) {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, http.StatusOK, models.SendMessageResponse{Message: msg})
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/chat/t/%d#m%d", tid, msg.ID), http.StatusSeeOther)
}
