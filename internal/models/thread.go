package models

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// ThreadType controls who may reply in a thread.
type ThreadType string

const (
	ThreadDM        ThreadType = "dm"
	ThreadGroup     ThreadType = "group"
	ThreadBroadcast ThreadType = "broadcast"
)

// Valid reports whether t is a known thread type.
func (t ThreadType) Valid() bool {
	switch t {
	case ThreadDM, ThreadGroup, ThreadBroadcast:
		return true
	}
	return false
}

// Thread represents a conversation between two or more users.
type Thread struct {
	// ID is the unique identifier for the thread
	ID ID `json:"thread_id"`

	// Type is dm, group or broadcast
	Type ThreadType `json:"thread_type"`

	// Name is only used for group and broadcast threads
	Name string `json:"name,omitempty"`

	// CreatedBy is the owner of the thread
	CreatedBy ID `json:"created_by"`

	// CreatedAt is when the thread was created
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is bumped on every new message
	UpdatedAt time.Time `json:"updated_at"`
}

// Member links a user to a thread.
type Member struct {
	ThreadID ID     `json:"thread_id"`
	UserID   ID     `json:"user_id"`
	Role     string `json:"role"`
}

// User is a participant known to the backend, with a display label that never
// exposes an email address.
type User struct {
	ID    ID     `json:"user_id"`
	Label string `json:"label"`
}

// CreateThreadRequest is the request body for starting a thread
type CreateThreadRequest struct {
	Type    ThreadType `json:"thread_type"`
	Name    string     `json:"name"`
	UserIDs []ID       `json:"user_ids"`
}

// CreateThreadResponse is the response after creating (or reusing) a thread
type CreateThreadResponse struct {
	Thread  Thread `json:"thread"`
	PageURL string `json:"page_url"`
}

// SenderInfo is one entry of the display-name lookup table.
type SenderInfo struct {
	Label string `json:"label"`
}

// StoreConfig holds the credentials for the realtime store.
type StoreConfig struct {
	URL    string `json:"url"`
	APIKey string `json:"apiKey,omitempty"`
}

// PushConfig describes the optional realtime channel for a thread view.
// A nil *PushConfig disables push delivery.
type PushConfig struct {
	Config   *StoreConfig `json:"config"`
	RTDBPath string       `json:"rtdbPath,omitempty"`
}

// ThreadView is the per-page configuration embedded by the server when it
// renders a thread. It is built once and treated as read-only afterwards.
type ThreadView struct {
	// ThreadID is the open thread
	ThreadID ID `json:"threadId"`

	// CurrentUserID is the viewing user
	CurrentUserID ID `json:"currentUserId"`

	// PollURL is polled with ?since=<watermark>
	PollURL string `json:"pollUrl"`

	// SendURL accepts new messages
	SendURL string `json:"sendUrl"`

	// Push is the optional realtime channel descriptor
	Push *PushConfig `json:"push,omitempty"`

	// CanReact enables reaction affordances
	CanReact bool `json:"canReact"`

	// ReactionChoices are the emoji offered as reaction buttons
	ReactionChoices []string `json:"reactionChoices,omitempty"`

	// ThreadType together with IsOwner decides reply permission
	ThreadType ThreadType `json:"threadType"`
	IsOwner    bool       `json:"isOwner"`

	// Senders maps a sender ID (as a string) to its display info
	Senders map[string]SenderInfo `json:"senders,omitempty"`
}

// CanReply reports whether the viewer may reply. Subscribers of a broadcast
// thread cannot; the server enforces the same rule.
func (v *ThreadView) CanReply() bool {
	if v.ThreadType == ThreadBroadcast {
		return v.IsOwner
	}
	return true
}

// SenderLabel returns the display name for a sender, falling back to
// "User {id}".
func (v *ThreadView) SenderLabel(id ID) string {
	if info, ok := v.Senders[id.String()]; ok && info.Label != "" {
		return info.Label
	}
	return fmt.Sprintf("User %d", id)
}

// PushPath returns the realtime store path holding this thread's messages.
func (v *ThreadView) PushPath() string {
	if v.Push != nil && v.Push.RTDBPath != "" {
		return v.Push.RTDBPath
	}
	return "threads/" + strconv.FormatInt(int64(v.ThreadID), 10) + "/messages"
}

// ReactURL is the form endpoint for reacting to a message.
func (v *ThreadView) ReactURL(mid ID) string {
	return fmt.Sprintf("/chat/t/%d/m/%d/react", v.ThreadID, mid)
}

// EditURL is the form endpoint for editing a message.
func (v *ThreadView) EditURL(mid ID) string {
	return fmt.Sprintf("/chat/t/%d/m/%d/edit", v.ThreadID, mid)
}

// Resolve returns a copy of the view with relative endpoint URLs made
// absolute against base.
func (v *ThreadView) Resolve(base *url.URL) (*ThreadView, error) {
	out := *v
	for _, u := range []*string{&out.PollURL, &out.SendURL} {
		if *u == "" {
			continue
		}
		ref, err := url.Parse(*u)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint %q: %w", *u, err)
		}
		*u = base.ResolveReference(ref).String()
	}
	if v.Push != nil && v.Push.Config != nil {
		push := *v.Push
		store := *v.Push.Config
		ref, err := url.Parse(store.URL)
		if err != nil {
			return nil, fmt.Errorf("parse store url %q: %w", store.URL, err)
		}
		resolved := base.ResolveReference(ref)
		switch resolved.Scheme {
		case "http":
			resolved.Scheme = "ws"
		case "https":
			resolved.Scheme = "wss"
		}
		store.URL = resolved.String()
		push.Config = &store
		out.Push = &push
	}
	return &out, nil
}
