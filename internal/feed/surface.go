package feed

import (
	"html/template"
	"io"
	"sync"

	"github.com/adi-253/chatfeed/internal/models"
)

// Surface is where rendered fragments are displayed.
type Surface interface {
	// Append adds a fragment to the end of the visible list.
	Append(id models.ID, fragment template.HTML)
	// Replace swaps the fragment of an already displayed message.
	Replace(id models.ID, fragment template.HTML) bool
	// ScrollToEnd brings the last fragment into view.
	ScrollToEnd()
}

// Item is one displayed message.
type Item struct {
	ID   models.ID
	HTML template.HTML
}

// List is an append-only in-memory Surface. When w is non-nil every appended
// or replaced fragment is also written to it.
type List struct {
	mu       sync.Mutex
	items    []Item
	index    map[models.ID]int
	w        io.Writer
	scrolled int
}

// NewList creates an empty list.
func NewList(w io.Writer) *List {
	return &List{index: make(map[models.ID]int), w: w}
}

func (l *List) Append(id models.ID, fragment template.HTML) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.index[id] = len(l.items)
	l.items = append(l.items, Item{ID: id, HTML: fragment})
	l.write(fragment)
}

func (l *List) Replace(id models.ID, fragment template.HTML) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return false
	}
	l.items[i].HTML = fragment
	l.write(fragment)
	return true
}

func (l *List) ScrollToEnd() {
	l.mu.Lock()
	l.scrolled = len(l.items)
	l.mu.Unlock()
}

// Items returns a snapshot of the displayed messages in order.
func (l *List) Items() []Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Item, len(l.items))
	copy(out, l.items)
	return out
}

// IDs returns the displayed message IDs in order.
func (l *List) IDs() []models.ID {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]models.ID, len(l.items))
	for i, it := range l.items {
		ids[i] = it.ID
	}
	return ids
}

// Len returns the number of displayed messages.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// ScrolledTo returns how many items were visible at the last scroll.
func (l *List) ScrolledTo() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scrolled
}

func (l *List) write(fragment template.HTML) {
	if l.w == nil {
		return
	}
	_, _ = io.WriteString(l.w, string(fragment)+"\n")
}
