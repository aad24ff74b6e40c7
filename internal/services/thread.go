package services

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/adi-253/chatfeed/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotFound is returned for unknown threads or messages.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the user may not perform the action.
	ErrForbidden = errors.New("forbidden")

	// ErrEmptyBody is returned for blank message bodies.
	ErrEmptyBody = errors.New("message body is empty")
)

const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// ThreadService handles thread membership and ownership.
// Uses in-memory storage; threads live as long as the process.
type ThreadService struct {
	threads map[models.ID]*models.Thread
	members map[models.ID]map[models.ID]string
	users   map[models.ID]string
	// dms maps an ordered user pair to its direct thread
	dms    map[[2]models.ID]models.ID
	nextID models.ID
	mu     sync.RWMutex
}

// NewThreadService creates a new ThreadService instance
func NewThreadService() *ThreadService {
	return &ThreadService{
		threads: make(map[models.ID]*models.Thread),
		members: make(map[models.ID]map[models.ID]string),
		users:   make(map[models.ID]string),
		dms:     make(map[[2]models.ID]models.ID),
	}
}

// SetUserLabel records the display label shown for a user.
func (s *ThreadService) SetUserLabel(id models.ID, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = label
}

// CreateThread starts a thread owned by creator. Direct threads are
// deduplicated per user pair; created is false when an existing one is
// returned.
func (s *ThreadService) CreateThread(creator models.ID, req models.CreateThreadRequest) (thread *models.Thread, created bool, err error) {
	if creator <= 0 {
		return nil, false, fmt.Errorf("%w: unknown user", ErrForbidden)
	}
	if req.Type == "" {
		req.Type = models.ThreadGroup
	}
	if !req.Type.Valid() {
		return nil, false, fmt.Errorf("invalid thread type %q", req.Type)
	}

	others := uniqueOthers(creator, req.UserIDs)

	s.mu.Lock()
	defer s.mu.Unlock()

	var pair [2]models.ID
	if req.Type == models.ThreadDM {
		if len(others) != 1 {
			return nil, false, errors.New("a direct thread needs exactly one other user")
		}
		pair = [2]models.ID{creator, others[0]}
		if pair[0] > pair[1] {
			pair[0], pair[1] = pair[1], pair[0]
		}
		if id, ok := s.dms[pair]; ok {
			t := *s.threads[id]
			return &t, false, nil
		}
	}

	name := req.Name
	if name == "" && req.Type != models.ThreadDM {
		name = "Untitled Thread"
	}

	s.nextID++
	now := time.Now().UTC()
	t := &models.Thread{
		ID:        s.nextID,
		Type:      req.Type,
		Name:      name,
		CreatedBy: creator,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.threads[t.ID] = t
	s.members[t.ID] = map[models.ID]string{creator: RoleOwner}
	for _, uid := range others {
		s.members[t.ID][uid] = RoleMember
	}
	if req.Type == models.ThreadDM {
		s.dms[pair] = t.ID
	}

	log.Info().Int64("thread_id", int64(t.ID)).Str("type", string(t.Type)).Int("members", len(others)+1).Msg("thread created")
	out := *t
	return &out, true, nil
}

// GetThread returns a copy of the thread.
func (s *ThreadService) GetThread(id models.ID) (*models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *t
	return &out, nil
}

// Authorize checks that user belongs to the thread and returns it.
func (s *ThreadService) Authorize(tid, user models.ID) (*models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[tid]
	if !ok {
		return nil, ErrNotFound
	}
	if _, ok := s.members[tid][user]; !ok {
		return nil, ErrForbidden
	}
	out := *t
	return &out, nil
}

// Members returns the thread's members ordered by user ID.
func (s *ThreadService) Members(tid models.ID) []models.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Member
	for uid, role := range s.members[tid] {
		out = append(out, models.Member{ThreadID: tid, UserID: uid, Role: role})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Senders builds the display-name table for a thread's members.
func (s *ThreadService) Senders(tid models.ID) map[string]models.SenderInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.SenderInfo, len(s.members[tid]))
	for uid := range s.members[tid] {
		label := s.users[uid]
		if label == "" {
			label = fmt.Sprintf("User %d", uid)
		}
		out[uid.String()] = models.SenderInfo{Label: label}
	}
	return out
}

// Touch bumps the thread's UpdatedAt.
func (s *ThreadService) Touch(tid models.ID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.threads[tid]; ok {
		t.UpdatedAt = at
	}
}

func uniqueOthers(creator models.ID, ids []models.ID) []models.ID {
	seen := map[models.ID]bool{creator: true}
	var out []models.ID
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
