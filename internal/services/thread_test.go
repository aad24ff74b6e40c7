package services

import (
	"testing"

	"github.com/adi-253/chatfeed/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDirectThreadIsDeduplicated(t *testing.T) {
	s := NewThreadService()

	first, created, err := s.CreateThread(1, models.CreateThreadRequest{Type: models.ThreadDM, UserIDs: []models.ID{2}})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := s.CreateThread(2, models.CreateThreadRequest{Type: models.ThreadDM, UserIDs: []models.ID{1}})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	_, _, err = s.CreateThread(1, models.CreateThreadRequest{Type: models.ThreadDM, UserIDs: []models.ID{1}})
	assert.Error(t, err, "a direct thread with yourself has no other user")
}

func TestCreateGroupThread(t *testing.T) {
	s := NewThreadService()
	s.SetUserLabel(2, "ana")

	thread, created, err := s.CreateThread(1, models.CreateThreadRequest{UserIDs: []models.ID{2, 3, 2, 0}})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.ThreadGroup, thread.Type)
	assert.Equal(t, "Untitled Thread", thread.Name)

	members := s.Members(thread.ID)
	require.Len(t, members, 3)
	assert.Equal(t, models.Member{ThreadID: thread.ID, UserID: 1, Role: RoleOwner}, members[0])
	assert.Equal(t, RoleMember, members[1].Role)

	senders := s.Senders(thread.ID)
	assert.Equal(t, "ana", senders["2"].Label)
	assert.Equal(t, "User 3", senders["3"].Label)

	_, _, err = s.CreateThread(1, models.CreateThreadRequest{Type: "channel"})
	assert.Error(t, err)
	_, _, err = s.CreateThread(0, models.CreateThreadRequest{})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorize(t *testing.T) {
	s := NewThreadService()
	thread, _, err := s.CreateThread(1, models.CreateThreadRequest{UserIDs: []models.ID{2}})
	require.NoError(t, err)

	_, err = s.Authorize(thread.ID, 2)
	assert.NoError(t, err)
	_, err = s.Authorize(thread.ID, 3)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.Authorize(thread.ID+1, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}
