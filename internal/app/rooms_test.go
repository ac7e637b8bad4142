package app

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banterhq/banter/internal/domain"
)

func newTestRooms(start time.Time) (*RoomRegistry, *time.Time) {
	reg := NewRoomRegistry()
	now := start
	reg.clock = func() time.Time { return now }
	return reg, &now
}

func TestCreateOrGetIdempotentByName(t *testing.T) {
	reg, _ := newTestRooms(time.Now())

	first, err := reg.CreateOrGet("Trivia", domain.VisibilityPublic, "alice", domain.PolicyEveryone, domain.ExpiryNever, domain.InactivityNone)
	require.NoError(t, err)

	// A second create with different attributes must not overwrite anything.
	second, err := reg.CreateOrGet("Trivia", domain.VisibilityPrivate, "bob", domain.PolicyHostModsOnly, domain.Expiry1Day, domain.Inactivity7Days)
	require.NoError(t, err)

	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, "alice", second.Creator)
	assert.Equal(t, domain.PolicyEveryone, second.Policy)
	assert.Nil(t, second.ExpiresAt)
}

func TestCreateNormalizesAndValidatesName(t *testing.T) {
	reg, _ := newTestRooms(time.Now())

	room, err := reg.CreateOrGet("  Trivia  ", domain.VisibilityPublic, "alice", domain.PolicyEveryone, domain.ExpiryNever, domain.InactivityNone)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomName("Trivia"), room.Name)

	_, err = reg.CreateOrGet("   ", domain.VisibilityPublic, "alice", domain.PolicyEveryone, domain.ExpiryNever, domain.InactivityNone)
	assert.ErrorIs(t, err, domain.ErrRoomNameEmpty)

	_, err = reg.CreateOrGet(strings.Repeat("x", 61), domain.VisibilityPublic, "alice", domain.PolicyEveryone, domain.ExpiryNever, domain.InactivityNone)
	assert.ErrorIs(t, err, domain.ErrRoomNameTooLong)
}

func TestConcurrentCreatesYieldDistinctCodes(t *testing.T) {
	reg, _ := newTestRooms(time.Now())

	const n = 50
	var wg sync.WaitGroup
	codes := make([]domain.RoomCode, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room, err := reg.CreateOrGet(fmt.Sprintf("room-%d", i), domain.VisibilityPublic, "alice", domain.PolicyEveryone, domain.ExpiryNever, domain.InactivityNone)
			require.NoError(t, err)
			codes[i] = room.Code
		}(i)
	}
	wg.Wait()

	seen := make(map[domain.RoomCode]struct{}, n)
	for _, code := range codes {
		assert.Len(t, code, 6)
		seen[code] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestAbsoluteExpiryBoundary(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg, now := newTestRooms(start)

	_, err := reg.CreateOrGet("ephemeral", domain.VisibilityPublic, "alice", domain.PolicyEveryone, domain.Expiry1Day, domain.InactivityNone)
	require.NoError(t, err)

	*now = start.Add(23*time.Hour + 59*time.Minute)
	assert.False(t, reg.IsExpired("ephemeral"))

	*now = start.Add(24 * time.Hour)
	assert.True(t, reg.IsExpired("ephemeral"))
	_, ok := reg.Get("ephemeral")
	assert.False(t, ok)
}

func TestInactivityExpiryAndTouch(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	reg, now := newTestRooms(start)

	_, err := reg.CreateOrGet("sleepy", domain.VisibilityPublic, "alice", domain.PolicyEveryone, domain.ExpiryNever, domain.Inactivity7Days)
	require.NoError(t, err)

	day := 24 * time.Hour
	*now = start.Add(6 * day)
	assert.False(t, reg.IsExpired("sleepy"))

	// Activity at day 6 pushes the window out to day 13.
	require.True(t, reg.TouchActivity("sleepy"))

	*now = start.Add(8 * day)
	assert.False(t, reg.IsExpired("sleepy"))

	*now = start.Add(12 * day)
	assert.False(t, reg.IsExpired("sleepy"))

	*now = start.Add(13 * day)
	assert.True(t, reg.IsExpired("sleepy"))
}

func TestSweepRemovesBothIndices(t *testing.T) {
	start := time.Now()
	reg, now := newTestRooms(start)

	room, err := reg.CreateOrGet("doomed", domain.VisibilityPublic, "alice", domain.PolicyEveryone, domain.Expiry1Day, domain.InactivityNone)
	require.NoError(t, err)
	keep, err := reg.CreateOrGet("forever", domain.VisibilityPublic, "alice", domain.PolicyEveryone, domain.ExpiryNever, domain.InactivityNone)
	require.NoError(t, err)

	*now = start.Add(48 * time.Hour)
	removed := reg.Sweep()
	require.Len(t, removed, 1)
	assert.Equal(t, domain.RoomName("doomed"), removed[0].Name)

	_, ok := reg.Get("doomed")
	assert.False(t, ok)
	_, ok = reg.LookupByCode(room.Code)
	assert.False(t, ok)

	name, ok := reg.LookupByCode(keep.Code)
	require.True(t, ok)
	assert.Equal(t, domain.RoomName("forever"), name)
}

func TestRemoveAndLookupByCode(t *testing.T) {
	reg, _ := newTestRooms(time.Now())

	room, err := reg.CreateOrGet("club", domain.VisibilityPrivate, "alice", domain.PolicyEveryone, domain.ExpiryNever, domain.InactivityNone)
	require.NoError(t, err)

	name, ok := reg.LookupByCode(room.Code)
	require.True(t, ok)
	assert.Equal(t, room.Name, name)

	assert.True(t, reg.Remove("club"))
	assert.False(t, reg.Remove("club"))
	_, ok = reg.LookupByCode(room.Code)
	assert.False(t, ok)
}
