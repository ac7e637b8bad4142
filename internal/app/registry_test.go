package app

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banterhq/banter/internal/core"
	"github.com/banterhq/banter/internal/domain"
)

// stubConn records every emitted frame.
type stubConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (c *stubConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *stubConn) Close() {}

// events decodes recorded frames into generic maps.
func (c *stubConn) events(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

func (c *stubConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func bindUser(reg *Registry, sid core.SessionID, user *domain.User) *stubConn {
	conn := &stubConn{}
	reg.Bind(sid, core.NewMemberSession(user, conn), nil)
	return conn
}

func TestReverseMappingLastWriterWins(t *testing.T) {
	reg := NewRegistry()
	alice := &domain.User{ID: 7, Username: "alice"}

	bindUser(reg, "conn-a", alice)
	bindUser(reg, "conn-b", alice)

	sid, _, ok := reg.ResolveConnection(7)
	require.True(t, ok)
	assert.Equal(t, core.SessionID("conn-b"), sid)

	// Closing the superseded connection must not break the fresh mapping.
	reg.Unbind("conn-a")
	sid, _, ok = reg.ResolveConnection(7)
	require.True(t, ok)
	assert.Equal(t, core.SessionID("conn-b"), sid)

	reg.Unbind("conn-b")
	_, _, ok = reg.ResolveConnection(7)
	assert.False(t, ok)
}

func TestGuestsAreNotResolvable(t *testing.T) {
	reg := NewRegistry()
	bindUser(reg, "conn-g", domain.NewGuest("Guest12340001"))

	_, _, ok := reg.ResolveConnection(0)
	assert.False(t, ok)

	_, found := reg.Session("conn-g")
	assert.True(t, found)
}

func TestActiveIdentitiesCollapseDuplicates(t *testing.T) {
	reg := NewRegistry()
	alice := &domain.User{ID: 1, Username: "alice", AvatarURL: "/a.png"}

	bindUser(reg, "conn-1", alice)
	bindUser(reg, "conn-2", alice)
	bindUser(reg, "conn-3", domain.NewGuest("Guest09120042"))

	ids := reg.ActiveIdentities()
	assert.Len(t, ids, 2)

	names := make(map[string]string)
	for _, id := range ids {
		names[id.Name] = id.Avatar
	}
	assert.Equal(t, "/a.png", names["alice"])
	assert.Contains(t, names, "Guest09120042")
}

func TestUnknownSessionOperationsAreNoOps(t *testing.T) {
	reg := NewRegistry()

	assert.NotPanics(t, func() { reg.Unbind("ghost") })
	assert.False(t, reg.SetRoom("ghost", "General"))
	_, ok := reg.ClearRoom("ghost")
	assert.False(t, ok)
	assert.False(t, reg.SetModerator("ghost", true))
	assert.False(t, reg.IsModerator("ghost"))
}

func TestUnbindCancelsConnectionContext(t *testing.T) {
	reg := NewRegistry()
	canceled := false
	reg.Bind("conn-a", core.NewMemberSession(&domain.User{ID: 1, Username: "alice"}, &stubConn{}), func() { canceled = true })

	reg.Unbind("conn-a")
	assert.True(t, canceled)

	// Unknown sids stay a cancel-free no-op.
	assert.NotPanics(t, func() { reg.Unbind("conn-a") })
}

func TestRoomMembershipSnapshot(t *testing.T) {
	reg := NewRegistry()
	bindUser(reg, "conn-a", &domain.User{ID: 1, Username: "alice"})
	bindUser(reg, "conn-b", &domain.User{ID: 2, Username: "bob"})
	bindUser(reg, "conn-c", &domain.User{ID: 3, Username: "carol"})

	require.True(t, reg.SetRoom("conn-a", "General"))
	require.True(t, reg.SetRoom("conn-b", "General"))
	require.True(t, reg.SetRoom("conn-c", "Gaming"))

	assert.Len(t, reg.MembersOfRoom("General"), 2)
	assert.Len(t, reg.MembersOfRoom("Gaming"), 1)

	room, _, ok := reg.RoomOf("conn-a")
	require.True(t, ok)
	assert.Equal(t, domain.RoomName("General"), room)

	left, ok := reg.ClearRoom("conn-b")
	require.True(t, ok)
	assert.Equal(t, domain.RoomName("General"), left)
	assert.Len(t, reg.MembersOfRoom("General"), 1)
}
