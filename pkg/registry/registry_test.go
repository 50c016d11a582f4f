package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore 所有操作都失败
type failingStore struct{}

var errBackend = errors.New("backend unavailable")

func (failingStore) Put(context.Context, *Connection) error            { return errBackend }
func (failingStore) Delete(context.Context, string) error              { return errBackend }
func (failingStore) Get(context.Context, string) (*Connection, error)  { return nil, errBackend }
func (failingStore) SetRoom(context.Context, string, RoomUpdate) error { return errBackend }
func (failingStore) Scan(context.Context) ([]*Connection, error)       { return nil, errBackend }
func (failingStore) Close() error                                      { return nil }

func fixedClock() time.Time { return time.Unix(1700000000, 0) }

func newTestRegistry() (*Registry, *MemoryStore) {
	store := NewMemoryStore()
	return New(store, WithClock(fixedClock)), store
}

func ids(conns []*Connection) []string {
	out := make([]string, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.ConnectionID)
	}
	return out
}

func TestAddIdempotent(t *testing.T) {
	ctx := context.Background()
	reg, store := newTestRegistry()

	assert.True(t, reg.Add(ctx, "a", map[string]any{"username": "alice"}))
	assert.True(t, reg.Add(ctx, "a", map[string]any{"username": "alice"}))
	assert.Equal(t, 1, store.Len())

	conn, ok := reg.Get(ctx, "a")
	require.True(t, ok)
	assert.True(t, conn.Connected)
	assert.Equal(t, "alice", conn.Username())
	assert.Equal(t, fixedClock().Unix(), conn.ConnectedAt)

	assert.False(t, reg.Add(ctx, "", nil))
}

func TestRemoveIdempotent(t *testing.T) {
	ctx := context.Background()
	reg, store := newTestRegistry()

	require.True(t, reg.Add(ctx, "a", nil))
	assert.True(t, reg.Remove(ctx, "a"))
	assert.True(t, reg.Remove(ctx, "a"))
	assert.True(t, reg.Remove(ctx, "never"))
	assert.Equal(t, 0, store.Len())

	_, ok := reg.Get(ctx, "a")
	assert.False(t, ok)
}

func TestListActiveFiltersConnected(t *testing.T) {
	ctx := context.Background()
	reg, store := newTestRegistry()

	require.True(t, reg.Add(ctx, "a", nil))
	require.True(t, reg.Add(ctx, "b", nil))
	require.NoError(t, store.Put(ctx, &Connection{ConnectionID: "zombie", Connected: false}))

	assert.ElementsMatch(t, []string{"a", "b"}, ids(reg.ListActive(ctx)))
}

func TestListActiveEmpty(t *testing.T) {
	reg, _ := newTestRegistry()
	active := reg.ListActive(context.Background())
	assert.NotNil(t, active)
	assert.Empty(t, active)
}

func TestFailOpen(t *testing.T) {
	ctx := context.Background()
	reg := New(failingStore{})

	assert.False(t, reg.Add(ctx, "a", nil))
	assert.False(t, reg.Remove(ctx, "a"))
	assert.False(t, reg.JoinRoom(ctx, "a", "lobby"))
	assert.False(t, reg.LeaveRoom(ctx, "a", "lobby"))

	_, ok := reg.Get(ctx, "a")
	assert.False(t, ok)

	active := reg.ListActive(ctx)
	assert.NotNil(t, active)
	assert.Empty(t, active)
	assert.Empty(t, reg.ListByRoom(ctx, "lobby"))
	assert.Empty(t, reg.ListByUser(ctx, "alice"))
}

func TestRoomMembership(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()

	require.True(t, reg.Add(ctx, "a", map[string]any{"username": "alice"}))
	require.True(t, reg.Add(ctx, "b", map[string]any{"username": "bob"}))
	require.True(t, reg.Add(ctx, "c", map[string]any{"username": "alice"}))

	assert.True(t, reg.JoinRoom(ctx, "a", "lobby"))
	assert.True(t, reg.JoinRoom(ctx, "a", "lobby"))
	assert.True(t, reg.JoinRoom(ctx, "b", "lobby"))
	assert.True(t, reg.JoinRoom(ctx, "c", "games"))

	assert.ElementsMatch(t, []string{"a", "b"}, ids(reg.ListByRoom(ctx, "lobby")))
	assert.ElementsMatch(t, []string{"a", "c"}, ids(reg.ListByUser(ctx, "alice")))

	// 不在该房间时离开为空操作
	assert.True(t, reg.LeaveRoom(ctx, "c", "lobby"))
	conn, _ := reg.Get(ctx, "c")
	assert.Equal(t, "games", conn.RoomID)

	assert.True(t, reg.LeaveRoom(ctx, "a", "lobby"))
	assert.ElementsMatch(t, []string{"b"}, ids(reg.ListByRoom(ctx, "lobby")))

	// 已断开的连接
	assert.False(t, reg.JoinRoom(ctx, "gone", "lobby"))
	assert.True(t, reg.LeaveRoom(ctx, "gone", "lobby"))
	_, ok := reg.Get(ctx, "gone")
	assert.False(t, ok)
}

func TestReAddClearsRoom(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()

	require.True(t, reg.Add(ctx, "a", nil))
	require.True(t, reg.JoinRoom(ctx, "a", "lobby"))
	require.True(t, reg.Add(ctx, "a", nil))

	conn, ok := reg.Get(ctx, "a")
	require.True(t, ok)
	assert.Empty(t, conn.RoomID)
}
