package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/wsrelay/pkg/orm"
)

// storeConformance 所有存储实现共享的行为检查
func storeConformance(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("put and get", func(t *testing.T) {
		conn := &Connection{
			ConnectionID: "c1",
			Connected:    true,
			UserData:     map[string]any{"username": "alice"},
			ConnectedAt:  100,
		}
		require.NoError(t, store.Put(ctx, conn))

		got, err := store.Get(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "c1", got.ConnectionID)
		assert.True(t, got.Connected)
		assert.Equal(t, "alice", got.Username())
		assert.EqualValues(t, 100, got.ConnectedAt)
	})

	t.Run("put overwrites", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, &Connection{ConnectionID: "c1", Connected: true, ConnectedAt: 200}))
		got, err := store.Get(ctx, "c1")
		require.NoError(t, err)
		assert.Empty(t, got.UserData)
		assert.EqualValues(t, 200, got.ConnectedAt)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set room", func(t *testing.T) {
		require.NoError(t, store.SetRoom(ctx, "c1", func(string) (string, bool) { return "lobby", true }))
		got, err := store.Get(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "lobby", got.RoomID)

		// update 返回 false 时不写入
		require.NoError(t, store.SetRoom(ctx, "c1", func(cur string) (string, bool) { return "other", false }))
		got, err = store.Get(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "lobby", got.RoomID)

		err = store.SetRoom(ctx, "missing", func(string) (string, bool) { return "lobby", true })
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("scan", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, &Connection{ConnectionID: "c2", Connected: true, ConnectedAt: 300}))
		all, err := store.Scan(ctx)
		require.NoError(t, err)
		ids := make([]string, 0, len(all))
		for _, c := range all {
			ids = append(ids, c.ConnectionID)
		}
		assert.ElementsMatch(t, []string{"c1", "c2"}, ids)
	})

	t.Run("delete idempotent", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "c1"))
		require.NoError(t, store.Delete(ctx, "c1"))
		require.NoError(t, store.Delete(ctx, "never-existed"))

		_, err := store.Get(ctx, "c1")
		assert.ErrorIs(t, err, ErrNotFound)

		all, err := store.Scan(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "c2", all[0].ConnectionID)
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	storeConformance(t, store)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	userData := map[string]any{"username": "alice"}
	require.NoError(t, store.Put(ctx, &Connection{ConnectionID: "c1", Connected: true, UserData: userData}))

	// 调用方修改不影响已存储记录
	userData["username"] = "mallory"
	got, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username())
}

func TestGormStore(t *testing.T) {
	db, err := orm.Open(&orm.Config{
		Driver:       orm.SQLite,
		DSN:          filepath.Join(t.TempDir(), "wsrelay.db"),
		MaxOpenConns: 1,
	}, nil)
	require.NoError(t, err)

	store, err := NewGormStore(db)
	require.NoError(t, err)
	defer store.Close()

	storeConformance(t, store)
}

func TestGormStoreScanFiltersDisconnected(t *testing.T) {
	ctx := context.Background()
	db, err := orm.Open(&orm.Config{
		Driver:       orm.SQLite,
		DSN:          filepath.Join(t.TempDir(), "wsrelay.db"),
		MaxOpenConns: 1,
	}, nil)
	require.NoError(t, err)

	store, err := NewGormStore(db)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(ctx, &Connection{ConnectionID: "live", Connected: true}))
	require.NoError(t, store.Put(ctx, &Connection{ConnectionID: "stale", Connected: false}))

	all, err := store.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "live", all[0].ConnectionID)
}

// TestRedisStore 需要设置 WSRELAY_TEST_REDIS_ADDR
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("WSRELAY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("WSRELAY_TEST_REDIS_ADDR not set")
	}

	cfg := DefaultRedisConfig()
	cfg.Addrs = []string{addr}
	cfg.KeyPrefix = "{wsrelay-test-" + t.Name() + "}:"
	client := NewRedisClient(cfg)
	store := NewRedisStore(client, cfg.KeyPrefix)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))
	t.Cleanup(func() {
		ids, _ := client.SMembers(ctx, store.indexKey()).Result()
		for _, id := range ids {
			client.Del(ctx, store.recordKey(id))
		}
		client.Del(ctx, store.indexKey())
	})

	storeConformance(t, store)

	// 索引中的悬挂成员在 Scan 时被清理
	require.NoError(t, client.SAdd(ctx, store.indexKey(), "ghost").Err())
	all, err := store.Scan(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	isMember, err := client.SIsMember(ctx, store.indexKey(), "ghost").Result()
	require.NoError(t, err)
	assert.False(t, isMember)

	// 判定为悬挂后又被重新写入的记录保留在索引中
	require.NoError(t, store.Put(ctx, &Connection{ConnectionID: "reborn", Connected: true}))
	require.NoError(t, client.SAdd(ctx, store.indexKey(), "ghost").Err())
	removed, err := store.prune(ctx, []string{"reborn", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	isMember, err = client.SIsMember(ctx, store.indexKey(), "reborn").Result()
	require.NoError(t, err)
	assert.True(t, isMember)
	got, err := store.Get(ctx, "reborn")
	require.NoError(t, err)
	assert.Equal(t, "reborn", got.ConnectionID)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "memory", mutate: func(*Config) {}},
		{name: "redis", mutate: func(c *Config) { c.Driver = DriverRedis }},
		{name: "redis no addrs", mutate: func(c *Config) { c.Driver = DriverRedis; c.Redis.Addrs = nil }, wantErr: true},
		{name: "sentinel no master", mutate: func(c *Config) { c.Driver = DriverRedis; c.Redis.Mode = RedisSentinel }, wantErr: true},
		{name: "gorm", mutate: func(c *Config) { c.Driver = DriverGorm }},
		{name: "gorm bad driver", mutate: func(c *Config) { c.Driver = DriverGorm; c.Gorm.Driver = "oracle" }, wantErr: true},
		{name: "unknown", mutate: func(c *Config) { c.Driver = "etcd" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewStore(t *testing.T) {
	store, err := NewStore(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	cfg := DefaultConfig()
	cfg.Driver = DriverGorm
	cfg.Gorm.DSN = filepath.Join(t.TempDir(), "factory.db")
	store, err = NewStore(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &GormStore{}, store)
	assert.NoError(t, store.Close())
}
