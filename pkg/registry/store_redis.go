package registry

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// pruneScript 仅当记录键不存在时移除索引成员
// KEYS[1] 为索引，KEYS[2..] 为记录键，ARGV 为对应成员
var pruneScript = redis.NewScript(`
local removed = 0
for i = 2, #KEYS do
	if redis.call("EXISTS", KEYS[i]) == 0 then
		removed = removed + redis.call("SREM", KEYS[1], ARGV[i - 1])
	end
end
return removed
`)

// RedisStore 基于 Redis 的存储
// 记录以 JSON 字符串保存在 <prefix>conn:<id>，集合 <prefix>conns 作为索引
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore 包装已有客户端
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) recordKey(id string) string {
	return r.prefix + "conn:" + id
}

func (r *RedisStore) indexKey() string {
	return r.prefix + "conns"
}

// Put 事务写入记录与索引
func (r *RedisStore) Put(ctx context.Context, conn *Connection) error {
	data, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.recordKey(conn.ConnectionID), data, 0)
	pipe.SAdd(ctx, r.indexKey(), conn.ConnectionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	return nil
}

// Delete 事务删除记录与索引
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.recordKey(id))
	pipe.SRem(ctx, r.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Connection, error) {
	data, err := r.client.Get(ctx, r.recordKey(id)).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}

	var conn Connection
	if err := json.Unmarshal(data, &conn); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return &conn, nil
}

// SetRoom WATCH 记录键后在事务中写回，冲突时重试
func (r *RedisStore) SetRoom(ctx context.Context, id string, update RoomUpdate) error {
	key := r.recordKey(id)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if stderrors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		var conn Connection
		if err := json.Unmarshal(data, &conn); err != nil {
			return fmt.Errorf("%w: %w", ErrEncode, err)
		}
		next, ok := update(conn.RoomID)
		if !ok {
			return nil
		}
		conn.RoomID = next
		if data, err = json.Marshal(&conn); err != nil {
			return fmt.Errorf("%w: %w", ErrEncode, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case stderrors.Is(err, redis.TxFailedErr):
			continue
		case stderrors.Is(err, ErrNotFound), stderrors.Is(err, ErrEncode):
			return err
		default:
			return fmt.Errorf("%w: %w", ErrStore, err)
		}
	}
	return ErrConflict
}

// Scan SMEMBERS + MGET
// 索引中已无记录的成员通过 prune 移除，无法解码的记录跳过
func (r *RedisStore) Scan(ctx context.Context) ([]*Connection, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if len(ids) == 0 {
		return []*Connection{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.recordKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}

	out := make([]*Connection, 0, len(values))
	var dangling []string
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			dangling = append(dangling, ids[i])
			continue
		}
		var conn Connection
		if err := json.Unmarshal([]byte(s), &conn); err != nil {
			continue
		}
		out = append(out, &conn)
	}

	if len(dangling) > 0 {
		// 清理失败不影响本次快照
		_, _ = r.prune(ctx, dangling)
	}
	return out, nil
}

// prune 移除记录已不存在的索引成员，检查与移除在同一脚本内完成
// MGET 之后重新 Put 的记录不会被移出索引
func (r *RedisStore) prune(ctx context.Context, ids []string) (int64, error) {
	keys := make([]string, 0, len(ids)+1)
	args := make([]any, 0, len(ids))
	keys = append(keys, r.indexKey())
	for _, id := range ids {
		keys = append(keys, r.recordKey(id))
		args = append(args, id)
	}
	return pruneScript.Run(ctx, r.client, keys, args...).Int64()
}

// Ping 检查连通性
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
