package master

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"yqhp/kambo-hive/internal/config"
	"yqhp/kambo-hive/pkg/types"
)

// SnapshotSink persists snapshots somewhere.
type SnapshotSink interface {
	// Name identifies the sink in log lines.
	Name() string

	// Save writes the snapshot. It is never called with any lock held.
	Save(ctx context.Context, snap *types.Snapshot) error
}

// FileSink writes snapshots as a JSON document, replacing the file atomically.
type FileSink struct {
	path string
}

// NewFileSink creates a sink writing to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Name implements SnapshotSink.
func (f *FileSink) Name() string {
	return "file:" + f.path
}

// Save implements SnapshotSink.
func (f *FileSink) Save(_ context.Context, snap *types.Snapshot) error {
	return writeJSONFile(f.path, snap)
}

// RedisSink mirrors the latest snapshot into a Redis key.
type RedisSink struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedisSink creates a sink storing snapshots under key. A zero ttl keeps the key forever.
func NewRedisSink(client redis.Cmdable, key string, ttl time.Duration) *RedisSink {
	return &RedisSink{client: client, key: key, ttl: ttl}
}

// DialRedis connects to a Redis server and verifies it answers.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// Name implements SnapshotSink.
func (r *RedisSink) Name() string {
	return "redis:" + r.key
}

// Save implements SnapshotSink.
func (r *RedisSink) Save(ctx context.Context, snap *types.Snapshot) error {
	data, err := sonic.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return r.client.Set(ctx, r.key, data, r.ttl).Err()
}

// BuildSinks creates the sinks enabled in cfg. The returned close function
// releases the Redis connection if one was opened.
func BuildSinks(ctx context.Context, cfg config.SnapshotConfig) ([]SnapshotSink, func() error, error) {
	sinks := make([]SnapshotSink, 0, 2)
	closeFn := func() error { return nil }

	if cfg.Path != "" {
		sinks = append(sinks, NewFileSink(cfg.Path))
	}
	if cfg.RedisAddr != "" {
		client, err := DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, NewRedisSink(client, cfg.RedisKey, 0))
		closeFn = client.Close
	}
	return sinks, closeFn, nil
}
