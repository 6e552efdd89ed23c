package master

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/kambo-hive/pkg/types"
)

type memorySink struct {
	mu    sync.Mutex
	saved []*types.Snapshot
	err   error
}

func (m *memorySink) Name() string { return "memory" }

func (m *memorySink) Save(_ context.Context, snap *types.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, snap)
	return nil
}

func (m *memorySink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func TestPeriodicSaverTicksAndFlushes(t *testing.T) {
	clock := clockwork.NewFakeClock()
	agg := NewResultAggregator(clock)
	sink := &memorySink{}
	saver := NewPeriodicSaver(agg, time.Minute, clock, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- saver.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.NoError(t, agg.Record(newResult("t1", "g", 1, 1)))
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, agg.Record(newResult("t2", "g", 2, 1)))
	cancel()
	require.NoError(t, <-done)

	require.Equal(t, 2, sink.count())
	assert.Equal(t, 1, sink.saved[0].TotalResultsCollected)
	assert.Equal(t, 2, sink.saved[1].TotalResultsCollected)
}

func TestSaveNowContinuesAfterSinkFailure(t *testing.T) {
	agg := NewResultAggregator(nil)
	broken := &memorySink{err: errors.New("disk full")}
	ok := &memorySink{}

	saver := NewPeriodicSaver(agg, time.Minute, nil, broken, ok)
	assert.Equal(t, 1, saver.SaveNow(context.Background()))
	assert.Equal(t, 1, ok.count())
}

func TestPeriodicSaverWithoutSinks(t *testing.T) {
	saver := NewPeriodicSaver(NewResultAggregator(nil), time.Minute, nil)
	assert.NoError(t, saver.Run(context.Background()))
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	agg := NewResultAggregator(nil)
	require.NoError(t, agg.Record(newResult("t1", "g", 1, 1)))

	sink := NewFileSink(path)
	require.NoError(t, sink.Save(context.Background(), agg.Snapshot()))
	require.NoError(t, agg.Record(newResult("t2", "g", 1, 1)))
	require.NoError(t, sink.Save(context.Background(), agg.Snapshot()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap types.Snapshot
	require.NoError(t, sonic.Unmarshal(data, &snap))
	assert.Equal(t, 2, snap.TotalResultsCollected)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

// fakeRedis records SET calls; every other command is unimplemented.
type fakeRedis struct {
	redis.Cmdable
	key   string
	value []byte
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.key = key
	f.value = value.([]byte)
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func TestRedisSink(t *testing.T) {
	client := &fakeRedis{}
	sink := NewRedisSink(client, "hive:snapshot", 0)
	assert.Equal(t, "redis:hive:snapshot", sink.Name())

	agg := NewResultAggregator(nil)
	require.NoError(t, agg.Record(newResult("t1", "g", 1, 1)))
	require.NoError(t, sink.Save(context.Background(), agg.Snapshot()))

	assert.Equal(t, "hive:snapshot", client.key)
	var snap types.Snapshot
	require.NoError(t, sonic.Unmarshal(client.value, &snap))
	assert.Equal(t, 1, snap.TotalResultsCollected)
}
