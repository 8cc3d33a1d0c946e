package refcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetCachesUntilTTL(t *testing.T) {
	c := New(Options{TTL: time.Minute}, MetricsHooks{})
	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	calls := 0
	loader := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	v, err := GetAs(context.Background(), c, "rates:1", loader)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = GetAs(context.Background(), c, "rates:1", loader)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	v, err = GetAs(context.Background(), c, "rates:1", loader)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestLoaderErrorsAreNotCached(t *testing.T) {
	c := New(Options{TTL: time.Minute}, MetricsHooks{})
	boom := errors.New("boom")

	_, err := c.Get(context.Background(), "rates:1", func(context.Context) (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	v, err := c.Get(context.Background(), "rates:1", func(context.Context) (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestConcurrentMissesLoadOnce(t *testing.T) {
	c := New(Options{TTL: time.Minute}, MetricsHooks{})
	var calls int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Get(context.Background(), "rates:1", func(context.Context) (any, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return "v", nil
			})
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestInvalidate(t *testing.T) {
	c := New(Options{TTL: time.Minute}, MetricsHooks{})
	ctx := context.Background()
	node, _ := snowflake.NewNode(1)
	id := node.Generate()

	for _, key := range []string{Key("rates", id), "destinations:set:1", "destinations:set:2"} {
		_, err := c.Get(ctx, key, func(context.Context) (any, error) { return 1, nil })
		require.NoError(t, err)
	}
	require.Equal(t, 3, c.Len())

	require.NoError(t, c.Invalidate(ctx, Key("rates", id)))
	assert.Equal(t, 2, c.Len())

	require.NoError(t, c.InvalidatePrefix(ctx, "destinations:"))
	assert.Equal(t, 0, c.Len())
}

func TestOnDropSeesEveryInvalidation(t *testing.T) {
	c := New(Options{TTL: time.Minute}, MetricsHooks{})
	ctx := context.Background()

	type dropped struct {
		keys   []string
		prefix bool
	}
	var got []dropped
	c.OnDrop(func(keys []string, prefix bool) { got = append(got, dropped{keys, prefix}) })

	require.NoError(t, c.Invalidate(ctx, "rates:1", "rates:2"))
	require.NoError(t, c.InvalidatePrefix(ctx, "destinations:"))
	require.NoError(t, c.Invalidate(ctx))

	assert.Equal(t, []dropped{
		{[]string{"rates:1", "rates:2"}, false},
		{[]string{"destinations:"}, true},
	}, got, "listeners run even when nothing was cached")
}

func TestLoadRacingInvalidationIsDropped(t *testing.T) {
	c := New(Options{TTL: time.Minute}, MetricsHooks{})
	ctx := context.Background()

	_, err := c.Get(ctx, "rates:1", func(context.Context) (any, error) {
		require.NoError(t, c.Invalidate(ctx, "rates:1"))
		return "stale", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestMaxEntriesEvictsOldest(t *testing.T) {
	var evicted []string
	c := New(Options{TTL: time.Minute, MaxEntries: 2}, MetricsHooks{
		OnEvict: func(table string) { evicted = append(evicted, table) },
	})
	ctx := context.Background()
	for _, key := range []string{"a:1", "b:1", "c:1"} {
		_, err := c.Get(ctx, key, func(context.Context) (any, error) { return key, nil })
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"a"}, evicted)
}

func TestRedisBroadcasterFansOutInvalidations(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()

	local := New(Options{TTL: time.Minute}, MetricsHooks{})
	remote := New(Options{TTL: time.Minute}, MetricsHooks{})
	local.SetBroadcaster(NewRedisBroadcaster(rdb, "netbill:refcache", zap.NewNop()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan struct{})
	go func() {
		_ = NewRedisBroadcaster(rdb, "netbill:refcache", zap.NewNop()).Listen(ctx, remote, ready)
	}()
	<-ready

	_, err = remote.Get(ctx, "rates:1", func(context.Context) (any, error) { return 1, nil })
	require.NoError(t, err)
	require.Equal(t, 1, remote.Len())

	require.NoError(t, local.Invalidate(ctx, "rates:1"))
	assert.Eventually(t, func() bool { return remote.Len() == 0 }, time.Second, 10*time.Millisecond)
}
