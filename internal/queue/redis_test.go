package queue

import (
	"context"
	"testing"
	"time"

	"replay/crumbs/internal/config"
	"replay/crumbs/internal/domain/task"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueue(t *testing.T, maxLen int64) (*RedisQueue, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	q, err := NewRedisQueue(context.Background(), rdb, config.RedisConfig{
		ConsumerGroup: "workers",
		StreamMaxLen:  maxLen,
	})
	require.NoError(t, err)
	q.block = 50 * time.Millisecond
	return q, rdb
}

func summarizeDef(t *testing.T) task.Definition {
	t.Helper()
	def, err := task.Lookup(task.TypeSummarizeReplay)
	require.NoError(t, err)
	return def
}

func TestNewRedisQueue_CreatesGroups(t *testing.T) {
	q, rdb := newQueue(t, 0)
	ctx := context.Background()

	for _, def := range task.Definitions {
		groups, err := rdb.XInfoGroups(ctx, def.Stream).Result()
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, "workers", groups[0].Name)
	}

	// Groups already exist on restart.
	assert.NoError(t, q.EnsureStreamsExist(ctx))
}

func TestAddTask_GetTask_AckTask(t *testing.T) {
	q, rdb := newQueue(t, 0)
	ctx := context.Background()
	def := summarizeDef(t)

	id, err := q.AddTask(ctx, &task.SummarizeReplayTask{ReplayID: "r1"})
	require.NoError(t, err)

	msg, err := q.GetTask(ctx, "main-worker-1", def)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, id, msg.ID)
	assert.Equal(t, def, msg.Def)

	decoded, err := task.UnmarshalTask[*task.SummarizeReplayTask](msg.Data)
	require.NoError(t, err)
	assert.Equal(t, "r1", decoded.ReplayID)

	pending, err := rdb.XPending(ctx, def.Stream, "workers").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending.Count)

	require.NoError(t, q.AckTask(ctx, msg))

	pending, err = rdb.XPending(ctx, def.Stream, "workers").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestAddTask_RoutesByType(t *testing.T) {
	q, rdb := newQueue(t, 0)
	ctx := context.Background()

	_, err := q.AddTask(ctx, &task.ReplayRetryTask{ReplayID: "r1", RetryCount: 1})
	require.NoError(t, err)

	retryDef, err := task.Lookup(task.TypeReplayRetry)
	require.NoError(t, err)
	n, err := rdb.XLen(ctx, retryDef.Stream).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = rdb.XLen(ctx, summarizeDef(t).Stream).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestGetTask_EmptyStream(t *testing.T) {
	q, _ := newQueue(t, 0)

	msg, err := q.GetTask(context.Background(), "main-worker-1", summarizeDef(t))
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestGetTask_DropsMalformedEntry(t *testing.T) {
	q, rdb := newQueue(t, 0)
	ctx := context.Background()
	def := summarizeDef(t)

	require.NoError(t, rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: def.Stream,
		Values: map[string]interface{}{"task_type": "Other", "task_data": "{}"},
	}).Err())

	_, err := q.GetTask(ctx, "main-worker-1", def)
	assert.ErrorContains(t, err, `task type "Other"`)

	pending, err := rdb.XPending(ctx, def.Stream, "workers").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestAutoClaim_TakesOverPendingTask(t *testing.T) {
	q, _ := newQueue(t, 0)
	ctx := context.Background()
	def := summarizeDef(t)

	_, err := q.AddTask(ctx, &task.SummarizeReplayTask{ReplayID: "r1"})
	require.NoError(t, err)

	// Read but never acknowledged, as by a consumer that died.
	first, err := q.GetTask(ctx, "main-worker-1", def)
	require.NoError(t, err)
	require.NotNil(t, first)

	claimed, err := q.AutoClaim(ctx, "autoclaimer-main", def, 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, first.ID, claimed[0].ID)
	assert.Equal(t, first.Data, claimed[0].Data)

	require.NoError(t, q.AckTask(ctx, &claimed[0]))

	claimed, err = q.AutoClaim(ctx, "autoclaimer-main", def, 0)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestAutoClaim_RespectsIdleTime(t *testing.T) {
	q, _ := newQueue(t, 0)
	ctx := context.Background()
	def := summarizeDef(t)

	_, err := q.AddTask(ctx, &task.SummarizeReplayTask{ReplayID: "r1"})
	require.NoError(t, err)
	_, err = q.GetTask(ctx, "main-worker-1", def)
	require.NoError(t, err)

	claimed, err := q.AutoClaim(ctx, "autoclaimer-main", def, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}
