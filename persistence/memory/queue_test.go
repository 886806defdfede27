package memory

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueue(t *testing.T) {
	ctx := context.Background()
	q := NewQueue()
	require.NoError(t, q.Push(ctx, "image.generate", "j1", []byte("m1")))
	require.NoError(t, q.Push(ctx, "image.generate", "j2", []byte("m2")))
	require.NoError(t, q.Push(ctx, "image.generate", "j3", []byte("m3")))

	res, err := q.Pop(ctx, "image.generate", 2)
	require.NoError(t, err)
	require.Equal(t, []string{"m1", "m2"}, res)

	res, err = q.Pop(ctx, "image.generate", 5)
	require.NoError(t, err)
	require.Equal(t, []string{"m3"}, res)

	res, err = q.Pop(ctx, "video.generate", 5)
	require.NoError(t, err)
	require.Empty(t, res)

	require.NoError(t, q.Push(ctx, "image.generate", "j4", []byte("m4")))
	for _, batch := range []int{0, -1, math.MinInt} {
		res, err = q.Pop(ctx, "image.generate", batch)
		require.NoError(t, err)
		require.Empty(t, res)
	}
	res, err = q.Pop(ctx, "image.generate", 1)
	require.NoError(t, err)
	require.Equal(t, []string{"m4"}, res)
}

func TestDelayQueue(t *testing.T) {
	for scenario, fn := range map[string]func(
		t *testing.T, queue *memoryDelayQueue,
	){
		"due message is popped once": testPushPop,
		"message waits for delay":    testPushPopDelay,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, NewDelayQueue())
		})
	}
}

func testPushPop(t *testing.T, queue *memoryDelayQueue) {
	ctx := context.Background()
	require.NoError(t, queue.PushWithDelay(ctx, "retry", 0, []byte("test_msg1")))

	res, err := queue.Pop(ctx, "retry")
	require.NoError(t, err)
	require.Equal(t, []string{"test_msg1"}, res)

	res, err = queue.Pop(ctx, "retry")
	require.NoError(t, err)
	require.Empty(t, res)
}

func testPushPopDelay(t *testing.T, queue *memoryDelayQueue) {
	ctx := context.Background()
	require.NoError(t, queue.PushWithDelay(ctx, "retry", 200*time.Millisecond, []byte("later")))
	require.NoError(t, queue.PushWithDelay(ctx, "retry", 0, []byte("now")))

	res, err := queue.Pop(ctx, "retry")
	require.NoError(t, err)
	require.Equal(t, []string{"now"}, res)

	time.Sleep(300 * time.Millisecond)
	res, err = queue.Pop(ctx, "retry")
	require.NoError(t, err)
	require.Equal(t, []string{"later"}, res)
}
