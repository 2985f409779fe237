package handlers_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/on-the-ground/effect_ive_store/effects/internal/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyedMessage struct {
	seq int
	key string
}

func (m keyedMessage) PartitionKey() string {
	return m.key
}

func TestSingleQueue_HandlesInSendOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu  sync.Mutex
		got []int
		wg  sync.WaitGroup
	)
	wg.Add(3)
	dispatcher := handlers.NewSingleQueue(ctx, 4, func(_ context.Context, msg int) {
		defer wg.Done()
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	})

	for i := 1; i <= 3; i++ {
		require.True(t, dispatcher.Send(ctx, i))
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestPartitionedQueue_SameKeySameWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu    sync.Mutex
		byKey = map[string][]int{}
		wg    sync.WaitGroup
	)
	msgs := []keyedMessage{
		{1, "slice.a"}, {2, "slice.b"}, {3, "slice.a"}, {4, "slice.b"}, {5, "slice.a"},
	}
	wg.Add(len(msgs))
	dispatcher := handlers.NewPartitionedQueue(ctx, 3, 8, func(_ context.Context, msg keyedMessage) {
		defer wg.Done()
		mu.Lock()
		byKey[msg.key] = append(byKey[msg.key], msg.seq)
		mu.Unlock()
	})

	for _, msg := range msgs {
		require.True(t, dispatcher.Send(ctx, msg))
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 3, 5}, byKey["slice.a"])
	assert.Equal(t, []int{2, 4}, byKey["slice.b"])
}

func TestSingleQueue_RejectsSendsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := handlers.NewSingleQueue(ctx, 1, func(context.Context, int) {})

	cancel()

	assert.NotPanics(t, func() {
		assert.False(t, dispatcher.Send(context.Background(), 1))
	})
}

func TestSingleQueue_DropsBufferedMessagesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	handling := make(chan struct{})
	dropped := make(chan int, 4)

	dispatcher := handlers.NewSingleQueue(ctx, 4, func(_ context.Context, msg int) {
		if msg == 0 {
			close(handling)
			<-release
		}
	}, func(msg int) { dropped <- msg })

	require.True(t, dispatcher.Send(ctx, 0))
	<-handling
	require.True(t, dispatcher.Send(ctx, 1))
	require.True(t, dispatcher.Send(ctx, 2))

	cancel()
	close(release)

	var got []int
	for len(got) < 2 {
		select {
		case msg := <-dropped:
			got = append(got, msg)
		case <-time.After(time.Second):
			t.Fatal("buffered messages were not dropped")
		}
	}
	assert.Equal(t, []int{1, 2}, got)
}

func TestPartitionedQueue_ConcurrentSendsAndCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := handlers.NewPartitionedQueue(ctx, 2, 1, func(context.Context, keyedMessage) {})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				dispatcher.Send(context.Background(), keyedMessage{seq: j, key: string(rune('a' + i))})
			}
		}(i)
	}
	cancel()
	wg.Wait()

	assert.False(t, dispatcher.Send(context.Background(), keyedMessage{key: "a"}))
}
