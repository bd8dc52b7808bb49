package dispatcher

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPooledRunsAllTasks(t *testing.T) {
	p := NewPooled(4, 16)
	defer p.Close()

	var n int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.NoError(t, p.Dispatch(func() {
			defer wg.Done()
			atomic.AddInt32(&n, 1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(100), atomic.LoadInt32(&n))
}

func TestPooledRejectsAfterClose(t *testing.T) {
	p := NewPooled(2, 4)
	p.Close()
	p.Close() // idempotent

	err := p.Dispatch(func() {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestIODispatcherUsesLargerPool(t *testing.T) {
	io := NewIO(8)
	defer io.Close()

	var started sync.WaitGroup
	release := make(chan struct{})
	const n = 32
	started.Add(n)
	for i := 0; i < n; i++ {
		require.NoError(t, io.Dispatch(func() {
			started.Done()
			<-release
		}))
	}

	done := make(chan struct{})
	go func() { started.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected enough concurrent workers to start all tasks")
	}
	close(release)
}

func TestPooledStatsReportsQueuedAndBusy(t *testing.T) {
	p := NewPooled(1, 4)
	defer p.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, p.Dispatch(func() {
		close(started)
		<-release
	}))
	<-started

	require.NoError(t, p.Dispatch(func() {}))
	require.NoError(t, p.Dispatch(func() {}))

	require.Eventually(t, func() bool {
		queued, busy := p.Stats()
		return queued == 2 && busy == 1
	}, time.Second, time.Millisecond)

	close(release)
	require.Eventually(t, func() bool {
		queued, busy := p.Stats()
		return queued == 0 && busy == 0
	}, time.Second, time.Millisecond)

	var _ StatsReporter = p
}

func TestSingleThreadSerializesTasks(t *testing.T) {
	s := NewSingleThread(8)
	defer s.Close()

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		require.NoError(t, s.Dispatch(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 20)
	for i, v := range order {
		assert.Equal(t, i, v, "single-thread dispatcher must preserve submission order")
	}
}

func TestSingleThreadCloseJoinsWorker(t *testing.T) {
	s := NewSingleThread(4)
	var ran int32
	require.NoError(t, s.Dispatch(func() {
		time.Sleep(10 * time.Millisecond)
		atomic.StoreInt32(&ran, 1)
	}))
	s.Close()
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))

	assert.ErrorIs(t, s.Dispatch(func() {}), ErrClosed)
}

func TestInlineRunsOnCallerGoroutine(t *testing.T) {
	i := NewInline()
	defer i.Close()

	callerGoroutine := make(chan bool, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, i.Dispatch(func() {
			callerGoroutine <- true
		}))
	}()
	<-done
	assert.True(t, <-callerGoroutine)
}

func TestInlineRejectsAfterClose(t *testing.T) {
	i := NewInline()
	i.Close()
	assert.ErrorIs(t, i.Dispatch(func() {}), ErrClosed)
}
