package flow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyrix-labs/gocoro/pkg/virtualtime"
)

func TestOfEmitsInOrder(t *testing.T) {
	got, err := ToSlice(context.Background(), Of(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestCollectIsIndependentPerCall(t *testing.T) {
	calls := 0
	f := New(func(ctx context.Context, emit Emit[int]) error {
		calls++
		return emit(calls)
	})

	v1, err := ToSlice(context.Background(), f)
	require.NoError(t, err)
	v2, err := ToSlice(context.Background(), f)
	require.NoError(t, err)

	assert.Equal(t, []int{1}, v1)
	assert.Equal(t, []int{2}, v2)
}

func TestFromChannel(t *testing.T) {
	ch := make(chan int, 3)
	ch <- 1
	ch <- 2
	ch <- 3
	close(ch)

	got, err := ToSlice(context.Background(), FromChannel(ch))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestToChannel(t *testing.T) {
	out, errCh := ToChannel(context.Background(), Of(1, 2, 3))
	var got []int
	for v := range out {
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.NoError(t, <-errCh)
}

func TestMap(t *testing.T) {
	got, err := ToSlice(context.Background(), Map(Of(1, 2, 3), func(v int) int { return v * 2 }))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, got)
}

func TestFilter(t *testing.T) {
	got, err := ToSlice(context.Background(), Filter(Of(1, 2, 3, 4, 5), func(v int) bool { return v%2 == 0 }))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, got)
}

func TestFirst(t *testing.T) {
	v, err := First(context.Background(), Of(10, 20, 30))
	require.NoError(t, err)
	assert.Equal(t, 10, v)
}

func TestFirstOnEmptyReturnsErrEmpty(t *testing.T) {
	_, err := First(context.Background(), Of[int]())
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestScanEmitsRunningTotal(t *testing.T) {
	got, err := ToSlice(context.Background(), Scan(Of(1, 2, 3), 0, func(acc, v int) int { return acc + v }))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 3, 6}, got)
}

func TestFold(t *testing.T) {
	total, err := Fold(context.Background(), Of(1, 2, 3, 4), 0, func(acc, v int) int { return acc + v })
	require.NoError(t, err)
	assert.Equal(t, 10, total)
}

func TestTake(t *testing.T) {
	got, err := ToSlice(context.Background(), Take(Of(1, 2, 3, 4, 5), 3))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestTakeMoreThanAvailable(t *testing.T) {
	got, err := ToSlice(context.Background(), Take(Of(1, 2), 10))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)
}

func TestTakeWhile(t *testing.T) {
	got, err := ToSlice(context.Background(), TakeWhile(Of(1, 2, 3, 10, 1), func(v int) bool { return v < 5 }))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestDrop(t *testing.T) {
	got, err := ToSlice(context.Background(), Drop(Of(1, 2, 3, 4), 2))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, got)
}

func TestDropWhile(t *testing.T) {
	got, err := ToSlice(context.Background(), DropWhile(Of(1, 2, 10, 3), func(v int) bool { return v < 5 }))
	require.NoError(t, err)
	assert.Equal(t, []int{10, 3}, got)
}

func TestDistinctUntilChanged(t *testing.T) {
	got, err := ToSlice(context.Background(), DistinctUntilChanged(Of(1, 1, 2, 2, 2, 3, 1)))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 1}, got)
}

func TestZip(t *testing.T) {
	a := Of(1, 2, 3)
	b := Of("a", "b", "c")
	got, err := ToSlice(context.Background(), Zip(a, b, func(n int, s string) string {
		return s + string(rune('0'+n))
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "b2", "c3"}, got)
}

func TestCombineTerminatesWhenShorterSideEnds(t *testing.T) {
	started := make(chan struct{})
	finite := Flow[string](func(ctx context.Context, emit Emit[string]) error {
		if err := emit("a"); err != nil {
			return err
		}
		<-started
		return emit("b")
	})
	infinite := Flow[int](func(ctx context.Context, emit Emit[int]) error {
		if err := emit(1); err != nil {
			return err
		}
		close(started)
		<-ctx.Done() // never ends on its own; Combine must cancel it
		return ctx.Err()
	})

	done := make(chan struct{})
	var got []string
	go func() {
		got, _ = ToSlice(context.Background(), Combine(finite, infinite, func(s string, n int) string {
			return fmt.Sprintf("%s%d", s, n)
		}))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Combine did not terminate when the finite side ended")
	}
	assert.NotEmpty(t, got)
}

func TestMerge(t *testing.T) {
	a := Of(1, 2)
	b := Of(3, 4)
	got, err := ToSlice(context.Background(), Merge(a, b))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2, 3, 4}, got)
}

func TestFlatMapConcatPreservesOuterOrder(t *testing.T) {
	outer := Of(1, 2, 3)
	got, err := ToSlice(context.Background(), FlatMapConcat(outer, func(v int) Flow[int] {
		return Of(v, v*10)
	}))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 10, 2, 20, 3, 30}, got)
}

func TestFlatMapMergeCollectsAllValues(t *testing.T) {
	outer := Of(1, 2, 3)
	got, err := ToSlice(context.Background(), FlatMapMerge(outer, 2, func(v int) Flow[int] {
		return Of(v, v*10)
	}))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 10, 2, 20, 3, 30}, got)
}

func TestBuffer(t *testing.T) {
	got, err := ToSlice(context.Background(), Buffer(Of(1, 2, 3), 2))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestCatchRecoversError(t *testing.T) {
	boom := errors.New("boom")
	f := New(func(ctx context.Context, emit Emit[int]) error {
		if err := emit(1); err != nil {
			return err
		}
		return boom
	})

	recoveredWith := errors.New("")
	wrapped := Catch(f, func(err error) error {
		recoveredWith = err
		return nil
	})

	got, err := ToSlice(context.Background(), wrapped)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, got)
	assert.ErrorIs(t, recoveredWith, boom)
}

func TestRetryRetriesOnFailure(t *testing.T) {
	attempts := 0
	f := New(func(ctx context.Context, emit Emit[int]) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return emit(attempts)
	})

	clock := virtualtime.NewController(time.Unix(0, 0))
	type outcome struct {
		got []int
		err error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		got, err := ToSlice(context.Background(), Retry(f, 5, clock, func(error) bool { return true }))
		resultCh <- outcome{got, err}
	}()

	// 100ms backoff after the 1st failed attempt, 200ms after the 2nd.
	for _, backoff := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond} {
		require.Eventually(t, func() bool {
			_, ok := clock.NextDeadline()
			return ok
		}, time.Second, time.Millisecond)
		clock.AdvanceBy(backoff)
	}

	select {
	case res := <-resultCh:
		require.NoError(t, res.err)
		assert.Equal(t, []int{3}, res.got)
		assert.Equal(t, 3, attempts)
	case <-time.After(time.Second):
		t.Fatal("Retry never settled")
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	boom := errors.New("permanent")
	f := New(func(ctx context.Context, emit Emit[int]) error { return boom })

	clock := virtualtime.NewController(time.Unix(0, 0))
	errCh := make(chan error, 1)
	go func() {
		_, err := ToSlice(context.Background(), Retry(f, 3, clock, func(error) bool { return true }))
		errCh <- err
	}()

	for _, backoff := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond} {
		require.Eventually(t, func() bool {
			_, ok := clock.NextDeadline()
			return ok
		}, time.Second, time.Millisecond)
		clock.AdvanceBy(backoff)
	}

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("Retry never gave up")
	}
}

func TestOnStartAndOnCompletion(t *testing.T) {
	started := false
	var completedWith error
	completedWith = errors.New("unset")

	f := OnCompletion(OnStart(Of(1, 2), func() { started = true }), func(cause error) {
		completedWith = cause
	})

	_, err := ToSlice(context.Background(), f)
	require.NoError(t, err)
	assert.True(t, started)
	assert.NoError(t, completedWith)
}

func TestOnEmptyInvokedOnlyWhenNothingEmitted(t *testing.T) {
	f := OnEmpty(Of[int](), func(emit Emit[int]) error {
		return emit(-1)
	})
	got, err := ToSlice(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, []int{-1}, got)

	f2 := OnEmpty(Of(1, 2), func(emit Emit[int]) error {
		t.Fatal("onEmpty should not run when the flow emitted values")
		return nil
	})
	got2, err := ToSlice(context.Background(), f2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got2)
}

func TestDebounceEmitsOnlyAfterQuietPeriod(t *testing.T) {
	clock := virtualtime.NewController(time.Unix(0, 0))

	f := New(func(ctx context.Context, emit Emit[int]) error {
		for _, v := range []int{1, 2, 3} {
			if err := emit(v); err != nil {
				return err
			}
			<-clock.After(5*time.Millisecond, ctx.Done())
		}
		return nil
	})

	type outcome struct {
		got []int
		err error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		got, err := ToSlice(context.Background(), Debounce(f, 30*time.Millisecond, clock))
		resultCh <- outcome{got, err}
	}()

	// Advance past each of the upstream's three inter-emit gaps; none of
	// them reaches Debounce's own 30ms quiet deadline, so the upstream's
	// own completion (after the third gap) is what flushes the pending
	// value - not the quiet timer firing on its own.
	for i := 0; i < 3; i++ {
		require.Eventually(t, func() bool {
			_, ok := clock.NextDeadline()
			return ok
		}, time.Second, time.Millisecond)
		clock.AdvanceBy(5 * time.Millisecond)
	}

	select {
	case res := <-resultCh:
		require.NoError(t, res.err)
		assert.Equal(t, []int{3}, res.got)
	case <-time.After(time.Second):
		t.Fatal("Debounce never settled after the upstream completed")
	}
}
