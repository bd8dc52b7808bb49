package deferred

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyrix-labs/gocoro/pkg/job"
)

func TestAwaitReturnsValue(t *testing.T) {
	d := New(job.New(nil), Default, func() (int, error) { return 42, nil })
	go d.Launch()

	v, err := d.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, job.Completed, d.State())
}

func TestAwaitReturnsError(t *testing.T) {
	boom := errors.New("boom")
	d := New(job.New(nil), Default, func() (int, error) { return 0, boom })
	go d.Launch()

	_, err := d.Await(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, job.Faulted, d.State())
}

func TestAwaitIsRepeatable(t *testing.T) {
	d := New(job.New(nil), Default, func() (int, error) { return 7, nil })
	go d.Launch()

	v1, err1 := d.Await(context.Background())
	v2, err2 := d.Await(context.Background())
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, v1, v2)
}

func TestLazyDeferredDoesNotRunUntilStarted(t *testing.T) {
	ran := make(chan struct{})
	d := New(job.New(nil), Lazy, func() (int, error) {
		close(ran)
		return 1, nil
	})
	go d.Launch()

	select {
	case <-ran:
		t.Fatal("lazy deferred body ran before Start/Await")
	case <-time.After(20 * time.Millisecond):
	}

	_, err := d.Await(context.Background())
	require.NoError(t, err)
	select {
	case <-ran:
	default:
		t.Fatal("expected body to have run after Await")
	}
}

func TestAwaitRespectsCallerCancellation(t *testing.T) {
	block := make(chan struct{})
	d := New(job.New(nil), Default, func() (int, error) {
		<-block
		return 0, nil
	})
	go d.Launch()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := d.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTryGetResultNonBlocking(t *testing.T) {
	block := make(chan struct{})
	d := New(job.New(nil), Default, func() (int, error) {
		<-block
		return 9, nil
	})
	go d.Launch()

	_, _, ok := d.TryGetResult()
	assert.False(t, ok)

	close(block)
	require.Eventually(t, func() bool {
		_, _, ok := d.TryGetResult()
		return ok
	}, time.Second, time.Millisecond)
}

func TestCancelledDeferredReportsCancellationFromAwait(t *testing.T) {
	block := make(chan struct{})
	j := job.New(nil)
	d := New(j, Default, func() (int, error) {
		<-block
		return 0, nil
	})
	go d.Launch()

	j.Cancel("no longer needed")
	close(block)

	_, err := d.Await(context.Background())
	assert.ErrorIs(t, err, job.ErrCancelled)
}

func TestGetExceptionReflectsFault(t *testing.T) {
	boom := errors.New("kaboom")
	d := New(job.New(nil), Default, func() (int, error) { return 0, boom })
	go d.Launch()
	_, _ = d.Await(context.Background())

	var fe *job.FaultError
	require.ErrorAs(t, d.GetException(), &fe)
	assert.ErrorIs(t, fe.Cause, boom)
}
