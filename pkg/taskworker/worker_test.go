package taskworker

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPushOrder(t *testing.T) {
	w := &Worker{Name: "test"}
	w.Initialize()
	defer w.Stop()

	var got []int
	done := make(chan struct{})

	for i := 0; i < 5; i++ {
		i := i
		w.Push(func() {
			got = append(got, i)
			if i == 4 {
				close(done)
			}
		})
	}

	<-done
	require.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestPushDelayed(t *testing.T) {
	w := &Worker{Name: "test"}
	w.Initialize()
	defer w.Stop()

	start := time.Now()
	done := make(chan time.Duration, 1)

	w.PushDelayed(func() {
		done <- time.Since(start)
	}, 50*time.Millisecond)

	elapsed := <-done
	require.GreaterOrEqual(t, elapsed, 45*time.Millisecond)
}

func TestPushDelayedCancel(t *testing.T) {
	w := &Worker{Name: "test"}
	w.Initialize()
	defer w.Stop()

	var ran atomic.Bool
	h := w.PushDelayed(func() {
		ran.Store(true)
	}, 30*time.Millisecond)
	h.Cancel()

	time.Sleep(80 * time.Millisecond)
	require.False(t, ran.Load())
}

func TestIsCurrent(t *testing.T) {
	w := &Worker{Name: "test"}
	w.Initialize()
	defer w.Stop()

	require.False(t, w.IsCurrent())

	res := make(chan bool, 1)
	w.Push(func() {
		res <- w.IsCurrent()
	})
	require.True(t, <-res)
}

func TestStopDiscardsPending(t *testing.T) {
	w := &Worker{Name: "test"}
	w.Initialize()

	blocked := make(chan struct{})
	release := make(chan struct{})
	w.Push(func() {
		close(blocked)
		<-release
	})
	<-blocked

	var ran atomic.Bool
	w.Push(func() {
		ran.Store(true)
	})

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	w.Stop()

	require.False(t, ran.Load())
	require.False(t, w.Push(func() {}))
}
