package sched_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rohithreddy/voltdb/sched"
	"github.com/stretchr/testify/require"
)

func TestScheduleActionRunsInOrder(t *testing.T) {
	s := sched.NewShardScheduler(8)
	defer s.Stop()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		if i == 4 {
			s.ScheduleActionFireAndForget(func() error {
				order = append(order, i)
				close(done)
				return nil
			})
		} else {
			s.ScheduleActionFireAndForget(func() error {
				order = append(order, i)
				return nil
			})
		}
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for actions to run")
	}

	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestScheduleActionReturnsResult(t *testing.T) {
	s := sched.NewShardScheduler(1)
	defer s.Stop()

	ch := s.ScheduleAction(func() error { return nil })
	require.NoError(t, <-ch)
}

func TestStopDrainsQueuedActions(t *testing.T) {
	s := sched.NewShardScheduler(4)

	var ran int32
	for i := 0; i < 3; i++ {
		s.ScheduleActionFireAndForget(func() error {
			atomic.AddInt32(&ran, 1)
			return nil
		})
	}
	s.Stop()
	require.Equal(t, int32(3), atomic.LoadInt32(&ran))
}

func TestStopIsIdempotent(t *testing.T) {
	s := sched.NewShardScheduler(1)
	s.Stop()
	s.Stop()
}
