// Package sched provides the single-threaded worker every PartitionShard
// runs its drain and response-handling logic on. It is the concrete form
// of the actor spec.md §9 describes: "a bounded channel of commands
// processed by a dedicated task."
package sched

import (
	"sync"

	"github.com/rohithreddy/voltdb/common"
	log "github.com/sirupsen/logrus"
)

// ShardScheduler runs actions one at a time, in submission order, on a
// single dedicated goroutine. Every PartitionShard owns exactly one, so
// "at most one batch-submit and one drain are in flight per shard"
// (spec.md §3 invariants) falls out of this scheduler's design rather
// than needing a separate per-shard mutex around submit logic.
type ShardScheduler struct {
	actions chan func() error
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
}

// NewShardScheduler starts the worker goroutine immediately. queueDepth
// bounds how many pending actions may be buffered before ScheduleAction/
// ScheduleActionFireAndForget block the caller. Neither may ever be called
// from the worker goroutine itself (i.e. from inside an action this
// scheduler is currently running) - that goroutine is the only one that
// drains the channel, so it would be blocking on a send only it could ever
// receive. A caller that needs to reschedule work from within a running
// action must hand the reschedule to a separate goroutine first (see
// PartitionShard.dispatchResponse).
func NewShardScheduler(queueDepth int) *ShardScheduler {
	s := &ShardScheduler{
		actions: make(chan func() error, queueDepth),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *ShardScheduler) run() {
	defer close(s.doneCh)
	defer common.PanicHandler()
	for {
		select {
		case action := <-s.actions:
			if err := action(); err != nil {
				log.Errorf("shard scheduler action failed: %v", err)
			}
		case <-s.stopCh:
			// Drain whatever is left so already-accepted work still runs -
			// shutdown is "flush, wait, then terminate" (spec.md §4.2).
			for {
				select {
				case action := <-s.actions:
					if err := action(); err != nil {
						log.Errorf("shard scheduler action failed during drain: %v", err)
					}
				default:
					return
				}
			}
		}
	}
}

// ScheduleAction enqueues action to run on the worker goroutine, blocking
// the caller if the queue is full. Returns a channel that receives the
// action's error once it has run.
func (s *ShardScheduler) ScheduleAction(action func() error) <-chan error {
	result := make(chan error, 1)
	s.actions <- func() error {
		err := action()
		result <- err
		return err
	}
	return result
}

// ScheduleActionFireAndForget enqueues action without waiting for a
// result. Errors are logged, not propagated - used for drain scheduling
// and response-callback dispatch where there's no caller left to report
// to. It blocks if the action queue is full, same as ScheduleAction,
// unless the scheduler is stopping - see the warning on
// NewShardScheduler about calling this from the worker goroutine itself.
func (s *ShardScheduler) ScheduleActionFireAndForget(action func() error) {
	select {
	case s.actions <- action:
	case <-s.stopCh:
	}
}

// Stop terminates the worker after draining already-queued actions.
// Idempotent.
func (s *ShardScheduler) Stop() {
	s.once.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh
}
