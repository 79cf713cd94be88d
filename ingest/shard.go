package ingest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rohithreddy/voltdb/common"
	"github.com/rohithreddy/voltdb/errs"
	"github.com/rohithreddy/voltdb/procedure"
	"github.com/rohithreddy/voltdb/sched"
	log "github.com/sirupsen/logrus"
)

// queueCapacityMultiple is the bounded-queue-to-trigger-size ratio
// spec.md §3 fixes: "capacity = 5 x trigger size".
const queueCapacityMultiple = 5

// PartitionShard owns one bounded row queue, a single-threaded worker and
// a reusable batch buffer for one (table, partition) pair - or, for a
// multi-partition table, the single shared MP shard (spec.md §2, §3).
type PartitionShard struct {
	table    string
	columns  []common.ColumnDescriptor
	mp       bool
	partition int
	procName string
	upsert   bool
	autoReconnect bool

	client  procedure.Client
	queue   chan *Row
	scheduler *sched.ShardScheduler

	triggerSize int64 // atomic, monotonically non-increasing (spec.md §4.2 updateTriggerSize)

	mu            sync.Mutex
	drainScheduled bool

	reconnectMu   sync.Mutex
	reconnectCond *sync.Cond
	reconnectGen  *int64 // shared with every shard under the same IngestManager

	batchBuf *Batch

	// seenRoutingKeys tracks distinct encoded partition-key values this
	// (single-partition) shard has routed, purely for the high-cardinality
	// diagnostic in buildArgs - touched only from the scheduler goroutine,
	// so it needs no lock of its own.
	seenRoutingKeys       *common.ByteSliceMap
	loggedHighCardinality bool

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// routingKeyCardinalityLogThreshold is the number of distinct partition-key
// values a single shard can route before buildArgs logs a one-time warning -
// a shard meant to own one partition seeing this many distinct keys usually
// means the partition column is higher-cardinality than intended.
const routingKeyCardinalityLogThreshold = 4096

func newPartitionShard(table string, columns []common.ColumnDescriptor, partition int, mp bool, procName string,
	upsert bool, autoReconnect bool, initialTrigger int, client procedure.Client, reconnectGen *int64) *PartitionShard {
	s := &PartitionShard{
		table:         table,
		columns:       columns,
		mp:            mp,
		partition:     partition,
		procName:      procName,
		upsert:        upsert,
		autoReconnect: autoReconnect,
		client:        client,
		queue:         make(chan *Row, initialTrigger*queueCapacityMultiple),
		scheduler:     sched.NewShardScheduler(4),
		triggerSize:   int64(initialTrigger),
		batchBuf:        &Batch{Columns: columns},
		seenRoutingKeys: common.NewByteSliceMap(),
		shutdownCh:      make(chan struct{}),
		reconnectGen:    reconnectGen,
	}
	s.reconnectCond = sync.NewCond(&s.reconnectMu)
	return s
}

// Enqueue blocks the caller when the bounded queue is full - the natural
// backpressure of spec.md §4.2. After a successful put it atomically
// checks whether the queue just reached the trigger size and, if so,
// schedules exactly one drain task.
func (s *PartitionShard) Enqueue(row *Row) error {
	select {
	case s.queue <- row:
	case <-s.shutdownCh:
		return &errs.ShardShutdownError{Table: s.table, Partition: s.partition}
	}
	s.maybeScheduleDrain()
	return nil
}

func (s *PartitionShard) maybeScheduleDrain() {
	s.mu.Lock()
	trigger := int(atomic.LoadInt64(&s.triggerSize))
	shouldSchedule := len(s.queue) >= trigger && !s.drainScheduled
	if shouldSchedule {
		s.drainScheduled = true
	}
	s.mu.Unlock()
	if shouldSchedule {
		s.scheduler.ScheduleActionFireAndForget(func() error { return s.drainTask(false) })
	}
}

// Flush schedules a drain regardless of queue length and returns a
// completion handle that resolves once the drain (not its responses) has
// run (spec.md §4.2, §4.5).
func (s *PartitionShard) Flush() <-chan error {
	s.mu.Lock()
	s.drainScheduled = true
	s.mu.Unlock()
	return s.scheduler.ScheduleAction(func() error { return s.drainTask(true) })
}

// UpdateTriggerSize sets the trigger size to min(current, n) - spec.md
// §4.2: monotonically non-increasing while loaders are being added.
func (s *PartitionShard) UpdateTriggerSize(n int) {
	for {
		cur := atomic.LoadInt64(&s.triggerSize)
		if int64(n) >= cur {
			return
		}
		if atomic.CompareAndSwapInt64(&s.triggerSize, cur, int64(n)) {
			return
		}
	}
}

// Shutdown flushes, waits, then terminates the worker. Idempotent.
func (s *PartitionShard) Shutdown() {
	s.shutdownOnce.Do(func() {
		<-s.Flush()
		close(s.shutdownCh)
		s.scheduler.Stop()
		s.failQueuedRows()
	})
}

// failQueuedRows reports ShardShutdown for any rows still sitting in the
// queue after the final flush drained everything it could reach - the
// "report the remaining rows as failed" branch of spec.md §7's
// ShardShutdown row, chosen for consistency with the fact this module
// never persists/replays state across restarts (see the Non-goals in
// spec.md §1 and SPEC_FULL.md §9).
func (s *PartitionShard) failQueuedRows() {
	for {
		select {
		case r := <-s.queue:
			atomic.AddInt64(&r.loader.outstanding, -1)
			atomic.AddInt64(&r.loader.failed, 1)
			r.loader.reportFailure(r.Handle, r.Values, &procedure.Response{
				Status:  procedure.StatusGracefulFailure,
				Message: (&errs.ShardShutdownError{Table: s.table, Partition: s.partition}).Error(),
			})
		default:
			return
		}
	}
}

// NotifyReconnected wakes every worker parked waiting for a reconnect
// (spec.md §4.4, §4.6). The generation bump happens in IngestManager,
// which owns the counter this shard's reconnectGen points at; this just
// wakes whoever is already waiting on it.
func (s *PartitionShard) NotifyReconnected() {
	s.reconnectMu.Lock()
	s.reconnectCond.Broadcast()
	s.reconnectMu.Unlock()
}

// parkUntilReconnected blocks until the shared reconnect generation
// advances past gen, then calls retry. gen must be read by the caller
// before the failed CallProcedure attempt, so that a reconnect signal
// racing with the failure - arriving any time after gen was captured,
// even before the error was returned - is never missed: comparing
// generations instead of a plain boolean avoids the lost-wakeup window a
// "parked" flag set after the fact would have.
func (s *PartitionShard) parkUntilReconnected(gen int64, retry func()) {
	log.Warnf("shard for table %s partition %d parking after connection loss", s.table, s.partition)
	s.reconnectMu.Lock()
	for atomic.LoadInt64(s.reconnectGen) == gen {
		s.reconnectCond.Wait()
	}
	s.reconnectMu.Unlock()
	log.Infof("shard for table %s partition %d resuming after reconnect", s.table, s.partition)
	retry()
}

// drainTask implements spec.md §4.2's drain algorithm. force=true (a
// flush) submits whatever is in the queue even if it's below the trigger
// size; force=false (a scheduled drain) only proceeds if the queue has
// already reached the trigger size. Either way, once a batch has been
// submitted the loop repeats while the queue still holds at least
// triggerSize rows (step 7).
func (s *PartitionShard) drainTask(force bool) error {
	s.mu.Lock()
	s.drainScheduled = false
	s.mu.Unlock()

	first := true
	for {
		trigger := int(atomic.LoadInt64(&s.triggerSize))
		if trigger <= 0 {
			trigger = 1
		}
		n := len(s.queue)
		if n == 0 {
			return nil
		}
		if !(force && first) && n < trigger {
			return nil
		}
		batchSize := trigger
		if n < batchSize {
			batchSize = n
		}
		rows := s.takeRows(batchSize)
		if len(rows) == 0 {
			return nil
		}
		s.processBatch(rows)
		first = false
	}
}

func (s *PartitionShard) takeRows(n int) []*Row {
	rows := make([]*Row, 0, n)
	for i := 0; i < n; i++ {
		select {
		case r := <-s.queue:
			rows = append(rows, r)
		default:
			return rows
		}
	}
	return rows
}

// processBatch implements drain steps 2-6: coerce every row, report
// coercion failures individually and drop them from the batch, submit the
// rest as one stored-procedure call.
func (s *PartitionShard) processBatch(rows []*Row) {
	s.batchBuf.Rows = s.batchBuf.Rows[:0]
	contributions := make(map[*BulkLoader]int)
	remaining := make([]*Row, 0, len(rows))
	var routingValue interface{}
	var routingColType common.ColumnType

	for _, r := range rows {
		coerced, err := coerceRow(r)
		if err != nil {
			atomic.AddInt64(&r.loader.outstanding, -1)
			atomic.AddInt64(&r.loader.failed, 1)
			r.loader.reportFailure(r.Handle, r.Values, &procedure.Response{
				Status:  procedure.StatusUserError,
				Message: err.Error(),
			})
			continue
		}
		if !s.mp && len(remaining) == 0 {
			routingValue = coerced[r.loader.table.PartitionColumnIdx]
			routingColType = r.loader.table.PartitionColumnType
		}
		s.batchBuf.Rows = append(s.batchBuf.Rows, coerced)
		contributions[r.loader]++
		remaining = append(remaining, r)
	}

	if len(remaining) == 0 {
		return
	}

	s.submitBatch(remaining, s.batchBuf, contributions, routingValue, routingColType)
}

func coerceRow(r *Row) ([]interface{}, error) {
	coerced := make([]interface{}, len(r.Values))
	for i, v := range r.Values {
		colType := r.loader.table.Columns[i].Type
		cv, err := r.loader.coercer.Coerce(v, colType)
		if err != nil {
			return nil, &errs.ParameterTypeError{Handle: r.Handle, Cause: err}
		}
		coerced[i] = cv
	}
	return coerced, nil
}

func upsertByte(upsert bool) byte {
	if upsert {
		return 1
	}
	return 0
}

// submitBatch implements drain step 4-5: build the stored-procedure
// invocation shape of spec.md §6 and submit it.
func (s *PartitionShard) submitBatch(rows []*Row, batch *Batch, contributions map[*BulkLoader]int, routingValue interface{}, routingColType common.ColumnType) {
	args, err := s.buildArgs(batch, routingValue, routingColType)
	if err != nil {
		s.failBatch(rows, contributions, &procedure.Response{Status: procedure.StatusUserError, Message: err.Error()})
		return
	}

	cb := func(resp *procedure.Response, cbErr error) {
		s.dispatchResponse(func() error {
			s.handleBatchResponse(rows, contributions, batch, routingValue, routingColType, resp, cbErr)
			return nil
		})
	}

	gen := atomic.LoadInt64(s.reconnectGen)
	err = s.client.CallProcedure(context.Background(), cb, s.procName, args...)
	if err != nil {
		// Synchronous transport failure at submit time (spec.md §4.4).
		if s.autoReconnect {
			s.parkUntilReconnected(gen, func() { s.submitBatch(rows, batch, contributions, routingValue, routingColType) })
			return
		}
		connErr := &errs.ConnectionLostError{Terminal: true, Cause: err}
		s.failBatch(rows, contributions, &procedure.Response{Status: procedure.StatusConnectionLost, Message: connErr.Error()})
	}
}

// dispatchResponse hands task to the scheduler from a fresh goroutine
// rather than the caller's own. A procedure.Client is free to invoke its
// ResponseCallback synchronously and inline from within CallProcedure
// (fakeprocedure.FakeClient does this by default) - and CallProcedure
// itself runs on the shard's own worker goroutine, submitted from
// drainTask. Scheduling straight from there would be the worker trying to
// send into its own bounded action channel with nobody left to drain it.
// Going through a throwaway goroutine breaks that cycle: the send can
// block as long as it needs to without blocking the worker that has to
// free up room for it.
func (s *PartitionShard) dispatchResponse(task func() error) {
	go s.scheduler.ScheduleActionFireAndForget(task)
}

func (s *PartitionShard) buildArgs(batch *Batch, routingValue interface{}, routingColType common.ColumnType) ([]interface{}, error) {
	snapshot := &Batch{Columns: batch.Columns, Rows: append([][]interface{}{}, batch.Rows...)}
	if s.mp {
		return []interface{}{s.table, upsertByte(s.upsert), snapshot}, nil
	}
	routingParam, err := common.EncodePartitionKeyValue(routingValue, routingColType)
	if err != nil {
		return nil, err
	}
	s.trackRoutingKeyCardinality(routingParam)
	return []interface{}{routingParam, s.table, upsertByte(s.upsert), snapshot}, nil
}

func (s *PartitionShard) trackRoutingKeyCardinality(routingParam []byte) {
	if _, ok := s.seenRoutingKeys.Get(routingParam); !ok {
		s.seenRoutingKeys.Put(routingParam, routingParam)
	}
	if !s.loggedHighCardinality && s.seenRoutingKeys.Len() > routingKeyCardinalityLogThreshold {
		s.loggedHighCardinality = true
		log.Warnf("ingest: shard %s[%d] has routed %d distinct partition-key values, check PartitionColumnType",
			s.table, s.partition, s.seenRoutingKeys.Len())
	}
}

// handleBatchResponse implements the Response callback of spec.md §4.2:
// success fans out per-row success callbacks and updates counters on the
// shard worker; any failure - including an async ConnectionLost - hands
// off to row-by-row resubmission (spec.md §4.3) rather than failing the
// whole batch.
func (s *PartitionShard) handleBatchResponse(rows []*Row, contributions map[*BulkLoader]int, batch *Batch,
	routingValue interface{}, routingColType common.ColumnType, resp *procedure.Response, cbErr error) {
	if cbErr != nil && resp == nil {
		resp = &procedure.Response{Status: procedure.StatusGracefulFailure, Message: cbErr.Error()}
	}

	if resp.Status == procedure.StatusSuccess {
		for _, r := range rows {
			r.loader.reportSuccess(r.Handle, resp)
		}
		for loader, n := range contributions {
			atomic.AddInt64(&loader.completed, int64(n))
			atomic.AddInt64(&loader.outstanding, -int64(n))
		}
		return
	}

	rejectErr := &errs.BatchRejectedError{BatchSize: len(rows), Message: resp.Message}
	log.Debugf("%s for table %s partition %d - retrying row by row", rejectErr, s.table, s.partition)
	for _, r := range rows {
		s.submitSingleRow(r)
	}
}

// failBatch is used only for the pre-submit paths that never reach the
// server at all (bad routing-param encoding, terminal connection loss) -
// it goes straight through the row-by-row path too, so a single bad row
// can never be blamed on its batch-mates (spec.md §4.3's guarantee).
func (s *PartitionShard) failBatch(rows []*Row, contributions map[*BulkLoader]int, resp *procedure.Response) {
	s.handleBatchResponse(rows, contributions, nil, nil, common.ColumnType{}, resp, nil)
}

// submitSingleRow implements spec.md §4.3: rebuild a fresh one-row batch
// and submit it with its own callback.
func (s *PartitionShard) submitSingleRow(r *Row) {
	coerced, err := coerceRow(r)
	if err != nil {
		atomic.AddInt64(&r.loader.outstanding, -1)
		atomic.AddInt64(&r.loader.failed, 1)
		r.loader.reportFailure(r.Handle, r.Values, &procedure.Response{Status: procedure.StatusUserError, Message: err.Error()})
		return
	}

	single := &Batch{Columns: r.loader.table.Columns, Rows: [][]interface{}{coerced}}
	var routingValue interface{}
	var routingColType common.ColumnType
	if !s.mp {
		routingValue = coerced[r.loader.table.PartitionColumnIdx]
		routingColType = r.loader.table.PartitionColumnType
	}

	args, err := s.buildArgs(single, routingValue, routingColType)
	if err != nil {
		atomic.AddInt64(&r.loader.outstanding, -1)
		atomic.AddInt64(&r.loader.failed, 1)
		r.loader.reportFailure(r.Handle, r.Values, &procedure.Response{Status: procedure.StatusUserError, Message: err.Error()})
		return
	}

	cb := func(resp *procedure.Response, cbErr error) {
		s.dispatchResponse(func() error {
			s.handleSingleRowResponse(r, resp, cbErr)
			return nil
		})
	}

	gen := atomic.LoadInt64(s.reconnectGen)
	callErr := s.client.CallProcedure(context.Background(), cb, s.procName, args...)
	if callErr != nil {
		if s.autoReconnect {
			s.parkUntilReconnected(gen, func() { s.submitSingleRow(r) })
			return
		}
		connErr := &errs.ConnectionLostError{Terminal: true, Cause: callErr}
		s.handleSingleRowResponse(r, &procedure.Response{Status: procedure.StatusConnectionLost, Message: connErr.Error()}, nil)
	}
}

// handleSingleRowResponse implements spec.md §4.3's per-row resolution:
// ConnectionLost with auto-reconnect re-queues the row in isolation
// forever (it never rejoins the main queue); anything else is terminal.
func (s *PartitionShard) handleSingleRowResponse(r *Row, resp *procedure.Response, cbErr error) {
	if cbErr != nil && resp == nil {
		resp = &procedure.Response{Status: procedure.StatusGracefulFailure, Message: cbErr.Error()}
	}

	if resp.Status == procedure.StatusConnectionLost && s.autoReconnect {
		s.dispatchResponse(func() error {
			s.submitSingleRow(r)
			return nil
		})
		return
	}

	if resp.Status == procedure.StatusSuccess {
		r.loader.reportSuccess(r.Handle, resp)
		atomic.AddInt64(&r.loader.completed, 1)
		atomic.AddInt64(&r.loader.outstanding, -1)
		return
	}

	r.loader.reportFailure(r.Handle, r.Values, resp)
	atomic.AddInt64(&r.loader.failed, 1)
	atomic.AddInt64(&r.loader.outstanding, -1)
}
