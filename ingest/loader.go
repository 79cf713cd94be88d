package ingest

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rohithreddy/voltdb/common"
	"github.com/rohithreddy/voltdb/errs"
	"github.com/rohithreddy/voltdb/procedure"
	log "github.com/sirupsen/logrus"
)

// FailureCallback is invoked once per row that will never succeed: a value
// that fails coercion, an invalid partition key, a row the server rejects
// when resubmitted alone after its batch was rejected, a terminal
// connection loss or a shard shutdown (spec.md §4.3, §7). handle and values are exactly what
// the caller passed to Insert.
type FailureCallback func(handle interface{}, values []interface{}, resp *procedure.Response)

// SuccessCallback is invoked once per row that was acknowledged by the
// database (spec.md §4.2).
type SuccessCallback func(handle interface{}, resp *procedure.Response)

// BulkLoader is the caller-facing handle of spec.md §2: it owns a table's
// column layout, a coercer, a set of shards shared with any other loader
// open on the same table (spec.md §4.6), and the outstanding/completed/
// failed counters callers poll to know when it's safe to close.
type BulkLoader struct {
	table   *common.TableInfo
	coercer common.ValueCoercer
	router  *PartitionRouter
	manager *IngestManager

	onSuccess SuccessCallback
	onFailure FailureCallback

	outstanding int64
	completed   int64
	failed      int64

	closeOnce sync.Once
	closed    common.AtomicBool
}

// NewBulkLoader acquires (creating if necessary) the shards for table from
// manager and returns a loader ready to accept rows. maxQueueTrigger is
// this loader's requested trigger size; spec.md §4.2 has the existing
// shards' trigger sizes only ever shrink to accommodate a second loader
// with a smaller request.
func NewBulkLoader(manager *IngestManager, table *common.TableInfo, coercer common.ValueCoercer, upsert bool,
	maxQueueTrigger int, onSuccess SuccessCallback, onFailure FailureCallback) (*BulkLoader, error) {
	if coercer == nil {
		coercer = common.DefaultCoercer{}
	}
	loader := &BulkLoader{
		table:     table,
		coercer:   coercer,
		manager:   manager,
		onSuccess: onSuccess,
		onFailure: onFailure,
	}
	loader.router = manager.router
	if err := manager.acquireShards(loader, upsert, maxQueueTrigger); err != nil {
		return nil, err
	}
	return loader, nil
}

// Insert enqueues one row for eventual submission (spec.md §4.1). It
// blocks only as long as the target shard's bounded queue is full.
func (b *BulkLoader) Insert(handle interface{}, values []interface{}) error {
	if b.closed.Get() {
		return errs.ErrLoaderClosed
	}
	if len(values) != len(b.table.Columns) {
		return &errs.ParameterTypeError{Handle: handle, Cause: errs.WithStack(
			fmt.Errorf("row has %d values, table %s has %d columns", len(values), b.table.Name, len(b.table.Columns)))}
	}

	row := &Row{Handle: handle, Values: values, loader: b}
	shards := b.manager.shardsFor(b.table.Name)
	shard, err := b.router.Route(b, row, shards)
	if err != nil {
		atomic.AddInt64(&b.failed, 1)
		b.reportFailure(handle, values, &procedure.Response{Status: procedure.StatusUserError, Message: err.Error()})
		return nil
	}

	atomic.AddInt64(&b.outstanding, 1)
	if err := shard.Enqueue(row); err != nil {
		atomic.AddInt64(&b.outstanding, -1)
		atomic.AddInt64(&b.failed, 1)
		b.reportFailure(handle, values, &procedure.Response{Status: procedure.StatusGracefulFailure, Message: err.Error()})
		return nil
	}
	return nil
}

// Flush drains every shard this loader uses and blocks until each drain
// has run at least once (spec.md §4.5). It does not wait for in-flight
// responses; poll Outstanding for that.
func (b *BulkLoader) Flush() error {
	shards := b.manager.shardsFor(b.table.Name)
	var firstErr error
	for _, sh := range shards {
		if err := <-sh.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Drain flushes and then blocks until every row this loader has ever
// inserted has reached a terminal callback (spec.md §4.5).
func (b *BulkLoader) Drain() error {
	if err := b.Flush(); err != nil {
		return err
	}
	for atomic.LoadInt64(&b.outstanding) > 0 {
		log.Tracef("loader for table %s waiting on %d outstanding rows", b.table.Name, atomic.LoadInt64(&b.outstanding))
		// The worker goroutines making progress toward zero run on the
		// shards' own schedulers; this loader just needs to yield until
		// they do.
		runtime.Gosched()
	}
	return nil
}

// Close drains the loader and releases its share of the underlying
// shards; once every loader sharing a table has closed, the shards
// themselves shut down (spec.md §4.6). Idempotent.
func (b *BulkLoader) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closed.Set(true)
		err = b.Drain()
		b.manager.releaseShards(b)
	})
	return err
}

func (b *BulkLoader) Outstanding() int64 { return atomic.LoadInt64(&b.outstanding) }
func (b *BulkLoader) Completed() int64   { return atomic.LoadInt64(&b.completed) }
func (b *BulkLoader) Failed() int64      { return atomic.LoadInt64(&b.failed) }

func (b *BulkLoader) reportSuccess(handle interface{}, resp *procedure.Response) {
	if b.onSuccess != nil {
		b.onSuccess(handle, resp)
	}
}

func (b *BulkLoader) reportFailure(handle interface{}, values []interface{}, resp *procedure.Response) {
	if b.onFailure != nil {
		b.onFailure(handle, values, resp)
	}
}
