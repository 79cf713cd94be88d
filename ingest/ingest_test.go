package ingest_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rohithreddy/voltdb/common"
	"github.com/rohithreddy/voltdb/ingest"
	"github.com/rohithreddy/voltdb/procedure"
	"github.com/rohithreddy/voltdb/procedure/fakeprocedure"
	"github.com/stretchr/testify/require"
)

func ordersTable() *common.TableInfo {
	return &common.TableInfo{
		Name: "orders",
		Columns: []common.ColumnDescriptor{
			{Name: "id", Type: common.ColumnType{Type: common.TypeBigInt}},
			{Name: "name", Type: common.ColumnType{Type: common.TypeVarchar}},
		},
		MultiPartition:      false,
		PartitionColumnIdx:  0,
		PartitionColumnType: common.ColumnType{Type: common.TypeBigInt},
	}
}

func mpTable() *common.TableInfo {
	return &common.TableInfo{
		Name: "audit_log",
		Columns: []common.ColumnDescriptor{
			{Name: "event", Type: common.ColumnType{Type: common.TypeVarchar}},
		},
		MultiPartition: true,
	}
}

type collector struct {
	mu        sync.Mutex
	successes []interface{}
	failures  []interface{}
}

func (c *collector) onSuccess(handle interface{}, resp *procedure.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successes = append(c.successes, handle)
}

func (c *collector) onFailure(handle interface{}, values []interface{}, resp *procedure.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, handle)
}

func (c *collector) snapshot() (succ, fail []interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]interface{}{}, c.successes...), append([]interface{}{}, c.failures...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition never became true")
}

func TestHappyPathMultiPartition(t *testing.T) {
	client := fakeprocedure.NewFakeClient()
	resolver := ingest.NewStaticPartitionResolver(nil)
	mgr := ingest.NewIngestManager(client, resolver, false, nil)
	c := &collector{}

	loader, err := ingest.NewBulkLoader(mgr, mpTable(), nil, false, 10, c.onSuccess, c.onFailure)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, loader.Insert(i, []interface{}{fmt.Sprintf("evt-%d", i)}))
	}
	require.NoError(t, loader.Drain())

	succ, fail := c.snapshot()
	require.Len(t, succ, 5)
	require.Empty(t, fail)
	require.EqualValues(t, 5, loader.Completed())
	require.EqualValues(t, 0, loader.Outstanding())
	require.NoError(t, loader.Close())
}

func TestSubTriggerFlushSubmitsExactlyOneBatch(t *testing.T) {
	client := fakeprocedure.NewFakeClient()
	resolver := ingest.NewStaticPartitionResolver(map[string]int{"orders": 1})
	mgr := ingest.NewIngestManager(client, resolver, false, nil)
	c := &collector{}

	loader, err := ingest.NewBulkLoader(mgr, ordersTable(), nil, false, 10, c.onSuccess, c.onFailure)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, loader.Insert(int64(i), []interface{}{int64(i), "row"}))
	}
	require.NoError(t, loader.Flush())
	require.NoError(t, loader.Drain())

	calls := client.Calls()
	require.Len(t, calls, 1)
	batch, ok := calls[0].Args[3].(*ingest.Batch)
	require.True(t, ok)
	require.Len(t, batch.Rows, 3)
	require.NoError(t, loader.Close())
}

func TestOneBadRowDoesNotFailItsBatchmates(t *testing.T) {
	client := fakeprocedure.NewFakeClient()
	resolver := ingest.NewStaticPartitionResolver(map[string]int{"orders": 1})
	mgr := ingest.NewIngestManager(client, resolver, false, nil)
	c := &collector{}

	loader, err := ingest.NewBulkLoader(mgr, ordersTable(), nil, false, 3, c.onSuccess, c.onFailure)
	require.NoError(t, err)

	require.NoError(t, loader.Insert(1, []interface{}{int64(1), "a"}))
	require.NoError(t, loader.Insert(2, []interface{}{"not-a-number", "b"}))
	require.NoError(t, loader.Insert(3, []interface{}{int64(3), "c"}))
	require.NoError(t, loader.Drain())

	succ, fail := c.snapshot()
	require.ElementsMatch(t, []interface{}{1, 3}, succ)
	require.ElementsMatch(t, []interface{}{2}, fail)
	require.NoError(t, loader.Close())
}

func TestRejectedBatchRetriesRowByRow(t *testing.T) {
	client := fakeprocedure.NewFakeClient()
	resolver := ingest.NewStaticPartitionResolver(map[string]int{"orders": 1})
	mgr := ingest.NewIngestManager(client, resolver, false, nil)
	c := &collector{}

	var batchAttempts int32
	client.SetResponder(func(procName string, args []interface{}) (*procedure.Response, error) {
		batch := args[3].(*ingest.Batch)
		if len(batch.Rows) > 1 {
			atomic.AddInt32(&batchAttempts, 1)
			return &procedure.Response{Status: procedure.StatusUserError, Message: "batch rejected"}, nil
		}
		return &procedure.Response{Status: procedure.StatusSuccess}, nil
	})

	loader, err := ingest.NewBulkLoader(mgr, ordersTable(), nil, false, 2, c.onSuccess, c.onFailure)
	require.NoError(t, err)

	require.NoError(t, loader.Insert(1, []interface{}{int64(1), "a"}))
	require.NoError(t, loader.Insert(2, []interface{}{int64(2), "b"}))
	require.NoError(t, loader.Drain())

	succ, fail := c.snapshot()
	require.ElementsMatch(t, []interface{}{1, 2}, succ)
	require.Empty(t, fail)
	require.EqualValues(t, 1, atomic.LoadInt32(&batchAttempts))
	require.NoError(t, loader.Close())
}

func TestConnectionLostParksAndRetriesAfterReconnect(t *testing.T) {
	client := fakeprocedure.NewFakeClient()
	resolver := ingest.NewStaticPartitionResolver(map[string]int{"orders": 1})
	mgr := ingest.NewIngestManager(client, resolver, true, nil)
	c := &collector{}

	var failOnce int32
	client.SetResponder(func(procName string, args []interface{}) (*procedure.Response, error) {
		if atomic.CompareAndSwapInt32(&failOnce, 0, 1) {
			return nil, fmt.Errorf("connection refused")
		}
		return &procedure.Response{Status: procedure.StatusSuccess}, nil
	})

	loader, err := ingest.NewBulkLoader(mgr, ordersTable(), nil, false, 1, c.onSuccess, c.onFailure)
	require.NoError(t, err)

	require.NoError(t, loader.Insert(1, []interface{}{int64(1), "a"}))

	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&failOnce) == 1 })
	mgr.NotifyReconnected()

	require.NoError(t, loader.Drain())
	succ, fail := c.snapshot()
	require.ElementsMatch(t, []interface{}{1}, succ)
	require.Empty(t, fail)
	require.NoError(t, loader.Close())
}

// TestManyBatchesPerDrainDoNotDeadlockTheWorker exercises a drain that must
// submit far more batches back-to-back than the scheduler's action buffer
// holds, with the default FakeClient whose responses fire synchronously and
// inline from CallProcedure - exactly the situation that used to make the
// shard's own worker goroutine block forever trying to re-enter its own
// bounded action channel.
func TestManyBatchesPerDrainDoNotDeadlockTheWorker(t *testing.T) {
	client := fakeprocedure.NewFakeClient()
	resolver := ingest.NewStaticPartitionResolver(map[string]int{"orders": 1})
	mgr := ingest.NewIngestManager(client, resolver, false, nil)
	c := &collector{}

	loader, err := ingest.NewBulkLoader(mgr, ordersTable(), nil, false, 1, c.onSuccess, c.onFailure)
	require.NoError(t, err)

	const rowCount = 50
	done := make(chan error, 1)
	go func() {
		for i := 0; i < rowCount; i++ {
			if err := loader.Insert(i, []interface{}{int64(i), "row"}); err != nil {
				done <- err
				return
			}
		}
		done <- loader.Drain()
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("insert/drain deadlocked instead of submitting every batch")
	}

	succ, fail := c.snapshot()
	require.Len(t, succ, rowCount)
	require.Empty(t, fail)
	require.NoError(t, loader.Close())
}

func TestTwoLoadersShareShardsOnSameTable(t *testing.T) {
	client := fakeprocedure.NewFakeClient()
	resolver := ingest.NewStaticPartitionResolver(map[string]int{"orders": 1})
	mgr := ingest.NewIngestManager(client, resolver, false, nil)
	c1 := &collector{}
	c2 := &collector{}

	loader1, err := ingest.NewBulkLoader(mgr, ordersTable(), nil, false, 100, c1.onSuccess, c1.onFailure)
	require.NoError(t, err)
	loader2, err := ingest.NewBulkLoader(mgr, ordersTable(), nil, false, 2, c2.onSuccess, c2.onFailure)
	require.NoError(t, err)

	require.NoError(t, loader1.Insert(1, []interface{}{int64(1), "a"}))
	require.NoError(t, loader2.Insert(2, []interface{}{int64(2), "b"}))
	require.NoError(t, loader2.Insert(3, []interface{}{int64(3), "c"}))

	require.NoError(t, loader1.Drain())
	require.NoError(t, loader2.Drain())

	succ1, _ := c1.snapshot()
	succ2, _ := c2.snapshot()
	require.ElementsMatch(t, []interface{}{1}, succ1)
	require.ElementsMatch(t, []interface{}{2, 3}, succ2)

	require.NoError(t, loader1.Close())
	require.NoError(t, loader2.Close())
}
