package ingest

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rohithreddy/voltdb/common"
	"github.com/rohithreddy/voltdb/procedure"
	log "github.com/sirupsen/logrus"
)

// defaultQueueTrigger is used when a caller opens a loader without an
// opinion on trigger size.
const defaultQueueTrigger = 200

// tableShards is the registry entry for one table: its shards, the set of
// loaders currently sharing them, and the catalog/partitioning info every
// loader on the table must agree on (spec.md §4.6).
type tableShards struct {
	table  *common.TableInfo
	shards []*PartitionShard
	loaders map[*BulkLoader]struct{}
}

// IngestManager is the process-wide registry spec.md §4.6 implies but
// never names directly: it is what makes "two loaders open on the same
// table share one set of shards" possible. One IngestManager is normally
// created per process and handed a single procedure.Client and
// PartitionResolver for the whole cluster connection.
type IngestManager struct {
	client   procedure.Client
	resolver PartitionResolver
	router   *PartitionRouter

	procNameFor func(table string, upsert bool) string
	autoReconnect bool

	// reconnectGen is bumped on every NotifyReconnected call and shared by
	// pointer with every shard this manager creates, so a shard parked on
	// connection loss can tell whether a reconnect already happened
	// without racing a plain boolean flag (see PartitionShard.parkUntilReconnected).
	reconnectGen int64

	mu     sync.Mutex
	tables map[string]*tableShards
}

// NewIngestManager constructs a manager bound to one procedure.Client and
// PartitionResolver. procNameFor maps a (table, upsert) pair to the
// stored-procedure name to invoke for it, mirroring how VoltDB's generated
// CRUD procedures are named per table (spec.md §6).
func NewIngestManager(client procedure.Client, resolver PartitionResolver, autoReconnect bool,
	procNameFor func(table string, upsert bool) string) *IngestManager {
	if procNameFor == nil {
		procNameFor = func(table string, upsert bool) string {
			if upsert {
				return table + ".upsert"
			}
			return table + ".insert"
		}
	}
	return &IngestManager{
		client:        client,
		resolver:      resolver,
		router:        NewPartitionRouter(resolver),
		procNameFor:   procNameFor,
		autoReconnect: autoReconnect,
		tables:        make(map[string]*tableShards),
	}
}

// NotifyReconnected wakes every parked shard across every table - called
// once by the owner of the procedure.Client connection after it
// re-establishes (spec.md §4.4).
func (m *IngestManager) NotifyReconnected() {
	atomic.AddInt64(&m.reconnectGen, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ts := range m.tables {
		for _, sh := range ts.shards {
			sh.NotifyReconnected()
		}
	}
}

func (m *IngestManager) shardsFor(table string) []*PartitionShard {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.tables[table]
	if !ok {
		return nil
	}
	return ts.shards
}

// acquireShards registers loader against table's shard set, creating the
// shards on first use and shrinking their trigger size to accommodate
// maxQueueTrigger if it is smaller than what's already configured
// (spec.md §4.2, §4.6).
func (m *IngestManager) acquireShards(loader *BulkLoader, upsert bool, maxQueueTrigger int) error {
	if maxQueueTrigger <= 0 {
		maxQueueTrigger = defaultQueueTrigger
	}
	table := loader.table

	m.mu.Lock()
	defer m.mu.Unlock()

	ts, ok := m.tables[table.Name]
	if !ok {
		shards, err := m.buildShards(table, upsert, maxQueueTrigger)
		if err != nil {
			return err
		}
		ts = &tableShards{table: table, shards: shards, loaders: make(map[*BulkLoader]struct{})}
		m.tables[table.Name] = ts
		log.Infof("ingest: opened %d shard(s) for table %s (trigger=%d)", len(shards), table.Name, maxQueueTrigger)
	} else {
		for _, sh := range ts.shards {
			sh.UpdateTriggerSize(maxQueueTrigger)
		}
		log.Debugf("ingest: loader joining %d existing shard(s) for table %s", len(ts.shards), table.Name)
	}
	ts.loaders[loader] = struct{}{}
	return nil
}

func (m *IngestManager) buildShards(table *common.TableInfo, upsert bool, trigger int) ([]*PartitionShard, error) {
	procName := m.procNameFor(table.Name, upsert)

	if table.MultiPartition {
		sh := newPartitionShard(table.Name, table.Columns, 0, true, procName, upsert, m.autoReconnect, trigger, m.client, &m.reconnectGen)
		return []*PartitionShard{sh}, nil
	}

	n, err := m.resolver.NumPartitions(table.Name)
	if err != nil {
		return nil, fmt.Errorf("cannot open loader for table %s: %w", table.Name, err)
	}
	if n <= 0 {
		return nil, fmt.Errorf("table %s reports %d partitions", table.Name, n)
	}
	shards := make([]*PartitionShard, n)
	for i := 0; i < n; i++ {
		shards[i] = newPartitionShard(table.Name, table.Columns, i, false, procName, upsert, m.autoReconnect, trigger, m.client, &m.reconnectGen)
	}
	return shards, nil
}

// releaseShards drops loader's membership and, once it was the last
// loader sharing table, shuts every one of that table's shards down
// (spec.md §4.6).
func (m *IngestManager) releaseShards(loader *BulkLoader) {
	table := loader.table

	m.mu.Lock()
	ts, ok := m.tables[table.Name]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(ts.loaders, loader)
	last := len(ts.loaders) == 0
	if last {
		delete(m.tables, table.Name)
	}
	m.mu.Unlock()

	if last {
		for _, sh := range ts.shards {
			sh.Shutdown()
		}
		log.Infof("ingest: closed last loader for table %s, shards shut down", table.Name)
	}
}
