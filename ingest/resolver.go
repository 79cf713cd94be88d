package ingest

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// PartitionResolver is the "logical-to-physical partition mapping
// service" spec.md §6 calls out as external to the ingest core. Given a
// table and the serialized bytes of a row's partition-key value, it
// returns which partition id owns that row.
type PartitionResolver interface {
	// NumPartitions returns how many partitions table is split across.
	NumPartitions(table string) (int, error)
	// Partition hashes keyBytes to a partition id in [0, NumPartitions(table)).
	Partition(table string, keyBytes []byte) (int, error)
}

// StaticPartitionResolver is a fixed-partition-count resolver: each
// table's partition count is configured up front and never changes,
// matching how the rest of this module treats partition counts as
// established at table-creation time rather than something that
// reshards live. Hashing uses FNV-1a from the standard library - there's
// no third-party hash in the example corpus that does anything this
// function doesn't, so staying on the standard library here is the one
// deliberate exception (see DESIGN.md).
type StaticPartitionResolver struct {
	mu     sync.RWMutex
	counts map[string]int
}

func NewStaticPartitionResolver(partitionCounts map[string]int) *StaticPartitionResolver {
	counts := make(map[string]int, len(partitionCounts))
	for k, v := range partitionCounts {
		counts[k] = v
	}
	return &StaticPartitionResolver{counts: counts}
}

func (r *StaticPartitionResolver) SetPartitionCount(table string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[table] = n
}

func (r *StaticPartitionResolver) NumPartitions(table string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.counts[table]
	if !ok {
		return 0, fmt.Errorf("no partition count configured for table %s", table)
	}
	return n, nil
}

func (r *StaticPartitionResolver) Partition(table string, keyBytes []byte) (int, error) {
	n, err := r.NumPartitions(table)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("table %s has no partitions configured", table)
	}
	h := fnv.New32a()
	_, _ = h.Write(keyBytes)
	return int(h.Sum32() % uint32(n)), nil
}
