package ingest

import (
	"fmt"

	"github.com/rohithreddy/voltdb/common"
	"github.com/rohithreddy/voltdb/errs"
)

// PartitionRouter resolves a row to its target shard (spec.md §4.1). For
// multi-partition tables the answer is always the single shared MP shard;
// for partitioned tables it coerces the row's partition-key value,
// serializes it to bytes with the cluster's standard rule, and asks the
// PartitionResolver which partition owns it.
type PartitionRouter struct {
	resolver PartitionResolver
}

func NewPartitionRouter(resolver PartitionResolver) *PartitionRouter {
	return &PartitionRouter{resolver: resolver}
}

// Route returns the shard row should enqueue into. On failure the row was
// never enqueued and must not be counted outstanding - the caller
// (BulkLoader.Insert) reports it to the failure callback directly.
func (p *PartitionRouter) Route(loader *BulkLoader, row *Row, shards []*PartitionShard) (*PartitionShard, error) {
	table := loader.table
	if table.MultiPartition {
		if len(shards) != 1 {
			return nil, &errs.InvalidPartitionKeyError{Handle: row.Handle, Cause: fmt.Errorf("multi-partition table %s does not have exactly one shard", table.Name)}
		}
		return shards[0], nil
	}

	if table.PartitionColumnIdx < 0 || table.PartitionColumnIdx >= len(row.Values) {
		return nil, &errs.InvalidPartitionKeyError{Handle: row.Handle, Cause: fmt.Errorf("partition column index %d out of range for row with %d values", table.PartitionColumnIdx, len(row.Values))}
	}

	rawKey := row.Values[table.PartitionColumnIdx]
	coerced, err := loader.coercer.Coerce(rawKey, table.PartitionColumnType)
	if err != nil {
		return nil, &errs.InvalidPartitionKeyError{Handle: row.Handle, Cause: err}
	}

	keyBytes, err := common.EncodePartitionKeyValue(coerced, table.PartitionColumnType)
	if err != nil {
		return nil, &errs.InvalidPartitionKeyError{Handle: row.Handle, Cause: err}
	}

	partitionID, err := p.resolver.Partition(table.Name, keyBytes)
	if err != nil {
		return nil, &errs.InvalidPartitionKeyError{Handle: row.Handle, Cause: err}
	}

	for _, sh := range shards {
		if sh.partition == partitionID && !sh.mp {
			return sh, nil
		}
	}
	return nil, &errs.InvalidPartitionKeyError{Handle: row.Handle, Cause: fmt.Errorf("no shard owns partition %d of table %s", partitionID, table.Name)}
}
