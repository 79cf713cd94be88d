package common

import (
	"encoding/binary"
	"fmt"
	"time"
)

// EncodePartitionKeyValue serializes a row's partition-key value to bytes
// using the cluster's standard value-to-bytes rule for that type, as
// required by spec.md §4.1 and the SP stored-procedure invocation shape in
// spec.md §6. This is the routingParam the shard sends alongside the batch.
func EncodePartitionKeyValue(value interface{}, colType ColumnType) ([]byte, error) {
	switch colType.Type {
	case TypeTinyInt, TypeInt, TypeBigInt:
		i, ok := asInt64(value)
		if !ok {
			return nil, fmt.Errorf("cannot encode partition key value %v as %s", value, colType)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(i))
		return buf, nil
	case TypeVarchar:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("cannot encode partition key value %v as %s", value, colType)
		}
		return []byte(s), nil
	case TypeTimestamp:
		t, ok := value.(time.Time)
		if !ok {
			return nil, fmt.Errorf("cannot encode partition key value %v as %s", value, colType)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(t.UnixNano()))
		return buf, nil
	default:
		return nil, fmt.Errorf("unsupported partition key column type %s", colType)
	}
}

func asInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	default:
		return 0, false
	}
}
