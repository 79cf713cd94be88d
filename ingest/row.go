package ingest

import "github.com/rohithreddy/voltdb/common"

// Row is an immutable record carrying an opaque caller-supplied handle,
// the raw untyped column values and a reference to the owning BulkLoader
// (spec.md §2, §3). Exactly one terminal callback - success or failure -
// eventually fires for a Row, and it is discarded afterwards.
type Row struct {
	Handle interface{}
	Values []interface{}
	loader *BulkLoader
}

// Batch is the ephemeral, ordered table of coerced row values submitted in
// a single stored-procedure invocation (spec.md §3, §6). Columns mirrors
// the loader's column descriptors; Rows holds one coerced value slice per
// row, in submission order.
type Batch struct {
	Columns []common.ColumnDescriptor
	Rows    [][]interface{}
}
