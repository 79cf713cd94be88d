package common

import "fmt"

// Type identifies the canonical column type of a loader's target table.
// The enumeration mirrors the set the teacher's client package already
// switches on when rendering query results.
type Type int

const (
	TypeUnknown Type = iota
	TypeTinyInt
	TypeInt
	TypeBigInt
	TypeDouble
	TypeDecimal
	TypeVarchar
	TypeTimestamp
)

func (t Type) String() string {
	switch t {
	case TypeTinyInt:
		return "TINYINT"
	case TypeInt:
		return "INT"
	case TypeBigInt:
		return "BIGINT"
	case TypeDouble:
		return "DOUBLE"
	case TypeDecimal:
		return "DECIMAL"
	case TypeVarchar:
		return "VARCHAR"
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "UNKNOWN"
	}
}

// ColumnType describes a single column's declared type, including the
// decimal precision/scale when Type is TypeDecimal.
type ColumnType struct {
	Type         Type
	DecPrecision int
	DecScale     int
}

func (c ColumnType) String() string {
	if c.Type == TypeDecimal {
		return fmt.Sprintf("DECIMAL(%d,%d)", c.DecPrecision, c.DecScale)
	}
	return c.Type.String()
}

// ColumnDescriptor names and types one column of a loader's target table.
type ColumnDescriptor struct {
	Name string
	Type ColumnType
}

// TableInfo is the subset of loader catalog information the ingest core
// actually needs: column shape and, for partitioned tables, which column
// and type the cluster partitions on. Column-name/type catalog lookups
// beyond this are the loader catalog schema's job, not the ingest core's -
// see spec.md §1.
type TableInfo struct {
	Name                string
	Columns             []ColumnDescriptor
	MultiPartition      bool
	PartitionColumnIdx  int
	PartitionColumnType ColumnType
}
