// Package errs provides the ingest core's error taxonomy (spec.md §7),
// mirroring the shape of the teacher's errors package: typed errors that
// carry enough context to report to a caller's failure callback, wrapped
// with stack traces via github.com/pingcap/errors the same way the
// teacher wraps internal errors before logging them.
package errs

import (
	"fmt"

	pingerrors "github.com/pingcap/errors"
)

// WithStack annotates err with a stack trace if it doesn't already carry
// one. Used at every point the ingest core hands an error up to a caller
// that might log it.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return pingerrors.WithStack(err)
}

// IngestError is satisfied by every typed error this package exports, so
// callers can distinguish "this row failed for a reason the loader
// understands" from an unexpected internal error.
type IngestError interface {
	error
	IngestErrorKind() Kind
}

// Kind enumerates the error taxonomy of spec.md §7.
type Kind int

const (
	KindParameterType Kind = iota
	KindBatchRejected
	KindConnectionLost
	KindShardShutdown
	KindInvalidPartitionKey
)

func (k Kind) String() string {
	switch k {
	case KindParameterType:
		return "ParameterTypeError"
	case KindBatchRejected:
		return "BatchRejected"
	case KindConnectionLost:
		return "ConnectionLost"
	case KindShardShutdown:
		return "ShardShutdown"
	case KindInvalidPartitionKey:
		return "InvalidPartitionKey"
	default:
		return "Unknown"
	}
}

// ParameterTypeError reports a row value that could not coerce to its
// declared column type (spec.md §4.2 step 2, §7).
type ParameterTypeError struct {
	Handle interface{}
	Cause  error
}

func (e *ParameterTypeError) Error() string {
	return fmt.Sprintf("parameter type error for row %v: %v", e.Handle, e.Cause)
}
func (e *ParameterTypeError) Unwrap() error         { return e.Cause }
func (e *ParameterTypeError) IngestErrorKind() Kind { return KindParameterType }

// BatchRejectedError reports that a stored procedure returned a
// non-success status for a whole batch (spec.md §4.2 step 5, §7).
type BatchRejectedError struct {
	BatchSize int
	Message   string
}

func (e *BatchRejectedError) Error() string {
	return fmt.Sprintf("batch of %d rows rejected: %s", e.BatchSize, e.Message)
}
func (e *BatchRejectedError) IngestErrorKind() Kind { return KindBatchRejected }

// ConnectionLostError reports that the database client lost its
// connection, either transiently (auto-reconnect on, spec.md §4.4) or
// terminally (auto-reconnect off).
type ConnectionLostError struct {
	Terminal bool
	Cause    error
}

func (e *ConnectionLostError) Error() string {
	if e.Terminal {
		return fmt.Sprintf("connection lost (terminal): %v", e.Cause)
	}
	return fmt.Sprintf("connection lost (will retry after reconnect): %v", e.Cause)
}
func (e *ConnectionLostError) Unwrap() error         { return e.Cause }
func (e *ConnectionLostError) IngestErrorKind() Kind { return KindConnectionLost }

// ShardShutdownError reports that a shard was torn down with rows still
// queued (spec.md §7, §9 open question - we choose to fail these rows
// rather than silently drop them).
type ShardShutdownError struct {
	Table     string
	Partition int
}

func (e *ShardShutdownError) Error() string {
	return fmt.Sprintf("shard for table %s partition %d shut down with rows still queued", e.Table, e.Partition)
}
func (e *ShardShutdownError) IngestErrorKind() Kind { return KindShardShutdown }

// InvalidPartitionKeyError reports that a row's partition-key value could
// not be coerced/hashed before it was ever enqueued (spec.md §4.1, §7).
type InvalidPartitionKeyError struct {
	Handle interface{}
	Cause  error
}

func (e *InvalidPartitionKeyError) Error() string {
	return fmt.Sprintf("invalid partition key for row %v: %v", e.Handle, e.Cause)
}
func (e *InvalidPartitionKeyError) Unwrap() error         { return e.Cause }
func (e *InvalidPartitionKeyError) IngestErrorKind() Kind { return KindInvalidPartitionKey }

// ErrLoaderClosed is returned synchronously from BulkLoader.Insert once
// close() has begun, resolving the first open question of spec.md §9.
var ErrLoaderClosed = pingerrors.New("bulk loader is closed")

// Cause follows err's Cause() chain (as added by pingcap-style wrapping) and
// returns the innermost error it reaches, whatever its type, mirroring the
// teacher's own findCause helper. It does not follow Unwrap.
func Cause(err error) error {
	type causer interface{ Cause() error }
	for err != nil {
		c, ok := err.(causer)
		if !ok {
			return err
		}
		next := c.Cause()
		if next == nil {
			return err
		}
		err = next
	}
	return err
}
