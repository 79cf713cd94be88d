// Package fakeprocedure provides an in-memory, scriptable procedure.Client
// for tests, grounded on the teacher's kafka.FakeKafka pattern: a single
// mutex-guarded fake that test code configures with canned responses and
// failure injection hooks rather than standing up a real server.
package fakeprocedure

import (
	"context"
	"sync"

	"github.com/rohithreddy/voltdb/procedure"
)

// Call records one invocation the fake received, for assertions.
type Call struct {
	ProcName string
	Args     []interface{}
}

// Responder decides how the fake answers one CallProcedure invocation. It
// returns either a synchronous error (as if the transport rejected the
// call outright) or a Response to deliver to the callback (inline by
// default, from a separate goroutine after SetAsync(true)).
type Responder func(procName string, args []interface{}) (resp *procedure.Response, syncErr error)

// FakeClient is a procedure.Client whose behavior per call is entirely
// test-controlled. By default every call succeeds immediately.
type FakeClient struct {
	mu        sync.Mutex
	responder Responder
	calls     []Call
	async     bool
}

// NewFakeClient returns a fake that answers every call with
// StatusSuccess. Use SetResponder to script different behavior.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		responder: func(string, []interface{}) (*procedure.Response, error) {
			return &procedure.Response{Status: procedure.StatusSuccess}, nil
		},
	}
}

// SetResponder replaces the scripted behavior for all subsequent calls.
func (f *FakeClient) SetResponder(r Responder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responder = r
}

// SetAsync controls whether callbacks fire synchronously (false, the
// default - convenient for deterministic tests) or from a separate
// goroutine (true - exercises the real concurrency boundary).
func (f *FakeClient) SetAsync(async bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.async = async
}

// Calls returns a snapshot of every invocation received so far.
func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *FakeClient) CallProcedure(_ context.Context, cb procedure.ResponseCallback, procName string, args ...interface{}) error {
	f.mu.Lock()
	f.calls = append(f.calls, Call{ProcName: procName, Args: args})
	responder := f.responder
	async := f.async
	f.mu.Unlock()

	resp, syncErr := responder(procName, args)
	if syncErr != nil {
		return syncErr
	}

	if async {
		go cb(resp, nil)
	} else {
		cb(resp, nil)
	}
	return nil
}
