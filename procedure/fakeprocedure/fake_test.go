package fakeprocedure

import (
	"context"
	"errors"
	"testing"

	"github.com/rohithreddy/voltdb/procedure"
	"github.com/stretchr/testify/require"
)

func TestFakeClientDefaultsToSuccess(t *testing.T) {
	fc := NewFakeClient()
	var got *procedure.Response
	err := fc.CallProcedure(context.Background(), func(resp *procedure.Response, cbErr error) {
		got = resp
		require.NoError(t, cbErr)
	}, "T.insert", 1, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, procedure.StatusSuccess, got.Status)
	require.Len(t, fc.Calls(), 1)
	require.Equal(t, "T.insert", fc.Calls()[0].ProcName)
}

func TestFakeClientScriptedFailure(t *testing.T) {
	fc := NewFakeClient()
	fc.SetResponder(func(procName string, args []interface{}) (*procedure.Response, error) {
		return &procedure.Response{Status: procedure.StatusUserError, Message: "constraint violation"}, nil
	})
	var got *procedure.Response
	err := fc.CallProcedure(context.Background(), func(resp *procedure.Response, cbErr error) {
		got = resp
	}, "T.insert", 1)
	require.NoError(t, err)
	require.Equal(t, procedure.StatusUserError, got.Status)
}

func TestFakeClientSyncTransportError(t *testing.T) {
	fc := NewFakeClient()
	fc.SetResponder(func(procName string, args []interface{}) (*procedure.Response, error) {
		return nil, errors.New("connection refused")
	})
	called := false
	err := fc.CallProcedure(context.Background(), func(resp *procedure.Response, cbErr error) {
		called = true
	}, "T.insert", 1)
	require.Error(t, err)
	require.False(t, called)
}
