package grpcclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rohithreddy/voltdb/procedure"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type echoServer struct {
	lastProc string
	lastArgs []interface{}
}

func (s *echoServer) CallProcedure(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	procName, args, err := decodeRequest(req)
	if err != nil {
		return nil, err
	}
	s.lastProc = procName
	s.lastArgs = args
	return encodeResponse(&procedure.Response{Status: procedure.StatusSuccess, Message: "ok"})
}

func startBufconnServer(t *testing.T, srv ProcedureServiceServer) (*bufconn.Listener, func()) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	s := grpc.NewServer()
	RegisterProcedureServiceServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	return lis, s.Stop
}

func TestGRPCProcedureClientRoundTrip(t *testing.T) {
	srv := &echoServer{}
	lis, stop := startBufconnServer(t, srv)
	defer stop()

	dialer := grpc.WithContextDialer(func(ctx context.Context, s string) (net.Conn, error) {
		return lis.Dial()
	})
	client := NewGRPCProcedureClient("bufnet", time.Hour, nil, dialer)
	require.NoError(t, client.Start())
	defer client.Stop()

	done := make(chan *procedure.Response, 1)
	err := client.CallProcedure(context.Background(), func(resp *procedure.Response, cbErr error) {
		require.NoError(t, cbErr)
		done <- resp
	}, "orders.insert", int64(1), "widget")
	require.NoError(t, err)

	select {
	case resp := <-done:
		require.Equal(t, procedure.StatusSuccess, resp.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
	}

	require.Equal(t, "orders.insert", srv.lastProc)
	require.Len(t, srv.lastArgs, 2)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	req, err := encodeRequest("T.insert", []interface{}{int64(5), "x"})
	require.NoError(t, err)
	procName, args, err := decodeRequest(req)
	require.NoError(t, err)
	require.Equal(t, "T.insert", procName)
	require.Len(t, args, 2)

	resp, err := encodeResponse(&procedure.Response{Status: procedure.StatusUserError, Message: "bad"})
	require.NoError(t, err)
	decoded, err := decodeResponse(resp)
	require.NoError(t, err)
	require.Equal(t, procedure.StatusUserError, decoded.Status)
	require.Equal(t, "bad", decoded.Message)
}
