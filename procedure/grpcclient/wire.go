package grpcclient

import (
	"fmt"

	"github.com/rohithreddy/voltdb/procedure"
	"google.golang.org/protobuf/types/known/structpb"
)

// encodeRequest packs a stored-procedure invocation into the wire
// Struct: {"procName": string, "args": list}.
func encodeRequest(procName string, args []interface{}) (*structpb.Struct, error) {
	argList, err := structpb.NewList(args)
	if err != nil {
		return nil, fmt.Errorf("cannot encode procedure arguments: %w", err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"procName": procName,
		"args":     argList.AsSlice(),
	})
}

// decodeResponse unpacks the wire Struct {"status": number, "message":
// string} the server returns into a procedure.Response.
func decodeResponse(s *structpb.Struct) (*procedure.Response, error) {
	fields := s.GetFields()
	statusVal, ok := fields["status"]
	if !ok {
		return nil, fmt.Errorf("response missing status field")
	}
	resp := &procedure.Response{
		Status:  procedure.Status(int(statusVal.GetNumberValue())),
		Message: fields["message"].GetStringValue(),
	}
	return resp, nil
}

// encodeResponse is the server-side counterpart of decodeResponse.
func encodeResponse(resp *procedure.Response) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"status":  float64(resp.Status),
		"message": resp.Message,
	})
}

// decodeRequest is the server-side counterpart of encodeRequest.
func decodeRequest(s *structpb.Struct) (procName string, args []interface{}, err error) {
	fields := s.GetFields()
	procName = fields["procName"].GetStringValue()
	argsVal, ok := fields["args"]
	if !ok {
		return procName, nil, nil
	}
	list := argsVal.GetListValue()
	if list == nil {
		return procName, nil, nil
	}
	args = list.AsSlice()
	return procName, args, nil
}
