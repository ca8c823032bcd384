package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/gantry-run/gantry/internal/handler"
)

// Version is the JSON-RPC protocol version carried by every frame.
const Version = "2.0"

// Methods understood by the worker dispatcher.
const (
	MethodExecute  = "execute"
	MethodPing     = "ping"
	MethodShutdown = "shutdown"
)

// Standard JSON-RPC error codes used for transport-level faults.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
)

// Request is one host-to-worker frame. ID correlates exactly one
// response; it is a pointer only so that error responses to unparseable
// requests can echo a null id.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ExecuteParams are the parameters of an execute request.
type ExecuteParams struct {
	HandlerPath string                     `json:"handler_path"`
	Context     *handler.InvocationContext `json:"context"`
}

// RPCError is the error object of a transport-fault response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Response is one worker-to-host frame. Exactly one of Result and Error
// is set.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      *int64    `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// Ready is the unsolicited notification a worker writes once its read
// loop is armed. It carries no id; the host must not route invocations
// before observing it.
type Ready struct {
	Type string `json:"type"`
}

// ReadyType is the Type value of a Ready notification.
const ReadyType = "ready"

// PingResult is the result payload of a ping response.
type PingResult struct {
	Status string `json:"status"`
}

// NewExecuteRequest builds an execute frame for the given handler path
// and invocation context.
func NewExecuteRequest(id int64, handlerPath string, ctx *handler.InvocationContext) (*Request, error) {
	params, err := json.Marshal(ExecuteParams{HandlerPath: handlerPath, Context: ctx})
	if err != nil {
		return nil, err
	}
	return &Request{JSONRPC: Version, ID: &id, Method: MethodExecute, Params: params}, nil
}

// NewResultResponse builds a response carrying a result payload.
func NewResultResponse(id *int64, result any) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

// NewErrorResponse builds a transport-fault response. A nil id is
// legitimate: parse errors have no request to correlate with.
func NewErrorResponse(id *int64, code int, message string) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: &RPCError{Code: code, Message: message}}
}

// WorkerFrame is the host-side decoded view of one line read from a
// worker's stdout. Exactly one of Ready, Result, and Error is
// meaningful: a ready notification carries Type, everything else is a
// correlated response.
type WorkerFrame struct {
	Type    string          `json:"type,omitempty"`
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// ParseWorkerFrame decodes one worker stdout line.
func ParseWorkerFrame(line []byte) (*WorkerFrame, error) {
	var frame WorkerFrame
	if err := json.Unmarshal(line, &frame); err != nil {
		return nil, fmt.Errorf("parse worker frame: %w", err)
	}
	return &frame, nil
}

// IsReady reports whether the frame is the worker's ready notification.
func (f *WorkerFrame) IsReady() bool {
	return f.Type == ReadyType
}

// ExecutionResult decodes the frame's result as an execution result.
func (f *WorkerFrame) ExecutionResult() (*handler.ExecutionResult, error) {
	var result handler.ExecutionResult
	if err := json.Unmarshal(f.Result, &result); err != nil {
		return nil, fmt.Errorf("decode execution result: %w", err)
	}
	return &result, nil
}

// ExecuteParams decodes the request's params as execute parameters.
func (r *Request) ExecuteParams() (*ExecuteParams, error) {
	var p ExecuteParams
	if err := json.Unmarshal(r.Params, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
