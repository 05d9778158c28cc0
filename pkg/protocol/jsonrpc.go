package protocol

import "encoding/json"

// JSON-RPC 2.0 message types for serve mode.

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"` // string or int; nil for notifications
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Application-specific error codes.
const (
	CodeUnknownTask     = -32000
	CodeVerifyFailed    = -32001
	CodeExamInvalid     = -32002
	CodeExportFailed    = -32003
	CodeHistoryDisabled = -32004
	CodeUnknownHost     = -32005
)

// Method constants for all supported JSON-RPC methods.
const (
	MethodExamStatus     = "exam.status"
	MethodExamVerifyTask = "exam.verify_task"
	MethodExamVerifyAll  = "exam.verify_all"
	MethodExamResetTask  = "exam.reset_task"
	MethodExamResetAll   = "exam.reset_all"
	MethodHostsProbe     = "hosts.probe"
	MethodReportExport   = "report.export"
	MethodHistoryList    = "history.list"
)

// NewResponse creates a successful response.
func NewResponse(id any, result any) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id any, code int, message string, data any) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// TaskParams holds parameters for "exam.verify_task" and "exam.reset_task".
type TaskParams struct {
	TaskID string `json:"task_id"`
}

// ProbeParams holds parameters for "hosts.probe". Empty means every host.
type ProbeParams struct {
	Hosts []string `json:"hosts,omitempty"`
}

// ExportParams holds parameters for "report.export".
type ExportParams struct {
	Publish bool `json:"publish,omitempty"`
}

// HistoryParams holds parameters for "history.list".
type HistoryParams struct {
	Limit int `json:"limit,omitempty"`
}

// ExportResult is returned by "report.export".
type ExportResult struct {
	Path string `json:"path"`
	URL  string `json:"url,omitempty"`
}

// ResetResult is returned by the reset methods.
type ResetResult struct {
	Reset int `json:"reset"`
}
