package jsonrpc

// ErrorCode is a JSON-RPC 2.0 error code. Targets answering a probe with one
// of these is a response like any other; only silence is a failure.
type ErrorCode int

const (
	// ErrorCodeParseError indicates the target could not parse the request JSON.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the request object was malformed.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound is the expected answer to unknown-method probes.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates the method rejected its parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates a failure inside the target.
	ErrorCodeInternalError ErrorCode = -32603
)

// Name renders the well-known code mnemonics for reports; unknown codes
// render empty and callers fall back to the number.
func (c ErrorCode) Name() string {
	switch c {
	case ErrorCodeParseError:
		return "parse-error"
	case ErrorCodeInvalidRequest:
		return "invalid-request"
	case ErrorCodeMethodNotFound:
		return "method-not-found"
	case ErrorCodeInvalidParams:
		return "invalid-params"
	case ErrorCodeInternalError:
		return "internal-error"
	default:
		return ""
	}
}
