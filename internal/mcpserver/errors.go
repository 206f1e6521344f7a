// Package mcpserver exposes the retrieval engine over the Model Context
// Protocol: line-delimited JSON-RPC on stdin/stdout, a tool per exposed
// operation, and read-only documentation resources.
package mcpserver

import (
	"errors"
	"fmt"

	"github.com/doclex/doclex/internal/doclexerr"
)

// JSON-RPC error codes for doclex's request-facing error kinds. Standard
// codes are reused where they fit; engine-specific kinds get codes in
// the implementation-defined -32000 range.
const (
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603

	ErrCodeInvalidQuerySyntax = -32001
	ErrCodeNotFound           = -32002
	ErrCodeIndexUnavailable   = -32003
	ErrCodeSchemaMismatch     = -32004
	ErrCodeTransientIO        = -32005
)

// RPCError is the JSON-RPC error object a failed tool call resolves to.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// MapError translates an engine error into an RPCError at the outermost
// tool-handler boundary.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	kind, ok := doclexerr.GetKind(err)
	if !ok {
		return &RPCError{Code: ErrCodeInternalError, Message: err.Error()}
	}

	code := ErrCodeInternalError
	switch kind {
	case doclexerr.KindInvalidArgument:
		code = ErrCodeInvalidParams
	case doclexerr.KindInvalidQuerySyntax:
		code = ErrCodeInvalidQuerySyntax
	case doclexerr.KindNotFound:
		code = ErrCodeNotFound
	case doclexerr.KindIndexUnavailable:
		code = ErrCodeIndexUnavailable
	case doclexerr.KindSchemaMismatch:
		code = ErrCodeSchemaMismatch
	case doclexerr.KindTransientIO:
		code = ErrCodeTransientIO
	}

	out := &RPCError{Code: code, Message: err.Error(), Data: string(kind)}
	return out
}

// NewInvalidParamsError builds an invalid-params RPCError directly, for
// validation that happens before the engine is consulted.
func NewInvalidParamsError(message string) *RPCError {
	return &RPCError{Code: ErrCodeInvalidParams, Message: message}
}
