package mcpserver

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclex/doclex/internal/doclexerr"
)

func TestMapError_KindToCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"invalid argument", doclexerr.InvalidArgument("bad"), ErrCodeInvalidParams},
		{"invalid field", doclexerr.InvalidField("nope"), ErrCodeInvalidParams},
		{"query syntax", doclexerr.InvalidQuerySyntax("bad query", nil), ErrCodeInvalidQuerySyntax},
		{"not found", doclexerr.NotFound("missing"), ErrCodeNotFound},
		{"index unavailable", doclexerr.IndexUnavailable("poisoned", nil), ErrCodeIndexUnavailable},
		{"schema mismatch", doclexerr.SchemaMismatch("v2 vs v3"), ErrCodeSchemaMismatch},
		{"transient io", doclexerr.TransientIO("disk hiccup", nil), ErrCodeTransientIO},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := MapError(tc.err)
			rpcErr, ok := mapped.(*RPCError)
			require.True(t, ok)
			assert.Equal(t, tc.code, rpcErr.Code)
			assert.NotEmpty(t, rpcErr.Message)
		})
	}
}

func TestMapError_WrappedKindSurvives(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", doclexerr.NotFound("inner"))
	rpcErr, ok := MapError(wrapped).(*RPCError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeNotFound, rpcErr.Code)
}

func TestMapError_PlainErrorIsInternal(t *testing.T) {
	rpcErr, ok := MapError(errors.New("boom")).(*RPCError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeInternalError, rpcErr.Code)
}

func TestMapError_NilAndIdempotent(t *testing.T) {
	assert.Nil(t, MapError(nil))

	orig := &RPCError{Code: ErrCodeNotFound, Message: "already mapped"}
	assert.Same(t, orig, MapError(orig).(*RPCError))
}
