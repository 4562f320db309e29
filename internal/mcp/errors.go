// Package mcp exposes the ensemble retriever as Model Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	cerrors "github.com/Aman-CERP/coderag/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeIndexNotFound indicates the index is missing, corrupt or
	// incompatible with the embedder.
	ErrCodeIndexNotFound = -32001

	// ErrCodeEmbeddingFailed indicates query embedding failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was cancelled.
	ErrCodeTimeout = -32003

	// ErrCodeFileNotFound indicates a file no longer exists on disk.
	ErrCodeFileNotFound = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrToolNotFound indicates the requested tool does not exist.
var ErrToolNotFound = errors.New("tool not found")

// MCPError is a protocol error with a JSON-RPC code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors. Context errors win over
// any CodeError further down the chain.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Tool not found."}
	}

	if ce, ok := cerrors.As(err); ok {
		return mapCodeError(ce)
	}
	return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

func mapCodeError(ce *cerrors.CodeError) *MCPError {
	message := ce.Message
	if ce.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", ce.Message, ce.Suggestion)
	}

	// Index state problems are reported the same way whatever their category.
	switch ce.Code {
	case cerrors.ErrCodeIndexMissing, cerrors.ErrCodeCorruptIndex,
		cerrors.ErrCodeSparseUnavailable, cerrors.ErrCodeDimensionMismatch:
		return &MCPError{Code: ErrCodeIndexNotFound, Message: message}
	case cerrors.ErrCodeEmbeddingFailed:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	case cerrors.ErrCodeFileNotFound:
		return &MCPError{Code: ErrCodeFileNotFound, Message: message}
	case cerrors.ErrCodeBackendTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	}

	switch ce.Category {
	case cerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
