// Package aicf implements the JSON-RPC 2.0 surface and WebSocket event
// feed for the compute fund: discovery and inspection of providers, jobs,
// and balances, plus the proof-submission and payout-claim write paths.
package aicf

import (
	"errors"
	"fmt"
)

var (
	errMissingToken            = errors.New("aicf: missing bearer token")
	errUnexpectedSigningMethod = errors.New("aicf: unexpected JWT signing method")
)

// ModuleError is a JSON-RPC error with an HTTP status hint.
type ModuleError struct {
	HTTPStatus int
	Code       int
	Message    string
	Data       interface{}
}

func (e *ModuleError) Error() string { return fmt.Sprintf("%s (code %d)", e.Message, e.Code) }

// Reserved server error-code range. Standard JSON-RPC codes first, then
// domain codes in the -32000 block.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeServerError    = -32000

	codeInsufficientStake = -32001
	codeJobExpired        = -32002
	codeLeaseLost         = -32003
	codeRegistryDenied    = -32004
	codeNotFound          = -32005

	codeDuplicateTx = -32010
	codeRateLimited = -32020

	codeUnauthorized = -32021
)

func errInvalidParams(msg string) *ModuleError {
	return &ModuleError{HTTPStatus: 400, Code: codeInvalidParams, Message: msg}
}

func errNotFound(msg string) *ModuleError {
	return &ModuleError{HTTPStatus: 404, Code: codeNotFound, Message: msg}
}

func errInternal(msg string) *ModuleError {
	return &ModuleError{HTTPStatus: 500, Code: codeInternalError, Message: msg}
}

func errUnauthorized(msg string) *ModuleError {
	return &ModuleError{HTTPStatus: 401, Code: codeUnauthorized, Message: msg}
}
