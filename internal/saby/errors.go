package saby

import (
	"fmt"
)

// AuthError indicates that a token could not be acquired or that no usable
// token was available for an outbound call.
type AuthError struct {
	Message    string
	StatusCode int
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("saby auth: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("saby auth: %s", e.Message)
}

// TransportError indicates a failure at the HTTP layer while talking to the
// CRM - connection problems, timeouts, non-200 responses or unparseable bodies.
type TransportError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("saby transport: %s (status %d)", e.Message, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("saby transport: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("saby transport: %s", e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RpcError is a business-logic rejection returned by the CRM inside an
// otherwise successful HTTP response.
type RpcError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("saby rpc: %s (code %d)", e.Message, e.Code)
}
