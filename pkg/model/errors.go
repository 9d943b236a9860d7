package model

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrConfig is returned when a required setting is missing or invalid.
	ErrConfig = goerr.New("invalid configuration")

	// ErrAuth is returned when the source host rejects the credentials (401/403).
	ErrAuth = goerr.New("authentication failed")

	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = goerr.New("not found")

	// ErrUpstream is returned for any other non-success response from an external service.
	ErrUpstream = goerr.New("upstream service error")

	ErrLengthMismatch    = goerr.New("embedding count does not match input count")
	ErrDimensionMismatch = goerr.New("vector dimension mismatch")
	ErrUnknownTool       = goerr.New("unknown tool")
)
