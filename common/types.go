// Package common holds types and helpers shared by the router's packages.
package common

// Key used to set values in a web request context. API uses this to set
// values, backend uses this to retrieve values.
type ContextKey string

const (
	// RequestIDContextKey is used to set a request id for tracing
	// in a request context.
	RequestIDContextKey ContextKey = "request_id"
	// CallerContextKey is used to set the address recovered from the
	// request signature in a request context.
	CallerContextKey ContextKey = "caller"
)
