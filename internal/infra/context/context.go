// Package context holds typed request-scoped values shared between the
// transport layer, the services and the logging handlers.
package context

type contextKey string
