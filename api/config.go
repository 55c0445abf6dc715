// Package api provides the completion server: an HTTP backend that stores
// conversations and streams assistant replies as text/event-stream.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// AuthToken, when set, must be sent as "Authorization: Bearer <token>"
	// on every /api route.
	AuthToken string

	// TokenRate caps emitted tokens per second for each stream. Zero means
	// unlimited.
	TokenRate float64

	// ServiceName is reported as the source of published turn events.
	ServiceName string
}
