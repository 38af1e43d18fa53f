// Package httpclient is the transport layer for the herd REST API. A Client attaches
// the session token to every request, classifies HTTP and network failures into a
// small set of error kinds, and tears the session down when the server reports that
// an authenticated request is no longer authorized.
package httpclient

import (
	"context"
)

// SessionProvider is the transport's view of the process-wide auth state. The
// transport reads the token at call time and, on session expiry, clears it and
// notifies the host application. Implementations must tolerate concurrent calls.
type SessionProvider interface {
	// Token returns the current bearer token, or "" when signed out.
	Token() string
	// ClearSession drops the token and any persisted copy of it.
	ClearSession()
	// OnSessionExpired lets the host application send the user to sign in.
	OnSessionExpired()
}

// Doer issues a request against the API and returns the undecoded response.
// Client implements it; domain code depends on this interface.
type Doer interface {
	Do(ctx context.Context, path string, opts RequestOptions) (*Response, error)
}

// anonymousSession is used when no provider is configured.
type anonymousSession struct{}

func (anonymousSession) Token() string     { return "" }
func (anonymousSession) ClearSession()     {}
func (anonymousSession) OnSessionExpired() {}

// Verify that the Client implements Doer.
var _ Doer = &Client{}
