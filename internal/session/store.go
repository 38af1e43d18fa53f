// Package session holds the process-wide authentication state: at most one bearer
// token, its persisted copy, and the one-shot redirect to sign-in that follows an
// expired session.
package session

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/herdbook/herdbook/internal/common/apperrors"
	"github.com/herdbook/herdbook/internal/common/httpclient"
)

// SignInRoute is where the user is sent when a session ends unexpectedly.
const SignInRoute = "/sign-in"

// KindNotSignedIn classifies ErrNotSignedIn.
const KindNotSignedIn apperrors.Kind = "NotSignedIn"

// ErrNotSignedIn is returned when an operation needs a session and there is none.
var ErrNotSignedIn = apperrors.New("You are not signed in. Please sign in first.").SetKind(KindNotSignedIn)

// Navigator sends the user to route. The host application decides what that means.
type Navigator func(route string)

// Persister stores the token between runs.
type Persister interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// Store is the authentication state. It implements httpclient.SessionProvider.
type Store struct {
	mu            sync.Mutex
	token         string
	redirectArmed bool

	persister Persister
	navigate  Navigator
}

var _ httpclient.SessionProvider = (*Store)(nil)

// NewStore creates a Store and rehydrates the token from p. A nil persister keeps
// the token in memory only; a nil navigator ignores redirects. A token that cannot
// be loaded is logged and treated as absent.
func NewStore(p Persister, navigate Navigator) *Store {
	if p == nil {
		p = NewMemoryPersister()
	}
	if navigate == nil {
		navigate = func(string) {}
	}
	s := &Store{persister: p, navigate: navigate}

	token, err := p.Load()
	if err != nil {
		log.Warn().Err(err).Msg("unable to load saved session")
		return s
	}
	s.token = token
	return s
}

// Token returns the current token, or "" when signed out.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// IsSignedIn reports whether a token is held.
func (s *Store) IsSignedIn() bool {
	return s.Token() != ""
}

// SetToken records a token after a successful login and persists it.
func (s *Store) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
	s.redirectArmed = false
	return s.persister.Save(token)
}

// Logout drops the token and its persisted copy without redirecting.
func (s *Store) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	s.redirectArmed = false
	return s.persister.Clear()
}

// ClearSession drops the token after the server rejected it and arms the redirect
// that OnSessionExpired performs.
func (s *Store) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" {
		s.redirectArmed = true
	}
	s.token = ""
	if err := s.persister.Clear(); err != nil {
		log.Warn().Err(err).Msg("unable to remove saved session")
	}
}

// OnSessionExpired sends the user to SignInRoute. However many requests observe the
// same expiry, the navigator runs once.
func (s *Store) OnSessionExpired() {
	s.mu.Lock()
	armed := s.redirectArmed
	s.redirectArmed = false
	s.mu.Unlock()

	if !armed {
		return
	}
	log.Info().Str("route", SignInRoute).Msg("session expired, redirecting to sign-in")
	s.navigate(SignInRoute)
}

// RequireSession returns nil when signed in. Otherwise it sends the user to sign in
// and returns ErrNotSignedIn.
func (s *Store) RequireSession() error {
	if s.IsSignedIn() {
		return nil
	}
	s.navigate(SignInRoute)
	return ErrNotSignedIn
}
