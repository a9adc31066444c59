package server

import "sync"

// Session holds the credential used against the reporting backend. File
// downloads require it; clearing it makes subsequent downloads fail
// before any request is sent.
type Session struct {
	mu    sync.RWMutex
	token string
}

// NewSession creates a session seeded with an initial credential, which
// may be empty.
func NewSession(token string) *Session {
	return &Session{token: token}
}

// Token returns the current credential, or "" when logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Set replaces the credential.
func (s *Session) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Clear drops the credential.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// Active reports whether a credential is present.
func (s *Session) Active() bool {
	return s.Token() != ""
}
