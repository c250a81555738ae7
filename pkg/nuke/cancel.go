package nuke

import "sync"

// TokenSource owns a cancellation Token shared by every unit of work spawned
// for one session. Cancel is idempotent and irreversible: handlers registered
// before cancellation run exactly once, in registration order, at cancellation
// time; handlers registered after cancellation run synchronously.
type TokenSource struct {
	mu        sync.Mutex
	cancelled bool
	handlers  []func()
}

// NewTokenSource creates an un-cancelled token source.
func NewTokenSource() *TokenSource {
	return &TokenSource{}
}

// Token returns the derived token.
func (s *TokenSource) Token() Token {
	return Token{source: s}
}

// Cancel cancels the source. Safe to call more than once; only the first
// call has any effect.
func (s *TokenSource) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	handlers := s.handlers
	s.handlers = nil
	s.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}

// IsCancelling reports whether Cancel has been called.
func (s *TokenSource) IsCancelling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Token is a cooperative cancellation handle. The zero Token is never
// cancelled and ignores registrations.
type Token struct {
	source *TokenSource
}

// IsCancelling reports whether the owning source has been cancelled.
func (t Token) IsCancelling() bool {
	if t.source == nil {
		return false
	}
	return t.source.IsCancelling()
}

// Register arranges for h to run when the token is cancelled. If the token
// is already cancelled, h runs synchronously before Register returns.
func (t Token) Register(h func()) {
	if t.source == nil {
		return
	}
	t.source.mu.Lock()
	if t.source.cancelled {
		t.source.mu.Unlock()
		h()
		return
	}
	t.source.handlers = append(t.source.handlers, h)
	t.source.mu.Unlock()
}
