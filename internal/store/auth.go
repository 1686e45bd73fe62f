package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ayurmart/storefront/internal/models"
	"go.uber.org/zap"
)

// AuthStatus is the state of an AuthStore
type AuthStatus string

const (
	StatusUninitialized AuthStatus = "uninitialized"
	StatusLoading       AuthStatus = "loading"
	StatusAuthenticated AuthStatus = "authenticated"
	StatusAnonymous     AuthStatus = "anonymous"
)

// AuthEvent names a session change reported by the backend
type AuthEvent string

const (
	EventSignedIn    AuthEvent = "SIGNED_IN"
	EventSignedOut   AuthEvent = "SIGNED_OUT"
	EventUserUpdated AuthEvent = "USER_UPDATED"
)

// ErrBackendNotConfigured is returned by operations that need a backend when none is set.
var ErrBackendNotConfigured = errors.New("auth backend not configured")

// AuthBackend is the session service the store wraps. GetSession returns
// (nil, nil) when there is no current session.
type AuthBackend interface {
	GetSession(ctx context.Context) (*models.Session, error)
	SignIn(ctx context.Context, req models.SignInRequest) (*models.Session, error)
	SignUp(ctx context.Context, req models.SignUpRequest) (*models.Session, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(fn func(AuthEvent, *models.Session)) (unsubscribe func())
}

// AuthState is a snapshot of the store
type AuthState struct {
	Status  AuthStatus      `json:"status"`
	User    *models.User    `json:"user"`
	Session *models.Session `json:"session"`
}

// AuthStore caches the current session and exposes sign-in, sign-up and sign-out.
// With a nil backend it only tracks local state.
type AuthStore struct {
	mu          sync.Mutex
	backend     AuthBackend
	state       AuthState
	unsubscribe func()
	listeners   listeners[AuthState]
	logger      *zap.Logger
}

func NewAuthStore(backend AuthBackend, logger *zap.Logger) *AuthStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthStore{
		backend: backend,
		state:   AuthState{Status: StatusUninitialized},
		logger:  logger,
	}
}

// Initialize loads the existing session and subscribes to backend session
// changes until Close. Backend failures leave the store anonymous.
func (s *AuthStore) Initialize(ctx context.Context) error {
	s.set(AuthState{Status: StatusLoading})

	if s.backend == nil {
		s.set(AuthState{Status: StatusAnonymous})
		return nil
	}

	session, err := s.backend.GetSession(ctx)
	if err != nil {
		s.logger.Warn("Failed to load session", zap.Error(err))
		s.set(AuthState{Status: StatusAnonymous})
		return fmt.Errorf("failed to load session: %w", err)
	}
	s.applySession(session)

	s.mu.Lock()
	subscribed := s.unsubscribe != nil
	s.mu.Unlock()
	if !subscribed {
		unsub := s.backend.OnAuthStateChange(func(event AuthEvent, session *models.Session) {
			s.logger.Debug("Auth state changed", zap.String("event", string(event)))
			if event == EventSignedOut {
				session = nil
			}
			s.applySession(session)
		})
		s.mu.Lock()
		s.unsubscribe = unsub
		s.mu.Unlock()
	}
	return nil
}

// SignIn starts a session. On failure the previous state is restored.
func (s *AuthStore) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	if s.backend == nil {
		return nil, ErrBackendNotConfigured
	}
	prev := s.State()
	s.set(AuthState{Status: StatusLoading, User: prev.User, Session: prev.Session})

	session, err := s.backend.SignIn(ctx, models.SignInRequest{Email: email, Password: password})
	if err != nil {
		s.set(prev)
		return nil, err
	}
	s.applySession(session)
	return session, nil
}

// SignUp creates an account and starts its session.
func (s *AuthStore) SignUp(ctx context.Context, req models.SignUpRequest) (*models.Session, error) {
	if s.backend == nil {
		return nil, ErrBackendNotConfigured
	}
	prev := s.State()
	s.set(AuthState{Status: StatusLoading, User: prev.User, Session: prev.Session})

	session, err := s.backend.SignUp(ctx, req)
	if err != nil {
		s.set(prev)
		return nil, err
	}
	s.applySession(session)
	return session, nil
}

// SignOut always clears the cached session; a backend error is still returned.
func (s *AuthStore) SignOut(ctx context.Context) error {
	var err error
	if s.backend != nil {
		err = s.backend.SignOut(ctx)
		if err != nil {
			s.logger.Warn("Backend sign-out failed", zap.Error(err))
		}
	}
	s.set(AuthState{Status: StatusAnonymous})
	return err
}

func (s *AuthStore) State() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *AuthStore) User() *models.User {
	return s.State().User
}

func (s *AuthStore) IsAuthenticated() bool {
	return s.State().Status == StatusAuthenticated
}

// Subscribe registers fn to run after every state change; the result unsubscribes.
func (s *AuthStore) Subscribe(fn func(AuthState)) func() {
	return s.listeners.add(fn)
}

// Close detaches from backend notifications.
func (s *AuthStore) Close() {
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (s *AuthStore) applySession(session *models.Session) {
	if session == nil {
		s.set(AuthState{Status: StatusAnonymous})
		return
	}
	user := session.User
	s.set(AuthState{Status: StatusAuthenticated, User: &user, Session: session})
}

func (s *AuthStore) set(state AuthState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.listeners.notify(state)
}
