package services

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/ayurmart/storefront/internal/auth"
	"github.com/ayurmart/storefront/internal/db"
	"github.com/ayurmart/storefront/internal/metrics"
	"github.com/ayurmart/storefront/internal/models"
	apperrors "github.com/ayurmart/storefront/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const userColumns = `id, email, full_name, phone, password_hash, created_at, updated_at`

// UserService owns accounts and issues sessions
type UserService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
	tokens  *auth.TokenManager
	logger  *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(db *db.DB, m *metrics.AppMetrics, tokens *auth.TokenManager, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{db: db, metrics: m, tokens: tokens, logger: logger}
}

func scanUser(row rowScanner) (models.User, error) {
	var (
		u     models.User
		phone sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &phone, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	u.Phone = phone.String
	return u, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp creates an account and returns its first session.
func (s *UserService) SignUp(ctx context.Context, req models.SignUpRequest) (*models.Session, error) {
	email := normalizeEmail(req.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.NewValidation("A valid email is required")
	}
	if len(req.Password) < auth.MinPasswordLength {
		return nil, apperrors.NewValidation("Password should be at least 6 characters")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperrors.NewInternal("failed to hash password", err)
	}

	start := time.Now()
	query := `INSERT INTO users (email, full_name, phone, password_hash) VALUES (?, ?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query, email, strings.TrimSpace(req.FullName), nullString(req.Phone), hash)
	s.metrics.RecordDBQuery(ctx, "INSERT", "users", query, start, err == nil)
	if isDuplicateEntry(err) {
		return nil, apperrors.NewConflict("User already registered")
	}
	if err != nil {
		return nil, apperrors.NewInternal("failed to create user", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, apperrors.NewInternal("failed to create user", err)
	}

	now := time.Now().UTC()
	user := models.User{
		ID:        id,
		Email:     email,
		FullName:  strings.TrimSpace(req.FullName),
		Phone:     req.Phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.recordAuthEvent(ctx, "signup")
	return s.issueSession(user)
}

// SignIn checks credentials and returns a new session.
func (s *UserService) SignIn(ctx context.Context, req models.SignInRequest) (*models.Session, error) {
	start := time.Now()
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, normalizeEmail(req.Email)))
	s.metrics.RecordDBQuery(ctx, "SELECT", "users", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		s.recordAuthEvent(ctx, "signin_failed")
		return nil, apperrors.NewUnauthorized("Invalid login credentials")
	}
	if err != nil {
		return nil, apperrors.NewFetchFailed("user", err)
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		s.recordAuthEvent(ctx, "signin_failed")
		return nil, apperrors.NewUnauthorized("Invalid login credentials")
	}

	s.recordAuthEvent(ctx, "signin")
	return s.issueSession(user)
}

// SessionFromToken resolves a bearer token to its session.
func (s *UserService) SessionFromToken(ctx context.Context, token string) (*models.Session, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, apperrors.NewUnauthorized("Invalid or expired session")
	}
	user, err := s.GetUser(ctx, claims.UserID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NewUnauthorized("Invalid or expired session")
	}
	if err != nil {
		return nil, err
	}
	return &models.Session{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   claims.ExpiresAt.Time,
		User:        *user,
	}, nil
}

// RecordSignOut counts a sign-out. Tokens are stateless and expire on their own.
func (s *UserService) RecordSignOut(ctx context.Context) {
	s.recordAuthEvent(ctx, "signout")
}

// GetUser returns a user by ID
func (s *UserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	start := time.Now()
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	s.metrics.RecordDBQuery(ctx, "SELECT", "users", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("User")
	}
	if err != nil {
		return nil, apperrors.NewFetchFailed("user", err)
	}
	return &user, nil
}

// UpdateProfile applies the non-nil fields of req.
func (s *UserService) UpdateProfile(ctx context.Context, id int64, req models.UpdateProfileRequest) (*models.User, error) {
	if req.FullName == nil && req.Phone == nil {
		return nil, apperrors.NewValidation("No profile fields to update")
	}
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return nil, apperrors.NewValidation("Full name cannot be empty")
		}
		req.FullName = &name
	}

	start := time.Now()
	query := `UPDATE users SET full_name = COALESCE(?, full_name), phone = COALESCE(?, phone),
		updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query, req.FullName, req.Phone, id)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "users", query, start, err == nil)
	if err != nil {
		return nil, apperrors.NewInternal("failed to update profile", err)
	}
	// MySQL reports zero affected rows for unchanged values, so existence is checked by the read.
	return s.GetUser(ctx, id)
}

func (s *UserService) issueSession(user models.User) (*models.Session, error) {
	token, expiresAt, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		return nil, apperrors.NewInternal("failed to issue session", err)
	}
	return &models.Session{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		User:        user,
	}, nil
}

func (s *UserService) recordAuthEvent(ctx context.Context, event string) {
	s.metrics.AuthEvents.Add(ctx, 1, s.metrics.Attrs(attribute.String("event", event)))
	s.logger.Debug("Auth event", zap.String("event", event))
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
