package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/ayurmart/storefront/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SessionHeader lets non-browser clients carry the store session without cookies.
const SessionHeader = "X-Session-ID"

// CookieOptions configures the cookies set by this package.
type CookieOptions struct {
	StoreName string
	AuthName  string
	Secure    bool
	MaxAge    time.Duration
}

// StoreSessionMiddleware assigns every client a store session id, used to key
// its cart and guest wishlist. Unknown or malformed ids are replaced.
func StoreSessionMiddleware(opts CookieOptions) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := r.Header.Get(SessionHeader)
			if sessionID == "" {
				if c, err := r.Cookie(opts.StoreName); err == nil {
					sessionID = c.Value
				}
			}
			if _, err := uuid.Parse(sessionID); err != nil {
				sessionID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     opts.StoreName,
					Value:    sessionID,
					Path:     "/",
					MaxAge:   int(opts.MaxAge.Seconds()),
					HttpOnly: true,
					Secure:   opts.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			w.Header().Set(SessionHeader, sessionID)
			ctx := context.WithValue(r.Context(), storeSessionKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StoreSessionID returns the store session id set by StoreSessionMiddleware.
func StoreSessionID(ctx context.Context) string {
	id, _ := ctx.Value(storeSessionKey).(string)
	return id
}

// SessionResolver turns an access token into a session.
type SessionResolver interface {
	SessionFromToken(ctx context.Context, token string) (*models.Session, error)
}

// AuthMiddleware attaches the caller's session when a valid token is sent as a
// bearer header or auth cookie. Requests without a valid token continue anonymously.
func AuthMiddleware(resolver SessionResolver, opts CookieOptions, logger *zap.Logger) mux.MiddlewareFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r, opts.AuthName)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			session, err := resolver.SessionFromToken(r.Context(), token)
			if err != nil {
				logger.Debug("Ignoring invalid access token",
					zap.String("request_id", RequestIDFromContext(r.Context())),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), authSessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromRequest reads a bearer token, falling back to the auth cookie.
func TokenFromRequest(r *http.Request, cookieName string) string {
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

// RequireAuth rejects requests without a session with a 401 envelope.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if SessionFromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionFromContext returns the authenticated session, or nil.
func SessionFromContext(ctx context.Context) *models.Session {
	s, _ := ctx.Value(authSessionKey).(*models.Session)
	return s
}

// WithSession returns ctx carrying session.
func WithSession(ctx context.Context, session *models.Session) context.Context {
	return context.WithValue(ctx, authSessionKey, session)
}

// SetAuthCookie stores the access token in the auth cookie until it expires.
func SetAuthCookie(w http.ResponseWriter, opts CookieOptions, session *models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.AuthName,
		Value:    session.AccessToken,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearAuthCookie expires the auth cookie.
func ClearAuthCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.AuthName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
