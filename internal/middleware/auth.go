// Package middleware provides HTTP middleware for the storefront API.
package middleware

import (
	"context"
	"crypto/rsa"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/brandloom/storefront/internal/app/domain/brand"
	"github.com/brandloom/storefront/internal/app/domain/user"
	"github.com/brandloom/storefront/internal/errors"
	internalhttputil "github.com/brandloom/storefront/internal/httputil"
	"github.com/brandloom/storefront/internal/logging"
	"github.com/brandloom/storefront/internal/permissions"
)

// APIKeyHeader carries brand API keys.
const APIKeyHeader = "X-API-Key"

// Claims represents JWT claims issued by the auth provider.
type Claims struct {
	UserID     string `json:"user_id,omitempty"`
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone_number,omitempty"`
	AuthMethod string `json:"auth_method,omitempty"`
	jwt.RegisteredClaims
}

// SubjectID returns the user id, preferring user_id over sub.
func (c *Claims) SubjectID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Email  string
	Role   user.Role

	// Set for API key callers; the key acts only within BrandID.
	KeyID       string
	BrandID     string
	Permissions permissions.Set
}

func (p *Principal) IsAdmin() bool { return p != nil && p.Role == user.RoleAdmin }

func (p *Principal) IsAPIKey() bool { return p != nil && p.KeyID != "" }

type principalKey struct{}

// WithPrincipal attaches p to ctx along with the logging fields.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	ctx = context.WithValue(ctx, principalKey{}, p)
	ctx = logging.WithUserID(ctx, p.UserID)
	return logging.WithRole(ctx, string(p.Role))
}

// PrincipalFrom returns the caller, or nil for anonymous requests.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// UserSyncer records the token holder and resolves their role.
type UserSyncer interface {
	EnsureUser(ctx context.Context, id user.Identity) (user.User, error)
}

// APIKeyVerifier resolves a raw brand API key.
type APIKeyVerifier interface {
	VerifyAPIKey(ctx context.Context, raw string) (brand.APIKey, error)
}

// AuthConfig configures token verification. One of Secret (HS256) or
// PublicKey (RS256) must be set.
type AuthConfig struct {
	Secret    []byte
	PublicKey *rsa.PublicKey
	Issuer    string
	Users     UserSyncer
	APIKeys   APIKeyVerifier
	Logger    *logging.Logger
	// Failures, when set, counts rejected credentials per client IP. An IP
	// that runs out is refused with 429 before any credential is checked.
	Failures *RateLimiter
}

// AuthMiddleware authenticates bearer tokens and API keys. Requests without
// credentials pass through anonymously; invalid credentials are rejected.
type AuthMiddleware struct {
	secret    []byte
	publicKey *rsa.PublicKey
	issuer    string
	users     UserSyncer
	apiKeys   APIKeyVerifier
	failures  *RateLimiter
	logger    *logging.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(cfg AuthConfig) *AuthMiddleware {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDefault("auth")
	}
	return &AuthMiddleware{
		secret:    cfg.Secret,
		publicKey: cfg.PublicKey,
		issuer:    cfg.Issuer,
		users:     cfg.Users,
		apiKeys:   cfg.APIKeys,
		failures:  cfg.Failures,
		logger:    logger,
	}
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		raw := strings.TrimSpace(r.Header.Get(APIKeyHeader))
		authHeader := r.Header.Get("Authorization")
		if raw == "" && authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}
		if m.failures != nil && m.failures.Exhausted(clientKey(r)) {
			m.failures.reject(w, r, clientKey(r))
			return
		}

		if raw != "" {
			p, err := m.authenticateKey(ctx, raw)
			if err != nil {
				m.respondError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, p)))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			m.respondError(w, r, errors.Unauthorized("Invalid Authorization header format"))
			return
		}

		claims, err := m.validateToken(parts[1])
		if err != nil {
			m.logger.WithContext(ctx).WithError(err).Warn("Token validation failed")
			m.respondError(w, r, err)
			return
		}

		p, err := m.principalFor(ctx, claims)
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		m.logger.WithContext(ctx).WithFields(map[string]interface{}{
			"user_id":     p.UserID,
			"auth_method": claims.AuthMethod,
		}).Debug("Authentication successful")

		next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, p)))
	})
}

func (m *AuthMiddleware) authenticateKey(ctx context.Context, raw string) (*Principal, error) {
	if m.apiKeys == nil {
		return nil, errors.Unauthorized("API keys are not accepted")
	}
	key, err := m.apiKeys.VerifyAPIKey(ctx, raw)
	if err != nil {
		m.logger.LogSecurityEvent(ctx, "api_key_rejected", map[string]interface{}{"error": err.Error()})
		if errors.GetServiceError(err) != nil {
			return nil, err
		}
		return nil, errors.Unauthorized("Invalid API key")
	}
	return &Principal{
		UserID:      "apikey:" + key.ID,
		Role:        user.RoleCustomer,
		KeyID:       key.ID,
		BrandID:     key.BrandID,
		Permissions: key.Permissions,
	}, nil
}

func (m *AuthMiddleware) principalFor(ctx context.Context, claims *Claims) (*Principal, error) {
	id := user.Identity{
		Subject: claims.SubjectID(),
		Email:   strings.ToLower(strings.TrimSpace(claims.Email)),
		Name:    claims.Name,
		Phone:   claims.Phone,
	}
	if id.Subject == "" {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "missing subject")
	}
	p := &Principal{UserID: id.Subject, Email: id.Email, Role: user.RoleCustomer}
	if m.users == nil {
		return p, nil
	}
	u, err := m.users.EnsureUser(ctx, id)
	if err != nil {
		return nil, errors.Internal("Failed to load user", err)
	}
	p.Role = u.Role
	return p, nil
}

// validateToken validates a JWT token and returns claims
func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if len(m.secret) > 0 {
				return m.secret, nil
			}
		case *jwt.SigningMethodRSA:
			if m.publicKey != nil {
				return m.publicKey, nil
			}
		}
		return nil, errors.InvalidToken(nil).WithDetails("method", token.Header["alg"])
	}, opts...)
	if err != nil {
		return nil, errors.InvalidToken(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "invalid claims")
	}
	return claims, nil
}

// respondError sends an error response
func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("Authentication failed", err)
	}

	if m.failures != nil && serviceErr.HTTPStatus == http.StatusUnauthorized {
		m.failures.Charge(clientKey(r))
	}
	internalhttputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)

	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
	}).Warn("Authentication failed")
}

// RequireUser rejects anonymous and API key callers.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFrom(r.Context())
		if p == nil || p.IsAPIKey() {
			internalhttputil.Unauthorized(w, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects anonymous callers.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFrom(r.Context()) == nil {
			internalhttputil.Unauthorized(w, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
