package middleware

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Roles issued by the identity provider
const (
	RoleAdmin    = "ADMIN"
	RoleVet      = "VET"
	RoleOperator = "OPERATOR"
)

// cacheEntry stores verified JWT claims keyed by a digest of the token
type cacheEntry struct {
	claims jwt.MapClaims
	exp    int64
}

// AuthMiddleware handles JWT validation and RBAC enforcement
// Validates tokens signed by the identity provider using the mounted public key.
// Every token is scoped to one farm through the farm_id claim.
type AuthMiddleware struct {
	publicKey *rsa.PublicKey
	logger    zerolog.Logger
	// L1 cache keyed by token digest
	cache       sync.Map
	janitorStop chan bool
	stopOnce    sync.Once
}

const CacheCleanupInterval = 10 * time.Minute

// NewAuthMiddleware creates a new JWT authentication middleware
func NewAuthMiddleware(publicKey *rsa.PublicKey, logger zerolog.Logger) *AuthMiddleware {
	m := &AuthMiddleware{
		publicKey:   publicKey,
		logger:      logger.With().Str("component", "auth").Logger(),
		janitorStop: make(chan bool),
	}

	go m.startJanitor(CacheCleanupInterval)

	return m
}

type contextKey string

const (
	UserIDKey contextKey = "userID"
	RoleKey   contextKey = "role"
	FarmIDKey contextKey = "farmID"
	TokenKey  contextKey = "token"
)

// GetClaimsFromCacheOrParse returns verified claims for tokenString and the cache key used.
// Signatures are checked only on a cache miss; the key covers the signature bytes.
func (m *AuthMiddleware) GetClaimsFromCacheOrParse(tokenString string) (jwt.MapClaims, string, error) {
	unverified := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, unverified); err != nil {
		return nil, "", err
	}

	exp, err := expiryOf(unverified)
	if err != nil {
		return nil, "", err
	}
	if time.Now().Unix() > exp {
		return nil, "", errors.New("token expired")
	}

	key := cacheKey(tokenString)
	if entry, ok := m.cache.Load(key); ok {
		if cached := entry.(cacheEntry); time.Now().Unix() < cached.exp {
			return cached.claims, key, nil
		}
		m.cache.Delete(key)
	}

	claims, err := m.verify(tokenString)
	if err != nil {
		return nil, "", err
	}
	m.cache.Store(key, cacheEntry{claims: claims, exp: exp})
	return claims, key, nil
}

// cacheKey digests the whole token, signature included, so only the exact
// token that was verified can hit the cache
func cacheKey(tokenString string) string {
	sum := sha256.Sum256([]byte(tokenString))
	return hex.EncodeToString(sum[:])
}

// verify checks the RS256 signature against the identity provider key
func (m *AuthMiddleware) verify(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.publicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodRS384.Alg(), jwt.SigningMethodRS512.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	return claims, nil
}

func expiryOf(claims jwt.MapClaims) (int64, error) {
	switch exp := claims["exp"].(type) {
	case float64:
		return int64(exp), nil
	case int64:
		return exp, nil
	default:
		return 0, errors.New("missing expiration claim")
	}
}

// Authenticate validates a JWT and returns its subject, role and farm
func (m *AuthMiddleware) Authenticate(tokenString string) (userID string, role string, farmID uuid.UUID, err error) {
	claims, _, err := m.GetClaimsFromCacheOrParse(tokenString)
	if err != nil {
		return "", "", uuid.Nil, err
	}
	return identityFromClaims(claims)
}

func identityFromClaims(claims jwt.MapClaims) (string, string, uuid.UUID, error) {
	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return "", "", uuid.Nil, errors.New("missing or invalid user ID claim")
	}

	role, ok := claims["role"].(string)
	if !ok || role == "" {
		return "", "", uuid.Nil, errors.New("missing or invalid role claim")
	}

	rawFarm, _ := claims["farm_id"].(string)
	farmID, err := uuid.Parse(rawFarm)
	if err != nil || farmID == uuid.Nil {
		return "", "", uuid.Nil, errors.New("missing or invalid farm_id claim")
	}

	return userID, role, farmID, nil
}

// RequireAuth is middleware that validates JWT token from Authorization header
// Adds userID, role and farmID to request context
func (m *AuthMiddleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.logger.Debug().Str("path", r.URL.Path).Msg("missing Authorization header")
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenString == "" {
			m.logger.Debug().Str("path", r.URL.Path).Msg("invalid Authorization header format")
			http.Error(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}

		claims, key, err := m.GetClaimsFromCacheOrParse(tokenString)
		if err != nil {
			m.logger.Info().Err(err).Msg("token validation failed")
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		userID, role, farmID, err := identityFromClaims(claims)
		if err != nil {
			m.logger.Info().Err(err).Str("token_digest", key).Msg("token rejected")
			http.Error(w, "invalid token: "+err.Error(), http.StatusUnauthorized)
			return
		}

		m.logger.Debug().
			Str("user_id", userID).
			Str("role", role).
			Str("farm_id", farmID.String()).
			Dur("duration", time.Since(start)).
			Msg("token validated")

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		ctx = context.WithValue(ctx, RoleKey, role)
		ctx = context.WithValue(ctx, FarmIDKey, farmID)
		ctx = context.WithValue(ctx, TokenKey, tokenString)

		next(w, r.WithContext(ctx))
	}
}

// RequireAnyRole enforces role-based access control with multiple allowed roles
func (m *AuthMiddleware) RequireAnyRole(allowedRoles []string, next http.HandlerFunc) http.HandlerFunc {
	return m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		role, ok := GetRole(r.Context())
		if !ok {
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if !slices.Contains(allowedRoles, role) {
			m.logger.Info().Strs("allowed", allowedRoles).Str("role", role).Msg("role mismatch")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		next(w, r)
	})
}

// RequireRole only allows access if user has the required role
func (m *AuthMiddleware) RequireRole(requiredRole string, next http.HandlerFunc) http.HandlerFunc {
	return m.RequireAnyRole([]string{requiredRole}, next)
}

// startJanitor periodically cleans up expired cache entries
func (m *AuthMiddleware) startJanitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now().Unix()
			deleted := 0
			m.cache.Range(func(key, value interface{}) bool {
				if entry, ok := value.(cacheEntry); ok && now >= entry.exp {
					m.cache.Delete(key)
					deleted++
				}
				return true
			})
			if deleted > 0 {
				m.logger.Debug().Int("purged", deleted).Msg("token cache janitor purged expired entries")
			}
		case <-m.janitorStop:
			return
		}
	}
}

// Stop stops the background janitor (for graceful shutdown)
func (m *AuthMiddleware) Stop() {
	m.stopOnce.Do(func() { close(m.janitorStop) })
}

// GetUserID extracts user ID from request context
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// GetRole extracts role from request context
func GetRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(RoleKey).(string)
	return role, ok
}

// GetFarmID extracts the caller's farm from request context
func GetFarmID(ctx context.Context) (uuid.UUID, bool) {
	farmID, ok := ctx.Value(FarmIDKey).(uuid.UUID)
	return farmID, ok && farmID != uuid.Nil
}

// GetToken extracts token string from request context
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// IsAdmin checks if the user in context is an ADMIN
func IsAdmin(ctx context.Context) bool {
	role, ok := GetRole(ctx)
	return ok && role == RoleAdmin
}
