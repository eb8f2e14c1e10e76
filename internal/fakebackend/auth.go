package fakebackend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nikolayk812/storefront-checkout/internal/domain"
)

type identityKey struct{}

// Authenticator accepts opaque tokens registered up front and HS256 JWTs
// it issued itself.
type Authenticator struct {
	secret []byte

	mu     sync.RWMutex
	tokens map[domain.Credential]domain.Identity
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		tokens: map[domain.Credential]domain.Identity{},
	}
}

func (a *Authenticator) Register(identity domain.Identity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens[identity.Token] = identity
}

func (a *Authenticator) Revoke(token domain.Credential) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.tokens, token)
}

// IssueToken signs a JWT for the identity, valid for ttl.
func (a *Authenticator) IssueToken(identity domain.Identity, ttl time.Duration) (domain.Credential, error) {
	claims := jwt.MapClaims{
		"sub":      strconv.FormatInt(identity.UserID, 10),
		"username": identity.Username,
		"role":     identity.Role,
		"exp":      time.Now().Add(ttl).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("token.SignedString: %w", err)
	}
	return domain.Credential(signed), nil
}

// Authenticate resolves an Authorization header value.
func (a *Authenticator) Authenticate(header string) (domain.Identity, error) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || (!strings.EqualFold(scheme, "Token") && !strings.EqualFold(scheme, "Bearer")) {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	token := domain.Credential(strings.TrimSpace(raw))

	a.mu.RLock()
	identity, ok := a.tokens[token]
	a.mu.RUnlock()
	if ok {
		return identity, nil
	}

	parsed, err := jwt.Parse(string(token), func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return domain.Identity{}, domain.ErrUnauthenticated
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Identity{}, domain.ErrUnauthenticated
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID == 0 {
		return domain.Identity{}, domain.ErrUnauthenticated
	}

	username, _ := claims["username"].(string)
	role, _ := claims["role"].(string)

	return domain.Identity{UserID: userID, Username: username, Token: token, Role: role}, nil
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.Authenticate(r.Header.Get("Authorization"))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "authentication credentials were not provided or are invalid")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminOnly rejects non-admin identities with 403.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := IdentityFromContext(r.Context())
		if err != nil || !identity.IsAdmin() {
			respondError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func IdentityFromContext(ctx context.Context) (domain.Identity, error) {
	identity, ok := ctx.Value(identityKey{}).(domain.Identity)
	if !ok {
		return domain.Identity{}, errors.New("no identity in context")
	}
	return identity, nil
}
