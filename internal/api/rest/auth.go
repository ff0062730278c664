package rest

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	domainerrors "github.com/lothammer/auction-backend/internal/domain/errors"
	"github.com/lothammer/auction-backend/internal/domain/user"
)

type identityKey struct{}

// Claims is the JWT payload. Subject carries the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator validates bearer tokens and attaches the caller identity to
// the request context.
type Authenticator struct {
	secret []byte
	expiry time.Duration
}

func NewAuthenticator(secret string, expiry time.Duration) *Authenticator {
	return &Authenticator{secret: []byte(secret), expiry: expiry}
}

// IssueToken signs a token for the identity. Used by tests and tooling; user
// accounts live in an external identity provider.
func (a *Authenticator) IssueToken(id user.Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) parse(tokenString string) (user.Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return user.Identity{}, domainerrors.NewUnauthorizedError("invalid or expired token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return user.Identity{}, domainerrors.NewUnauthorizedError("malformed token subject")
	}
	return user.Identity{UserID: userID, Role: user.Role(claims.Role)}, nil
}

// Optional attaches an identity when a bearer token is present. Missing
// tokens pass through anonymously; malformed tokens are rejected.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, nil, domainerrors.NewUnauthorizedError("authorization header must be a bearer token"))
			return
		}
		id, err := a.parse(tokenString)
		if err != nil {
			writeError(w, nil, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

func withIdentity(ctx context.Context, id user.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func identityFrom(ctx context.Context) (user.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(user.Identity)
	return id, ok
}

// requireBidder rejects anonymous callers and roles that may not bid.
func requireBidder(ctx context.Context) (user.Identity, error) {
	id, ok := identityFrom(ctx)
	if !ok {
		return user.Identity{}, domainerrors.NewUnauthorizedError("authentication required")
	}
	if !id.Role.CanBid() {
		return user.Identity{}, domainerrors.NewForbiddenError("role may not place bids")
	}
	return id, nil
}

// requireStaff rejects callers without an operator role.
func requireStaff(ctx context.Context) (user.Identity, error) {
	id, ok := identityFrom(ctx)
	if !ok {
		return user.Identity{}, domainerrors.NewUnauthorizedError("authentication required")
	}
	if !id.Role.IsStaff() {
		return user.Identity{}, domainerrors.NewForbiddenError("staff role required")
	}
	return id, nil
}
