package httpapi

import (
	"context"
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"sodaledger/backend/internal/cache"
	"sodaledger/backend/internal/domain"
)

const tokenIssuer = "sodaledger"

var (
	errInvalidToken = errors.New("invalid or expired token")
	errRevokedToken = errors.New("token has been revoked")
)

// AuthManager signs and verifies access tokens. Credentials are checked by
// the service; this type only deals with the resulting session.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	denylist cache.TokenDenylist
	now      func() time.Time
}

// Session is the verified content of an access token.
type Session struct {
	Actor     domain.Actor
	TokenID   string
	ExpiresAt time.Time
}

type sessionClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, denylist cache.TokenDenylist) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	if denylist == nil {
		denylist = cache.NewMemoryTokenDenylist()
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		denylist: denylist,
		now:      time.Now,
	}
}

func (a *AuthManager) Issue(actor domain.Actor) (domain.LoginResponse, error) {
	now := a.now().UTC()
	expiresAt := now.Add(a.tokenTTL)
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   actor.Username,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Role: actor.Role,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Username:    actor.Username,
		Role:        actor.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(ctx context.Context, tokenStr string) (Session, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	},
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid {
		return Session{}, errInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" || claims.ID == "" || claims.ExpiresAt == nil {
		return Session{}, errInvalidToken
	}
	if claims.Role != domain.RoleAdmin && claims.Role != domain.RoleStaff {
		return Session{}, errInvalidToken
	}

	revoked, err := a.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, errRevokedToken
	}

	return Session{
		Actor:     domain.Actor{Username: sub, Role: claims.Role},
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Revoke denies the session's token for the rest of its lifetime.
func (a *AuthManager) Revoke(ctx context.Context, session Session) error {
	ttl := session.ExpiresAt.Sub(a.now())
	if ttl <= 0 {
		return nil
	}
	return a.denylist.Revoke(ctx, session.TokenID, ttl)
}

type sessionContextKey struct{}

func withSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

func sessionFromContext(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(Session)
	return session, ok
}
