package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Principal is the caller named by a bearer token.
type Principal struct {
	ID       string
	TenantID string
	Role     string
}

type principalClaims struct {
	jwt.RegisteredClaims
	Role     string `json:"role"`
	TenantID string `json:"tid"`
}

var errUnauthorized = errors.New("unauthorized")

// tokenVerifier checks HS256 bearer tokens signed with a shared secret.
type tokenVerifier struct {
	secret []byte
	now    func() time.Time
}

func newTokenVerifier(secret string) (*tokenVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("server: auth.jwt_secret is required")
	}
	return &tokenVerifier{secret: []byte(secret), now: time.Now}, nil
}

func (v *tokenVerifier) Verify(raw string) (Principal, error) {
	claims := &principalClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Principal{}, errUnauthorized
	}
	sub := strings.TrimSpace(claims.Subject)
	tid := strings.TrimSpace(claims.TenantID)
	if sub == "" || tid == "" {
		return Principal{}, errUnauthorized
	}
	return Principal{ID: sub, TenantID: tid, Role: strings.ToLower(strings.TrimSpace(claims.Role))}, nil
}

// SignToken issues an HS256 bearer token for p.
func SignToken(secret string, p Principal, issuedAt time.Time, ttl time.Duration) (string, error) {
	claims := principalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
		Role:     p.Role,
		TenantID: p.TenantID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bearerToken(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(raw, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
