package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Authenticator resolves the caller of a request.
type Authenticator interface {
	UserIDFromRequest(*http.Request) (string, error)
}

// Auth validates HS256 tokens signed with the board owner's secret.
type Auth struct {
	Secret []byte
	// Leeway is the clock skew tolerated on exp, nbf and iat.
	Leeway time.Duration

	parser *jwt.Parser
	now    func() time.Time
}

// NewAuth returns nil when secret is empty, which disables the guard.
func NewAuth(secret string) *Auth {
	if secret == "" {
		return nil
	}
	return &Auth{
		Secret: []byte(secret),
		Leeway: time.Minute,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation()),
		now:    time.Now,
	}
}

// UserIDFromRequest validates the token presented with r and returns its
// subject.
func (a *Auth) UserIDFromRequest(r *http.Request) (string, error) {
	token, err := tokenFromRequest(r)
	if err != nil {
		return "", err
	}
	return a.UserIDFromBearer(token)
}

// UserIDFromBearer validates a raw token and returns its subject.
func (a *Auth) UserIDFromBearer(token []byte) (string, error) {
	if len(token) == 0 {
		return "", errBadAuthorization
	}
	parsed, err := a.parser.Parse(readOnlyString(token), func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.Secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := a.now()
	if !claims.VerifyExpiresAt(now.Add(-a.Leeway).Unix(), true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now.Add(a.Leeway).Unix(), false) {
		return "", errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now.Add(a.Leeway).Unix(), false) {
		return "", errors.New("token used before issued")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}
