package api

import (
	"errors"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad authorization header")
)

const tokenTTL = 24 * time.Hour

// Auth issues and validates the JWTs carrying the actor identity. Tokens
// issued by this service are HS256 over a shared secret. When no secret is
// configured, validation falls back to RS256 against the provided JWKS so an
// external identity provider can be used instead.
type Auth struct {
	secret   []byte
	jwks     *keyfunc.JWKS
	audience string
	issuer   string

	hsParser *jwt.Parser
	rsParser *jwt.Parser
}

// NewAuth creates a new Auth instance.
func NewAuth(secret []byte, jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	if len(secret) == 0 && jwks == nil {
		panic("api.NewAuth: a shared secret or a JWKS is required")
	}
	return &Auth{
		secret:   secret,
		jwks:     jwks,
		audience: audience,
		issuer:   issuer,
		hsParser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
		rsParser: jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
	}
}

// Issue signs a token for the given user id.
func (a *Auth) Issue(userID string) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("token issuance requires a shared secret")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	}
	if a.issuer != "" {
		claims["iss"] = a.issuer
	}
	if a.audience != "" {
		claims["aud"] = a.audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// UserIDFromAuthHeader extracts the actor id from an Authorization header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", errMissingAuthorization
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errBadAuthorization
	}
	return a.userIDFromToken(parts[1])
}

func (a *Auth) userIDFromToken(token string) (string, error) {
	var parsed *jwt.Token
	var err error
	if len(a.secret) > 0 {
		parsed, err = a.hsParser.Parse(token, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.secret, nil
		})
	} else {
		parsed, err = a.rsParser.Parse(token, a.jwks.Keyfunc)
	}
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return "", errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return "", errors.New("token used before issued")
	}
	if a.audience != "" && !claims.VerifyAudience(a.audience, false) {
		return "", errors.New("invalid audience")
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, false) {
		return "", errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}
