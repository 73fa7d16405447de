package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "Bearer "

// ErrNoToken is returned when a request carries no bearer token.
var ErrNoToken = errors.New("no token")

// Validator checks JWTs against a JWKS endpoint.
type Validator struct {
	issuer  string
	keyfunc jwt.Keyfunc
	methods []string
}

// NewValidator builds a validator for an auth provider at baseURL. Keys are
// fetched from <baseURL>/.well-known/jwks.json and refreshed in the background.
func NewValidator(baseURL string) (*Validator, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("AUTH_BASE_URL is not set")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	jwks, err := keyfunc.NewDefault([]string{strings.TrimRight(baseURL, "/") + "/.well-known/jwks.json"})
	if err != nil {
		return nil, err
	}
	return &Validator{
		issuer:  u.Scheme + "://" + u.Host,
		keyfunc: jwks.Keyfunc,
		methods: []string{"EdDSA", "RS256", "ES256"},
	}, nil
}

// Validate parses tokenString and returns its claims if the signature,
// issuer and expiry check out.
func (v *Validator) Validate(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, v.keyfunc,
		jwt.WithIssuer(v.issuer),
		jwt.WithValidMethods(v.methods))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// TokenFromRequest returns the bearer token from the Authorization header,
// or from the "token" query parameter for browser websocket handshakes.
func TokenFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		if tok := strings.TrimSpace(h[len(bearerPrefix):]); tok != "" {
			return tok, nil
		}
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok, nil
	}
	return "", ErrNoToken
}

// FirstNameFromClaims returns the first word of the "name" claim, or a fallback.
func FirstNameFromClaims(claims jwt.MapClaims) string {
	name, _ := claims["name"].(string)
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "玩家"
	}
	return parts[0]
}

// UserIDFromClaims returns the user id from claims ("sub" or "id").
func UserIDFromClaims(claims jwt.MapClaims) string {
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub
	}
	if id, ok := claims["id"].(string); ok && id != "" {
		return id
	}
	return ""
}
