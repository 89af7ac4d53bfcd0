package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hlop3z/tilehouse/internal/alerr"
)

// HMAC algorithms accepted when no algorithm is pinned.
var hmacAlgorithms = []string{"HS256", "HS384", "HS512"}

// JWTConfig configures HMAC-signed JWT validation.
type JWTConfig struct {
	Secret    string // shared HMAC secret
	Algorithm string // pinned algorithm; empty accepts the token header's HS* alg
	CheckExp  bool   // require the exp claim; a present exp is always enforced
}

// JWT validates HMAC-signed tokens.
type JWT struct {
	secret []byte
	opts   []jwt.ParserOption
}

// NewJWT builds a JWT authenticator. The secret is required and a pinned
// algorithm must be one of HS256, HS384 or HS512.
func NewJWT(cfg JWTConfig) (*JWT, error) {
	if cfg.Secret == "" {
		return nil, alerr.New(alerr.ErrConfig, "jwt secret is required")
	}

	methods := hmacAlgorithms
	if cfg.Algorithm != "" {
		if !isHMAC(cfg.Algorithm) {
			return nil, alerr.Newf(alerr.ErrConfig, "unsupported jwt algorithm %q", cfg.Algorithm).
				With("supported", hmacAlgorithms)
		}
		methods = []string{cfg.Algorithm}
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods(methods)}
	if cfg.CheckExp {
		opts = append(opts, jwt.WithExpirationRequired())
	}

	return &JWT{secret: []byte(cfg.Secret), opts: opts}, nil
}

// Authenticate implements Authenticator. The identity is the sub claim, or
// "anonymous" when the token has none.
func (j *JWT) Authenticate(_ context.Context, token string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}, j.opts...)
	if err != nil {
		return "", alerr.Wrap(alerr.ErrUnauthorized, err, "invalid bearer token")
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		sub = "anonymous"
	}
	return sub, nil
}

func isHMAC(alg string) bool {
	for _, a := range hmacAlgorithms {
		if a == alg {
			return true
		}
	}
	return false
}
