package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"realmsync.io/internal/model"
)

// TokenConfig defines how identity tokens are verified and minted.
type TokenConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	Now      func() time.Time
}

type playerClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name"`
}

// TokenVerifier accepts HS256 JWTs whose subject is the player id.
type TokenVerifier struct {
	cfg TokenConfig
}

func NewTokenVerifier(cfg TokenConfig) (*TokenVerifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenVerifier{cfg: cfg}, nil
}

func (v *TokenVerifier) Verify(ctx context.Context, c Credentials) (model.Identity, error) {
	token := strings.TrimSpace(c.Token)
	if token == "" {
		return model.Identity{}, errNotApplicable
	}

	var parsed playerClaims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.cfg.Now),
		jwt.WithExpirationRequired(),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return v.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return model.Identity{}, mapJWTError(err)
	}

	if strings.TrimSpace(parsed.Subject) == "" {
		return model.Identity{}, model.AuthError("token subject is required")
	}
	name := parsed.Name
	if name == "" {
		name = parsed.Subject
	}
	name, err = ValidateUsername(name)
	if err != nil {
		return model.Identity{}, err
	}
	return model.Identity{PlayerID: parsed.Subject, Username: name}, nil
}

// Mint signs a token for id valid for ttl.
func Mint(cfg TokenConfig, id model.Identity, ttl time.Duration) (string, error) {
	if len(cfg.Secret) == 0 {
		return "", errors.New("token secret is required")
	}
	if id.PlayerID == "" {
		return "", errors.New("player id is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive, got %s", ttl)
	}
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}
	at := now().UTC()
	claims := playerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.PlayerID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(at),
			ExpiresAt: jwt.NewNumericDate(at.Add(ttl)),
		},
		Name: id.Username,
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
}

// mapJWTError translates jwt library errors to auth errors.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return model.AuthError("token signature is invalid")
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return model.AuthError("token alg is invalid")
	case errors.Is(err, jwt.ErrTokenExpired):
		return model.AuthError("token is expired")
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return model.AuthError("token not active yet")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return model.AuthError("token issuer mismatch")
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return model.AuthError("token audience mismatch")
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return model.AuthError("token exp is required")
	}
	return model.AuthError("token is invalid")
}
