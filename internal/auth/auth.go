// Package auth turns connection credentials into a verified player identity.
package auth

import (
	"context"
	"strings"

	"realmsync.io/internal/model"
)

// Credentials is what a client presents in its auth message.
type Credentials struct {
	Token    string
	Username string
	Password string
}

// Verifier checks credentials. It returns a *model.Error of kind auth when
// the credentials are rejected, and errNotApplicable when it does not handle
// that credential shape.
type Verifier interface {
	Verify(ctx context.Context, c Credentials) (model.Identity, error)
}

var errNotApplicable = model.AuthError("credentials not supported")

// Chain tries each verifier in order until one accepts or rejects.
type Chain []Verifier

func (ch Chain) Verify(ctx context.Context, c Credentials) (model.Identity, error) {
	for _, v := range ch {
		if v == nil {
			continue
		}
		id, err := v.Verify(ctx, c)
		if err == errNotApplicable {
			continue
		}
		return id, err
	}
	return model.Identity{}, model.AuthError("no credentials")
}

// ValidateUsername enforces the display name rules shared by every verifier.
func ValidateUsername(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", model.AuthError("username is required")
	}
	if len(name) > 32 {
		return "", model.AuthError("username too long")
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return "", model.AuthError("username has control characters")
		}
	}
	return name, nil
}
