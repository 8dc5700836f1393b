package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"realmsync.io/internal/model"
)

// AccountStore is the slice of store.Store the password verifier needs.
type AccountStore interface {
	SaveAccount(ctx context.Context, acc model.Account) error
	AccountByUsername(ctx context.Context, username string) (model.Account, error)
}

const minPasswordLen = 6

// PasswordVerifier checks username/password pairs against local accounts.
type PasswordVerifier struct {
	accounts AccountStore
}

func NewPasswordVerifier(accounts AccountStore) *PasswordVerifier {
	return &PasswordVerifier{accounts: accounts}
}

func (v *PasswordVerifier) Verify(ctx context.Context, c Credentials) (model.Identity, error) {
	if strings.TrimSpace(c.Username) == "" && c.Password == "" {
		return model.Identity{}, errNotApplicable
	}
	if c.Password == "" {
		return model.Identity{}, model.AuthError("password is required")
	}
	acc, err := v.accounts.AccountByUsername(ctx, strings.TrimSpace(c.Username))
	if err != nil {
		if errors.Is(err, model.ErrPlayerNotFound) {
			return model.Identity{}, model.AuthError("invalid username or password")
		}
		return model.Identity{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(c.Password)); err != nil {
		return model.Identity{}, model.AuthError("invalid username or password")
	}
	return model.Identity{PlayerID: acc.PlayerID, Username: acc.Username}, nil
}

// Register creates a local account with a fresh player id.
func Register(ctx context.Context, accounts AccountStore, username, password string) (model.Account, error) {
	name, err := ValidateUsername(username)
	if err != nil {
		return model.Account{}, err
	}
	if len(password) < minPasswordLen {
		return model.Account{}, model.ValidationError("password must be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.Account{}, err
	}
	acc := model.Account{
		PlayerID:     uuid.NewString(),
		Username:     name,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := accounts.SaveAccount(ctx, acc); err != nil {
		return model.Account{}, err
	}
	return acc, nil
}
