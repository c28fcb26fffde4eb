package auth

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrEmailInUse         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownAccount     = errors.New("unknown account")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

type (
	// Identity is the authenticated principal. The zero value is "nobody".
	Identity struct {
		ID    string
		Email string
	}

	Account struct {
		ID           string
		Email        string
		PasswordHash string
		CreatedAt    time.Time
	}

	Session struct {
		Token     string
		Identity  Identity
		ExpiresAt time.Time
	}
)

// Authenticated reports whether the identity refers to a signed-in user.
func (i Identity) Authenticated() bool {
	return i.ID != ""
}

// Ports for outbound adapters.
type (
	// AccountStore persists credentials. Emails are stored normalized.
	AccountStore interface {
		// CreateAccount returns ErrEmailInUse if the email is taken.
		CreateAccount(ctx context.Context, a Account) error
		// FindAccountByEmail returns ErrUnknownAccount when absent.
		FindAccountByEmail(ctx context.Context, email string) (Account, error)
		FindAccount(ctx context.Context, id string) (Account, error)
		UpdatePassword(ctx context.Context, id, passwordHash string) error
		DeleteAccount(ctx context.Context, id string) error
	}

	// Mailer delivers password reset tokens.
	Mailer interface {
		SendPasswordReset(ctx context.Context, email, token string) error
	}
)

// Provider is the identity provider the rest of the system calls into.
type Provider interface {
	Signup(ctx context.Context, email, password string) (Session, error)
	Login(ctx context.Context, email, password string) (Session, error)
	ResetPassword(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, password string) error
	Logout(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (Identity, error)
	Delete(ctx context.Context, id Identity) error
}
