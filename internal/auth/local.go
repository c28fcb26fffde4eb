package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"fincon/internal/cache"
)

const minPasswordLength = 6

// LocalConfig configures the built-in identity provider.
type LocalConfig struct {
	Secret     []byte
	Issuer     string
	SessionTTL time.Duration
	ResetTTL   time.Duration
	BcryptCost int
	// MaxTokens bounds the revocation and reset-token caches.
	MaxTokens int
}

// Local is a self-contained Provider: accounts live in an AccountStore,
// sessions are signed JWTs and revoked sessions are remembered until they
// would have expired anyway.
type Local struct {
	accounts AccountStore
	mailer   Mailer
	cfg      LocalConfig
	revoked  *cache.LRUCache[struct{}]
	resets   *cache.LRUCache[string]
	now      func() time.Time
}

var _ Provider = (*Local)(nil)

func NewLocal(accounts AccountStore, mailer Mailer, cfg LocalConfig) *Local {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = 30 * time.Minute
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 10000
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "fincon"
	}
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Local{
		accounts: accounts,
		mailer:   mailer,
		cfg:      cfg,
		revoked:  cache.NewLRUCache[struct{}](cfg.MaxTokens, cfg.SessionTTL),
		resets:   cache.NewLRUCache[string](cfg.MaxTokens, cfg.ResetTTL),
		now:      time.Now,
	}
}

// Caches exposes the token caches so a cache.Manager can sweep them.
func (l *Local) Caches() []cache.Cleaner {
	return []cache.Cleaner{l.revoked, l.resets}
}

// NormalizeEmail lowercases and trims an address so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) (string, error) {
	email = NormalizeEmail(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (l *Local) Signup(ctx context.Context, email, password string) (Session, error) {
	email, err := validateEmail(email)
	if err != nil {
		return Session{}, err
	}
	if len(password) < minPasswordLength {
		return Session{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cfg.BcryptCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	acc := Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    l.now().UTC(),
	}
	if err := l.accounts.CreateAccount(ctx, acc); err != nil {
		return Session{}, err
	}

	slog.InfoContext(ctx, "Account created", "user_id", acc.ID)
	return l.issue(Identity{ID: acc.ID, Email: acc.Email})
}

func (l *Local) Login(ctx context.Context, email, password string) (Session, error) {
	email, err := validateEmail(email)
	if err != nil {
		return Session{}, err
	}
	acc, err := l.accounts.FindAccountByEmail(ctx, email)
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return l.issue(Identity{ID: acc.ID, Email: acc.Email})
}

// ResetPassword mails a single-use token to the account owner.
func (l *Local) ResetPassword(ctx context.Context, email string) error {
	email, err := validateEmail(email)
	if err != nil {
		return err
	}
	acc, err := l.accounts.FindAccountByEmail(ctx, email)
	if err != nil {
		return err
	}

	token, err := randomToken()
	if err != nil {
		return err
	}
	l.resets.Set(token, acc.ID)
	if err := l.mailer.SendPasswordReset(ctx, acc.Email, token); err != nil {
		l.resets.Delete(token)
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

func (l *Local) ConfirmPasswordReset(ctx context.Context, token, password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	id, ok := l.resets.Take(token)
	if !ok {
		return ErrInvalidToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return l.accounts.UpdatePassword(ctx, id, string(hash))
}

// Logout revokes the session token. Unknown or expired tokens are ignored.
func (l *Local) Logout(_ context.Context, token string) error {
	claims, err := l.parse(token)
	if err != nil {
		return nil
	}
	if jti, _ := claims["jti"].(string); jti != "" {
		l.revoked.Set(jti, struct{}{})
	}
	return nil
}

// Authenticate resolves a session token. Sessions of a deleted account are
// rejected even if they were never logged out.
func (l *Local) Authenticate(ctx context.Context, token string) (Identity, error) {
	claims, err := l.parse(token)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	jti, _ := claims["jti"].(string)
	if _, revoked := l.revoked.Get(jti); revoked {
		return Identity{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	if sub == "" {
		return Identity{}, ErrInvalidToken
	}
	if _, err := l.accounts.FindAccount(ctx, sub); err != nil {
		if errors.Is(err, ErrUnknownAccount) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, fmt.Errorf("find account: %w", err)
	}
	return Identity{ID: sub, Email: email}, nil
}

func (l *Local) Delete(ctx context.Context, id Identity) error {
	if !id.Authenticated() {
		return ErrUnknownAccount
	}
	return l.accounts.DeleteAccount(ctx, id.ID)
}

func (l *Local) issue(id Identity) (Session, error) {
	expiresAt := l.now().Add(l.cfg.SessionTTL)
	claims := jwt.MapClaims{
		"sub":   id.ID,
		"email": id.Email,
		"jti":   uuid.NewString(),
		"iss":   l.cfg.Issuer,
		"exp":   expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(l.cfg.Secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: signed, Identity: id, ExpiresAt: expiresAt}, nil
}

func (l *Local) parse(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return l.cfg.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if !claims.VerifyIssuer(l.cfg.Issuer, true) {
		return nil, errors.New("unexpected issuer")
	}
	return claims, nil
}

func randomToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// LogMailer writes reset tokens to the log instead of sending mail.
// Useful in development; production deployments plug in a real Mailer.
type LogMailer struct{}

func (LogMailer) SendPasswordReset(ctx context.Context, email, token string) error {
	slog.InfoContext(ctx, "Password reset requested", "email", email, "reset_token", token)
	return nil
}
