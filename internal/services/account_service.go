package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fincon/internal/amqp"
	"fincon/internal/auth"
	"fincon/internal/docstore"
	"fincon/internal/ledger"
)

// ErrDeleteAccount wraps every account deletion failure. The message names
// the step that failed; steps completed before it are not undone.
var ErrDeleteAccount = errors.New("account deletion failed")

// Deletion steps, in execution order.
const (
	StepTransactions = "transactions"
	StepProfile      = "profile"
	StepIdentity     = "identity"
)

// Notifier wakes live subscriptions of a user.
type Notifier interface {
	Touch(userID string)
}

// AccountService orchestrates profile reads and account deletion across
// the document store, the identity provider and the change bus.
type AccountService struct {
	transactions docstore.TransactionDeleter
	profiles     docstore.ProfileStore
	identity     auth.Provider
	publisher    ledger.Publisher
	notifier     Notifier
	now          func() time.Time
}

// NewAccountService wires the service. publisher and notifier may be nil.
func NewAccountService(txs docstore.TransactionDeleter, profiles docstore.ProfileStore, identity auth.Provider, publisher ledger.Publisher, notifier Notifier) *AccountService {
	return &AccountService{
		transactions: txs,
		profiles:     profiles,
		identity:     identity,
		publisher:    publisher,
		notifier:     notifier,
		now:          time.Now,
	}
}

// DefaultDisplayName is the local part of the email address.
func DefaultDisplayName(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}

// EnsureProfile creates the profile record for a new account if missing.
func (s *AccountService) EnsureProfile(ctx context.Context, id auth.Identity) (docstore.Profile, error) {
	p, err := s.profiles.GetProfile(ctx, id.ID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return docstore.Profile{}, fmt.Errorf("get profile: %w", err)
	}

	p = docstore.Profile{
		ID:          id.ID,
		Email:       id.Email,
		DisplayName: DefaultDisplayName(id.Email),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.profiles.SaveProfile(ctx, p); err != nil {
		return docstore.Profile{}, fmt.Errorf("save profile: %w", err)
	}
	return p, nil
}

// Profile returns the stored profile, or one derived from the identity when
// none was saved.
func (s *AccountService) Profile(ctx context.Context, id auth.Identity) (docstore.Profile, error) {
	p, err := s.profiles.GetProfile(ctx, id.ID)
	if errors.Is(err, docstore.ErrNotFound) {
		return docstore.Profile{
			ID:          id.ID,
			Email:       id.Email,
			DisplayName: DefaultDisplayName(id.Email),
		}, nil
	}
	if err != nil {
		return docstore.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// DeleteAccount removes the user's transactions, profile and identity, in
// that order, stopping at the first failure.
func (s *AccountService) DeleteAccount(ctx context.Context, id auth.Identity) error {
	if !id.Authenticated() {
		return fmt.Errorf("%w: %w", ErrDeleteAccount, auth.ErrUnknownAccount)
	}

	n, err := s.transactions.DeleteAll(ctx, id.ID)
	if err != nil {
		return s.stepFailed(ctx, id, StepTransactions, err)
	}
	if s.notifier != nil {
		s.notifier.Touch(id.ID)
	}
	if err := s.profiles.DeleteProfile(ctx, id.ID); err != nil {
		return s.stepFailed(ctx, id, StepProfile, err)
	}
	if err := s.identity.Delete(ctx, id); err != nil {
		return s.stepFailed(ctx, id, StepIdentity, err)
	}

	slog.InfoContext(ctx, "Account deleted",
		"user_id", id.ID,
		"transactions", n)

	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping account deletion message")
		return nil
	}
	msg := amqp.NewChangeMessage(id.ID, amqp.ChangeAccountDeleted, "")
	if err := s.publisher.PublishChange(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish account deletion message",
			"user_id", id.ID, "error", err)
		// Don't fail the request - the account is already deleted
	}
	return nil
}

func (s *AccountService) stepFailed(ctx context.Context, id auth.Identity, step string, err error) error {
	slog.ErrorContext(ctx, "Account deletion step failed",
		"user_id", id.ID,
		"step", step,
		"error", err)
	return fmt.Errorf("%w: delete %s: %w", ErrDeleteAccount, step, err)
}
