package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fincon/internal/auth"
	"fincon/internal/core"
	"fincon/internal/docstore"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "fincon.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fincon.db")
	for i := 0; i < 2; i++ {
		repo, err := NewSQLiteRepository(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i, err)
		}
		if err := repo.Ping(context.Background()); err != nil {
			t.Fatalf("ping: %v", err)
		}
		repo.Close()
	}
}

func TestTransactionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	frozen := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return frozen }

	salary, err := repo.Create(ctx, "u1", core.NewTransaction{Description: "Salary", Amount: decimal.RequireFromString("1000.10"), Type: core.Income})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	rent, err := repo.Create(ctx, "u1", core.NewTransaction{Description: "Rent", Amount: decimal.RequireFromString("0.1"), Type: core.Expense})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Create(ctx, "u2", core.NewTransaction{Description: "Other", Amount: decimal.NewFromInt(1), Type: core.Expense}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != rent.ID || got[1].ID != salary.ID {
		t.Fatalf("unexpected order: %+v", got)
	}
	if !got[1].Amount.Equal(decimal.RequireFromString("1000.1")) || got[1].Type != core.Income {
		t.Fatalf("salary round-trip: %+v", got[1])
	}
	if !got[1].Date.Equal(salary.Date) {
		t.Fatalf("date round-trip: got %v want %v", got[1].Date, salary.Date)
	}

	totals := core.Aggregate(got)
	if !totals.Balance.Equal(decimal.RequireFromString("1000")) {
		t.Fatalf("balance = %s", totals.Balance)
	}
}

func TestListEmptyIsNotNil(t *testing.T) {
	got, err := newTestRepo(t).List(context.Background(), "nobody")
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("List() = %v, %v", got, err)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	tx, _ := repo.Create(ctx, "u1", core.NewTransaction{Description: "Lunch", Amount: decimal.NewFromInt(12), Type: core.Expense})

	if err := repo.Update(ctx, "u2", tx.ID, "x", decimal.Zero); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("foreign update: %v", err)
	}
	if err := repo.Update(ctx, "u1", tx.ID, "x", decimal.NewFromInt(-1)); !errors.Is(err, core.ErrNegativeAmount) {
		t.Fatalf("negative update: %v", err)
	}
	if err := repo.Update(ctx, "u1", tx.ID, "Dinner", decimal.NewFromInt(30)); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := repo.List(ctx, "u1")
	if got[0].Description != "Dinner" || !got[0].Amount.Equal(decimal.NewFromInt(30)) || got[0].Type != core.Expense {
		t.Fatalf("update result: %+v", got[0])
	}

	if err := repo.Delete(ctx, "u1", "missing"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	_, _ = repo.Create(ctx, "u1", core.NewTransaction{Description: "b", Amount: decimal.NewFromInt(1), Type: core.Income})
	n, err := repo.DeleteAll(ctx, "u1")
	if err != nil || n != 2 {
		t.Fatalf("DeleteAll = %d, %v", n, err)
	}
}

func TestProfiles(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if _, err := repo.GetProfile(ctx, "u1"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	p := docstore.Profile{ID: "u1", Email: "ana@example.com", DisplayName: "ana", CreatedAt: time.Now().UTC()}
	if err := repo.SaveProfile(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}
	p.DisplayName = "Ana"
	if err := repo.SaveProfile(ctx, p); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := repo.GetProfile(ctx, "u1")
	if err != nil || got.DisplayName != "Ana" {
		t.Fatalf("GetProfile = %+v, %v", got, err)
	}
	if err := repo.DeleteProfile(ctx, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetProfile(ctx, "u1"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("profile survived delete: %v", err)
	}
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	acc := auth.Account{ID: "u1", Email: "Ana@Example.com", PasswordHash: "h1", CreatedAt: time.Now()}
	if err := repo.CreateAccount(ctx, acc); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.CreateAccount(ctx, auth.Account{ID: "u2", Email: "ana@example.com", PasswordHash: "h"}); !errors.Is(err, auth.ErrEmailInUse) {
		t.Fatalf("duplicate email: %v", err)
	}

	got, err := repo.FindAccountByEmail(ctx, " ANA@example.com")
	if err != nil || got.ID != "u1" || got.Email != "ana@example.com" {
		t.Fatalf("find by email = %+v, %v", got, err)
	}
	if err := repo.UpdatePassword(ctx, "u1", "h2"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	if got, _ := repo.FindAccount(ctx, "u1"); got.PasswordHash != "h2" {
		t.Fatalf("password hash = %q", got.PasswordHash)
	}
	if err := repo.UpdatePassword(ctx, "nobody", "h"); !errors.Is(err, auth.ErrUnknownAccount) {
		t.Fatalf("update unknown: %v", err)
	}
	if err := repo.DeleteAccount(ctx, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.FindAccount(ctx, "u1"); !errors.Is(err, auth.ErrUnknownAccount) {
		t.Fatalf("account survived delete: %v", err)
	}
}
