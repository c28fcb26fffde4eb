package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fincon/internal/auth"
	"fincon/internal/core"
	"fincon/internal/docstore"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the durable document store: transactions, profiles
// and credentials in one SQLite file.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

var (
	_ docstore.Collection   = (*SQLiteRepository)(nil)
	_ docstore.ProfileStore = (*SQLiteRepository)(nil)
	_ auth.AccountStore     = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// stamp returns a strictly increasing creation time within this process.
func (r *SQLiteRepository) stamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.now().UTC()
	if !t.After(r.last) {
		t = r.last.Add(time.Nanosecond)
	}
	r.last = t
	return t
}

func (r *SQLiteRepository) Create(ctx context.Context, userID string, n core.NewTransaction) (core.Transaction, error) {
	if err := n.Validate(); err != nil {
		return core.Transaction{}, err
	}
	t := core.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Description: n.Description,
		Amount:      n.Amount,
		Type:        n.Type,
		Date:        r.stamp(),
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, description, amount, type, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Description, t.Amount.String(), string(t.Type), t.Date.UnixNano())
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"user_id", userID,
		"type", t.Type)
	return t, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, userID, id, description string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return core.ErrNegativeAmount
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET description = ?, amount = ? WHERE id = ? AND user_id = ?`,
		description, amount.String(), id, userID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, description, amount, type, created_at
		 FROM transactions WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		var (
			t       core.Transaction
			amount  string
			typ     string
			created int64
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Description, &amount, &typ, &created); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: bad amount %q: %w", t.ID, amount, err)
		}
		t.Type = core.TransactionType(typ)
		t.Date = time.Unix(0, created).UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, userID, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context, userID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	return int(n), nil
}

func (r *SQLiteRepository) SaveProfile(ctx context.Context, p docstore.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, email, display_name, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET email = excluded.email, display_name = excluded.display_name`,
		p.ID, p.Email, p.DisplayName, p.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetProfile(ctx context.Context, userID string) (docstore.Profile, error) {
	var (
		p       docstore.Profile
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, created_at FROM profiles WHERE id = ?`, userID).
		Scan(&p.ID, &p.Email, &p.DisplayName, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Profile{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	p.CreatedAt = time.Unix(0, created).UTC()
	return p, nil
}

func (r *SQLiteRepository) DeleteProfile(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a auth.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		a.ID, auth.NormalizeEmail(a.Email), a.PasswordHash, a.CreatedAt.UnixNano())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return auth.ErrEmailInUse
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) FindAccountByEmail(ctx context.Context, email string) (auth.Account, error) {
	return r.findAccount(ctx, `email = ?`, auth.NormalizeEmail(email))
}

func (r *SQLiteRepository) FindAccount(ctx context.Context, id string) (auth.Account, error) {
	return r.findAccount(ctx, `id = ?`, id)
}

func (r *SQLiteRepository) findAccount(ctx context.Context, where string, arg string) (auth.Account, error) {
	var (
		a       auth.Account
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM accounts WHERE `+where, arg).
		Scan(&a.ID, &a.Email, &a.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Account{}, auth.ErrUnknownAccount
	}
	if err != nil {
		return auth.Account{}, fmt.Errorf("get account: %w", err)
	}
	a.CreatedAt = time.Unix(0, created).UTC()
	return a, nil
}

func (r *SQLiteRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.execOne(ctx, `UPDATE accounts SET password_hash = ? WHERE id = ?`, passwordHash, id)
}

func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id string) error {
	return r.execOne(ctx, `DELETE FROM accounts WHERE id = ?`, id)
}

// execOne runs an account statement that must touch exactly one row.
func (r *SQLiteRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("account statement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("account statement: %w", err)
	}
	if n == 0 {
		return auth.ErrUnknownAccount
	}
	return nil
}
