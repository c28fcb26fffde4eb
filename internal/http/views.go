package http

import (
	"time"

	"fincon/internal/auth"
	"fincon/internal/core"
	"fincon/internal/docstore"
	"fincon/internal/ledger"
)

// Wire representations. Amounts are decimal strings with two places so
// clients never round through floats.
type (
	identityView struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}

	sessionView struct {
		Token     string       `json:"token"`
		Identity  identityView `json:"identity"`
		ExpiresAt time.Time    `json:"expires_at"`
	}

	transactionView struct {
		ID          string    `json:"id"`
		Description string    `json:"description"`
		Amount      string    `json:"amount"`
		Signed      string    `json:"signed_amount"`
		Type        string    `json:"type"`
		Date        time.Time `json:"date"`
	}

	totalsView struct {
		TotalIncome   string `json:"total_income"`
		TotalExpenses string `json:"total_expenses"`
		Balance       string `json:"balance"`
	}

	snapshotView struct {
		Transactions []transactionView `json:"transactions"`
		Totals       totalsView        `json:"totals"`
	}

	profileView struct {
		ID          string     `json:"id"`
		Email       string     `json:"email"`
		DisplayName string     `json:"display_name"`
		CreatedAt   *time.Time `json:"created_at,omitempty"`
	}
)

func newIdentityView(id auth.Identity) identityView {
	return identityView{ID: id.ID, Email: id.Email}
}

func newSessionView(s auth.Session) sessionView {
	return sessionView{Token: s.Token, Identity: newIdentityView(s.Identity), ExpiresAt: s.ExpiresAt.UTC()}
}

func newTotalsView(t core.Totals) totalsView {
	return totalsView{
		TotalIncome:   core.FormatAmount(t.TotalIncome),
		TotalExpenses: core.FormatAmount(t.TotalExpenses),
		Balance:       core.FormatAmount(t.Balance),
	}
}

func newSnapshotView(sum ledger.Summary) snapshotView {
	txs := make([]transactionView, 0, len(sum.Transactions))
	for _, t := range sum.Transactions {
		txs = append(txs, transactionView{
			ID:          t.ID,
			Description: t.Description,
			Amount:      core.FormatAmount(t.Amount),
			Signed:      core.FormatSigned(t),
			Type:        t.Type.String(),
			Date:        t.Date.UTC(),
		})
	}
	return snapshotView{Transactions: txs, Totals: newTotalsView(sum.Totals)}
}

func newProfileView(p docstore.Profile) profileView {
	v := profileView{ID: p.ID, Email: p.Email, DisplayName: p.DisplayName}
	if !p.CreatedAt.IsZero() {
		created := p.CreatedAt.UTC()
		v.CreatedAt = &created
	}
	return v
}
