package http

import (
	"net/http"

	"fincon/internal/auth"
	"fincon/internal/core"
	"fincon/internal/ledger"
	applog "fincon/internal/log"
)

func (s *Server) summary(r *http.Request, id auth.Identity) (ledger.Summary, error) {
	snap, err := s.ledger.ForIdentity(id).Snapshot(r.Context())
	if err != nil {
		return ledger.Summary{}, err
	}
	return ledger.Summary{Snapshot: snap, Totals: core.Aggregate(snap.Transactions)}, nil
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	sum, err := s.summary(r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(newSnapshotView(sum)).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	sum, err := s.summary(r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(newTotalsView(sum.Totals)).Write(w)
}

// handleCreateTransaction acknowledges the write. The new row reaches the
// client through the next snapshot, never through this response.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	description := p.Get("description")
	if description == "" {
		writeError(w, r, core.ErrEmptyDescription)
		return
	}
	typ, err := core.ParseTransactionType(p.Get("type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	amount := p.Get("amount")

	if err := s.ledger.ForIdentity(id).Add(r.Context(), description, amount, typ); err != nil {
		writeError(w, r, err)
		return
	}
	applog.NewStructuredLogger(applog.FromContext(r.Context())).
		LogTransaction(r.Context(), applog.OpCreate, id.ID, "", typ.String(), core.FormatAmount(core.ParseAmount(amount)))
	NewResponse().Status(http.StatusAccepted).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	description := p.Get("description")
	if description == "" {
		writeError(w, r, core.ErrEmptyDescription)
		return
	}

	txID := r.PathValue("id")
	if err := s.ledger.ForIdentity(id).Update(r.Context(), txID, description, p.Get("amount")); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusAccepted).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	if err := s.ledger.ForIdentity(id).Remove(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}
