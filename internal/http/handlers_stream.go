package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fincon/internal/auth"
	"fincon/internal/ledger"
	applog "fincon/internal/log"
)

// handleStream serves the caller's snapshots as server-sent events: one
// "snapshot" event on connect and one after every change.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	ctx := r.Context()
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	snaps, stop := s.ledger.ForIdentity(id).Subscribe(ctx)
	defer stop()
	sums := ledger.Summarize(ctx, snaps)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Streaming unsupported", applog.FieldError, err)
		return
	}

	logger := applog.FromContext(ctx)
	logger.DebugContext(ctx, "Stream opened", applog.FieldOperation, applog.OpSubscribe)
	defer logger.DebugContext(ctx, "Stream closed", applog.FieldOperation, applog.OpSubscribe)

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case sum, ok := <-sums:
			if !ok {
				return
			}
			seq++
			if err := writeEvent(w, "snapshot", seq, newSnapshotView(sum)); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, id uint64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", event, id, data)
	return err
}
