package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/rumor-ml/commons.systems/envelopes/internal/progress"
	accountsync "github.com/rumor-ml/commons.systems/envelopes/internal/sync"
)

// SyncHandlers handles sync orchestration and the progress stream.
type SyncHandlers struct {
	orchestrator *accountsync.Orchestrator
	tracker      progress.Tracker
}

// NewSyncHandlers creates the sync handler set.
func NewSyncHandlers(o *accountsync.Orchestrator, t progress.Tracker) *SyncHandlers {
	return &SyncHandlers{orchestrator: o, tracker: t}
}

// StartCursorSync handles POST /api/sync/cursor. The sync runs in the
// background; the response carries the session ID to watch on the progress
// stream. A sync already in flight for the account answers 409.
func (h *SyncHandlers) StartCursorSync(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req struct {
		AccountID int64 `json:"accountId"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	sessionID, _, err := h.orchestrator.BeginCursorSync(uid, req.AccountID)
	if err != nil {
		h.beginError(w, uid, req.AccountID, err)
		return
	}
	log.Printf("INFO: Cursor sync session %s started for user %d account %d", sessionID, uid, req.AccountID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, `{"sessionId":%q}`, sessionID)
}

// StartBulkSync handles POST /api/sync/range. Dates are inclusive
// YYYY-MM-DD.
func (h *SyncHandlers) StartBulkSync(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req struct {
		AccountID int64  `json:"accountId"`
		StartDate string `json:"startDate"`
		EndDate   string `json:"endDate"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if req.StartDate == "" || req.EndDate == "" {
		http.Error(w, "startDate and endDate are required", http.StatusBadRequest)
		return
	}

	sessionID, _, err := h.orchestrator.BeginBulkSync(uid, req.AccountID, req.StartDate, req.EndDate)
	if err != nil {
		h.beginError(w, uid, req.AccountID, err)
		return
	}
	log.Printf("INFO: Bulk sync session %s started for user %d account %d (%s..%s)",
		sessionID, uid, req.AccountID, req.StartDate, req.EndDate)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, `{"sessionId":%q}`, sessionID)
}

func (h *SyncHandlers) beginError(w http.ResponseWriter, uid, accountID int64, err error) {
	if errors.Is(err, accountsync.ErrSyncInFlight) {
		http.Error(w, "A sync for this account is already running", http.StatusConflict)
		return
	}
	log.Printf("ERROR: Failed to start sync for user %d account %d: %v", uid, accountID, err)
	http.Error(w, "Failed to start sync", http.StatusInternalServerError)
}

// Progress handles GET /api/sync/{id}/progress as a server-sent event
// stream. One message per second carries the session's percent complete; the
// stream closes after the terminal message. Unknown or finished sessions
// read as complete, so a late subscriber gets one 100 and a clean close
// instead of hanging.
func (h *SyncHandlers) Progress(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		http.Error(w, "Missing session id", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(percent float64) bool {
		fmt.Fprintf(w, "data: {\"percent\":%.1f}\n\n", percent)
		flusher.Flush()
		return percent >= progress.Complete
	}

	if send(h.tracker.Get(sessionID)) {
		h.tracker.Clear(sessionID)
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			// The sync keeps running; only the watcher left.
			return
		case <-ticker.C:
			if send(h.tracker.Get(sessionID)) {
				h.tracker.Clear(sessionID)
				return
			}
		}
	}
}
