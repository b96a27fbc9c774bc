// Package handlers implements the HTTP API: budget reads, transaction
// flagging and splitting, keyword rules, sync orchestration, and file
// imports. All routes are user-scoped by middleware.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
	"github.com/rumor-ml/commons.systems/envelopes/internal/ledger"
	"github.com/rumor-ml/commons.systems/envelopes/internal/middleware"
	"github.com/rumor-ml/commons.systems/envelopes/internal/store"
)

// APIHandler handles the budget CRUD routes.
type APIHandler struct {
	store  *store.Store
	ledger *ledger.Ledger
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(s *store.Store, l *ledger.Ledger) *APIHandler {
	return &APIHandler{store: s, ledger: l}
}

// HealthCheck handles GET /health.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return id, ok
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func parseAmount(w http.ResponseWriter, raw string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		http.Error(w, "Invalid amount", http.StatusBadRequest)
		return decimal.Zero, false
	}
	return amount, true
}

// GetAccounts handles GET /api/accounts.
func (h *APIHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	accounts, err := h.store.ListAccounts(r.Context(), uid)
	if err != nil {
		log.Printf("ERROR: Failed to list accounts for user %d: %v", uid, err)
		http.Error(w, "Failed to fetch accounts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, accounts)
}

// UnlinkAccount handles POST /api/accounts/{id}/unlink. The account's rows
// and balances stay; only the aggregation linkage is severed.
func (h *APIHandler) UnlinkAccount(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.UnlinkAccount(r.Context(), uid, id); err != nil {
		log.Printf("ERROR: Failed to unlink account %d for user %d: %v", id, uid, err)
		http.Error(w, "Failed to unlink account", http.StatusInternalServerError)
		return
	}
	log.Printf("INFO: Account %d unlinked for user %d", id, uid)
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"unlinked"}`)
}

// GetEnvelopes handles GET /api/envelopes.
func (h *APIHandler) GetEnvelopes(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	envelopes, err := h.store.ListEnvelopes(r.Context(), uid)
	if err != nil {
		log.Printf("ERROR: Failed to list envelopes for user %d: %v", uid, err)
		http.Error(w, "Failed to fetch envelopes", http.StatusInternalServerError)
		return
	}
	writeJSON(w, envelopes)
}

// CreateEnvelope handles POST /api/envelopes.
func (h *APIHandler) CreateEnvelope(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req struct {
		Name       string `json:"name"`
		CategoryID int64  `json:"categoryId"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	envelope := &domain.Envelope{UserID: uid, Name: req.Name, CategoryID: req.CategoryID, Active: true}
	if err := envelope.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.store.CreateEnvelope(r.Context(), envelope); err != nil {
		log.Printf("ERROR: Failed to create envelope for user %d: %v", uid, err)
		http.Error(w, "Failed to create envelope", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, envelope)
}

// AdjustEnvelope handles POST /api/envelopes/{id}/adjust. The amount is a
// signed decimal string added to the envelope's balance.
func (h *APIHandler) AdjustEnvelope(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount string `json:"amount"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	if err := h.ledger.Adjust(r.Context(), uid, id, amount); err != nil {
		log.Printf("ERROR: Failed to adjust envelope %d for user %d: %v", id, uid, err)
		http.Error(w, "Failed to adjust envelope", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"adjusted"}`)
}

// TransferEnvelopes handles POST /api/envelopes/transfer.
func (h *APIHandler) TransferEnvelopes(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req struct {
		From   int64  `json:"from"`
		To     int64  `json:"to"`
		Amount string `json:"amount"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	if err := h.ledger.Transfer(r.Context(), uid, req.From, req.To, amount); err != nil {
		log.Printf("ERROR: Failed to transfer %s from envelope %d to %d for user %d: %v",
			amount, req.From, req.To, uid, err)
		http.Error(w, "Failed to transfer", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"transferred"}`)
}

// GetTransactions handles GET /api/transactions. Filter by ?envelope=ID, or
// by ?account=ID&date=YYYY-MM-DD.
func (h *APIHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var (
		transactions []domain.Transaction
		err          error
	)
	switch {
	case r.URL.Query().Get("envelope") != "":
		var envelopeID int64
		envelopeID, err = strconv.ParseInt(r.URL.Query().Get("envelope"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid envelope id", http.StatusBadRequest)
			return
		}
		transactions, err = h.store.ListTransactionsByEnvelope(r.Context(), uid, envelopeID)
	case r.URL.Query().Get("account") != "":
		var accountID int64
		accountID, err = strconv.ParseInt(r.URL.Query().Get("account"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid account id", http.StatusBadRequest)
			return
		}
		transactions, err = h.store.ListTransactionsByAccountDate(r.Context(), uid, accountID, r.URL.Query().Get("date"))
	default:
		http.Error(w, "Specify an envelope or account filter", http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Printf("ERROR: Failed to list transactions for user %d: %v", uid, err)
		http.Error(w, "Failed to fetch transactions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, transactions)
}

// ReassignTransaction handles POST /api/transactions/{id}/envelope.
func (h *APIHandler) ReassignTransaction(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		EnvelopeID int64 `json:"envelopeId"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.ledger.Reassign(r.Context(), uid, id, req.EnvelopeID); err != nil {
		h.mutationError(w, uid, id, "reassign", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"reassigned"}`)
}

// SetDuplicate handles POST /api/transactions/{id}/duplicate.
func (h *APIHandler) SetDuplicate(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Value bool `json:"value"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.ledger.SetDuplicate(r.Context(), uid, id, req.Value); err != nil {
		h.mutationError(w, uid, id, "flag duplicate", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"updated"}`)
}

// SetVisible handles POST /api/transactions/{id}/visible.
func (h *APIHandler) SetVisible(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Value bool `json:"value"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.ledger.SetVisible(r.Context(), uid, id, req.Value); err != nil {
		h.mutationError(w, uid, id, "flag visible", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"updated"}`)
}

// SplitTransaction handles POST /api/transactions/{id}/split. Part amounts
// must sum to the original transaction amount.
func (h *APIHandler) SplitTransaction(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Parts []struct {
			Amount     string `json:"amount"`
			EnvelopeID int64  `json:"envelopeId"`
		} `json:"parts"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	parts := make([]ledger.SplitPart, 0, len(req.Parts))
	for _, p := range req.Parts {
		amount, ok := parseAmount(w, p.Amount)
		if !ok {
			return
		}
		parts = append(parts, ledger.SplitPart{Amount: amount, EnvelopeID: p.EnvelopeID})
	}
	if err := h.ledger.Split(r.Context(), uid, id, parts); err != nil {
		h.mutationError(w, uid, id, "split", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"split"}`)
}

// GetKeywords handles GET /api/keywords.
func (h *APIHandler) GetKeywords(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	keywords, err := h.store.ListKeywords(r.Context(), uid)
	if err != nil {
		log.Printf("ERROR: Failed to list keywords for user %d: %v", uid, err)
		http.Error(w, "Failed to fetch keywords", http.StatusInternalServerError)
		return
	}
	writeJSON(w, keywords)
}

// SaveKeyword handles POST /api/keywords. Saving an existing word rebinds it;
// the newest mapping wins.
func (h *APIHandler) SaveKeyword(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req struct {
		Word       string `json:"word"`
		EnvelopeID int64  `json:"envelopeId"`
		AccountID  int64  `json:"accountId"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	keyword := &domain.Keyword{UserID: uid, AccountID: req.AccountID, Word: req.Word, EnvelopeID: req.EnvelopeID}
	if err := keyword.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.store.SaveKeyword(r.Context(), keyword); err != nil {
		log.Printf("ERROR: Failed to save keyword %q for user %d: %v", req.Word, uid, err)
		http.Error(w, "Failed to save keyword", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, keyword)
}

func (h *APIHandler) mutationError(w http.ResponseWriter, uid, txnID int64, op string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Transaction not found", http.StatusNotFound)
		return
	}
	log.Printf("ERROR: Failed to %s transaction %d for user %d: %v", op, txnID, uid, err)
	http.Error(w, "Failed to update transaction", http.StatusInternalServerError)
}
