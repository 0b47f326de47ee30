package wager

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/bethouse/wager-engine/internal/model"
)

// --- Request/Response types ---

// CreateEventRequest is the JSON body for POST /events. The deadline is
// a unix timestamp in seconds, matching what transport layers submit.
type CreateEventRequest struct {
	Creator     string   `json:"creator"`
	Description string   `json:"description"`
	Options     []string `json:"options"`
	Deadline    int64    `json:"deadline"` // unix seconds
}

// CreateEventResponse returns the assigned event id.
type CreateEventResponse struct {
	ID int64 `json:"id"`
}

// StakeRequest is the JSON body for POST /events/{eventID}/stakes.
type StakeRequest struct {
	Bettor string          `json:"bettor"`
	Option int             `json:"option"`
	Amount decimal.Decimal `json:"amount"`
}

// StakeResponse is the receipt returned for an accepted stake.
type StakeResponse struct {
	StakeID string          `json:"stake_id"`
	EventID int64           `json:"event_id"`
	Bettor  string          `json:"bettor"`
	Option  int             `json:"option"`
	Amount  decimal.Decimal `json:"amount"`
}

// CloseEventRequest is the JSON body for POST /events/{eventID}/close.
type CloseEventRequest struct {
	Caller        string `json:"caller"`
	WinningOption int    `json:"winning_option"`
}

// DepositRequest is the JSON body for POST /balances/deposit.
type DepositRequest struct {
	Participant string          `json:"participant"`
	Amount      decimal.Decimal `json:"amount"`
}

// WithdrawRequest is the JSON body for POST /balances/withdraw.
type WithdrawRequest struct {
	Participant string `json:"participant"`
}

// BalanceResponse reports a participant's ledger balance, or the amount
// transferred by a withdrawal.
type BalanceResponse struct {
	Participant string          `json:"participant"`
	Amount      decimal.Decimal `json:"amount"`
}

// --- HTTP Handlers ---

// HandleCreateEvent handles POST /api/v1/events.
func (e *Engine) HandleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id, err := e.CreateEvent(r.Context(), req.Creator, req.Description,
		req.Options, time.Unix(req.Deadline, 0).UTC())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateEventResponse{ID: id})
}

// HandleGetEvent handles GET /api/v1/events/{eventID}.
func (e *Engine) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, "invalid event id", http.StatusBadRequest)
		return
	}

	ev, err := e.GetEvent(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ev)
}

// HandleListEvents handles GET /api/v1/events.
func (e *Engine) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := e.ListEvents(r.Context())
	if err != nil {
		writeError(w, "failed to list events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

// HandleListStakes handles GET /api/v1/events/{eventID}/stakes.
func (e *Engine) HandleListStakes(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, "invalid event id", http.StatusBadRequest)
		return
	}

	stakes, err := e.StakesByEvent(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if stakes == nil {
		stakes = []model.Stake{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stakes)
}

// HandlePlaceStake handles POST /api/v1/events/{eventID}/stakes.
func (e *Engine) HandlePlaceStake(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, "invalid event id", http.StatusBadRequest)
		return
	}

	var req StakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Bettor == "" {
		writeError(w, "bettor is required", http.StatusBadRequest)
		return
	}

	st, err := e.PlaceStake(r.Context(), id, req.Bettor, req.Option, req.Amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(StakeResponse{
		StakeID: st.ID,
		EventID: st.EventID,
		Bettor:  st.Bettor,
		Option:  st.Option,
		Amount:  st.Amount,
	})
}

// HandleCloseEvent handles POST /api/v1/events/{eventID}/close.
func (e *Engine) HandleCloseEvent(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, "invalid event id", http.StatusBadRequest)
		return
	}

	var req CloseEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Caller == "" {
		writeError(w, "caller is required", http.StatusBadRequest)
		return
	}

	if err := e.CloseEvent(r.Context(), id, req.Caller, req.WinningOption); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeposit handles POST /api/v1/balances/deposit.
func (e *Engine) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Participant == "" {
		writeError(w, "participant is required", http.StatusBadRequest)
		return
	}

	if err := e.Deposit(r.Context(), req.Participant, req.Amount); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleWithdraw handles POST /api/v1/balances/withdraw.
func (e *Engine) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Participant == "" {
		writeError(w, "participant is required", http.StatusBadRequest)
		return
	}

	amount, err := e.Withdraw(r.Context(), req.Participant)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(BalanceResponse{
		Participant: req.Participant,
		Amount:      amount,
	})
}

// HandleBalance handles GET /api/v1/balances/{participantID}.
func (e *Engine) HandleBalance(w http.ResponseWriter, r *http.Request) {
	participant := chi.URLParam(r, "participantID")

	amount, err := e.BalanceOf(r.Context(), participant)
	if err != nil {
		writeError(w, "failed to load balance", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(BalanceResponse{
		Participant: participant,
		Amount:      amount,
	})
}

// Routes mounts all engine endpoints on a chi router.
func (e *Engine) Routes(r chi.Router) {
	r.Get("/events", e.HandleListEvents)
	r.Post("/events", e.HandleCreateEvent)
	r.Get("/events/{eventID}", e.HandleGetEvent)
	r.Get("/events/{eventID}/stakes", e.HandleListStakes)
	r.Post("/events/{eventID}/stakes", e.HandlePlaceStake)
	r.Post("/events/{eventID}/close", e.HandleCloseEvent)
	r.Post("/balances/deposit", e.HandleDeposit)
	r.Post("/balances/withdraw", e.HandleWithdraw)
	r.Get("/balances/{participantID}", e.HandleBalance)
}

// --- helpers ---

func eventID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "eventID"), 10, 64)
}

// writeEngineError maps engine error kinds to HTTP statuses: validation
// → 400, lookup miss → 404, lifecycle conflicts → 409, authorization →
// 403, everything else → 500.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidOptions),
		errors.Is(err, ErrInvalidDeadline),
		errors.Is(err, ErrInvalidOption),
		errors.Is(err, ErrZeroAmount),
		errors.Is(err, ErrZeroBalance):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrEventClosed),
		errors.Is(err, ErrDeadlinePassed),
		errors.Is(err, ErrDeadlineNotReached),
		errors.Is(err, ErrAlreadyClosed):
		status = http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusForbidden
	}
	writeError(w, err.Error(), status)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
