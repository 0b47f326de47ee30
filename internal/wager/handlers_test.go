package wager_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/bethouse/wager-engine/internal/clock"
	"github.com/bethouse/wager-engine/internal/model"
	"github.com/bethouse/wager-engine/internal/policy"
	"github.com/bethouse/wager-engine/internal/store"
	"github.com/bethouse/wager-engine/internal/wager"
)

// newTestEnv creates an engine with in-memory store, manual clock, and a
// chi router with all engine routes mounted under /api/v1.
func newTestEnv(t *testing.T) (*wager.Engine, *clock.Manual, chi.Router) {
	t.Helper()
	clk := clock.NewManual(t0)
	eng := wager.NewEngine(store.NewMemoryStore(), clk, policy.CreatorOnly{}, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", eng.Routes)
	return eng, clk, r
}

func doJSON(t *testing.T, router chi.Router, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createEventHTTP(t *testing.T, router chi.Router) int64 {
	t.Helper()
	w := doJSON(t, router, "POST", "/api/v1/events", wager.CreateEventRequest{
		Creator:     "alice",
		Description: "Coin flip",
		Options:     []string{"heads", "tails"},
		Deadline:    t0.Add(time.Hour).Unix(),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create event: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp wager.CreateEventResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp.ID
}

func TestHandleCreateEvent_Valid(t *testing.T) {
	_, _, router := newTestEnv(t)
	id := createEventHTTP(t, router)

	w := doJSON(t, router, "GET", fmt.Sprintf("/api/v1/events/%d", id), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var ev model.Event
	json.Unmarshal(w.Body.Bytes(), &ev)
	if ev.Description != "Coin flip" {
		t.Errorf("unexpected description: %s", ev.Description)
	}
	if ev.State != model.StateOpen {
		t.Errorf("expected open, got %s", ev.State)
	}
}

func TestHandleCreateEvent_InvalidOptions(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/events", wager.CreateEventRequest{
		Creator:     "alice",
		Description: "solo",
		Options:     []string{"only"},
		Deadline:    t0.Add(time.Hour).Unix(),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleGetEvent_NotFound(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := doJSON(t, router, "GET", "/api/v1/events/99", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHandleListEvents_CreationOrder(t *testing.T) {
	_, _, router := newTestEnv(t)
	createEventHTTP(t, router)
	createEventHTTP(t, router)

	w := doJSON(t, router, "GET", "/api/v1/events", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var events []model.Event
	json.Unmarshal(w.Body.Bytes(), &events)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != 0 || events[1].ID != 1 {
		t.Errorf("expected ids 0,1 got %d,%d", events[0].ID, events[1].ID)
	}
}

func TestHandlePlaceStake_ReturnsReceipt(t *testing.T) {
	_, _, router := newTestEnv(t)
	id := createEventHTTP(t, router)

	w := doJSON(t, router, "POST", fmt.Sprintf("/api/v1/events/%d/stakes", id), wager.StakeRequest{
		Bettor: "bob",
		Option: 1,
		Amount: decimal.NewFromInt(2),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp wager.StakeResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.StakeID == "" {
		t.Error("expected non-empty stake_id")
	}
	if resp.EventID != id || resp.Option != 1 {
		t.Errorf("unexpected receipt: %+v", resp)
	}
}

func TestHandlePlaceStake_ErrorStatuses(t *testing.T) {
	_, clk, router := newTestEnv(t)
	id := createEventHTTP(t, router)

	cases := []struct {
		name string
		path string
		req  wager.StakeRequest
		want int
	}{
		{"unknown event", "/api/v1/events/42/stakes", wager.StakeRequest{Bettor: "bob", Option: 0, Amount: decimal.NewFromInt(1)}, http.StatusNotFound},
		{"invalid option", fmt.Sprintf("/api/v1/events/%d/stakes", id), wager.StakeRequest{Bettor: "bob", Option: 5, Amount: decimal.NewFromInt(1)}, http.StatusBadRequest},
		{"zero amount", fmt.Sprintf("/api/v1/events/%d/stakes", id), wager.StakeRequest{Bettor: "bob", Option: 0}, http.StatusBadRequest},
		{"missing bettor", fmt.Sprintf("/api/v1/events/%d/stakes", id), wager.StakeRequest{Option: 0, Amount: decimal.NewFromInt(1)}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		w := doJSON(t, router, "POST", tc.path, tc.req)
		if w.Code != tc.want {
			t.Errorf("%s: expected %d, got %d: %s", tc.name, tc.want, w.Code, w.Body.String())
		}
	}

	// Past the deadline the conflict is a 409.
	clk.Advance(2 * time.Hour)
	w := doJSON(t, router, "POST", fmt.Sprintf("/api/v1/events/%d/stakes", id), wager.StakeRequest{
		Bettor: "bob", Option: 0, Amount: decimal.NewFromInt(1),
	})
	if w.Code != http.StatusConflict {
		t.Errorf("deadline passed: expected 409, got %d", w.Code)
	}
}

func TestHandleCloseEvent_FullFlow(t *testing.T) {
	_, clk, router := newTestEnv(t)
	id := createEventHTTP(t, router)

	doJSON(t, router, "POST", fmt.Sprintf("/api/v1/events/%d/stakes", id), wager.StakeRequest{
		Bettor: "a", Option: 0, Amount: decimal.NewFromInt(1),
	})
	doJSON(t, router, "POST", fmt.Sprintf("/api/v1/events/%d/stakes", id), wager.StakeRequest{
		Bettor: "b", Option: 1, Amount: decimal.NewFromInt(2),
	})

	// Too early: 409.
	w := doJSON(t, router, "POST", fmt.Sprintf("/api/v1/events/%d/close", id), wager.CloseEventRequest{
		Caller: "alice", WinningOption: 1,
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("before deadline: expected 409, got %d", w.Code)
	}

	clk.Advance(2 * time.Hour)

	// Wrong caller: 403.
	w = doJSON(t, router, "POST", fmt.Sprintf("/api/v1/events/%d/close", id), wager.CloseEventRequest{
		Caller: "mallory", WinningOption: 1,
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("wrong caller: expected 403, got %d", w.Code)
	}

	// Creator closes: 204.
	w = doJSON(t, router, "POST", fmt.Sprintf("/api/v1/events/%d/close", id), wager.CloseEventRequest{
		Caller: "alice", WinningOption: 1,
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("close: expected 204, got %d: %s", w.Code, w.Body.String())
	}

	// Second close: 409.
	w = doJSON(t, router, "POST", fmt.Sprintf("/api/v1/events/%d/close", id), wager.CloseEventRequest{
		Caller: "alice", WinningOption: 1,
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("second close: expected 409, got %d", w.Code)
	}

	// Winner balance is visible through the API.
	w = doJSON(t, router, "GET", "/api/v1/balances/b", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("balance: expected 200, got %d", w.Code)
	}
	var bal wager.BalanceResponse
	json.Unmarshal(w.Body.Bytes(), &bal)
	if !bal.Amount.Equal(decimal.NewFromInt(3)) {
		t.Errorf("winner balance: expected 3, got %s", bal.Amount)
	}
}

func TestHandleListStakes_AuditTrailSurvivesSettlement(t *testing.T) {
	_, clk, router := newTestEnv(t)
	id := createEventHTTP(t, router)

	doJSON(t, router, "POST", fmt.Sprintf("/api/v1/events/%d/stakes", id), wager.StakeRequest{
		Bettor: "a", Option: 0, Amount: decimal.NewFromInt(1),
	})
	clk.Advance(2 * time.Hour)
	doJSON(t, router, "POST", fmt.Sprintf("/api/v1/events/%d/close", id), wager.CloseEventRequest{
		Caller: "alice", WinningOption: 0,
	})

	w := doJSON(t, router, "GET", fmt.Sprintf("/api/v1/events/%d/stakes", id), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stakes []model.Stake
	json.Unmarshal(w.Body.Bytes(), &stakes)
	if len(stakes) != 1 {
		t.Fatalf("expected 1 stake in audit trail, got %d", len(stakes))
	}
	if stakes[0].Bettor != "a" {
		t.Errorf("unexpected bettor: %s", stakes[0].Bettor)
	}
}

func TestHandleDepositWithdraw_RoundTrip(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/balances/deposit", wager.DepositRequest{
		Participant: "bob", Amount: decimal.RequireFromString("2.5"),
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("deposit: expected 204, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "POST", "/api/v1/balances/withdraw", wager.WithdrawRequest{Participant: "bob"})
	if w.Code != http.StatusOK {
		t.Fatalf("withdraw: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp wager.BalanceResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Amount.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("expected 2.5, got %s", resp.Amount)
	}

	// Second withdraw finds nothing.
	w = doJSON(t, router, "POST", "/api/v1/balances/withdraw", wager.WithdrawRequest{Participant: "bob"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty withdraw: expected 400, got %d", w.Code)
	}
}

func TestHandleDeposit_ZeroAmount(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/balances/deposit", wager.DepositRequest{Participant: "bob"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleBalance_UnknownParticipantIsZero(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := doJSON(t, router, "GET", "/api/v1/balances/stranger", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp wager.BalanceResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Amount.IsZero() {
		t.Errorf("expected 0, got %s", resp.Amount)
	}
}
