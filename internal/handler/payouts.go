package handler

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/inodinwetrust10/fxsettle/internal/models"
	"github.com/inodinwetrust10/fxsettle/internal/payout"
)

type balance struct {
	UserID            int64           `json:"user_id"`
	Currency          string          `json:"currency"`
	WalletBalance     decimal.Decimal `json:"wallet_balance"`
	AvailableEarnings decimal.Decimal `json:"available_earnings"`
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	uid, ok := idParam(w, r, "userId")
	if !ok {
		return
	}
	cur, err := models.NormalizeCurrency(r.URL.Query().Get("currency"))
	if err != nil {
		js(w, http.StatusBadRequest, models.ErrResp{Error: "currency is required"})
		return
	}
	ctx := r.Context()
	wb, err := h.Wallets.CheckBalance(ctx, uid, cur)
	if err != nil {
		h.fail(w, "GetBalance", err)
		return
	}
	avail, err := h.Payouts.AvailableBalance(ctx, uid, cur)
	if err != nil {
		h.fail(w, "GetBalance", err)
		return
	}
	js(w, http.StatusOK, balance{UserID: uid, Currency: cur, WalletBalance: wb, AvailableEarnings: avail})
}

func (h *Handler) ListEarnings(w http.ResponseWriter, r *http.Request) {
	uid, ok := idParam(w, r, "userId")
	if !ok {
		return
	}
	q := r.URL.Query()
	status := models.EarningStatus(q.Get("status"))
	switch status {
	case "", models.EarningAvailable, models.EarningProcessing, models.EarningPaid:
	default:
		js(w, http.StatusBadRequest, models.ErrResp{Error: "invalid status"})
		return
	}
	es, err := h.Payouts.ListEarnings(r.Context(), uid, q.Get("currency"), status)
	if err != nil {
		h.fail(w, "ListEarnings", err)
		return
	}
	if es == nil {
		es = []models.Earning{}
	}
	js(w, http.StatusOK, es)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	uid, ok := idParam(w, r, "userId")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ts, err := h.Wallets.History(r.Context(), uid, limit)
	if err != nil {
		h.fail(w, "ListTransactions", err)
		return
	}
	if ts == nil {
		ts = []models.Transaction{}
	}
	js(w, http.StatusOK, ts)
}

func (h *Handler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	var req payout.Request
	if !decode(w, r, &req) || !requireUser(w, req.UserID) {
		return
	}
	p, err := h.Payouts.RequestPayout(r.Context(), req)
	if err != nil {
		h.fail(w, "RequestPayout", err)
		return
	}
	js(w, http.StatusCreated, p)
}

func (h *Handler) GetPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	p, err := h.Payouts.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "GetPayout", err)
		return
	}
	js(w, http.StatusOK, p)
}

func (h *Handler) ProcessPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	p, err := h.Payouts.ProcessPayout(r.Context(), id)
	if err != nil {
		h.fail(w, "ProcessPayout", err)
		return
	}
	js(w, http.StatusOK, p)
}

func (h *Handler) FailPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Payouts.FailPayout(r.Context(), id, req.Reason)
	if err != nil {
		h.fail(w, "FailPayout", err)
		return
	}
	js(w, http.StatusOK, p)
}

func (h *Handler) ListPayoutMethods(w http.ResponseWriter, r *http.Request) {
	uid, ok := idParam(w, r, "userId")
	if !ok {
		return
	}
	ms, err := h.Payouts.ListMethods(r.Context(), uid)
	if err != nil {
		h.fail(w, "ListPayoutMethods", err)
		return
	}
	if ms == nil {
		ms = []models.PayoutMethod{}
	}
	js(w, http.StatusOK, ms)
}

func (h *Handler) CreatePayoutMethod(w http.ResponseWriter, r *http.Request) {
	var req payout.NewMethod
	if !decode(w, r, &req) || !requireUser(w, req.UserID) {
		return
	}
	m, err := h.Payouts.CreateMethod(r.Context(), req)
	if err != nil {
		h.fail(w, "CreatePayoutMethod", err)
		return
	}
	js(w, http.StatusCreated, m)
}

func (h *Handler) UpdatePayoutMethod(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req payout.MethodUpdate
	if !decode(w, r, &req) || !requireUser(w, req.UserID) {
		return
	}
	m, err := h.Payouts.UpdateMethod(r.Context(), id, req)
	if err != nil {
		h.fail(w, "UpdatePayoutMethod", err)
		return
	}
	js(w, http.StatusOK, m)
}

func (h *Handler) SetDefaultPayoutMethod(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req userRef
	if !decode(w, r, &req) || !requireUser(w, req.UserID) {
		return
	}
	m, err := h.Payouts.SetDefault(r.Context(), id, req.UserID)
	if err != nil {
		h.fail(w, "SetDefaultPayoutMethod", err)
		return
	}
	js(w, http.StatusOK, m)
}
