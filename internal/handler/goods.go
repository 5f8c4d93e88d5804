package handler

import (
	"net/http"

	"github.com/inodinwetrust10/fxsettle/internal/escrow"
	"github.com/inodinwetrust10/fxsettle/internal/gateway"
)

func (h *Handler) CreateGoodsListing(w http.ResponseWriter, r *http.Request) {
	var req escrow.NewListing
	if !decode(w, r, &req) || !requireUser(w, req.SellerID) {
		return
	}
	l, err := h.Goods.CreateListing(r.Context(), req)
	if err != nil {
		h.fail(w, "CreateGoodsListing", err)
		return
	}
	js(w, http.StatusCreated, l)
}

func (h *Handler) PlaceGoodsOrder(w http.ResponseWriter, r *http.Request) {
	var req escrow.PlaceOrderRequest
	if !decode(w, r, &req) || !requireUser(w, req.BuyerID) {
		return
	}
	o, err := h.Goods.PlaceOrder(r.Context(), req)
	if err != nil {
		h.fail(w, "PlaceGoodsOrder", err)
		return
	}
	js(w, http.StatusCreated, o)
}

func (h *Handler) GetGoodsOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	o, err := h.Goods.Order(r.Context(), id)
	if err != nil {
		h.fail(w, "GetGoodsOrder", err)
		return
	}
	js(w, http.StatusOK, o)
}

func (h *Handler) GetGoodsOrderFees(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	f, err := h.Goods.Fees(r.Context(), id)
	if err != nil {
		h.fail(w, "GetGoodsOrderFees", err)
		return
	}
	js(w, http.StatusOK, f)
}

func (h *Handler) CompleteGoodsOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req userRef
	if !decode(w, r, &req) || !requireUser(w, req.UserID) {
		return
	}
	esc, err := h.Goods.CompleteOrder(r.Context(), id, req.UserID)
	if err != nil {
		h.fail(w, "CompleteGoodsOrder", err)
		return
	}
	js(w, http.StatusOK, esc)
}

func (h *Handler) RefundGoodsOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req userRef
	if !decode(w, r, &req) || !requireUser(w, req.UserID) {
		return
	}
	esc, err := h.Goods.RefundOrder(r.Context(), id, req.UserID)
	if err != nil {
		h.fail(w, "RefundGoodsOrder", err)
		return
	}
	js(w, http.StatusOK, esc)
}

func (h *Handler) RequestGoodsPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req escrow.PayoutRequest
	if !decode(w, r, &req) || !requireUser(w, req.UserID) {
		return
	}
	req.OrderID = id
	p, err := h.Goods.RequestPayout(r.Context(), req)
	if err != nil {
		h.fail(w, "RequestGoodsPayout", err)
		return
	}
	js(w, http.StatusCreated, p)
}

// GatewayCallback answers a replayed callback with 200 and the first
// ledger row.
func (h *Handler) GatewayCallback(w http.ResponseWriter, r *http.Request) {
	var req gateway.Callback
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Gateway.ApplyDeposit(r.Context(), req)
	if err != nil {
		h.fail(w, "GatewayCallback", err)
		return
	}
	code := http.StatusCreated
	if res.Duplicate {
		code = http.StatusOK
	}
	js(w, code, res)
}
