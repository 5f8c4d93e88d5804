package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/inodinwetrust10/fxsettle/internal/db"
	"github.com/inodinwetrust10/fxsettle/internal/escrow"
	"github.com/inodinwetrust10/fxsettle/internal/gateway"
	"github.com/inodinwetrust10/fxsettle/internal/listing"
	"github.com/inodinwetrust10/fxsettle/internal/market"
	"github.com/inodinwetrust10/fxsettle/internal/models"
	"github.com/inodinwetrust10/fxsettle/internal/payout"
	"github.com/inodinwetrust10/fxsettle/internal/settlement"
	"github.com/inodinwetrust10/fxsettle/internal/wallet"
)

type Deps struct {
	Wallets    *wallet.Service
	Listings   *listing.Registry
	Settlement *settlement.Engine
	Payouts    *payout.Service
	Goods      *escrow.Engine
	Gateway    *gateway.Service
	Market     *market.Client
}

type Handler struct {
	Deps
	log *zap.Logger
}

func New(d Deps, log *zap.Logger) *Handler {
	return &Handler{Deps: d, log: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/listings", h.CreateListing)
		r.Get("/listings", h.ListListings)
		r.Get("/listings/{id}", h.GetListing)
		r.Post("/listings/{id}/pause", h.PauseListing)
		r.Post("/listings/{id}/resume", h.ResumeListing)
		r.Post("/listings/{id}/deactivate", h.DeactivateListing)

		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders/{id}", h.GetOrder)

		r.Get("/users/{userId}/balance", h.GetBalance)
		r.Get("/users/{userId}/earnings", h.ListEarnings)
		r.Get("/users/{userId}/transactions", h.ListTransactions)
		r.Get("/users/{userId}/payout-methods", h.ListPayoutMethods)

		r.Post("/payouts", h.RequestPayout)
		r.Get("/payouts/{id}", h.GetPayout)
		r.Post("/payouts/{id}/process", h.ProcessPayout)
		r.Post("/payouts/{id}/fail", h.FailPayout)

		r.Post("/payout-methods", h.CreatePayoutMethod)
		r.Put("/payout-methods/{id}", h.UpdatePayoutMethod)
		r.Post("/payout-methods/{id}/default", h.SetDefaultPayoutMethod)

		r.Post("/goods/listings", h.CreateGoodsListing)
		r.Post("/goods/orders", h.PlaceGoodsOrder)
		r.Get("/goods/orders/{id}", h.GetGoodsOrder)
		r.Get("/goods/orders/{id}/fees", h.GetGoodsOrderFees)
		r.Post("/goods/orders/{id}/complete", h.CompleteGoodsOrder)
		r.Post("/goods/orders/{id}/refund", h.RefundGoodsOrder)
		r.Post("/goods/orders/{id}/payout", h.RequestGoodsPayout)

		r.Post("/gateway/callbacks", h.GatewayCallback)

		r.Get("/market/currencies", h.Currencies)
		r.Get("/market/stats", h.MarketStats)
	})
}

// userRef is the body of seller actions that only name the caller.
type userRef struct {
	UserID int64 `json:"user_id"`
}

type validationResp struct {
	Error string           `json:"error"`
	Kind  string           `json:"kind"`
	Bound string           `json:"bound,omitempty"`
	Limit *decimal.Decimal `json:"limit,omitempty"`
}

type balanceResp struct {
	Error     string          `json:"error"`
	Currency  string          `json:"currency"`
	Required  decimal.Decimal `json:"required"`
	Available decimal.Decimal `json:"available"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

// fail maps service errors to responses. Causes behind a 500 are logged and
// never written to the client.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var (
		ve *settlement.ValidationError
		be *wallet.InsufficientBalanceError
		ee *payout.InsufficientEarningsError
		le *listing.InsufficientListingAmountError
		qe *escrow.InsufficientQuantityError
	)
	switch {
	case errors.As(err, &ve):
		resp := validationResp{Error: ve.Message, Kind: string(ve.Kind), Bound: string(ve.Bound)}
		if ve.Bound != "" {
			limit := ve.Limit
			resp.Limit = &limit
		}
		js(w, http.StatusUnprocessableEntity, resp)
	case errors.As(err, &be):
		js(w, http.StatusUnprocessableEntity, balanceResp{
			Error:     "insufficient balance",
			Currency:  be.Currency,
			Required:  be.Required,
			Available: be.Available,
			Shortfall: be.Shortfall,
		})
	case errors.As(err, &ee):
		js(w, http.StatusUnprocessableEntity, balanceResp{
			Error:     "insufficient earnings",
			Currency:  ee.Currency,
			Required:  ee.Requested,
			Available: ee.Available,
			Shortfall: ee.Requested.Sub(ee.Available),
		})
	case errors.As(err, &le), errors.As(err, &qe):
		js(w, http.StatusUnprocessableEntity, models.ErrResp{Error: err.Error()})

	case errors.Is(err, db.ErrNotFound):
		js(w, http.StatusNotFound, models.ErrResp{Error: err.Error()})

	case errors.Is(err, listing.ErrNotOwner),
		errors.Is(err, payout.ErrMethodNotOwned),
		errors.Is(err, escrow.ErrNotSeller):
		js(w, http.StatusForbidden, models.ErrResp{Error: err.Error()})

	case errors.Is(err, db.ErrConflict),
		errors.Is(err, db.ErrDuplicateReference),
		errors.Is(err, listing.ErrInvalidTransition),
		errors.Is(err, settlement.ErrListingUnavailable),
		errors.Is(err, payout.ErrNotPending),
		errors.Is(err, escrow.ErrListingUnavailable),
		errors.Is(err, escrow.ErrNotHeld),
		errors.Is(err, escrow.ErrNotReleased),
		errors.Is(err, escrow.ErrPayoutExists):
		js(w, http.StatusConflict, models.ErrResp{Error: err.Error()})

	case errors.Is(err, listing.ErrInvalidListing),
		errors.Is(err, listing.ErrCurrencyMismatch),
		errors.Is(err, models.ErrInvalidCurrency),
		errors.Is(err, models.ErrInvalidPayoutDetails),
		errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, payout.ErrInvalidAmount),
		errors.Is(err, payout.ErrUnsupportedCurrency),
		errors.Is(err, payout.ErrDefaultRequired),
		errors.Is(err, escrow.ErrInvalidListing),
		errors.Is(err, escrow.ErrInvalidQuantity),
		errors.Is(err, escrow.ErrOwnListing),
		errors.Is(err, escrow.ErrInvalidPayout),
		errors.Is(err, gateway.ErrInvalidCallback),
		errors.Is(err, gateway.ErrNotSuccessful):
		js(w, http.StatusUnprocessableEntity, models.ErrResp{Error: err.Error()})

	case errors.Is(err, payout.ErrDisbursement):
		h.log.Warn(op, zap.Error(err))
		js(w, http.StatusBadGateway, models.ErrResp{Error: "disbursement failed"})
	case errors.Is(err, settlement.ErrSettlementFailed):
		js(w, http.StatusInternalServerError, models.ErrResp{Error: settlement.ErrSettlementFailed.Error()})
	default:
		h.log.Error(op, zap.Error(err))
		js(w, http.StatusInternalServerError, models.ErrResp{Error: "internal error"})
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		js(w, http.StatusBadRequest, models.ErrResp{Error: "invalid JSON body"})
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		js(w, http.StatusBadRequest, models.ErrResp{Error: "invalid " + name})
		return 0, false
	}
	return id, true
}

func requireUser(w http.ResponseWriter, id int64) bool {
	if id == 0 {
		js(w, http.StatusBadRequest, models.ErrResp{Error: "user_id is required"})
		return false
	}
	return true
}

func js(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("json encode", zap.Error(err))
	}
}
