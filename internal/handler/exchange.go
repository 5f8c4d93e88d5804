package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/inodinwetrust10/fxsettle/internal/listing"
	"github.com/inodinwetrust10/fxsettle/internal/market"
	"github.com/inodinwetrust10/fxsettle/internal/models"
	"github.com/inodinwetrust10/fxsettle/internal/settlement"
)

func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req listing.NewListing
	if !decode(w, r, &req) || !requireUser(w, req.SellerID) {
		return
	}
	l, err := h.Listings.Create(r.Context(), req)
	if err != nil {
		h.fail(w, "CreateListing", err)
		return
	}
	js(w, http.StatusCreated, l)
}

func (h *Handler) ListListings(w http.ResponseWriter, r *http.Request) {
	ls, err := h.Listings.ListActive(r.Context())
	if err != nil {
		h.fail(w, "ListListings", err)
		return
	}
	if ls == nil {
		ls = []models.Listing{}
	}
	js(w, http.StatusOK, ls)
}

func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	l, err := h.Listings.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "GetListing", err)
		return
	}
	js(w, http.StatusOK, l)
}

func (h *Handler) PauseListing(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "PauseListing", h.Listings.Pause)
}

func (h *Handler) ResumeListing(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "ResumeListing", h.Listings.Resume)
}

func (h *Handler) DeactivateListing(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "DeactivateListing", h.Listings.Deactivate)
}

type sellerAction func(ctx context.Context, id, sellerID int64) (*models.Listing, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op string, apply sellerAction) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req userRef
	if !decode(w, r, &req) || !requireUser(w, req.UserID) {
		return
	}
	l, err := apply(r.Context(), id, req.UserID)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	js(w, http.StatusOK, l)
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req settlement.Request
	if !decode(w, r, &req) || !requireUser(w, req.BuyerID) {
		return
	}
	o, err := h.Settlement.Settle(r.Context(), req)
	if err != nil {
		h.fail(w, "PlaceOrder", err)
		return
	}
	js(w, http.StatusCreated, o)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	o, err := h.Settlement.Order(r.Context(), id)
	if err != nil {
		h.fail(w, "GetOrder", err)
		return
	}
	js(w, http.StatusOK, o)
}

func (h *Handler) Currencies(w http.ResponseWriter, r *http.Request) {
	js(w, http.StatusOK, market.Currencies())
}

// MarketStats falls back to the rate of listing_id, when given, if the feed
// is down.
func (h *Handler) MarketStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	base, err := models.NormalizeCurrency(q.Get("base"))
	if err != nil {
		js(w, http.StatusBadRequest, models.ErrResp{Error: "invalid base currency"})
		return
	}
	target, err := models.NormalizeCurrency(q.Get("target"))
	if err != nil {
		js(w, http.StatusBadRequest, models.ErrResp{Error: "invalid target currency"})
		return
	}

	fallback := decimal.Zero
	if raw := q.Get("listing_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			js(w, http.StatusBadRequest, models.ErrResp{Error: "invalid listing_id"})
			return
		}
		l, err := h.Listings.Get(r.Context(), id)
		if err != nil {
			h.fail(w, "MarketStats", err)
			return
		}
		fallback = l.ExchangeRate
	}
	js(w, http.StatusOK, h.Market.Stats24h(r.Context(), base, target, fallback))
}
