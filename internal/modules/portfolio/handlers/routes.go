package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the portfolio, trade, dividend and P/L routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/", h.HandleGetPositions)
		r.Post("/", h.HandleCreatePosition)
		r.Get("/valuation", h.HandleGetValuation)
		r.Put("/{id}", h.HandleUpdatePosition)
		r.Delete("/{id}", h.HandleDeletePosition)
	})

	r.Route("/trades", func(r chi.Router) {
		r.Get("/", h.HandleGetTrades)
		r.Post("/", h.HandleCreateTrade)
		r.Put("/{id}", h.HandleUpdateTrade)
		r.Delete("/{id}", h.HandleDeleteTrade)
	})

	r.Route("/dividends", func(r chi.Router) {
		r.Get("/", h.HandleGetDividends)
		r.Post("/", h.HandleRecordDividend)
		r.Get("/summary", h.HandleGetDividendSummary)
	})

	r.Route("/profit_loss", func(r chi.Router) {
		r.Get("/summary", h.HandleGetProfitLossSummary)
		r.Get("/details", h.HandleGetProfitLossDetails)
	})
}
