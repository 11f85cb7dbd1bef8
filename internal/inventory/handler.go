package inventory

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/factorybooks/factorybooks/internal/platform/httpx"
)

// Reader serves stock reads. Stock only changes through posting.
type Reader interface {
	ListItems(ctx context.Context) ([]Item, error)
	GetItem(ctx context.Context, id string) (Item, error)
	ListMovements(ctx context.Context, itemID string) ([]Movement, error)
}

// Handler exposes read-only stock endpoints.
type Handler struct {
	logger *slog.Logger
	reader Reader
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, reader Reader) *Handler {
	return &Handler{logger: logger, reader: reader}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items", h.listItems)
	r.Get("/items/{itemID}", h.getItem)
	r.Get("/items/{itemID}/stock-card", h.stockCard)
}

type itemView struct {
	Item
	Value decimal.Decimal `json:"value"`
}

type valuation struct {
	Items []itemView      `json:"items"`
	Total decimal.Decimal `json:"total"`
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.reader.ListItems(r.Context())
	if err != nil {
		h.logger.Error("list items", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := valuation{Items: make([]itemView, 0, len(items)), Total: decimal.Zero}
	for _, item := range items {
		out.Items = append(out.Items, itemView{Item: item, Value: item.Value()})
		out.Total = out.Total.Add(item.Value())
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.reader.GetItem(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, itemView{Item: item, Value: item.Value()})
}

func (h *Handler) stockCard(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	item, err := h.reader.GetItem(r.Context(), itemID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	movements, err := h.reader.ListMovements(r.Context(), itemID)
	if err != nil {
		h.logger.Error("list movements", slog.String("item_id", itemID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"item":    itemView{Item: item, Value: item.Value()},
		"entries": StockCard(movements),
	})
}
