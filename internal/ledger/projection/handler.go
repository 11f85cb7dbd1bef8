package projection

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/factorybooks/factorybooks/internal/ledger"
	"github.com/factorybooks/factorybooks/internal/platform/httpx"
)

// Handler exposes balance projections over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *BalanceService
}

// NewHandler constructs the projection handler.
func NewHandler(logger *slog.Logger, service *BalanceService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers projection routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/parties", h.listParties)
	r.Put("/parties/{name}", h.putParty)
	r.Get("/parties/{name}/balance", h.balance)
	r.Get("/parties/{name}/statement", h.statement)
	r.Get("/parties/{name}/aging", h.aging)
	r.Get("/aging", h.aging)
	r.Get("/income-statement", h.incomeStatement)
}

func partyParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "name")
	name, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("%w: malformed party name", httpx.ErrValidation)
	}
	return name, nil
}

func (h *Handler) listParties(w http.ResponseWriter, r *http.Request) {
	parties, err := h.service.Parties(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, parties)
}

type partyRequest struct {
	Kind           string          `json:"kind" validate:"omitempty,oneof=customer supplier partner other"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
}

func (h *Handler) putParty(w http.ResponseWriter, r *http.Request) {
	name, err := partyParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req partyRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	party, err := h.service.PutParty(r.Context(), ledger.Party{
		Name:           name,
		Kind:           ledger.PartyKind(req.Kind),
		OpeningBalance: req.OpeningBalance,
	})
	if err != nil {
		h.logger.Warn("put party failed", slog.String("party", name), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, party)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	name, err := partyParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.PartyBalance(r.Context(), name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	name, err := partyParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Statement(r.Context(), name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

// dateParam reads an optional YYYY-MM-DD query parameter.
func dateParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", httpx.ErrValidation, name)
	}
	return parsed, nil
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	asOf, err := dateParam(r, "asOf")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var name string
	if chi.URLParam(r, "name") != "" {
		if name, err = partyParam(r); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	report, err := h.service.Aging(r.Context(), name, asOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) incomeStatement(w http.ResponseWriter, r *http.Request) {
	from, err := dateParam(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := dateParam(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !to.IsZero() {
		// Inclusive of the whole last day.
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	summary, err := h.service.IncomeStatement(r.Context(), from, to)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
