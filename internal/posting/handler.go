package posting

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/factorybooks/factorybooks/internal/assets"
	"github.com/factorybooks/factorybooks/internal/cheques"
	"github.com/factorybooks/factorybooks/internal/inventory"
	"github.com/factorybooks/factorybooks/internal/ledger"
	"github.com/factorybooks/factorybooks/internal/platform/httpx"
	"github.com/factorybooks/factorybooks/internal/shared"
)

// Handler exposes the posting commands over HTTP.
type Handler struct {
	logger       *slog.Logger
	orchestrator *Orchestrator
}

// NewHandler constructs the posting handler.
func NewHandler(logger *slog.Logger, orchestrator *Orchestrator) *Handler {
	return &Handler{logger: logger, orchestrator: orchestrator}
}

// MountRoutes registers posting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/transactions", h.post)
	r.Delete("/transactions/{transactionID}", h.delete)
	r.Post("/transactions/{transactionID}/payments", h.settle)
	r.Post("/allocations", h.allocate)
	r.Post("/cheques/{chequeID}/transition", h.transitionCheque)
	r.Post("/assets/{assetID}/depreciation", h.depreciate)
	r.Post("/intents/{intentID}/process", h.processIntent)
	r.Get("/dead-letters", h.deadLetters)
}

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" validate:"required,oneof=cash bank"`
	Date   *time.Time      `json:"date"`
}

func (p paymentRequest) input() PaymentInput {
	in := PaymentInput{Amount: p.Amount, Method: ledger.PaymentMethod(p.Method)}
	if p.Date != nil {
		in.Date = *p.Date
	}
	return in
}

type chequeRequest struct {
	ChequeNumber          string          `json:"chequeNumber" validate:"required,max=64"`
	BankName              string          `json:"bankName" validate:"max=120"`
	Direction             string          `json:"direction" validate:"omitempty,oneof=incoming outgoing"`
	AccountingType        string          `json:"accountingType" validate:"required,oneof=cashed postponed endorsed"`
	Amount                decimal.Decimal `json:"amount"`
	DueDate               time.Time       `json:"dueDate" validate:"required"`
	AssociatedParty       string          `json:"associatedParty" validate:"max=200"`
	Endorsee              string          `json:"endorsee" validate:"required_if=AccountingType endorsed,max=200"`
	EndorseeTransactionID string          `json:"endorseeTransactionId" validate:"max=64"`
}

type inventoryLineRequest struct {
	ItemID         string          `json:"itemId" validate:"required_without=Name,max=64"`
	Name           string          `json:"name" validate:"max=200"`
	Unit           string          `json:"unit" validate:"max=32"`
	Direction      string          `json:"direction" validate:"required,oneof=receipt issue"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	PurchaseAmount decimal.Decimal `json:"purchaseAmount"`
	Shipping       decimal.Decimal `json:"shipping"`
	Other          decimal.Decimal `json:"other"`
}

type assetRequest struct {
	Name               string          `json:"name" validate:"required,max=200"`
	UsefulLifeYears    int             `json:"usefulLifeYears" validate:"required,min=1,max=100"`
	SalvageValue       decimal.Decimal `json:"salvageValue"`
	DepreciationMethod string          `json:"depreciationMethod" validate:"omitempty,oneof=straight-line declining"`
}

type postRequest struct {
	TransactionID   string                 `json:"transactionId" validate:"max=64"`
	Type            string                 `json:"type" validate:"required,max=64"`
	Category        string                 `json:"category" validate:"required,max=120"`
	SubCategory     string                 `json:"subCategory" validate:"max=120"`
	Description     string                 `json:"description" validate:"max=500"`
	Date            *time.Time             `json:"date"`
	Amount          decimal.Decimal        `json:"amount"`
	TotalDiscount   decimal.Decimal        `json:"totalDiscount"`
	WriteoffAmount  decimal.Decimal        `json:"writeoffAmount"`
	IsARAPEntry     bool                   `json:"isARAPEntry"`
	AssociatedParty string                 `json:"associatedParty" validate:"max=200"`
	OwnerName       string                 `json:"ownerName" validate:"max=200"`
	InitialPayment  *paymentRequest        `json:"initialPayment"`
	Cheque          *chequeRequest         `json:"cheque"`
	Inventory       []inventoryLineRequest `json:"inventory" validate:"max=200,dive"`
	Asset           *assetRequest          `json:"asset"`
}

func (req postRequest) candidate() Candidate {
	c := Candidate{Entry: ledger.LedgerEntry{
		TransactionID:   req.TransactionID,
		Type:            req.Type,
		Category:        req.Category,
		SubCategory:     req.SubCategory,
		Description:     req.Description,
		Amount:          req.Amount,
		TotalDiscount:   req.TotalDiscount,
		WriteoffAmount:  req.WriteoffAmount,
		IsARAPEntry:     req.IsARAPEntry,
		AssociatedParty: req.AssociatedParty,
		OwnerName:       req.OwnerName,
	}}
	if req.Date != nil {
		c.Entry.Date = *req.Date
	}
	if req.InitialPayment != nil {
		in := req.InitialPayment.input()
		c.InitialPayment = &in
	}
	if ch := req.Cheque; ch != nil {
		c.Cheque = &cheques.CreateInput{
			ChequeNumber:          ch.ChequeNumber,
			BankName:              ch.BankName,
			Direction:             cheques.Direction(ch.Direction),
			AccountingType:        cheques.AccountingType(ch.AccountingType),
			Amount:                ch.Amount,
			DueDate:               ch.DueDate,
			AssociatedParty:       ch.AssociatedParty,
			Endorsee:              ch.Endorsee,
			EndorseeTransactionID: ch.EndorseeTransactionID,
		}
	}
	for _, line := range req.Inventory {
		c.Inventory = append(c.Inventory, InventoryLine{
			ItemID:         line.ItemID,
			Name:           line.Name,
			Unit:           line.Unit,
			Direction:      inventory.MovementDirection(line.Direction),
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			PurchaseAmount: line.PurchaseAmount,
			Shipping:       line.Shipping,
			Other:          line.Other,
		})
	}
	if a := req.Asset; a != nil {
		method := assets.Method(a.DepreciationMethod)
		if method == "" {
			method = assets.StraightLine
		}
		c.Asset = &assets.Input{
			Name:               a.Name,
			UsefulLifeYears:    a.UsefulLifeYears,
			SalvageValue:       a.SalvageValue,
			DepreciationMethod: method,
		}
	}
	return c
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.orchestrator.Post(r.Context(), shared.ActorFromContext(r.Context()), req.candidate())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusCreated
	if result.IntentID != "" {
		status = http.StatusAccepted
	}
	httpx.JSON(w, status, result)
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	txID := chi.URLParam(r, "transactionID")
	result, err := h.orchestrator.Settle(r.Context(), shared.ActorFromContext(r.Context()), txID, req.input())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "transactionID")
	result, err := h.orchestrator.Delete(r.Context(), shared.ActorFromContext(r.Context()), txID)
	if err != nil {
		h.logger.Warn("delete failed", slog.String("transaction_id", txID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type allocationRequest struct {
	Party       string          `json:"party" validate:"required,max=200"`
	Type        string          `json:"type" validate:"required,oneof=receipt disbursement"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method" validate:"required,oneof=cash bank"`
	Date        *time.Time      `json:"date"`
	Allocations []struct {
		TransactionID string          `json:"transactionId" validate:"required,max=64"`
		Amount        decimal.Decimal `json:"amount"`
	} `json:"allocations" validate:"required,min=1,max=200,dive"`
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	var req allocationRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := AllocationInput{
		Party:  req.Party,
		Type:   ledger.PaymentType(req.Type),
		Amount: req.Amount,
		Method: ledger.PaymentMethod(req.Method),
	}
	if req.Date != nil {
		in.Date = *req.Date
	}
	for _, a := range req.Allocations {
		in.Allocations = append(in.Allocations, Allocation{TransactionID: a.TransactionID, Amount: a.Amount})
	}
	result, err := h.orchestrator.Allocate(r.Context(), shared.ActorFromContext(r.Context()), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

type transitionRequest struct {
	Status                string `json:"status" validate:"required,oneof=cleared bounced endorsed"`
	Endorsee              string `json:"endorsee" validate:"required_if=Status endorsed,max=200"`
	EndorseeTransactionID string `json:"endorseeTransactionId" validate:"max=64"`
}

func (h *Handler) transitionCheque(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	target, err := cheques.ParseStatus(req.Status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.orchestrator.TransitionCheque(r.Context(), shared.ActorFromContext(r.Context()), chi.URLParam(r, "chequeID"), TransitionRequest{
		Target:                target,
		Endorsee:              req.Endorsee,
		EndorseeTransactionID: req.EndorseeTransactionID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type depreciationRequest struct {
	Months int `json:"months" validate:"required,min=1,max=600"`
}

func (h *Handler) depreciate(w http.ResponseWriter, r *http.Request) {
	var req depreciationRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.orchestrator.RunDepreciation(r.Context(), shared.ActorFromContext(r.Context()), chi.URLParam(r, "assetID"), req.Months)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) processIntent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "intentID")
	if err := h.orchestrator.ProcessIntent(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"intentId": id, "status": string(IntentSucceeded)})
}

func (h *Handler) deadLetters(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			httpx.RespondError(w, fmt.Errorf("%w: limit must be between 1 and 500", httpx.ErrValidation))
			return
		}
		limit = n
	}
	letters, err := h.orchestrator.DeadLetters(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, letters)
}
