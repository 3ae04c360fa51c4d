package fuelcard

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/routewise-ops/routewise/internal/platform/httpx"
	"github.com/routewise-ops/routewise/internal/shared"
)

// Handler wires HTTP endpoints for the fuel card ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs fuelcard handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers fuel card routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}", h.getCard)
	r.Get("/{id}/transactions", h.listTransactions)
	r.Post("/{id}/transactions", h.applyTransaction)
	r.Post("/{id}/status", h.updateStatus)
}

type transactionRequest struct {
	Kind        string `json:"kind" validate:"required,oneof=purchase credit"`
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Merchant    string `json:"merchant" validate:"max=200"`
	Location    string `json:"location" validate:"max=200"`
	Reference   string `json:"reference" validate:"omitempty,max=100"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=active blocked expired"`
}

func (h *Handler) applyTransaction(w http.ResponseWriter, r *http.Request) {
	cardID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if actor.ID == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Missing Actor", "transactions require the authenticated actor id header")
		return
	}
	var req transactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	row, err := h.service.ApplyTransaction(r.Context(), TransactionInput{
		CardID:      cardID,
		Kind:        TransactionKind(req.Kind),
		AmountCents: req.AmountCents,
		Merchant:    req.Merchant,
		Location:    req.Location,
		Reference:   req.Reference,
		ActorID:     actor.ID,
	})
	if err != nil {
		h.logger.Warn("card transaction rejected",
			slog.Int64("card_id", cardID),
			slog.String("kind", req.Kind),
			slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	h.logger.Info("card transaction applied",
		slog.Int64("card_id", cardID),
		slog.String("kind", req.Kind),
		slog.Int64("amount_cents", req.AmountCents),
		slog.Int64("new_balance_cents", row.NewBalanceCents))
	httpx.JSON(w, http.StatusCreated, row)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	cardID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if actor.ID == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Missing Actor", "status changes require the authenticated actor id header")
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	card, err := h.service.UpdateStatus(r.Context(), cardID, Status(req.Status), actor.ID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, card)
}

func (h *Handler) getCard(w http.ResponseWriter, r *http.Request) {
	cardID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	card, err := h.service.GetCard(r.Context(), cardID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, card)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	cardID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := h.service.ListTransactions(r.Context(), cardID, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txs)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrCardInactive),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrLimitExceeded),
		errors.Is(err, ErrIllegalStatusChange):
		httpx.Unprocessable(w, err)
	default:
		httpx.RespondError(w, err)
	}
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "card id must be a positive integer")
		return 0, false
	}
	return id, true
}
