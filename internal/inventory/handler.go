package inventory

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/routewise-ops/routewise/internal/platform/httpx"
	"github.com/routewise-ops/routewise/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items/{id}", h.getItem)
	r.Get("/items/{id}/transactions", h.listTransactions)
	r.Post("/items/{id}/adjustments", h.adjustStock)
	r.Post("/items/{id}/reserve", h.reserve)
	r.Post("/items/{id}/release", h.release)
	r.Post("/items/{id}/deactivate", h.deactivate)
}

type adjustStockRequest struct {
	Quantity *int64 `json:"quantity" validate:"required,gte=0"`
	Note     string `json:"note" validate:"max=500"`
}

type adjustStockResponse struct {
	ItemID        int64           `json:"item_id"`
	Previous      int64           `json:"previous"`
	New           int64           `json:"new"`
	Delta         int64           `json:"delta"`
	Kind          TransactionKind `json:"kind"`
	TransactionID int64           `json:"transaction_id"`
}

type reservationRequest struct {
	Quantity int64 `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req adjustStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	adj, err := h.service.AdjustStock(r.Context(), itemID, *req.Quantity, actor.ID, req.Note)
	if err != nil {
		h.logger.Warn("adjust stock rejected", slog.Int64("item_id", itemID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("stock adjusted",
		slog.Int64("item_id", itemID),
		slog.Int64("previous", adj.Previous),
		slog.Int64("new", adj.New),
		slog.Int64("delta", adj.Delta),
		slog.Int64("actor_id", actor.ID))
	httpx.JSON(w, http.StatusOK, adjustStockResponse{
		ItemID:        adj.ItemID,
		Previous:      adj.Previous,
		New:           adj.New,
		Delta:         adj.Delta,
		Kind:          adj.Kind,
		TransactionID: adj.Transaction.ID,
	})
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	h.moveReservation(w, r, false)
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	h.moveReservation(w, r, true)
}

func (h *Handler) moveReservation(w http.ResponseWriter, r *http.Request, release bool) {
	itemID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req reservationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var err error
	if release {
		err = h.service.Release(r.Context(), itemID, req.Quantity, actor.ID)
	} else {
		err = h.service.Reserve(r.Context(), itemID, req.Quantity, actor.ID)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.GetItem(r.Context(), itemID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if err := h.service.Deactivate(r.Context(), itemID, actor.ID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	item, err := h.service.GetItem(r.Context(), itemID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := h.service.ListTransactions(r.Context(), itemID, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txs)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "item id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) (shared.Actor, bool) {
	actor := shared.ActorFromContext(r.Context())
	if actor.ID == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Missing Actor", ActorHeaderHint)
		return shared.Actor{}, false
	}
	return actor, true
}

// ActorHeaderHint explains the contract with the auth collaborator.
const ActorHeaderHint = "mutations require the authenticated actor id header"
