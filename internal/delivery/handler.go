package delivery

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/routewise-ops/routewise/internal/platform/httpx"
	"github.com/routewise-ops/routewise/internal/shared"
)

// Handler wires HTTP endpoints for the delivery state machine.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs delivery handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers delivery routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Get("/{id}/items", h.listItems)
	r.Get("/{id}/events", h.listEvents)
	r.Post("/{id}/transition", h.transition)
	r.Post("/{id}/driver", h.assignDriver)
}

type itemRequest struct {
	ProductID      int64 `json:"product_id" validate:"required,gt=0"`
	Quantity       int64 `json:"quantity" validate:"required,gt=0"`
	UnitPriceCents int64 `json:"unit_price_cents" validate:"gte=0"`
}

type createRequest struct {
	DeliveryNumber string        `json:"delivery_number" validate:"required,max=50"`
	SupplierID     int64         `json:"supplier_id" validate:"required,gt=0"`
	StoreID        int64         `json:"store_id" validate:"required,gt=0"`
	ExpectedDate   time.Time     `json:"expected_date" validate:"required"`
	Priority       int           `json:"priority" validate:"required,min=1,max=5"`
	Items          []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type transitionRequest struct {
	Status     string     `json:"status" validate:"required,oneof=pending in_transit delivered canceled"`
	Note       string     `json:"note" validate:"max=500"`
	ActualDate *time.Time `json:"actual_date"`
}

type driverRequest struct {
	DriverID int64 `json:"driver_id" validate:"required,gt=0"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items := make([]ItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, ItemInput{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	d, err := h.service.Create(r.Context(), CreateInput{
		DeliveryNumber: req.DeliveryNumber,
		SupplierID:     req.SupplierID,
		StoreID:        req.StoreID,
		ExpectedDate:   req.ExpectedDate,
		Priority:       req.Priority,
		Items:          items,
		ActorID:        actor.ID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("delivery created",
		slog.Int64("delivery_id", d.ID),
		slog.String("delivery_number", d.DeliveryNumber),
		slog.Int64("total_amount_cents", d.TotalAmountCents))
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	deliveryID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Transition(r.Context(), deliveryID, Status(req.Status), actor.ID, req.Note, req.ActualDate)
	if err != nil {
		h.logger.Warn("delivery transition rejected",
			slog.Int64("delivery_id", deliveryID),
			slog.String("target", req.Status),
			slog.Any("error", err))
		h.respondErr(w, err)
		return
	}
	h.logger.Info("delivery transitioned",
		slog.Int64("delivery_id", deliveryID),
		slog.String("status", req.Status))
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) assignDriver(w http.ResponseWriter, r *http.Request) {
	deliveryID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req driverRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	d, err := h.service.AssignDriver(r.Context(), deliveryID, req.DriverID, actor.ID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	deliveryID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	d, err := h.service.Get(r.Context(), deliveryID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	deliveryID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	items, err := h.service.ListItems(r.Context(), deliveryID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	deliveryID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	events, err := h.service.ListEvents(r.Context(), deliveryID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, events)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrIllegalTransition) {
		httpx.Unprocessable(w, err)
		return
	}
	httpx.RespondError(w, err)
}

func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) (shared.Actor, bool) {
	actor := shared.ActorFromContext(r.Context())
	if actor.ID == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Missing Actor", "delivery writes require the authenticated actor id header")
		return shared.Actor{}, false
	}
	return actor, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "delivery id must be a positive integer")
		return 0, false
	}
	return id, true
}
