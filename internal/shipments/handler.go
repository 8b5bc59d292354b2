package shipments

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tramitex/tramitex/internal/platform/httpx"
)

// Handler manages shipment endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers shipment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createShipment)
	r.Get("/{id}", h.getShipment)
	r.Post("/{id}/received", h.markReceived)
	r.Get("/by-case/{caseID}", h.listByCase)
}

type createShipmentRequest struct {
	DealerID       uuid.UUID   `json:"dealer_id" validate:"required"`
	Direction      Direction   `json:"direction" validate:"required"`
	Carrier        string      `json:"carrier" validate:"required"`
	TrackingNumber string      `json:"tracking_number" validate:"required"`
	Notes          string      `json:"notes"`
	SentAt         *time.Time  `json:"sent_at"`
	CaseIDs        []uuid.UUID `json:"case_ids" validate:"required,min=1"`
}

func (h *Handler) createShipment(w http.ResponseWriter, r *http.Request) {
	var req createShipmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := CreateInput{
		DealerID:       req.DealerID,
		Direction:      req.Direction,
		Carrier:        req.Carrier,
		TrackingNumber: req.TrackingNumber,
		Notes:          req.Notes,
		CaseIDs:        req.CaseIDs,
	}
	if req.SentAt != nil {
		in.SentAt = *req.SentAt
	}
	sh, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.logger.Error("create shipment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sh)
}

func (h *Handler) getShipment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid shipment id")
		return
	}
	sh, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sh)
}

func (h *Handler) markReceived(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid shipment id")
		return
	}
	if err := h.service.MarkReceived(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listByCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := uuid.Parse(chi.URLParam(r, "caseID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid case id")
		return
	}
	found, err := h.service.ListByCase(r.Context(), caseID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"shipments": found})
}
