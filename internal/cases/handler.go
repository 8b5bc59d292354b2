package cases

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tramitex/tramitex/internal/clients"
	"github.com/tramitex/tramitex/internal/platform/httpx"
	"github.com/tramitex/tramitex/internal/shared"
)

// Handler manages case endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers case routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createCase)
	r.Get("/", h.listCases)
	r.Get("/{id}", h.getCase)
	r.Get("/{id}/history", h.getHistory)
	r.Get("/{id}/reservation", h.getReservation)
	r.Post("/{id}/state", h.changeState)
	r.Post("/{id}/cancel", h.cancelCase)
	r.Post("/{id}/finalize", h.finalizeCase)
	r.Post("/{id}/reopen", h.reopenCase)
	r.Post("/{id}/reassign", h.reassignDealer)
	r.Delete("/{id}", h.deleteCase)
}

func caseID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

type caseResponse struct {
	ID          uuid.UUID  `json:"id"`
	DisplayID   string     `json:"display_id"`
	Kind        Kind       `json:"kind"`
	Status      Status     `json:"status"`
	Year        int        `json:"year"`
	Number      int        `json:"number"`
	DealerID    uuid.UUID  `json:"dealer_id"`
	DealerCode  string     `json:"dealer_code"`
	PrevNumber  *int       `json:"prev_number,omitempty"`
	CityID      *uuid.UUID `json:"city_id,omitempty"`
	ClientID    uuid.UUID  `json:"client_id"`
	Plate       string     `json:"plate,omitempty"`
	Fees        int64      `json:"fees"`
	Deposit     int64      `json:"deposit"`
	FiledAt     *time.Time `json:"filed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
	CanceledAt  *time.Time `json:"canceled_at,omitempty"`
}

func toCaseResponse(c *Case) caseResponse {
	return caseResponse{
		ID:          c.ID,
		DisplayID:   c.DisplayID(),
		Kind:        c.Kind,
		Status:      c.Status,
		Year:        c.Year,
		Number:      c.Number,
		DealerID:    c.DealerID,
		DealerCode:  c.DealerCode,
		PrevNumber:  c.PrevNumber,
		CityID:      c.CityID,
		ClientID:    c.ClientID,
		Plate:       c.Plate,
		Fees:        c.Fees,
		Deposit:     c.Deposit,
		FiledAt:     c.FiledAt,
		CreatedAt:   c.CreatedAt,
		FinalizedAt: c.FinalizedAt,
		CanceledAt:  c.CanceledAt,
	}
}

type createCaseRequest struct {
	Kind        Kind            `json:"kind" validate:"required"`
	DealerID    uuid.UUID       `json:"dealer_id" validate:"required"`
	Year        int             `json:"year" validate:"required,gt=0"`
	CityID      *uuid.UUID      `json:"city_id"`
	Plate       string          `json:"plate"`
	Payload     json.RawMessage `json:"payload"`
	Client      clientRequest   `json:"client" validate:"required"`
	InvoiceFile *fileRequest    `json:"invoice_file"`
}

type clientRequest struct {
	Name           string     `json:"name" validate:"required"`
	DocumentType   string     `json:"document_type"`
	DocumentNumber string     `json:"document_number"`
	Phone          string     `json:"phone"`
	Email          string     `json:"email" validate:"omitempty,email"`
	Address        string     `json:"address"`
	CityID         *uuid.UUID `json:"city_id"`
}

type fileRequest struct {
	Filename string `json:"filename" validate:"required"`
	Data     []byte `json:"data" validate:"required"`
}

func (h *Handler) createCase(w http.ResponseWriter, r *http.Request) {
	var req createCaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	in := CreateInput{
		Kind:     req.Kind,
		DealerID: req.DealerID,
		Year:     req.Year,
		CityID:   req.CityID,
		Plate:    req.Plate,
		Payload:  req.Payload,
		Client: clients.ResolveInput{
			Name:           req.Client.Name,
			DocumentType:   req.Client.DocumentType,
			DocumentNumber: req.Client.DocumentNumber,
			Phone:          req.Client.Phone,
			Email:          req.Client.Email,
			Address:        req.Client.Address,
			CityID:         req.Client.CityID,
		},
	}
	if req.InvoiceFile != nil {
		in.InvoiceFile = &FileInput{Filename: req.InvoiceFile.Filename, Data: req.InvoiceFile.Data}
	}

	c, err := h.service.Create(r.Context(), in, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("create case", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toCaseResponse(c))
}

func (h *Handler) getCase(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid case id")
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCaseResponse(c))
}

func (h *Handler) listCases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ListFilter{
		Kind:            Kind(q.Get("kind")),
		Status:          Status(q.Get("status")),
		Plate:           q.Get("plate"),
		IncludeCanceled: q.Get("include_canceled") == "true",
	}
	f.Year, _ = strconv.Atoi(q.Get("year"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))
	if v := q.Get("dealer_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			f.DealerID = &id
		}
	}
	if v := q.Get("client_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			f.ClientID = &id
		}
	}

	found, err := h.service.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list cases", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]caseResponse, 0, len(found))
	for i := range found {
		out = append(out, toCaseResponse(&found[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"cases": out})
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid case id")
		return
	}
	history, err := h.service.History(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transitions": history})
}

func (h *Handler) getReservation(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid case id")
		return
	}
	res, err := h.service.Reservation(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"reservation_id": res.ID,
		"number":         res.Number,
		"year":           res.Year,
		"status":         res.Status,
	})
}

type changeStateRequest struct {
	Status Status `json:"status" validate:"required"`
	Notes  string `json:"notes"`
	Plate  string `json:"plate"`
}

func (h *Handler) changeState(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid case id")
		return
	}
	var req changeStateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	c, err := h.service.ChangeState(r.Context(), id, req.Status, req.Notes, shared.ActorFromContext(r.Context()), req.Plate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCaseResponse(c))
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelCase(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid case id")
		return
	}
	var req reasonRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	c, err := h.service.Cancel(r.Context(), id, req.Reason, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCaseResponse(c))
}

type finalizeRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) finalizeCase(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid case id")
		return
	}
	var req finalizeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	c, err := h.service.Finalize(r.Context(), id, req.Notes, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCaseResponse(c))
}

type reopenRequest struct {
	Reason string `json:"reason" validate:"required"`
	Target Status `json:"target"`
}

func (h *Handler) reopenCase(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid case id")
		return
	}
	var req reopenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	c, err := h.service.Reopen(r.Context(), id, req.Reason, shared.ActorFromContext(r.Context()), req.Target)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCaseResponse(c))
}

type reassignRequest struct {
	DealerID uuid.UUID `json:"dealer_id" validate:"required"`
}

func (h *Handler) reassignDealer(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid case id")
		return
	}
	var req reassignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	c, err := h.service.ReassignDealer(r.Context(), id, req.DealerID, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCaseResponse(c))
}

func (h *Handler) deleteCase(w http.ResponseWriter, r *http.Request) {
	id, err := caseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid case id")
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
