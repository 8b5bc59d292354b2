package clients

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tramitex/tramitex/internal/platform/httpx"
)

// Handler manages client endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers client routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listClients)
	r.Get("/{id}", h.getClient)
	r.Put("/{id}", h.updateClient)
	r.Post("/resolve", h.resolveClient)
}

type clientResponse struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	DocumentType   string     `json:"document_type,omitempty"`
	DocumentNumber string     `json:"document_number,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	Email          string     `json:"email,omitempty"`
	Address        string     `json:"address,omitempty"`
	CityID         *uuid.UUID `json:"city_id,omitempty"`
}

func toClientResponse(c *Client) clientResponse {
	return clientResponse{
		ID:             c.ID,
		Name:           c.Name,
		DocumentType:   c.DocumentType,
		DocumentNumber: c.DocumentNumber,
		Phone:          c.Phone,
		Email:          c.Email,
		Address:        c.Address,
		CityID:         c.CityID,
	}
}

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	found, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list clients", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]clientResponse, 0, len(found))
	for i := range found {
		out = append(out, toClientResponse(&found[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"clients": out})
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid client id")
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toClientResponse(c))
}

type clientUpdateRequest struct {
	Name           string     `json:"name" validate:"required"`
	DocumentType   string     `json:"document_type"`
	DocumentNumber string     `json:"document_number"`
	Phone          string     `json:"phone"`
	Email          string     `json:"email" validate:"omitempty,email"`
	Address        string     `json:"address"`
	CityID         *uuid.UUID `json:"city_id"`
}

func (h *Handler) updateClient(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid client id")
		return
	}
	var req clientUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c.Name = req.Name
	c.DocumentType = req.DocumentType
	c.DocumentNumber = req.DocumentNumber
	c.Phone = req.Phone
	c.Email = req.Email
	c.Address = req.Address
	c.CityID = req.CityID
	if err := h.service.Update(r.Context(), c); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toClientResponse(c))
}

type resolveRequest struct {
	Name           string     `json:"name" validate:"required"`
	DocumentType   string     `json:"document_type"`
	DocumentNumber string     `json:"document_number"`
	Phone          string     `json:"phone"`
	Email          string     `json:"email" validate:"omitempty,email"`
	Address        string     `json:"address"`
	CityID         *uuid.UUID `json:"city_id"`
}

func (h *Handler) resolveClient(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	c, err := h.service.Resolve(r.Context(), ResolveInput{
		Name:           req.Name,
		DocumentType:   req.DocumentType,
		DocumentNumber: req.DocumentNumber,
		Phone:          req.Phone,
		Email:          req.Email,
		Address:        req.Address,
		CityID:         req.CityID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toClientResponse(c))
}
