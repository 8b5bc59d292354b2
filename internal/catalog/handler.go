package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tramitex/tramitex/internal/platform/httpx"
)

// Handler manages catalog endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dealers", h.listDealers)
	r.Post("/dealers", h.createDealer)
	r.Get("/dealers/{id}", h.getDealer)
	r.Get("/cities", h.listCities)
	r.Post("/cities", h.createCity)
}

func (h *Handler) listDealers(w http.ResponseWriter, r *http.Request) {
	dealers, err := h.service.ListDealers(r.Context())
	if err != nil {
		h.logger.Error("list dealers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"dealers": dealers})
}

func (h *Handler) getDealer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid dealer id")
		return
	}
	d, err := h.service.GetDealer(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

type createDealerRequest struct {
	Code string `json:"code" validate:"required"`
	Name string `json:"name" validate:"required"`
	NIT  string `json:"nit"`
}

func (h *Handler) createDealer(w http.ResponseWriter, r *http.Request) {
	var req createDealerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	d := &Dealer{Code: req.Code, Name: req.Name, NIT: req.NIT}
	if err := h.service.CreateDealer(r.Context(), d); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) listCities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.service.ListCities(r.Context())
	if err != nil {
		h.logger.Error("list cities", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"cities": cities})
}

type createCityRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) createCity(w http.ResponseWriter, r *http.Request) {
	var req createCityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	c := &City{Name: req.Name}
	if err := h.service.CreateCity(r.Context(), c); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}
