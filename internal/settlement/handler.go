package settlement

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tramitex/tramitex/internal/platform/httpx"
	"github.com/tramitex/tramitex/internal/shared"
)

// Handler manages settlement endpoints, mounted under a case route.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers settlement routes. The enclosing router provides the
// {id} case parameter.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.getSettlement)
	r.Put("/lines", h.saveLines)
	r.Put("/fees", h.setFees)
	r.Put("/deposit", h.setDeposit)
	r.Put("/header", h.setHeader)
	r.Post("/payments", h.addPayment)
	r.Delete("/payments/{paymentID}", h.removePayment)
}

func requestCaseID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func (h *Handler) getSettlement(w http.ResponseWriter, r *http.Request) {
	id, err := requestCaseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid case id")
		return
	}
	view, err := h.service.ComputeSettlement(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

type lineRequest struct {
	Key       ConceptKey `json:"key"`
	Label     string     `json:"label"`
	Year      *int       `json:"year"`
	Base      int64      `json:"base"`
	Surcharge int64      `json:"surcharge"`
	Date      *time.Time `json:"date"`
	Notes     string     `json:"notes"`
}

type saveLinesRequest struct {
	Lines []lineRequest `json:"lines" validate:"required"`
}

func (h *Handler) saveLines(w http.ResponseWriter, r *http.Request) {
	id, err := requestCaseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid case id")
		return
	}
	var req saveLinesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	lines := make([]LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, LineInput{
			Key:       l.Key,
			Label:     l.Label,
			Year:      l.Year,
			Base:      l.Base,
			Surcharge: l.Surcharge,
			Date:      l.Date,
			Notes:     l.Notes,
		})
	}
	view, err := h.service.SaveLines(r.Context(), id, lines, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("save settlement lines", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

type amountRequest struct {
	Value int64 `json:"value"`
}

func (h *Handler) setFees(w http.ResponseWriter, r *http.Request) {
	h.setAmount(w, r, h.service.SetFees)
}

func (h *Handler) setDeposit(w http.ResponseWriter, r *http.Request) {
	h.setAmount(w, r, h.service.SetDeposit)
}

func (h *Handler) setAmount(w http.ResponseWriter, r *http.Request, set func(ctx context.Context, caseID uuid.UUID, value int64, actor string) error) {
	id, err := requestCaseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid case id")
		return
	}
	var req amountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := set(r.Context(), id, req.Value, shared.ActorFromContext(r.Context())); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.ComputeSettlement(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

type headerRequest struct {
	LabelOverride string     `json:"label_override"`
	ClientName    string     `json:"client_name"`
	Plate         string     `json:"plate"`
	CityName      string     `json:"city_name"`
	DealerName    string     `json:"dealer_name"`
	StatementDate *time.Time `json:"statement_date"`
}

func (h *Handler) setHeader(w http.ResponseWriter, r *http.Request) {
	id, err := requestCaseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid case id")
		return
	}
	var req headerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	header := Header{
		LabelOverride: req.LabelOverride,
		ClientName:    req.ClientName,
		Plate:         req.Plate,
		CityName:      req.CityName,
		DealerName:    req.DealerName,
		StatementDate: req.StatementDate,
	}
	if err := h.service.SetHeader(r.Context(), id, header, shared.ActorFromContext(r.Context())); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addPaymentRequest struct {
	Category  Category `json:"category" validate:"required"`
	Base      int64    `json:"base"`
	Surcharge int64    `json:"surcharge"`
	Notes     string   `json:"notes"`
}

func (h *Handler) addPayment(w http.ResponseWriter, r *http.Request) {
	id, err := requestCaseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid case id")
		return
	}
	var req addPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p, err := h.service.AddPayment(r.Context(), id, req.Category, req.Base, req.Surcharge, req.Notes, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"payment_id": p.ID})
}

func (h *Handler) removePayment(w http.ResponseWriter, r *http.Request) {
	id, err := requestCaseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid case id")
		return
	}
	paymentID, err := uuid.Parse(chi.URLParam(r, "paymentID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid payment id")
		return
	}
	if err := h.service.RemovePayment(r.Context(), id, paymentID, shared.ActorFromContext(r.Context())); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
