package documents

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tramitex/tramitex/internal/platform/httpx"
)

// CaseRef locates a case's storage folder.
type CaseRef struct {
	Year       int
	DealerCode string
	Number     int
}

// CaseLookup resolves a case id to its storage folder coordinates.
type CaseLookup func(ctx context.Context, caseID uuid.UUID) (CaseRef, error)

// Handler manages document endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	lookup   CaseLookup
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, lookup CaseLookup, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, lookup: lookup, validate: validate}
}

// MountRoutes registers document routes. The enclosing router provides the
// {id} case parameter.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listDocuments)
	r.Post("/", h.attachDocument)
	r.Delete("/{documentID}", h.removeDocument)
}

type documentResponse struct {
	ID        uuid.UUID `json:"id"`
	Kind      Kind      `json:"kind"`
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	caseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid case id")
		return
	}
	docs, err := h.service.ListByCase(r.Context(), caseID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentResponse{ID: d.ID, Kind: d.Kind, Filename: d.Filename, Path: d.Path, SizeBytes: d.SizeBytes})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"documents": out})
}

type attachRequest struct {
	Kind     Kind   `json:"kind" validate:"required"`
	Filename string `json:"filename" validate:"required"`
	Data     []byte `json:"data" validate:"required"`
}

func (h *Handler) attachDocument(w http.ResponseWriter, r *http.Request) {
	caseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid case id")
		return
	}
	var req attachRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	ref, err := h.lookup(r.Context(), caseID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Attach(r.Context(), AttachInput{
		CaseID:     caseID,
		Kind:       req.Kind,
		Filename:   req.Filename,
		Data:       req.Data,
		Year:       ref.Year,
		DealerCode: ref.DealerCode,
		Number:     ref.Number,
	})
	if err != nil {
		h.logger.Error("attach document", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, documentResponse{ID: doc.ID, Kind: doc.Kind, Filename: doc.Filename, Path: doc.Path, SizeBytes: doc.SizeBytes})
}

func (h *Handler) removeDocument(w http.ResponseWriter, r *http.Request) {
	documentID, err := uuid.Parse(chi.URLParam(r, "documentID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid document id")
		return
	}
	if err := h.service.Remove(r.Context(), documentID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
