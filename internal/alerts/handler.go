package alerts

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tramitex/tramitex/internal/platform/httpx"
)

// Handler manages alert endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers alert routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listAlerts)
	r.Post("/scan", h.runScan)
}

func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	found, err := h.service.Open(r.Context())
	if err != nil {
		h.logger.Error("list alerts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"alerts": found})
}

func (h *Handler) runScan(w http.ResponseWriter, r *http.Request) {
	overdue, err := h.service.Scan(r.Context())
	if err != nil {
		h.logger.Error("overdue scan", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"overdue": overdue})
}
