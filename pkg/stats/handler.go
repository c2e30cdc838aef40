package stats

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/driverlog/internal/db"
	"github.com/wisbric/driverlog/internal/httpserver"
	"github.com/wisbric/driverlog/pkg/installation"
)

// Handler serves GET /statistics over the same filters as the installations
// list.
type Handler struct {
	logger *slog.Logger
	dbtx   db.DBTX
}

// NewHandler creates a statistics Handler.
func NewHandler(logger *slog.Logger, dbtx db.DBTX) *Handler {
	return &Handler{logger: logger, dbtx: dbtx}
}

// Routes returns a chi.Router with the statistics route mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleStatistics)
	return r
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	filters, err := installation.ParseFilters(r.URL.Query())
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := installation.NewStore(h.dbtx).List(r.Context())
	if err != nil {
		h.logger.Error("listing installations for statistics", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := Compute(filters.Apply(rows))
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"success":    true,
		"statistics": result,
	})
}
