package installation

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/driverlog/internal/audit"
	"github.com/wisbric/driverlog/internal/auth"
	"github.com/wisbric/driverlog/internal/db"
	"github.com/wisbric/driverlog/internal/httpserver"
	"github.com/wisbric/driverlog/internal/telemetry"
)

// Handler provides HTTP handlers for the installations API.
type Handler struct {
	logger    *slog.Logger
	dbtx      db.DBTX
	audit     *audit.Writer
	incidents chi.Router
}

// NewHandler creates an installation Handler. incidents is the sub-router
// served under /{id}/incidents (may be nil in tests).
func NewHandler(logger *slog.Logger, dbtx db.DBTX, auditWriter *audit.Writer, incidents chi.Router) *Handler {
	return &Handler{logger: logger, dbtx: dbtx, audit: auditWriter, incidents: incidents}
}

// Routes returns a chi.Router with all installation routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
		if h.incidents != nil {
			r.Mount("/incidents", h.incidents)
		}
	})
	return r
}

// RecordRoutes returns the router for POST /records (manual capture).
func (h *Handler) RecordRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreateRecord)
	return r
}

func (h *Handler) store() *Store {
	return NewStore(h.dbtx)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	row, err := h.store().Insert(r.Context(), req.Normalize(time.Now().UTC()))
	if err != nil {
		h.logger.Error("creating installation", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	telemetry.InstallationsCreatedTotal.Inc()
	h.logMutation(r, "installation_create", row.ID)

	httpserver.Respond(w, http.StatusCreated, map[string]any{"success": true})
}

func (h *Handler) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	row, err := h.store().Insert(r.Context(), req.NormalizeManual(time.Now().UTC()))
	if err != nil {
		h.logger.Error("creating manual record", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	telemetry.InstallationsCreatedTotal.Inc()
	h.logMutation(r, "record_create", row.ID)

	httpserver.Respond(w, http.StatusCreated, map[string]any{
		"success": true,
		"record":  row,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filters, err := ParseFilters(r.URL.Query())
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.store().List(r.Context())
	if err != nil {
		h.logger.Error("listing installations", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filtered := filters.Apply(rows)
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"success":       true,
		"installations": filtered,
		"count":         len(filtered),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	row, err := h.store().Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "registro no encontrado")
			return
		}
		h.logger.Error("getting installation", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"success":      true,
		"installation": row,
	})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	row, err := h.store().UpdateNotesTime(r.Context(), id, req.Notes, req.InstallationTimeSeconds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "registro no encontrado")
			return
		}
		h.logger.Error("updating installation", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logMutation(r, "installation_update", row.ID)

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"success":      true,
		"installation": row,
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.store().Delete(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "registro no encontrado")
			return
		}
		h.logger.Error("deleting installation", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logMutation(r, "installation_delete", id)

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Registro %d eliminado.", id),
	})
}

// parseID reads the {id} URL parameter as a positive integer, writing a 400
// on failure.
func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		httpserver.RespondError(w, http.StatusBadRequest, "id invalido")
		return 0, false
	}
	return id, true
}

// logMutation records web-console mutations in the service audit trail.
func (h *Handler) logMutation(r *http.Request, action string, id int64) {
	if h.audit == nil {
		return
	}
	identity := auth.FromContext(r.Context())
	if identity == nil || identity.Method != auth.MethodSession {
		return
	}
	h.audit.Log(audit.Entry{
		Action:    action,
		Username:  identity.Username,
		Success:   true,
		Details:   fmt.Sprintf(`{"installation_id":%d}`, id),
		IPAddress: auth.ClientIP(r),
	})
}
