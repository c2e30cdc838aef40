package incident

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/driverlog/internal/audit"
	"github.com/wisbric/driverlog/internal/auth"
	"github.com/wisbric/driverlog/internal/db"
	"github.com/wisbric/driverlog/internal/httpserver"
	"github.com/wisbric/driverlog/internal/telemetry"
)

// TxBeginner starts transactions; satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Handler provides HTTP handlers for the incidents API. Routes are mounted
// under /installations/{id}/incidents.
type Handler struct {
	logger *slog.Logger
	dbtx   db.DBTX
	tx     TxBeginner
	audit  *audit.Writer
}

// NewHandler creates an incident Handler. tx is used for the create path so
// the insert and the optional cascade into the parent commit together.
func NewHandler(logger *slog.Logger, dbtx db.DBTX, tx TxBeginner, auditWriter *audit.Writer) *Handler {
	return &Handler{logger: logger, dbtx: dbtx, tx: tx, audit: auditWriter}
}

// Routes returns a chi.Router with the incident routes. The installation id
// comes from the parent route pattern.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	installationID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || installationID < 1 {
		httpserver.RespondError(w, http.StatusBadRequest, "id invalido")
		return
	}

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	// Defaults depend on the auth path: web sessions report as the logged-in
	// user, machine clients as unknown/mobile.
	identity := auth.FromContext(r.Context())
	reporter := req.ReporterUsername
	source := req.Source
	if identity != nil && identity.Method == auth.MethodSession {
		if reporter == "" {
			reporter = identity.Username
		}
		if source == "" {
			source = SourceWeb
		}
	} else {
		if reporter == "" {
			reporter = "unknown"
		}
		if source == "" {
			source = SourceMobile
		}
	}

	ctx := r.Context()
	tx, err := h.tx.Begin(ctx)
	if err != nil {
		h.logger.Error("beginning incident transaction", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Rollback(ctx)

	// Lock the parent row: the cascade reads and rewrites notes/time.
	var curNotes string
	var curSeconds int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(notes, ''), COALESCE(installation_time_seconds, 0) FROM installations WHERE id = $1 FOR UPDATE`,
		installationID,
	).Scan(&curNotes, &curSeconds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "registro no encontrado")
			return
		}
		h.logger.Error("locking installation", "error", err, "installation_id", installationID)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	row, err := NewStore(tx).Insert(ctx, InsertParams{
		InstallationID:        installationID,
		ReporterUsername:      reporter,
		Note:                  req.Note,
		TimeAdjustmentSeconds: req.TimeAdjustmentSeconds,
		Severity:              req.Severity,
		Source:                source,
	})
	if err != nil {
		h.logger.Error("creating incident", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if req.ApplyToInstallation {
		_, err = tx.Exec(ctx,
			`UPDATE installations SET notes = $2, installation_time_seconds = $3 WHERE id = $1`,
			installationID,
			appendIncidentNote(curNotes, req.Note),
			adjustedSeconds(curSeconds, req.TimeAdjustmentSeconds),
		)
		if err != nil {
			h.logger.Error("applying incident to installation", "error", err, "installation_id", installationID)
			httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		h.logger.Error("committing incident", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	telemetry.IncidentsCreatedTotal.Inc()
	h.logMutation(r, row)

	httpserver.Respond(w, http.StatusCreated, map[string]any{
		"success":  true,
		"incident": row,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	installationID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || installationID < 1 {
		httpserver.RespondError(w, http.StatusBadRequest, "id invalido")
		return
	}

	store := NewStore(h.dbtx)
	incidents, err := store.ListByInstallation(r.Context(), installationID)
	if err != nil {
		h.logger.Error("listing incidents", "error", err, "installation_id", installationID)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	photos, err := store.ListPhotosByInstallation(r.Context(), installationID)
	if err != nil {
		h.logger.Error("listing incident photos", "error", err, "installation_id", installationID)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"success":         true,
		"installation_id": installationID,
		"incidents":       GroupPhotos(incidents, photos),
	})
}

func (h *Handler) logMutation(r *http.Request, row Row) {
	if h.audit == nil {
		return
	}
	identity := auth.FromContext(r.Context())
	if identity == nil || identity.Method != auth.MethodSession {
		return
	}
	h.audit.Log(audit.Entry{
		Action:    "incident_create",
		Username:  identity.Username,
		Success:   true,
		Details:   fmt.Sprintf(`{"incident_id":%d,"installation_id":%d}`, row.ID, row.InstallationID),
		IPAddress: auth.ClientIP(r),
	})
}
