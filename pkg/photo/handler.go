package photo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/driverlog/internal/audit"
	"github.com/wisbric/driverlog/internal/auth"
	"github.com/wisbric/driverlog/internal/blob"
	"github.com/wisbric/driverlog/internal/crypto"
	"github.com/wisbric/driverlog/internal/db"
	"github.com/wisbric/driverlog/internal/httpserver"
	"github.com/wisbric/driverlog/internal/telemetry"
)

// Handler provides HTTP handlers for photo upload and fetch.
type Handler struct {
	logger *slog.Logger
	dbtx   db.DBTX
	blobs  blob.ObjectStore // nil when INCIDENTS_BUCKET is not configured
	audit  *audit.Writer
}

// NewHandler creates a photo Handler. blobs may be nil; upload and fetch then
// answer 500 naming the missing binding.
func NewHandler(logger *slog.Logger, dbtx db.DBTX, blobs blob.ObjectStore, auditWriter *audit.Writer) *Handler {
	return &Handler{logger: logger, dbtx: dbtx, blobs: blobs, audit: auditWriter}
}

// UploadRoutes returns the router mounted at /incidents.
func (h *Handler) UploadRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{id}/photos", h.handleUpload)
	return r
}

// FetchRoutes returns the router mounted at /photos.
func (h *Handler) FetchRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}", h.handleFetch)
	return r
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	incidentID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || incidentID < 1 {
		httpserver.RespondError(w, http.StatusBadRequest, "id invalido")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	ext, ok := ExtensionFor(contentType)
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest,
			"tipo de contenido no permitido (image/jpeg, image/png, image/webp)")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxSizeBytes+1))
	if err != nil {
		h.logger.Error("reading photo body", "error", err)
		httpserver.RespondError(w, http.StatusBadRequest, "no se pudo leer el cuerpo")
		return
	}
	switch {
	case len(body) == 0:
		httpserver.RespondError(w, http.StatusBadRequest, "imagen vacia")
		return
	case len(body) < MinSizeBytes:
		httpserver.RespondError(w, http.StatusBadRequest, "imagen demasiado pequena o corrupta")
		return
	case len(body) > MaxSizeBytes:
		httpserver.RespondError(w, http.StatusRequestEntityTooLarge, "imagen demasiado grande (max 5 MiB)")
		return
	}

	if !MatchesMagic(contentType, body) {
		httpserver.RespondError(w, http.StatusBadRequest, "el archivo no es una imagen valida")
		return
	}

	store := NewStore(h.dbtx)
	installationID, err := store.IncidentInstallation(r.Context(), incidentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "incidencia no encontrada")
			return
		}
		h.logger.Error("looking up incident", "error", err, "incident_id", incidentID)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.blobs == nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "INCIDENTS_BUCKET no configurado")
		return
	}

	sum := crypto.SHA256Hex(body)
	rand := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	key := BuildKey(installationID, incidentID, time.Now(), rand, ext)

	fileName := SanitizeFileName(r.Header.Get("X-File-Name"), incidentID)

	// The blob must be durable before the row exists: a row pointing at a
	// missing object must never occur. An orphan blob after a failed insert
	// is acceptable; deletion below is best-effort cleanup.
	if err := h.blobs.Put(r.Context(), key, body, contentType); err != nil {
		h.logger.Error("uploading photo blob", "error", err, "key", key)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	row, err := store.Insert(r.Context(), InsertParams{
		IncidentID:  incidentID,
		R2Key:       key,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   int64(len(body)),
		SHA256:      sum,
	})
	if err != nil {
		h.logger.Error("inserting photo row", "error", err, "key", key)
		if delErr := h.blobs.Delete(context.WithoutCancel(r.Context()), key); delErr != nil {
			h.logger.Warn("cleaning up orphan blob", "error", delErr, "key", key)
		}
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	telemetry.PhotosUploadedTotal.WithLabelValues(contentType).Inc()
	h.logMutation(r, row)

	httpserver.Respond(w, http.StatusCreated, map[string]any{
		"success": true,
		"photo":   row,
	})
}

func (h *Handler) handleFetch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		httpserver.RespondError(w, http.StatusBadRequest, "id invalido")
		return
	}

	row, err := NewStore(h.dbtx).Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "foto no encontrada")
			return
		}
		h.logger.Error("getting photo", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.blobs == nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "INCIDENTS_BUCKET no configurado")
		return
	}

	data, contentType, err := h.blobs.Get(r.Context(), row.R2Key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "foto no encontrada")
			return
		}
		h.logger.Error("fetching photo blob", "error", err, "key", row.R2Key)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if contentType == "" {
		contentType = row.ContentType
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("writing photo response", "error", err, "id", id)
	}
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
		Action:    "photo_upload",
		Username:  identity.Username,
		Success:   true,
		Details:   fmt.Sprintf(`{"photo_id":%d,"incident_id":%d}`, row.ID, row.IncidentID),
		IPAddress: auth.ClientIP(r),
	})
}
