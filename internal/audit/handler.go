package audit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/driverlog/internal/db"
	"github.com/wisbric/driverlog/internal/httpserver"
)

const defaultListLimit = 100

// CreateRequest is the JSON body for POST /audit-logs.
type CreateRequest struct {
	Timestamp    *time.Time      `json:"timestamp"`
	Action       string          `json:"action" validate:"required"`
	Username     string          `json:"username"`
	Success      *bool           `json:"success"`
	Details      json.RawMessage `json:"details"`
	ComputerName string          `json:"computer_name"`
	IPAddress    string          `json:"ip_address"`
	Platform     string          `json:"platform"`
}

// Handler provides HTTP handlers for the audit log API.
type Handler struct {
	logger *slog.Logger
	dbtx   db.DBTX
}

// NewHandler creates an audit log Handler.
func NewHandler(logger *slog.Logger, dbtx db.DBTX) *Handler {
	return &Handler{logger: logger, dbtx: dbtx}
}

// Routes returns a chi.Router with audit log routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	entry := Entry{
		Action:       req.Action,
		Username:     req.Username,
		ComputerName: req.ComputerName,
		IPAddress:    req.IPAddress,
		Platform:     req.Platform,
	}
	if req.Timestamp != nil {
		entry.Timestamp = *req.Timestamp
	}
	if req.Success != nil {
		entry.Success = *req.Success
	}
	if len(req.Details) > 0 {
		entry.Details = string(req.Details)
	}

	if err := NewStore(h.dbtx).Insert(r.Context(), entry); err != nil {
		h.logger.Error("creating audit log entry", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	httpserver.Respond(w, http.StatusCreated, map[string]any{"success": true})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}

	items, err := NewStore(h.dbtx).List(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing audit log", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []Row{}
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"success": true,
		"logs":    items,
	})
}
