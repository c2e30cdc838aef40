package webuser

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/driverlog/internal/audit"
	"github.com/wisbric/driverlog/internal/auth"
	"github.com/wisbric/driverlog/internal/crypto"
	"github.com/wisbric/driverlog/internal/db"
	"github.com/wisbric/driverlog/internal/httpserver"
	"github.com/wisbric/driverlog/internal/telemetry"
)

// Handler provides HTTP handlers for bootstrap, login, and user management.
type Handler struct {
	logger          *slog.Logger
	dbtx            db.DBTX
	sessions        *auth.SessionManager // nil when WEB_SESSION_SECRET is unset
	limiter         *auth.LoginLimiter
	bootstrapSecret string
	audit           *audit.Writer
}

// NewHandler creates a web user Handler.
func NewHandler(logger *slog.Logger, dbtx db.DBTX, sessions *auth.SessionManager, limiter *auth.LoginLimiter, bootstrapSecret string, auditWriter *audit.Writer) *Handler {
	return &Handler{
		logger:          logger,
		dbtx:            dbtx,
		sessions:        sessions,
		limiter:         limiter,
		bootstrapSecret: bootstrapSecret,
		audit:           auditWriter,
	}
}

// Routes returns the full /web/auth router: bootstrap and login are public,
// everything else sits behind the session middleware.
func (h *Handler) Routes(sessionMW func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/bootstrap", h.handleBootstrap)
	r.Post("/login", h.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(sessionMW)
		r.Mount("/", h.SessionRoutes())
	})
	return r
}

// PublicRoutes returns the pre-authentication routes (bootstrap and login).
func (h *Handler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/bootstrap", h.handleBootstrap)
	r.Post("/login", h.handleLogin)
	return r
}

// SessionRoutes returns the session-protected routes. The session middleware
// is applied by the caller; user management additionally requires admin.
func (h *Handler) SessionRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/me", h.handleMe)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(auth.RoleAdmin, auth.RoleSuperAdmin))
		r.Get("/users", h.handleListUsers)
		r.Post("/users", h.handleCreateUser)
		r.Patch("/users/{id}", h.handleUpdateUser)
		r.Post("/users/{id}/force-password", h.handleForcePassword)
		r.Post("/import-users", h.handleImportUsers)
	})
	return r
}

func (h *Handler) store() *Store {
	return NewStore(h.dbtx)
}

func (h *Handler) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	if h.bootstrapSecret == "" {
		httpserver.RespondError(w, http.StatusServiceUnavailable, "WEB_LOGIN_PASSWORD no configurado")
		return
	}
	if h.sessions == nil {
		httpserver.RespondError(w, http.StatusServiceUnavailable, "WEB_SESSION_SECRET no configurado")
		return
	}

	var req BootstrapRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	count, err := h.store().Count(r.Context())
	if err != nil {
		h.logger.Error("counting users for bootstrap", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if count > 0 || !crypto.ConstantTimeEq(req.BootstrapSecret, h.bootstrapSecret) {
		httpserver.RespondError(w, http.StatusForbidden, "bootstrap no disponible")
		return
	}

	role := req.Role
	if role == "" {
		role = auth.RoleAdmin
	}
	if !auth.IsValidRole(role) {
		httpserver.RespondError(w, http.StatusBadRequest, "rol invalido")
		return
	}
	if err := ValidatePassword(req.Password); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hashing bootstrap password", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	row, err := h.store().Create(r.Context(), CreateParams{
		Username:         req.Username,
		PasswordHash:     hash,
		PasswordHashType: crypto.HashTypePBKDF2,
		Role:             role,
		IsActive:         true,
	})
	if err != nil {
		h.logger.Error("creating bootstrap user", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	token, err := h.sessions.IssueToken(row.Username, row.Role)
	if err != nil {
		h.logger.Error("issuing bootstrap token", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logAudit(r, "bootstrap", row.Username, true)

	httpserver.Respond(w, http.StatusCreated, map[string]any{
		"success": true,
		"token":   token,
		"user":    row.ToResponse(),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		httpserver.RespondError(w, http.StatusServiceUnavailable, "WEB_SESSION_SECRET no configurado")
		return
	}

	var req LoginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	ip := auth.ClientIP(r)

	// The counter is checked before any hashing happens.
	tooMany, err := h.limiter.TooMany(ctx, ip, req.Username)
	if err != nil {
		h.logger.Warn("rate limit check failed, allowing attempt", "error", err)
	}
	if tooMany {
		telemetry.LoginRateLimitedTotal.Inc()
		telemetry.LoginsTotal.WithLabelValues("rate_limited").Inc()
		httpserver.RespondError(w, http.StatusTooManyRequests, "demasiados intentos, intente mas tarde")
		return
	}

	fail := func() {
		if err := h.limiter.RecordFailure(ctx, ip, req.Username); err != nil {
			h.logger.Warn("recording failed login", "error", err)
		}
		telemetry.LoginsTotal.WithLabelValues("failed").Inc()
		h.logAudit(r, "login", req.Username, false)
		httpserver.RespondError(w, http.StatusUnauthorized, "credenciales invalidas")
	}

	user, err := h.store().GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			fail()
			return
		}
		h.logger.Error("login user lookup", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !user.IsActive {
		fail()
		return
	}

	var verified bool
	switch user.PasswordHashType {
	case crypto.HashTypePBKDF2:
		verified = crypto.VerifyPassword(req.Password, user.PasswordHash)
	case crypto.HashTypeBcrypt:
		verified = crypto.VerifyBcrypt(req.Password, user.PasswordHash)
	}
	if !verified {
		fail()
		return
	}

	// Imported bcrypt hashes upgrade to PBKDF2, persisted before the token
	// is issued.
	if user.PasswordHashType == crypto.HashTypeBcrypt {
		newHash, err := crypto.HashPassword(req.Password)
		if err != nil {
			h.logger.Error("rehashing password", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := h.store().UpdatePassword(ctx, user.ID, newHash, crypto.HashTypePBKDF2); err != nil {
			h.logger.Error("persisting rehashed password", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	if err := h.store().TouchLastLogin(ctx, user.ID); err != nil {
		h.logger.Warn("updating last login", "error", err, "username", user.Username)
	}
	if err := h.limiter.Reset(ctx, ip, req.Username); err != nil {
		h.logger.Warn("resetting rate limit", "error", err)
	}

	token, err := h.sessions.IssueToken(user.Username, user.Role)
	if err != nil {
		h.logger.Error("issuing session token", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	telemetry.LoginsTotal.WithLabelValues("success").Inc()
	h.logAudit(r, "login", user.Username, true)

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
		"user":    user.ToResponse(),
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "autenticacion requerida")
		return
	}

	user, err := h.store().GetByUsername(r.Context(), identity.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusUnauthorized, "token invalido")
			return
		}
		h.logger.Error("loading session user", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    user.ToResponse(),
	})
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store().List(r.Context())
	if err != nil {
		h.logger.Error("listing users", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]Response, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToResponse())
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"success": true,
		"users":   out,
	})
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if err := ValidatePassword(req.Password); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.store().GetByUsername(r.Context(), req.Username); err == nil {
		httpserver.RespondError(w, http.StatusBadRequest, "el usuario ya existe")
		return
	} else if !errors.Is(err, pgx.ErrNoRows) {
		h.logger.Error("checking duplicate username", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hashing password", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	row, err := h.store().Create(r.Context(), CreateParams{
		Username:         req.Username,
		PasswordHash:     hash,
		PasswordHashType: crypto.HashTypePBKDF2,
		Role:             req.Role,
		IsActive:         true,
	})
	if err != nil {
		h.logger.Error("creating user", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logAudit(r, "user_create", row.Username, true)

	httpserver.Respond(w, http.StatusCreated, map[string]any{
		"success": true,
		"user":    row.ToResponse(),
	})
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUserID(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	target, err := h.store().Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "usuario no encontrado")
			return
		}
		h.logger.Error("loading user", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if target.Role == auth.RoleSuperAdmin {
		demoted := req.Role != nil && *req.Role != auth.RoleSuperAdmin
		deactivated := req.IsActive != nil && !*req.IsActive
		if demoted || deactivated {
			httpserver.RespondError(w, http.StatusForbidden, "no se puede degradar ni desactivar un super_admin")
			return
		}
	}

	row, err := h.store().UpdateRoleActive(r.Context(), id, req.Role, req.IsActive)
	if err != nil {
		h.logger.Error("updating user", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logAudit(r, "user_update", row.Username, true)

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    row.ToResponse(),
	})
}

func (h *Handler) handleForcePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUserID(w, r)
	if !ok {
		return
	}

	var req ForcePasswordRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if err := ValidatePassword(req.NewPassword); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := crypto.HashPassword(req.NewPassword)
	if err != nil {
		h.logger.Error("hashing forced password", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Tokens carry no revocation list, and the session middleware checks only
	// that the user exists, is active and still holds the claimed role, so
	// tokens issued before this change stay valid until they expire.
	if err := h.store().UpdatePassword(r.Context(), id, hash, crypto.HashTypePBKDF2); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "usuario no encontrado")
			return
		}
		h.logger.Error("forcing password", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logAudit(r, "user_force_password", fmt.Sprintf("id:%d", id), true)

	httpserver.Respond(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleImportUsers(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	imported := 0
	var failures []string
	for _, u := range req.Users {
		_, err := h.store().Create(r.Context(), CreateParams{
			Username:         u.Username,
			PasswordHash:     u.PasswordHash,
			PasswordHashType: u.PasswordHashType,
			Role:             u.Role,
			IsActive:         u.IsActive,
		})
		if err != nil {
			h.logger.Warn("importing user", "error", err, "username", u.Username)
			failures = append(failures, u.Username)
			continue
		}
		imported++
	}
	h.logAudit(r, "users_import", fmt.Sprintf("imported:%d", imported), len(failures) == 0)

	if failures == nil {
		failures = []string{}
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"success":  true,
		"imported": imported,
		"failed":   failures,
	})
}

// parseUserID reads the {id} URL parameter as a positive integer.
func parseUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		httpserver.RespondError(w, http.StatusBadRequest, "id invalido")
		return 0, false
	}
	return id, true
}

func (h *Handler) logAudit(r *http.Request, action, username string, success bool) {
	if h.audit == nil {
		return
	}
	h.audit.Log(audit.Entry{
		Action:    action,
		Username:  username,
		Success:   success,
		IPAddress: auth.ClientIP(r),
	})
}
