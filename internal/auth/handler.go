package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Authenticator is the part of Service the HTTP layer depends on.
type Authenticator interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Refresh(ctx context.Context, req RefreshRequest) (*RefreshResponse, error)
	Logout(ctx context.Context, userID int64) error
	ValidateToken(token string) bool
	Authenticate(token string) (*Claims, error)
}

// Handler exposes HTTP endpoints for the auth flows.
type Handler struct {
	svc    Authenticator
	logger *zap.SugaredLogger
}

func NewHandler(svc Authenticator, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, logger: logger}
}

type messageResponse struct {
	Message string `json:"message"`
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

type currentUserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Debugw("invalid register payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, RegisterResponse{})
		return
	}
	h.logger.Infow("register attempt", "username", req.Username)
	resp, err := h.svc.Register(r.Context(), req)
	if err != nil {
		h.logger.Debugw("register failed", "err", err)
		h.writeJSON(w, statusFor(err), RegisterResponse{})
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, LoginResponse{})
		return
	}
	h.logger.Infow("login attempt", "username", req.Username)
	resp, err := h.svc.Login(r.Context(), req)
	if err != nil {
		h.logger.Debugw("login failed", "err", err)
		h.writeJSON(w, statusFor(err), LoginResponse{})
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Debugw("invalid refresh payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, RefreshResponse{})
		return
	}
	resp, err := h.svc.Refresh(r.Context(), req)
	if err != nil {
		h.logger.Debugw("refresh failed", "err", err)
		h.writeJSON(w, statusFor(err), RefreshResponse{})
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Logout must run behind RequireBearer.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "user not found in token"})
		return
	}
	id, err := claims.UserID()
	if err != nil {
		h.writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "user not found in token"})
		return
	}
	if err := h.svc.Logout(r.Context(), id); err != nil {
		h.logger.Warnw("logout failed", "user_id", id, "err", err)
		h.writeJSON(w, statusFor(err), messageResponse{Message: "logout failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "logout successful"})
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		h.writeJSON(w, http.StatusBadRequest, messageResponse{Message: "token is required"})
		return
	}
	h.writeJSON(w, http.StatusOK, validateResponse{Valid: h.svc.ValidateToken(token)})
}

// CurrentUser echoes the identity claims of the bearer token.
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "user not found in token"})
		return
	}
	h.writeJSON(w, http.StatusOK, currentUserResponse{
		ID:       claims.Subject,
		Username: claims.Username,
		Email:    claims.Email,
		Role:     claims.Role,
	})
}

// statusFor maps a service error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrPasswordMismatch),
		errors.Is(err, ErrPasswordTooShort),
		errors.Is(err, ErrUnknownAccount):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTokenExpiredOrUnknown),
		errors.Is(err, ErrMalformedOrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrDuplicateAccount):
		return http.StatusConflict
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
