package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fushimori/lakomka/internal/domain/user"
	"github.com/fushimori/lakomka/internal/rpc"
	"github.com/fushimori/lakomka/internal/usecase"
)

type UserGetter interface {
	Execute(ctx context.Context, email string) (*usecase.UserDTO, error)
}

type ConsumerState interface {
	State() rpc.State
}

// AuthHandlers serve the auth service's internal HTTP API.
type AuthHandlers struct {
	getUser  UserGetter
	consumer ConsumerState
	logger   *slog.Logger
}

func NewAuthHandlers(getUser UserGetter, consumer ConsumerState, logger *slog.Logger) *AuthHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandlers{
		getUser:  getUser,
		consumer: consumer,
		logger:   logger,
	}
}

func (h *AuthHandlers) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "auth_service running"})
}

// Health is ok only while the consumer is attached to the queue.
func (h *AuthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	state := h.consumer.State()
	status := http.StatusOK
	if state != rpc.StateListening {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{
		"status":   http.StatusText(status),
		"consumer": state.String(),
	})
}

func (h *AuthHandlers) GetUserID(w http.ResponseWriter, r *http.Request) {
	u, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"user_id": u.ID})
}

func (h *AuthHandlers) GetRole(w http.ResponseWriter, r *http.Request) {
	u, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"role": u.Role})
}

func (h *AuthHandlers) lookup(w http.ResponseWriter, r *http.Request) (*usecase.UserDTO, bool) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "missing email")
		return nil, false
	}

	u, err := h.getUser.Execute(r.Context(), email)
	if errors.Is(err, user.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("user lookup failed", "email", email, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return u, true
}
