package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fushimori/lakomka/internal/auth"
	"github.com/fushimori/lakomka/internal/domain/message"
	"github.com/fushimori/lakomka/internal/rpc"
)

const (
	accessTokenCookie = "access_token"
	userDataCookie    = "user_data"

	msgAuthUnavailable = "Auth service is unavailable, try again later"
)

// Requester sends a request to the auth service and waits for its answer.
type Requester interface {
	SendAndWait(ctx context.Context, event string, payload message.Payload) (*message.Response, error)
}

type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// GatewayHandlers serve the public user-facing endpoints. Registration and
// login are forwarded to the auth service over the broker.
type GatewayHandlers struct {
	requester Requester
	tokens    TokenParser
	logger    *slog.Logger
}

func NewGatewayHandlers(requester Requester, tokens TokenParser, logger *slog.Logger) *GatewayHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &GatewayHandlers{
		requester: requester,
		tokens:    tokens,
		logger:    logger,
	}
}

func (h *GatewayHandlers) Register(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.forward(w, r, message.EventRegister)
	if !ok {
		return
	}

	status := http.StatusOK
	if !resp.OK() {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

// Login sets the access token cookie and redirects home on success.
func (h *GatewayHandlers) Login(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.forward(w, r, message.EventLogin)
	if !ok {
		return
	}

	if !resp.OK() || resp.Token == "" {
		writeJSON(w, http.StatusUnauthorized, resp)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    resp.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *GatewayHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{accessTokenCookie, userDataCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Profile answers with the email from the access token, or sends the user to
// the login page.
func (h *GatewayHandlers) Profile(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(accessTokenCookie)
	if err != nil || cookie.Value == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	claims, err := h.tokens.Parse(cookie.Value)
	if err != nil {
		h.logger.Debug("rejecting access token", "error", err)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"email": claims.Subject})
}

// forward reads the credentials form and relays it to the auth service. It
// writes the error response itself and reports false when there is nothing
// left to do.
func (h *GatewayHandlers) forward(w http.ResponseWriter, r *http.Request, event string) (*message.Response, bool) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return nil, false
	}

	payload := message.Payload{
		"email":    r.PostFormValue("email"),
		"password": r.PostFormValue("password"),
	}

	resp, err := h.requester.SendAndWait(r.Context(), event, payload)
	switch {
	case errors.Is(err, rpc.ErrBrokerUnavailable), errors.Is(err, rpc.ErrTimeout):
		h.logger.Warn("auth request failed", "event", event, "error", err)
		writeError(w, http.StatusServiceUnavailable, msgAuthUnavailable)
		return nil, false
	case errors.Is(err, context.Canceled):
		// Client went away.
		return nil, false
	case err != nil:
		h.logger.Error("auth request failed", "event", event, "error", err)
		writeError(w, http.StatusServiceUnavailable, msgAuthUnavailable)
		return nil, false
	}

	return resp, true
}
