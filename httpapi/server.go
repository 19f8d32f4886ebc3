package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	idp "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002"
)

// SessionCookieName is an exported constant or variable used by the authentication engine.
const SessionCookieName = "idp_op_session"

const maxBodyBytes = 64 * 1024

// Server defines a public type used by idp APIs.
//
// Server instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Server struct {
	engine *idp.Engine
	router chi.Router
}

// NewServer describes the newserver operation and its observable behavior.
//
// NewServer may return an error when input validation, dependency calls, or security checks fail.
// NewServer does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewServer(engine *idp.Engine) *Server {
	s := &Server{engine: engine}

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Post("/tenants/{tenantID}/transactions", s.handleCreateTransaction)
		r.Get("/tenants/{tenantID}/silent-authorization", s.handleSilentAuthorization)
		r.Post("/tenants/{tenantID}/users/{userID}/password-reset", s.handlePasswordReset)
		r.Get("/transactions/{transactionID}", s.handleTransactionView)
		r.Post("/transactions/{transactionID}/interactions/{interactionType}", s.handleInteraction)
		r.Post("/transactions/{transactionID}/complete", s.handleComplete)
	})
	s.router = r

	return s
}

// ServeHTTP describes the servehttp operation and its observable behavior.
//
// ServeHTTP may return an error when input validation, dependency calls, or security checks fail.
// ServeHTTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type createTransactionRequest struct {
	Flow            string             `json:"flow"`
	AuthorizationID string             `json:"authorization_id"`
	Request         idp.RequestContext `json:"request"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Flow == "" || req.AuthorizationID == "" {
		writeError(w, idp.ErrInvalidRequest)
		return
	}

	tenantID := chi.URLParam(r, "tenantID")
	ctx := requestContext(r)

	tx, err := s.engine.CreateTransaction(ctx, tenantID, req.Flow, req.AuthorizationID, sessionCookie(r), req.Request)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := s.engine.TransactionView(ctx, tx.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleTransactionView(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.TransactionView(requestContext(r), chi.URLParam(r, "transactionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	var params map[string]any
	if !decodeBody(w, r, &params) {
		return
	}

	result, err := s.engine.ExecuteInteraction(
		requestContext(r),
		chi.URLParam(r, "transactionID"),
		chi.URLParam(r, "interactionType"),
		params,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type completeResponse struct {
	UserID          string `json:"user_id"`
	AuthorizationID string `json:"authorization_id"`
	SessionID       string `json:"session_id"`
	SessionAction   string `json:"session_action"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.CompleteAndGrant(
		requestContext(r),
		chi.URLParam(r, "transactionID"),
		sessionCookie(r),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    result.Cookie,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, completeResponse{
		UserID:          result.UserID,
		AuthorizationID: result.AuthorizationID,
		SessionID:       result.SessionID,
		SessionAction:   string(result.SessionAction),
	})
}

type silentAuthorizationResponse struct {
	Authorized bool   `json:"authorized"`
	UserID     string `json:"user_id"`
	SessionID  string `json:"session_id"`
}

func (s *Server) handleSilentAuthorization(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	rc := idp.RequestContext{
		ClientID: query.Get("client_id"),
	}
	if raw := query.Get("scope"); raw != "" {
		rc.Scopes = strings.Fields(raw)
	}
	if rc.ClientID == "" {
		writeError(w, idp.ErrInvalidRequest)
		return
	}

	result, err := s.engine.CheckSilentAuthorization(
		requestContext(r),
		sessionCookie(r),
		chi.URLParam(r, "tenantID"),
		rc,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, silentAuthorizationResponse{
		Authorized: result.Authorized,
		UserID:     result.UserID,
		SessionID:  result.SessionID,
	})
}

type passwordResetRequest struct {
	ClientID    string `json:"client_id"`
	NewPassword string `json:"new_password"`
}

func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ClientID == "" || req.NewPassword == "" {
		writeError(w, idp.ErrInvalidRequest)
		return
	}

	err := s.engine.ResetPassword(
		requestContext(r),
		chi.URLParam(r, "tenantID"),
		chi.URLParam(r, "userID"),
		req.ClientID,
		req.NewPassword,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeBody parses a JSON request body, rejecting malformed or oversized
// payloads locally with invalid_request.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, idp.ErrInvalidRequest)
		return false
	}
	return true
}

func sessionCookie(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func requestContext(r *http.Request) context.Context {
	ctx := r.Context()
	if host := clientHost(r); host != "" {
		ctx = idp.WithClientIP(ctx, host)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = idp.WithUserAgent(ctx, ua)
	}
	return ctx
}

func clientHost(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		return addr[:i]
	}
	return addr
}
