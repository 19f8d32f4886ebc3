package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	idp "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002"
)

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

type errorMapping struct {
	status int
	code   string
}

var errorMappings = []struct {
	sentinel error
	mapping  errorMapping
}{
	{idp.ErrPolicyNotConfigured, errorMapping{http.StatusNotFound, "policy_not_configured"}},
	{idp.ErrNoPolicyMatched, errorMapping{http.StatusBadRequest, "no_policy_matched"}},
	{idp.ErrPolicyConfigurationInvalid, errorMapping{http.StatusInternalServerError, "policy_configuration_invalid"}},
	{idp.ErrUnsupportedInteractionType, errorMapping{http.StatusNotFound, "unsupported_interaction_type"}},
	{idp.ErrInvalidRequest, errorMapping{http.StatusBadRequest, "invalid_request"}},
	{idp.ErrAuthenticationFailed, errorMapping{http.StatusBadRequest, "authentication_failed"}},
	{idp.ErrTransactionNotFound, errorMapping{http.StatusNotFound, "transaction_not_found"}},
	{idp.ErrTransactionExpired, errorMapping{http.StatusBadRequest, "transaction_expired"}},
	{idp.ErrTransactionClosed, errorMapping{http.StatusBadRequest, "transaction_closed"}},
	{idp.ErrTransactionNotSatisfied, errorMapping{http.StatusBadRequest, "transaction_not_satisfied"}},
	{idp.ErrDifferentUserAuthenticated, errorMapping{http.StatusForbidden, "different_user_authenticated"}},
	{idp.ErrInsufficientScope, errorMapping{http.StatusForbidden, "insufficient_scope"}},
	{idp.ErrSessionNotFound, errorMapping{http.StatusBadRequest, "login_required"}},
	{idp.ErrConsentRequired, errorMapping{http.StatusBadRequest, "consent_required"}},
	{idp.ErrDeliveryUnavailable, errorMapping{http.StatusServiceUnavailable, "delivery_unavailable"}},
	{idp.ErrStoreUnavailable, errorMapping{http.StatusServiceUnavailable, "temporarily_unavailable"}},
	{idp.ErrEngineNotReady, errorMapping{http.StatusServiceUnavailable, "temporarily_unavailable"}},
}

// writeError maps an engine error to the structured JSON error contract. The
// authentication_failed body stays generic so verification failures never
// reveal which check tripped.
func writeError(w http.ResponseWriter, err error) {
	mapping := errorMapping{http.StatusInternalServerError, "server_error"}
	for _, m := range errorMappings {
		if errors.Is(err, m.sentinel) {
			mapping = m.mapping
			break
		}
	}

	body := errorBody{
		Error:       mapping.code,
		Description: describeError(mapping.code),
	}

	var scopeErr *idp.InsufficientScopeError
	if errors.As(err, &scopeErr) {
		body.Scope = scopeErr.Scope
	}

	writeJSON(w, mapping.status, body)
}

func describeError(code string) string {
	switch code {
	case "authentication_failed":
		return "authentication failed"
	case "invalid_request":
		return "the request payload is malformed"
	case "login_required":
		return "no active session"
	case "consent_required":
		return "user consent has not been granted for the requested scopes"
	case "insufficient_scope":
		return "the request requires a scope that was not granted"
	case "temporarily_unavailable":
		return "a backing store is unavailable"
	case "delivery_unavailable":
		return "the challenge could not be delivered"
	default:
		return ""
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
