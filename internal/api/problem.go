package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/log"
	"github.com/jkov/photark/internal/store"
)

// HeaderRequestID carries the request correlation id on every response.
const HeaderRequestID = "X-Request-Id"

// problem writes an RFC 7807 problem-details response.
func problem(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	reqID := log.RequestIDFromContext(r.Context())
	if reqID == "" {
		reqID = w.Header().Get(HeaderRequestID)
	}

	res := map[string]any{
		"type":      "photark/" + code,
		"title":     http.StatusText(status),
		"status":    status,
		"code":      code,
		"requestId": reqID,
	}
	if detail != "" {
		res["detail"] = detail
	}
	if p := r.URL.EscapedPath(); p != "" {
		res["instance"] = p
	}

	w.Header().Set(HeaderRequestID, reqID)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		lg := log.L()
		lg.Error().Err(err).Str("code", code).Msg("failed writing problem response")
	}
}

// fail maps a service error to its HTTP rendering.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperr.ErrBadRequest):
		problem(w, r, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, apperr.ErrUnauthorized):
		problem(w, r, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, apperr.ErrForbidden):
		problem(w, r, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		problem(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperr.ErrQuotaExceeded):
		problem(w, r, http.StatusRequestEntityTooLarge, "quota_exceeded", err.Error())
	case errors.Is(err, apperr.ErrStorageMissing):
		problem(w, r, http.StatusNotFound, "storage_missing", err.Error())
	case errors.Is(err, store.ErrDuplicate):
		problem(w, r, http.StatusConflict, "duplicate", err.Error())
	default:
		lg := log.WithContext(r.Context(), log.L())
		lg.Error().Err(err).
			Str("path", r.URL.Path).Msg("request failed")
		problem(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

// writeJSON renders v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		lg := log.L()
		lg.Error().Err(err).Msg("failed writing json response")
	}
}

// decodeJSON parses a strict JSON body: unknown fields are rejected so
// client typos fail loudly instead of silently dropping input.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.BadRequestf("invalid body: %v", err)
	}
	return nil
}
