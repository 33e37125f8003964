package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apiContext "clubdesk/internal/api/context"
	"clubdesk/internal/api/middleware"
	apperrors "clubdesk/internal/pkg/errors"
	"clubdesk/internal/platform/auth"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
)

const maxRequestBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v, writing a 400 and returning false on failure.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		apperrors.WriteError(w, http.StatusBadRequest, apperrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return false
	}
	return true
}

// fail renders err by kind. Anything unclassified is logged before the generic 500.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := apperrors.StatusFor(err); status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	apperrors.WriteErr(w, err)
}

func principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		apperrors.WriteError(w, http.StatusUnauthorized, apperrors.ErrCodeUnauthorized, "No principal in request", nil)
	}
	return p, ok
}

// pathID parses the named route parameter as a UUID.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	ps, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	id, err := uuid.Parse(ps.ByName(name))
	if err != nil {
		apperrors.WriteErr(w, apperrors.InvalidInput("parse "+name, errors.New("not a valid id")))
		return uuid.Nil, false
	}
	return id, true
}
