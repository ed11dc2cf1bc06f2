package server

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

type errorBody struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(logger zerolog.Logger, w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		logger.Error().Err(err).Msg("failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logger.Error().Err(err).Msg("failed to write JSON response")
	}
}

func respondError(logger zerolog.Logger, w http.ResponseWriter, status int, code, message string) {
	respondJSON(logger, w, status, errorBody{Error: apiError{Code: code, Message: message}})
}

// decodeRequest reads a size-limited JSON body into v and
// validates it
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(s.logger, w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "request body too large")
			return false
		}

		respondError(s.logger, w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON")
		return false
	}

	if err := s.validate.Struct(v); err != nil {
		respondError(s.logger, w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return false
	}

	return true
}
