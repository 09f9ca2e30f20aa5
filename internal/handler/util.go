package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-router/internal/middleware"
	"github.com/capitalize-ai/support-router/internal/service"
	"github.com/capitalize-ai/support-router/pkg/logger"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeServiceError maps a service error onto a status code. Validation reasons
// are shown to the caller; other kinds get a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error, action string) {
	log = log.WithCorrelation(middleware.GetCorrelationID(r.Context()))
	switch service.KindOf(err) {
	case service.KindNotFound:
		writeError(w, http.StatusNotFound, "not found")
	case service.KindValidation:
		var svcErr *service.Error
		if errors.As(err, &svcErr) {
			writeError(w, http.StatusBadRequest, svcErr.Reason)
			return
		}
	case service.KindOwnership:
		writeError(w, http.StatusForbidden, "conversation is assigned to another agent")
	case service.KindUpstream:
		log.Error("upstream failure", zap.String("action", action), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to "+action)
	default:
		log.Error("request failed", zap.String("action", action), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "failed to "+action)
	}
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == io.EOF {
		return nil
	}
	return err
}
