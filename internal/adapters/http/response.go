package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"feedbackpay/internal/ports"
	"feedbackpay/internal/services/deposits"
	"feedbackpay/internal/services/settlement"
	"feedbackpay/internal/services/users"
)

type errorBody struct {
	RequestID string      `json:"request_id"`
	Error     errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	writeJSON(w, status, errorBody{
		RequestID: middleware.GetReqID(r.Context()),
		Error:     errorDetail{Code: code, Message: message, Details: details},
	})
}

// writeServiceError maps errors returned by the services to a status code.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var derr *deposits.Error
	switch {
	case errors.As(err, &derr):
		status := http.StatusUnprocessableEntity
		if derr.Kind == deposits.KindAlreadyUsed {
			status = http.StatusConflict
		}
		writeError(w, r, status, "deposit_"+string(derr.Kind), derr.Error(), map[string]string{"tx": derr.TxRef})
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found", nil)
	case errors.Is(err, deposits.ErrInvalidInput),
		errors.Is(err, settlement.ErrInvalidInput),
		errors.Is(err, users.ErrInvalidWallet):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), nil)
	default:
		s.log.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
		}).WithError(err).Error("request failed")
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}
