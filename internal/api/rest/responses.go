package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	domainerrors "github.com/lothammer/auction-backend/internal/domain/errors"
)

// envelope wraps every response body. Success reflects whether the requested
// action took effect; a rejected bid is success=false with the engine result
// in data.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// writeError maps an error onto a status code and stable result code.
// Unclassified errors surface as 500 without leaking internals.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var appErr *domainerrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Retryable {
			w.Header().Set("Retry-After", "1")
		}
		writeJSON(w, appErr.StatusCode, envelope{
			Success: false,
			Error: &errorBody{
				Code:      appErr.Code,
				Message:   appErr.Message,
				Retryable: appErr.Retryable,
			},
		})
		return
	}

	if logger != nil {
		logger.Error("unhandled error", zap.Error(err))
	}
	writeJSON(w, http.StatusInternalServerError, envelope{
		Success: false,
		Error:   &errorBody{Code: "INTERNAL_ERROR", Message: "internal error"},
	})
}
