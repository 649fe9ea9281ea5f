package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"loan-lifecycle/internal/common/errors"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error *errors.StandardError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error code to its HTTP status. Anything unknown is a 500.
func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeValidationFailed, errors.ErrCodeRuleInvalid:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeDuplicateApplication, errors.ErrCodeTransitionConflict:
		return http.StatusConflict
	case errors.ErrCodeInvalidTransition:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	std := errors.AsStandard(err)
	status := statusFor(std.Code)

	if status == http.StatusInternalServerError {
		h.log.Error("request failed", map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
			"code":   std.Code,
			"error":  err,
		})
		std = errors.NewInternalError(nil)
	}
	writeJSON(w, status, errorResponse{Error: std.PublicView()})
}

func decodeJSON(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return malformed()
	}
	if err := json.Unmarshal(body, v); err != nil {
		return malformed()
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, malformed()
	}
	return body, nil
}

func malformed() error {
	return errors.NewValidationError([]errors.FieldError{{
		Field: "body", Code: "MALFORMED_JSON", Message: "request body is not valid JSON",
	}})
}

func parseID(raw, field string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewValidationError([]errors.FieldError{{
			Field: field, Code: "INVALID_FORMAT", Message: field + " must be a positive integer",
		}})
	}
	return id, nil
}
