package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

type ErrorCode string

const (
	ErrCodeValidationFailed     ErrorCode = "VALIDATION_FAILED"
	ErrCodeRuleInvalid          ErrorCode = "RULE_INVALID"
	ErrCodeDuplicateApplication ErrorCode = "DUPLICATE_APPLICATION"
	ErrCodeTransitionConflict   ErrorCode = "TRANSITION_CONFLICT"
	ErrCodeInvalidTransition    ErrorCode = "INVALID_TRANSITION"
	ErrCodeNotFound             ErrorCode = "NOT_FOUND"

	ErrCodeNotificationDeliveryFailed ErrorCode = "NOTIFICATION_DELIVERY_FAILED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeQueryTimeout             ErrorCode = "QUERY_TIMEOUT"
	ErrCodeSearchIndexFailed        ErrorCode = "SEARCH_INDEX_FAILED"
	ErrCodeExternalService          ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout                  ErrorCode = "TIMEOUT_ERROR"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// FieldError points at one offending input field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Fields    []FieldError           `json:"fields,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches on code so callers can compare against the exported sentinels.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// PublicView is what leaves the process: code, message and field details only.
func (e *StandardError) PublicView() *StandardError {
	return &StandardError{
		Code:      e.Code,
		Message:   e.Message,
		Fields:    e.Fields,
		Retryable: e.Retryable,
		Timestamp: e.Timestamp,
	}
}

// Sentinels for errors.Is.
var (
	ErrValidation         = &StandardError{Code: ErrCodeValidationFailed}
	ErrRuleInvalid        = &StandardError{Code: ErrCodeRuleInvalid}
	ErrConflict           = &StandardError{Code: ErrCodeDuplicateApplication}
	ErrTransitionConflict = &StandardError{Code: ErrCodeTransitionConflict}
	ErrInvalidTransition  = &StandardError{Code: ErrCodeInvalidTransition}
	ErrNotFound           = &StandardError{Code: ErrCodeNotFound}
	ErrNotification       = &StandardError{Code: ErrCodeNotificationDeliveryFailed}
)

func NewValidationError(fields []FieldError) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Request validation failed",
		Fields:    fields,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewRuleInvalidError(fields []FieldError) *StandardError {
	return &StandardError{
		Code:      ErrCodeRuleInvalid,
		Message:   "Automation rule is invalid",
		Fields:    fields,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewConflictError reports a duplicate active identity. The existing
// application is kept in Details only.
func NewConflictError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicateApplication,
		Message:   "An active application already exists for this applicant",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewTransitionConflictError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransitionConflict,
		Message:   "Application was modified concurrently",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidTransitionError(from, to string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Message:   "Requested status change is not allowed",
		Details:   fmt.Sprintf("from: %s, to: %s", from, to),
		Retryable: false,
		Metadata:  map[string]interface{}{"from": from, "to": to},
		Timestamp: time.Now().UTC(),
	}
}

func NewNotFoundError(resource, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", resource),
		Details:   fmt.Sprintf("%s id: %s", resource, id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewNotificationDeliveryError(kind, channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationDeliveryFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("kind: %s, channel: %s, error: %v", kind, channel, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewQueryTimeoutError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryTimeout,
		Message:   "Database query timeout",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewSearchIndexFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchIndexFailed,
		Message:   "Search index update failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExternalService,
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTimeout,
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewInternalError(err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Internal error",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// AsStandard returns the first StandardError in err's chain, or wraps err
// as INTERNAL_ERROR so raw storage errors never reach a caller.
func AsStandard(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeExternalService,
		ErrCodeNotificationDeliveryFailed,
		ErrCodeSearchIndexFailed:
		return 3

	case ErrCodeQueryTimeout,
		ErrCodeTimeout,
		ErrCodeTransitionConflict:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError never copies Details into the process variables;
// they are visible to anyone with Operate access.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"timestamp": stdErr.Timestamp.Format(time.RFC3339),
	}
	if len(stdErr.Fields) > 0 {
		vars["fieldErrors"] = stdErr.Fields
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "RULE"):
		return "VALIDATION"
	case strings.Contains(codeStr, "TRANSITION") || strings.Contains(codeStr, "DUPLICATE"):
		return "LIFECYCLE"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "NOT_FOUND"):
		return "NOT_FOUND"
	default:
		return "OTHER"
	}
}
