package cerrors

import (
	"encoding/json"

	"github.com/palantir/stacktrace"
)

type ErrorType string

const (
	ErrorTypeNonUserFriendly     ErrorType = "NON_USER_FRIENDLY_ERROR"
	ErrorTypeGeneric             ErrorType = "GENERIC_ERROR"
	ErrorTypeValidation          ErrorType = "VALIDATION_ERROR"
	ErrorTypeTargetSelection     ErrorType = "TARGET_SELECTION_ERROR"
	ErrorTypeInsufficientTargets ErrorType = "INSUFFICIENT_TARGETS_ERROR"
	ErrorTypeInjection           ErrorType = "INJECTION_ERROR"
	ErrorTypeSafetyViolation     ErrorType = "SAFETY_VIOLATION"
	ErrorTypeObserver            ErrorType = "OBSERVER_ERROR"
	ErrorTypeCleanup             ErrorType = "CLEANUP_ERROR"
	ErrorTypeStorage             ErrorType = "STORAGE_ERROR"
	ErrorTypeNotFound            ErrorType = "NOT_FOUND"
	ErrorTypeInvalidTransition   ErrorType = "INVALID_TRANSITION_ERROR"
	ErrorTypeTimeout             ErrorType = "TIMEOUT"
)

// Error is the user-friendly coded error used across the engine,
// it marshals to JSON so that the failstep stays machine readable
type Error struct {
	ErrorCode ErrorType `json:"errorCode"`
	Phase     string    `json:"phase,omitempty"`
	Target    string    `json:"target,omitempty"`
	Reason    string    `json:"reason"`
}

func (e Error) Error() string {
	data, err := json.Marshal(e)
	if err != nil {
		return string(e.ErrorCode) + ": " + e.Reason
	}
	return string(data)
}

func (e Error) UserFriendly() bool {
	return true
}

func (e Error) ErrorType() ErrorType {
	return e.ErrorCode
}

type userFriendly interface {
	UserFriendly() bool
	ErrorType() ErrorType
}

// IsUserFriendly returns true if err is marked as safe to present to failstep
func IsUserFriendly(err error) bool {
	ufe, ok := err.(userFriendly)
	return ok && ufe.UserFriendly()
}

// GetErrorType returns the type of error if the error is user-friendly
func GetErrorType(err error) ErrorType {
	if ufe, ok := err.(userFriendly); ok {
		return ufe.ErrorType()
	}
	return ErrorTypeNonUserFriendly
}

// GetRootCauseAndErrorCode unwraps the stacktrace chain and returns the
// innermost user-friendly reason along with its code
func GetRootCauseAndErrorCode(err error) (string, ErrorType) {
	rootCause := stacktrace.RootCause(err)
	errorType := GetErrorType(rootCause)
	if !IsUserFriendly(rootCause) {
		return err.Error(), errorType
	}
	return rootCause.Error(), errorType
}
