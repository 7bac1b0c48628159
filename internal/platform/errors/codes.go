// Package errors provides structured error handling with machine-readable codes.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Session errors
	CodeSessionNotFound        Code = "SESSION_NOT_FOUND"
	CodeSessionEmptyID         Code = "SESSION_EMPTY_ID"
	CodeSessionConflict        Code = "SESSION_CONFLICT"
	CodeSessionNotRotating     Code = "SESSION_NOT_ROTATING"
	CodeSessionAlreadyRotating Code = "SESSION_ALREADY_ROTATING"

	// Rotation errors
	CodeRotationInvalidPageCount Code = "ROTATION_INVALID_PAGE_COUNT"
	CodeRotationInvalidInterval  Code = "ROTATION_INVALID_INTERVAL"

	// Page errors
	CodePageNotFound  Code = "PAGE_NOT_FOUND"
	CodePageEmptyName Code = "PAGE_EMPTY_NAME"
)

// HTTPStatus maps the code to an HTTP response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeSessionNotFound, CodePageNotFound:
		return http.StatusNotFound
	case CodeSessionConflict:
		return http.StatusConflict
	case CodeSessionEmptyID, CodeSessionNotRotating, CodeSessionAlreadyRotating,
		CodeRotationInvalidPageCount, CodeRotationInvalidInterval, CodePageEmptyName:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
