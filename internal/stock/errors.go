package stock

import (
	"errors"
	"fmt"
	"net/http"

	"SIMS-backend/internal/serial"
)

type Code string

const (
	CodeInvalidSerialFormat Code = "INVALID_SERIAL_FORMAT"
	CodeInvalidRange        Code = "INVALID_RANGE"
	CodeIndivisibleRange    Code = "INDIVISIBLE_RANGE"
	CodeDuplicateSerial     Code = "DUPLICATE_SERIAL"
	CodeNotFound            Code = "NOT_FOUND"
	CodeOutOfOrder          Code = "OUT_OF_ORDER"
	CodeAlreadyIssued       Code = "ALREADY_ISSUED"
	CodeNotIssued           Code = "NOT_ISSUED"
	CodeAlreadyReceived     Code = "ALREADY_RECEIVED"
	CodeAlreadyReturned     Code = "ALREADY_RETURNED"
	CodeBatchInUse          Code = "BATCH_IN_USE"
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeConflict            Code = "CONFLICT"
	CodeInternal            Code = "INTERNAL"
)

// DomainError is the engine's error type. Every failure names the offending
// identifier (serial, batch id, request id) so callers can render an
// actionable message. The engine never retries internally; each code reflects
// bad input or a real state conflict the caller must resolve.
type DomainError struct {
	Code    Code
	Message string
}

func (e *DomainError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func newErr(code Code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func errInvalid(format string, args ...any) *DomainError {
	return newErr(CodeInvalidArgument, format, args...)
}

func errNotFound(format string, args ...any) *DomainError {
	return newErr(CodeNotFound, format, args...)
}

// ErrCode extracts the domain code, defaulting to INTERNAL for infrastructure
// failures.
func ErrCode(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// fromSerialErr maps codec sentinels onto registration-time domain codes.
func fromSerialErr(err error) *DomainError {
	switch {
	case errors.Is(err, serial.ErrInvalidFormat):
		return newErr(CodeInvalidSerialFormat, "%s", err.Error())
	case errors.Is(err, serial.ErrInvalidRange):
		return newErr(CodeInvalidRange, "%s", err.Error())
	case errors.Is(err, serial.ErrIndivisible):
		return newErr(CodeIndivisibleRange, "%s", err.Error())
	}
	return newErr(CodeInternal, "%s", err.Error())
}

// ToHTTPStatus maps domain codes for the HTTP adapter.
func ToHTTPStatus(err error) int {
	switch ErrCode(err) {
	case CodeInvalidSerialFormat, CodeInvalidRange, CodeIndivisibleRange, CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateSerial, CodeOutOfOrder, CodeAlreadyIssued, CodeNotIssued,
		CodeAlreadyReceived, CodeAlreadyReturned, CodeBatchInUse, CodeConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
