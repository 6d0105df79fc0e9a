package common

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors.
// Kind is one of the sentinel errors below; Cause is the underlying failure.
type AppError struct {
	Code    string
	Message string
	Kind    error
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// Error kinds
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInternal         = errors.New("internal error")
	ErrConfig           = errors.New("invalid configuration")
	ErrModelLoad        = errors.New("model failed to load")
	ErrDecode           = errors.New("image could not be decoded")
	ErrUnexpectedFormat = errors.New("unexpected model output format")
	ErrOutputSchema     = errors.New("model output does not match schema")
	ErrQueueFull        = errors.New("request queue is full")
	ErrRuntime          = errors.New("inference runtime error")
	ErrShuttingDown     = errors.New("service is shutting down")
)

const (
	CodeConfig           = "CONFIG_ERROR"
	CodeModelLoad        = "MODEL_LOAD_ERROR"
	CodeDecode           = "DECODE_ERROR"
	CodeUnexpectedFormat = "CLEANUP_FORMAT_ERROR"
	CodeOutputSchema     = "OUTPUT_SCHEMA_ERROR"
	CodeRuntime          = "RUNTIME_ERROR"
	CodeConverter        = "CONVERTER_ERROR"
)

// Error constructors
func NewConfigError(message string) *AppError {
	return &AppError{Code: CodeConfig, Message: message, Kind: ErrConfig}
}

// NewModelLoadError categorizes any failure raised while loading the model.
func NewModelLoadError(cause error) *AppError {
	return &AppError{Code: CodeModelLoad, Message: ErrModelLoad.Error(), Kind: ErrModelLoad, Cause: cause}
}

func NewDecodeError(cause error) *AppError {
	return &AppError{Code: CodeDecode, Message: ErrDecode.Error(), Kind: ErrDecode, Cause: cause}
}

func NewUnexpectedFormatError(message string) *AppError {
	return &AppError{Code: CodeUnexpectedFormat, Message: message, Kind: ErrUnexpectedFormat}
}

func NewOutputSchemaError(cause error) *AppError {
	return &AppError{Code: CodeOutputSchema, Message: ErrOutputSchema.Error(), Kind: ErrOutputSchema, Cause: cause}
}

func NewRuntimeError(message string, cause error) *AppError {
	return &AppError{Code: CodeRuntime, Message: message, Kind: ErrRuntime, Cause: cause}
}

// NewConverterError reports a missing or misconfigured image converter.
func NewConverterError(message string, cause error) *AppError {
	return &AppError{Code: CodeConverter, Message: message, Kind: ErrInternal, Cause: cause}
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func InternalErrorf(format string, args ...interface{}) error {
	return InternalError(fmt.Sprintf(format, args...))
}

// ToStatus maps a per-call error onto a gRPC status. Errors that already carry a
// status pass through unchanged.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrDecode):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrQueueFull):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, ErrRuntime), errors.Is(err, ErrShuttingDown):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, ErrInternal):
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
